// internal/detect/crossing.go
package detect

import "math"

// shouldTrigger decides whether a qualifying crossing exists at the
// candidate index whose surrounding values are given. direction is true for
// rising, false for falling. pre/post are the samples (and their realized
// thresholds) immediately before and after the candidate crossing.
func (d *Detector) shouldTrigger(direction bool, preVal, postVal, preThresh, postThresh float32) bool {
	// Artifact rejection: a step at or beyond the jump limit is never a
	// real crossing, and arms the cooldown.
	if d.cfg.UseJumpLimit && math.Abs(float64(postVal-preVal)) >= d.cfg.JumpLimit {
		d.jumpLimitElapsed = 0
		return false
	}

	// Cooldown after a rejected jump. Elapsed time is counted in
	// evaluations, advancing each time the gate is consulted.
	if d.jumpLimitElapsed < d.jumpLimitSleep {
		d.jumpLimitElapsed++
		return false
	}

	pastNeeded := 0
	if d.cfg.PastSpan > 0 {
		pastNeeded = int(math.Ceil(float64(d.cfg.PastSpan) * d.cfg.PastStrict))
	}
	futureNeeded := 0
	if d.cfg.FutureSpan > 0 {
		futureNeeded = int(math.Ceil(float64(d.cfg.FutureSpan) * d.cfg.FutureStrict))
	}

	// For a rising crossing the pre sample must be at or below threshold
	// and the post sample above; falling mirrors this. The voting checks
	// likewise mirror: rising wants enough past samples below and future
	// samples above.
	preSat := direction != (preVal > preThresh)
	postSat := direction == (postVal > postThresh)

	pastVotes := d.pastSamplesAbove
	if direction {
		pastVotes = d.cfg.PastSpan - d.pastSamplesAbove
	}
	futureVotes := d.cfg.FutureSpan - d.futureSamplesAbove
	if direction {
		futureVotes = d.futureSamplesAbove
	}
	pastSat := pastVotes >= pastNeeded
	futureSat := futureVotes >= futureNeeded

	return preSat && postSat && pastSat && futureSat
}
