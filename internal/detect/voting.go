// internal/detect/voting.go
package detect

// updateVotes maintains the sliding-window counts of samples above their
// realized threshold around candidate crossing index c. Each step moves
// both windows forward by one sample, so each counter changes by at most
// one in each direction. This runs for every sample, including during
// warm-up, so the counters are already correct when evaluation begins.
//
// The past window for candidate c covers [c-1-pastSpan, c-2]; the future
// window covers [c+1, c+futureSpan]. Updates happen before c itself is
// evaluated, so at evaluation time the entering future sample (index
// c+futureSpan, the newest sample of the buffer) has been counted.
func (d *Detector) updateVotes(b Block, th []float32, c int) {
	if d.cfg.PastSpan > 0 {
		leaving := c - 2 - d.cfg.PastSpan
		if d.sampleAt(b, leaving) > d.thresholdAt(th, leaving) {
			d.pastSamplesAbove--
		}
		entering := c - 2
		if d.sampleAt(b, entering) > d.thresholdAt(th, entering) {
			d.pastSamplesAbove++
		}
	}

	if d.cfg.FutureSpan > 0 {
		leaving := c
		if d.sampleAt(b, leaving) > d.thresholdAt(th, leaving) {
			d.futureSamplesAbove--
		}
		entering := c + d.cfg.FutureSpan
		if d.sampleAt(b, entering) > d.thresholdAt(th, entering) {
			d.futureSamplesAbove++
		}
	}
}
