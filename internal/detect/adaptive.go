// internal/detect/adaptive.go
package detect

import "math"

// PushIndicator queues an external indicator value for the adaptive
// threshold learner. Values are applied at the start of the next Process
// call, keeping all detector state single-threaded with the sample loop.
// Non-finite values are ignored.
func (d *Detector) PushIndicator(value float64, sampleIndex int64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}
	_ = sampleIndex // carried for the event record only; the update is order-based
	d.indicatorMu.Lock()
	d.indicators = append(d.indicators, value)
	d.indicatorMu.Unlock()
}

// drainIndicators applies all queued indicator values. Caller holds d.mu.
func (d *Detector) drainIndicators() {
	d.indicatorMu.Lock()
	queued := d.indicators
	d.indicators = nil
	d.indicatorMu.Unlock()

	for _, v := range queued {
		d.applyIndicator(v)
	}
}

// applyIndicator runs one step of the adaptive threshold update. The
// learning rate follows
//
//	LR_t = (LR_{t-1} - MLR) / divisor_t + MLR
//	divisor_0 = 1, divisor_t = divisor_{t-1} + decay
//
// advanced once per indicator value, never per sample.
func (d *Detector) applyIndicator(value float64) {
	if d.cfg.Mode != ThresholdAdaptive || d.cfg.LearnerPaused {
		return
	}

	err := d.errorFromTarget(value)

	d.currLRDivisor += d.cfg.DecayRate
	d.currLearningRate = (d.currLearningRate-d.currMinLearningRate)/d.currLRDivisor +
		d.currMinLearningRate

	d.constantThresh -= d.currLearningRate * err
	if d.cfg.UseThresholdRange {
		d.constantThresh = wrapToRange(d.constantThresh,
			d.cfg.ThresholdRange[0], d.cfg.ThresholdRange[1])
	}
}

// errorFromTarget computes the signed error of x from the indicator
// target. With a circular indicator range enabled, the error is taken
// around the circle: whichever of the direct and wrapped distances has the
// smaller magnitude.
func (d *Detector) errorFromTarget(x float64) float64 {
	linear := x - d.cfg.IndicatorTarget
	if !d.cfg.UseIndicatorRange {
		return linear
	}
	size := d.cfg.IndicatorRange[1] - d.cfg.IndicatorRange[0]
	if math.Abs(linear) < size/2 {
		return linear
	}
	if linear > 0 {
		return linear - size
	}
	return linear + size
}

// wrapToRange maps x into [lo, hi) by floored modulo, leaving values
// already inside [lo, hi] unchanged. A degenerate range (hi <= lo)
// collapses to lo.
func wrapToRange(x, lo, hi float64) float64 {
	if x >= lo && x <= hi {
		return x
	}
	size := hi - lo
	if size <= 0 {
		return lo
	}
	rem := math.Mod(x-lo, size)
	if rem < 0 {
		rem += size
	}
	return lo + rem
}

// restartLearner resets the learning-rate schedule. Caller holds d.mu (or
// the detector is not yet shared).
func (d *Detector) restartLearner() {
	d.currLRDivisor = 1
	d.currLearningRate = d.cfg.StartLearningRate
	d.currMinLearningRate = d.cfg.MinLearningRate
}

// RestartLearner resets the adaptive learning-rate schedule to its starting
// values without touching the threshold itself.
func (d *Detector) RestartLearner() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.restartLearner()
}

// LearningRate returns the current adaptive learning rate.
func (d *Detector) LearningRate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currLearningRate
}
