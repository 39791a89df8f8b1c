// internal/detect/params.go
package detect

// Parameter setters. Each takes the detector lock, so changes land
// atomically between buffer calls, never mid-buffer. Validation mirrors
// Config.Validate so a detector can never hold an out-of-range value.

// SetThresholdMode switches the threshold strategy. Switching is immediate;
// there is no interpolation between strategies. Entering adaptive mode
// restarts the learning-rate schedule, entering random mode draws a fresh
// threshold.
func (d *Detector) SetThresholdMode(m ThresholdMode) error {
	if m < ThresholdConstant || m > ThresholdAdaptive {
		return ErrInvalidMode
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.Mode = m
	switch m {
	case ThresholdAdaptive:
		d.restartLearner()
	case ThresholdRandom:
		d.currRandomThresh = d.nextRandomThresh()
	}
	return nil
}

// SetConstantThreshold sets the constant threshold scalar. In adaptive mode
// this also resets the learner's working value.
func (d *Detector) SetConstantThreshold(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.ConstantThreshold = v
	d.constantThresh = v
}

// SetRandomRange sets the bounds for random threshold draws and immediately
// redraws the current threshold.
func (d *Detector) SetRandomRange(min, max float64) error {
	if max < min {
		return ErrInvalidRandomRange
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.RandomMin = min
	d.cfg.RandomMax = max
	d.currRandomThresh = d.nextRandomThresh()
	return nil
}

// SetAverageDecay sets the RMS running-average time constant in seconds.
func (d *Detector) SetAverageDecay(seconds float64) error {
	if seconds <= 0 {
		return ErrInvalidAverageDecay
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.AverageDecaySeconds = seconds
	if d.sampleRate > 0 {
		d.avgNewSampWeight = 1 / (seconds * d.sampleRate)
	}
	return nil
}

// SetDirections enables or disables the rising and falling crossing
// directions independently.
func (d *Detector) SetDirections(rising, falling bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.Rising = rising
	d.cfg.Falling = falling
}

// SetEventDuration sets the on-to-off spacing in milliseconds.
func (d *Detector) SetEventDuration(ms int) error {
	if ms < 0 {
		return ErrInvalidDuration
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.EventDurationMs = ms
	if d.sampleRate > 0 {
		d.updateSampleRateDependentValues()
	}
	return nil
}

// SetTimeout sets the refractory period in milliseconds.
func (d *Detector) SetTimeout(ms int) error {
	if ms < 0 {
		return ErrInvalidTimeout
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.TimeoutMs = ms
	if d.sampleRate > 0 {
		d.updateSampleRateDependentValues()
	}
	return nil
}

// SetSpans sets the past and future voting spans. Both history buffers are
// resized to pastSpan+futureSpan+2 and reset, the vote counters are
// zeroed so no stale count outlives the resize, and a fresh warm-up is
// forced.
func (d *Detector) SetSpans(pastSpan, futureSpan int) error {
	if pastSpan < 0 || futureSpan < 0 {
		return ErrInvalidSpan
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.PastSpan = pastSpan
	d.cfg.FutureSpan = futureSpan

	w := pastSpan + futureSpan + 2
	d.inputHistory.resize(w)
	d.thresholdHistory.resize(w)
	d.pastSamplesAbove = 0
	d.futureSamplesAbove = 0
	d.sampToReenable = pastSpan + futureSpan + 1
	return nil
}

// SetStrictness sets the fraction of each span required to vote on the
// correct side of the threshold.
func (d *Detector) SetStrictness(pastStrict, futureStrict float64) error {
	if pastStrict < 0 || pastStrict > 1 || futureStrict < 0 || futureStrict > 1 {
		return ErrInvalidStrictness
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.PastStrict = pastStrict
	d.cfg.FutureStrict = futureStrict
	return nil
}

// SetJumpLimit configures artifact rejection: crossings with a step of at
// least limit are rejected, and evaluation sleeps for sleepSec afterwards.
func (d *Detector) SetJumpLimit(use bool, limit, sleepSec float64) error {
	if limit < 0 || sleepSec < 0 {
		return ErrInvalidJumpLimit
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.UseJumpLimit = use
	d.cfg.JumpLimit = limit
	d.cfg.JumpLimitSleepSec = sleepSec
	if d.sampleRate > 0 {
		d.jumpLimitSleep = int(sleepSec * d.sampleRate)
		if d.jumpLimitElapsed > d.jumpLimitSleep {
			d.jumpLimitElapsed = d.jumpLimitSleep
		}
	}
	return nil
}

// SetBufferEndMask configures the optional mask that ignores crossings
// within ms milliseconds of the end of a buffer.
func (d *Detector) SetBufferEndMask(use bool, ms int) error {
	if ms < 0 {
		return ErrInvalidDuration
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.UseBufferEndMask = use
	d.cfg.BufferEndMaskMs = ms
	if d.sampleRate > 0 {
		d.updateSampleRateDependentValues()
	}
	return nil
}

// SetIndicatorTarget sets the target value the adaptive learner steers the
// indicator toward.
func (d *Detector) SetIndicatorTarget(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.IndicatorTarget = v
}

// SetIndicatorRange configures the circular range for indicator error
// computation.
func (d *Detector) SetIndicatorRange(use bool, lo, hi float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.UseIndicatorRange = use
	d.cfg.IndicatorRange = [2]float64{lo, hi}
}

// SetThresholdRange configures the circular range the adapted threshold is
// wrapped into. Independent of the indicator range.
func (d *Detector) SetThresholdRange(use bool, lo, hi float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.UseThresholdRange = use
	d.cfg.ThresholdRange = [2]float64{lo, hi}
}

// SetLearningRates sets the adaptive schedule parameters. They take effect
// on the next learner restart.
func (d *Detector) SetLearningRates(start, min, decay float64) error {
	if start < 0 || min < 0 || decay < 0 {
		return ErrInvalidLearningRate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.StartLearningRate = start
	d.cfg.MinLearningRate = min
	d.cfg.DecayRate = decay
	return nil
}

// SetLearnerPaused pauses or resumes the adaptive learner. While paused,
// indicator values are consumed but ignored.
func (d *Detector) SetLearnerPaused(paused bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.LearnerPaused = paused
}
