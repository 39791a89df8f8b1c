// internal/detect/detector.go
// Package detect implements a streaming threshold-crossing event detector.
// It consumes contiguous buffers of voltage samples and emits paired on/off
// events whenever the signal crosses a (possibly time-varying) threshold in
// an enabled direction, subject to past/future sample voting, jump-limit
// artifact rejection and a post-event refractory timeout.
package detect

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
)

var (
	// ErrInvalidMode indicates an unknown threshold mode
	ErrInvalidMode = errors.New("threshold mode must be one of constant, random, channel, average, adaptive")
	// ErrInvalidSpan indicates past/future span must be non-negative
	ErrInvalidSpan = errors.New("past and future span must be non-negative")
	// ErrInvalidStrictness indicates strictness must be a fraction
	ErrInvalidStrictness = errors.New("strictness must be between 0.0 and 1.0")
	// ErrInvalidDuration indicates event duration must be non-negative
	ErrInvalidDuration = errors.New("event duration must be non-negative")
	// ErrInvalidTimeout indicates timeout must be non-negative
	ErrInvalidTimeout = errors.New("timeout must be non-negative")
	// ErrInvalidJumpLimit indicates jump limit and sleep must be non-negative
	ErrInvalidJumpLimit = errors.New("jump limit and jump limit sleep must be non-negative")
	// ErrInvalidRandomRange indicates random threshold max must not be below min
	ErrInvalidRandomRange = errors.New("random threshold max must be >= min")
	// ErrInvalidLearningRate indicates learning rates must be non-negative
	ErrInvalidLearningRate = errors.New("learning rates and decay rate must be non-negative")
	// ErrInvalidAverageDecay indicates the RMS average decay must be positive
	ErrInvalidAverageDecay = errors.New("average decay seconds must be positive")
	// ErrInvalidSampleRate indicates the sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
)

// ThresholdMode selects how the per-sample threshold is produced.
type ThresholdMode int

const (
	// ThresholdConstant uses a fixed scalar threshold.
	ThresholdConstant ThresholdMode = iota
	// ThresholdRandom draws a new uniform threshold after every event.
	ThresholdRandom
	// ThresholdChannel reads the threshold from a second input channel.
	ThresholdChannel
	// ThresholdAverage scales a running RMS of the input by the constant.
	ThresholdAverage
	// ThresholdAdaptive uses the constant scalar, adjusted online from an
	// external indicator signal.
	ThresholdAdaptive
)

func (m ThresholdMode) String() string {
	switch m {
	case ThresholdConstant:
		return "constant"
	case ThresholdRandom:
		return "random"
	case ThresholdChannel:
		return "channel"
	case ThresholdAverage:
		return "average"
	case ThresholdAdaptive:
		return "adaptive"
	default:
		return "unknown"
	}
}

// Config holds all detector parameters. Values should come from the
// application config file and arrive here already validated for type;
// New and the setters enforce ranges.
type Config struct {
	// Mode selects the threshold strategy (from config: threshold_mode)
	Mode ThresholdMode
	// ConstantThreshold is the fixed threshold, the RMS multiplier in
	// average mode, and the adaptive algorithm's starting point
	// (from config: constant_threshold)
	ConstantThreshold float64
	// RandomMin/RandomMax bound the uniform draw in random mode
	RandomMin float64
	RandomMax float64
	// AverageDecaySeconds is the RMS smoothing time constant
	AverageDecaySeconds float64

	// Rising/Falling enable crossing directions independently
	Rising  bool
	Falling bool

	// EventDurationMs is the on-to-off spacing of an event pair
	EventDurationMs int
	// TimeoutMs is the refractory period after an event onset
	TimeoutMs int

	// PastSpan/FutureSpan are the number of additional samples examined
	// before/after a candidate crossing for voting
	PastSpan   int
	FutureSpan int
	// PastStrict/FutureStrict are the fractions of each span required to
	// vote on the correct side
	PastStrict   float64
	FutureStrict float64

	// UseJumpLimit rejects crossings whose |post-pre| step is too large
	UseJumpLimit bool
	JumpLimit    float64
	// JumpLimitSleepSec is a cooldown after a rejected jump, in seconds
	JumpLimitSleepSec float64

	// UseBufferEndMask ignores crossings within BufferEndMaskMs of the
	// end of a buffer
	UseBufferEndMask bool
	BufferEndMaskMs  int

	// Adaptive threshold parameters
	IndicatorTarget   float64
	UseIndicatorRange bool
	IndicatorRange    [2]float64
	StartLearningRate float64
	MinLearningRate   float64
	DecayRate         float64
	LearnerPaused     bool
	UseThresholdRange bool
	ThresholdRange    [2]float64

	// Seed seeds the random threshold generator; 0 uses a time-based seed
	Seed int64
}

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                ThresholdConstant,
		ConstantThreshold:   0,
		RandomMin:           -180,
		RandomMax:           180,
		AverageDecaySeconds: 5,
		Rising:              true,
		Falling:             false,
		EventDurationMs:     5,
		TimeoutMs:           1000,
		PastSpan:            0,
		FutureSpan:          0,
		PastStrict:          1.0,
		FutureStrict:        1.0,
		UseJumpLimit:        false,
		JumpLimit:           5.0,
		JumpLimitSleepSec:   0,
		UseBufferEndMask:    false,
		BufferEndMaskMs:     3,
		IndicatorTarget:     180,
		UseIndicatorRange:   true,
		IndicatorRange:      [2]float64{-180, 180},
		StartLearningRate:   0.02,
		MinLearningRate:     0.005,
		DecayRate:           0.00003,
		UseThresholdRange:   true,
		ThresholdRange:      [2]float64{-180, 180},
	}
}

// Validate checks that all parameters are within acceptable ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Mode < ThresholdConstant || c.Mode > ThresholdAdaptive {
		errs = append(errs, ErrInvalidMode)
	}
	if c.PastSpan < 0 || c.FutureSpan < 0 {
		errs = append(errs, ErrInvalidSpan)
	}
	if c.PastStrict < 0 || c.PastStrict > 1 || c.FutureStrict < 0 || c.FutureStrict > 1 {
		errs = append(errs, ErrInvalidStrictness)
	}
	if c.EventDurationMs < 0 {
		errs = append(errs, ErrInvalidDuration)
	}
	if c.TimeoutMs < 0 {
		errs = append(errs, ErrInvalidTimeout)
	}
	if c.JumpLimit < 0 || c.JumpLimitSleepSec < 0 {
		errs = append(errs, ErrInvalidJumpLimit)
	}
	if c.RandomMax < c.RandomMin {
		errs = append(errs, ErrInvalidRandomRange)
	}
	if c.StartLearningRate < 0 || c.MinLearningRate < 0 || c.DecayRate < 0 {
		errs = append(errs, ErrInvalidLearningRate)
	}
	if c.AverageDecaySeconds <= 0 {
		errs = append(errs, ErrInvalidAverageDecay)
	}
	return errors.Join(errs...)
}

// Block is one buffer's worth of input. Samples is the monitored channel;
// Threshold carries the same span of a second channel and is consulted only
// in channel threshold mode. StartIndex is the absolute sample index of
// Samples[0] within the stream.
type Block struct {
	StartIndex int64
	Samples    []float32
	Threshold  []float32
}

// Event is a detected crossing, emitted as an on/off pair. The metadata
// fields (CrossingIndex, Level, Threshold, Rising, LearningRate) are shared
// by both halves of a pair.
type Event struct {
	// SampleIndex is the absolute sample at which the event takes effect
	SampleIndex int64
	// On is true for the onset half of the pair, false for the offset
	On bool
	// CrossingIndex is the absolute sample of the actual crossing; it can
	// precede SampleIndex when the crossing was resolved retroactively
	CrossingIndex int64
	// Level is the signal value at the first sample after the crossing
	Level float32
	// Threshold is the realized threshold at the crossing
	Threshold float32
	// Rising is true when the signal ended up above the threshold
	Rising bool
	// LearningRate is the adaptive learning rate at the crossing, 0 when
	// the threshold is not adaptive
	LearningRate float64
}

// EmitFunc receives detector events. It is called from the processing path
// and must be fast and non-blocking.
type EmitFunc func(Event)

// Detector detects threshold crossings in a single sample stream. All
// methods are safe for concurrent use, but Process itself must not be
// re-entered: it is designed to run inside one real-time callback.
type Detector struct {
	mu  sync.Mutex
	cfg Config

	enabled    bool
	sampleRate float64

	// ms -> sample conversions, fixed at Enable time
	eventDurationSamp int
	timeoutSamp       int
	bufferEndMaskSamp int
	jumpLimitSleep    int

	// threshold state
	constantThresh        float64
	currRandomThresh      float64
	runningSquaredAverage float64
	averageNeedsInit      bool
	avgNewSampWeight      float64
	rng                   randSource

	// adaptive learning-rate schedule
	currLearningRate    float64
	currMinLearningRate float64
	currLRDivisor       float64

	// voting state
	pastSamplesAbove   int
	futureSamplesAbove int
	inputHistory       *ring
	thresholdHistory   *ring

	// jump-limit cooldown, counted in evaluations since the last rejected jump
	jumpLimitElapsed int

	// sampToReenable is the buffer-relative candidate index before which no
	// event may fire; it covers both warm-up after (re)enable and the
	// refractory period after an event
	sampToReenable int

	// pending holds an off-event that did not fit in the buffer that
	// produced it; see scheduler.go for the replacement contract
	pending *Event

	// scratch for the per-buffer realized thresholds
	currThresholds []float32

	// queued indicator values, drained at the top of Process
	indicatorMu sync.Mutex
	indicators  []float64

	emitPtr atomic.Pointer[EmitFunc]
}

// New creates a detector with the given configuration.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{
		cfg:              cfg,
		constantThresh:   cfg.ConstantThreshold,
		averageNeedsInit: true,
		rng:              newRandSource(cfg.Seed),
		inputHistory:     newRing(cfg.PastSpan + cfg.FutureSpan + 2),
		thresholdHistory: newRing(cfg.PastSpan + cfg.FutureSpan + 2),
		sampToReenable:   cfg.PastSpan + cfg.FutureSpan + 1,
	}
	d.restartLearner()
	if cfg.Mode == ThresholdRandom {
		d.currRandomThresh = d.nextRandomThresh()
	}
	return d, nil
}

// SetEmit sets the event callback. Pass nil to discard events.
func (d *Detector) SetEmit(emit EmitFunc) {
	if emit == nil {
		d.emitPtr.Store(nil)
	} else {
		d.emitPtr.Store(&emit)
	}
}

// Enable arms the detector for a stream with the given sample rate. All
// millisecond parameters are converted to sample counts here; durations
// round up so an event is never shorter than requested, while the timeout
// rounds down so the refractory period is never longer than requested.
func (d *Detector) Enable(sampleRate float64) error {
	if sampleRate <= 0 {
		return ErrInvalidSampleRate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sampleRate = sampleRate
	d.updateSampleRateDependentValues()
	d.jumpLimitElapsed = d.jumpLimitSleep
	d.sampToReenable = d.cfg.PastSpan + d.cfg.FutureSpan + 1
	d.pending = nil
	d.averageNeedsInit = true
	d.restartLearner()
	d.enabled = true
	return nil
}

// Disable disarms the detector. Configuration is retained; re-enabling
// forces a fresh warm-up and clears any deferred off-event.
func (d *Detector) Disable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = false
	d.sampToReenable = d.cfg.PastSpan + d.cfg.FutureSpan + 1
	d.pending = nil
}

// Enabled reports whether the detector is armed.
func (d *Detector) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// Threshold returns the currently effective threshold scalar: the constant
// (possibly adapted) value, or the last random draw in random mode.
func (d *Detector) Threshold() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg.Mode == ThresholdRandom {
		return d.currRandomThresh
	}
	return d.constantThresh
}

// Config returns a copy of the current configuration.
func (d *Detector) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

func (d *Detector) updateSampleRateDependentValues() {
	d.eventDurationSamp = int(math.Ceil(float64(d.cfg.EventDurationMs) * d.sampleRate / 1000))
	d.timeoutSamp = int(math.Floor(float64(d.cfg.TimeoutMs) * d.sampleRate / 1000))
	d.bufferEndMaskSamp = int(math.Ceil(float64(d.cfg.BufferEndMaskMs) * d.sampleRate / 1000))
	d.jumpLimitSleep = int(d.cfg.JumpLimitSleepSec * d.sampleRate)
	d.avgNewSampWeight = 1 / (d.cfg.AverageDecaySeconds * d.sampleRate)
}

// Process runs one buffer through the detector. It never blocks and emits
// events through the callback set with SetEmit. Misconfiguration (channel
// mode without threshold samples) makes the buffer a silent no-op.
func (d *Detector) Process(b Block) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.drainIndicators()

	n := len(b.Samples)
	if !d.enabled || n == 0 {
		return
	}
	if d.cfg.Mode == ThresholdChannel && len(b.Threshold) < n {
		return
	}

	d.emitDuePending(b, n)

	if cap(d.currThresholds) < n {
		d.currThresholds = make([]float32, n)
	}
	th := d.currThresholds[:n]

	if d.averageNeedsInit {
		x0 := float64(b.Samples[0])
		d.runningSquaredAverage = x0 * x0
		d.averageNeedsInit = false
	}

	for i := 0; i < n; i++ {
		// The running average advances in every mode so that switching
		// into average mode mid-stream starts from live data.
		x := float64(b.Samples[i])
		d.runningSquaredAverage = d.runningSquaredAverage*(1-d.avgNewSampWeight) +
			d.avgNewSampWeight*x*x

		th[i] = d.thresholdForSample(b, i)

		c := i - d.cfg.FutureSpan
		d.updateVotes(b, th, c)

		if c < d.sampToReenable {
			continue
		}
		if d.cfg.UseBufferEndMask && n-c <= d.bufferEndMaskSamp {
			continue
		}

		preVal := d.sampleAt(b, c-1)
		preThresh := d.thresholdAt(th, c-1)
		postVal := d.sampleAt(b, c)
		postThresh := d.thresholdAt(th, c)

		if (d.cfg.Rising && d.shouldTrigger(true, preVal, postVal, preThresh, postThresh)) ||
			(d.cfg.Falling && d.shouldTrigger(false, preVal, postVal, preThresh, postThresh)) {
			d.schedule(b, n, c, postVal, postThresh)
		}
	}

	d.inputHistory.enqueueMany(b.Samples)
	d.thresholdHistory.enqueueMany(th)

	d.sampToReenable -= n
	if d.sampToReenable < 0 {
		d.sampToReenable = 0
	}
}

// sampleAt resolves a buffer-relative index into either the current buffer
// (non-negative) or the retained history (negative). Keeping this branch in
// one place is what makes the indexing contract testable.
func (d *Detector) sampleAt(b Block, i int) float32 {
	if i < 0 {
		return d.inputHistory.at(i)
	}
	return b.Samples[i]
}

// thresholdAt is sampleAt for the realized-threshold sequence.
func (d *Detector) thresholdAt(th []float32, i int) float32 {
	if i < 0 {
		return d.thresholdHistory.at(i)
	}
	return th[i]
}

func (d *Detector) emitEvent(ev Event) {
	if p := d.emitPtr.Load(); p != nil {
		(*p)(ev)
	}
}
