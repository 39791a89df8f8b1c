// internal/detect/detector_test.go
package detect

import (
	"errors"
	"testing"
)

// Tests run at 1 kHz so millisecond parameters equal sample counts.
const testSampleRate = 1000.0

// newTestDetector builds an enabled detector and a slice its events are
// appended to.
func newTestDetector(t *testing.T, mut func(*Config)) (*Detector, *[]Event) {
	t.Helper()
	cfg := DefaultConfig()
	if mut != nil {
		mut(&cfg)
	}
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	events := &[]Event{}
	d.SetEmit(func(ev Event) { *events = append(*events, ev) })
	if err := d.Enable(testSampleRate); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	return d, events
}

func onEvents(events []Event) []Event {
	var on []Event
	for _, ev := range events {
		if ev.On {
			on = append(on, ev)
		}
	}
	return on
}

// ramp returns n samples climbing linearly by step from start.
func ramp(start, step float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = start + step*float32(i)
	}
	return out
}

func constant(v float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
		want error
	}{
		{"bad mode", func(c *Config) { c.Mode = ThresholdMode(99) }, ErrInvalidMode},
		{"negative span", func(c *Config) { c.PastSpan = -1 }, ErrInvalidSpan},
		{"strictness above one", func(c *Config) { c.FutureStrict = 1.5 }, ErrInvalidStrictness},
		{"negative duration", func(c *Config) { c.EventDurationMs = -1 }, ErrInvalidDuration},
		{"negative timeout", func(c *Config) { c.TimeoutMs = -1 }, ErrInvalidTimeout},
		{"negative jump limit", func(c *Config) { c.JumpLimit = -0.5 }, ErrInvalidJumpLimit},
		{"inverted random range", func(c *Config) { c.RandomMin = 1; c.RandomMax = 0 }, ErrInvalidRandomRange},
		{"negative learning rate", func(c *Config) { c.StartLearningRate = -0.1 }, ErrInvalidLearningRate},
		{"zero average decay", func(c *Config) { c.AverageDecaySeconds = 0 }, ErrInvalidAverageDecay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mut(&cfg)
			_, err := New(cfg)
			if !errors.Is(err, tt.want) {
				t.Errorf("New error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEnable_InvalidSampleRate(t *testing.T) {
	d, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := d.Enable(0); !errors.Is(err, ErrInvalidSampleRate) {
		t.Errorf("Enable(0) error = %v, want ErrInvalidSampleRate", err)
	}
	if d.Enabled() {
		t.Error("detector enabled after failed Enable")
	}
}

// A monotonic ramp across a constant threshold produces exactly one rising
// event, at the first sample strictly above the threshold.
func TestProcess_SingleCrossingOnRamp(t *testing.T) {
	d, events := newTestDetector(t, func(c *Config) {
		c.ConstantThreshold = 0.5
	})

	d.Process(Block{StartIndex: 0, Samples: ramp(0, 0.01, 100)})

	on := onEvents(*events)
	if len(on) != 1 {
		t.Fatalf("got %d on events, want 1", len(on))
	}
	// values are 0.00, 0.01, ...; the first strictly above 0.5 is index 51
	if on[0].SampleIndex != 51 {
		t.Errorf("on event at sample %d, want 51", on[0].SampleIndex)
	}
	if on[0].CrossingIndex != 51 {
		t.Errorf("crossing index %d, want 51", on[0].CrossingIndex)
	}
	if !on[0].Rising {
		t.Error("event not marked rising")
	}
	if on[0].Threshold != 0.5 {
		t.Errorf("event threshold %v, want 0.5", on[0].Threshold)
	}
	if on[0].LearningRate != 0 {
		t.Errorf("learning rate %v, want 0 for non-adaptive mode", on[0].LearningRate)
	}

	// the paired off event lands eventDuration (5 ms = 5 samples) later
	var off []Event
	for _, ev := range *events {
		if !ev.On {
			off = append(off, ev)
		}
	}
	if len(off) != 1 {
		t.Fatalf("got %d off events, want 1", len(off))
	}
	if off[0].SampleIndex != 56 {
		t.Errorf("off event at sample %d, want 56", off[0].SampleIndex)
	}
}

// After an event at candidate k, nothing may fire before k+1+timeout.
func TestProcess_RefractoryTimeout(t *testing.T) {
	d, events := newTestDetector(t, func(c *Config) {
		c.ConstantThreshold = 0.5
		c.TimeoutMs = 10
		c.EventDurationMs = 1
	})

	// square wave: 5 below, 5 above, repeating; rising crossings at
	// 5, 15, 25, 35
	samples := make([]float32, 40)
	for i := range samples {
		if (i/5)%2 == 1 {
			samples[i] = 1
		}
	}
	d.Process(Block{StartIndex: 0, Samples: samples})

	on := onEvents(*events)
	if len(on) != 2 {
		t.Fatalf("got %d on events, want 2", len(on))
	}
	if on[0].SampleIndex != 5 {
		t.Errorf("first event at %d, want 5", on[0].SampleIndex)
	}
	// events at 15 and 35 fall inside the refractory window of the
	// preceding event (5+1+10 = 16, 25+1+10 = 36)
	if on[1].SampleIndex != 25 {
		t.Errorf("second event at %d, want 25", on[1].SampleIndex)
	}
}

// With pastSpan=4 and pastStrict=1.0, a rising event requires all four
// samples preceding the crossing context to sit below threshold.
func TestProcess_PastVotingStrictness(t *testing.T) {
	tests := []struct {
		name    string
		prefix  []float32
		wantOn  int
	}{
		{"all below", []float32{0, 0, 0, 0, 0}, 1},
		{"one above in window", []float32{0, 0, 0.8, 0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, events := newTestDetector(t, func(c *Config) {
				c.ConstantThreshold = 0.5
				c.PastSpan = 4
				c.PastStrict = 1.0
			})

			samples := append(append([]float32{}, tt.prefix...), constant(1, 20)...)
			d.Process(Block{StartIndex: 0, Samples: samples})

			if got := len(onEvents(*events)); got != tt.wantOn {
				t.Errorf("got %d on events, want %d", got, tt.wantOn)
			}
		})
	}
}

// A crossing with |post-pre| at or beyond the jump limit never fires.
func TestProcess_JumpLimit(t *testing.T) {
	tests := []struct {
		name   string
		high   float32
		wantOn int
	}{
		{"step beyond limit", 6.0, 0},
		{"step within limit", 3.0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, events := newTestDetector(t, func(c *Config) {
				c.ConstantThreshold = 0.5
				c.UseJumpLimit = true
				c.JumpLimit = 5.0
			})

			samples := append(constant(0, 10), constant(tt.high, 10)...)
			d.Process(Block{StartIndex: 0, Samples: samples})

			if got := len(onEvents(*events)); got != tt.wantOn {
				t.Errorf("got %d on events, want %d", got, tt.wantOn)
			}
		})
	}
}

// An off event that does not fit in its buffer is deferred and emitted in
// the buffer containing its absolute sample index, exactly once.
func TestProcess_DeferredTurnoff(t *testing.T) {
	d, events := newTestDetector(t, func(c *Config) {
		c.ConstantThreshold = 0.5
		c.EventDurationMs = 20
	})

	// crossing at sample 5; off due at 5+20 = 25
	d.Process(Block{StartIndex: 0, Samples: append(constant(0, 5), constant(1, 5)...)})
	d.Process(Block{StartIndex: 10, Samples: constant(1, 10)})

	countOff := func() int {
		n := 0
		for _, ev := range *events {
			if !ev.On {
				n++
			}
		}
		return n
	}

	if countOff() != 0 {
		t.Fatalf("off event emitted before its buffer: %d", countOff())
	}

	d.Process(Block{StartIndex: 20, Samples: constant(1, 10)})
	if countOff() != 1 {
		t.Fatalf("got %d off events, want 1", countOff())
	}
	for _, ev := range *events {
		if !ev.On && ev.SampleIndex != 25 {
			t.Errorf("off event at %d, want 25", ev.SampleIndex)
		}
	}

	// nothing further to emit
	d.Process(Block{StartIndex: 30, Samples: constant(1, 10)})
	if countOff() != 1 {
		t.Errorf("off event emitted twice")
	}
}

// Disable then Enable resets warm-up and the deferred off slot without
// touching configuration.
func TestDisableEnable_RoundTrip(t *testing.T) {
	d, _ := newTestDetector(t, func(c *Config) {
		c.Mode = ThresholdAverage
		c.ConstantThreshold = 0.5
		c.EventDurationMs = 500
	})

	// park a deferred off event
	d.Process(Block{StartIndex: 0, Samples: append(constant(0, 5), constant(10, 5)...)})
	if d.pending == nil {
		t.Fatal("expected a deferred off event")
	}

	before := d.Config()
	d.Disable()

	if d.pending != nil {
		t.Error("deferred off event survived Disable")
	}
	if d.Enabled() {
		t.Error("detector still enabled")
	}

	if err := d.Enable(testSampleRate); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if d.sampToReenable != before.PastSpan+before.FutureSpan+1 {
		t.Errorf("sampToReenable = %d, want %d", d.sampToReenable, before.PastSpan+before.FutureSpan+1)
	}
	if d.Config() != before {
		t.Errorf("configuration changed across disable/enable round trip")
	}
}

func TestProcess_ChannelThreshold(t *testing.T) {
	d, events := newTestDetector(t, func(c *Config) {
		c.Mode = ThresholdChannel
	})

	// signal climbs, reference channel stays flat at 0.5
	d.Process(Block{
		StartIndex: 0,
		Samples:    ramp(0, 0.1, 20),
		Threshold:  constant(0.5, 20),
	})

	on := onEvents(*events)
	if len(on) != 1 {
		t.Fatalf("got %d on events, want 1", len(on))
	}
	if on[0].SampleIndex != 6 {
		t.Errorf("on event at %d, want 6", on[0].SampleIndex)
	}
	if on[0].Threshold != 0.5 {
		t.Errorf("event threshold %v, want 0.5", on[0].Threshold)
	}
}

// Channel mode without reference samples is a silent no-op buffer.
func TestProcess_ChannelThresholdMissingReference(t *testing.T) {
	d, events := newTestDetector(t, func(c *Config) {
		c.Mode = ThresholdChannel
	})

	d.Process(Block{StartIndex: 0, Samples: ramp(0, 0.1, 20)})

	if len(*events) != 0 {
		t.Errorf("got %d events from misconfigured buffer, want 0", len(*events))
	}
}

func TestProcess_AverageThreshold(t *testing.T) {
	d, events := newTestDetector(t, func(c *Config) {
		c.Mode = ThresholdAverage
		c.ConstantThreshold = 2 // threshold = 2 * RMS
	})

	// RMS settles near 1; a excursion to 3 crosses 2*RMS, the return and
	// steady state do not
	d.Process(Block{StartIndex: 0, Samples: constant(1, 100)})
	if got := len(onEvents(*events)); got != 0 {
		t.Fatalf("steady state fired %d events, want 0", got)
	}

	d.Process(Block{StartIndex: 100, Samples: constant(3, 10)})
	if got := len(onEvents(*events)); got != 1 {
		t.Errorf("excursion fired %d events, want 1", got)
	}
}

func TestProcess_RandomThresholdRedraw(t *testing.T) {
	d, events := newTestDetector(t, func(c *Config) {
		c.Mode = ThresholdRandom
		c.RandomMin = 0.4
		c.RandomMax = 0.6
		c.Seed = 12345
	})

	before := d.Threshold()
	if before < 0.4 || before >= 0.6 {
		t.Fatalf("initial random threshold %v outside [0.4, 0.6)", before)
	}

	d.Process(Block{StartIndex: 0, Samples: append(constant(0, 10), constant(1, 10)...)})
	if got := len(onEvents(*events)); got != 1 {
		t.Fatalf("got %d on events, want 1", got)
	}

	after := d.Threshold()
	if after < 0.4 || after >= 0.6 {
		t.Errorf("redrawn threshold %v outside [0.4, 0.6)", after)
	}
	if after == before {
		t.Errorf("threshold not redrawn after event (still %v)", after)
	}
}

func TestProcess_BufferEndMask(t *testing.T) {
	tests := []struct {
		name   string
		use    bool
		wantOn int
	}{
		{"mask on", true, 0},
		{"mask off", false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, events := newTestDetector(t, func(c *Config) {
				c.ConstantThreshold = 0.5
				c.UseBufferEndMask = tt.use
				c.BufferEndMaskMs = 10
			})

			// crossing at sample 15 of a 20-sample buffer: 5 samples
			// from the end, inside the 10-sample mask
			d.Process(Block{StartIndex: 0, Samples: append(constant(0, 15), constant(1, 5)...)})

			if got := len(onEvents(*events)); got != tt.wantOn {
				t.Errorf("got %d on events, want %d", got, tt.wantOn)
			}
		})
	}
}

func TestProcess_DisabledIsNoOp(t *testing.T) {
	d, events := newTestDetector(t, func(c *Config) {
		c.ConstantThreshold = 0.5
	})
	d.Disable()

	d.Process(Block{StartIndex: 0, Samples: ramp(0, 0.01, 100)})
	if len(*events) != 0 {
		t.Errorf("disabled detector emitted %d events", len(*events))
	}
}

func TestProcess_FallingDirection(t *testing.T) {
	d, events := newTestDetector(t, func(c *Config) {
		c.ConstantThreshold = 0.5
		c.Rising = false
		c.Falling = true
	})

	d.Process(Block{StartIndex: 0, Samples: append(constant(1, 10), constant(0, 10)...)})

	on := onEvents(*events)
	if len(on) != 1 {
		t.Fatalf("got %d on events, want 1", len(on))
	}
	if on[0].SampleIndex != 10 {
		t.Errorf("on event at %d, want 10", on[0].SampleIndex)
	}
	if on[0].Rising {
		t.Error("falling crossing marked rising")
	}
}

// With futureSpan > 0, a crossing is evaluated futureSpan samples after it
// happens. Candidates within futureSpan of a buffer's end carry over as
// negative candidate indices in the next buffer, which the re-enable floor
// keeps below the evaluation window: such crossings do not fire. A crossing
// with its full future window inside the buffer fires at the crossing
// sample, not at the evaluation sample.
func TestProcess_FutureSpanEvaluationDelay(t *testing.T) {
	tests := []struct {
		name       string
		crossingAt int
		wantOn     int
	}{
		{"window inside buffer", 10, 1},
		{"window past buffer end", 18, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, events := newTestDetector(t, func(c *Config) {
				c.ConstantThreshold = 0.5
				c.FutureSpan = 4
				c.FutureStrict = 1.0
			})

			samples := append(constant(0, tt.crossingAt), constant(1, 20-tt.crossingAt)...)
			d.Process(Block{StartIndex: 0, Samples: samples})
			d.Process(Block{StartIndex: 20, Samples: constant(1, 20)})

			on := onEvents(*events)
			if len(on) != tt.wantOn {
				t.Fatalf("got %d on events, want %d", len(on), tt.wantOn)
			}
			if tt.wantOn == 1 {
				if on[0].SampleIndex != int64(tt.crossingAt) {
					t.Errorf("on event at %d, want %d", on[0].SampleIndex, tt.crossingAt)
				}
				if on[0].CrossingIndex != int64(tt.crossingAt) {
					t.Errorf("crossing index %d, want %d", on[0].CrossingIndex, tt.crossingAt)
				}
			}
		})
	}
}
