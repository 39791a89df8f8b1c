// internal/detect/threshold.go
package detect

import (
	"math"
	"math/rand"
	"time"
)

// randSource wraps the uniform generator behind random threshold mode so
// tests can seed it deterministically.
type randSource interface {
	Float64() float64
}

func newRandSource(seed int64) randSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// thresholdForSample produces the realized threshold for sample i of the
// current buffer. The result is cached per buffer and pushed into the
// threshold history, so every sample's threshold is recorded exactly as it
// was compared against.
func (d *Detector) thresholdForSample(b Block, i int) float32 {
	switch d.cfg.Mode {
	case ThresholdConstant, ThresholdAdaptive:
		// Adaptive mode reads the same scalar; the learner mutates it
		// between buffers.
		return float32(d.constantThresh)
	case ThresholdAverage:
		return float32(d.cfg.ConstantThreshold * math.Sqrt(d.runningSquaredAverage))
	case ThresholdRandom:
		return float32(d.currRandomThresh)
	case ThresholdChannel:
		return b.Threshold[i]
	default:
		return float32(d.constantThresh)
	}
}

// nextRandomThresh draws a uniform threshold in [RandomMin, RandomMax).
func (d *Detector) nextRandomThresh() float64 {
	span := d.cfg.RandomMax - d.cfg.RandomMin
	return d.cfg.RandomMin + span*d.rng.Float64()
}
