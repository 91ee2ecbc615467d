package kinematics

import (
	"math"

	"github.com/pkg/errors"
)

// DefaultSmoothingFactor is the blend weight given to each new measurement.
const DefaultSmoothingFactor = 0.3

// Smooth blends a raw measurement into the previous smoothed value.
// With no previous value the raw measurement is returned unchanged.
func Smooth(prev *float64, raw, factor float64) float64 {
	if prev == nil {
		return raw
	}
	return *prev*(1-factor) + raw*factor
}

// ValidateFactor checks that a smoothing factor lies in (0, 1].
func ValidateFactor(factor float64) error {
	if math.IsNaN(factor) || factor <= 0 || factor > 1 {
		return errors.Errorf("smoothing factor %v outside (0, 1]", factor)
	}
	return nil
}

// EMA is an exponential moving average over a single angle channel.
// It is not safe for concurrent use.
type EMA struct {
	factor float64
	value  float64
	primed bool
}

// NewEMA returns an empty moving average with the given blend factor.
func NewEMA(factor float64) *EMA {
	return &EMA{factor: factor}
}

// Update folds a raw measurement in and returns the new smoothed value.
func (e *EMA) Update(raw float64) float64 {
	var prev *float64
	if e.primed {
		prev = &e.value
	}
	e.value = Smooth(prev, raw, e.factor)
	e.primed = true
	return e.value
}

// Value returns the current smoothed value, if any.
func (e *EMA) Value() (float64, bool) {
	return e.value, e.primed
}

// Reset forgets the smoothed value so the next update bootstraps again.
func (e *EMA) Reset() {
	e.value = 0
	e.primed = false
}
