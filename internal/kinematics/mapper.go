package kinematics

import (
	"math"

	"github.com/pkg/errors"
)

// ErrInvalidCalibration is returned for a calibration whose ranges cannot be mapped.
var ErrInvalidCalibration = errors.New("invalid calibration")

// MapRange rescales value from [fromMin, fromMax] onto [toMin, toMax].
//
// The transform is affine and extrapolates outside the source range. Either
// range may be inverted (min greater than max). fromMin maps to exactly toMin
// and fromMax to exactly toMax. fromMin must differ from fromMax; use
// Calibration.Validate to reject such ranges at setup time.
func MapRange(value, fromMin, fromMax, toMin, toMax float64) float64 {
	t := (value - fromMin) / (fromMax - fromMin)
	return toMin*(1-t) + toMax*t
}

// Calibration relates an observed human range of motion to an actuator range.
type Calibration struct {
	FromMin float64 `json:"from_min"`
	FromMax float64 `json:"from_max"`
	ToMin   float64 `json:"to_min"`
	ToMax   float64 `json:"to_max"`
}

// Validate rejects calibrations that would divide by zero or collapse every
// input onto one output.
func (c Calibration) Validate() error {
	for _, v := range []float64{c.FromMin, c.FromMax, c.ToMin, c.ToMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrInvalidCalibration, "non-finite bound in %+v", c)
		}
	}
	if c.FromMin == c.FromMax {
		return errors.Wrapf(ErrInvalidCalibration, "source range is empty (from_min = from_max = %v)", c.FromMin)
	}
	if c.ToMin == c.ToMax {
		return errors.Wrapf(ErrInvalidCalibration, "target range is empty (to_min = to_max = %v)", c.ToMin)
	}
	return nil
}

// Map applies the calibration to a human angle.
func (c Calibration) Map(value float64) float64 {
	return MapRange(value, c.FromMin, c.FromMax, c.ToMin, c.ToMax)
}

// Inverse maps an actuator value back to the human angle that produces it.
func (c Calibration) Inverse(value float64) float64 {
	return MapRange(value, c.ToMin, c.ToMax, c.FromMin, c.FromMax)
}

// Inverted reports whether the source range runs from high to low.
func (c Calibration) Inverted() bool {
	return c.FromMin > c.FromMax
}

// DefaultCalibrations returns the stock mapping between human arm angles and
// the simulated arm's joint ranges.
func DefaultCalibrations() map[Channel]Calibration {
	return map[Channel]Calibration{
		// Raised straight up (180) down to 30 degrees out from the body drives
		// the lower arm from its low stop to its high stop.
		ShoulderElevation: {FromMin: 180, FromMax: 30, ToMin: -10, ToMax: 50},
		// Sharply bent (70) to fully straight (180) drives the upper arm.
		ElbowAngle:       {FromMin: 70, FromMax: 180, ToMin: -40, ToMax: 20},
		ForearmRotation:  {FromMin: -90, FromMax: 90, ToMin: -45, ToMax: 45},
		ForearmElevation: {FromMin: 30, FromMax: 180, ToMin: 0, ToMax: 60},
	}
}
