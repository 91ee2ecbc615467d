// Package calibrate fits per-channel calibrations from recorded arm angles.
package calibrate

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/armmirror/internal/kinematics"
)

const (
	// MinSamples is the fewest measurements of a channel a range is fitted from.
	MinSamples = 10

	// MinSpanDegrees is the narrowest observed range that is accepted.
	MinSpanDegrees = 5.0

	lowQuantile  = 0.05
	highQuantile = 0.95
)

var (
	// ErrTooFewSamples is returned when a channel was not measured often enough.
	ErrTooFewSamples = errors.New("too few samples")

	// ErrNarrowRange is returned when the subject barely moved during recording.
	ErrNarrowRange = errors.New("observed range too narrow")
)

// Sample is one recorded frame of raw angles.
type Sample struct {
	Angles    kinematics.ArmAngles `json:"angles"`
	Timestamp int64                `json:"timestamp"`
}

// Range is the span of motion observed for a channel.
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Trainer processes recorded samples into calibrations.
type Trainer struct{}

// NewTrainer creates a new Trainer instance.
func NewTrainer() *Trainer {
	return &Trainer{}
}

// ParseSamples decodes stored sample records.
func ParseSamples(raw []json.RawMessage) ([]Sample, error) {
	samples := make([]Sample, 0, len(raw))
	for i, r := range raw {
		var s Sample
		if err := json.Unmarshal(r, &s); err != nil {
			return nil, errors.Wrapf(err, "failed to parse sample %d", i)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// ObservedRange returns the 5th and 95th percentile of a channel across the
// samples. Percentiles rather than extremes keep single bad detections out
// of the fitted range.
func (t *Trainer) ObservedRange(samples []Sample, ch kinematics.Channel) (Range, error) {
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if v, ok := s.Angles.Get(ch); ok {
			values = append(values, v)
		}
	}
	if len(values) < MinSamples {
		return Range{}, errors.Wrapf(ErrTooFewSamples, "channel %s: %d of %d", ch, len(values), MinSamples)
	}

	sort.Float64s(values)
	r := Range{
		Low:  stat.Quantile(lowQuantile, stat.Empirical, values, nil),
		High: stat.Quantile(highQuantile, stat.Empirical, values, nil),
	}
	if r.High-r.Low < MinSpanDegrees {
		return Range{}, errors.Wrapf(ErrNarrowRange, "channel %s: %.1f to %.1f", ch, r.Low, r.High)
	}
	return r, nil
}

// Fit replaces the human range of base with the observed range, keeping the
// direction of base: a calibration that ran from high to low still does.
func (t *Trainer) Fit(base kinematics.Calibration, observed Range) (kinematics.Calibration, error) {
	fitted := base
	if base.Inverted() {
		fitted.FromMin, fitted.FromMax = observed.High, observed.Low
	} else {
		fitted.FromMin, fitted.FromMax = observed.Low, observed.High
	}
	if err := fitted.Validate(); err != nil {
		return kinematics.Calibration{}, err
	}
	return fitted, nil
}

// Train fits every channel of base that has enough usable samples. Channels
// that cannot be fitted keep their base calibration and are reported in skipped.
func (t *Trainer) Train(samples []Sample, base map[kinematics.Channel]kinematics.Calibration) (fitted map[kinematics.Channel]kinematics.Calibration, skipped map[kinematics.Channel]error, err error) {
	if len(samples) == 0 {
		return nil, nil, errors.New("no samples provided")
	}

	fitted = make(map[kinematics.Channel]kinematics.Calibration, len(base))
	skipped = make(map[kinematics.Channel]error)
	for ch, cal := range base {
		r, rerr := t.ObservedRange(samples, ch)
		if rerr != nil {
			fitted[ch] = cal
			skipped[ch] = rerr
			continue
		}
		c, ferr := t.Fit(cal, r)
		if ferr != nil {
			fitted[ch] = cal
			skipped[ch] = ferr
			continue
		}
		fitted[ch] = c
	}
	return fitted, skipped, nil
}
