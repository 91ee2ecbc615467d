package kinematics

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// ErrDegenerateGeometry is returned when two arm landmarks coincide and an
// angle between the segments is undefined.
var ErrDegenerateGeometry = errors.New("degenerate arm geometry")

// minSegment is the shortest segment length, in normalized image units, that
// still defines a direction.
const minSegment = 1e-9

// Channel identifies one joint angle extracted from the arm.
type Channel int

const (
	ShoulderElevation Channel = iota
	ElbowAngle
	ForearmRotation
	ForearmElevation
	NumChannels
)

var channelNames = [NumChannels]string{
	ShoulderElevation: "shoulder_elevation",
	ElbowAngle:        "elbow_angle",
	ForearmRotation:   "forearm_rotation",
	ForearmElevation:  "forearm_elevation",
}

// Channels returns every channel in extraction order.
func Channels() []Channel {
	return []Channel{ShoulderElevation, ElbowAngle, ForearmRotation, ForearmElevation}
}

func (c Channel) String() string {
	if c < 0 || c >= NumChannels {
		return "unknown"
	}
	return channelNames[c]
}

// ParseChannel returns the channel with the given name.
func ParseChannel(name string) (Channel, error) {
	for i, n := range channelNames {
		if n == name {
			return Channel(i), nil
		}
	}
	return 0, errors.Errorf("unknown channel %q", name)
}

// MarshalText lets channels key JSON objects.
func (c Channel) MarshalText() ([]byte, error) {
	if c < 0 || c >= NumChannels {
		return nil, errors.Errorf("invalid channel %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Channel) UnmarshalText(text []byte) error {
	parsed, err := ParseChannel(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ArmAngles holds the angles, in degrees, measured for one frame. A channel
// is absent when it could not be computed for that frame.
// The zero value has no channels.
type ArmAngles struct {
	values  [NumChannels]float64
	present [NumChannels]bool
}

// Get returns the angle for a channel and whether it was measured.
func (a ArmAngles) Get(c Channel) (float64, bool) {
	if c < 0 || c >= NumChannels {
		return 0, false
	}
	return a.values[c], a.present[c]
}

// With returns a copy of a with channel c set to v.
func (a ArmAngles) With(c Channel, v float64) ArmAngles {
	if c >= 0 && c < NumChannels {
		a.values[c] = v
		a.present[c] = true
	}
	return a
}

// Len returns the number of measured channels.
func (a ArmAngles) Len() int {
	n := 0
	for _, ok := range a.present {
		if ok {
			n++
		}
	}
	return n
}

// Map returns the measured channels as a map.
func (a ArmAngles) Map() map[Channel]float64 {
	m := make(map[Channel]float64, a.Len())
	for i, ok := range a.present {
		if ok {
			m[Channel(i)] = a.values[i]
		}
	}
	return m
}

// MarshalJSON encodes the measured channels as an object keyed by channel name.
func (a ArmAngles) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Map())
}

// UnmarshalJSON decodes an object keyed by channel name.
func (a *ArmAngles) UnmarshalJSON(data []byte) error {
	var m map[Channel]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	keys := make([]Channel, 0, len(m))
	for c := range m {
		keys = append(keys, c)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	*a = ArmAngles{}
	for _, c := range keys {
		*a = a.With(c, m[c])
	}
	return nil
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// ThreePointAngle returns the angle at p2 swept from the ray p2->p3 to the
// ray p2->p1, in degrees normalized into [0, 360).
func ThreePointAngle(p1, p2, p3 r2.Point) float64 {
	a := p1.Sub(p2)
	b := p3.Sub(p2)

	angle := degrees(math.Atan2(a.Y, a.X) - math.Atan2(b.Y, b.X))
	if angle < 0 {
		angle += 360
	}
	// -0 and tiny negative differences round up to exactly 360.
	if angle >= 360 {
		angle -= 360
	}
	return angle
}

// torsoPoint is a synthetic point one image height directly below the
// shoulder, standing in for the torso line.
func torsoPoint(shoulder r2.Point) r2.Point {
	return r2.Point{X: shoulder.X, Y: shoulder.Y + 1}
}

// ShoulderElevationAngle returns how far the upper arm is raised from the torso,
// in [0, 360). An arm hanging down reads 0 and an arm raised straight up
// reads 180.
func ShoulderElevationAngle(shoulder, elbow r2.Point) float64 {
	return ThreePointAngle(elbow, shoulder, torsoPoint(shoulder))
}

// ElbowFlexionAngle returns the angle at the elbow between forearm and upper arm,
// in [0, 360). A straight arm reads 180.
func ElbowFlexionAngle(shoulder, elbow, wrist r2.Point) float64 {
	return ThreePointAngle(wrist, elbow, shoulder)
}

// ForearmRotationAngle returns the heading of the elbow->wrist vector in
// image coordinates, in [-180, 180].
func ForearmRotationAngle(elbow, wrist r2.Point) float64 {
	d := wrist.Sub(elbow)
	return degrees(math.Atan2(d.Y, d.X))
}

// ForearmElevationAngle returns the unsigned angle between the upper arm and
// forearm directions, in [0, 180]. It returns ErrDegenerateGeometry when
// either segment has zero length.
func ForearmElevationAngle(shoulder, elbow, wrist r2.Point) (float64, error) {
	upper := elbow.Sub(shoulder)
	forearm := wrist.Sub(elbow)

	magUpper := upper.Norm()
	magForearm := forearm.Norm()
	if magUpper < minSegment || magForearm < minSegment {
		return 0, ErrDegenerateGeometry
	}

	cos := upper.Dot(forearm) / (magUpper * magForearm)
	cos = math.Max(-1, math.Min(1, cos))
	return degrees(math.Acos(cos)), nil
}

// Extractor turns the three selected arm points into joint angles.
type Extractor struct {
	Mirror MirrorPolicy
}

// Extract computes every channel it can for the given arm. Forearm elevation
// is omitted when the geometry is degenerate.
func (e Extractor) Extract(arm ArmPoints) ArmAngles {
	shoulder, elbow, wrist := arm.vectors()
	if e.Mirror.Reflects(arm.Side) {
		shoulder, elbow, wrist = reflect(shoulder), reflect(elbow), reflect(wrist)
	}

	var angles ArmAngles
	angles = angles.With(ShoulderElevation, ShoulderElevationAngle(shoulder, elbow))
	angles = angles.With(ElbowAngle, ElbowFlexionAngle(shoulder, elbow, wrist))
	angles = angles.With(ForearmRotation, ForearmRotationAngle(elbow, wrist))

	if elevation, err := ForearmElevationAngle(shoulder, elbow, wrist); err == nil {
		angles = angles.With(ForearmElevation, elevation)
	}

	return angles
}

// reflect mirrors a normalized point across the vertical center line.
func reflect(p r2.Point) r2.Point {
	return r2.Point{X: 1 - p.X, Y: p.Y}
}
