// Package arm models the simulated robotic arm: its joints, their mechanical
// limits and the current pose commanded by vision or by manual control.
package arm

import (
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ayusman/armmirror/internal/kinematics"
)

// StepDegrees is how far a single manual step moves a joint.
const StepDegrees = 3.0

// ErrUnknownJoint is returned for a joint name the arm does not have.
var ErrUnknownJoint = errors.New("unknown joint")

// Joint identifies one rotational joint of the arm.
type Joint string

const (
	Base           Joint = "base"
	Shoulder       Joint = "shoulder"
	Elbow          Joint = "elbow"
	WristElevation Joint = "wrist_elevation"
	WristRoll      Joint = "wrist_roll"
	WristPitch     Joint = "wrist_pitch"
	Gripper        Joint = "gripper"
)

// Joints returns every joint from the base outwards.
func Joints() []Joint {
	return []Joint{Base, Shoulder, Elbow, WristElevation, WristRoll, WristPitch, Gripper}
}

// ParseJoint validates a joint name.
func ParseJoint(name string) (Joint, error) {
	j := Joint(name)
	if _, ok := limits[j]; !ok {
		return "", errors.Wrapf(ErrUnknownJoint, "%q", name)
	}
	return j, nil
}

// Limit is the mechanical range of a joint in degrees. A continuous joint
// has no stops and wraps around instead.
type Limit struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Continuous bool    `json:"continuous,omitempty"`
}

// Clamp brings v inside the limit.
func (l Limit) Clamp(v float64) float64 {
	if l.Continuous {
		return wrap(v)
	}
	return math.Max(l.Min, math.Min(l.Max, v))
}

var continuous = Limit{Min: -180, Max: 180, Continuous: true}

var limits = map[Joint]Limit{
	Base:           continuous,
	Shoulder:       {Min: -10, Max: 50},
	Elbow:          {Min: -40, Max: 20},
	WristElevation: {Min: 0, Max: 60},
	WristRoll:      continuous,
	WristPitch:     {Min: -45, Max: 45},
	Gripper:        {Min: -10, Max: 36},
}

// LimitOf returns the limit of a joint.
func LimitOf(j Joint) (Limit, bool) {
	l, ok := limits[j]
	return l, ok
}

// wrap folds an angle into [-180, 180).
func wrap(v float64) float64 {
	v = math.Mod(v+180, 360)
	if v < 0 {
		v += 360
	}
	return v - 180
}

// Source records who last moved the arm.
type Source string

const (
	SourceNone   Source = ""
	SourceVision Source = "vision"
	SourceManual Source = "manual"
)

// State is a snapshot of the arm.
type State struct {
	Joints    map[Joint]float64 `json:"joints"`
	Source    Source            `json:"source"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Get returns the angle of a joint.
func (s State) Get(j Joint) float64 {
	return s.Joints[j]
}

// Binding routes kinematics channels to the joints they drive.
type Binding map[kinematics.Channel]Joint

// DefaultBinding returns the stock channel to joint routing.
func DefaultBinding() Binding {
	return Binding{
		kinematics.ShoulderElevation: Shoulder,
		kinematics.ElbowAngle:        Elbow,
		kinematics.ForearmRotation:   WristPitch,
		kinematics.ForearmElevation:  WristElevation,
	}
}

// Validate checks that every bound joint exists.
func (b Binding) Validate() error {
	for ch, j := range b {
		if _, ok := limits[j]; !ok {
			return errors.Wrapf(ErrUnknownJoint, "channel %s bound to %q", ch, string(j))
		}
	}
	return nil
}

// Listener is called with a snapshot after every change.
type Listener func(State)

// Arm holds the joint angles. It is safe for concurrent use.
type Arm struct {
	mu        sync.RWMutex
	joints    map[Joint]float64
	source    Source
	updatedAt time.Time
	listeners []Listener
	now       func() time.Time
}

// New returns an arm with every joint at zero.
func New() *Arm {
	a := &Arm{
		joints: make(map[Joint]float64, len(limits)),
		now:    time.Now,
	}
	for _, j := range Joints() {
		a.joints[j] = 0
	}
	return a
}

// OnChange registers a listener. Listeners run synchronously on the writer's
// goroutine, after the arm lock is released.
func (a *Arm) OnChange(l Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// State returns a snapshot of the arm.
func (a *Arm) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot()
}

func (a *Arm) snapshot() State {
	joints := make(map[Joint]float64, len(a.joints))
	for j, v := range a.joints {
		joints[j] = v
	}
	return State{Joints: joints, Source: a.source, UpdatedAt: a.updatedAt}
}

// Set moves a joint to the given angle, clamped to its limit, and returns the
// angle actually applied.
func (a *Arm) Set(j Joint, degrees float64, source Source) (float64, error) {
	l, ok := limits[j]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownJoint, "%q", string(j))
	}
	if math.IsNaN(degrees) || math.IsInf(degrees, 0) {
		return 0, errors.Errorf("joint %s: non-finite angle", j)
	}

	a.mu.Lock()
	applied := l.Clamp(degrees)
	a.joints[j] = applied
	a.touch(source)
	state, listeners := a.snapshot(), a.listeners
	a.mu.Unlock()

	notify(listeners, state)
	return applied, nil
}

// Step moves a joint by StepDegrees in the given direction (positive or
// negative) and returns the new angle.
func (a *Arm) Step(j Joint, direction int, source Source) (float64, error) {
	l, ok := limits[j]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownJoint, "%q", string(j))
	}
	if direction == 0 {
		return 0, errors.New("step direction must be non-zero")
	}
	delta := StepDegrees
	if direction < 0 {
		delta = -StepDegrees
	}

	a.mu.Lock()
	applied := l.Clamp(a.joints[j] + delta)
	a.joints[j] = applied
	a.touch(source)
	state, listeners := a.snapshot(), a.listeners
	a.mu.Unlock()

	notify(listeners, state)
	return applied, nil
}

// Apply writes vision commands through a binding. Channels without a bound
// joint are ignored. Listeners fire once for the whole batch.
func (a *Arm) Apply(commands kinematics.Commands, binding Binding) State {
	a.mu.Lock()
	changed := false
	for ch, v := range commands {
		j, ok := binding[ch]
		if !ok {
			continue
		}
		l, ok := limits[j]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		a.joints[j] = l.Clamp(v)
		changed = true
	}
	if changed {
		a.touch(SourceVision)
	}
	state, listeners := a.snapshot(), a.listeners
	a.mu.Unlock()

	if changed {
		notify(listeners, state)
	}
	return state
}

// Reset returns every joint to zero.
func (a *Arm) Reset(source Source) {
	a.mu.Lock()
	for j := range a.joints {
		a.joints[j] = 0
	}
	a.touch(source)
	state, listeners := a.snapshot(), a.listeners
	a.mu.Unlock()

	notify(listeners, state)
}

func (a *Arm) touch(source Source) {
	a.source = source
	a.updatedAt = a.now()
}

func notify(listeners []Listener, s State) {
	for _, l := range listeners {
		l(s)
	}
}
