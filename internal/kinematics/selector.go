// Package kinematics converts detected body landmarks into smoothed joint
// angles and maps them onto actuator ranges.
//
// The flow for one frame is Select -> Extract -> Smooth -> Map, driven by a
// Pipeline. Every stage except the smoother is a pure function.
package kinematics

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/ayusman/armmirror/internal/detector"
)

// VisibilityThreshold is the confidence every required landmark must exceed.
const VisibilityThreshold = 0.5

// Side identifies the tracked arm from the subject's point of view.
type Side string

const (
	SideRight Side = "right"
	SideLeft  Side = "left"
)

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

// Validate reports whether s names a side.
func (s Side) Validate() error {
	switch s {
	case SideRight, SideLeft:
		return nil
	}
	return errors.Errorf("invalid side %q", string(s))
}

// armIndices returns the shoulder, elbow and wrist landmark indices for a side.
func (s Side) armIndices() (shoulder, elbow, wrist int) {
	if s == SideLeft {
		return detector.LeftShoulder, detector.LeftElbow, detector.LeftWrist
	}
	return detector.RightShoulder, detector.RightElbow, detector.RightWrist
}

// MirrorPolicy names the arm whose landmarks are reflected horizontally
// before angles are measured, so that both arms report the same convention.
type MirrorPolicy string

const (
	MirrorNone  MirrorPolicy = "none"
	MirrorLeft  MirrorPolicy = "left"
	MirrorRight MirrorPolicy = "right"
)

// Validate reports whether p is a known policy.
func (p MirrorPolicy) Validate() error {
	switch p {
	case MirrorNone, MirrorLeft, MirrorRight:
		return nil
	}
	return errors.Errorf("invalid mirror policy %q", string(p))
}

// Reflects reports whether landmarks of the given side are reflected.
func (p MirrorPolicy) Reflects(s Side) bool {
	return (p == MirrorLeft && s == SideLeft) || (p == MirrorRight && s == SideRight)
}

// Reason explains why a frame produced no angles.
type Reason string

const (
	// ReasonNoPose means the detector found nobody in the frame.
	ReasonNoPose Reason = "no_pose"
	// ReasonLowVisibility means no arm had every landmark above the threshold.
	ReasonLowVisibility Reason = "low_visibility"
)

// ArmPoints are the three landmarks of the selected arm.
type ArmPoints struct {
	Side     Side
	Shoulder detector.Landmark
	Elbow    detector.Landmark
	Wrist    detector.Landmark
}

func (a ArmPoints) vectors() (shoulder, elbow, wrist r2.Point) {
	return r2.Point{X: a.Shoulder.X, Y: a.Shoulder.Y},
		r2.Point{X: a.Elbow.X, Y: a.Elbow.Y},
		r2.Point{X: a.Wrist.X, Y: a.Wrist.Y}
}

// Select picks the arm to track from a detected pose.
//
// The preferred side wins if its shoulder is visible, otherwise the other
// side is tried. The chosen arm's elbow and wrist must also be visible; a
// frame that fails any of these checks yields no arm at all.
func Select(pose *detector.PoseLandmarks, preferred Side) (ArmPoints, Reason, bool) {
	if pose == nil {
		return ArmPoints{}, ReasonNoPose, false
	}
	if preferred.Validate() != nil {
		preferred = SideRight
	}

	side := preferred
	shoulder, _, _ := side.armIndices()
	if !pose.Visible(shoulder, VisibilityThreshold) {
		side = preferred.Other()
		shoulder, _, _ = side.armIndices()
		if !pose.Visible(shoulder, VisibilityThreshold) {
			return ArmPoints{}, ReasonLowVisibility, false
		}
	}

	shoulder, elbow, wrist := side.armIndices()
	if !pose.Visible(elbow, VisibilityThreshold) || !pose.Visible(wrist, VisibilityThreshold) {
		return ArmPoints{}, ReasonLowVisibility, false
	}

	return ArmPoints{
		Side:     side,
		Shoulder: pose.Points[shoulder],
		Elbow:    pose.Points[elbow],
		Wrist:    pose.Points[wrist],
	}, "", true
}
