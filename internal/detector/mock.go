package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	poses []PoseLandmarks
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetPoses sets the poses that will be returned by Detect.
func (m *MockDetector) SetPoses(poses []PoseLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poses = poses
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured poses or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]PoseLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.poses, nil
}

// Calls returns how many times Detect has run.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// standingPose returns an upright person facing a non-mirrored camera with both
// arms hanging down. The subject's right side appears on the left of the image.
func standingPose(visibility float64) PoseLandmarks {
	p := PoseLandmarks{Score: 0.95}

	set := func(i int, x, y float64) {
		p.Points[i] = Landmark{X: x, Y: y, Visibility: visibility}
	}

	set(Nose, 0.50, 0.20)
	set(LeftEyeInner, 0.52, 0.18)
	set(LeftEye, 0.53, 0.18)
	set(LeftEyeOuter, 0.54, 0.18)
	set(RightEyeInner, 0.48, 0.18)
	set(RightEye, 0.47, 0.18)
	set(RightEyeOuter, 0.46, 0.18)
	set(LeftEar, 0.56, 0.19)
	set(RightEar, 0.44, 0.19)
	set(MouthLeft, 0.52, 0.24)
	set(MouthRight, 0.48, 0.24)

	set(LeftShoulder, 0.60, 0.40)
	set(RightShoulder, 0.40, 0.40)
	set(LeftElbow, 0.60, 0.55)
	set(RightElbow, 0.40, 0.55)
	set(LeftWrist, 0.60, 0.70)
	set(RightWrist, 0.40, 0.70)
	set(LeftPinky, 0.61, 0.73)
	set(RightPinky, 0.39, 0.73)
	set(LeftIndex, 0.60, 0.74)
	set(RightIndex, 0.40, 0.74)
	set(LeftThumb, 0.59, 0.72)
	set(RightThumb, 0.41, 0.72)

	set(LeftHip, 0.57, 0.70)
	set(RightHip, 0.43, 0.70)
	set(LeftKnee, 0.57, 0.82)
	set(RightKnee, 0.43, 0.82)
	set(LeftAnkle, 0.57, 0.94)
	set(RightAnkle, 0.43, 0.94)
	set(LeftHeel, 0.57, 0.96)
	set(RightHeel, 0.43, 0.96)
	set(LeftFootIndex, 0.58, 0.98)
	set(RightFootIndex, 0.42, 0.98)

	return p
}

// ArmDownLandmarks returns a preset pose with the right arm hanging straight down.
func ArmDownLandmarks() PoseLandmarks {
	return standingPose(0.9)
}

// ArmRaisedLandmarks returns a preset pose with the right arm raised straight up,
// elbow directly above the shoulder and wrist directly above the elbow.
func ArmRaisedLandmarks() PoseLandmarks {
	p := standingPose(0.9)
	p.Points[RightElbow].X, p.Points[RightElbow].Y = 0.40, 0.25
	p.Points[RightWrist].X, p.Points[RightWrist].Y = 0.40, 0.10
	return p
}

// ArmOutstretchedLandmarks returns a preset pose with the right arm held
// straight out to the side, parallel to the ground.
func ArmOutstretchedLandmarks() PoseLandmarks {
	p := standingPose(0.9)
	p.Points[RightElbow].X, p.Points[RightElbow].Y = 0.25, 0.40
	p.Points[RightWrist].X, p.Points[RightWrist].Y = 0.10, 0.40
	return p
}

// ElbowBentLandmarks returns a preset pose with the right upper arm hanging
// down and the forearm held horizontally, a 90 degree bend at the elbow.
func ElbowBentLandmarks() PoseLandmarks {
	p := standingPose(0.9)
	p.Points[RightWrist].X, p.Points[RightWrist].Y = 0.25, 0.55
	return p
}

// LeftArmRaisedLandmarks returns a preset pose where only the left arm is
// visible, raised straight up.
func LeftArmRaisedLandmarks() PoseLandmarks {
	p := standingPose(0.9)
	for _, i := range []int{RightShoulder, RightElbow, RightWrist} {
		p.Points[i].Visibility = 0.2
	}
	p.Points[LeftElbow].X, p.Points[LeftElbow].Y = 0.60, 0.25
	p.Points[LeftWrist].X, p.Points[LeftWrist].Y = 0.60, 0.10
	return p
}

// LowVisibilityLandmarks returns a preset pose where every landmark is below
// the tracking visibility threshold.
func LowVisibilityLandmarks() PoseLandmarks {
	return standingPose(0.3)
}
