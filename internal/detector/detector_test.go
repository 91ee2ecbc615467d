package detector

import (
	"errors"
	"testing"
)

func TestPoseLandmarks_Visible(t *testing.T) {
	pose := ArmDownLandmarks()

	tests := []struct {
		name      string
		pose      *PoseLandmarks
		index     int
		threshold float64
		want      bool
	}{
		{name: "visible shoulder", pose: &pose, index: RightShoulder, threshold: 0.5, want: true},
		{name: "threshold is exclusive", pose: &pose, index: RightShoulder, threshold: 0.9, want: false},
		{name: "negative index", pose: &pose, index: -1, threshold: 0.5, want: false},
		{name: "index past the end", pose: &pose, index: NumLandmarks, threshold: 0.5, want: false},
		{name: "nil pose", pose: nil, index: RightShoulder, threshold: 0.5, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pose.Visible(tt.index, tt.threshold); got != tt.want {
				t.Errorf("Visible(%d, %.2f) = %v, want %v", tt.index, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestMockDetector(t *testing.T) {
	t.Run("returns empty poses by default", func(t *testing.T) {
		mock := NewMockDetector()

		poses, err := mock.Detect(nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if poses != nil {
			t.Errorf("expected nil poses, got %v", poses)
		}
	})

	t.Run("returns configured poses", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetPoses([]PoseLandmarks{ArmRaisedLandmarks(), ArmDownLandmarks()})

		poses, err := mock.Detect(nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if len(poses) != 2 {
			t.Errorf("expected 2 poses, got %d", len(poses))
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()

		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		poses, err := mock.Detect(nil)

		if err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if poses != nil {
			t.Errorf("expected nil poses when error is set, got %v", poses)
		}
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
	})
}

func TestPresetPoses(t *testing.T) {
	t.Run("raised arm has elbow above shoulder", func(t *testing.T) {
		p := ArmRaisedLandmarks()
		if p.Points[RightElbow].Y >= p.Points[RightShoulder].Y {
			t.Error("elbow should be above shoulder (lower Y value)")
		}
		if p.Points[RightWrist].Y >= p.Points[RightElbow].Y {
			t.Error("wrist should be above elbow (lower Y value)")
		}
	})

	t.Run("lowered arm has elbow below shoulder", func(t *testing.T) {
		p := ArmDownLandmarks()
		if p.Points[RightElbow].Y <= p.Points[RightShoulder].Y {
			t.Error("elbow should be below shoulder (higher Y value)")
		}
	})

	t.Run("outstretched arm is level", func(t *testing.T) {
		p := ArmOutstretchedLandmarks()
		if p.Points[RightElbow].Y != p.Points[RightShoulder].Y || p.Points[RightWrist].Y != p.Points[RightShoulder].Y {
			t.Error("shoulder, elbow and wrist should share the same Y value")
		}
	})

	t.Run("left arm preset hides the right arm", func(t *testing.T) {
		p := LeftArmRaisedLandmarks()
		if p.Visible(RightShoulder, 0.5) {
			t.Error("right shoulder should not be visible")
		}
		if !p.Visible(LeftShoulder, 0.5) {
			t.Error("left shoulder should be visible")
		}
	})

	t.Run("low visibility preset is below threshold everywhere", func(t *testing.T) {
		p := LowVisibilityLandmarks()
		for i := 0; i < NumLandmarks; i++ {
			if p.Visible(i, 0.5) {
				t.Errorf("landmark %d should not be visible", i)
			}
		}
	})
}

func TestDecodeResponse(t *testing.T) {
	t.Run("decodes poses", func(t *testing.T) {
		line := []byte(`{"poses": [{"landmarks": [{"x": 0.1, "y": 0.2, "z": 0.0, "visibility": 0.9}], "score": 0.8}]}` + "\n")

		poses, err := decodeResponse(line)
		if err != nil {
			t.Fatalf("decodeResponse() error = %v", err)
		}
		if len(poses) != 1 {
			t.Fatalf("expected 1 pose, got %d", len(poses))
		}
		if poses[0].Score != 0.8 {
			t.Errorf("expected score 0.8, got %f", poses[0].Score)
		}
		if poses[0].Points[Nose].X != 0.1 || poses[0].Points[Nose].Visibility != 0.9 {
			t.Errorf("unexpected nose landmark: %+v", poses[0].Points[Nose])
		}
		if poses[0].Points[RightShoulder].Visibility != 0 {
			t.Error("missing landmarks should have zero visibility")
		}
	})

	t.Run("service error", func(t *testing.T) {
		if _, err := decodeResponse([]byte(`{"error": "model not loaded"}`)); err == nil {
			t.Error("expected error for service error response")
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		if _, err := decodeResponse([]byte(`{invalid`)); err == nil {
			t.Error("expected error for invalid JSON")
		}
	})
}
