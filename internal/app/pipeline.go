package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/armmirror/internal/arm"
	"github.com/ayusman/armmirror/internal/calibrate"
	"github.com/ayusman/armmirror/internal/capture"
	"github.com/ayusman/armmirror/internal/detector"
	"github.com/ayusman/armmirror/internal/kinematics"
)

// ReasonDetectorError marks a frame the pose detector failed on.
const ReasonDetectorError kinematics.Reason = "detector_error"

func (a *App) activeFPS() int {
	if a.config.Camera.FPS > 0 {
		return a.config.Camera.FPS
	}
	return capture.DefaultFPS
}

func frameInterval(fps int) time.Duration {
	if fps <= 0 {
		fps = 1
	}
	return time.Second / time.Duration(fps)
}

// captureLoop reads frames at the camera's current rate and hands them to
// the processing loop through slot. It follows rate changes made by the
// processing loop.
func (a *App) captureLoop(ctx context.Context, slot *frameSlot) {
	defer slot.close()

	fps := a.camera.FPS()
	ticker := time.NewTicker(frameInterval(fps))
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if cur := a.camera.FPS(); cur != fps {
			fps = cur
			ticker.Reset(frameInterval(fps))
		}

		frame, err := a.camera.ReadFrame()
		if err != nil {
			if !failing {
				log.Printf("Error reading frame: %v", err)
				failing = true
			}
			continue
		}
		if failing {
			log.Println("Camera frames resumed")
			failing = false
		}
		slot.put(frame)
	}
}

// processLoop runs every frame the capture loop delivers through the
// tracking pipeline. Frames that arrive while one is being processed are
// dropped in favour of the newest.
func (a *App) processLoop(ctx context.Context, slot *frameSlot) {
	active := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-slot.ready:
		}

		frame := slot.take()
		if frame == nil {
			continue
		}
		active = a.processFrame(frame, active)
		frame.Close()
	}
}

// processFrame handles one captured frame and returns the new activity state.
//
// Steps:
//  1. Keep a copy for the preview stream
//  2. Motion gate: switch between the active and idle capture rate
//  3. Skip detection when tracking is off or the scene is idle
//  4. Detect the pose and run the kinematics pipeline
func (a *App) processFrame(frame *gocv.Mat, wasActive bool) bool {
	a.storePreview(frame)

	active := a.gate.Observe(frame)
	if active != wasActive {
		if active {
			a.camera.SetFPS(a.activeFPS())
			log.Println("Switched to active mode")
		} else {
			a.camera.SetFPS(capture.DefaultIdleFPS)
			log.Println("Switched to idle mode")
		}
	}

	if !active || !a.IsEnabled() {
		return active
	}

	d := a.Detector()
	if d == nil {
		return active
	}
	poses, err := d.Detect(frame)
	if err != nil {
		a.publish(kinematics.NotDetected{Reason: ReasonDetectorError}, a.arm.State())
		return active
	}
	a.ProcessPoses(poses)
	return active
}

func (a *App) storePreview(frame *gocv.Mat) {
	clone := frame.Clone()
	a.mu.Lock()
	old := a.preview
	a.preview = &clone
	a.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

// ProcessPoses runs the best pose through the pipeline and applies the result
// to the arm, as if the poses had been detected in a camera frame. A frame
// without a usable arm leaves the arm where it was. Recorded sessions are
// replayed through here.
func (a *App) ProcessPoses(poses []detector.PoseLandmarks) kinematics.Outcome {
	a.mu.RLock()
	pipeline := a.pipeline
	binding := a.binding
	a.mu.RUnlock()

	outcome := pipeline.Process(bestPose(poses))

	var state arm.State
	switch o := outcome.(type) {
	case kinematics.Detected:
		state = a.arm.Apply(o.Commands, binding)
		a.mu.Lock()
		a.lastSide = o.Side
		a.mu.Unlock()
		a.record(o.Raw)
	default:
		state = a.arm.State()
	}

	a.publish(outcome, state)
	return outcome
}

// bestPose returns the most confident pose, or nil when there is none.
func bestPose(poses []detector.PoseLandmarks) *detector.PoseLandmarks {
	var best *detector.PoseLandmarks
	for i := range poses {
		if best == nil || poses[i].Score > best.Score {
			best = &poses[i]
		}
	}
	return best
}

// record appends raw angles to the active profile while recording. A
// storage failure stops recording.
func (a *App) record(raw kinematics.ArmAngles) {
	a.mu.RLock()
	recording, profileID := a.recording, a.profileID
	a.mu.RUnlock()
	if !recording {
		return
	}

	data, err := json.Marshal(calibrate.Sample{Angles: raw, Timestamp: time.Now().UnixMilli()})
	if err == nil {
		err = a.config.Store.Samples().Append(profileID, []json.RawMessage{data})
	}
	if err != nil {
		log.Printf("Recording stopped: %v", err)
		a.mu.Lock()
		a.recording = false
		a.mu.Unlock()
		return
	}

	a.mu.Lock()
	a.recorded++
	a.mu.Unlock()
}

func (a *App) publish(outcome kinematics.Outcome, state arm.State) {
	a.mu.RLock()
	subs := a.subscribers
	a.mu.RUnlock()

	ev := Event{Outcome: outcome, State: state, At: time.Now()}
	for _, s := range subs {
		s(ev)
	}
}
