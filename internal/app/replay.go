package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ayusman/armmirror/internal/detector"
	"github.com/ayusman/armmirror/internal/kinematics"
)

// Frame is one recorded detection cycle.
type Frame struct {
	Poses     []detector.PoseLandmarks `json:"poses"`
	Timestamp int64                    `json:"timestamp"`
}

// ReadRecording decodes a JSON array of recorded frames.
func ReadRecording(r io.Reader) ([]Frame, error) {
	var frames []Frame
	if err := json.NewDecoder(r).Decode(&frames); err != nil {
		return nil, fmt.Errorf("decode recording: %w", err)
	}
	return frames, nil
}

// Replay feeds recorded frames through ProcessPoses, waiting interval
// between frames, then flushes the sinks. It stops early if ctx is done.
func (a *App) Replay(ctx context.Context, frames []Frame, interval time.Duration) ([]kinematics.Outcome, error) {
	outcomes := make([]kinematics.Outcome, 0, len(frames))
	for i, f := range frames {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return outcomes, ctx.Err()
			case <-time.After(interval):
			}
		} else if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, a.ProcessPoses(f.Poses))
	}
	a.dispatcher.Flush(ctx)
	return outcomes, nil
}
