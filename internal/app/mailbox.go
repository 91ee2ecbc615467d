package app

import (
	"sync"

	"gocv.io/x/gocv"
)

// frameSlot holds at most one frame. A new frame replaces and releases the
// one waiting, so a slow consumer always sees the latest capture.
type frameSlot struct {
	mu     sync.Mutex
	frame  *gocv.Mat
	ready  chan struct{}
	closed bool
}

func newFrameSlot() *frameSlot {
	return &frameSlot{ready: make(chan struct{}, 1)}
}

// put stores frame, taking ownership. It reports whether a waiting frame was
// dropped.
func (s *frameSlot) put(frame *gocv.Mat) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		frame.Close()
		return false
	}
	old := s.frame
	s.frame = frame
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	select {
	case s.ready <- struct{}{}:
	default:
	}
	return old != nil
}

// take removes the waiting frame. The caller owns it.
func (s *frameSlot) take() *gocv.Mat {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.frame
	s.frame = nil
	return f
}

// close releases any waiting frame and rejects further puts.
func (s *frameSlot) close() {
	s.mu.Lock()
	f := s.frame
	s.frame = nil
	s.closed = true
	s.mu.Unlock()
	if f != nil {
		f.Close()
	}
}
