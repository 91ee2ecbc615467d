package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Motion detection constants
const (
	// BlurSize is the Gaussian kernel size used to suppress sensor noise.
	BlurSize = 21
	// PixelDiffThreshold is the grey-level change that marks a pixel as moved.
	PixelDiffThreshold = 25
	// DefaultMotionThreshold is the share of moved pixels, in percent, that
	// counts as motion.
	DefaultMotionThreshold = 1.0
	// DefaultIdleAfter is how long the scene must stay still before the
	// gate reports idle.
	DefaultIdleAfter = 5 * time.Second
)

// MotionDetector detects motion between consecutive video frames
// using frame differencing on blurred greyscale images.
type MotionDetector struct {
	threshold   float64
	prevGray    gocv.Mat
	initialized bool
	mu          sync.Mutex
}

// NewMotionDetector creates a new MotionDetector with the given threshold,
// the percentage of pixels that must change to count as motion.
func NewMotionDetector(threshold float64) *MotionDetector {
	if threshold <= 0 {
		threshold = DefaultMotionThreshold
	}
	return &MotionDetector{
		threshold: threshold,
		prevGray:  gocv.NewMat(),
	}
}

// Detect compares a frame with the previous one and reports whether motion
// was seen, along with the percentage of changed pixels. The first frame
// after creation or Reset only sets the baseline.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	grayBlur(frame, &blurred)

	if !m.initialized {
		blurred.CopyTo(&m.prevGray)
		m.initialized = true
		return false, 0
	}

	// A resolution change invalidates the baseline.
	if blurred.Rows() != m.prevGray.Rows() || blurred.Cols() != m.prevGray.Cols() {
		blurred.CopyTo(&m.prevGray)
		return false, 0
	}

	percent := changedPercent(blurred, m.prevGray)
	blurred.CopyTo(&m.prevGray)

	return percent > m.threshold, percent
}

// grayBlur converts frame to a blurred single-channel image.
func grayBlur(frame *gocv.Mat, dst *gocv.Mat) {
	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}
	gocv.GaussianBlur(gray, dst, image.Point{X: BlurSize, Y: BlurSize}, 0, 0, gocv.BorderDefault)
}

// changedPercent returns the share of pixels whose grey level moved by more
// than PixelDiffThreshold.
func changedPercent(a, b gocv.Mat) float64 {
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(a, b, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, PixelDiffThreshold, 255, gocv.ThresholdBinary)

	total := thresh.Rows() * thresh.Cols()
	if total == 0 {
		return 0
	}
	return float64(gocv.CountNonZero(thresh)) / float64(total) * 100.0
}

// Reset clears the baseline so the next frame starts a new comparison.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

// Close releases resources used by the motion detector.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

func (m *MotionDetector) release() {
	if !m.prevGray.Empty() {
		m.prevGray.Close()
		m.prevGray = gocv.NewMat()
	}
	m.initialized = false
}

// SetThreshold sets the motion threshold in percent.
// Values less than or equal to 0 are ignored.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.threshold = threshold
}

// MotionGate decides whether the capture loop should run at its active or
// idle rate. It stays active for IdleAfter after the last motion.
type MotionGate struct {
	detector  *MotionDetector
	idleAfter time.Duration
	now       func() time.Time

	mu         sync.Mutex
	lastMotion time.Time
}

// NewMotionGate wraps a detector. The gate starts active.
func NewMotionGate(detector *MotionDetector, idleAfter time.Duration) *MotionGate {
	if idleAfter <= 0 {
		idleAfter = DefaultIdleAfter
	}
	g := &MotionGate{detector: detector, idleAfter: idleAfter, now: time.Now}
	g.lastMotion = g.now()
	return g
}

// Observe feeds a frame to the detector and reports whether the scene is active.
func (g *MotionGate) Observe(frame *gocv.Mat) bool {
	moved, _ := g.detector.Detect(frame)
	return g.record(moved)
}

func (g *MotionGate) record(moved bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if moved {
		g.lastMotion = now
	}
	return now.Sub(g.lastMotion) < g.idleAfter
}

// Wake marks the scene active without a frame, e.g. after tracking resumes.
func (g *MotionGate) Wake() {
	g.record(true)
}
