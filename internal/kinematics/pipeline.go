package kinematics

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/ayusman/armmirror/internal/detector"
)

// Config holds configuration options for a Pipeline.
type Config struct {
	// SmoothingFactor is the EMA blend weight in (0, 1]. Smaller values
	// smooth more and lag more.
	SmoothingFactor float64

	// PreferredSide is tracked whenever its shoulder is visible.
	PreferredSide Side

	// Mirror selects which arm is reflected before measuring.
	Mirror MirrorPolicy

	// Calibrations maps each commanded channel onto its actuator range.
	// Channels without a calibration are measured but not commanded.
	Calibrations map[Channel]Calibration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		SmoothingFactor: DefaultSmoothingFactor,
		PreferredSide:   SideRight,
		Mirror:          MirrorLeft,
		Calibrations:    DefaultCalibrations(),
	}
}

// Validate checks every setting so that a running pipeline never meets a
// bad configuration.
func (c Config) Validate() error {
	if err := ValidateFactor(c.SmoothingFactor); err != nil {
		return err
	}
	if err := c.PreferredSide.Validate(); err != nil {
		return errors.Wrap(err, "preferred side")
	}
	if err := c.Mirror.Validate(); err != nil {
		return err
	}
	for ch, cal := range c.Calibrations {
		if ch < 0 || ch >= NumChannels {
			return errors.Errorf("calibration for unknown channel %d", int(ch))
		}
		if err := cal.Validate(); err != nil {
			return errors.Wrapf(err, "channel %s", ch)
		}
	}
	return nil
}

// Commands are actuator values, in degrees, keyed by the channel that produced them.
type Commands map[Channel]float64

// Outcome is the result of processing one frame: either Detected or NotDetected.
type Outcome interface {
	outcome()
}

// Detected carries the angles and commands for a frame where an arm was tracked.
type Detected struct {
	Side     Side
	Raw      ArmAngles
	Smoothed ArmAngles
	Commands Commands
}

// NotDetected means the frame produced no update; callers keep the previous command.
type NotDetected struct {
	Reason Reason
}

func (Detected) outcome()    {}
func (NotDetected) outcome() {}

// Pipeline turns pose frames into actuator commands.
//
// A Pipeline owns its smoothing state. Process and Reset serialize on an
// internal mutex, so frames from several goroutines are folded in one at a time.
type Pipeline struct {
	mu        sync.Mutex
	config    Config
	extractor Extractor
	smoothers [NumChannels]*EMA
}

// NewPipeline validates config and returns a ready pipeline.
func NewPipeline(config Config) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "pipeline config")
	}

	cals := make(map[Channel]Calibration, len(config.Calibrations))
	for ch, cal := range config.Calibrations {
		cals[ch] = cal
	}
	config.Calibrations = cals

	p := &Pipeline{
		config:    config,
		extractor: Extractor{Mirror: config.Mirror},
	}
	for i := range p.smoothers {
		p.smoothers[i] = NewEMA(config.SmoothingFactor)
	}
	return p, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config {
	return p.config
}

// Process runs one frame through selection, extraction, smoothing and mapping.
func (p *Pipeline) Process(pose *detector.PoseLandmarks) Outcome {
	arm, reason, ok := Select(pose, p.config.PreferredSide)
	if !ok {
		return NotDetected{Reason: reason}
	}

	raw := p.extractor.Extract(arm)

	p.mu.Lock()
	defer p.mu.Unlock()

	var smoothed ArmAngles
	commands := make(Commands, len(p.config.Calibrations))
	for _, ch := range Channels() {
		v, ok := raw.Get(ch)
		if !ok {
			continue
		}
		s := p.smoothers[ch].Update(v)
		smoothed = smoothed.With(ch, s)

		if cal, ok := p.config.Calibrations[ch]; ok {
			commands[ch] = cal.Map(s)
		}
	}

	return Detected{
		Side:     arm.Side,
		Raw:      raw,
		Smoothed: smoothed,
		Commands: commands,
	}
}

// Reset clears all smoothing state.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.smoothers {
		s.Reset()
	}
}
