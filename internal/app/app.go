// Package app wires the camera, pose detector, arm pipeline and sinks into
// the running arm mirror.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/armmirror/internal/arm"
	"github.com/ayusman/armmirror/internal/capture"
	"github.com/ayusman/armmirror/internal/detector"
	"github.com/ayusman/armmirror/internal/kinematics"
	"github.com/ayusman/armmirror/internal/plugin"
	"github.com/ayusman/armmirror/internal/sink"
	"github.com/ayusman/armmirror/internal/store"
)

// Config holds configuration options for the application.
type Config struct {
	Store     *store.Store
	PluginDir string
	Camera    capture.Config
	Detector  detector.Config

	// MotionThresh is the percentage of changed pixels that counts as motion.
	MotionThresh float64
	// IdleAfter is how long the scene must be still before capture slows to
	// the idle rate.
	IdleAfter time.Duration
	// SinkInterval is the shortest gap between two sends to a sink.
	SinkInterval  time.Duration
	PluginTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Camera:        capture.DefaultConfig(),
		Detector:      detector.DefaultConfig(),
		MotionThresh:  capture.DefaultMotionThreshold,
		IdleAfter:     capture.DefaultIdleAfter,
		SinkInterval:  sink.DefaultInterval,
		PluginTimeout: 5 * time.Second,
	}
}

// Event is published to subscribers for every processed frame.
type Event struct {
	Outcome kinematics.Outcome
	State   arm.State
	At      time.Time
}

// Subscriber receives events on the processing goroutine and must not block.
type Subscriber func(Event)

// App is the main application that turns camera frames into arm motion.
type App struct {
	config     Config
	camera     capture.Camera
	motion     *capture.MotionDetector
	gate       *capture.MotionGate
	detector   detector.Detector
	arm        *arm.Arm
	dispatcher *sink.Dispatcher
	pluginMgr  *plugin.Manager
	pluginExec *plugin.Executor

	mu          sync.RWMutex
	pipeline    *kinematics.Pipeline
	profileID   string
	binding     arm.Binding
	enabled     bool
	recording   bool
	recorded    int
	lastSide    kinematics.Side
	subscribers []Subscriber
	preview     *gocv.Mat

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	def := DefaultConfig()
	if config.MotionThresh <= 0 {
		config.MotionThresh = def.MotionThresh
	}
	if config.IdleAfter <= 0 {
		config.IdleAfter = def.IdleAfter
	}
	if config.PluginTimeout <= 0 {
		config.PluginTimeout = def.PluginTimeout
	}
	if config.Detector == (detector.Config{}) {
		config.Detector = def.Detector
	}

	motion := capture.NewMotionDetector(config.MotionThresh)
	pipeline, _ := kinematics.NewPipeline(kinematics.DefaultConfig())

	a := &App{
		config:     config,
		camera:     capture.NewCamera(config.Camera),
		motion:     motion,
		gate:       capture.NewMotionGate(motion, config.IdleAfter),
		arm:        arm.New(),
		dispatcher: sink.NewDispatcher(config.SinkInterval),
		pluginMgr:  plugin.NewManager(config.PluginDir),
		pluginExec: plugin.NewExecutor(config.PluginTimeout),
		pipeline:   pipeline,
		binding:    arm.DefaultBinding(),
	}

	// Try MediaPipe first, fall back to mock detector
	if mp, err := detector.NewMediaPipeDetector(config.Detector); err == nil {
		a.detector = mp
		log.Println("Using MediaPipe pose detection")
	} else {
		log.Printf("MediaPipe not available (%v), using mock detector", err)
		a.detector = detector.NewMockDetector()
	}

	a.arm.OnChange(a.dispatcher.Offer)
	return a
}

// Load restores persisted state: the tracking flag, the joint binding, the
// active profile, discovered plugins and the enabled sinks. Missing pieces
// fall back to defaults; only storage failures are returned.
func (a *App) Load() error {
	if err := a.pluginMgr.Discover(); err != nil {
		log.Printf("Plugin discovery failed: %v", err)
	}

	s := a.config.Store
	if s == nil {
		return nil
	}

	a.mu.Lock()
	a.enabled = s.Settings().GetBool(store.SettingTrackingEnabled, false)
	a.mu.Unlock()

	if raw, err := s.Settings().Get(store.SettingBinding); err == nil {
		var b arm.Binding
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			log.Printf("Ignoring stored binding: %v", err)
		} else if err := a.SetBinding(b); err != nil {
			log.Printf("Ignoring stored binding: %v", err)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load binding: %w", err)
	}

	p, err := s.Profiles().Active()
	switch {
	case err == nil:
		if err := a.ActivateProfile(p.ID); err != nil {
			log.Printf("Failed to activate profile %s: %v", p.Name, err)
		}
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("load active profile: %w", err)
	}

	return a.LoadSinks()
}

// LoadSinks rebuilds the sink set from the enabled sink records. A sink that
// cannot be built is logged and skipped.
func (a *App) LoadSinks() error {
	if a.config.Store == nil {
		return nil
	}
	records, err := a.config.Store.Sinks().List()
	if err != nil {
		return fmt.Errorf("load sinks: %w", err)
	}

	for _, name := range a.dispatcher.Names() {
		a.dispatcher.Remove(name)
	}

	loaded := 0
	for _, rec := range records {
		if !rec.Enabled {
			continue
		}
		if err := a.AddSink(rec); err != nil {
			log.Printf("Skipping sink %s: %v", rec.Name, err)
			continue
		}
		loaded++
	}
	log.Printf("Loaded %d sinks from database", loaded)
	return nil
}

// AddSink builds a sink from a stored record and starts feeding it.
func (a *App) AddSink(rec *store.SinkRecord) error {
	raw, err := rec.ConfigMap()
	if err != nil {
		return err
	}
	s, err := sink.FromConfig(rec.Kind, rec.Name, raw, sink.Deps{
		Plugins:  a.pluginMgr,
		Executor: a.pluginExec,
	})
	if err != nil {
		return err
	}
	a.dispatcher.Add(s)
	return nil
}

// ActivateProfile loads a profile from the store, marks it active and swaps
// in a fresh pipeline built from it. Smoothing starts over.
func (a *App) ActivateProfile(id string) error {
	s := a.config.Store
	if s == nil {
		return errors.New("no store configured")
	}
	p, err := s.Profiles().GetByID(id)
	if err != nil {
		return err
	}
	chans, err := s.Profiles().Channels(id)
	if err != nil {
		return err
	}
	if len(chans) == 0 {
		chans = store.DefaultChannels()
	}

	pipeline, err := kinematics.NewPipeline(p.PipelineConfig(chans))
	if err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	if !p.Active {
		if err := s.Profiles().SetActive(id); err != nil {
			return err
		}
	}

	a.mu.Lock()
	a.pipeline = pipeline
	a.profileID = id
	a.recording = false
	a.mu.Unlock()

	log.Printf("Activated profile %s", p.Name)
	return nil
}

// SetPipelineConfig replaces the pipeline without touching the store.
func (a *App) SetPipelineConfig(config kinematics.Config) error {
	pipeline, err := kinematics.NewPipeline(config)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.pipeline = pipeline
	a.mu.Unlock()
	return nil
}

// ActiveProfileID returns the ID of the active profile, or "" if the
// defaults are in use.
func (a *App) ActiveProfileID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.profileID
}

// SetBinding changes which joints the channels drive and persists it.
func (a *App) SetBinding(b arm.Binding) error {
	if err := b.Validate(); err != nil {
		return err
	}
	copied := make(arm.Binding, len(b))
	for ch, j := range b {
		copied[ch] = j
	}

	a.mu.Lock()
	a.binding = copied
	a.mu.Unlock()

	if a.config.Store == nil {
		return nil
	}
	data, err := json.Marshal(copied)
	if err != nil {
		return err
	}
	return a.config.Store.Settings().Set(store.SettingBinding, string(data))
}

// Binding returns a copy of the channel to joint routing.
func (a *App) Binding() arm.Binding {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b := make(arm.Binding, len(a.binding))
	for ch, j := range a.binding {
		b[ch] = j
	}
	return b
}

// SetEnabled turns vision tracking on or off and persists the choice.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	changed := a.enabled != enabled
	a.enabled = enabled
	pipeline := a.pipeline
	a.mu.Unlock()

	if !changed {
		return
	}
	if enabled {
		// Stale smoothing would drag the arm toward where it was when paused.
		pipeline.Reset()
		a.gate.Wake()
	}
	if a.config.Store != nil {
		if err := a.config.Store.Settings().SetBool(store.SettingTrackingEnabled, enabled); err != nil {
			log.Printf("Failed to persist tracking state: %v", err)
		}
	}
	log.Printf("Tracking enabled: %v", enabled)
}

// IsEnabled returns whether vision tracking is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// StartRecording begins appending the raw angles of every tracked frame to
// the active profile's samples.
func (a *App) StartRecording() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.config.Store == nil || a.profileID == "" {
		return errors.New("recording needs an active profile")
	}
	a.recording = true
	a.recorded = 0
	return nil
}

// StopRecording ends recording and returns how many samples were stored.
func (a *App) StopRecording() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recording = false
	return a.recorded
}

// IsRecording reports whether samples are being recorded.
func (a *App) IsRecording() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.recording
}

// Subscribe registers a subscriber for processed frames.
func (a *App) Subscribe(s Subscriber) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscribers = append(a.subscribers, s)
}

// LastSide returns the side tracked in the most recent detected frame.
func (a *App) LastSide() kinematics.Side {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastSide
}

// SetDetector sets the pose detector implementation to use.
func (a *App) SetDetector(d detector.Detector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector = d
}

// Detector returns the pose detector.
func (a *App) Detector() detector.Detector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector
}

// SetCamera replaces the camera. It has no effect while running.
func (a *App) SetCamera(c capture.Camera) {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.cancel == nil {
		a.camera = c
	}
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Arm returns the arm model.
func (a *App) Arm() *arm.Arm {
	return a.arm
}

// Sinks returns the sink dispatcher.
func (a *App) Sinks() *sink.Dispatcher {
	return a.dispatcher
}

// PluginManager returns the plugin manager.
func (a *App) PluginManager() *plugin.Manager {
	return a.pluginMgr
}

// Preview returns a copy of the most recently processed frame. The caller
// must close it.
func (a *App) Preview() (*gocv.Mat, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.preview == nil || a.preview.Empty() {
		return nil, false
	}
	m := a.preview.Clone()
	return &m, true
}

// Start opens the camera and begins capture, processing and sink delivery.
func (a *App) Start() error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	// Don't start if already running
	if a.cancel != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}
	a.camera.SetFPS(a.activeFPS())

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	slot := newFrameSlot()

	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		a.captureLoop(ctx, slot)
	}()
	go func() {
		defer a.wg.Done()
		a.processLoop(ctx, slot)
	}()
	go func() {
		defer a.wg.Done()
		a.dispatcher.Run(ctx)
	}()

	log.Println("Tracking pipeline started")
	return nil
}

// Stop halts the pipeline and releases the camera. The app can be started
// again.
func (a *App) Stop() {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.cancel == nil {
		return
	}
	a.cancel()
	a.wg.Wait()
	a.cancel = nil

	if err := a.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}
	a.motion.Reset()

	log.Println("Tracking pipeline stopped")
}

// Close stops the pipeline and releases every resource.
func (a *App) Close() {
	a.Stop()

	a.motion.Close()
	if err := a.dispatcher.Close(); err != nil {
		log.Printf("Error closing sinks: %v", err)
	}
	if d := a.Detector(); d != nil {
		if err := d.Close(); err != nil {
			log.Printf("Error closing detector: %v", err)
		}
	}

	a.mu.Lock()
	if a.preview != nil {
		a.preview.Close()
		a.preview = nil
	}
	a.mu.Unlock()
}
