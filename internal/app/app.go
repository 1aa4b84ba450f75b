// Package app wires capture, pose detection and the rep counter together.
package app

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/reptrack/internal/capture"
	"github.com/ayusman/reptrack/internal/hook"
	"github.com/ayusman/reptrack/internal/metrics"
	"github.com/ayusman/reptrack/internal/pose"
	"github.com/ayusman/reptrack/internal/rep"
	"github.com/ayusman/reptrack/internal/store"
)

// Pipeline timing constants.
const (
	// IdleFPS is the frame rate when no motion is detected.
	IdleFPS = 5
	// ActiveFPS is the frame rate during active detection.
	ActiveFPS = 15
	// IdleTimeoutMs is the time in milliseconds to wait before switching back to idle mode.
	IdleTimeoutMs = 2000
	// DefaultQueueSize is the number of detection results buffered for the counter.
	DefaultQueueSize = 4
	// DefaultHookTimeoutMs bounds a single hook plugin run.
	DefaultHookTimeoutMs = 5000
)

// Config holds configuration options for the application.
type Config struct {
	Logger        *zap.Logger
	Store         *store.Store
	PluginDir     string
	CameraID      int
	MotionThresh  float64
	QueueSize     int
	HookTimeoutMs int
	Counter       rep.Config
	Pose          pose.Config

	// Camera and Detector override the device camera and the MediaPipe detector.
	Camera   capture.Camera
	Detector pose.Detector
}

// App is the main application: a camera loop producing detection results and
// a single consumer applying them to the rep counter.
type App struct {
	config     Config
	logger     *zap.Logger
	camera     capture.Camera
	gate       *capture.Gate
	detector   pose.Detector
	counter    *rep.Counter
	processor  *Processor
	pluginMgr  *hook.Manager
	dispatcher *hook.Dispatcher

	detections chan pose.Detection
	done       chan struct{}
	consumerWg sync.WaitGroup

	enabled bool
	mu      sync.RWMutex
	stopCh  chan struct{}
	loopWg  sync.WaitGroup

	subMu       sync.RWMutex
	subscribers map[int]func(Event)
	nextSubID   int

	publishMu sync.Mutex
	previewMu sync.RWMutex
	preview   []byte
	lastEvent Event

	closeOnce sync.Once
}

// New creates an App and starts its consumer goroutine. The camera loop is
// started separately with Start.
func New(config Config) (*App, error) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	counterCfg := config.Counter
	if counterCfg == (rep.Config{}) {
		counterCfg = rep.DefaultConfig()
	}
	counter, err := rep.NewCounter(counterCfg)
	if err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}

	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	hookTimeout := config.HookTimeoutMs
	if hookTimeout <= 0 {
		hookTimeout = DefaultHookTimeoutMs
	}

	camera := config.Camera
	if camera == nil {
		camera = capture.NewCamera(config.CameraID)
	}

	gate := capture.NewGate(capture.GateConfig{
		Threshold:   config.MotionThresh,
		IdleFPS:     IdleFPS,
		ActiveFPS:   ActiveFPS,
		IdleTimeout: IdleTimeoutMs * time.Millisecond,
	})

	a := &App{
		config:      config,
		logger:      logger,
		camera:      camera,
		gate:        gate,
		detector:    config.Detector,
		counter:     counter,
		processor:   NewProcessor(counter),
		pluginMgr:   hook.NewManager(config.PluginDir, logger.Named("hook")),
		detections:  make(chan pose.Detection, queueSize),
		done:        make(chan struct{}),
		enabled:     true,
		subscribers: make(map[int]func(Event)),
	}

	if a.detector == nil {
		poseCfg := config.Pose
		if poseCfg == (pose.Config{}) {
			poseCfg = pose.DefaultConfig()
		}
		if mp, err := pose.NewMediaPipeDetector(poseCfg, logger.Named("mediapipe")); err == nil {
			a.detector = mp
			logger.Info("using MediaPipe pose detection")
		} else {
			logger.Warn("MediaPipe not available, using mock detector", zap.Error(err))
			a.detector = pose.NewMockDetector()
		}
	}

	if config.Store != nil {
		a.dispatcher = hook.NewDispatcher(config.Store.Hooks(), a.pluginMgr,
			hook.NewExecutor(hookTimeout), logger.Named("hook"))
	}
	counter.OnUpdate(a.onCounterUpdate)

	a.consumerWg.Add(1)
	go a.consume()

	return a, nil
}

// onCounterUpdate fires hooks for completed reps and resets.
func (a *App) onCounterUpdate(u rep.Update) {
	switch {
	case u.Completed:
		a.logger.Info("rep completed", zap.Int("count", u.State.Count), zap.Float64("angle", u.Angle))
		if a.dispatcher != nil {
			a.dispatcher.Fire(store.HookEventRep, u.State.Count)
		}
	case u.Reset:
		a.logger.Info("count reset")
		if a.dispatcher != nil {
			a.dispatcher.Fire(store.HookEventReset, u.State.Count)
		}
	}
}

// Submit queues one detection result for the counter. It never blocks: when
// the queue is full the result is dropped and Submit returns false.
func (a *App) Submit(d pose.Detection) bool {
	select {
	case <-a.done:
		return false
	default:
	}

	select {
	case a.detections <- d:
		return true
	default:
		metrics.FramesDroppedTotal.Inc()
		return false
	}
}

// consume is the only goroutine that feeds detection results to the counter,
// so results are applied in submission order.
func (a *App) consume() {
	defer a.consumerWg.Done()

	for {
		select {
		case <-a.done:
			return
		case d := <-a.detections:
			a.publish(a.processor.Process(d))
		}
	}
}

// Subscribe registers fn to receive every Event. fn runs on the publishing
// goroutine and must neither block nor call ResetCount. The returned func
// removes the subscription.
func (a *App) Subscribe(fn func(Event)) (unsubscribe func()) {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	id := a.nextSubID
	a.nextSubID++
	a.subscribers[id] = fn

	return func() {
		a.subMu.Lock()
		defer a.subMu.Unlock()
		delete(a.subscribers, id)
	}
}

// publish records ev as the latest event and fans it out. Publishes are
// serialized, and an event from an older counter mutation than the last one
// published is dropped, so a reset is never overwritten by a frame that was
// processed before it.
func (a *App) publish(ev Event) {
	a.publishMu.Lock()
	defer a.publishMu.Unlock()

	a.previewMu.Lock()
	if ev.Update.Seq < a.lastEvent.Update.Seq {
		a.previewMu.Unlock()
		a.logger.Debug("dropping stale event",
			zap.Uint64("seq", ev.Update.Seq), zap.Uint64("last", a.lastEvent.Update.Seq))
		return
	}
	a.lastEvent = ev
	a.previewMu.Unlock()
	metrics.RepCount.Set(float64(ev.Update.State.Count))

	a.subMu.RLock()
	subs := make([]func(Event), 0, len(a.subscribers))
	for _, fn := range a.subscribers {
		subs = append(subs, fn)
	}
	a.subMu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// LastEvent returns the most recently published Event.
func (a *App) LastEvent() Event {
	a.previewMu.RLock()
	defer a.previewMu.RUnlock()
	return a.lastEvent
}

// ResetCount sets the count back to zero and publishes the reset.
func (a *App) ResetCount() rep.State {
	u := a.counter.Reset()

	last := a.LastEvent()
	a.publish(Event{
		Update:    u,
		Overlay:   last.Overlay,
		Absent:    last.Absent,
		Timestamp: time.Now(),
	})
	return u.State
}

// State returns the current rep state.
func (a *App) State() rep.State {
	return a.counter.State()
}

// Thresholds returns the active counter thresholds.
func (a *App) Thresholds() rep.Config {
	return a.counter.Config()
}

// ApplyThresholds validates cfg, applies it to the running counter and
// persists it when a store is configured.
func (a *App) ApplyThresholds(cfg rep.Config) error {
	if err := a.counter.SetConfig(cfg); err != nil {
		return err
	}

	if a.config.Store != nil {
		err := a.config.Store.Settings().SetMany(map[string]string{
			store.SettingUpThreshold:   formatFloat(cfg.UpThreshold),
			store.SettingDownThreshold: formatFloat(cfg.DownThreshold),
		})
		if err != nil {
			return fmt.Errorf("persist thresholds: %w", err)
		}
	}

	a.logger.Info("thresholds updated",
		zap.Float64("up", cfg.UpThreshold), zap.Float64("down", cfg.DownThreshold))
	return nil
}

// LoadSettings applies persisted thresholds to the counter. Missing settings
// and the setting keys listed in skip keep the configured values; invalid
// persisted values are logged and ignored.
func (a *App) LoadSettings(skip ...string) error {
	if a.config.Store == nil {
		return nil
	}

	cfg := a.counter.Config()
	settings := a.config.Store.Settings()

	load := func(key string, dst *float64) error {
		if slices.Contains(skip, key) {
			return nil
		}
		v, err := settings.GetFloat(key)
		switch {
		case err == nil:
			*dst = v
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("load %s: %w", key, err)
		}
		return nil
	}

	if err := load(store.SettingUpThreshold, &cfg.UpThreshold); err != nil {
		return err
	}
	if err := load(store.SettingDownThreshold, &cfg.DownThreshold); err != nil {
		return err
	}

	if err := a.counter.SetConfig(cfg); err != nil {
		a.logger.Warn("ignoring persisted thresholds", zap.Error(err))
		return nil
	}

	a.logger.Info("thresholds loaded",
		zap.Float64("up", cfg.UpThreshold), zap.Float64("down", cfg.DownThreshold))
	return nil
}

// DiscoverPlugins scans the plugin directory and loads available hook plugins.
func (a *App) DiscoverPlugins() error {
	return a.pluginMgr.Discover()
}

// SetEnabled pauses or resumes frame processing.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether frame processing is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Processor returns the processor applying detection results.
func (a *App) Processor() *Processor {
	return a.processor
}

// PluginManager returns the hook plugin manager.
func (a *App) PluginManager() *hook.Manager {
	return a.pluginMgr
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Detector returns the pose detector.
func (a *App) Detector() pose.Detector {
	return a.detector
}

// Close stops the camera loop and the consumer, waits for running hooks and
// releases the detector.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.Stop()

		close(a.done)
		a.consumerWg.Wait()

		if a.dispatcher != nil {
			a.dispatcher.Close()
		}

		a.gate.Close()

		if err := a.detector.Close(); err != nil {
			a.logger.Warn("error closing detector", zap.Error(err))
		}
	})
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
