package app

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/reptrack/internal/capture"
	"github.com/ayusman/reptrack/internal/pose"
	"github.com/ayusman/reptrack/internal/rep"
	"github.com/ayusman/reptrack/internal/store"
)

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()

	if cfg.Detector == nil {
		cfg.Detector = pose.NewMockDetector()
	}
	if cfg.Camera == nil {
		cfg.Camera = capture.NewMockCamera(nil, false)
	}

	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// eventRecorder collects published events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestNew_RejectsInvalidThresholds(t *testing.T) {
	_, err := New(Config{
		Detector: pose.NewMockDetector(),
		Camera:   capture.NewMockCamera(nil, false),
		Counter:  rep.Config{UpThreshold: 170, DownThreshold: 160},
	})
	assert.ErrorIs(t, err, rep.ErrInvalidThresholds)
}

func TestApp_SubmitAppliesInOrder(t *testing.T) {
	a := newTestApp(t, Config{QueueSize: 16})

	rec := &eventRecorder{}
	a.Subscribe(rec.record)

	angles := []float64{170, 40, 170, 40, 170}
	for _, deg := range angles {
		require.True(t, a.Submit(detection(pose.ArmsAtAngle(deg))))
	}

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == len(angles)
	}, 2*time.Second, 10*time.Millisecond)

	events := rec.snapshot()
	for i, deg := range angles {
		assert.InDelta(t, deg, events[i].Update.Angle, 0.01, "event %d out of order", i)
	}
	assert.Equal(t, 2, a.State().Count)
	assert.Equal(t, 2, a.LastEvent().Update.State.Count)
}

func TestApp_SubmitDropsWhenQueueFull(t *testing.T) {
	a := newTestApp(t, Config{QueueSize: 1})

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	a.Subscribe(func(Event) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	})

	require.True(t, a.Submit(detection(pose.HangingLandmarks())))
	<-entered

	assert.True(t, a.Submit(detection(pose.HangingLandmarks())), "queue has room for one")
	assert.False(t, a.Submit(detection(pose.HangingLandmarks())), "full queue drops the result")

	close(release)
}

func TestApp_Unsubscribe(t *testing.T) {
	a := newTestApp(t, Config{})

	rec := &eventRecorder{}
	unsubscribe := a.Subscribe(rec.record)

	a.Submit(detection(pose.HangingLandmarks()))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 10*time.Millisecond)

	unsubscribe()
	a.ResetCount()
	assert.Len(t, rec.snapshot(), 1)
}

func TestApp_ResetCount(t *testing.T) {
	a := newTestApp(t, Config{})

	for _, deg := range []float64{40, 170} {
		a.Submit(detection(pose.ArmsAtAngle(deg)))
	}
	require.Eventually(t, func() bool {
		return a.LastEvent().Update.State.Count == 1
	}, time.Second, 10*time.Millisecond)

	rec := &eventRecorder{}
	a.Subscribe(rec.record)

	state := a.ResetCount()
	assert.Equal(t, rep.State{}, state)
	assert.Equal(t, rep.State{}, a.State())

	var resets []Event
	for _, ev := range rec.snapshot() {
		if ev.Update.Reset {
			resets = append(resets, ev)
		}
	}
	require.Len(t, resets, 1)
	assert.Equal(t, 0, resets[0].Update.State.Count)
	assert.False(t, resets[0].Overlay.Empty(), "reset keeps the last skeleton on screen")
}

func TestApp_ResetDuringProcessWins(t *testing.T) {
	a := newTestApp(t, Config{QueueSize: 8})

	// Reset from inside the counter mutation, before the consumer publishes
	// the completed rep.
	a.Processor().Counter().OnUpdate(func(u rep.Update) {
		if u.Completed {
			a.ResetCount()
		}
	})

	rec := &eventRecorder{}
	a.Subscribe(rec.record)

	for _, deg := range []float64{170, 40, 170} {
		require.True(t, a.Submit(detection(pose.ArmsAtAngle(deg))))
	}
	require.True(t, a.Submit(pose.Detection{}))

	require.Eventually(t, func() bool {
		events := rec.snapshot()
		return len(events) > 0 && events[len(events)-1].Absent
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, rep.State{}, a.State())
	assert.Equal(t, a.State(), a.LastEvent().Update.State)

	seenReset := false
	for _, ev := range rec.snapshot() {
		if ev.Update.Reset {
			seenReset = true
			continue
		}
		if seenReset {
			assert.Equal(t, 0, ev.Update.State.Count, "stale count published after reset")
		}
	}
	assert.True(t, seenReset)
}

func TestApp_PublishDropsStaleEvents(t *testing.T) {
	a := newTestApp(t, Config{})

	rec := &eventRecorder{}
	a.Subscribe(rec.record)

	a.publish(Event{Update: rep.Update{State: rep.State{Count: 0}, Reset: true, Seq: 5}})
	a.publish(Event{Update: rep.Update{State: rep.State{Count: 3}, Seq: 4}})
	a.publish(Event{Update: rep.Update{State: rep.State{Count: 0}, Seq: 5}, Absent: true})

	events := rec.snapshot()
	require.Len(t, events, 2)
	assert.True(t, events[0].Update.Reset)
	assert.True(t, events[1].Absent)
	assert.Equal(t, 0, a.LastEvent().Update.State.Count)
}

func TestApp_SubmitAfterClose(t *testing.T) {
	a, err := New(Config{Detector: pose.NewMockDetector(), Camera: capture.NewMockCamera(nil, false)})
	require.NoError(t, err)

	a.Close()
	a.Close()

	assert.False(t, a.Submit(detection(pose.HangingLandmarks())))
}

func TestApp_Thresholds(t *testing.T) {
	s := newTestStore(t)
	a := newTestApp(t, Config{Store: s})

	assert.Equal(t, rep.DefaultConfig(), a.Thresholds())

	cfg := rep.Config{UpThreshold: 60, DownThreshold: 150}
	require.NoError(t, a.ApplyThresholds(cfg))
	assert.Equal(t, cfg, a.Thresholds())

	up, err := s.Settings().GetFloat(store.SettingUpThreshold)
	require.NoError(t, err)
	assert.Equal(t, 60.0, up)

	err = a.ApplyThresholds(rep.Config{UpThreshold: 90, DownThreshold: 80})
	assert.ErrorIs(t, err, rep.ErrInvalidThresholds)
	assert.Equal(t, cfg, a.Thresholds(), "rejected thresholds are not applied")

	down, err := s.Settings().GetFloat(store.SettingDownThreshold)
	require.NoError(t, err)
	assert.Equal(t, 150.0, down, "rejected thresholds are not persisted")
}

func TestApp_LoadSettings(t *testing.T) {
	t.Run("applies persisted thresholds", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Settings().SetFloat(store.SettingUpThreshold, 45))
		require.NoError(t, s.Settings().SetFloat(store.SettingDownThreshold, 165))

		a := newTestApp(t, Config{Store: s})
		require.NoError(t, a.LoadSettings())
		assert.Equal(t, rep.Config{UpThreshold: 45, DownThreshold: 165}, a.Thresholds())
	})

	t.Run("partial settings keep the rest", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Settings().SetFloat(store.SettingUpThreshold, 30))

		a := newTestApp(t, Config{Store: s})
		require.NoError(t, a.LoadSettings())
		assert.Equal(t, rep.Config{UpThreshold: 30, DownThreshold: 160}, a.Thresholds())
	})

	t.Run("invalid persisted band is ignored", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Settings().SetFloat(store.SettingUpThreshold, 170))

		a := newTestApp(t, Config{Store: s})
		require.NoError(t, a.LoadSettings())
		assert.Equal(t, rep.DefaultConfig(), a.Thresholds())
	})

	t.Run("skipped keys keep the configured value", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Settings().SetFloat(store.SettingUpThreshold, 30))
		require.NoError(t, s.Settings().SetFloat(store.SettingDownThreshold, 150))

		a := newTestApp(t, Config{Store: s, Counter: rep.Config{UpThreshold: 60, DownThreshold: 170}})
		require.NoError(t, a.LoadSettings(store.SettingUpThreshold))
		assert.Equal(t, rep.Config{UpThreshold: 60, DownThreshold: 150}, a.Thresholds())
	})

	t.Run("NaN persisted threshold is ignored", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Settings().Set(store.SettingUpThreshold, "NaN"))

		a := newTestApp(t, Config{Store: s})
		require.NoError(t, a.LoadSettings())
		assert.Equal(t, rep.DefaultConfig(), a.Thresholds())
	})

	t.Run("unparseable value is an error", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Settings().Set(store.SettingDownThreshold, "straight"))

		a := newTestApp(t, Config{Store: s})
		assert.Error(t, a.LoadSettings())
	})

	t.Run("no store", func(t *testing.T) {
		a := newTestApp(t, Config{})
		assert.NoError(t, a.LoadSettings())
	})
}

func TestApp_FiresHooks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	pluginDir := t.TempDir()
	recorder := filepath.Join(pluginDir, "recorder")
	require.NoError(t, os.MkdirAll(recorder, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(recorder, "plugin.json"),
		[]byte(`{"name":"recorder","executable":"record.sh","actions":["log"]}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(recorder, "record.sh"), []byte(`#!/bin/sh
cat >> requests.log
echo >> requests.log
echo '{"success":true}'
`), 0755))

	s := newTestStore(t)
	for _, h := range []*store.Hook{
		{ID: "on-rep", Event: store.HookEventRep, PluginName: "recorder", ActionName: "log", Enabled: true},
		{ID: "on-reset", Event: store.HookEventReset, PluginName: "recorder", ActionName: "log", Enabled: true},
	} {
		require.NoError(t, s.Hooks().Create(h))
	}

	a := newTestApp(t, Config{Store: s, PluginDir: pluginDir})
	require.NoError(t, a.DiscoverPlugins())

	for _, deg := range []float64{170, 40, 170} {
		a.Submit(detection(pose.ArmsAtAngle(deg)))
	}
	require.Eventually(t, func() bool { return a.State().Count == 1 }, time.Second, 10*time.Millisecond)
	a.ResetCount()

	logPath := filepath.Join(recorder, "requests.log")
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(logPath)
		return err == nil && strings.Count(string(data), "\n") >= 2
	}, 5*time.Second, 20*time.Millisecond)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event":"rep"`)
	assert.Contains(t, string(data), `"count":1`)
	assert.Contains(t, string(data), `"event":"reset"`)
}

func TestApp_Enabled(t *testing.T) {
	a := newTestApp(t, Config{})

	assert.True(t, a.IsEnabled())
	a.SetEnabled(false)
	assert.False(t, a.IsEnabled())
}
