package e2e

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/reptrack/internal/app"
	"github.com/ayusman/reptrack/internal/capture"
	"github.com/ayusman/reptrack/internal/pose"
	"github.com/ayusman/reptrack/internal/server"
	"github.com/ayusman/reptrack/internal/store"
)

// installRecorder writes a hook plugin that appends each request to requests.log.
func installRecorder(t *testing.T, pluginDir string) string {
	t.Helper()

	dir := filepath.Join(pluginDir, "recorder")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.json"),
		[]byte(`{"name":"recorder","version":"1.0.0","executable":"record.sh","actions":["log"]}`), 0644))

	script := `#!/bin/sh
cat >> requests.log
echo >> requests.log
echo '{"success":true}'
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "record.sh"), []byte(script), 0755))
	return filepath.Join(dir, "requests.log")
}

func countLines(t *testing.T, path string) int {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.Contains(sc.Text(), `"event":"rep"`) {
			n++
		}
	}
	return n
}

func flickerFrames(t *testing.T) []*gocv.Mat {
	t.Helper()

	dark := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	bright := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() {
		dark.Close()
		bright.Close()
	})
	return []*gocv.Mat{&dark, &bright}
}

func TestE2E_LiveCountWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "data.db"))
	require.NoError(t, err)
	defer s.Close()

	pluginDir := filepath.Join(tmpDir, "plugins")
	requestsLog := installRecorder(t, pluginDir)

	detector := pose.NewMockDetector()
	detector.SetSequence([][]pose.LandmarkSet{
		{pose.HangingLandmarks()},
		{pose.ChinOverBarLandmarks()},
		nil,
		{pose.HangingLandmarks()},
		{pose.ArmsAtAngle(100)},
		{pose.ChinOverBarLandmarks()},
		{pose.HangingLandmarks()},
	})
	detector.SetSubjects([]pose.LandmarkSet{pose.HangingLandmarks()})

	a, err := app.New(app.Config{
		Store:        s,
		PluginDir:    pluginDir,
		MotionThresh: 0.5,
		Camera:       capture.NewMockCamera(flickerFrames(t), true),
		Detector:     detector,
	})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.DiscoverPlugins())

	ts := httptest.NewServer(server.New(server.Config{Store: s, App: a}))
	defer ts.Close()
	client := ts.Client()

	// Bind the recorder before any rep happens.
	resp, err := client.Post(ts.URL+"/api/hooks", "application/json",
		strings.NewReader(`{"event":"rep","plugin_name":"recorder","action_name":"log"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var snapshot struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, "snapshot", snapshot.Type)

	require.NoError(t, a.Start())

	require.Eventually(t, func() bool {
		resp, err := client.Get(ts.URL + "/api/count")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var got struct {
			Count int `json:"count"`
		}
		json.NewDecoder(resp.Body).Decode(&got)
		return got.Count == 2
	}, 10*time.Second, 50*time.Millisecond)

	t.Run("EventsCarryCompletedReps", func(t *testing.T) {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		completed := 0
		for completed < 2 {
			var msg struct {
				Type  string    `json:"type"`
				Event app.Event `json:"event"`
			}
			require.NoError(t, conn.ReadJSON(&msg))
			if msg.Event.Update.Completed {
				completed++
				assert.Equal(t, completed, msg.Event.Update.State.Count)
			}
		}
	})

	t.Run("HooksFiredPerRep", func(t *testing.T) {
		require.Eventually(t, func() bool {
			return countLines(t, requestsLog) == 2
		}, 5*time.Second, 20*time.Millisecond)
	})

	t.Run("Reset", func(t *testing.T) {
		resp, err := client.Post(ts.URL+"/api/count/reset", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 0, a.State().Count)
	})

	t.Run("HealthReportsRunning", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		var health map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
		assert.Equal(t, true, health["running"])
	})
}

func TestE2E_ThresholdsSurviveRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	dbPath := filepath.Join(t.TempDir(), "data.db")

	newApp := func(s *store.Store) *app.App {
		a, err := app.New(app.Config{
			Store:    s,
			Camera:   capture.NewMockCamera(nil, false),
			Detector: pose.NewMockDetector(),
		})
		require.NoError(t, err)
		return a
	}

	s, err := store.New(dbPath)
	require.NoError(t, err)
	a := newApp(s)
	ts := httptest.NewServer(server.New(server.Config{Store: s, App: a}))

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/settings",
		bytes.NewBufferString(`{"up_threshold": 70, "down_threshold": 150}`))
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ts.Close()
	a.Close()
	require.NoError(t, s.Close())

	s, err = store.New(dbPath)
	require.NoError(t, err)
	defer s.Close()
	a = newApp(s)
	defer a.Close()

	require.NoError(t, a.LoadSettings())
	got := a.Thresholds()
	assert.Equal(t, 70.0, got.UpThreshold)
	assert.Equal(t, 150.0, got.DownThreshold)

	// 65 flexes and 155 extends only under the restored band.
	for _, deg := range []float64{170, 65, 155} {
		a.Submit(pose.Detection{Subjects: []pose.LandmarkSet{pose.ArmsAtAngle(deg)}, Width: 640, Height: 480})
	}
	require.Eventually(t, func() bool { return a.State().Count == 1 }, 3*time.Second, 10*time.Millisecond)
}
