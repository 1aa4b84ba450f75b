package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/reptrack/internal/app"
	"github.com/ayusman/reptrack/internal/pose"
	"github.com/ayusman/reptrack/internal/rep"
	"github.com/ayusman/reptrack/internal/server"
	"github.com/ayusman/reptrack/internal/store"
	"github.com/ayusman/reptrack/internal/tray"
)

var (
	addr     string
	cameraID int
	withTray bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Count reps from the webcam and serve the live preview",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Addr = addr
		}
		explicitCamera := cmd.Flags().Changed("camera")
		if explicitCamera {
			cfg.CameraID = cameraID
		}
		return serve(cmd.Context(), explicitCamera)
	},
}

func init() {
	serveCmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "HTTP listen address")
	serveCmd.Flags().IntVar(&cameraID, "camera", 0, "camera device index (remembered for the next run)")
	serveCmd.Flags().BoolVar(&withTray, "tray", false, "show a system tray icon")
}

func serve(ctx context.Context, explicitCamera bool) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	camera, err := cameraSetting(st.Settings(), cfg.CameraID, explicitCamera)
	if err != nil {
		log.Warn("failed to resolve saved camera", zap.Error(err))
	}

	a, err := app.New(app.Config{
		Logger:        log,
		Store:         st,
		PluginDir:     cfg.PluginDir,
		CameraID:      camera,
		MotionThresh:  cfg.MotionThresh,
		QueueSize:     cfg.QueueSize,
		HookTimeoutMs: cfg.HookTimeoutMs,
		Counter: rep.Config{
			UpThreshold:   cfg.UpThreshold,
			DownThreshold: cfg.DownThreshold,
		},
		Pose: pose.Config{
			MinConfidence:   cfg.MinDetectionConfidence,
			MinTrackingConf: cfg.MinTrackingConfidence,
			MinVisibility:   cfg.MinVisibility,
		},
	})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	defer a.Close()

	if err := a.LoadSettings(pinned...); err != nil {
		log.Warn("failed to load saved settings", zap.Error(err))
	}
	if err := a.DiscoverPlugins(); err != nil {
		log.Warn("failed to discover plugins", zap.Error(err), zap.String("dir", cfg.PluginDir))
	}
	if err := a.Start(); err != nil {
		return fmt.Errorf("start camera: %w", err)
	}

	webDir := findWebDir(cfg.WebDir, cfg.DataDir)
	if webDir != "" {
		log.Info("serving static files", zap.String("dir", webDir))
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		App:       a,
		Logger:    log,
	})

	if !withTray {
		return srv.Run(ctx, cfg.Addr)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := tray.New()
	t.OnToggle(a.SetEnabled)
	t.OnReset(func() { a.ResetCount() })
	t.OnOpen(func() {
		if err := openBrowser("http://" + cfg.Addr); err != nil {
			log.Warn("failed to open browser", zap.Error(err))
		}
	})
	t.OnQuit(cancel)
	unsubscribe := a.Subscribe(func(ev app.Event) { t.SetState(ev.Update.State) })
	defer unsubscribe()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx, cfg.Addr)
		t.Quit()
	}()

	// systray owns the main thread until Quit.
	t.Run()
	cancel()
	return <-errCh
}

// cameraSetting returns the camera device to open. An explicit --camera is
// saved for later runs; otherwise a saved camera wins over the configured one.
func cameraSetting(settings *store.SettingsRepository, configured int, explicit bool) (int, error) {
	if explicit {
		return configured, settings.SetInt(store.SettingCameraID, configured)
	}

	id, err := settings.GetInt(store.SettingCameraID)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, store.ErrNotFound):
		return configured, nil
	default:
		return configured, err
	}
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir returns the first existing web directory among configured,
// "../web", "../../web" and dataDir/web, or "" if none exists.
func findWebDir(configured, dataDir string) string {
	candidates := []string{configured, "../web", "../../web", filepath.Join(dataDir, "web")}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if absPath, err := filepath.Abs(p); err == nil {
				return absPath
			}
			return p
		}
	}
	return ""
}
