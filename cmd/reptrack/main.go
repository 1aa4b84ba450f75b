// Command reptrack counts pull-ups from a webcam or a recorded video.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/reptrack/internal/config"
	"github.com/ayusman/reptrack/internal/logger"
	"github.com/ayusman/reptrack/internal/store"
)

// Version is the application version.
const Version = "0.1.0"

var (
	cfg *config.Config
	log *zap.Logger

	logLevel string
	dataDir  string
	upFlag   float64
	downFlag float64

	// pinned lists the settings given on the command line. They win over
	// values saved in the database.
	pinned []string
)

var rootCmd = &cobra.Command{
	Use:     "reptrack",
	Short:   "Pull-up rep counter driven by body pose detection",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		flags := cmd.Flags()
		if flags.Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if flags.Changed("data-dir") {
			cfg.SetDataDir(dataDir)
		}
		pinned = pinned[:0]
		if flags.Changed("up") {
			cfg.UpThreshold = upFlag
			pinned = append(pinned, store.SettingUpThreshold)
		}
		if flags.Changed("down") {
			cfg.DownThreshold = downFlag
			pinned = append(pinned, store.SettingDownThreshold)
		}

		log, err = logger.New(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&dataDir, "data-dir", "", "directory for the database and plugins (default ~/.reptrack)")
	pf.Float64Var(&upFlag, "up", 50, "elbow angle in degrees below which the arms count as flexed (overrides the saved value)")
	pf.Float64Var(&downFlag, "down", 160, "elbow angle in degrees above which the arms count as extended (overrides the saved value)")

	rootCmd.AddCommand(serveCmd, analyzeCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
