// Package config loads process settings from REPTRACK_* environment variables.
package config

import (
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr      string `env:"ADDR"       envDefault:"127.0.0.1:8080"`
	DataDir   string `env:"DATA_DIR"`
	PluginDir string `env:"PLUGIN_DIR"`
	WebDir    string `env:"WEB_DIR"    envDefault:"web"`
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`

	CameraID     int     `env:"CAMERA_ID"     envDefault:"0"`
	MotionThresh float64 `env:"MOTION_THRESH" envDefault:"1.0"`
	QueueSize    int     `env:"QUEUE_SIZE"    envDefault:"4"`

	UpThreshold   float64 `env:"UP_THRESHOLD"   envDefault:"50"`
	DownThreshold float64 `env:"DOWN_THRESHOLD" envDefault:"160"`

	MinDetectionConfidence float64 `env:"MIN_DETECTION_CONFIDENCE" envDefault:"0.5"`
	MinTrackingConfidence  float64 `env:"MIN_TRACKING_CONFIDENCE"  envDefault:"0.5"`
	MinVisibility          float64 `env:"MIN_VISIBILITY"           envDefault:"0.5"`

	HookTimeoutMs int `env:"HOOK_TIMEOUT_MS" envDefault:"5000"`

	// pluginDirDerived is set when PluginDir was computed from DataDir.
	pluginDirDerived bool
}

// Load parses the environment. DataDir and PluginDir default to
// ~/.reptrack and ~/.reptrack/plugins.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "REPTRACK_"}); err != nil {
		return nil, err
	}

	if cfg.DataDir == "" || cfg.PluginDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		if cfg.DataDir == "" {
			cfg.DataDir = filepath.Join(home, ".reptrack")
		}
		if cfg.PluginDir == "" {
			cfg.PluginDir = filepath.Join(cfg.DataDir, "plugins")
			cfg.pluginDirDerived = true
		}
	}

	return cfg, nil
}

// SetDataDir moves DataDir. A PluginDir derived from the old DataDir follows
// it; one set through REPTRACK_PLUGIN_DIR is kept.
func (c *Config) SetDataDir(dir string) {
	c.DataDir = dir
	if c.pluginDirDerived {
		c.PluginDir = filepath.Join(dir, "plugins")
	}
}

// DBPath is the sqlite database location inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "reptrack.db")
}
