package hook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrPluginNotFound is returned when a requested plugin cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

var errMissingExecutable = errors.New("not found")

// Manager discovers plugins in a directory and keeps them by name.
type Manager struct {
	pluginDir string
	plugins   map[string]*Plugin
	logger    *zap.Logger
	mu        sync.RWMutex
}

// NewManager creates a Manager for pluginDir. A nil logger discards output.
func NewManager(pluginDir string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		pluginDir: pluginDir,
		plugins:   make(map[string]*Plugin),
		logger:    logger,
	}
}

// Discover rescans the plugin directory. A missing directory yields no
// plugins. Directories whose manifest is unreadable or incomplete, whose
// executable is missing, or whose name is already taken are skipped.
func (m *Manager) Discover() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.plugins = make(map[string]*Plugin)

	entries, err := os.ReadDir(m.pluginDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		plugin, err := loadPlugin(filepath.Join(m.pluginDir, entry.Name()))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			m.logger.Warn("skipping plugin", zap.String("dir", entry.Name()), zap.Error(err))
			continue
		}
		if prev, ok := m.plugins[plugin.Manifest.Name]; ok {
			m.logger.Warn("skipping duplicate plugin",
				zap.String("name", plugin.Manifest.Name),
				zap.String("dir", entry.Name()),
				zap.String("kept", prev.Path))
			continue
		}
		m.plugins[plugin.Manifest.Name] = plugin
	}

	m.logger.Info("plugins discovered", zap.Int("count", len(m.plugins)), zap.String("dir", m.pluginDir))
	return nil
}

// loadPlugin reads dir/plugin.json. It returns an fs.ErrNotExist error when
// dir has no manifest at all.
func loadPlugin(dir string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(dir, "plugin.json"))
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if manifest.Name == "" || manifest.Executable == "" {
		return nil, errors.New("manifest needs a name and an executable")
	}
	if !filepath.IsLocal(manifest.Executable) {
		return nil, fmt.Errorf("executable %q is outside the plugin directory", manifest.Executable)
	}

	executable := filepath.Join(dir, manifest.Executable)
	info, err := os.Stat(executable)
	if err != nil {
		return nil, fmt.Errorf("executable %q: %w", manifest.Executable, errMissingExecutable)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("executable %q is a directory", manifest.Executable)
	}

	return &Plugin{
		Manifest:   manifest,
		Path:       dir,
		Executable: executable,
	}, nil
}

// Get returns a plugin by name.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugin, ok := m.plugins[name]
	if !ok {
		return nil, ErrPluginNotFound
	}
	return plugin, nil
}

// List returns every discovered plugin sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugins := make([]*Plugin, 0, len(m.plugins))
	for _, plugin := range m.plugins {
		plugins = append(plugins, plugin)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Manifest.Name < plugins[j].Manifest.Name
	})
	return plugins
}

// PluginDir returns the plugin directory path.
func (m *Manager) PluginDir() string {
	return m.pluginDir
}
