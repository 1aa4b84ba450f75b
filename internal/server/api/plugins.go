package api

import (
	"net/http"

	"github.com/ayusman/reptrack/internal/hook"
)

// Plugins looks up discovered hook plugins.
type Plugins interface {
	Get(name string) (*hook.Plugin, error)
	List() []*hook.Plugin
}

// PluginHandler lists the installed hook plugins at /api/plugins.
type PluginHandler struct {
	plugins Plugins
}

// NewPluginHandler creates a PluginHandler.
func NewPluginHandler(plugins Plugins) *PluginHandler {
	return &PluginHandler{plugins: plugins}
}

type pluginResponse struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
}

func (h *PluginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	plugins := h.plugins.List()
	out := make([]pluginResponse, 0, len(plugins))
	for _, p := range plugins {
		actions := p.Manifest.Actions
		if actions == nil {
			actions = []string{}
		}
		out = append(out, pluginResponse{
			Name:        p.Manifest.Name,
			Version:     p.Manifest.Version,
			Description: p.Manifest.Description,
			Actions:     actions,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"plugins": out})
}
