package api

import (
	"net/http"
	"strings"

	"github.com/ayusman/reptrack/internal/rep"
)

// Counter is the part of the application the count and settings endpoints drive.
type Counter interface {
	State() rep.State
	ResetCount() rep.State
	Thresholds() rep.Config
	ApplyThresholds(cfg rep.Config) error
}

// CountHandler serves GET /api/count and POST /api/count/reset.
type CountHandler struct {
	counter Counter
}

// NewCountHandler creates a CountHandler for counter.
func NewCountHandler(counter Counter) *CountHandler {
	return &CountHandler{counter: counter}
}

func (h *CountHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/count")
	path = strings.Trim(path, "/")

	switch path {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.counter.State())
	case "reset":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.counter.ResetCount())
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}
