package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/reptrack/internal/rep"
)

// SettingsHandler serves the counter thresholds at /api/settings.
type SettingsHandler struct {
	counter Counter
}

// NewSettingsHandler creates a SettingsHandler for counter.
func NewSettingsHandler(counter Counter) *SettingsHandler {
	return &SettingsHandler{counter: counter}
}

type updateSettingsRequest struct {
	UpThreshold   *float64 `json:"up_threshold"`
	DownThreshold *float64 `json:"down_threshold"`
}

func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.counter.Thresholds())
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// update applies a partial threshold change; omitted fields keep their value.
func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	cfg := h.counter.Thresholds()
	if req.UpThreshold != nil {
		cfg.UpThreshold = *req.UpThreshold
	}
	if req.DownThreshold != nil {
		cfg.DownThreshold = *req.DownThreshold
	}

	if err := h.counter.ApplyThresholds(cfg); err != nil {
		if errors.Is(err, rep.ErrInvalidThresholds) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}

	writeJSON(w, http.StatusOK, h.counter.Thresholds())
}
