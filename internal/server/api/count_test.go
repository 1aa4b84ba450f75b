package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ayusman/reptrack/internal/rep"
)

// fakeCounter is an in-memory Counter.
type fakeCounter struct {
	mu       sync.Mutex
	state    rep.State
	cfg      rep.Config
	applyErr error
	resets   int
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{cfg: rep.DefaultConfig()}
}

func (f *fakeCounter) State() rep.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeCounter) ResetCount() rep.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.state = rep.State{}
	return f.state
}

func (f *fakeCounter) Thresholds() rep.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *fakeCounter) ApplyThresholds(cfg rep.Config) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	return nil
}

func TestCountHandler_Get(t *testing.T) {
	counter := newFakeCounter()
	counter.state = rep.State{Count: 7, Phase: rep.Flexed}
	handler := NewCountHandler(counter)

	req := httptest.NewRequest(http.MethodGet, "/api/count", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var got struct {
		Count int    `json:"count"`
		Phase string `json:"phase"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Count != 7 || got.Phase != "flexed" {
		t.Errorf("unexpected state: %+v", got)
	}
}

func TestCountHandler_Reset(t *testing.T) {
	counter := newFakeCounter()
	counter.state = rep.State{Count: 3}
	handler := NewCountHandler(counter)

	req := httptest.NewRequest(http.MethodPost, "/api/count/reset", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if counter.resets != 1 {
		t.Errorf("expected 1 reset, got %d", counter.resets)
	}
	if counter.State().Count != 0 {
		t.Errorf("expected count 0 after reset, got %d", counter.State().Count)
	}
}

func TestCountHandler_Methods(t *testing.T) {
	handler := NewCountHandler(newFakeCounter())

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, "/api/count", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/count/reset", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/count/other", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestSettingsHandler_Get(t *testing.T) {
	handler := NewSettingsHandler(newFakeCounter())

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var got rep.Config
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got != rep.DefaultConfig() {
		t.Errorf("expected default thresholds, got %+v", got)
	}
}

func TestSettingsHandler_Update(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		applyErr   error
		wantStatus int
		want       rep.Config
	}{
		{
			name:       "both thresholds",
			body:       `{"up_threshold": 60, "down_threshold": 150}`,
			wantStatus: http.StatusOK,
			want:       rep.Config{UpThreshold: 60, DownThreshold: 150},
		},
		{
			name:       "partial update keeps the other threshold",
			body:       `{"down_threshold": 170}`,
			wantStatus: http.StatusOK,
			want:       rep.Config{UpThreshold: 50, DownThreshold: 170},
		},
		{
			name:       "inverted band rejected",
			body:       `{"up_threshold": 165}`,
			wantStatus: http.StatusBadRequest,
			want:       rep.DefaultConfig(),
		},
		{
			name:       "invalid JSON",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
			want:       rep.DefaultConfig(),
		},
		{
			name:       "persistence failure",
			body:       `{"up_threshold": 40}`,
			applyErr:   errors.New("disk full"),
			wantStatus: http.StatusInternalServerError,
			want:       rep.DefaultConfig(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := newFakeCounter()
			counter.applyErr = tt.applyErr
			handler := NewSettingsHandler(counter)

			req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if got := counter.Thresholds(); got != tt.want {
				t.Errorf("thresholds = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSettingsHandler_MethodNotAllowed(t *testing.T) {
	handler := NewSettingsHandler(newFakeCounter())

	req := httptest.NewRequest(http.MethodDelete, "/api/settings", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}
