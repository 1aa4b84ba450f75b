// Package main provides a hook plugin that speaks the rep count aloud.
// It uses `say` on macOS and `espeak` elsewhere.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Request represents the input from the hook executor.
type Request struct {
	Event  string          `json:"event"`
	Action string          `json:"action"`
	Count  int             `json:"count"`
	Config json.RawMessage `json:"config"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type config struct {
	Voice string `json:"voice"`
	Every int    `json:"every"`
}

// phrases maps action names to the text spoken for a request.
var phrases = map[string]func(req Request) string{
	"say-count": func(req Request) string { return fmt.Sprintf("%d", req.Count) },
	"say-reset": func(req Request) string { return "Count reset" },
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(fmt.Errorf("failed to decode request: %w", err))
		return
	}

	phrase, ok := phrases[req.Action]
	if !ok {
		writeResponse(fmt.Errorf("unknown action: %s", req.Action))
		return
	}

	var cfg config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeResponse(fmt.Errorf("invalid config: %w", err))
			return
		}
	}

	// every=N only announces multiples of N.
	if req.Action == "say-count" && cfg.Every > 1 && req.Count%cfg.Every != 0 {
		writeResponse(nil)
		return
	}

	writeResponse(speak(phrase(req), cfg.Voice))
}

func speak(text, voice string) error {
	bin := "espeak"
	if runtime.GOOS == "darwin" {
		bin = "say"
	}

	args := []string{text}
	if voice != "" {
		args = []string{"-v", voice, text}
	}
	cmd := exec.Command(bin, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// writeResponse writes the result to stdout.
func writeResponse(err error) {
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
