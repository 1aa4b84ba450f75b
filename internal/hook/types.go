// Package hook runs external executables when the rep counter changes.
//
// Hook plugins live one per subdirectory of the plugin directory, each with a
// plugin.json manifest. A binding stored in sqlite ties a counter event to one
// plugin action; the plugin receives a Request as JSON on stdin and answers with
// a Response on stdout.
package hook

import (
	"encoding/json"
	"slices"
	"time"
)

// Manifest describes a plugin's metadata and the actions it accepts.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Supports reports whether action is declared in the manifest.
func (m Manifest) Supports(action string) bool {
	return slices.Contains(m.Actions, action)
}

// Request is the payload written to a plugin's stdin.
type Request struct {
	Event     string          `json:"event"`
	Action    string          `json:"action"`
	Count     int             `json:"count"`
	Timestamp time.Time       `json:"timestamp"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// Response is what a plugin prints to stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
