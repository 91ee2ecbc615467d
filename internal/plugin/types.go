// Package plugin discovers and runs external sink executables that receive
// arm joint state over stdin and answer on stdout.
package plugin

import "encoding/json"

// Actions a plugin may be asked to perform.
const (
	ActionUpdate = "update"
	ActionReset  = "reset"
)

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Supports reports whether the manifest lists the action.
func (m Manifest) Supports(action string) bool {
	for _, a := range m.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Request represents a request sent to a plugin for execution.
type Request struct {
	Action    string             `json:"action"`
	Joints    map[string]float64 `json:"joints,omitempty"`
	Source    string             `json:"source,omitempty"`
	Timestamp int64              `json:"timestamp"`
	Config    json.RawMessage    `json:"config,omitempty"`
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
