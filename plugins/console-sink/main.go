// Package main provides a sink plugin that prints the arm's joint state to
// stderr as a text bar chart, one line per joint.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action    string             `json:"action"`
	Joints    map[string]float64 `json:"joints"`
	Source    string             `json:"source"`
	Timestamp int64              `json:"timestamp"`
	Config    json.RawMessage    `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the optional plugin configuration.
type Config struct {
	Width int `json:"width"`
}

const defaultWidth = 36

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	cfg := Config{Width: defaultWidth}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("invalid config: %v", err))
			return
		}
		if cfg.Width < 10 || cfg.Width > 80 {
			cfg.Width = defaultWidth
		}
	}

	switch req.Action {
	case "update":
		lines := render(req.Joints, cfg.Width)
		fmt.Fprintf(os.Stderr, "[%s] %d\n%s", req.Source, req.Timestamp, strings.Join(lines, ""))
		writeSuccessResponse(len(lines))
	case "reset":
		fmt.Fprintln(os.Stderr, "arm reset")
		writeSuccessResponse(0)
	default:
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
	}
}

// render draws each joint as a bar centred on zero, covering -180 to 180.
func render(joints map[string]float64, width int) []string {
	names := make([]string, 0, len(joints))
	for name := range joints {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	half := width / 2
	for _, name := range names {
		v := joints[name]
		n := int(v / 180 * float64(half))
		if n > half {
			n = half
		}
		if n < -half {
			n = -half
		}

		bar := []rune(strings.Repeat(" ", width+1))
		bar[half] = '|'
		for i := 1; i <= abs(n); i++ {
			if n > 0 {
				bar[half+i] = '#'
			} else {
				bar[half-i] = '#'
			}
		}
		lines = append(lines, fmt.Sprintf("%-16s %s %7.1f\n", name, string(bar), v))
	}
	return lines
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse(rendered int) {
	data, _ := json.Marshal(map[string]int{"rendered": rendered})
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}
