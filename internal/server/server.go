// Package server provides the HTTP server for the arm mirror.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayusman/armmirror/internal/app"
	"github.com/ayusman/armmirror/internal/arm"
	"github.com/ayusman/armmirror/internal/server/api"
	"github.com/ayusman/armmirror/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	App       *app.App
}

// Server represents the HTTP server for the arm mirror.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	hub    *AnglesHub
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	a := s.config.App

	if s.config.Store != nil {
		var control api.Controller
		var registry api.SinkRegistry
		if a != nil {
			control = a
			registry = a
		}

		profiles := api.NewProfileHandler(s.config.Store, control)
		s.mux.Handle("/api/profiles", profiles)
		s.mux.Handle("/api/profiles/", profiles)

		sinks := api.NewSinkHandler(s.config.Store, registry)
		s.mux.Handle("/api/sinks", sinks)
		s.mux.Handle("/api/sinks/", sinks)
	}

	if a != nil {
		armHandler := api.NewArmHandler(a.Arm())
		s.mux.Handle("/api/arm", armHandler)
		s.mux.Handle("/api/arm/", armHandler)

		s.mux.HandleFunc("/api/tracking", s.handleTracking)
		s.mux.HandleFunc("/api/binding", s.handleBinding)

		s.mux.Handle("/api/stream", NewStreamHandler(a))

		s.hub = NewAnglesHub()
		a.Subscribe(s.hub.Publish)
		s.mux.Handle("/api/angles", s.hub)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if a := s.config.App; a != nil {
		response["tracking"] = a.IsEnabled()
		response["profile"] = a.ActiveProfileID()
		response["sinks"] = a.Sinks().Names()
	}

	writeJSON(w, http.StatusOK, response)
}

type trackingBody struct {
	Enabled   bool   `json:"enabled"`
	Recording bool   `json:"recording"`
	Side      string `json:"side,omitempty"`
}

// handleTracking handles GET and PUT requests to /api/tracking.
func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	a := s.config.App
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req trackingBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		a.SetEnabled(req.Enabled)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, trackingBody{
		Enabled:   a.IsEnabled(),
		Recording: a.IsRecording(),
		Side:      string(a.LastSide()),
	})
}

// handleBinding handles GET and PUT requests to /api/binding.
func (s *Server) handleBinding(w http.ResponseWriter, r *http.Request) {
	a := s.config.App
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var b arm.Binding
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if err := a.SetBinding(b); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, a.Binding())
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
