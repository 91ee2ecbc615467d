package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ayusman/armmirror/internal/sink"
	"github.com/ayusman/armmirror/internal/store"
)

// SinkRegistry builds stored sinks into the running dispatcher.
type SinkRegistry interface {
	AddSink(rec *store.SinkRecord) error
	Sinks() *sink.Dispatcher
}

// SinkHandler handles HTTP requests for configured sinks.
type SinkHandler struct {
	store    *store.Store
	registry SinkRegistry
	ports    func() ([]sink.PortInfo, error)
}

// NewSinkHandler creates a new SinkHandler. registry may be nil, in which
// case sinks are only stored.
func NewSinkHandler(s *store.Store, registry SinkRegistry) *SinkHandler {
	return &SinkHandler{store: s, registry: registry, ports: sink.ListPorts}
}

type createSinkRequest struct {
	Name    string          `json:"name"`
	Kind    string          `json:"kind"`
	Config  json.RawMessage `json:"config"`
	Enabled *bool           `json:"enabled"`
}

type updateSinkRequest struct {
	Enabled bool `json:"enabled"`
}

type sinkResponse struct {
	*store.SinkRecord
	Running   bool   `json:"running"`
	LastError string `json:"last_error,omitempty"`
}

type listSinksResponse struct {
	Sinks []sinkResponse `json:"sinks"`
}

// ServeHTTP routes:
//
//	GET/POST   /api/sinks
//	GET        /api/sinks/ports
//	PUT/DELETE /api/sinks/{id}
func (h *SinkHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sinks"), "/")

	switch {
	case path == "":
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case path == "ports":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.listPorts(w, r)
	case !strings.Contains(path, "/"):
		switch r.Method {
		case http.MethodPut:
			h.update(w, r, path)
		case http.MethodDelete:
			h.delete(w, r, path)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *SinkHandler) toResponse(rec *store.SinkRecord) sinkResponse {
	resp := sinkResponse{SinkRecord: rec}
	if h.registry == nil {
		return resp
	}
	d := h.registry.Sinks()
	for _, n := range d.Names() {
		if n == rec.Name {
			resp.Running = true
			break
		}
	}
	resp.LastError = d.LastError(rec.Name)
	return resp
}

// list handles GET /api/sinks.
func (h *SinkHandler) list(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.Sinks().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sinks")
		return
	}
	response := listSinksResponse{Sinks: make([]sinkResponse, 0, len(records))}
	for _, rec := range records {
		response.Sinks = append(response.Sinks, h.toResponse(rec))
	}
	writeJSON(w, http.StatusOK, response)
}

// create handles POST /api/sinks. An enabled sink is started right away and
// is not stored if it cannot be built.
func (h *SinkHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Name == "" || req.Kind == "" {
		writeError(w, http.StatusBadRequest, "Name and kind are required")
		return
	}

	rec := &store.SinkRecord{
		Name:    req.Name,
		Kind:    req.Kind,
		Config:  req.Config,
		Enabled: req.Enabled == nil || *req.Enabled,
	}
	if _, err := rec.ConfigMap(); err != nil {
		writeError(w, http.StatusBadRequest, "Config must be a JSON object")
		return
	}

	if err := h.store.Sinks().Create(rec); err != nil {
		writeError(w, http.StatusConflict, "Failed to create sink")
		return
	}
	if h.registry != nil && rec.Enabled {
		if err := h.registry.AddSink(rec); err != nil {
			h.store.Sinks().Delete(rec.ID)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusCreated, h.toResponse(rec))
}

// update handles PUT /api/sinks/{id}, enabling or disabling a sink.
func (h *SinkHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := h.store.Sinks().GetByID(id)
	if err != nil {
		writeStoreError(w, err, "Sink")
		return
	}
	var req updateSinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if h.registry != nil {
		if req.Enabled {
			if err := h.registry.AddSink(rec); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		} else {
			h.registry.Sinks().Remove(rec.Name)
		}
	}
	if err := h.store.Sinks().SetEnabled(id, req.Enabled); err != nil {
		writeStoreError(w, err, "Sink")
		return
	}
	rec.Enabled = req.Enabled
	writeJSON(w, http.StatusOK, h.toResponse(rec))
}

// delete handles DELETE /api/sinks/{id}.
func (h *SinkHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := h.store.Sinks().GetByID(id)
	if err != nil {
		writeStoreError(w, err, "Sink")
		return
	}
	if err := h.store.Sinks().Delete(id); err != nil {
		writeStoreError(w, err, "Sink")
		return
	}
	if h.registry != nil {
		h.registry.Sinks().Remove(rec.Name)
	}
	w.WriteHeader(http.StatusNoContent)
}

// listPorts handles GET /api/sinks/ports.
func (h *SinkHandler) listPorts(w http.ResponseWriter, r *http.Request) {
	ports, err := h.ports()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ports == nil {
		ports = []sink.PortInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ports": ports})
}
