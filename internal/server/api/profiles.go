// Package api provides HTTP API handlers for the arm mirror.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/armmirror/internal/kinematics"
	"github.com/ayusman/armmirror/internal/store"
)

// Controller is the part of the running application the profile endpoints
// drive. It may be nil when only the store is served.
type Controller interface {
	ActivateProfile(id string) error
	ActiveProfileID() string
	StartRecording() error
	StopRecording() int
	IsRecording() bool
}

// ProfileHandler handles HTTP requests for calibration profiles.
type ProfileHandler struct {
	store   *store.Store
	control Controller
	samples *SamplesHandler
	trainer *TrainHandler
}

// NewProfileHandler creates a new ProfileHandler with the given store.
func NewProfileHandler(s *store.Store, control Controller) *ProfileHandler {
	return &ProfileHandler{
		store:   s,
		control: control,
		samples: NewSamplesHandler(s, control),
		trainer: NewTrainHandler(s, control),
	}
}

// ServeHTTP routes:
//
//	/api/profiles
//	/api/profiles/{id}
//	/api/profiles/{id}/channels
//	/api/profiles/{id}/activate
//	/api/profiles/{id}/samples
//	/api/profiles/{id}/record
//	/api/profiles/{id}/train
func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/profiles")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	parts := strings.Split(path, "/")
	id := parts[0]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, id)
		case http.MethodPut:
			h.update(w, r, id)
		case http.MethodDelete:
			h.delete(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	switch parts[1] {
	case "channels":
		switch r.Method {
		case http.MethodGet:
			h.channels(w, r, id)
		case http.MethodPut:
			h.saveChannels(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "activate":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.activate(w, r, id)
	case "samples":
		h.samples.serveSamples(w, r, id)
	case "record":
		h.samples.serveRecord(w, r, id)
	case "train":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.trainer.train(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// Request and response types

type profileRequest struct {
	Name            string                  `json:"name"`
	SmoothingFactor *float64                `json:"smoothing_factor,omitempty"`
	PreferredSide   kinematics.Side         `json:"preferred_side,omitempty"`
	Mirror          kinematics.MirrorPolicy `json:"mirror,omitempty"`
	Channels        []store.ProfileChannel  `json:"channels,omitempty"`
}

type profileResponse struct {
	*store.Profile
	Channels []store.ProfileChannel `json:"channels"`
}

type listProfilesResponse struct {
	Profiles []*store.Profile `json:"profiles"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeStoreError maps a store error to a response.
func writeStoreError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "Failed to access "+strings.ToLower(what))
}

// list handles GET /api/profiles and returns all profiles.
func (h *ProfileHandler) list(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.store.Profiles().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list profiles")
		return
	}
	if profiles == nil {
		profiles = []*store.Profile{}
	}
	writeJSON(w, http.StatusOK, listProfilesResponse{Profiles: profiles})
}

// get handles GET /api/profiles/{id} and returns a profile with its channels.
func (h *ProfileHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.store.Profiles().GetByID(id)
	if err != nil {
		writeStoreError(w, err, "Profile")
		return
	}
	chans, err := h.store.Profiles().Channels(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load channels")
		return
	}
	if chans == nil {
		chans = []store.ProfileChannel{}
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: p, Channels: chans})
}

// apply copies the fields present in the request onto p.
func (req *profileRequest) apply(p *store.Profile) {
	if req.Name != "" {
		p.Name = req.Name
	}
	if req.SmoothingFactor != nil {
		p.SmoothingFactor = *req.SmoothingFactor
	}
	if req.PreferredSide != "" {
		p.PreferredSide = req.PreferredSide
	}
	if req.Mirror != "" {
		p.Mirror = req.Mirror
	}
}

// create handles POST /api/profiles. A profile created without channels gets
// the default calibration for every channel.
func (h *ProfileHandler) create(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	p := store.NewProfile(req.Name)
	req.apply(p)

	chans := req.Channels
	if len(chans) == 0 {
		chans = store.DefaultChannels()
	}
	for _, c := range chans {
		if err := c.Calibration.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "Channel "+c.Channel.String()+": "+err.Error())
			return
		}
	}

	if err := h.store.Profiles().Create(p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.Profiles().SaveChannels(p.ID, chans); err != nil {
		h.store.Profiles().Delete(p.ID)
		writeError(w, http.StatusInternalServerError, "Failed to save channels")
		return
	}

	writeJSON(w, http.StatusCreated, profileResponse{Profile: p, Channels: chans})
}

// update handles PUT /api/profiles/{id}. Only the fields present are changed.
func (h *ProfileHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.store.Profiles().GetByID(id)
	if err != nil {
		writeStoreError(w, err, "Profile")
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.apply(p)

	if err := h.store.Profiles().Update(p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Channels) > 0 {
		if err := h.store.Profiles().SaveChannels(id, req.Channels); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	h.reload(id)
	h.get(w, r, id)
}

// delete handles DELETE /api/profiles/{id}.
func (h *ProfileHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Profiles().Delete(id); err != nil {
		writeStoreError(w, err, "Profile")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// channels handles GET /api/profiles/{id}/channels.
func (h *ProfileHandler) channels(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.store.Profiles().GetByID(id); err != nil {
		writeStoreError(w, err, "Profile")
		return
	}
	chans, err := h.store.Profiles().Channels(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load channels")
		return
	}
	if chans == nil {
		chans = []store.ProfileChannel{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": chans})
}

// saveChannels handles PUT /api/profiles/{id}/channels.
func (h *ProfileHandler) saveChannels(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Channels []store.ProfileChannel `json:"channels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if len(req.Channels) == 0 {
		writeError(w, http.StatusBadRequest, "At least one channel is required")
		return
	}

	if err := h.store.Profiles().SaveChannels(id, req.Channels); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Profile not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.reload(id)
	h.channels(w, r, id)
}

// activate handles POST /api/profiles/{id}/activate.
func (h *ProfileHandler) activate(w http.ResponseWriter, r *http.Request, id string) {
	var err error
	if h.control != nil {
		err = h.control.ActivateProfile(id)
	} else {
		err = h.store.Profiles().SetActive(id)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Profile not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "active": id})
}

// reload rebuilds the running pipeline when the changed profile is active.
func (h *ProfileHandler) reload(id string) {
	if h.control != nil && h.control.ActiveProfileID() == id {
		h.control.ActivateProfile(id)
	}
}
