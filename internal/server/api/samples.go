package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/armmirror/internal/calibrate"
	"github.com/ayusman/armmirror/internal/store"
)

// SamplesHandler handles the recorded samples of a profile.
type SamplesHandler struct {
	store   *store.Store
	control Controller
}

// NewSamplesHandler creates a new SamplesHandler with the given store.
func NewSamplesHandler(s *store.Store, control Controller) *SamplesHandler {
	return &SamplesHandler{store: s, control: control}
}

// Request types

type createSamplesRequest struct {
	Samples []json.RawMessage `json:"samples"`
}

type recordRequest struct {
	Recording bool `json:"recording"`
}

// Response types

type sampleResponse struct {
	ID          int64           `json:"id"`
	ProfileID   string          `json:"profile_id"`
	SampleIndex int             `json:"sample_index"`
	Data        json.RawMessage `json:"data"`
	CreatedAt   string          `json:"created_at"`
}

type listSamplesResponse struct {
	Samples []sampleResponse `json:"samples"`
}

type recordResponse struct {
	Recording bool `json:"recording"`
	Recorded  int  `json:"recorded"`
}

// serveSamples handles /api/profiles/{id}/samples.
func (h *SamplesHandler) serveSamples(w http.ResponseWriter, r *http.Request, profileID string) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r, profileID)
	case http.MethodPost:
		h.create(w, r, profileID)
	case http.MethodDelete:
		h.clear(w, r, profileID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// list handles GET /api/profiles/{id}/samples
func (h *SamplesHandler) list(w http.ResponseWriter, r *http.Request, profileID string) {
	if _, err := h.store.Profiles().GetByID(profileID); err != nil {
		writeStoreError(w, err, "Profile")
		return
	}
	samples, err := h.store.Samples().GetByProfileID(profileID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list samples")
		return
	}

	response := listSamplesResponse{
		Samples: make([]sampleResponse, 0, len(samples)),
	}

	for _, s := range samples {
		response.Samples = append(response.Samples, sampleResponse{
			ID:          s.ID,
			ProfileID:   s.ProfileID,
			SampleIndex: s.SampleIndex,
			Data:        s.Data,
			CreatedAt:   s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

// create handles POST /api/profiles/{id}/samples. Every sample must decode
// as recorded angles.
func (h *SamplesHandler) create(w http.ResponseWriter, r *http.Request, profileID string) {
	var req createSamplesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if len(req.Samples) == 0 {
		writeError(w, http.StatusBadRequest, "At least one sample is required")
		return
	}
	if _, err := calibrate.ParseSamples(req.Samples); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Samples().Append(profileID, req.Samples); err != nil {
		writeStoreError(w, err, "Profile")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

// clear handles DELETE /api/profiles/{id}/samples
func (h *SamplesHandler) clear(w http.ResponseWriter, r *http.Request, profileID string) {
	if _, err := h.store.Profiles().GetByID(profileID); err != nil {
		writeStoreError(w, err, "Profile")
		return
	}
	if err := h.store.Samples().DeleteByProfileID(profileID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete samples")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// serveRecord handles /api/profiles/{id}/record. Recording always targets
// the active profile, so the profile must be active.
func (h *SamplesHandler) serveRecord(w http.ResponseWriter, r *http.Request, profileID string) {
	if h.control == nil {
		writeError(w, http.StatusServiceUnavailable, "Tracking is not running")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, recordResponse{Recording: h.control.IsRecording()})
	case http.MethodPost:
		var req recordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if h.control.ActiveProfileID() != profileID {
			writeError(w, http.StatusConflict, "Profile is not active")
			return
		}
		if !req.Recording {
			n := h.control.StopRecording()
			writeJSON(w, http.StatusOK, recordResponse{Recording: false, Recorded: n})
			return
		}
		if err := h.control.StartRecording(); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, recordResponse{Recording: true})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
