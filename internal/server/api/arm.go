package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/armmirror/internal/arm"
)

// ArmHandler is the manual control surface of the arm.
type ArmHandler struct {
	arm *arm.Arm
}

// NewArmHandler creates a new ArmHandler for the given arm.
func NewArmHandler(a *arm.Arm) *ArmHandler {
	return &ArmHandler{arm: a}
}

type setJointRequest struct {
	Degrees *float64 `json:"degrees"`
}

type stepRequest struct {
	Direction int `json:"direction"`
}

type jointResponse struct {
	Joint   arm.Joint `json:"joint"`
	Degrees float64   `json:"degrees"`
}

type armResponse struct {
	arm.State
	Limits map[arm.Joint]arm.Limit `json:"limits"`
}

// ServeHTTP routes:
//
//	GET  /api/arm
//	POST /api/arm/reset
//	PUT  /api/arm/{joint}
//	POST /api/arm/{joint}/step
func (h *ArmHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/arm"), "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.get(w, r)
		return
	}
	if path == "reset" {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.arm.Reset(arm.SourceManual)
		h.get(w, r)
		return
	}

	parts := strings.Split(path, "/")
	joint, err := arm.ParseJoint(parts[0])
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown joint")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodPut:
		h.set(w, r, joint)
	case len(parts) == 2 && parts[1] == "step" && r.Method == http.MethodPost:
		h.step(w, r, joint)
	case len(parts) > 2 || (len(parts) == 2 && parts[1] != "step"):
		writeError(w, http.StatusNotFound, "Not found")
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// get handles GET /api/arm and returns the pose with every joint's limits.
func (h *ArmHandler) get(w http.ResponseWriter, r *http.Request) {
	limits := make(map[arm.Joint]arm.Limit)
	for _, j := range arm.Joints() {
		if l, ok := arm.LimitOf(j); ok {
			limits[j] = l
		}
	}
	writeJSON(w, http.StatusOK, armResponse{State: h.arm.State(), Limits: limits})
}

// set handles PUT /api/arm/{joint}. The reply carries the clamped angle.
func (h *ArmHandler) set(w http.ResponseWriter, r *http.Request, joint arm.Joint) {
	var req setJointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Degrees == nil {
		writeError(w, http.StatusBadRequest, "Degrees is required")
		return
	}

	applied, err := h.arm.Set(joint, *req.Degrees, arm.SourceManual)
	if err != nil {
		writeArmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jointResponse{Joint: joint, Degrees: applied})
}

// step handles POST /api/arm/{joint}/step.
func (h *ArmHandler) step(w http.ResponseWriter, r *http.Request, joint arm.Joint) {
	var req stepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	applied, err := h.arm.Step(joint, req.Direction, arm.SourceManual)
	if err != nil {
		writeArmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jointResponse{Joint: joint, Degrees: applied})
}

func writeArmError(w http.ResponseWriter, err error) {
	if errors.Is(err, arm.ErrUnknownJoint) {
		writeError(w, http.StatusNotFound, "Unknown joint")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}
