package api

import (
	"net/http"

	"github.com/ayusman/armmirror/internal/calibrate"
	"github.com/ayusman/armmirror/internal/kinematics"
	"github.com/ayusman/armmirror/internal/store"
)

// TrainHandler fits a profile's calibrations to its recorded samples.
type TrainHandler struct {
	store   *store.Store
	control Controller
	trainer *calibrate.Trainer
}

// NewTrainHandler creates a new TrainHandler with the given store.
func NewTrainHandler(s *store.Store, control Controller) *TrainHandler {
	return &TrainHandler{
		store:   s,
		control: control,
		trainer: calibrate.NewTrainer(),
	}
}

type trainResponse struct {
	Samples  int                           `json:"samples"`
	Channels []store.ProfileChannel        `json:"channels"`
	Skipped  map[kinematics.Channel]string `json:"skipped,omitempty"`
}

// train handles POST /api/profiles/{id}/train. Channels that cannot be
// fitted keep their current calibration.
func (h *TrainHandler) train(w http.ResponseWriter, r *http.Request, profileID string) {
	if _, err := h.store.Profiles().GetByID(profileID); err != nil {
		writeStoreError(w, err, "Profile")
		return
	}

	raw, err := h.store.Samples().Data(profileID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load samples")
		return
	}
	samples, err := calibrate.ParseSamples(raw)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	chans, err := h.store.Profiles().Channels(profileID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load channels")
		return
	}
	if len(chans) == 0 {
		chans = store.DefaultChannels()
	}

	base := make(map[kinematics.Channel]kinematics.Calibration, len(chans))
	for _, c := range chans {
		base[c.Channel] = c.Calibration
	}

	fitted, skipped, err := h.trainer.Train(samples, base)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	for i, c := range chans {
		if cal, ok := fitted[c.Channel]; ok {
			chans[i].Calibration = cal
		}
	}
	if err := h.store.Profiles().SaveChannels(profileID, chans); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save channels")
		return
	}

	if h.control != nil && h.control.ActiveProfileID() == profileID {
		h.control.ActivateProfile(profileID)
	}

	resp := trainResponse{Samples: len(samples), Channels: chans}
	if len(skipped) > 0 {
		resp.Skipped = make(map[kinematics.Channel]string, len(skipped))
		for ch, e := range skipped {
			resp.Skipped[ch] = e.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
