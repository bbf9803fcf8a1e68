package api

import (
	"net/http"

	"github.com/micro-nova/panel-go/internal/models"
)

type powerResponse struct {
	Power string `json:"power"`
	State string `json:"state"`
	ALPM  int    `json:"alpm"`
}

func (h *Handlers) powerResponse() powerResponse {
	d := h.panel.Dump()
	return powerResponse{Power: d.Backlight.Power, State: d.State, ALPM: h.panel.ALPM()}
}

func (h *Handlers) setPower(w http.ResponseWriter, r *http.Request) {
	var req models.PowerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	mode, err := models.ParsePowerMode(req.Mode)
	if err != nil {
		writeError(w, err)
		return
	}
	switch req.Phase {
	case "":
		err = h.panel.SetPowerMode(r.Context(), mode)
	case "early":
		err = h.panel.EarlyPowerMode(r.Context(), mode)
	case "late":
		err = h.panel.LatePowerMode(r.Context(), mode)
	default:
		err = models.ErrBadArgument("power", "unknown phase %q", req.Phase)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.powerResponse())
}

func (h *Handlers) getALPM(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.powerResponse())
}

func (h *Handlers) setALPM(w http.ResponseWriter, r *http.Request) {
	var req models.ALPMRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.panel.SetALPM(r.Context(), req.Mode); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.powerResponse())
}
