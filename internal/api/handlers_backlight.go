package api

import (
	"net/http"

	"github.com/micro-nova/panel-go/internal/models"
)

func (h *Handlers) getBacklight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.panel.Dump().Backlight)
}

func (h *Handlers) setBacklight(w http.ResponseWriter, r *http.Request) {
	var upd models.BacklightUpdate
	if err := decode(r, &upd); err != nil {
		writeError(w, err)
		return
	}
	if err := h.panel.SetBrightness(r.Context(), upd); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.panel.Dump().Backlight)
}

func (h *Handlers) handoff(w http.ResponseWriter, r *http.Request) {
	if err := h.panel.Handoff(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.panel.Dump().Backlight)
}

func (h *Handlers) setALSTable(w http.ResponseWriter, r *http.Request) {
	var t models.ALSTable
	if err := decode(r, &t); err != nil {
		writeError(w, err)
		return
	}
	if err := h.panel.SetALSTable(t.Ranges); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.panel.CalibrationDump())
}

type hbmResponse struct {
	Mode      int              `json:"mode"`
	Name      string           `json:"name"`
	SVEnabled bool             `json:"sv_enabled"`
	State     *models.HBMState `json:"state,omitempty"`
}

func (h *Handlers) hbmResponse() hbmResponse {
	m := h.panel.HBMMode()
	return hbmResponse{Mode: int(m), Name: m.String(), SVEnabled: h.panel.SVEnabled(), State: h.panel.Dump().HBM}
}

func (h *Handlers) getHBM(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hbmResponse())
}

func (h *Handlers) setHBM(w http.ResponseWriter, r *http.Request) {
	var req models.HBMRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.panel.SetHBMMode(r.Context(), models.HBMMode(req.Mode)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.hbmResponse())
}

func (h *Handlers) setSVEnabled(w http.ResponseWriter, r *http.Request) {
	var req models.SVEnabledRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.panel.SetSVEnabled(req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.hbmResponse())
}
