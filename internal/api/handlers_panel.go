package api

import (
	"net/http"

	"github.com/micro-nova/panel-go/internal/identity"
)

type info struct {
	identity.Info
	Name  string `json:"name"`
	Type  string `json:"type"`
	Rates []int  `json:"refresh_rates"`
	HBM   bool   `json:"hbm"`
	Gamma bool   `json:"gamma"`
}

func (h *Handlers) getInfo(w http.ResponseWriter, r *http.Request) {
	cfg := h.panel.Config()
	in := info{
		Info:  h.id,
		Name:  cfg.Name,
		Type:  cfg.Type,
		HBM:   cfg.HBM != nil,
		Gamma: h.panel.Dump().GammaReady,
	}
	for _, m := range cfg.Modes {
		in.Rates = append(in.Rates, m.RefreshRate)
	}
	writeJSON(w, http.StatusOK, in)
}

func (h *Handlers) getPanel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.panel.Dump())
}

func (h *Handlers) getCalibration(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.panel.CalibrationDump())
}

func (h *Handlers) enable(w http.ResponseWriter, r *http.Request) {
	if err := h.panel.Enable(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.panel.Dump())
}

func (h *Handlers) disable(w http.ResponseWriter, r *http.Request) {
	h.panel.Disable()
	writeJSON(w, http.StatusOK, h.panel.Dump())
}

func (h *Handlers) kickoff(w http.ResponseWriter, r *http.Request) {
	if err := h.panel.Kickoff(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) getGamma(w http.ResponseWriter, r *http.Request) {
	dump, err := h.panel.GammaDump(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"modes": dump})
}

func (h *Handlers) invalidateGamma(w http.ResponseWriter, r *http.Request) {
	if err := h.panel.InvalidateGamma(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
