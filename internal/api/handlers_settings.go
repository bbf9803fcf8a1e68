package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/micro-nova/panel-go/internal/models"
	"github.com/micro-nova/panel-go/internal/overlay"
)

type ambientRequest struct {
	Lux int `json:"lux"`
}

func (h *Handlers) noOverlay(w http.ResponseWriter) bool {
	if h.overlay == nil {
		writeError(w, models.ErrUnsupported("settings"))
		return true
	}
	return false
}

func (h *Handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	if h.noOverlay(w) {
		return
	}
	writeJSON(w, http.StatusOK, h.overlay.Settings())
}

func (h *Handlers) setSettings(w http.ResponseWriter, r *http.Request) {
	if h.noOverlay(w) {
		return
	}
	var upd models.SettingsUpdate
	if err := decode(r, &upd); err != nil {
		writeError(w, err)
		return
	}
	st, err := h.overlay.Update(r.Context(), upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handlers) screenEvent(w http.ResponseWriter, r *http.Request) {
	if h.noOverlay(w) {
		return
	}
	ev, err := overlay.ParseScreenEvent(chi.URLParam(r, "event"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.overlay.Screen(r.Context(), ev)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) setAmbient(w http.ResponseWriter, r *http.Request) {
	if h.noOverlay(w) {
		return
	}
	var req ambientRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Lux < 0 {
		writeError(w, models.ErrBadArgument("ambient", "lux %d is negative", req.Lux))
		return
	}
	h.overlay.AmbientLight(r.Context(), req.Lux)
	w.WriteHeader(http.StatusNoContent)
}
