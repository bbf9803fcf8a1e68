package api

import (
	"net/http"
	"time"

	"github.com/micro-nova/panel-go/internal/models"
)

// switchWait bounds how long a switch request waits for the panel to take
// the new mode before answering with the still-pending state.
const switchWait = 500 * time.Millisecond

func (h *Handlers) getModes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"modes": h.panel.Config().Modes})
}

func (h *Handlers) getMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.panel.Dump().Switch)
}

func (h *Handlers) setMode(w http.ResponseWriter, r *http.Request) {
	var req models.SwitchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.switchTo(w, r, req.RefreshRate)
}

func (h *Handlers) setModeRate(w http.ResponseWriter, r *http.Request) {
	rate, err := intParam(r, "rate")
	if err != nil {
		writeError(w, err)
		return
	}
	h.switchTo(w, r, rate)
}

func (h *Handlers) switchTo(w http.ResponseWriter, r *http.Request, rate int) {
	if err := h.panel.RequestModeSwitch(r.Context(), rate); err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if err := h.panel.WaitForPendingSwitch(r.Context(), switchWait); err != nil {
		status = http.StatusAccepted
	}
	writeJSON(w, status, h.panel.Dump().Switch)
}

func (h *Handlers) idle(w http.ResponseWriter, r *http.Request) {
	if err := h.panel.Idle(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.panel.Dump().Switch)
}

func (h *Handlers) wakeup(w http.ResponseWriter, r *http.Request) {
	if err := h.panel.Wakeup(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.panel.Dump().Switch)
}

func (h *Handlers) setTEListenCount(w http.ResponseWriter, r *http.Request) {
	var req models.TEListenRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.panel.SetTEListenCount(req.Count); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.panel.Dump().Switch)
}
