package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/micro-nova/panel-go/internal/models"
)

// sseEvents streams panel notifications. Clients receive a full panel dump
// first, then one event per notification.
func (h *Handlers) sseEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	bus := h.panel.Notifications()
	id := "sse/" + uuid.New().String()
	ch, err := bus.Subscribe(id)
	if err != nil {
		writeError(w, models.ErrInUse("subscribe", "%v", err))
		return
	}
	defer bus.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sendSSE(w, flusher, "panel", h.panel.Dump())

	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			sendSSE(w, flusher, string(n.Kind), n)
		case <-r.Context().Done():
			return
		}
	}
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
