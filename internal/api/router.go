package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/micro-nova/panel-go/internal/auth"
	"github.com/micro-nova/panel-go/internal/identity"
)

// NewRouter creates the HTTP router. ov may be nil, in which case the
// settings routes answer 501.
func NewRouter(panel Panel, ov Overlay, authSvc *auth.Service, id identity.Info) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)
	r.Use(middleware.CleanPath)

	h := &Handlers{panel: panel, overlay: ov, id: id}

	r.Group(func(r chi.Router) {
		if authSvc != nil {
			r.Use(authSvc.Middleware)
		}

		r.Get("/api/info", h.getInfo)

		// Panel state and lifecycle
		r.Get("/api/panel", h.getPanel)
		r.Get("/api/panel/calibration", h.getCalibration)
		r.Post("/api/panel/enable", h.enable)
		r.Post("/api/panel/disable", h.disable)
		r.Post("/api/panel/kickoff", h.kickoff)
		r.Get("/api/panel/gamma", h.getGamma)
		r.Delete("/api/panel/gamma", h.invalidateGamma)

		// Backlight
		r.Get("/api/backlight", h.getBacklight)
		r.Patch("/api/backlight", h.setBacklight)
		r.Post("/api/backlight/handoff", h.handoff)
		r.Put("/api/backlight/als", h.setALSTable)
		r.Get("/api/backlight/curve.png", h.getCurve)

		// HBM
		r.Get("/api/hbm", h.getHBM)
		r.Put("/api/hbm", h.setHBM)
		r.Put("/api/hbm/sv", h.setSVEnabled)

		// Power
		r.Put("/api/power", h.setPower)
		r.Get("/api/alpm", h.getALPM)
		r.Put("/api/alpm", h.setALPM)

		// Display modes
		r.Get("/api/modes", h.getModes)
		r.Get("/api/mode", h.getMode)
		r.Put("/api/mode", h.setMode)
		r.Put("/api/mode/{rate}", h.setModeRate)
		r.Post("/api/mode/idle", h.idle)
		r.Post("/api/mode/wakeup", h.wakeup)
		r.Put("/api/debug/te_listen_count", h.setTEListenCount)

		// Overlay
		r.Get("/api/settings", h.getSettings)
		r.Patch("/api/settings", h.setSettings)
		r.Post("/api/screen/{event}", h.screenEvent)
		r.Put("/api/ambient", h.setAmbient)

		// SSE
		r.Get("/api/subscribe", h.sseEvents)
	})

	return r
}

// corsMiddleware adds permissive CORS headers for local network access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, api-key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
