// Package api implements the HTTP control and diagnostic surface of the
// panel daemon.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/micro-nova/panel-go/internal/events"
	"github.com/micro-nova/panel-go/internal/identity"
	"github.com/micro-nova/panel-go/internal/models"
	"github.com/micro-nova/panel-go/internal/overlay"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	panel   Panel
	overlay Overlay
	id      identity.Info
}

// Panel is the panel controller as seen by the handlers.
type Panel interface {
	Config() models.PanelConfig
	Dump() models.PanelState
	CalibrationDump() models.CalibrationDump
	Notifications() *events.Bus[models.Notification]

	SetBrightness(ctx context.Context, upd models.BacklightUpdate) error
	SetALSTable(ranges []int) error
	Handoff(ctx context.Context) error

	HBMMode() models.HBMMode
	SetHBMMode(ctx context.Context, mode models.HBMMode) error
	SVEnabled() bool
	SetSVEnabled(enabled bool) error

	SetPowerMode(ctx context.Context, mode models.PowerMode) error
	EarlyPowerMode(ctx context.Context, mode models.PowerMode) error
	LatePowerMode(ctx context.Context, mode models.PowerMode) error
	ALPM() int
	SetALPM(ctx context.Context, level int) error
	Enable(ctx context.Context) error
	Disable()
	Kickoff(ctx context.Context) error

	CurrentMode() models.DisplayMode
	RequestModeSwitch(ctx context.Context, refreshRate int) error
	WaitForPendingSwitch(ctx context.Context, timeout time.Duration) error
	Idle(ctx context.Context) error
	Wakeup(ctx context.Context) error
	SetTEListenCount(n int) error

	GammaDump(ctx context.Context) ([]models.GammaDump, error)
	InvalidateGamma() error
}

// Overlay is the user settings layer. It may be nil when the daemon runs
// without one.
type Overlay interface {
	Settings() models.Settings
	Update(ctx context.Context, upd models.SettingsUpdate) (models.Settings, error)
	Screen(ctx context.Context, ev overlay.ScreenEvent)
	AmbientLight(ctx context.Context, lux int)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes err as a JSON body, using the PanelError kind for the
// status code.
func writeError(w http.ResponseWriter, err error) {
	var pe *models.PanelError
	if errors.As(err, &pe) {
		writeJSON(w, pe.HTTPStatus(), pe)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		writeJSON(w, http.StatusGatewayTimeout, models.ErrTimedOut("request"))
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "INTERNAL", "message": err.Error()})
}

// decode reads a JSON request body into v.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.ErrBadArgument("api", "invalid JSON: %v", err)
	}
	return nil
}

// intParam reads an integer path parameter by name.
func intParam(r *http.Request, name string) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, models.ErrBadArgument("api", "invalid %s parameter", name)
	}
	return n, nil
}
