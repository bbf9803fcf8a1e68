// Package overlay applies the user-tunable display settings on top of the
// panel: the backlight dimmer floor and the automatic HBM switch driven by
// ambient light and screen events.
package overlay

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/micro-nova/panel-go/internal/config"
	"github.com/micro-nova/panel-go/internal/models"
)

// Panel is the part of the panel controller the overlay drives.
type Panel interface {
	SetDimmer(ctx context.Context, on bool, floor int) error
	HBMMode() models.HBMMode
	SetHBMMode(ctx context.Context, mode models.HBMMode) error
	PowerMode() models.PowerMode
}

// Listener is told about every settings change, including reloads from disk.
type Listener interface {
	SettingsChanged(s models.Settings)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(models.Settings)

func (f ListenerFunc) SettingsChanged(s models.Settings) { f(s) }

// ScreenEvent is a screen notification from the session.
type ScreenEvent int

const (
	ScreenSleep ScreenEvent = iota
	ScreenLock
	ScreenWake // woken by the user
)

func (e ScreenEvent) String() string {
	switch e {
	case ScreenSleep:
		return "sleep"
	case ScreenLock:
		return "lock"
	case ScreenWake:
		return "wake"
	}
	return "unknown"
}

// ParseScreenEvent accepts the names produced by ScreenEvent.String.
func ParseScreenEvent(s string) (ScreenEvent, error) {
	switch s {
	case "sleep":
		return ScreenSleep, nil
	case "lock":
		return ScreenLock, nil
	case "wake":
		return ScreenWake, nil
	}
	return 0, models.ErrBadArgument("screen", "unknown screen event %q", s)
}

const noLux = -1

// Overlay owns the user settings and keeps the panel in line with them.
type Overlay struct {
	panel Panel
	store config.Store

	mu        sync.Mutex
	settings  models.Settings
	listeners []Listener

	userWake  bool // screen was last woken by the user
	freshWake bool // no HBM decision made since that wake
	hbmOn     bool // overlay's view of HBM, reset on sleep and wake
	lux       int
}

// New loads the settings from store and applies them to panel.
func New(ctx context.Context, panel Panel, store config.Store) (*Overlay, error) {
	st, err := store.Load()
	if err != nil {
		return nil, err
	}
	o := &Overlay{
		panel:    panel,
		store:    store,
		settings: *st,
		lux:      noLux,
	}
	o.mu.Lock()
	o.applyLocked(ctx)
	o.mu.Unlock()
	return o, nil
}

// Settings returns the current settings.
func (o *Overlay) Settings() models.Settings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settings
}

// AddListener registers l for settings changes.
func (o *Overlay) AddListener(l Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

// Update merges upd into the settings, persists them and applies them.
func (o *Overlay) Update(ctx context.Context, upd models.SettingsUpdate) (models.Settings, error) {
	if upd.BacklightMin != nil {
		if v := *upd.BacklightMin; v < models.MinBacklightMin || v > models.MaxBacklightMin {
			return models.Settings{}, models.ErrBadArgument("settings", "backlight_min %d outside [%d, %d]",
				v, models.MinBacklightMin, models.MaxBacklightMin)
		}
	}

	o.mu.Lock()
	next := o.settings
	next.Apply(upd)
	if err := o.store.Save(&next); err != nil {
		o.mu.Unlock()
		return models.Settings{}, err
	}
	ls := o.setLocked(ctx, next)
	o.mu.Unlock()
	notify(ls, next)
	return next, nil
}

// Reload re-reads the settings from the store, for edits made on disk.
func (o *Overlay) Reload(ctx context.Context) error {
	st, err := o.store.Load()
	if err != nil {
		return err
	}
	o.mu.Lock()
	if *st == o.settings {
		o.mu.Unlock()
		return nil
	}
	slog.Info("overlay: settings reloaded", "path", o.store.Path())
	ls := o.setLocked(ctx, *st)
	o.mu.Unlock()
	notify(ls, *st)
	return nil
}

// setLocked applies st and returns the listeners to notify once the lock is
// released.
func (o *Overlay) setLocked(ctx context.Context, st models.Settings) []Listener {
	o.settings = st
	o.applyLocked(ctx)
	return append([]Listener(nil), o.listeners...)
}

func notify(ls []Listener, st models.Settings) {
	for _, l := range ls {
		l.SettingsChanged(st)
	}
}

func (o *Overlay) applyLocked(ctx context.Context) {
	st := o.settings
	if err := o.panel.SetDimmer(ctx, st.BacklightDimmer, st.BacklightMin); err != nil {
		slog.Warn("overlay: failed to apply dimmer", "err", err)
	}
	o.evaluateLocked(ctx)
}

// Screen handles a screen notification. Every event resets lux tracking;
// sleep and wake also forget the HBM state.
func (o *Overlay) Screen(ctx context.Context, ev ScreenEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	slog.Debug("overlay: screen event", "event", ev)
	o.lux = noLux
	switch ev {
	case ScreenSleep:
		o.userWake = false
		o.hbmOn = false
	case ScreenLock:
		o.userWake = false
	case ScreenWake:
		o.userWake = true
		o.freshWake = true
		o.hbmOn = false
	}
	o.evaluateLocked(ctx)
}

// AmbientLight feeds a new ambient light reading in lux.
func (o *Overlay) AmbientLight(ctx context.Context, lux int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if lux == o.lux {
		return
	}
	o.lux = lux
	o.evaluateLocked(ctx)
}

// evaluateLocked runs the HBM auto-switch policy.
func (o *Overlay) evaluateLocked(ctx context.Context) {
	if !o.userWake {
		return
	}
	st := o.settings
	want := models.HBMOn
	switch {
	case !st.HBMSwitch:
		want = models.HBMOff
	case st.HBMUseAmbientLight && o.lux == 0:
		want = models.HBMOff
	}

	if want == models.HBMOff {
		if o.panel.HBMMode() != models.HBMOff {
			o.setHBMLocked(ctx, models.HBMOff)
		}
		o.hbmOn = false
		return
	}
	if o.hbmOn && !o.freshWake {
		return
	}
	if o.panel.PowerMode() == models.PowerOff {
		slog.Debug("overlay: not entering hbm while blanked")
		return
	}
	if o.setHBMLocked(ctx, models.HBMOn) {
		o.hbmOn = true
		o.freshWake = false
	}
}

func (o *Overlay) setHBMLocked(ctx context.Context, mode models.HBMMode) bool {
	err := o.panel.SetHBMMode(ctx, mode)
	switch {
	case err == nil:
		slog.Info("overlay: hbm switched", "mode", mode, "lux", o.lux)
		return true
	case errors.Is(err, models.ErrNotSupported):
		slog.Debug("overlay: panel has no hbm")
	default:
		slog.Warn("overlay: failed to switch hbm", "mode", mode, "err", err)
	}
	return false
}
