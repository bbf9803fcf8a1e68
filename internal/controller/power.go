package controller

import (
	"context"
	"log/slog"

	"github.com/micro-nova/panel-go/internal/backlight"
	"github.com/micro-nova/panel-go/internal/hardware"
	"github.com/micro-nova/panel-go/internal/models"
)

// PowerMode returns the DPMS level encoded in the current state bits.
func (p *Panel) PowerMode() models.PowerMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Power()
}

// updateRegulatorLocked changes the supply mode when next needs a different
// one than the last applied state.
func (p *Panel) updateRegulatorLocked(ctx context.Context, next backlight.State) error {
	mode := next.Regulator()
	if mode == p.lastState.Regulator() {
		return nil
	}
	slog.Debug("power: set regulator mode", "mode", mode)
	if err := p.reg.SetMode(ctx, mode); err != nil {
		slog.Warn("power: error updating regulator state", "state", uint32(next), "err", err)
		return models.ErrHardware("power: regulator", err)
	}
	return nil
}

// EarlyPowerMode runs before a power transition becomes visible. Only
// transitions into low power change the regulator here.
func (p *Panel) EarlyPowerMode(ctx context.Context, mode models.PowerMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := backlight.NextState(p.state, mode)
	slog.Info("power: early", "mode", mode, "state", uint32(p.state))
	if next.IsLP() {
		return p.updateRegulatorLocked(ctx, next)
	}
	return nil
}

// LatePowerMode runs after a power transition: it commits the state bits,
// refreshes the backlight and publishes a state notification.
func (p *Panel) LatePowerMode(ctx context.Context, mode models.PowerMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := backlight.NextState(p.state, mode)
	if !next.IsLP() {
		// logged inside; the transition goes ahead regardless
		_ = p.updateRegulatorLocked(ctx, next)
	}
	p.blank = next&backlight.StateFBBlank != 0
	p.state = next

	err := p.updateLocked(ctx)
	p.publish(models.Notification{Kind: models.NotifyState, State: p.stateStringLocked()})
	slog.Info("power: state", "mode", mode, "state", uint32(p.state))
	return err
}

// SetPowerMode performs a complete transition: early hook, the panel's low
// power commands, late hook. Entering LP1 flushes pending switches first.
func (p *Panel) SetPowerMode(ctx context.Context, mode models.PowerMode) error {
	if err := p.EarlyPowerMode(ctx, mode); err != nil {
		slog.Warn("power: early transition failed, continuing", "mode", mode, "err", err)
	}
	if mode == models.PowerLP1 {
		p.switchWorker.Flush()
	}

	p.mu.Lock()
	var err error
	switch {
	case mode == models.PowerLP1:
		err = hardware.Transfer(ctx, p.ch, p.cfg.Commands.LP1)
	case mode == models.PowerLP2:
		err = hardware.Transfer(ctx, p.ch, p.cfg.Commands.LP2)
	case mode == models.PowerOn && p.state.IsLP():
		err = p.strategy.SendNoLP(ctx)
	}
	p.mu.Unlock()
	if err != nil {
		slog.Error("power: low power commands failed", "mode", mode, "err", err)
		return err
	}
	return p.LatePowerMode(ctx, mode)
}

// ALPM returns 0, 1 or 2 for normal, LP1 and LP2.
func (p *Panel) ALPM() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.state&backlight.StateLP2 != 0:
		return 2
	case p.state&backlight.StateLP != 0:
		return 1
	}
	return 0
}

// SetALPM selects the always-on low power level. Repeating the current level
// is a no-op; a blanked panel refuses.
func (p *Panel) SetALPM(ctx context.Context, level int) error {
	if level < 0 {
		return models.ErrBadArgument("alpm", "invalid level %d", level)
	}
	p.mu.Lock()
	st := p.state
	p.mu.Unlock()
	lp := st & (backlight.StateLP | backlight.StateLP2)

	switch {
	case st&backlight.StateFBBlank != 0:
		return models.ErrBadArgument("alpm", "panel is blanked")
	case level == 1 && lp != backlight.StateLP:
		slog.Info("power: activating lp1 mode")
		return p.SetPowerMode(ctx, models.PowerLP1)
	case level > 1 && lp&backlight.StateLP2 == 0:
		slog.Info("power: activating lp2 mode")
		return p.SetPowerMode(ctx, models.PowerLP2)
	case level == 0 && lp != 0:
		slog.Info("power: activating normal mode")
		return p.SetPowerMode(ctx, models.PowerOn)
	}
	return nil
}

// Enable marks the panel initialized and runs the panel's post-enable hook.
// With delay_until_first_frame, brightness writes wait for the next Kickoff.
func (p *Panel) Enable(ctx context.Context) error {
	p.mu.Lock()
	p.initialized = true
	if p.cfg.Backlight.UpdateFlag == models.UpdateDelayUntilFirstFrame {
		p.allowUpdate = false
	}
	p.mu.Unlock()
	slog.Info("panel: enabled", "name", p.cfg.Name)
	return p.strategy.PostEnable(ctx)
}

// Disable flushes the switch queue and marks the panel uninitialized.
func (p *Panel) Disable() {
	p.switchWorker.Flush()
	p.mu.Lock()
	p.initialized = false
	p.mu.Unlock()
	slog.Info("panel: disabled", "name", p.cfg.Name)
}

// Initialized reports whether the panel is enabled.
func (p *Panel) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}
