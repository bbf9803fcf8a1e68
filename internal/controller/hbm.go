package controller

import (
	"context"
	"errors"
	"log/slog"

	"github.com/micro-nova/panel-go/internal/backlight"
	"github.com/micro-nova/panel-go/internal/hardware"
	"github.com/micro-nova/panel-go/internal/models"
)

var errShortRead = errors.New("short read")

// HBMMode returns the current high brightness mode.
func (p *Panel) HBMMode() models.HBMMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hbmMode
}

// SetHBMMode switches between normal, HBM and sunlight visibility modes and
// refreshes the level.
func (p *Panel) SetHBMMode(ctx context.Context, mode models.HBMMode) error {
	hbm := p.cfg.HBM
	if hbm == nil {
		return models.ErrUnsupported("hbm")
	}
	if mode < models.HBMOff || mode > models.HBMSV {
		return models.ErrBadArgument("hbm", "unknown mode %d", mode)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if mode == models.HBMSV && !p.svEnabled {
		return models.ErrBadArgument("hbm", "sunlight visibility is disabled")
	}
	if mode == p.hbmMode {
		return nil
	}
	prev := p.hbmMode
	p.hbmMode = mode
	slog.Info("hbm: mode changed", "from", prev, "to", mode)

	if mode == models.HBMOff {
		if err := p.startDimmingLocked(hbm.ExitDimmingFrames, hbm.ExitDimmingStopCommand); err != nil {
			slog.Error("hbm: unable to start exit dimming", "err", err)
		}
		if err := p.sendHBMLocked(ctx, hbm.ExitCommand); err != nil {
			slog.Error("hbm: exit command failed", "err", err)
		}
		p.curRange = -1
	}

	switch {
	case mode == models.HBMSV:
		p.pendingIRCOn = false
		p.setIRCLogged(ctx, false)
	case prev == models.HBMSV && p.dim.active:
		p.pendingIRCOn = true
	case prev == models.HBMSV:
		p.setIRCLogged(ctx, true)
	}

	err := p.updateLocked(ctx)
	p.publish(models.Notification{Kind: models.NotifyHBM, State: mode.String(), Range: p.curRange})
	return err
}

// SVEnabled reports whether sunlight visibility mode may be entered.
func (p *Panel) SVEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.svEnabled
}

// SetSVEnabled allows or forbids sunlight visibility mode. It cannot be
// disabled while the panel is in it.
func (p *Panel) SetSVEnabled(enabled bool) error {
	if p.cfg.HBM == nil {
		return models.ErrUnsupported("hbm")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !enabled && p.hbmMode == models.HBMSV {
		return models.ErrInUse("hbm", "sunlight visibility mode is active")
	}
	p.svEnabled = enabled
	return nil
}

// hbmLevelLocked finds the HBM range for an already scaled brightness,
// enters it when it differs from the current one and interpolates within it.
// Failures fall back to the last applied level.
func (p *Panel) hbmLevelLocked(ctx context.Context, brightness int) int {
	ranges := p.cfg.HBM.Ranges
	target := 0
	if brightness > 0 {
		idx, err := backlight.FindRange(ranges, brightness)
		if err != nil {
			slog.Error("hbm: no range for brightness", "brightness", brightness)
			return p.actual
		}
		target = idx
	}

	r := ranges[target]
	if target != p.curRange {
		if err := p.startDimmingLocked(r.DimmingFrames, r.DimmingStopCommand); err != nil {
			slog.Error("hbm: unable to start dimming", "range", target, "err", err)
		}
		slog.Info("hbm: range changed", "from", p.curRange, "to", target)
		p.curRange = target
		if err := p.sendHBMLocked(ctx, r.EntryCommand); err != nil {
			slog.Error("hbm: range entry command failed", "range", target, "err", err)
			return p.actual
		}
	}

	floor := 0
	if p.dimmer && (target == 0 || !p.cfg.Policy.DimmerLowestRangeOnly) {
		floor = p.dimmerMin
	}
	lvl, err := backlight.RangeLevel(r, brightness, floor)
	if err != nil {
		slog.Error("hbm: interpolation failed", "range", target, "err", err)
	}
	return lvl
}

// sendHBMLocked applies the panel's own HBM update when it has one and falls
// back to sending set.
func (p *Panel) sendHBMLocked(ctx context.Context, set models.CommandSet) error {
	err := p.strategy.UpdateHBM(ctx)
	if errors.Is(err, models.ErrNotSupported) {
		return hardware.Transfer(ctx, p.ch, set)
	}
	return err
}

func (p *Panel) setIRCLogged(ctx context.Context, enable bool) {
	if err := p.updateIRCLocked(ctx, enable); err != nil && !errors.Is(err, models.ErrNotSupported) {
		slog.Error("hbm: irc update failed", "enable", enable, "err", err)
	}
}

// updateIRCLocked sets or clears the image retention compensation bit. The
// register is read once and cached; later updates modify the cached copy.
func (p *Panel) updateIRCLocked(ctx context.Context, enable bool) error {
	irc := p.cfg.HBM.IRC
	if irc == nil || irc.Addr == 0 {
		return models.ErrUnsupported("irc")
	}
	byteOffset := irc.BitOffset / 8
	mask := byte(1) << (irc.BitOffset % 8)

	slog.Info("hbm: irc update", "enable", enable)
	if err := hardware.Transfer(ctx, p.ch, irc.UnlockCommand); err != nil {
		slog.Warn("hbm: irc unlock failed", "err", err)
	}
	defer func() {
		if err := hardware.Transfer(ctx, p.ch, irc.LockCommand); err != nil {
			slog.Warn("hbm: irc lock failed", "err", err)
		}
	}()

	if p.ircData == nil {
		buf, err := p.ch.ReadRegister(ctx, irc.Addr, byteOffset+1)
		if err != nil {
			return models.ErrHardware("irc: read", err)
		}
		if len(buf) != byteOffset+1 {
			return models.ErrHardware("irc: read", errShortRead)
		}
		p.ircData = buf
		slog.Info("hbm: read back initial irc configuration", "data", buf)
	}

	if enable {
		p.ircData[byteOffset] |= mask
	} else {
		p.ircData[byteOffset] &^= mask
	}
	payload := append([]byte{irc.Addr}, p.ircData...)
	if err := p.ch.SendCommand(ctx, payload); err != nil {
		return models.ErrHardware("irc: write", err)
	}
	return nil
}
