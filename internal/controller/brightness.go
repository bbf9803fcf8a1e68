package controller

import (
	"context"
	"log/slog"

	"github.com/micro-nova/panel-go/internal/backlight"
	"github.com/micro-nova/panel-go/internal/hardware"
	"github.com/micro-nova/panel-go/internal/models"
)

const maxALSRanges = 10

// SetBrightness applies a backlight update and refreshes the physical level.
// Fields left nil keep their current value.
func (p *Panel) SetBrightness(ctx context.Context, upd models.BacklightUpdate) error {
	bl := p.cfg.Backlight
	if upd.Brightness != nil && (*upd.Brightness < 0 || *upd.Brightness > bl.BrightnessMax) {
		return models.ErrBadArgument("brightness", "brightness %d outside [0,%d]", *upd.Brightness, bl.BrightnessMax)
	}
	if upd.Scale != nil && (*upd.Scale < 0 || *upd.Scale > models.MaxBLScaleLevel) {
		return models.ErrBadArgument("brightness", "scale %d outside [0,%d]", *upd.Scale, models.MaxBLScaleLevel)
	}
	if upd.ScaleSV != nil && (*upd.ScaleSV < 0 || *upd.ScaleSV > models.MaxSVBLScaleLevel) {
		return models.ErrBadArgument("brightness", "sv scale %d outside [0,%d]", *upd.ScaleSV, models.MaxSVBLScaleLevel)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if upd.Brightness != nil {
		p.brightness = *upd.Brightness
	}
	if upd.Blank != nil {
		p.blank = *upd.Blank
	}
	if upd.Scale != nil {
		p.scale = *upd.Scale
	}
	if upd.ScaleSV != nil {
		p.scaleSV = *upd.ScaleSV
	}
	return p.updateLocked(ctx)
}

// Brightness returns the last applied physical level.
func (p *Panel) Brightness() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.actual
}

// RequestedBrightness returns the logical brightness last requested.
func (p *Panel) RequestedBrightness() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.brightness
}

// effectiveBrightnessLocked is the requested brightness gated by blanking and
// the power state bits.
func (p *Panel) effectiveBrightnessLocked() int {
	if p.blank || p.state.IsStandby() {
		return 0
	}
	return p.brightness
}

// updateLocked recomputes the physical level and writes it when it or the
// state bits changed since the last write.
func (p *Panel) updateLocked(ctx context.Context) error {
	brightness := p.effectiveBrightnessLocked()
	lvl := p.calculateLocked(ctx, brightness)
	if lvl == p.actual && p.state == p.lastState {
		return nil
	}

	if !p.allowUpdate {
		p.updatePending = true
		return nil
	}

	if p.cfg.Policy.RestartDimmingOnUpdate {
		p.restartDimmingLocked()
	}

	notify := false
	if p.initialized && p.hasUpdater() {
		slog.Info("backlight: update", "req", p.brightness, "level", lvl, "state", uint32(p.state))
		if err := p.writeLevelLocked(ctx, lvl); err != nil {
			slog.Error("backlight: unable to set level", "level", lvl, "err", err)
			return err
		}
		p.updatePending = false
		notify = true
		p.notifyALSLocked(brightness)
	}
	p.actual = lvl
	p.lastState = p.state
	p.firstApplied = true

	if notify && brightness != 0 {
		p.publish(models.Notification{Kind: models.NotifyBacklight, Brightness: brightness})
	}
	return nil
}

// calculateLocked maps a logical brightness onto a physical level. It may
// enter a new HBM range as a side effect.
func (p *Panel) calculateLocked(ctx context.Context, brightness int) int {
	if brightness <= 0 {
		return 0
	}
	b := backlight.Scale(brightness, p.scale, p.scaleSV)
	var lvl int
	if p.hbmMode != models.HBMOff && p.cfg.HBM != nil {
		lvl = p.hbmLevelLocked(ctx, b)
	} else {
		lvl = p.model.Normal(b, p.normalFloorLocked())
	}
	slog.Debug("backlight: calculated", "brightness", brightness, "scale", p.scale,
		"sv", p.scaleSV, "level", lvl, "hbm", p.hbmMode)
	return lvl
}

func (p *Panel) normalFloorLocked() int {
	if p.dimmer {
		return p.dimmerMin
	}
	return 0
}

// notifyALSLocked publishes a brightness notification when the requested
// brightness crosses into a different ALS table slot. Only On mode outside
// HBM is tracked.
func (p *Panel) notifyALSLocked(brightness int) {
	if p.alsRanges == nil || !p.state.IsOn() || p.hbmMode != models.HBMOff {
		return
	}
	idx, ok := backlight.NotifierIndex(p.alsRanges, brightness)
	if !ok {
		slog.Warn("backlight: brightness beyond als table", "brightness", brightness)
		return
	}
	if idx != p.alsIndex {
		p.alsIndex = idx
		p.publish(models.Notification{Kind: models.NotifyBrightness, Brightness: brightness, Range: idx})
	}
}

func (p *Panel) hasUpdater() bool {
	switch p.cfg.Backlight.Type {
	case models.BacklightDCS, models.BacklightPWM:
		return true
	}
	return false
}

func (p *Panel) writeLevelLocked(ctx context.Context, lvl int) error {
	switch p.cfg.Backlight.Type {
	case models.BacklightPWM:
		if err := p.pwm.SetLevel(lvl); err != nil {
			return models.ErrHardware("backlight: pwm", err)
		}
		return nil
	case models.BacklightDCS:
		if len(p.cfg.LPModes) > 0 {
			return p.binnedLocked(ctx, lvl)
		}
		return p.dcsLocked(ctx, lvl)
	}
	return nil
}

func (p *Panel) dcsLocked(ctx context.Context, lvl int) error {
	bl := p.cfg.Backlight
	payload, err := hardware.BrightnessPayload(lvl, bl.BLMax, bl.HighByteOffset)
	if err != nil {
		return err
	}
	if lvl == p.actual {
		return nil
	}
	if err := p.ch.SendCommand(ctx, payload); err != nil {
		return models.ErrHardware("backlight: dcs", err)
	}
	return nil
}

// binnedLocked replaces DCS brightness writes with the binned LP mode
// commands while the panel is in a low power state.
func (p *Panel) binnedLocked(ctx context.Context, lvl int) error {
	node := -1
	if p.state.IsLP() {
		node = backlight.FindLPMode(p.cfg.LPModes, p.brightness)
		if node < 0 {
			slog.Warn("backlight: no lp mode for brightness", "brightness", p.brightness)
		}
	}

	if node != p.lpMode {
		p.lpMode = node
		if node >= 0 {
			m := p.cfg.LPModes[node]
			slog.Debug("backlight: switching lp mode", "mode", m.Name, "brightness", p.brightness)
			if err := hardware.Transfer(ctx, p.ch, m.Command); err != nil {
				slog.Warn("backlight: lp mode command failed", "mode", m.Name, "err", err)
			}
		} else {
			// force the next dcs write after leaving lp
			p.actual = -1
		}
	}

	if node >= 0 {
		return nil
	}
	return p.dcsLocked(ctx, lvl)
}

// SetDimmer configures the dimmer floor. min is clamped to the allowed range.
// The level is refreshed when the setting changed after the first applied
// brightness and the panel is not blanked.
func (p *Panel) SetDimmer(ctx context.Context, on bool, floor int) error {
	floor = max(models.MinBacklightMin, min(floor, models.MaxBacklightMin))

	p.mu.Lock()
	defer p.mu.Unlock()
	changed := on != p.dimmer || floor != p.dimmerMin
	p.dimmer = on
	p.dimmerMin = floor
	if !changed || !p.firstApplied || p.state&backlight.StateFBBlank != 0 {
		return nil
	}
	return p.updateLocked(ctx)
}

// SetALSTable replaces the ambient light notifier table.
func (p *Panel) SetALSTable(ranges []int) error {
	if len(ranges) == 0 || len(ranges) > maxALSRanges {
		return models.ErrBadArgument("als", "need 1 to %d ranges, got %d", maxALSRanges, len(ranges))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.alsRanges == nil {
		return models.ErrUnsupported("als")
	}
	p.alsRanges = append([]int(nil), ranges...)
	return nil
}

// Handoff seeds the requested brightness from the level the bootloader left
// on the panel.
func (p *Panel) Handoff(ctx context.Context) error {
	bl := p.cfg.Backlight
	width := hardware.BrightnessWidth(bl.BLMax, bl.HighByteOffset)

	p.mu.Lock()
	defer p.mu.Unlock()
	buf, err := p.ch.ReadRegister(ctx, hardware.DCSGetDisplayBrightness, width)
	if err != nil {
		slog.Error("backlight: unable to read brightness from panel", "err", err)
		return models.ErrHardware("handoff", err)
	}
	lvl, err := hardware.DecodeBrightness(buf, bl.HighByteOffset)
	if err != nil {
		return models.ErrHardware("handoff", err)
	}
	// some panels do not clear unused bits
	lvl &= 1<<backlight.HighestBit(bl.BLMax) - 1

	b, err := backlight.Lerp(bl.BLMin, bl.BLMax, 1, bl.BrightnessMax, lvl)
	if err != nil {
		return models.ErrConfig("handoff", "map level %d: %v", lvl, err)
	}
	slog.Debug("backlight: handoff", "level", lvl, "brightness", b)
	p.brightness = b
	return nil
}
