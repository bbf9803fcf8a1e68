package backlight

import (
	"log/slog"

	"github.com/micro-nova/panel-go/internal/models"
)

// Model computes physical levels from logical brightness using one panel's
// calibration. It is immutable and safe for concurrent use.
type Model struct {
	cfg models.BacklightConfig
}

// NewModel returns a model over cfg.
func NewModel(cfg models.BacklightConfig) *Model {
	return &Model{cfg: cfg}
}

// Config returns the calibration the model was built with.
func (m *Model) Config() models.BacklightConfig { return m.cfg }

// MinLevel is the lowest non-zero physical level in normal mode.
func (m *Model) MinLevel() int {
	if m.cfg.BLMin > 0 {
		return m.cfg.BLMin
	}
	return 1
}

// Normal maps an already scaled brightness onto a physical level outside HBM.
// A positive floor replaces the configured minimum level (dimmer mode).
func (m *Model) Normal(brightness, floor int) int {
	if brightness <= 0 {
		return 0
	}
	if m.cfg.LUT != nil {
		if brightness > m.cfg.BrightnessMax {
			slog.Warn("backlight: brightness beyond lut", "brightness", brightness, "max", m.cfg.BrightnessMax)
			brightness = m.cfg.BrightnessMax
		}
		return min(int(m.cfg.LUT[brightness]), m.cfg.BLMax)
	}
	lo := m.MinLevel()
	if floor > 0 {
		lo = min(floor, m.cfg.BLMax)
	}
	lvl, err := Lerp(1, m.cfg.BrightnessMax, lo, m.cfg.BLMax, brightness)
	if err != nil {
		slog.Error("backlight: interpolation failed", "brightness", brightness, "err", err)
		return 0
	}
	return lvl
}

// FromPhysical maps a physical level read back from the panel onto the
// logical brightness scale.
func (m *Model) FromPhysical(level int) int {
	b, err := Lerp(m.cfg.BLMin, m.cfg.BLMax, 1, m.cfg.BrightnessMax, level)
	if err != nil {
		return 0
	}
	return b
}

// FindRange returns the index of the first range whose user end is at or
// above brightness.
func FindRange(ranges []models.HBMRange, brightness int) (int, error) {
	for i := range ranges {
		if brightness <= ranges[i].UserEnd {
			return i, nil
		}
	}
	return 0, models.ErrNoMatchingRange
}

// RangeLevel interpolates brightness across one HBM range. A positive floor
// replaces the range's panel start.
func RangeLevel(r models.HBMRange, brightness, floor int) (int, error) {
	lo := r.PanelStart
	if floor > 0 {
		lo = min(floor, r.PanelEnd)
	}
	return Lerp(r.UserStart, r.UserEnd, lo, r.PanelEnd, brightness)
}

// NotifierIndex returns the ALS table slot brightness falls in.
func NotifierIndex(ranges []int, brightness int) (int, bool) {
	for i, edge := range ranges {
		if brightness <= edge {
			return i, true
		}
	}
	return 0, false
}

// FindLPMode returns the first binned LP mode whose threshold is at or above
// brightness, or -1.
func FindLPMode(modes []models.LPMode, brightness int) int {
	for i := range modes {
		if uint32(max(brightness, 0)) <= modes[i].Threshold {
			return i
		}
	}
	return -1
}
