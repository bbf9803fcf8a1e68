package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/micro-nova/panel-go/internal/models"
)

// GPIORegulator drives the display supply through two control lines:
// EN (low = standby) and LPM (high = idle/low-power).
type GPIORegulator struct {
	mu  sync.Mutex
	en  gpio.PinOut
	lpm gpio.PinOut
}

// NewGPIORegulator uses already-resolved pins. lpm may be nil when the
// supply has no low-power input; idle then maps to normal.
func NewGPIORegulator(en, lpm gpio.PinOut) *GPIORegulator {
	return &GPIORegulator{en: en, lpm: lpm}
}

// OpenGPIORegulator resolves the pins by name (e.g. "GPIO22"). host.Init must
// have run first.
func OpenGPIORegulator(enName, lpmName string) (*GPIORegulator, error) {
	en := gpioreg.ByName(enName)
	if en == nil {
		return nil, fmt.Errorf("gpio: failed to open %s (EN)", enName)
	}
	var lpm gpio.PinOut
	if lpmName != "" {
		p := gpioreg.ByName(lpmName)
		if p == nil {
			return nil, fmt.Errorf("gpio: failed to open %s (LPM)", lpmName)
		}
		lpm = p
	}
	return NewGPIORegulator(en, lpm), nil
}

func (r *GPIORegulator) SetMode(ctx context.Context, mode models.RegulatorMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	enLevel, lpmLevel := gpio.High, gpio.Low
	switch mode {
	case models.RegulatorIdle:
		lpmLevel = gpio.High
	case models.RegulatorStandby:
		enLevel = gpio.Low
	}
	// Enter low-power before dropping EN, leave it after raising EN.
	if r.lpm != nil && lpmLevel == gpio.High {
		if err := r.lpm.Out(lpmLevel); err != nil {
			return fmt.Errorf("gpio: set LPM: %w", err)
		}
	}
	if err := r.en.Out(enLevel); err != nil {
		return fmt.Errorf("gpio: set EN: %w", err)
	}
	if r.lpm != nil && lpmLevel == gpio.Low {
		if err := r.lpm.Out(lpmLevel); err != nil {
			return fmt.Errorf("gpio: set LPM: %w", err)
		}
	}
	slog.Debug("gpio: regulator mode set", "mode", mode, "en", enLevel, "lpm", lpmLevel)
	return nil
}
