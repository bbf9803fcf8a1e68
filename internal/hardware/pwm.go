package hardware

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
)

// PWMBacklight drives a backlight enable line with a PWM duty cycle
// proportional to the physical level.
type PWMBacklight struct {
	mu     sync.Mutex
	pin    gpio.PinOut
	freq   physic.Frequency
	maxLvl int
	level  int
}

// NewPWMBacklight drives pin at one cycle per period.
func NewPWMBacklight(pin gpio.PinOut, period time.Duration, maxLevel int) (*PWMBacklight, error) {
	if period <= 0 {
		return nil, fmt.Errorf("pwm: invalid period %s", period)
	}
	if maxLevel <= 0 {
		return nil, fmt.Errorf("pwm: invalid max level %d", maxLevel)
	}
	return &PWMBacklight{
		pin:    pin,
		freq:   physic.PeriodToFrequency(period),
		maxLvl: maxLevel,
		level:  -1,
	}, nil
}

// OpenPWMBacklight resolves the pin by name.
func OpenPWMBacklight(name string, period time.Duration, maxLevel int) (*PWMBacklight, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("pwm: failed to open %s", name)
	}
	return NewPWMBacklight(p, period, maxLevel)
}

// SetLevel sets the duty cycle to level/maxLevel. Level 0 drives the line low.
func (b *PWMBacklight) SetLevel(level int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if level < 0 {
		level = 0
	}
	if level > b.maxLvl {
		level = b.maxLvl
	}
	if level == b.level {
		return nil
	}
	var err error
	if level == 0 {
		err = b.pin.Out(gpio.Low)
	} else {
		duty := gpio.Duty(int64(gpio.DutyMax) * int64(level) / int64(b.maxLvl))
		err = b.pin.PWM(duty, b.freq)
	}
	if err != nil {
		return fmt.Errorf("pwm: set level %d: %w", level, err)
	}
	b.level = level
	return nil
}
