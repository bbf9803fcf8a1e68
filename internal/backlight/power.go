package backlight

import "github.com/micro-nova/panel-go/internal/models"

// State is the backlight device state bitmask.
type State uint32

const (
	StateSuspended State = 1 << 0
	StateFBBlank   State = 1 << 1
	StateLP2       State = 1 << 29
	StateLP        State = 1 << 30
)

// NextState applies a power transition to the state bits.
func NextState(s State, mode models.PowerMode) State {
	switch mode {
	case models.PowerOn:
		s &^= StateFBBlank | StateLP | StateLP2
	case models.PowerOff:
		s &^= StateLP | StateLP2
		s |= StateFBBlank
	case models.PowerLP1:
		s |= StateLP
		s &^= StateLP2
	case models.PowerLP2:
		s |= StateLP | StateLP2
	}
	return s
}

func (s State) IsLP() bool      { return s&(StateLP|StateLP2) != 0 }
func (s State) IsStandby() bool { return s&(StateFBBlank|StateSuspended) != 0 }
func (s State) IsOn() bool      { return !s.IsLP() && !s.IsStandby() }

// Regulator returns the supply mode required in state s.
func (s State) Regulator() models.RegulatorMode {
	switch {
	case s.IsStandby():
		return models.RegulatorStandby
	case s.IsLP():
		return models.RegulatorIdle
	}
	return models.RegulatorNormal
}

// Power names the DPMS level the bits encode.
func (s State) Power() models.PowerMode {
	switch {
	case s&StateFBBlank != 0:
		return models.PowerOff
	case s&StateLP2 != 0:
		return models.PowerLP2
	case s&StateLP != 0:
		return models.PowerLP1
	}
	return models.PowerOn
}
