package models

// Overlay bounds.
const (
	DefaultBacklightMin = 3
	MinBacklightMin     = 2
	MaxBacklightMin     = 128
)

// Settings are the user-tunable overlay settings, persisted by the settings store.
type Settings struct {
	HBMSwitch          bool `json:"hbm_switch"`
	HBMUseAmbientLight bool `json:"hbm_use_ambient_light"`
	BacklightMin       int  `json:"backlight_min"`
	BacklightDimmer    bool `json:"backlight_dimmer"`
}

// DefaultSettings returns the overlay settings used when no settings file exists.
func DefaultSettings() Settings {
	return Settings{
		BacklightMin: DefaultBacklightMin,
	}
}

// Apply merges the non-nil fields of upd into s.
func (s *Settings) Apply(upd SettingsUpdate) {
	if upd.HBMSwitch != nil {
		s.HBMSwitch = *upd.HBMSwitch
	}
	if upd.HBMUseAmbientLight != nil {
		s.HBMUseAmbientLight = *upd.HBMUseAmbientLight
	}
	if upd.BacklightMin != nil {
		s.BacklightMin = *upd.BacklightMin
	}
	if upd.BacklightDimmer != nil {
		s.BacklightDimmer = *upd.BacklightDimmer
	}
}

// DefaultPolicy is the product heuristic set shipped with the original panels.
func DefaultPolicy() Policy {
	return Policy{
		RestartDimmingOnUpdate: true,
		DimmerLowestRangeOnly:  true,
	}
}
