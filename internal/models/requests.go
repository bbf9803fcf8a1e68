package models

// BacklightUpdate is the PATCH body for the backlight device.
type BacklightUpdate struct {
	Brightness *int  `json:"brightness,omitempty"`
	Blank      *bool `json:"blank,omitempty"` // power prop: true = FB_BLANK_POWERDOWN
	Scale      *int  `json:"scale,omitempty"`
	ScaleSV    *int  `json:"scale_sv,omitempty"`
}

// PowerRequest is the body for a power mode transition.
type PowerRequest struct {
	Mode  string `json:"mode"`
	Phase string `json:"phase,omitempty"` // "" (both) | "early" | "late"
}

// HBMRequest selects the high brightness mode.
type HBMRequest struct {
	Mode int `json:"mode"`
}

// SVEnabledRequest toggles whether sunlight visibility mode may be entered.
type SVEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ALPMRequest selects the always-on low power mode (0, 1 or 2).
type ALPMRequest struct {
	Mode int `json:"mode"`
}

// SwitchRequest selects a display mode by refresh rate.
type SwitchRequest struct {
	RefreshRate int `json:"refresh_rate"`
}

// ALSTable is the brightness notifier range table.
type ALSTable struct {
	Ranges []int `json:"ranges"`
}

// TEListenRequest sets how many TE pulses the switch worker listens for.
type TEListenRequest struct {
	Count int `json:"count"`
}

// SettingsUpdate is the PATCH body for the user overlay settings.
type SettingsUpdate struct {
	HBMSwitch          *bool `json:"hbm_switch,omitempty"`
	HBMUseAmbientLight *bool `json:"hbm_use_ambient_light,omitempty"`
	BacklightMin       *int  `json:"backlight_min,omitempty"`
	BacklightDimmer    *bool `json:"backlight_dimmer,omitempty"`
}
