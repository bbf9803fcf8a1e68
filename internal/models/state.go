// Package models defines the data structures shared by the panel daemon:
// the validated panel description, diagnostic dumps, API bodies and errors.
package models

import "strings"

// PowerMode is a display-pipeline power transition.
type PowerMode int

const (
	PowerOn PowerMode = iota
	PowerLP1
	PowerLP2
	PowerOff
)

func (m PowerMode) String() string {
	switch m {
	case PowerOn:
		return "on"
	case PowerLP1:
		return "lp1"
	case PowerLP2:
		return "lp2"
	case PowerOff:
		return "off"
	}
	return "unknown"
}

// ParsePowerMode accepts the names produced by PowerMode.String.
func ParsePowerMode(s string) (PowerMode, error) {
	switch strings.ToLower(s) {
	case "on":
		return PowerOn, nil
	case "lp1":
		return PowerLP1, nil
	case "lp2":
		return PowerLP2, nil
	case "off":
		return PowerOff, nil
	}
	return 0, ErrBadArgument("power", "unknown power mode %q", s)
}

// HBMMode is the high brightness operating mode.
type HBMMode int

const (
	HBMOff HBMMode = iota
	HBMOn
	HBMSV // sunlight visibility
)

func (m HBMMode) String() string {
	switch m {
	case HBMOff:
		return "off"
	case HBMOn:
		return "on"
	case HBMSV:
		return "sv"
	}
	return "unknown"
}

// RegulatorMode is the auxiliary display supply mode.
type RegulatorMode int

const (
	RegulatorNormal RegulatorMode = iota
	RegulatorIdle
	RegulatorStandby
)

func (m RegulatorMode) String() string {
	switch m {
	case RegulatorNormal:
		return "normal"
	case RegulatorIdle:
		return "idle"
	case RegulatorStandby:
		return "standby"
	}
	return "unknown"
}

// BacklightState is the snapshot of the brightness path.
type BacklightState struct {
	Brightness    int    `json:"brightness"`     // requested, logical
	Actual        int    `json:"actual"`         // last applied physical level
	Power         string `json:"power"`          // "on" | "off" | "lp1" | "lp2"
	Blanked       bool   `json:"blanked"`
	StateBits     uint32 `json:"state_bits"`
	LastStateBits uint32 `json:"last_state_bits"`
	Scale         int    `json:"scale"`
	ScaleSV       int    `json:"scale_sv"`
	LUT           bool   `json:"lut"`
	UpdatePending bool   `json:"update_pending"`
	LPMode        string `json:"lp_mode,omitempty"`
	Dimmer        bool   `json:"dimmer"`
	DimmerMin     int    `json:"dimmer_min"`
}

// HBMState is the snapshot of the high brightness range controller.
type HBMState struct {
	Mode      string `json:"mode"`
	SVEnabled bool   `json:"sv_enabled"`
	Range     int    `json:"range"` // -1 when no range has been entered
	Ranges    int    `json:"ranges"`
}

// DimmingState is the snapshot of the dimming session.
type DimmingState struct {
	Active      bool `json:"active"`
	FramesTotal int  `json:"frames_total"`
	FramesLeft  int  `json:"frames_left"`
	HasStop     bool `json:"has_stop_command"`
}

// SwitchState is the snapshot of the refresh-rate switch controller.
type SwitchState struct {
	CurrentRate   int  `json:"current_rate"`
	TargetRate    int  `json:"target_rate"`
	Pending       bool `json:"pending"`
	Idle          bool `json:"idle"`
	TEListenCount int  `json:"te_listen_count"`
	TECounter     int  `json:"te_counter"`
}

// PanelState is the full diagnostic dump of a panel.
type PanelState struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	State       string         `json:"state"` // "Off" | "LP" | "On" | "HBM"
	Mode        string         `json:"mode,omitempty"`
	Initialized bool           `json:"initialized"`
	Backlight   BacklightState `json:"backlight"`
	HBM         *HBMState      `json:"hbm,omitempty"`
	Dimming     DimmingState   `json:"dimming"`
	Switch      SwitchState    `json:"switch"`
	GammaReady  bool           `json:"gamma_ready"`
}

// CalibrationDump is the calibration table as seen by the brightness model.
type CalibrationDump struct {
	BrightnessMax int        `json:"brightness_max"`
	BLMin         int        `json:"bl_min"`
	BLMax         int        `json:"bl_max"`
	LUT           []uint16   `json:"lut,omitempty"`
	HBMRanges     []HBMRange `json:"hbm_ranges,omitempty"`
	LPModes       []string   `json:"lp_modes,omitempty"`
	ALSRanges     []int      `json:"als_ranges,omitempty"`
}

// GammaDump is one mode's cached calibration tables rendered as hex rows.
type GammaDump struct {
	RefreshRate int               `json:"refresh_rate"`
	Tables      map[string]string `json:"tables"` // "0xC8" -> "AA BB ..."
}

// NotificationKind names what changed.
type NotificationKind string

const (
	NotifyBacklight  NotificationKind = "backlight"
	NotifyBrightness NotificationKind = "brightness" // ALS range edge
	NotifyState      NotificationKind = "state"
	NotifyModeSwitch NotificationKind = "mode_switch"
	NotifyHBM        NotificationKind = "hbm"
)

// Notification is published on the panel event bus.
type Notification struct {
	Kind        NotificationKind `json:"kind"`
	Brightness  int              `json:"brightness,omitempty"`
	State       string           `json:"state,omitempty"`
	RefreshRate int              `json:"refresh_rate,omitempty"`
	Range       int              `json:"range,omitempty"`
}
