package models

import (
	"fmt"
	"time"
)

// Command is one raw DCS payload sent to the panel, optionally followed by a delay.
type Command struct {
	Payload []byte        `json:"payload"`
	Delay   time.Duration `json:"delay,omitempty"`
}

// CommandSet is an ordered list of commands sent as one transfer.
type CommandSet []Command

// Empty reports whether the set carries no commands.
func (c CommandSet) Empty() bool { return len(c) == 0 }

// BacklightType selects how physical levels reach the hardware.
type BacklightType string

const (
	BacklightDCS      BacklightType = "dcs"
	BacklightPWM      BacklightType = "pwm"
	BacklightWLED     BacklightType = "wled"
	BacklightExternal BacklightType = "external"
)

// UpdateFlag controls when backlight updates are allowed after enable.
type UpdateFlag string

const (
	UpdateNone                 UpdateFlag = "none"
	UpdateDelayUntilFirstFrame UpdateFlag = "delay_until_first_frame"
)

// Scale limits, matching the display pipeline's fixed-point scale factors.
const (
	MaxBLScaleLevel   = 1024
	MaxSVBLScaleLevel = 65535
	MaxBLLevel        = 4096
	HBMRangeMax       = 10
	MaxBinnedLPModes  = 10
)

// BacklightConfig is the validated brightness calibration for one panel.
// It is immutable once the panel is constructed.
type BacklightConfig struct {
	Type           BacklightType
	UpdateFlag     UpdateFlag
	BrightnessMax  int
	BLMin          int
	BLMax          int
	LUT            []uint16 // nil, or exactly BrightnessMax+1 entries
	HighByteOffset uint
	PWMPin         string
	PWMPeriod      time.Duration
}

// HBMRange maps one band of user brightness onto a band of panel levels.
// Ranges are contiguous and sorted; UserEnd is derived from the next range.
type HBMRange struct {
	UserStart          int        `json:"user_start"`
	UserEnd            int        `json:"user_end"`
	PanelStart         int        `json:"panel_start"`
	PanelEnd           int        `json:"panel_end"`
	EntryCommand       CommandSet `json:"-"`
	DimmingFrames      int        `json:"dimming_frames"`
	DimmingStopCommand CommandSet `json:"-"`
}

// IRCConfig locates the image retention compensation enable bit.
type IRCConfig struct {
	Addr          byte
	BitOffset     int
	UnlockCommand CommandSet
	LockCommand   CommandSet
}

// HBMConfig is the validated high brightness mode description.
type HBMConfig struct {
	Ranges                 []HBMRange
	ExitCommand            CommandSet
	ExitDimmingFrames      int
	ExitDimmingStopCommand CommandSet
	IRC                    *IRCConfig
}

// DimmingUsed reports whether any transition needs the dimming worker.
func (h *HBMConfig) DimmingUsed() bool {
	if h.ExitDimmingFrames > 0 {
		return true
	}
	for _, r := range h.Ranges {
		if r.DimmingFrames > 0 {
			return true
		}
	}
	return false
}

// LPMode is one binned low-power brightness mode.
type LPMode struct {
	Name      string
	Threshold uint32
	Command   CommandSet
}

// DisplayMode is one static timing of the panel.
type DisplayMode struct {
	RefreshRate   int        `json:"refresh_rate"`
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	SwitchCommand CommandSet `json:"-"`
}

func (m DisplayMode) String() string {
	return fmt.Sprintf("%dx%d@%d", m.Width, m.Height, m.RefreshRate)
}

// GammaTableSpec describes one calibration table read per display mode.
type GammaTableSpec struct {
	Command      byte
	Length       int
	PrefixLength int // bytes not stored in flash, copied from the OTP-backed mode
	FlashOffset  int
	ParOffset    byte // OTP read parameter offset, 0 for none
	// GroupWithNext marks the next table as stored right after this one in flash,
	// so its flash offset is derived instead of configured.
	GroupWithNext bool
}

// PanelCommands are the fixed power-mode command sets.
type PanelCommands struct {
	LP1  CommandSet
	LP2  CommandSet
	NoLP CommandSet
}

// Policy holds the tunable product heuristics.
type Policy struct {
	RestartDimmingOnUpdate bool
	DimmerLowestRangeOnly  bool
}

// PanelConfig is the validated, immutable description of one panel.
type PanelConfig struct {
	Name            string
	Type            string
	Backlight       BacklightConfig
	HBM             *HBMConfig // nil when HBM is unavailable
	LPModes         []LPMode   // nil when binned LP is unavailable
	NotifierRanges  []int
	Modes           []DisplayMode
	IdleRefreshRate int
	TEListenCount   int
	Commands        PanelCommands
	Gamma           []GammaTableSpec
	Policy          Policy
}

// Mode returns the display mode with the given refresh rate.
func (c *PanelConfig) Mode(refreshRate int) (*DisplayMode, bool) {
	for i := range c.Modes {
		if c.Modes[i].RefreshRate == refreshRate {
			return &c.Modes[i], true
		}
	}
	return nil, false
}
