package config

import (
	"cmp"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/micro-nova/panel-go/internal/gamma"
	"github.com/micro-nova/panel-go/internal/models"
)

// Backlight defaults applied when the description leaves a field out.
const (
	DefaultBrightnessMax  = 255
	DefaultBLMin          = 0
	DefaultBLMax          = models.MaxBLLevel
	DefaultHighByteOffset = 8
)

// PanelFile is the on-disk YAML panel description.
type PanelFile struct {
	Name      string        `yaml:"name"`
	PanelType string        `yaml:"panel_type"`
	Backlight BacklightFile `yaml:"backlight"`
	HBM       *HBMFile      `yaml:"hbm"`
	BinnedLP  []LPModeFile  `yaml:"binned_lp"`
	Modes     []ModeFile    `yaml:"modes"`

	IdleRefreshRate int `yaml:"idle_refresh_rate"`
	TEListenCount   int `yaml:"te_listen_count"`

	Commands struct {
		LP1  Commands `yaml:"lp1"`
		LP2  Commands `yaml:"lp2"`
		NoLP Commands `yaml:"nolp"`
	} `yaml:"commands"`

	Gamma []GammaFile `yaml:"gamma"`

	Policy struct {
		RestartDimmingOnUpdate *bool `yaml:"restart_dimming_on_update"`
		DimmerLowestRangeOnly  *bool `yaml:"dimmer_lowest_range_only"`
	} `yaml:"policy"`
}

type BacklightFile struct {
	Type           string        `yaml:"type"`
	UpdateFlag     string        `yaml:"update_flag"`
	BrightnessMax  *int          `yaml:"brightness_max_level"`
	BLMin          *int          `yaml:"bl_min_level"`
	BLMax          *int          `yaml:"bl_max_level"`
	HighByteOffset *uint         `yaml:"high_byte_offset"`
	LUT            []uint16      `yaml:"lut"`
	PWMPin         string        `yaml:"pwm_pin"`
	PWMPeriod      time.Duration `yaml:"pwm_period"`
	NotifierRanges []int         `yaml:"notifier_ranges"`
}

type HBMFile struct {
	Ranges                 []HBMRangeFile `yaml:"ranges"`
	ExitCommand            Commands       `yaml:"exit_command"`
	ExitDimmingFrames      int            `yaml:"exit_dimming_frames"`
	ExitDimmingStopCommand Commands       `yaml:"exit_dimming_stop_command"`
	IRC                    *struct {
		Addr          byte     `yaml:"addr"`
		BitOffset     int      `yaml:"bit_offset"`
		UnlockCommand Commands `yaml:"unlock_command"`
		LockCommand   Commands `yaml:"lock_command"`
	} `yaml:"irc"`
}

type HBMRangeFile struct {
	UserStart          int      `yaml:"user_bri_start"`
	PanelStart         int      `yaml:"panel_bri_start"`
	PanelEnd           int      `yaml:"panel_bri_end"`
	EntryCommand       Commands `yaml:"entry_command"`
	DimmingFrames      int      `yaml:"dimming_frames"`
	DimmingStopCommand Commands `yaml:"dimming_stop_command"`
}

type LPModeFile struct {
	Name      string   `yaml:"name"`
	Threshold *uint32  `yaml:"threshold"`
	Command   Commands `yaml:"command"`
}

type ModeFile struct {
	RefreshRate   int      `yaml:"refresh_rate"`
	Width         int      `yaml:"width"`
	Height        int      `yaml:"height"`
	SwitchCommand Commands `yaml:"switch_command"`
}

type GammaFile struct {
	Command       byte `yaml:"command"`
	Length        int  `yaml:"length"`
	PrefixLength  int  `yaml:"prefix_length"`
	FlashOffset   int  `yaml:"flash_offset"`
	ParOffset     byte `yaml:"par_offset"`
	GroupWithNext bool `yaml:"group_with_next"`
}

// Command is one DCS payload. In YAML it is either a hex string ("51 00 ff")
// or a mapping with data and an optional post-command delay.
type Command struct {
	Data  []byte
	Delay time.Duration
}

// Commands is a command list as written in the panel description.
type Commands []Command

func (c *Command) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		b, err := parseHex(s)
		if err != nil {
			return err
		}
		c.Data = b
		return nil
	}
	var m struct {
		Data  string        `yaml:"data"`
		Delay time.Duration `yaml:"delay"`
	}
	if err := unmarshal(&m); err != nil {
		return err
	}
	b, err := parseHex(m.Data)
	if err != nil {
		return err
	}
	c.Data, c.Delay = b, m.Delay
	return nil
}

// UnmarshalYAML accepts a single command in place of a list.
func (cs *Commands) UnmarshalYAML(unmarshal func(any) error) error {
	var one Command
	if err := unmarshal(&one); err == nil {
		*cs = Commands{one}
		return nil
	}
	var list []Command
	if err := unmarshal(&list); err != nil {
		return err
	}
	*cs = list
	return nil
}

func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", "0x", "", "0X", "", ",", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bad command %q: %w", s, err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return b, nil
}

func (cs Commands) set() models.CommandSet {
	if len(cs) == 0 {
		return nil
	}
	out := make(models.CommandSet, len(cs))
	for i, c := range cs {
		out[i] = models.Command{Payload: c.Data, Delay: c.Delay}
	}
	return out
}

// LoadPanel reads and validates a panel description.
func LoadPanel(path string) (models.PanelConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.PanelConfig{}, fmt.Errorf("reading panel description %s: %w", path, err)
	}
	return ParsePanel(raw)
}

// ParsePanel decodes a YAML panel description and validates it.
func ParsePanel(raw []byte) (models.PanelConfig, error) {
	var f PanelFile
	if err := yaml.UnmarshalStrict(raw, &f); err != nil {
		return models.PanelConfig{}, models.ErrConfig("config", "parsing panel description: %v", err)
	}
	return Validate(f)
}

// Validate turns a decoded description into a PanelConfig. Problems in
// optional features (LUT, HBM, binned LP) disable the feature with a warning;
// problems in the modes, backlight or gamma layout are fatal.
func Validate(f PanelFile) (models.PanelConfig, error) {
	cfg := models.PanelConfig{
		Name:            f.Name,
		Type:            f.PanelType,
		IdleRefreshRate: f.IdleRefreshRate,
		TEListenCount:   f.TEListenCount,
		Commands: models.PanelCommands{
			LP1:  f.Commands.LP1.set(),
			LP2:  f.Commands.LP2.set(),
			NoLP: f.Commands.NoLP.set(),
		},
		Policy: models.DefaultPolicy(),
	}
	if f.Policy.RestartDimmingOnUpdate != nil {
		cfg.Policy.RestartDimmingOnUpdate = *f.Policy.RestartDimmingOnUpdate
	}
	if f.Policy.DimmerLowestRangeOnly != nil {
		cfg.Policy.DimmerLowestRangeOnly = *f.Policy.DimmerLowestRangeOnly
	}
	if cfg.TEListenCount < 0 {
		return models.PanelConfig{}, models.ErrConfig("config", "te_listen_count %d is negative", cfg.TEListenCount)
	}

	bl, err := validateBacklight(f.Backlight)
	if err != nil {
		return models.PanelConfig{}, err
	}
	cfg.Backlight = bl

	if n := len(f.Backlight.NotifierRanges); n > 0 {
		if n > 10 {
			slog.Warn("config: too many notifier ranges, notifier disabled", "ranges", n)
		} else {
			cfg.NotifierRanges = f.Backlight.NotifierRanges
		}
	}

	if f.HBM != nil {
		hbm, err := validateHBM(*f.HBM, bl.BrightnessMax, bl.BLMax)
		if err != nil {
			slog.Warn("config: hbm disabled", "err", err)
		} else {
			cfg.HBM = hbm
		}
	}

	if len(f.BinnedLP) > 0 {
		lp, err := validateLPModes(f.BinnedLP)
		if err != nil {
			slog.Warn("config: binned lp disabled", "err", err)
		} else {
			cfg.LPModes = lp
		}
	}

	if cfg.Modes, err = validateModes(f.Modes); err != nil {
		return models.PanelConfig{}, err
	}
	if cfg.IdleRefreshRate != 0 {
		if _, ok := cfg.Mode(cfg.IdleRefreshRate); !ok {
			return models.PanelConfig{}, models.ErrConfig("config", "idle refresh rate %d Hz has no mode", cfg.IdleRefreshRate)
		}
	}

	for _, g := range f.Gamma {
		cfg.Gamma = append(cfg.Gamma, models.GammaTableSpec{
			Command:       g.Command,
			Length:        g.Length,
			PrefixLength:  g.PrefixLength,
			FlashOffset:   g.FlashOffset,
			ParOffset:     g.ParOffset,
			GroupWithNext: g.GroupWithNext,
		})
	}
	if len(cfg.Gamma) > 0 {
		if _, err := gamma.Resolve(cfg.Gamma); err != nil {
			return models.PanelConfig{}, err
		}
	}
	return cfg, nil
}

func validateBacklight(f BacklightFile) (models.BacklightConfig, error) {
	bl := models.BacklightConfig{
		Type:           models.BacklightDCS,
		UpdateFlag:     models.UpdateNone,
		BrightnessMax:  DefaultBrightnessMax,
		BLMin:          DefaultBLMin,
		BLMax:          DefaultBLMax,
		HighByteOffset: DefaultHighByteOffset,
		PWMPin:         f.PWMPin,
		PWMPeriod:      f.PWMPeriod,
	}
	switch t := models.BacklightType(f.Type); t {
	case "":
	case models.BacklightDCS, models.BacklightPWM, models.BacklightWLED, models.BacklightExternal:
		bl.Type = t
	default:
		return bl, models.ErrConfig("config", "unknown backlight type %q", f.Type)
	}
	switch u := models.UpdateFlag(f.UpdateFlag); u {
	case "":
	case models.UpdateNone, models.UpdateDelayUntilFirstFrame:
		bl.UpdateFlag = u
	default:
		return bl, models.ErrConfig("config", "unknown update_flag %q", f.UpdateFlag)
	}
	if f.BrightnessMax != nil {
		bl.BrightnessMax = *f.BrightnessMax
	}
	if f.BLMin != nil {
		bl.BLMin = *f.BLMin
	}
	if f.BLMax != nil {
		bl.BLMax = *f.BLMax
	}
	if f.HighByteOffset != nil {
		bl.HighByteOffset = *f.HighByteOffset
	}

	if bl.BrightnessMax <= 0 {
		return bl, models.ErrConfig("config", "brightness_max_level %d must be positive", bl.BrightnessMax)
	}
	if bl.BLMin < 0 || bl.BLMin > bl.BLMax || bl.BLMax > 0xFFFF {
		return bl, models.ErrConfig("config", "bad backlight level range [%d, %d]", bl.BLMin, bl.BLMax)
	}
	if bl.HighByteOffset == 0 || bl.HighByteOffset > 8 {
		return bl, models.ErrConfig("config", "high_byte_offset %d out of range", bl.HighByteOffset)
	}
	if bl.Type == models.BacklightPWM && bl.PWMPin == "" {
		return bl, models.ErrConfig("config", "pwm backlight needs pwm_pin")
	}

	if len(f.LUT) > 0 {
		if len(f.LUT) != bl.BrightnessMax+1 {
			slog.Warn("config: lut length does not match brightness range, ignoring it",
				"lut", len(f.LUT), "want", bl.BrightnessMax+1)
		} else if i := slices.IndexFunc(f.LUT, func(v uint16) bool { return int(v) > bl.BLMax }); i >= 0 {
			slog.Warn("config: lut entry above bl_max_level, ignoring lut",
				"index", i, "level", f.LUT[i], "bl_max", bl.BLMax)
		} else {
			bl.LUT = f.LUT
		}
	}
	return bl, nil
}

func validateHBM(f HBMFile, brightnessMax, blMax int) (*models.HBMConfig, error) {
	n := len(f.Ranges)
	if n == 0 || n > models.HBMRangeMax {
		return nil, fmt.Errorf("need 1..%d ranges, have %d", models.HBMRangeMax, n)
	}
	hbm := &models.HBMConfig{
		ExitCommand:            f.ExitCommand.set(),
		ExitDimmingFrames:      f.ExitDimmingFrames,
		ExitDimmingStopCommand: f.ExitDimmingStopCommand.set(),
	}
	if (hbm.ExitDimmingFrames > 0) != (len(hbm.ExitDimmingStopCommand) > 0) {
		return nil, fmt.Errorf("exit dimming frames and stop command must be set together")
	}
	// ranges must cover every brightness from 1 up
	if first := f.Ranges[0].UserStart; first > 1 {
		return nil, fmt.Errorf("range 0: user_bri_start %d leaves brightness 1..%d uncovered", first, first-1)
	}
	for i, r := range f.Ranges {
		if i > 0 && r.UserStart <= f.Ranges[i-1].UserStart {
			return nil, fmt.Errorf("range %d: user_bri_start %d not ascending", i, r.UserStart)
		}
		if r.UserStart > brightnessMax {
			return nil, fmt.Errorf("range %d: user_bri_start %d above max %d", i, r.UserStart, brightnessMax)
		}
		if r.PanelStart > r.PanelEnd {
			return nil, fmt.Errorf("range %d: panel range [%d, %d] inverted", i, r.PanelStart, r.PanelEnd)
		}
		if r.PanelEnd > blMax {
			return nil, fmt.Errorf("range %d: panel_bri_end %d above bl_max_level %d", i, r.PanelEnd, blMax)
		}
		if (r.DimmingFrames > 0) != (len(r.DimmingStopCommand) > 0) {
			return nil, fmt.Errorf("range %d: dimming frames and stop command must be set together", i)
		}
		end := brightnessMax
		if i+1 < n {
			end = f.Ranges[i+1].UserStart - 1
		}
		hbm.Ranges = append(hbm.Ranges, models.HBMRange{
			UserStart:          r.UserStart,
			UserEnd:            end,
			PanelStart:         r.PanelStart,
			PanelEnd:           r.PanelEnd,
			EntryCommand:       r.EntryCommand.set(),
			DimmingFrames:      r.DimmingFrames,
			DimmingStopCommand: r.DimmingStopCommand.set(),
		})
	}
	if f.IRC != nil {
		hbm.IRC = &models.IRCConfig{
			Addr:          f.IRC.Addr,
			BitOffset:     f.IRC.BitOffset,
			UnlockCommand: f.IRC.UnlockCommand.set(),
			LockCommand:   f.IRC.LockCommand.set(),
		}
	}
	return hbm, nil
}

func validateLPModes(f []LPModeFile) ([]models.LPMode, error) {
	if len(f) > models.MaxBinnedLPModes {
		return nil, fmt.Errorf("need at most %d modes, have %d", models.MaxBinnedLPModes, len(f))
	}
	out := make([]models.LPMode, 0, len(f))
	for i, m := range f {
		if len(m.Command) == 0 {
			return nil, fmt.Errorf("mode %d (%s): no command", i, m.Name)
		}
		th := uint32(math.MaxUint32)
		if m.Threshold != nil {
			th = *m.Threshold
		}
		name := m.Name
		if name == "" {
			name = fmt.Sprintf("lp%d", i)
		}
		out = append(out, models.LPMode{Name: name, Threshold: th, Command: m.Command.set()})
	}
	slices.SortStableFunc(out, func(a, b models.LPMode) int { return cmp.Compare(a.Threshold, b.Threshold) })
	return out, nil
}

func validateModes(f []ModeFile) ([]models.DisplayMode, error) {
	if len(f) == 0 {
		return nil, models.ErrConfig("config", "no display modes")
	}
	seen := make(map[int]bool, len(f))
	out := make([]models.DisplayMode, 0, len(f))
	for _, m := range f {
		if m.RefreshRate <= 0 {
			return nil, models.ErrConfig("config", "refresh rate %d must be positive", m.RefreshRate)
		}
		if seen[m.RefreshRate] {
			return nil, models.ErrConfig("config", "duplicate refresh rate %d", m.RefreshRate)
		}
		seen[m.RefreshRate] = true
		out = append(out, models.DisplayMode{
			RefreshRate:   m.RefreshRate,
			Width:         m.Width,
			Height:        m.Height,
			SwitchCommand: m.SwitchCommand.set(),
		})
	}
	return out, nil
}
