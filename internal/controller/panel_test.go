package controller_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/micro-nova/panel-go/internal/controller"
	"github.com/micro-nova/panel-go/internal/events"
	"github.com/micro-nova/panel-go/internal/hardware"
	"github.com/micro-nova/panel-go/internal/models"
)

func cmd(b ...byte) models.CommandSet {
	return models.CommandSet{{Payload: b}}
}

func displayMode(rate int) models.DisplayMode {
	return models.DisplayMode{RefreshRate: rate, Width: 1440, Height: 3040, SwitchCommand: cmd(0x2F, byte(rate))}
}

func testConfig() models.PanelConfig {
	return models.PanelConfig{
		Name: "test",
		Backlight: models.BacklightConfig{
			Type:           models.BacklightDCS,
			UpdateFlag:     models.UpdateNone,
			BrightnessMax:  255,
			BLMin:          1,
			BLMax:          255,
			HighByteOffset: 8,
		},
		HBM: &models.HBMConfig{
			Ranges: []models.HBMRange{
				{UserStart: 1, UserEnd: 127, PanelStart: 10, PanelEnd: 100, EntryCommand: cmd(0xAA, 0x00)},
				{UserStart: 128, UserEnd: 255, PanelStart: 101, PanelEnd: 255, EntryCommand: cmd(0xAA, 0x01),
					DimmingFrames: 5, DimmingStopCommand: cmd(0xAB)},
			},
			ExitCommand: cmd(0xAA, 0xFF),
		},
		Modes:    []models.DisplayMode{displayMode(60), displayMode(90), displayMode(120)},
		Commands: models.PanelCommands{LP1: cmd(0x39), LP2: cmd(0x39, 0x02), NoLP: cmd(0x38)},
		Policy:   models.DefaultPolicy(),
	}
}

type testPanel struct {
	*controller.Panel
	mock  *hardware.Mock
	reg   *hardware.MockRegulator
	vsync *events.Bus[events.Vsync]
}

func newTestPanel(t *testing.T, cfg models.PanelConfig) *testPanel {
	t.Helper()
	tp := &testPanel{
		mock:  hardware.NewMock(),
		reg:   &hardware.MockRegulator{},
		vsync: events.NewBus[events.Vsync](),
	}
	p, err := controller.New(cfg, controller.Deps{
		Channel:   tp.mock,
		Regulator: tp.reg,
		Vsync:     tp.vsync,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(p.Close)
	tp.Panel = p
	return tp
}

func newEnabledPanel(t *testing.T, cfg models.PanelConfig) *testPanel {
	t.Helper()
	tp := newTestPanel(t, cfg)
	if err := tp.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	return tp
}

func setBrightness(t *testing.T, p *testPanel, b int) {
	t.Helper()
	if err := p.SetBrightness(context.Background(), models.BacklightUpdate{Brightness: &b}); err != nil {
		t.Fatalf("SetBrightness(%d): %v", b, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func lastCommand(t *testing.T, m *hardware.Mock, c byte) []byte {
	t.Helper()
	cmds := m.CommandsWith(c)
	if len(cmds) == 0 {
		t.Fatalf("no 0x%02X command sent", c)
	}
	return cmds[len(cmds)-1]
}

func TestNewRequiresChannelAndModes(t *testing.T) {
	if _, err := controller.New(testConfig(), controller.Deps{}); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("no channel: err = %v, want invalid configuration", err)
	}
	cfg := testConfig()
	cfg.Modes = nil
	if _, err := controller.New(cfg, controller.Deps{Channel: hardware.NewMock()}); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("no modes: err = %v, want invalid configuration", err)
	}
	cfg = testConfig()
	cfg.Type = "nope"
	if _, err := controller.New(cfg, controller.Deps{Channel: hardware.NewMock()}); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("unknown type: err = %v, want invalid configuration", err)
	}
}

func TestInitialState(t *testing.T) {
	p := newTestPanel(t, testConfig())
	st := p.Dump()
	if st.State != "On: 1440x3040@60" {
		t.Errorf("State = %q", st.State)
	}
	if st.Backlight.Brightness != 127 {
		t.Errorf("Brightness = %d, want 127", st.Backlight.Brightness)
	}
	if st.HBM == nil || st.HBM.Range != -1 || st.HBM.Mode != "off" {
		t.Errorf("HBM = %+v", st.HBM)
	}
	if st.Initialized {
		t.Error("panel should start uninitialized")
	}
}

func TestBrightnessWritesDCS(t *testing.T) {
	p := newEnabledPanel(t, testConfig())

	setBrightness(t, p, 128)
	if got := p.Brightness(); got != 128 {
		t.Errorf("level = %d, want 128", got)
	}
	if got := lastCommand(t, p.mock, hardware.DCSSetDisplayBrightness); !bytes.Equal(got, []byte{0x51, 128}) {
		t.Errorf("dcs = % X", got)
	}

	setBrightness(t, p, 0)
	if got := p.Brightness(); got != 0 {
		t.Errorf("level = %d, want 0", got)
	}
	if got := lastCommand(t, p.mock, hardware.DCSSetDisplayBrightness); !bytes.Equal(got, []byte{0x51, 0}) {
		t.Errorf("dcs = % X", got)
	}
}

func TestBrightnessZeroInHBM(t *testing.T) {
	p := newEnabledPanel(t, testConfig())
	setBrightness(t, p, 100)
	if err := p.SetHBMMode(context.Background(), models.HBMOn); err != nil {
		t.Fatalf("SetHBMMode: %v", err)
	}
	setBrightness(t, p, 0)
	if got := p.Brightness(); got != 0 {
		t.Errorf("level = %d, want 0", got)
	}
}

func TestSameLevelIsNotRewritten(t *testing.T) {
	p := newEnabledPanel(t, testConfig())
	setBrightness(t, p, 200)
	setBrightness(t, p, 200)
	if n := len(p.mock.CommandsWith(hardware.DCSSetDisplayBrightness)); n != 1 {
		t.Errorf("dcs writes = %d, want 1", n)
	}
}

func TestBrightnessValidation(t *testing.T) {
	p := newEnabledPanel(t, testConfig())
	b := 256
	err := p.SetBrightness(context.Background(), models.BacklightUpdate{Brightness: &b})
	if !errors.Is(err, models.ErrInvalidArg) {
		t.Errorf("err = %v, want invalid argument", err)
	}
	s := models.MaxBLScaleLevel + 1
	err = p.SetBrightness(context.Background(), models.BacklightUpdate{Scale: &s})
	if !errors.Is(err, models.ErrInvalidArg) {
		t.Errorf("scale err = %v, want invalid argument", err)
	}
}

func TestScaleHalvesLevel(t *testing.T) {
	p := newEnabledPanel(t, testConfig())
	b, s := 255, models.MaxBLScaleLevel/2
	if err := p.SetBrightness(context.Background(), models.BacklightUpdate{Brightness: &b, Scale: &s}); err != nil {
		t.Fatal(err)
	}
	// 255*512/1024 = 127
	if got := p.Brightness(); got != 127 {
		t.Errorf("level = %d, want 127", got)
	}
}

func TestBlankForcesZero(t *testing.T) {
	p := newEnabledPanel(t, testConfig())
	setBrightness(t, p, 200)
	blank := true
	if err := p.SetBrightness(context.Background(), models.BacklightUpdate{Blank: &blank}); err != nil {
		t.Fatal(err)
	}
	if got := p.Brightness(); got != 0 {
		t.Errorf("level = %d, want 0", got)
	}
	if got := p.RequestedBrightness(); got != 200 {
		t.Errorf("requested = %d, want 200", got)
	}
}

func TestNoWriteBeforeEnable(t *testing.T) {
	p := newTestPanel(t, testConfig())
	setBrightness(t, p, 200)
	if n := len(p.mock.CommandsWith(hardware.DCSSetDisplayBrightness)); n != 0 {
		t.Errorf("dcs writes before enable = %d", n)
	}
	if got := p.Brightness(); got != 200 {
		t.Errorf("level = %d, want 200", got)
	}
}

func TestUpdateDeferredUntilFirstFrame(t *testing.T) {
	cfg := testConfig()
	cfg.Backlight.UpdateFlag = models.UpdateDelayUntilFirstFrame
	p := newEnabledPanel(t, cfg)

	setBrightness(t, p, 200)
	if n := len(p.mock.CommandsWith(hardware.DCSSetDisplayBrightness)); n != 0 {
		t.Fatalf("dcs writes before first frame = %d", n)
	}
	if !p.Dump().Backlight.UpdatePending {
		t.Error("update should be pending")
	}

	if err := p.Kickoff(context.Background()); err != nil {
		t.Fatalf("Kickoff: %v", err)
	}
	if got := lastCommand(t, p.mock, hardware.DCSSetDisplayBrightness); !bytes.Equal(got, []byte{0x51, 200}) {
		t.Errorf("dcs = % X", got)
	}
	if p.Dump().Backlight.UpdatePending {
		t.Error("update still pending after kickoff")
	}
}

func TestTwoByteBrightness(t *testing.T) {
	cfg := testConfig()
	cfg.Backlight.BLMax = 1023
	p := newEnabledPanel(t, cfg)
	setBrightness(t, p, 255)
	if got := lastCommand(t, p.mock, hardware.DCSSetDisplayBrightness); !bytes.Equal(got, []byte{0x51, 0x03, 0xFF}) {
		t.Errorf("dcs = % X", got)
	}
}

func TestWriteFailureKeepsLastLevel(t *testing.T) {
	p := newEnabledPanel(t, testConfig())
	setBrightness(t, p, 100)
	p.mock.SetFailWrite(true)
	b := 200
	err := p.SetBrightness(context.Background(), models.BacklightUpdate{Brightness: &b})
	if !errors.Is(err, models.ErrHardwareIO) {
		t.Fatalf("err = %v, want hardware i/o", err)
	}
	if got := p.Brightness(); got != 100 {
		t.Errorf("level = %d, want 100", got)
	}
}

func TestPWMBacklight(t *testing.T) {
	cfg := testConfig()
	cfg.Backlight.Type = models.BacklightPWM
	pwm := &fakePWM{}
	p, err := controller.New(cfg, controller.Deps{Channel: hardware.NewMock(), PWM: pwm})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if err := p.Enable(context.Background()); err != nil {
		t.Fatal(err)
	}
	b := 64
	if err := p.SetBrightness(context.Background(), models.BacklightUpdate{Brightness: &b}); err != nil {
		t.Fatal(err)
	}
	if len(pwm.levels) != 1 || pwm.levels[0] != 64 {
		t.Errorf("pwm levels = %v", pwm.levels)
	}

	if _, err := controller.New(cfg, controller.Deps{Channel: hardware.NewMock()}); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("pwm without output: err = %v", err)
	}
}

type fakePWM struct {
	levels []int
}

func (f *fakePWM) SetLevel(level int) error {
	f.levels = append(f.levels, level)
	return nil
}

func TestExternalBacklightTracksLevel(t *testing.T) {
	cfg := testConfig()
	cfg.Backlight.Type = models.BacklightWLED
	p := newEnabledPanel(t, cfg)
	setBrightness(t, p, 90)
	if got := p.Brightness(); got != 90 {
		t.Errorf("level = %d, want 90", got)
	}
	if n := len(p.mock.Commands()); n != 0 {
		t.Errorf("commands sent = %d, want 0", n)
	}
}

func TestDimmerFloor(t *testing.T) {
	p := newEnabledPanel(t, testConfig())
	setBrightness(t, p, 1)
	if got := p.Brightness(); got != 1 {
		t.Fatalf("level = %d, want 1", got)
	}
	if err := p.SetDimmer(context.Background(), true, 50); err != nil {
		t.Fatal(err)
	}
	if got := p.Brightness(); got != 50 {
		t.Errorf("level with dimmer = %d, want 50", got)
	}
	if err := p.SetDimmer(context.Background(), true, 500); err != nil {
		t.Fatal(err)
	}
	if got := p.Dump().Backlight.DimmerMin; got != models.MaxBacklightMin {
		t.Errorf("dimmer min = %d, want %d", got, models.MaxBacklightMin)
	}
	if got := p.Brightness(); got != models.MaxBacklightMin {
		t.Errorf("level = %d, want %d", got, models.MaxBacklightMin)
	}
}

func TestALSNotification(t *testing.T) {
	cfg := testConfig()
	cfg.NotifierRanges = []int{50, 150, 255}
	p := newEnabledPanel(t, cfg)
	sub, err := p.Notifications().Subscribe("test")
	if err != nil {
		t.Fatal(err)
	}

	setBrightness(t, p, 30)
	setBrightness(t, p, 100)

	var got []models.Notification
	timeout := time.After(time.Second)
	for len(got) < 3 {
		select {
		case n := <-sub:
			got = append(got, n)
		case <-timeout:
			t.Fatalf("notifications = %+v", got)
		}
	}
	want := []models.Notification{
		{Kind: models.NotifyBacklight, Brightness: 30},
		{Kind: models.NotifyBrightness, Brightness: 100, Range: 1},
		{Kind: models.NotifyBacklight, Brightness: 100},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSetALSTable(t *testing.T) {
	p := newTestPanel(t, testConfig())
	if err := p.SetALSTable([]int{10}); !errors.Is(err, models.ErrNotSupported) {
		t.Errorf("no notifier: err = %v", err)
	}

	cfg := testConfig()
	cfg.NotifierRanges = []int{255}
	p = newTestPanel(t, cfg)
	if err := p.SetALSTable(nil); !errors.Is(err, models.ErrInvalidArg) {
		t.Errorf("empty table: err = %v", err)
	}
	if err := p.SetALSTable([]int{10, 20, 255}); err != nil {
		t.Fatal(err)
	}
	if got := p.CalibrationDump().ALSRanges; len(got) != 3 {
		t.Errorf("als ranges = %v", got)
	}
}

func TestHandoff(t *testing.T) {
	p := newTestPanel(t, testConfig())
	p.mock.SetRegister(hardware.DCSGetDisplayBrightness, []byte{0x80})
	if err := p.Handoff(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := p.RequestedBrightness(); got != 128 {
		t.Errorf("brightness = %d, want 128", got)
	}

	cfg := testConfig()
	cfg.Backlight.BLMax = 1023
	p = newTestPanel(t, cfg)
	// unused high bits are masked off
	p.mock.SetRegister(hardware.DCSGetDisplayBrightness, []byte{0xFF, 0xFF})
	if err := p.Handoff(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := p.RequestedBrightness(); got != 255 {
		t.Errorf("brightness = %d, want 255", got)
	}

	p.mock.SetFailRead(true)
	if err := p.Handoff(context.Background()); !errors.Is(err, models.ErrHardwareIO) {
		t.Errorf("err = %v, want hardware i/o", err)
	}
}

func TestCalibrationDump(t *testing.T) {
	cfg := testConfig()
	cfg.LPModes = []models.LPMode{{Name: "low", Threshold: 50}, {Name: "high", Threshold: ^uint32(0)}}
	p := newTestPanel(t, cfg)
	d := p.CalibrationDump()
	if d.BrightnessMax != 255 || d.BLMax != 255 || len(d.HBMRanges) != 2 {
		t.Errorf("dump = %+v", d)
	}
	if len(d.LPModes) != 2 || d.LPModes[0] != "low" {
		t.Errorf("lp modes = %v", d.LPModes)
	}
}
