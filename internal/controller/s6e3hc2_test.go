package controller_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/micro-nova/panel-go/internal/controller"
	"github.com/micro-nova/panel-go/internal/hardware"
	"github.com/micro-nova/panel-go/internal/models"
)

var (
	unlock = []byte{0xF0, 0x5A, 0x5A}
	lock   = []byte{0xF0, 0xA5, 0xA5}
)

func s6e3hc2Config() models.PanelConfig {
	cfg := testConfig()
	cfg.Type = controller.PanelS6E3HC2
	cfg.Modes = []models.DisplayMode{displayMode(60), displayMode(90)}
	return cfg
}

// newGammaPanel returns an enabled s6e3hc2 panel whose background gamma load
// has finished.
func newGammaPanel(t *testing.T) *testPanel {
	t.Helper()
	p := newEnabledPanel(t, s6e3hc2Config())
	p.Disable()
	if !p.Dump().GammaReady {
		t.Fatal("gamma not loaded after enable")
	}
	if err := p.Enable(context.Background()); err != nil {
		t.Fatal(err)
	}
	p.mock.Reset()
	return p
}

func TestGammaLoadedOnEnable(t *testing.T) {
	p := newGammaPanel(t)
	// already cached, nothing is read again
	if err := p.Enable(context.Background()); err != nil {
		t.Fatal(err)
	}
	p.Disable()
	if n := len(p.mock.Commands()); n != 0 {
		t.Errorf("commands after second enable = %d, want 0", n)
	}
}

func TestGammaFailureLeavesCacheUnready(t *testing.T) {
	p := newTestPanel(t, s6e3hc2Config())
	p.mock.SetFailRead(true)
	if err := p.Enable(context.Background()); err != nil {
		t.Fatal(err)
	}
	p.Disable()
	if p.Dump().GammaReady {
		t.Fatal("gamma ready after failed read")
	}
	if got := p.mock.Commands(); !bytes.Equal(got[len(got)-1], lock) {
		t.Errorf("last command = % X, want lock", got[len(got)-1])
	}

	if _, err := p.GammaDump(context.Background()); !errors.Is(err, models.ErrBusy) {
		t.Errorf("dump while disabled: err = %v, want busy", err)
	}
	if err := p.Enable(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := p.GammaDump(context.Background()); err == nil {
		t.Error("dump with failing reads should fail")
	}
}

func TestGammaDumpAndInvalidate(t *testing.T) {
	p := newGammaPanel(t)
	dump, err := p.GammaDump(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(dump) != 2 || dump[0].RefreshRate != 60 || dump[1].RefreshRate != 90 {
		t.Fatalf("dump = %+v", dump)
	}
	if len(dump[0].Tables) != 3 {
		t.Errorf("tables = %d, want 3", len(dump[0].Tables))
	}

	if err := p.InvalidateGamma(); err != nil {
		t.Fatal(err)
	}
	if p.Dump().GammaReady {
		t.Error("gamma ready after invalidate")
	}
	if _, err := p.GammaDump(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !p.Dump().GammaReady {
		t.Error("dump should reload the cache")
	}
}

func TestGammaUnsupportedOnDefaultPanel(t *testing.T) {
	p := newEnabledPanel(t, testConfig())
	if _, err := p.GammaDump(context.Background()); !errors.Is(err, models.ErrNotSupported) {
		t.Errorf("err = %v", err)
	}
	if err := p.InvalidateGamma(); !errors.Is(err, models.ErrNotSupported) {
		t.Errorf("err = %v", err)
	}
}

func TestS6E3HC2SwitchSendsGamma(t *testing.T) {
	p := newGammaPanel(t)
	requestSwitch(t, p, 90)
	if err := p.WaitForPendingSwitch(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}

	cmds := p.mock.Commands()
	if len(cmds) != 6 {
		t.Fatalf("commands = %d, want 6", len(cmds))
	}
	if !bytes.Equal(cmds[0], unlock) || !bytes.Equal(cmds[5], lock) {
		t.Errorf("switch not bracketed by unlock/lock: % X ... % X", cmds[0], cmds[5])
	}
	if !bytes.Equal(cmds[1], []byte{0x2F, 90}) {
		t.Errorf("timing command = % X", cmds[1])
	}
	for i, want := range []struct {
		cmd byte
		n   int
	}{{0xC8, 136}, {0xC9, 181}, {0xB3, 46}} {
		got := cmds[2+i]
		if got[0] != want.cmd || len(got) != want.n {
			t.Errorf("table %d = 0x%02X len %d, want 0x%02X len %d", i, got[0], len(got), want.cmd, want.n)
		}
	}
}

func TestS6E3HC2NoLPResendsGamma(t *testing.T) {
	p := newGammaPanel(t)
	setPower(t, p, models.PowerLP1)
	p.mock.Reset()
	setPower(t, p, models.PowerOn)

	cmds := p.mock.Commands()
	if len(cmds) < 6 || cmds[0][0] != 0x38 {
		t.Fatalf("commands = % X", cmds)
	}
	if !bytes.Equal(cmds[1], unlock) || cmds[2][0] != 0xC8 || !bytes.Equal(cmds[5], lock) {
		t.Errorf("gamma resend = % X", cmds[1:6])
	}
}

func TestS6E3HC2UpdateHBM(t *testing.T) {
	p := newGammaPanel(t)
	setBrightness(t, p, 100)
	enterHBM(t, p, models.HBMOn)
	if got := lastCommand(t, p.mock, hardware.DCSWriteControlDisplay); !bytes.Equal(got, []byte{0x53, 0xE0}) {
		t.Errorf("wrctrld = % X, want BCTRL|HBM", got)
	}
	if n := len(p.mock.CommandsWith(0xAA)); n != 0 {
		t.Errorf("generic entry commands = %d, want 0", n)
	}

	// entering a dimmed range sets the dimming bit
	setBrightness(t, p, 200)
	if got := lastCommand(t, p.mock, hardware.DCSWriteControlDisplay); !bytes.Equal(got, []byte{0x53, 0xE8}) {
		t.Errorf("wrctrld = % X, want BCTRL|HBM|DIM", got)
	}
}
