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

func requestSwitch(t *testing.T, p *testPanel, rate int) {
	t.Helper()
	if err := p.RequestModeSwitch(context.Background(), rate); err != nil {
		t.Fatalf("RequestModeSwitch(%d): %v", rate, err)
	}
}

func TestModeSwitch(t *testing.T) {
	p := newEnabledPanel(t, testConfig())
	requestSwitch(t, p, 90)
	if err := p.WaitForPendingSwitch(context.Background(), time.Second); err != nil {
		t.Fatalf("WaitForPendingSwitch: %v", err)
	}
	if got := p.CurrentMode().RefreshRate; got != 90 {
		t.Errorf("mode = %d Hz, want 90", got)
	}
	if got := lastCommand(t, p.mock, 0x2F); !bytes.Equal(got, []byte{0x2F, 90}) {
		t.Errorf("switch command = % X", got)
	}
	if got := p.Dump().State; got != "On: 1440x3040@90" {
		t.Errorf("state = %q", got)
	}
}

func TestModeSwitchUnknownRate(t *testing.T) {
	p := newEnabledPanel(t, testConfig())
	err := p.RequestModeSwitch(context.Background(), 144)
	var perr *models.PanelError
	if !errors.As(err, &perr) || perr.Kind != models.KindNotFound {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestModeSwitchNotification(t *testing.T) {
	p := newEnabledPanel(t, testConfig())
	sub, err := p.Notifications().Subscribe("test")
	if err != nil {
		t.Fatal(err)
	}
	requestSwitch(t, p, 120)
	select {
	case n := <-sub:
		if n.Kind != models.NotifyModeSwitch || n.RefreshRate != 120 {
			t.Errorf("notification = %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("no mode switch notification")
	}
}

func TestWaitForPendingSwitchTimesOut(t *testing.T) {
	p := newEnabledPanel(t, testConfig())
	release := p.mock.Block()
	defer release()

	requestSwitch(t, p, 90)
	err := p.WaitForPendingSwitch(context.Background(), 10*time.Millisecond)
	if !errors.Is(err, models.ErrTimeout) {
		t.Errorf("err = %v, want timeout", err)
	}
	release()
	if err := p.WaitForPendingSwitch(context.Background(), time.Second); err != nil {
		t.Errorf("after release: %v", err)
	}
}

func TestSwitchWaitsForTE(t *testing.T) {
	p := newEnabledPanel(t, testConfig())
	if err := p.SetTEListenCount(2); err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		tick := time.NewTicker(2 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case at := <-tick.C:
				p.vsync.Publish(events.Vsync{At: at})
			}
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()

	requestSwitch(t, p, 90)
	// Disable flushes the worker, including the TE waits
	p.Disable()
	if got := p.Dump().Switch.TECounter; got < 1 {
		t.Errorf("te counter = %d, want at least 1", got)
	}
	if n := p.vsync.SubscriberCount(); n != 0 {
		t.Errorf("vsync subscribers = %d after switch", n)
	}
}

func TestSwitchTETimeoutIsNotFatal(t *testing.T) {
	p := newEnabledPanel(t, testConfig())
	if err := p.SetTEListenCount(1); err != nil {
		t.Fatal(err)
	}
	requestSwitch(t, p, 90)
	p.Disable()
	if got := p.CurrentMode().RefreshRate; got != 90 {
		t.Errorf("mode = %d Hz, want 90", got)
	}
	if err := p.SetTEListenCount(-1); !errors.Is(err, models.ErrInvalidArg) {
		t.Errorf("negative count: err = %v", err)
	}
}

func TestIdleWakeup(t *testing.T) {
	cfg := testConfig()
	cfg.Modes = []models.DisplayMode{displayMode(90), displayMode(60)}
	cfg.IdleRefreshRate = 60
	p := newEnabledPanel(t, cfg)
	ctx := context.Background()

	if err := p.Idle(ctx); err != nil {
		t.Fatal(err)
	}
	if got := p.CurrentMode().RefreshRate; got != 60 {
		t.Errorf("idle mode = %d Hz, want 60", got)
	}
	if !p.Dump().Switch.Idle {
		t.Error("not marked idle")
	}
	if err := p.Idle(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(p.mock.CommandsWith(0x2F)); n != 1 {
		t.Errorf("switch commands = %d, want 1", n)
	}

	if err := p.Wakeup(ctx); err != nil {
		t.Fatal(err)
	}
	if got := p.CurrentMode().RefreshRate; got != 90 {
		t.Errorf("woken mode = %d Hz, want 90", got)
	}
	if got := lastCommand(t, p.mock, 0x2F); !bytes.Equal(got, []byte{0x2F, 90}) {
		t.Errorf("wakeup command = % X", got)
	}
}

func TestWakeupKeepsModeRequestedWhileIdle(t *testing.T) {
	cfg := testConfig()
	cfg.Modes = []models.DisplayMode{displayMode(90), displayMode(60), displayMode(120)}
	cfg.IdleRefreshRate = 60
	p := newEnabledPanel(t, cfg)
	ctx := context.Background()

	if err := p.Idle(ctx); err != nil {
		t.Fatal(err)
	}
	requestSwitch(t, p, 120)
	if err := p.WaitForPendingSwitch(ctx, time.Second); err != nil {
		t.Fatalf("WaitForPendingSwitch: %v", err)
	}
	if err := p.Wakeup(ctx); err != nil {
		t.Fatal(err)
	}
	if got := p.CurrentMode().RefreshRate; got != 120 {
		t.Errorf("woken mode = %d Hz, want 120", got)
	}
	if got := lastCommand(t, p.mock, 0x2F); !bytes.Equal(got, []byte{0x2F, 120}) {
		t.Errorf("last switch command = % X, want 120 Hz", got)
	}
	if p.Dump().Switch.Idle {
		t.Error("still marked idle")
	}
}

func TestIdleWithoutIdleRate(t *testing.T) {
	p := newEnabledPanel(t, testConfig())
	if err := p.Idle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(p.mock.CommandsWith(0x2F)); n != 0 {
		t.Errorf("switch commands = %d, want 0", n)
	}
}

func TestCloseStopsEverything(t *testing.T) {
	m := hardware.NewMock()
	vsync := events.NewBus[events.Vsync]()
	p, err := controller.New(testConfig(), controller.Deps{Channel: m, Vsync: vsync})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := p.Enable(ctx); err != nil {
		t.Fatal(err)
	}
	b := 200
	if err := p.SetBrightness(ctx, models.BacklightUpdate{Brightness: &b}); err != nil {
		t.Fatal(err)
	}
	if err := p.SetHBMMode(ctx, models.HBMOn); err != nil {
		t.Fatal(err)
	}
	if !p.DimmingActive() {
		t.Fatal("dimming should be active")
	}
	if err := p.RequestModeSwitch(ctx, 90); err != nil {
		t.Fatal(err)
	}

	p.Close()
	if p.DimmingActive() {
		t.Error("dimming active after close")
	}
	if n := vsync.SubscriberCount(); n != 0 {
		t.Errorf("vsync subscribers after close = %d", n)
	}
	if got := p.CurrentMode().RefreshRate; got != 90 {
		t.Errorf("queued switch not flushed, mode = %d", got)
	}
	if err := p.RequestModeSwitch(ctx, 60); !errors.Is(err, models.ErrBusy) {
		t.Errorf("switch after close: err = %v, want busy", err)
	}
	p.Close()
}
