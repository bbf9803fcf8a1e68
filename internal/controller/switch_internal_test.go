package controller

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/micro-nova/panel-go/internal/hardware"
	"github.com/micro-nova/panel-go/internal/models"
)

func switchConfig() models.PanelConfig {
	var modes []models.DisplayMode
	for _, rate := range []int{60, 90, 120} {
		modes = append(modes, models.DisplayMode{
			RefreshRate:   rate,
			Width:         1080,
			Height:        2340,
			SwitchCommand: models.CommandSet{{Payload: []byte{0x2F, byte(rate)}}},
		})
	}
	return models.PanelConfig{
		Name:      "switch",
		Backlight: models.BacklightConfig{Type: models.BacklightDCS, BrightnessMax: 255, BLMax: 255, HighByteOffset: 8},
		Modes:     modes,
		Policy:    models.DefaultPolicy(),
	}
}

func TestBackToBackRequestsSwitchOnce(t *testing.T) {
	m := hardware.NewMock()
	p, err := New(switchConfig(), Deps{Channel: m})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	// hold the worker so neither request starts before the second arrives
	gate := make(chan struct{})
	p.switchWorker.Queue(newWork("hold", func() { <-gate }))

	ctx := context.Background()
	if err := p.RequestModeSwitch(ctx, 90); err != nil {
		t.Fatal(err)
	}
	if err := p.RequestModeSwitch(ctx, 120); err != nil {
		t.Fatal(err)
	}
	close(gate)
	p.switchWorker.Flush()

	cmds := m.CommandsWith(0x2F)
	if len(cmds) != 1 {
		t.Fatalf("switch commands = %d, want 1", len(cmds))
	}
	if !bytes.Equal(cmds[0], []byte{0x2F, 120}) {
		t.Errorf("switch command = % X, want the second target", cmds[0])
	}
	if got := p.CurrentMode().RefreshRate; got != 120 {
		t.Errorf("mode = %d Hz, want 120", got)
	}
	if p.pendingSw.Load() != nil {
		t.Error("switch still pending")
	}
}

func TestRequestAfterRunningSwitchIsSerialized(t *testing.T) {
	m := hardware.NewMock()
	p, err := New(switchConfig(), Deps{Channel: m})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ctx := context.Background()
	if err := p.RequestModeSwitch(ctx, 90); err != nil {
		t.Fatal(err)
	}
	p.switchWorker.FlushWork(p.switchWork)
	if err := p.RequestModeSwitch(ctx, 120); err != nil {
		t.Fatal(err)
	}
	p.switchWorker.Flush()

	cmds := m.CommandsWith(0x2F)
	if len(cmds) != 2 || cmds[0][1] != 90 || cmds[1][1] != 120 {
		t.Errorf("switch commands = % X", cmds)
	}
}

func TestRequestAfterWorkerStopReleasesPending(t *testing.T) {
	m := hardware.NewMock()
	p, err := New(switchConfig(), Deps{Channel: m})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	// Close stops the worker after RequestModeSwitch passed its closing check
	p.switchWorker.Stop()

	err = p.RequestModeSwitch(context.Background(), 90)
	if !errors.Is(err, models.ErrBusy) {
		t.Fatalf("RequestModeSwitch = %v, want busy", err)
	}
	if p.pendingSw.Load() != nil {
		t.Error("switch left pending")
	}
	if err := p.WaitForPendingSwitch(context.Background(), time.Second); err != nil {
		t.Errorf("WaitForPendingSwitch = %v", err)
	}
	if n := len(m.CommandsWith(0x2F)); n != 0 {
		t.Errorf("switch commands = %d, want 0", n)
	}
}

func TestKickoffReturnsOnlyCallerCancellation(t *testing.T) {
	m := hardware.NewMock()
	p, err := New(switchConfig(), Deps{Channel: m})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	gate := make(chan struct{})
	defer close(gate)
	p.switchWorker.Queue(newWork("hold", func() { <-gate }))
	if err := p.RequestModeSwitch(context.Background(), 90); err != nil {
		t.Fatal(err)
	}

	// a pending switch that outlasts the wait is not a kickoff failure
	if err := p.Kickoff(context.Background()); err != nil {
		t.Errorf("Kickoff = %v, want nil after switch timeout", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Kickoff(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Kickoff(cancelled) = %v, want context.Canceled", err)
	}
}
