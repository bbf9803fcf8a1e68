package controller

import (
	"context"
	"log/slog"

	"github.com/micro-nova/panel-go/internal/gamma"
	"github.com/micro-nova/panel-go/internal/hardware"
	"github.com/micro-nova/panel-go/internal/models"
)

// PanelS6E3HC2 selects the strategy with flash/OTP gamma caching.
const PanelS6E3HC2 = "s6e3hc2"

// Strategy holds the panel-specific parts of switching and HBM handling.
// PerformSwitch, UpdateHBM and SendNoLP are called with the panel lock held;
// PostEnable is called without it.
type Strategy interface {
	// PerformSwitch programs mode.
	PerformSwitch(ctx context.Context, mode *models.DisplayMode) error

	// PostEnable runs after the panel is enabled.
	PostEnable(ctx context.Context) error

	// SendNoLP sends the commands that leave low power mode.
	SendNoLP(ctx context.Context) error

	// UpdateHBM writes the panel's HBM state directly. Strategies without
	// such a register return models.ErrNotSupported so the generic command
	// set is sent instead.
	UpdateHBM(ctx context.Context) error
}

func newStrategy(p *Panel) (Strategy, error) {
	switch p.cfg.Type {
	case PanelS6E3HC2:
		specs := p.cfg.Gamma
		if len(specs) == 0 {
			specs = gamma.DefaultTables()
		}
		cache, err := gamma.New(specs)
		if err != nil {
			return nil, err
		}
		p.gamma = cache
		s := &s6e3hc2Strategy{defaultStrategy: defaultStrategy{p: p}}
		s.gammaWork = newWork("gamma", s.loadGamma)
		return s, nil
	case "", "default":
		return &defaultStrategy{p: p}, nil
	}
	return nil, models.ErrConfig("panel", "unknown panel type %q", p.cfg.Type)
}

type defaultStrategy struct {
	p *Panel
}

func (s *defaultStrategy) PerformSwitch(ctx context.Context, mode *models.DisplayMode) error {
	if err := hardware.Transfer(ctx, s.p.ch, mode.SwitchCommand); err != nil {
		slog.Warn("switch: failed to send timing switch command", "rate", mode.RefreshRate, "err", err)
	}
	return nil
}

func (s *defaultStrategy) PostEnable(context.Context) error { return nil }

func (s *defaultStrategy) SendNoLP(ctx context.Context) error {
	return hardware.Transfer(ctx, s.p.ch, s.p.cfg.Commands.NoLP)
}

func (s *defaultStrategy) UpdateHBM(context.Context) error {
	return models.ErrUnsupported("update_hbm")
}

// s6e3hc2Strategy brackets switches with level-2 unlock/lock, resends the
// cached gamma tables of the target mode and drives HBM through WRCTRLD.
type s6e3hc2Strategy struct {
	defaultStrategy
	gammaWork *work
}

func (s *s6e3hc2Strategy) PerformSwitch(ctx context.Context, mode *models.DisplayMode) error {
	p := s.p
	if err := p.ch.SendCommand(ctx, gamma.UnlockCommand); err != nil {
		return models.ErrHardware("switch: unlock", err)
	}
	_ = s.defaultStrategy.PerformSwitch(ctx, mode)
	s.sendGammaLocked(ctx, mode.RefreshRate)
	if err := p.ch.SendCommand(ctx, gamma.LockCommand); err != nil {
		return models.ErrHardware("switch: lock", err)
	}
	return nil
}

func (s *s6e3hc2Strategy) sendGammaLocked(ctx context.Context, refreshRate int) {
	tables, ok := s.p.gamma.Tables(refreshRate)
	if !ok {
		slog.Warn("gamma: tables not read", "rate", refreshRate)
		return
	}
	for _, t := range tables {
		if err := s.p.ch.SendCommand(ctx, t); err != nil {
			slog.Warn("gamma: failed sending table", "cmd", t[0], "err", err)
		}
	}
}

// PostEnable schedules gamma loading on the switch worker unless the cache
// is already populated.
func (s *s6e3hc2Strategy) PostEnable(context.Context) error {
	p := s.p
	p.switchWorker.FlushWork(s.gammaWork)
	p.mu.Lock()
	ready := p.gamma.Ready()
	p.mu.Unlock()
	if !ready {
		p.switchWorker.Queue(s.gammaWork)
	}
	return nil
}

func (s *s6e3hc2Strategy) loadGamma() {
	p := s.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.gamma.EnsureLoaded(p.ctx, p.ch, p.refreshRates()); err != nil {
		slog.Error("gamma: background load failed", "err", err)
	}
}

// SendNoLP leaves low power and resends the current mode's gamma, which the
// panel drops in LP.
func (s *s6e3hc2Strategy) SendNoLP(ctx context.Context) error {
	p := s.p
	if err := s.defaultStrategy.SendNoLP(ctx); err != nil {
		return err
	}
	if !p.gamma.Ready() {
		return nil
	}
	if err := p.ch.SendCommand(ctx, gamma.UnlockCommand); err != nil {
		return models.ErrHardware("nolp: unlock", err)
	}
	s.sendGammaLocked(ctx, p.mode.RefreshRate)
	if err := p.ch.SendCommand(ctx, gamma.LockCommand); err != nil {
		return models.ErrHardware("nolp: lock", err)
	}
	return nil
}

// UpdateHBM writes WRCTRLD with the backlight control bit, the HBM bits of
// the current mode and the dimming bit while a ramp runs.
func (s *s6e3hc2Strategy) UpdateHBM(ctx context.Context) error {
	p := s.p
	val := hardware.CtrlBacklight
	switch p.hbmMode {
	case models.HBMOn:
		val |= hardware.CtrlHBMOn
	case models.HBMSV:
		val |= hardware.CtrlHBMSV
	}
	if p.dim.active {
		val |= hardware.CtrlDimming
	}
	if err := p.ch.SendCommand(ctx, []byte{hardware.DCSWriteControlDisplay, val}); err != nil {
		return models.ErrHardware("update_hbm", err)
	}
	return nil
}

func (p *Panel) refreshRates() []int {
	rates := make([]int, len(p.cfg.Modes))
	for i, m := range p.cfg.Modes {
		rates[i] = m.RefreshRate
	}
	return rates
}

// GammaDump loads the gamma cache if needed and returns every mode's tables.
func (p *Panel) GammaDump(ctx context.Context) ([]models.GammaDump, error) {
	if p.gamma == nil {
		return nil, models.ErrUnsupported("gamma")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return nil, models.ErrInUse("gamma", "panel is not initialized")
	}
	if err := p.gamma.EnsureLoaded(ctx, p.ch, p.refreshRates()); err != nil {
		return nil, err
	}
	return p.gamma.Dump(), nil
}

// InvalidateGamma forces the next load to read every table again.
func (p *Panel) InvalidateGamma() error {
	if p.gamma == nil {
		return models.ErrUnsupported("gamma")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gamma.Invalidate()
	slog.Info("gamma: cache invalidated")
	return nil
}
