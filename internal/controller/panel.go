// Package controller implements the panel state machine: the single source of
// truth for backlight level, HBM range, dimming, power state and refresh-rate
// switching of one display panel.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/micro-nova/panel-go/internal/backlight"
	"github.com/micro-nova/panel-go/internal/events"
	"github.com/micro-nova/panel-go/internal/gamma"
	"github.com/micro-nova/panel-go/internal/hardware"
	"github.com/micro-nova/panel-go/internal/models"
)

// LevelSetter drives a PWM backlight. hardware.PWMBacklight implements it.
type LevelSetter interface {
	SetLevel(level int) error
}

// Deps are the hardware collaborators of a Panel. Only Channel is required.
type Deps struct {
	Channel   hardware.Channel
	Regulator hardware.Regulator
	Vsync     hardware.VsyncSource
	Bus       *events.Bus[models.Notification]
	PWM       LevelSetter
}

// dimming is the frame-counted ramp state.
type dimming struct {
	active bool
	total  int
	left   int
	stop   models.CommandSet
	frames <-chan events.Vsync
}

// pendingSwitch.done is closed once a requested switch has been programmed.
type pendingSwitch struct {
	done chan struct{}
}

// Panel is the central state machine for one display panel.
// Every mutable field below mu is guarded by it; cfg and model are read-only
// after New.
type Panel struct {
	cfg      models.PanelConfig
	model    *backlight.Model
	ch       hardware.Channel
	reg      hardware.Regulator
	vsync    hardware.VsyncSource
	bus      *events.Bus[models.Notification]
	pwm      LevelSetter
	strategy Strategy
	id       string

	ctx    context.Context
	cancel context.CancelFunc

	switchWorker *worker
	switchWork   *work
	dimKick      chan struct{}
	dimDone      chan struct{}
	closing      atomic.Bool
	closeOnce    sync.Once
	teCounter    atomic.Int64
	pendingSw    atomic.Pointer[pendingSwitch] // written under mu

	mu sync.Mutex

	// backlight
	brightness    int
	actual        int
	state         backlight.State
	lastState     backlight.State
	blank         bool
	scale         int
	scaleSV       int
	initialized   bool
	allowUpdate   bool
	updatePending bool
	firstApplied  bool
	lpMode        int
	alsRanges     []int
	alsIndex      int
	dimmer        bool
	dimmerMin     int

	// hbm
	hbmMode      models.HBMMode
	svEnabled    bool
	curRange     int
	ircData      []byte
	pendingIRCOn bool
	dim          dimming

	// switch
	mode          *models.DisplayMode
	target        *models.DisplayMode
	idle          bool
	wakeMode      *models.DisplayMode
	teListenCount int
	gamma         *gamma.Cache
}

// New builds a panel from a validated configuration and starts its switch
// worker and dimming loop. The first configured mode is the current mode.
func New(cfg models.PanelConfig, deps Deps) (*Panel, error) {
	if deps.Channel == nil {
		return nil, models.ErrConfig("panel", "no command channel")
	}
	if len(cfg.Modes) == 0 {
		return nil, models.ErrConfig("panel", "no display modes")
	}
	if deps.Regulator == nil {
		deps.Regulator = hardware.NopRegulator{}
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus[models.Notification]()
	}
	if cfg.Backlight.Type == models.BacklightPWM && deps.PWM == nil {
		return nil, models.ErrConfig("panel", "pwm backlight without a pwm output")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Panel{
		cfg:           cfg,
		model:         backlight.NewModel(cfg.Backlight),
		ch:            deps.Channel,
		reg:           deps.Regulator,
		vsync:         deps.Vsync,
		bus:           deps.Bus,
		pwm:           deps.PWM,
		id:            uuid.NewString(),
		ctx:           ctx,
		cancel:        cancel,
		dimKick:       make(chan struct{}, 1),
		dimDone:       make(chan struct{}),
		scale:         models.MaxBLScaleLevel,
		scaleSV:       models.MaxSVBLScaleLevel,
		allowUpdate:   true,
		lpMode:        -1,
		alsRanges:     append([]int(nil), cfg.NotifierRanges...),
		alsIndex:      0,
		dimmerMin:     models.DefaultBacklightMin,
		curRange:      -1,
		mode:          &cfg.Modes[0],
		teListenCount: cfg.TEListenCount,
	}
	p.brightness = cfg.Backlight.BrightnessMax / 2

	strategy, err := newStrategy(p)
	if err != nil {
		cancel()
		return nil, err
	}
	p.strategy = strategy

	p.switchWorker = newWorker("switch")
	p.switchWork = newWork("switch", p.switchStep)
	go p.dimmingLoop()

	slog.Info("panel: created", "name", cfg.Name, "type", cfg.Type,
		"backlight", cfg.Backlight.Type, "hbm", cfg.HBM != nil, "modes", len(cfg.Modes))
	return p, nil
}

// Config returns the panel description the panel was built with.
func (p *Panel) Config() models.PanelConfig { return p.cfg }

// Notifications returns the bus panel notifications are published on.
func (p *Panel) Notifications() *events.Bus[models.Notification] { return p.bus }

// Close stops the panel. New switch requests are refused, the switch queue
// is flushed, dimming is forced off and both background tasks are joined.
func (p *Panel) Close() {
	p.closeOnce.Do(func() {
		p.closing.Store(true)
		p.switchWorker.Flush()

		p.mu.Lock()
		p.forceStopDimmingLocked()
		p.mu.Unlock()

		p.cancel()
		p.switchWorker.Stop()
		<-p.dimDone
		slog.Info("panel: closed", "name", p.cfg.Name)
	})
}

func (p *Panel) publish(n models.Notification) {
	p.bus.Publish(n)
}

func (p *Panel) listenerID(name string) string {
	return p.id + "/" + name
}

// stateStringLocked names the panel state for Dump: Off, LP, or On/HBM with the
// current mode.
func (p *Panel) stateStringLocked() string {
	switch {
	case p.state.IsStandby():
		return "Off"
	case p.state.IsLP():
		return "LP"
	case p.hbmMode != models.HBMOff:
		return "HBM: " + p.mode.String()
	}
	return "On: " + p.mode.String()
}

// Dump returns a snapshot of every mutable field.
func (p *Panel) Dump() models.PanelState {
	p.mu.Lock()
	defer p.mu.Unlock()

	bl := models.BacklightState{
		Brightness:    p.brightness,
		Actual:        p.actual,
		Power:         p.state.Power().String(),
		Blanked:       p.blank,
		StateBits:     uint32(p.state),
		LastStateBits: uint32(p.lastState),
		Scale:         p.scale,
		ScaleSV:       p.scaleSV,
		LUT:           p.cfg.Backlight.LUT != nil,
		UpdatePending: p.updatePending,
		Dimmer:        p.dimmer,
		DimmerMin:     p.dimmerMin,
	}
	if p.lpMode >= 0 {
		bl.LPMode = p.cfg.LPModes[p.lpMode].Name
	}

	st := models.PanelState{
		Name:        p.cfg.Name,
		Type:        p.cfg.Type,
		State:       p.stateStringLocked(),
		Mode:        p.mode.String(),
		Initialized: p.initialized,
		Backlight:   bl,
		Dimming: models.DimmingState{
			Active:      p.dim.active,
			FramesTotal: p.dim.total,
			FramesLeft:  p.dim.left,
			HasStop:     !p.dim.stop.Empty(),
		},
		Switch: models.SwitchState{
			CurrentRate:   p.mode.RefreshRate,
			Pending:       p.pendingSw.Load() != nil,
			Idle:          p.idle,
			TEListenCount: p.teListenCount,
			TECounter:     int(p.teCounter.Load()),
		},
		GammaReady: p.gamma != nil && p.gamma.Ready(),
	}
	if p.target != nil {
		st.Switch.TargetRate = p.target.RefreshRate
	}
	if p.cfg.HBM != nil {
		st.HBM = &models.HBMState{
			Mode:      p.hbmMode.String(),
			SVEnabled: p.svEnabled,
			Range:     p.curRange,
			Ranges:    len(p.cfg.HBM.Ranges),
		}
	}
	return st
}

// CalibrationDump returns the brightness calibration in use.
func (p *Panel) CalibrationDump() models.CalibrationDump {
	p.mu.Lock()
	defer p.mu.Unlock()

	bl := p.cfg.Backlight
	d := models.CalibrationDump{
		BrightnessMax: bl.BrightnessMax,
		BLMin:         bl.BLMin,
		BLMax:         bl.BLMax,
		LUT:           bl.LUT,
		ALSRanges:     append([]int(nil), p.alsRanges...),
	}
	if p.cfg.HBM != nil {
		d.HBMRanges = p.cfg.HBM.Ranges
	}
	for _, m := range p.cfg.LPModes {
		d.LPModes = append(d.LPModes, m.Name)
	}
	return d
}
