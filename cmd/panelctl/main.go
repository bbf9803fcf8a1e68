// Command panelctl is the display panel control daemon: brightness, HBM,
// power modes and refresh-rate switching behind an HTTP API.
// Run with --mock to use a simulated panel (no bridge hardware required).
package main

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"periph.io/x/host/v3"

	"github.com/micro-nova/panel-go/internal/api"
	"github.com/micro-nova/panel-go/internal/auth"
	"github.com/micro-nova/panel-go/internal/config"
	"github.com/micro-nova/panel-go/internal/controller"
	"github.com/micro-nova/panel-go/internal/events"
	"github.com/micro-nova/panel-go/internal/hardware"
	"github.com/micro-nova/panel-go/internal/identity"
	"github.com/micro-nova/panel-go/internal/models"
	"github.com/micro-nova/panel-go/internal/overlay"
	"github.com/micro-nova/panel-go/internal/sensors"
	"github.com/micro-nova/panel-go/internal/zeroconf"
)

//go:embed demo.yaml
var demoPanel []byte

func main() {
	var (
		cfgPath     = flag.String("config", "/etc/panelctl/panel.yaml", "panel description `file`")
		settingsDir = flag.String("settings-dir", "", "overlay settings directory (default: ~/.config/panelctl)")
		addr        = flag.String("addr", ":8080", "HTTP listen address")
		mock        = flag.Bool("mock", false, "use a simulated panel (no bridge hardware required)")
		busName     = flag.String("bus", "", "I2C bus of the panel bridge (\"\" for the first bus)")
		i2cAddr     = flag.Uint("addr-i2c", 0x2C, "I2C address of the panel bridge")
		serialDev   = flag.String("serial", "", "serial bridge device; overrides --bus")
		vsyncPath   = flag.String("vsync-path", "", "sysfs vsync event node")
		regEN       = flag.String("reg-en", "", "regulator enable GPIO")
		regLPM      = flag.String("reg-lpm", "", "regulator low-power GPIO")
		handoff     = flag.Bool("handoff", false, "seed brightness from the level left by the bootloader")
		als         = flag.Bool("als", false, "drive the HBM overlay from iio-sensor-proxy")
		mdns        = flag.Bool("mdns", true, "advertise the API over mDNS")
		debug       = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if *settingsDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			slog.Error("cannot determine home directory", "err", err)
			os.Exit(1)
		}
		*settingsDir = filepath.Join(home, ".config", "panelctl")
	}
	if err := os.MkdirAll(*settingsDir, 0755); err != nil {
		slog.Error("cannot create settings directory", "path", *settingsDir, "err", err)
		os.Exit(1)
	}

	cfg, err := loadPanel(*cfgPath, *mock)
	if err != nil {
		slog.Error("panel description", "path", *cfgPath, "err", err)
		os.Exit(1)
	}
	slog.Info("panel description loaded", "name", cfg.Name, "type", cfg.Type,
		"modes", len(cfg.Modes), "hbm", cfg.HBM != nil, "binned_lp", len(cfg.LPModes))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	vsync := events.NewBus[events.Vsync]()
	deps := controller.Deps{Vsync: vsync}
	var closers []io.Closer

	if *mock {
		slog.Info("using simulated panel")
		deps.Channel = hardware.NewMock()
	} else {
		if _, err := host.Init(); err != nil {
			slog.Error("periph host initialization failed", "err", err)
			os.Exit(1)
		}
		ch, err := openChannel(*serialDev, *busName, uint16(*i2cAddr))
		if err != nil {
			slog.Error("panel bridge", "err", err)
			os.Exit(1)
		}
		deps.Channel = ch
		closers = append(closers, ch)

		if *regEN != "" {
			reg, err := hardware.OpenGPIORegulator(*regEN, *regLPM)
			if err != nil {
				slog.Error("regulator", "err", err)
				os.Exit(1)
			}
			deps.Regulator = reg
		}
		if cfg.Backlight.Type == models.BacklightPWM {
			pwm, err := hardware.OpenPWMBacklight(cfg.Backlight.PWMPin, cfg.Backlight.PWMPeriod, cfg.Backlight.BLMax)
			if err != nil {
				slog.Error("pwm backlight", "err", err)
				os.Exit(1)
			}
			deps.PWM = pwm
		}
	}

	panel, err := controller.New(cfg, deps)
	if err != nil {
		slog.Error("panel initialization failed", "err", err)
		os.Exit(1)
	}

	// Frame source: the kernel vsync node, or simulated TE pulses that follow
	// the current mode.
	if *vsyncPath != "" {
		src := hardware.NewSysfsVsync(*vsyncPath, vsync)
		go func() {
			if err := src.Run(ctx); err != nil {
				slog.Error("vsync source failed", "err", err)
			}
		}()
	} else {
		te := hardware.NewTEGenerator(vsync, panel.CurrentMode().RefreshRate)
		go te.Run(ctx)
		go followModes(ctx, panel.Notifications(), te)
	}
	go kickoffLoop(ctx, panel, vsync)

	if *handoff {
		if err := panel.Handoff(ctx); err != nil {
			slog.Warn("brightness handoff failed", "err", err)
		}
	}
	if err := panel.Enable(ctx); err != nil {
		slog.Error("panel enable failed", "err", err)
		os.Exit(1)
	}

	// Overlay settings
	store := config.NewJSONStore(*settingsDir)
	ov, err := overlay.New(ctx, panel, store)
	if err != nil {
		slog.Error("overlay settings", "err", err)
		os.Exit(1)
	}
	if w, err := overlay.NewWatcher(ov, store.Path()); err != nil {
		slog.Warn("overlay: could not watch settings", "err", err)
	} else {
		closers = append(closers, w)
		go w.Run(ctx)
	}
	if *als {
		startALS(ctx, ov, &closers)
	}

	authSvc, err := auth.NewService(*settingsDir)
	if err != nil {
		slog.Error("auth service initialization failed", "err", err)
		os.Exit(1)
	}
	defer authSvc.Close()

	id := identity.Lookup(*settingsDir)
	if *mdns {
		zc := zeroconf.New(id.Hostname, listenPort(*addr), cfg, id.Version)
		go func() {
			if err := zc.Start(ctx); err != nil {
				slog.Warn("zeroconf failed", "err", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:         *addr,
		Handler:      api.NewRouter(panel, ov, authSvc, id),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout (needed for SSE)
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		slog.Info("panelctl listening", "addr", *addr, "version", id.Version, "mock", *mock, "settings", *settingsDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}
	if err := store.Flush(); err != nil {
		slog.Warn("failed to flush settings", "err", err)
	}
	panel.Disable()
	panel.Close()
	vsync.Close()
	for _, c := range closers {
		if err := c.Close(); err != nil {
			slog.Debug("close", "err", err)
		}
	}
	slog.Info("shutdown complete")
}

func loadPanel(path string, mock bool) (models.PanelConfig, error) {
	cfg, err := config.LoadPanel(path)
	if err != nil && mock && errors.Is(err, os.ErrNotExist) {
		slog.Info("no panel description, using the built-in demo panel")
		return config.ParsePanel(demoPanel)
	}
	return cfg, err
}

type channel interface {
	hardware.Channel
	io.Closer
}

func openChannel(serialDev, busName string, addr uint16) (channel, error) {
	if serialDev != "" {
		return hardware.OpenSerial(serialDev)
	}
	return hardware.OpenI2C(busName, addr)
}

// followModes keeps the simulated TE rate in step with mode switches.
func followModes(ctx context.Context, bus *events.Bus[models.Notification], te *hardware.TEGenerator) {
	ch, err := bus.Subscribe("panelctl/te")
	if err != nil {
		return
	}
	defer bus.Unsubscribe("panelctl/te")
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			if n.Kind == models.NotifyModeSwitch {
				te.SetRefreshRate(n.RefreshRate)
			}
		}
	}
}

// kickoffLoop plays the display pipeline's part: one kickoff per frame.
func kickoffLoop(ctx context.Context, panel *controller.Panel, vsync *events.Bus[events.Vsync]) {
	frames, err := vsync.Subscribe("panelctl/kickoff")
	if err != nil {
		return
	}
	defer vsync.Unsubscribe("panelctl/kickoff")
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-frames:
			if !ok {
				return
			}
			if err := panel.Kickoff(ctx); err != nil && ctx.Err() == nil {
				slog.Debug("kickoff", "err", err)
			}
		}
	}
}

func startALS(ctx context.Context, ov *overlay.Overlay, closers *[]io.Closer) {
	proxy, err := sensors.OpenSensorProxy()
	if err != nil {
		slog.Warn("ambient light unavailable", "err", err)
		return
	}
	*closers = append(*closers, proxy)
	go sensors.NewPoller(proxy, sensors.DefaultInterval, ov.AmbientLight).Run(ctx)
}

func listenPort(addr string) int {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		if p, err := strconv.Atoi(addr[i+1:]); err == nil {
			return p
		}
	}
	return 80
}
