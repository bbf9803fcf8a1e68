// Package sensors reads the ambient light level from iio-sensor-proxy over
// the system D-Bus.
package sensors

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	proxyService   = "net.hadess.SensorProxy"
	proxyPath      = dbus.ObjectPath("/net/hadess/SensorProxy")
	proxyInterface = "net.hadess.SensorProxy"

	// DefaultInterval is how often Poller samples the light level.
	DefaultInterval = time.Second
)

// LightReader returns the current ambient light level.
type LightReader interface {
	LightLevel(ctx context.Context) (float64, string, error)
}

// SensorProxy is a claimed ambient light sensor on iio-sensor-proxy.
type SensorProxy struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// OpenSensorProxy connects to the system bus and claims the light sensor.
func OpenSensorProxy() (*SensorProxy, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("sensors: connect system bus: %w", err)
	}
	obj := conn.Object(proxyService, proxyPath)
	has, err := obj.GetProperty(proxyInterface + ".HasAmbientLight")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sensors: query sensor proxy: %w", err)
	}
	if ok, _ := has.Value().(bool); !ok {
		conn.Close()
		return nil, fmt.Errorf("sensors: no ambient light sensor")
	}
	if call := obj.Call(proxyInterface+".ClaimLight", 0); call.Err != nil {
		conn.Close()
		return nil, fmt.Errorf("sensors: claim light: %w", call.Err)
	}
	return &SensorProxy{conn: conn, obj: obj}, nil
}

// LightLevel returns the level and its unit ("lux" or "vendor").
func (s *SensorProxy) LightLevel(ctx context.Context) (float64, string, error) {
	lvl, err := s.obj.GetProperty(proxyInterface + ".LightLevel")
	if err != nil {
		return 0, "", err
	}
	unit := "lux"
	if u, err := s.obj.GetProperty(proxyInterface + ".LightLevelUnit"); err == nil {
		if us, ok := u.Value().(string); ok {
			unit = us
		}
	}
	v, err := variantFloat(lvl)
	return v, unit, err
}

// Close releases the claim and the bus connection.
func (s *SensorProxy) Close() error {
	if call := s.obj.Call(proxyInterface+".ReleaseLight", 0); call.Err != nil {
		slog.Debug("sensors: release light", "err", call.Err)
	}
	return s.conn.Close()
}

func variantFloat(v dbus.Variant) (float64, error) {
	switch x := v.Value().(type) {
	case float64:
		return x, nil
	case uint32:
		return float64(x), nil
	case int32:
		return float64(x), nil
	}
	return 0, fmt.Errorf("sensors: unexpected light level type %s", v.Signature())
}

// Poller samples a LightReader and reports rounded lux values when they change.
type Poller struct {
	r        LightReader
	interval time.Duration
	onLux    func(ctx context.Context, lux int)
}

// NewPoller returns a poller calling onLux on every change. A zero interval
// selects DefaultInterval.
func NewPoller(r LightReader, interval time.Duration, onLux func(ctx context.Context, lux int)) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{r: r, interval: interval, onLux: onLux}
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	last := -1
	for {
		if lux, ok := p.sample(ctx); ok && lux != last {
			last = lux
			p.onLux(ctx, lux)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) sample(ctx context.Context) (int, bool) {
	v, unit, err := p.r.LightLevel(ctx)
	if err != nil {
		slog.Debug("sensors: light level read failed", "err", err)
		return 0, false
	}
	if unit != "lux" {
		slog.Debug("sensors: ignoring non-lux light level", "unit", unit)
		return 0, false
	}
	if v < 0 || math.IsNaN(v) {
		return 0, false
	}
	return int(math.Round(v)), true
}
