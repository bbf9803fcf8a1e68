package hardware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/micro-nova/panel-go/internal/events"
)

// TEGenerator publishes simulated TE pulses at the panel refresh rate.
// It stands in for the display pipeline when running against Mock.
type TEGenerator struct {
	bus *events.Bus[events.Vsync]

	mu     sync.Mutex
	period time.Duration
	reset  chan struct{}
	seq    uint64
}

// NewTEGenerator creates a generator publishing onto bus at refreshRate Hz.
func NewTEGenerator(bus *events.Bus[events.Vsync], refreshRate int) *TEGenerator {
	g := &TEGenerator{bus: bus, reset: make(chan struct{}, 1)}
	g.period = periodFor(refreshRate)
	return g
}

func periodFor(hz int) time.Duration {
	if hz <= 0 {
		hz = 60
	}
	return time.Second / time.Duration(hz)
}

// SetRefreshRate changes the pulse rate at the next frame.
func (g *TEGenerator) SetRefreshRate(hz int) {
	g.mu.Lock()
	g.period = periodFor(hz)
	g.mu.Unlock()
	select {
	case g.reset <- struct{}{}:
	default:
	}
}

// Run publishes pulses until ctx is cancelled.
func (g *TEGenerator) Run(ctx context.Context) {
	g.mu.Lock()
	period := g.period
	g.mu.Unlock()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	slog.Debug("te: simulated source started", "period", period)
	for {
		select {
		case <-ctx.Done():
			return
		case <-g.reset:
			g.mu.Lock()
			period = g.period
			g.mu.Unlock()
			ticker.Reset(period)
		case now := <-ticker.C:
			g.seq++
			g.bus.Publish(events.Vsync{Seq: g.seq, At: now})
		}
	}
}
