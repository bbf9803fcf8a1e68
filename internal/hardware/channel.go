// Package hardware provides the panel's hardware collaborators: the DCS
// command channel, the display supply regulator, PWM backlight output and
// vsync/TE sources. Real implementations talk to periph.io buses, a serial
// bridge and sysfs; Mock backs development and tests.
package hardware

import (
	"context"
	"log/slog"
	"time"

	"github.com/micro-nova/panel-go/internal/events"
	"github.com/micro-nova/panel-go/internal/models"
)

// Channel is the panel command channel. Payloads are raw DCS byte sequences,
// first byte is the command.
// All operations are context-aware and safe for concurrent use.
type Channel interface {
	// SendCommand writes one command payload.
	SendCommand(ctx context.Context, payload []byte) error

	// ReadRegister reads n bytes of panel register space at reg.
	ReadRegister(ctx context.Context, reg byte, n int) ([]byte, error)
}

// Regulator is the auxiliary display supply.
type Regulator interface {
	SetMode(ctx context.Context, mode models.RegulatorMode) error
}

// VsyncSource delivers frame boundaries to subscribers.
// events.Bus[events.Vsync] satisfies it.
type VsyncSource interface {
	Subscribe(id string) (<-chan events.Vsync, error)
	Unsubscribe(id string)
}

// NopRegulator is used when the panel has no controllable supply.
type NopRegulator struct{}

func (NopRegulator) SetMode(context.Context, models.RegulatorMode) error { return nil }

// Transfer sends every command of set in order, honoring per-command delays.
func Transfer(ctx context.Context, ch Channel, set models.CommandSet) error {
	for i, cmd := range set {
		if len(cmd.Payload) == 0 {
			continue
		}
		if err := ch.SendCommand(ctx, cmd.Payload); err != nil {
			slog.Error("dcs: command transfer failed", "index", i, "cmd", cmd.Payload[0], "err", err)
			return models.ErrHardware("transfer", err)
		}
		if cmd.Delay > 0 {
			if err := Sleep(ctx, cmd.Delay); err != nil {
				return err
			}
		}
	}
	return nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
