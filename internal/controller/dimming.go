package controller

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/micro-nova/panel-go/internal/models"
)

// lockRetryDelay is the dimming loop's backoff while the panel lock is held.
const lockRetryDelay = 1500 * time.Microsecond

// startDimmingLocked begins a ramp of frames vsyncs after which stop is sent.
// A running ramp is restarted with the new total. frames <= 0 is a no-op.
func (p *Panel) startDimmingLocked(frames int, stop models.CommandSet) error {
	if frames <= 0 {
		return nil
	}
	if !p.dim.active {
		if p.vsync == nil {
			return models.ErrUnsupported("dimming: no vsync source")
		}
		ch, err := p.vsync.Subscribe(p.listenerID("dimming"))
		if err != nil {
			return fmt.Errorf("dimming: vsync subscribe: %w", err)
		}
		p.dim.frames = ch
	}
	p.dim.total = frames
	p.dim.left = frames
	p.dim.stop = stop
	p.dim.active = true
	slog.Debug("dimming: started", "frames", frames)

	select {
	case p.dimKick <- struct{}{}:
	default:
	}
	return nil
}

func (p *Panel) restartDimmingLocked() {
	if !p.dim.active {
		return
	}
	p.dim.left = p.dim.total
	slog.Debug("dimming: restarted", "frames", p.dim.total)
}

// stopDimmingLocked ends the ramp: the vsync subscription is released, the
// stop command is sent and a deferred IRC enable is applied.
func (p *Panel) stopDimmingLocked() {
	if !p.dim.active {
		return
	}
	stop := p.dim.stop
	p.vsync.Unsubscribe(p.listenerID("dimming"))
	p.dim = dimming{}

	if !stop.Empty() {
		if err := p.sendHBMLocked(p.ctx, stop); err != nil {
			slog.Error("dimming: unable to disable brightness dimming", "err", err)
		}
	}
	if p.pendingIRCOn {
		p.setIRCLogged(p.ctx, true)
		p.pendingIRCOn = false
	}
	slog.Debug("dimming: stopped")
}

// forceStopDimmingLocked drops the ramp without sending anything.
func (p *Panel) forceStopDimmingLocked() {
	if !p.dim.active {
		return
	}
	p.vsync.Unsubscribe(p.listenerID("dimming"))
	p.dim = dimming{}
	p.pendingIRCOn = false
}

// DimmingActive reports whether a ramp is running.
func (p *Panel) DimmingActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dim.active
}

func (p *Panel) dimmingLoop() {
	defer close(p.dimDone)
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.dimKick:
		}
		p.runDimming()
	}
}

// runDimming counts frames until the ramp ends. The vsync wait happens
// without the lock; the lock is only ever tried so a caller stopping dimming
// while holding it is never blocked by this loop.
func (p *Panel) runDimming() {
	for {
		p.mu.Lock()
		active, frames := p.dim.active, p.dim.frames
		p.mu.Unlock()
		if !active {
			return
		}

		var ok bool
		select {
		case <-p.ctx.Done():
			return
		case _, ok = <-frames:
		}

		if !p.tryLock() {
			return
		}
		if !p.dim.active {
			p.mu.Unlock()
			return
		}
		if p.dim.frames != frames {
			// ramp was restarted on a new subscription
			p.mu.Unlock()
			continue
		}
		slog.Debug("dimming: frame", "left", p.dim.left, "total", p.dim.total)
		if !ok {
			slog.Error("dimming: vsync source went away, disabling dimming now")
			p.dim.left = 0
		} else if p.dim.left > 0 {
			p.dim.left--
		}
		if p.dim.left == 0 {
			p.stopDimmingLocked()
		}
		p.mu.Unlock()
	}
}

// tryLock polls the panel lock until it is acquired or the panel closes.
func (p *Panel) tryLock() bool {
	for !p.mu.TryLock() {
		select {
		case <-p.ctx.Done():
			return false
		case <-time.After(lockRetryDelay):
		}
	}
	return true
}
