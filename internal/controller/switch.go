package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/micro-nova/panel-go/internal/events"
	"github.com/micro-nova/panel-go/internal/models"
)

// teTimeout bounds every wait for a TE pulse and for a pending switch.
const teTimeout = 50 * time.Millisecond

// CurrentMode returns the mode the panel was last switched to.
func (p *Panel) CurrentMode() models.DisplayMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.mode
}

// RequestModeSwitch queues a switch to the mode with refreshRate. A switch
// already running is waited for; a queued one that has not started yet is
// retargeted, so back-to-back requests perform one switch to the last target.
func (p *Panel) RequestModeSwitch(ctx context.Context, refreshRate int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.closing.Load() {
		return models.ErrInUse("switch", "panel is closing")
	}
	mode, ok := p.cfg.Mode(refreshRate)
	if !ok {
		return models.ErrNotFound("switch", "no %d Hz mode", refreshRate)
	}

	p.switchWorker.WaitRunning(p.switchWork)

	p.mu.Lock()
	p.target = mode
	if p.pendingSw.Load() == nil {
		p.pendingSw.Store(&pendingSwitch{done: make(chan struct{})})
	}
	p.mu.Unlock()

	// Queue also refuses an item that is still waiting, which is a retarget
	if !p.switchWorker.Queue(p.switchWork) && p.switchWorker.Stopped() {
		if ps := p.pendingSw.Swap(nil); ps != nil {
			close(ps.done)
		}
		return models.ErrInUse("switch", "panel is closing")
	}
	slog.Debug("switch: queued", "rate", refreshRate)
	return nil
}

// WaitForPendingSwitch blocks until a queued switch has been programmed or
// timeout passes. A timeout is logged and returned; callers go ahead anyway.
// It does not take the panel lock, which a running switch holds.
func (p *Panel) WaitForPendingSwitch(ctx context.Context, timeout time.Duration) error {
	ps := p.pendingSw.Load()
	if ps == nil {
		return nil
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ps.done:
		return nil
	case <-t.C:
		slog.Warn("switch: timed out waiting for panel switch", "timeout", timeout)
		return models.ErrTimedOut("switch")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kickoff runs before a frame is handed to the display: it waits for a
// pending switch and releases a brightness update deferred until the first
// frame. A switch that outlasts the wait does not fail the kickoff.
func (p *Panel) Kickoff(ctx context.Context) error {
	if err := p.WaitForPendingSwitch(ctx, teTimeout); err != nil && ctx.Err() != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.allowUpdate {
		return nil
	}
	p.allowUpdate = true
	if !p.updatePending {
		return nil
	}
	slog.Debug("backlight: applying update deferred to first frame")
	return p.updateLocked(ctx)
}

// switchStep is the switch worker body.
func (p *Panel) switchStep() {
	p.mu.Lock()
	mode := p.target
	if mode == nil {
		p.mu.Unlock()
		return
	}
	slog.Debug("switch: switching mode", "rate", mode.RefreshRate)

	listen := p.teListenCount
	var te <-chan events.Vsync
	if listen > 0 && p.vsync != nil {
		ch, err := p.vsync.Subscribe(p.listenerID("switch"))
		if err != nil {
			slog.Warn("switch: unable to listen for TE", "err", err)
			listen = 0
		} else {
			te = ch
		}
	}

	// a request made while idle is what Wakeup restores
	if p.idle {
		p.wakeMode = mode
	}
	// the switch is latched on the next vsync, so it is sent ahead of TE
	p.switchToLocked(p.ctx, mode)
	p.mu.Unlock()

	if listen == 0 {
		return
	}
	start := time.Now()
	ok := p.waitTE(te)
	if !ok {
		slog.Warn("switch: timed out waiting for TE while switching")
	} else {
		slog.Debug("switch: TE received", "after", time.Since(start))
	}

	// keep listening a few extra frames to see how they align after the switch
	listen--
	for ok && listen > 0 {
		ok = p.waitTE(te)
		listen--
	}
	p.vsync.Unsubscribe(p.listenerID("switch"))
}

func (p *Panel) waitTE(te <-chan events.Vsync) bool {
	t := time.NewTimer(teTimeout)
	defer t.Stop()
	select {
	case _, ok := <-te:
		if ok {
			p.teCounter.Add(1)
		}
		return ok
	case <-t.C:
		return false
	case <-p.ctx.Done():
		return false
	}
}

// switchToLocked programs mode and wakes anyone waiting on the pending switch.
func (p *Panel) switchToLocked(ctx context.Context, mode *models.DisplayMode) {
	if err := p.strategy.PerformSwitch(ctx, mode); err != nil {
		slog.Warn("switch: failed to switch mode", "rate", mode.RefreshRate, "err", err)
	}
	p.mode = mode
	if ps := p.pendingSw.Swap(nil); ps != nil {
		close(ps.done)
	}
	p.publish(models.Notification{Kind: models.NotifyModeSwitch, RefreshRate: mode.RefreshRate})
}

// Idle switches synchronously to the idle refresh rate, when one is
// configured and differs from the current mode.
func (p *Panel) Idle(ctx context.Context) error {
	if p.cfg.IdleRefreshRate == 0 {
		return nil
	}
	idleMode, ok := p.cfg.Mode(p.cfg.IdleRefreshRate)
	if !ok {
		return models.ErrConfig("switch", "idle refresh rate %d Hz has no mode", p.cfg.IdleRefreshRate)
	}
	p.switchWorker.Flush()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idle || p.mode == idleMode {
		return nil
	}
	p.wakeMode = p.mode
	p.idle = true
	slog.Info("switch: idle", "rate", idleMode.RefreshRate)
	p.switchToLocked(ctx, idleMode)
	return nil
}

// Wakeup synchronously restores the mode active before Idle, or the last
// mode requested while idle.
func (p *Panel) Wakeup(ctx context.Context) error {
	p.switchWorker.Flush()

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.idle {
		return nil
	}
	p.idle = false
	mode := p.wakeMode
	p.wakeMode = nil
	if mode == nil || mode == p.mode {
		return nil
	}
	slog.Info("switch: wakeup", "rate", mode.RefreshRate)
	p.switchToLocked(ctx, mode)
	return nil
}

// SetTEListenCount sets how many TE pulses each switch waits for. Zero
// disables TE listening.
func (p *Panel) SetTEListenCount(n int) error {
	if n < 0 {
		return models.ErrBadArgument("switch", "te listen count %d is negative", n)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teListenCount = n
	return nil
}
