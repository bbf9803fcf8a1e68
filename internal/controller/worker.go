package controller

import (
	"log/slog"
	"sync"
)

// work is a reusable item for a worker. Queueing an item that is already
// queued is a no-op, so at most one instance of each item waits at a time.
type work struct {
	name string
	fn   func()

	// guarded by worker.mu
	queued  bool
	running bool
}

func newWork(name string, fn func()) *work {
	return &work{name: name, fn: fn}
}

// worker runs work items one at a time, in queue order, on a single goroutine.
type worker struct {
	name string

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*work
	stopped bool
	done    chan struct{}
}

func newWorker(name string) *worker {
	w := &worker{name: name, done: make(chan struct{})}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	return w
}

func (w *worker) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.stopped {
			w.cond.Wait()
		}
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		wk := w.queue[0]
		w.queue = w.queue[1:]
		wk.queued = false
		wk.running = true
		w.mu.Unlock()

		wk.fn()

		w.mu.Lock()
		wk.running = false
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}

// Queue adds wk unless it is already waiting. It reports whether wk was added.
func (w *worker) Queue(wk *work) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		slog.Debug("worker: queue after stop", "worker", w.name, "work", wk.name)
		return false
	}
	if wk.queued {
		return false
	}
	wk.queued = true
	w.queue = append(w.queue, wk)
	w.cond.Broadcast()
	return true
}

// FlushWork waits until wk is neither queued nor running.
func (w *worker) FlushWork(wk *work) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for wk.queued || wk.running {
		w.cond.Wait()
	}
}

// WaitRunning waits for a running wk to finish. A queued wk is left queued.
func (w *worker) WaitRunning(wk *work) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for wk.running {
		w.cond.Wait()
	}
}

// Flush waits for everything queued before the call to complete.
func (w *worker) Flush() {
	barrier := newWork(w.name+"/flush", func() {})
	if !w.Queue(barrier) {
		return
	}
	w.FlushWork(barrier)
}

// Stop drains the queue, stops the goroutine and waits for it to exit.
// Calling Stop more than once is harmless.
// Stopped reports whether Stop has been called.
func (w *worker) Stopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

func (w *worker) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.cond.Broadcast()
	w.mu.Unlock()
	<-w.done
}
