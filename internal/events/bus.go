// Package events provides a small non-blocking publish-subscribe bus used for
// vsync/TE delivery inside the daemon and for notifications streamed over SSE.
package events

import (
	"errors"
	"sync"
	"time"
)

const subBufferSize = 8

// ErrClosed is returned by Subscribe once the bus has been closed.
var ErrClosed = errors.New("events: bus closed")

// Vsync marks one hardware frame boundary (vsync or TE pulse).
type Vsync struct {
	Seq uint64
	At  time.Time
}

// Bus is a non-blocking publish-subscribe event bus.
// Subscribers that are slow to consume events will have events dropped rather
// than blocking publishers.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   map[string]chan T
	closed bool
}

// NewBus creates a new event bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{
		subs: make(map[string]chan T),
	}
}

// Subscribe creates a new subscription with the given ID.
// Subscribing again with a live ID replaces (and closes) the old channel.
// Call Unsubscribe when done to clean up.
func (b *Bus[T]) Subscribe(id string) (<-chan T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if old, ok := b.subs[id]; ok {
		close(old)
	}
	ch := make(chan T, subBufferSize)
	b.subs[id] = ch
	return ch, nil
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus[T]) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish sends v to all subscribers.
// If a subscriber's channel is full, the event is dropped (non-blocking).
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
			// Drop if subscriber is slow
		}
	}
}

// Close closes every subscription and rejects new ones.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// SubscriberCount returns the current number of subscribers.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
