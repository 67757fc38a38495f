// Package event defines the lifecycle event bus: the single ordered channel
// through which every subscribe/next/error/complete/unsubscribe notification
// flows out of a run to external observers such as the gateway. The bus is
// created per run and closed on teardown; consumers must tolerate a bus
// disappearing entirely between runs.
package event

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type identifies a lifecycle notification
type Type string

const (
	// TypeSubscribe is reported once when a consumer attaches to a producer
	TypeSubscribe Type = "subscribe"
	// TypeNext carries one emitted value for one subscription
	TypeNext Type = "next"
	// TypeError is the terminal error notification for a subscription
	TypeError Type = "error"
	// TypeComplete is the terminal success notification for a subscription
	TypeComplete Type = "complete"
	// TypeUnsubscribe reports cancellation of a still-active subscription
	TypeUnsubscribe Type = "unsubscribe"
)

// Event is one lifecycle notification, tagged with node and subscription
// identity. Sequence numbers are assigned in publish order and are strictly
// increasing within a run.
type Event struct {
	Sequence       uint64    `json:"sequence"`
	Type           Type      `json:"type"`
	NodeID         string    `json:"node_id"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	Value          any       `json:"value,omitempty"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Bus fans published events out to subscribers in publish order and keeps a
// bounded ring of recent events so a UI attaching mid-run can backfill.
// Publishing never blocks: a subscriber that falls behind loses its oldest
// buffered events, counted per subscription.
type Bus struct {
	mu      sync.Mutex
	seq     uint64
	closed  bool
	subs    map[*Subscription]struct{}
	ring    []Event
	ringCap int
}

// DefaultHistory is the ring capacity used when none is configured
const DefaultHistory = 256

// NewBus creates a bus retaining up to history recent events
func NewBus(history int) *Bus {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Bus{
		subs:    make(map[*Subscription]struct{}),
		ringCap: history,
	}
}

// Publish assigns the event its sequence number and delivers it to every
// subscriber. Events published after Close are silently dropped, which is
// the defined behavior for completions racing teardown.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.seq++
	e.Sequence = b.seq
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.ring = append(b.ring, e)
	if len(b.ring) > b.ringCap {
		b.ring = b.ring[len(b.ring)-b.ringCap:]
	}

	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.deliver(e)
	}
}

// Subscribe registers a consumer with the given channel buffer size.
// Returns nil if the bus is already closed.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	s := &Subscription{bus: b, ch: make(chan Event, buffer)}
	b.subs[s] = struct{}{}
	return s
}

// Recent returns up to n of the most recent events, oldest first
func (b *Bus) Recent(n int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > len(b.ring) {
		n = len(b.ring)
	}
	out := make([]Event, n)
	copy(out, b.ring[len(b.ring)-n:])
	return out
}

// Closed reports whether the bus has been shut down
func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close shuts the bus down: subscriber channels are closed and later
// publishes become no-ops. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for s := range subs {
		s.close()
	}
}

// Subscription is one consumer's attachment to the bus
type Subscription struct {
	bus     *Bus
	ch      chan Event
	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

// Events returns the ordered event channel. It is closed when the bus
// closes or the subscription is cancelled.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns how many events this subscriber lost to back-pressure
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close cancels the subscription and releases its channel
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	if s.bus.subs != nil {
		delete(s.bus.subs, s)
	}
	s.bus.mu.Unlock()
	s.close()
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// deliver hands the event to the subscriber without blocking, shedding the
// oldest buffered event when the consumer has fallen behind
func (s *Subscription) deliver(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
		return
	default:
	}
	// Buffer full: drop the oldest, then retry once
	select {
	case <-s.ch:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
}
