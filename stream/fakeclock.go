package stream

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a manually-advanced Clock for tests. Timers fire in due
// order (creation order breaks ties) when Advance moves virtual time past
// them. Between firings the loop is flushed so work scheduled by one firing
// (an interval re-arming itself, a switch re-subscribing) lands in the
// clock before the next firing is chosen.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*fakeTimer
	loop   *Loop
}

type fakeTimer struct {
	clock   *FakeClock
	due     time.Duration
	seq     int
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// NewFakeClock creates a fake clock at virtual time zero
func NewFakeClock() *FakeClock {
	return &FakeClock{}
}

// Bind attaches the loop flushed between timer firings during Advance
func (c *FakeClock) Bind(l *Loop) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loop = l
}

// AfterFunc implements Clock
func (c *FakeClock) AfterFunc(d time.Duration, fn func()) CancelTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	t := &fakeTimer{clock: c, due: c.now + d, seq: c.seq, fn: fn}
	c.seq++
	c.timers = append(c.timers, t)
	return t
}

// Now returns the current virtual time
func (c *FakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves virtual time forward by d, firing every timer that comes
// due on the way and flushing the bound loop after each firing so chained
// schedules are observed.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	loop := c.loop
	c.mu.Unlock()

	for {
		t := c.popDue(target)
		if t == nil {
			break
		}
		t.fn()
		if loop != nil {
			loop.Flush()
		}
	}

	c.mu.Lock()
	if target > c.now {
		c.now = target
	}
	c.mu.Unlock()

	if loop != nil {
		loop.Flush()
	}
}

// popDue removes and returns the earliest unfired timer due at or before
// target, advancing virtual time to its due point. Returns nil when no
// timer is due.
func (c *FakeClock) popDue(target time.Duration) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	c.timers = live

	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].due != c.timers[j].due {
			return c.timers[i].due < c.timers[j].due
		}
		return c.timers[i].seq < c.timers[j].seq
	})

	for i, t := range c.timers {
		if t.due <= target {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			if t.due > c.now {
				c.now = t.due
			}
			return t
		}
	}
	return nil
}
