// Package stream provides the single-threaded cooperative scheduler and the
// producer/sink primitives the reactive runtime is built on. All producers,
// operators and the event bus execute as tasks on one loop goroutine;
// concurrency is interleaving of scheduled continuations, never true
// parallelism. Timer firings and external completions re-enter the loop
// through Post, so ordering is exactly task-enqueue order.
package stream

import (
	"sync"
	"time"
)

// Clock abstracts timer creation so tests can drive virtual time
type Clock interface {
	// AfterFunc runs fn once after d has elapsed. fn is invoked from the
	// clock's own context; callers re-enter the loop via Post.
	AfterFunc(d time.Duration, fn func()) CancelTimer
}

// CancelTimer stops a pending timer firing
type CancelTimer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, fn func()) CancelTimer {
	return time.AfterFunc(d, fn)
}

// Loop is the cooperative scheduler: one goroutine owns all task execution.
// Tasks posted after Stop are silently dropped, which is what makes
// teardown races (a completion arriving after stop) safe by construction.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	ran     uint64
	stopped bool
	done    chan struct{}
	clock   Clock
	timers  map[*Timer]struct{}
}

// NewLoop creates a loop backed by real wall-clock timers
func NewLoop() *Loop {
	return NewLoopWithClock(realClock{})
}

// NewLoopWithClock creates a loop with an injected clock (virtual time in tests)
func NewLoopWithClock(clock Clock) *Loop {
	l := &Loop{
		done:   make(chan struct{}),
		clock:  clock,
		timers: make(map[*Timer]struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Start launches the loop goroutine
func (l *Loop) Start() {
	go l.run()
}

func (l *Loop) run() {
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if l.stopped {
			l.mu.Unlock()
			close(l.done)
			return
		}
		task := l.queue[0]
		l.queue = l.queue[1:]
		l.ran++
		l.mu.Unlock()

		task()
	}
}

// Post enqueues a task for execution on the loop goroutine. Returns false
// if the loop has stopped, in which case the task is dropped.
func (l *Loop) Post(task func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	l.queue = append(l.queue, task)
	l.cond.Signal()
	return true
}

// After schedules task to run on the loop after d. The returned timer is
// tracked by the loop and cancelled on Stop, so no timer outlives a run.
func (l *Loop) After(d time.Duration, task func()) *Timer {
	t := &Timer{loop: l}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		t.expired = true
		return t
	}
	l.timers[t] = struct{}{}
	l.mu.Unlock()

	t.cancel = l.clock.AfterFunc(d, func() {
		l.mu.Lock()
		delete(l.timers, t)
		l.mu.Unlock()
		t.mu.Lock()
		if t.expired {
			t.mu.Unlock()
			return
		}
		t.expired = true
		t.mu.Unlock()
		l.Post(task)
	})
	return t
}

// Stop halts the loop: pending tasks are discarded, every tracked timer is
// cancelled, and subsequent Posts become no-ops. Idempotent and safe to
// call concurrently, but must not be called from a loop task. Blocks until
// the loop goroutine has exited.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.stopped = true
	l.queue = nil
	for t := range l.timers {
		t.stopLocked()
	}
	l.timers = nil
	l.cond.Broadcast()
	l.mu.Unlock()

	<-l.done
}

// Done is closed once the loop goroutine has exited
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Flush blocks until the loop is idle: every pending task, and every task
// those tasks post, has executed. It must not be called from a loop task.
// Used by tests and by status snapshots; returns immediately on a stopped
// loop.
func (l *Loop) Flush() {
	for {
		l.mu.Lock()
		before := l.ran
		l.mu.Unlock()

		marker := make(chan struct{})
		if !l.Post(func() { close(marker) }) {
			return
		}
		select {
		case <-marker:
		case <-l.done:
			return
		}

		l.mu.Lock()
		settled := l.ran-before == 1
		l.mu.Unlock()
		if settled {
			// Only the marker ran: nothing else was queued, so any task
			// posted by earlier work has already executed.
			return
		}
	}
}

// Timer is a pending loop-scheduled firing
type Timer struct {
	loop    *Loop
	cancel  CancelTimer
	mu      sync.Mutex
	expired bool
}

// Stop cancels the firing if it has not happened yet
func (t *Timer) Stop() {
	t.loop.mu.Lock()
	if t.loop.timers != nil {
		delete(t.loop.timers, t)
	}
	t.loop.mu.Unlock()
	t.stopLocked()
}

// stopLocked cancels the underlying clock timer without touching the
// loop's timer set (the caller already did, or holds the loop lock).
func (t *Timer) stopLocked() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.expired {
		return
	}
	t.expired = true
	if t.cancel != nil {
		t.cancel.Stop()
	}
}
