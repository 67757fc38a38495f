package stream

// Producer builds one independent stream instance per subscription: timers,
// counters and queues live in the closure created by the call, never shared
// between subscribers. Producers must only be invoked from loop tasks.
type Producer func(s *Sink)

// Handlers receives the emissions of one subscription. Any handler may be
// nil. OnCancel fires only when the sink is unsubscribed before reaching a
// terminal state; a terminated sink ignores Unsubscribe entirely.
type Handlers struct {
	OnNext     func(v any)
	OnError    func(err error)
	OnComplete func()
	OnCancel   func()
}

// Sink is one consumer's live attachment to a producer. It enforces the
// terminal-state contract: after Error, Complete or Unsubscribe nothing
// further is delivered and teardowns have run exactly once.
//
// Sinks are confined to the loop goroutine, so no locking is needed;
// re-entrant hazards (an operator cancelling upstream while handling a
// value) reduce to the closed flag check.
type Sink struct {
	loop      *Loop
	handlers  Handlers
	teardowns []func()
	closed    bool
}

// NewSink creates a sink delivering to the given handlers
func NewSink(l *Loop, h Handlers) *Sink {
	return &Sink{loop: l, handlers: h}
}

// Loop returns the scheduler this sink is confined to
func (s *Sink) Loop() *Loop {
	return s.loop
}

// Active reports whether the sink can still receive emissions
func (s *Sink) Active() bool {
	return !s.closed
}

// Next delivers a value. Dropped silently after a terminal state.
func (s *Sink) Next(v any) {
	if s.closed {
		return
	}
	if s.handlers.OnNext != nil {
		s.handlers.OnNext(v)
	}
}

// Error terminates the sink with an error and runs teardowns
func (s *Sink) Error(err error) {
	if s.closed {
		return
	}
	s.closed = true
	if s.handlers.OnError != nil {
		s.handlers.OnError(err)
	}
	s.runTeardowns()
}

// Complete terminates the sink normally and runs teardowns
func (s *Sink) Complete() {
	if s.closed {
		return
	}
	s.closed = true
	if s.handlers.OnComplete != nil {
		s.handlers.OnComplete()
	}
	s.runTeardowns()
}

// Unsubscribe cancels the sink externally. A no-op once a terminal state
// has been reached, so double-unsubscribe and cancel-after-complete races
// are harmless.
func (s *Sink) Unsubscribe() {
	if s.closed {
		return
	}
	s.closed = true
	if s.handlers.OnCancel != nil {
		s.handlers.OnCancel()
	}
	s.runTeardowns()
}

// OnTeardown registers cleanup run once when the sink terminates for any
// reason. Registering on an already-terminated sink runs fn immediately,
// which closes the window where an upstream attach lands after cancel.
func (s *Sink) OnTeardown(fn func()) {
	if fn == nil {
		return
	}
	if s.closed {
		fn()
		return
	}
	s.teardowns = append(s.teardowns, fn)
}

func (s *Sink) runTeardowns() {
	// Capture before iterating: a teardown may try to register more
	teardowns := s.teardowns
	s.teardowns = nil
	for _, fn := range teardowns {
		fn()
	}
}
