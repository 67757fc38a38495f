package operator

import "github.com/langhuihui/rxcraft/stream"

// takeUntil mirrors the primary upstream until the secondary emits its
// first value, then completes. A secondary that completes without ever
// emitting leaves the primary untouched. The secondary is attached first
// so a synchronous notifier cuts the primary off before it emits anything.
func (f *Factory) takeUntil(primary, secondary stream.Producer) stream.Producer {
	return func(s *stream.Sink) {
		notifier := stream.NewSink(s.Loop(), stream.Handlers{
			OnNext:  func(any) { s.Complete() },
			OnError: s.Error,
		})
		s.OnTeardown(notifier.Unsubscribe)
		secondary(notifier)
		if !s.Active() {
			return
		}

		child := stream.NewSink(s.Loop(), stream.Handlers{
			OnNext:     s.Next,
			OnError:    s.Error,
			OnComplete: s.Complete,
		})
		s.OnTeardown(child.Unsubscribe)
		primary(child)
	}
}

// skipUntil suppresses primary values until the secondary's first
// emission opens the gate. The notifier subscription is released as soon
// as the gate opens; it has nothing further to say.
func (f *Factory) skipUntil(primary, secondary stream.Producer) stream.Producer {
	return func(s *stream.Sink) {
		open := false
		var notifier *stream.Sink
		notifier = stream.NewSink(s.Loop(), stream.Handlers{
			OnNext: func(any) {
				open = true
				notifier.Unsubscribe()
			},
			OnError: s.Error,
		})
		s.OnTeardown(notifier.Unsubscribe)
		secondary(notifier)
		if !s.Active() {
			return
		}

		child := stream.NewSink(s.Loop(), stream.Handlers{
			OnNext: func(v any) {
				if open {
					s.Next(v)
				}
			},
			OnError:    s.Error,
			OnComplete: s.Complete,
		})
		s.OnTeardown(child.Unsubscribe)
		primary(child)
	}
}

// zip pairs the nth primary value with the nth secondary value, emitting
// them as a two-element slice. Unmatched values queue; the pair stream
// completes once a finished side can never be matched again.
func (f *Factory) zip(primary, secondary stream.Producer) stream.Producer {
	return func(s *stream.Sink) {
		var left, right []any
		leftDone, rightDone := false, false

		emit := func() {
			for len(left) > 0 && len(right) > 0 {
				pair := []any{left[0], right[0]}
				left, right = left[1:], right[1:]
				s.Next(pair)
				if !s.Active() {
					return
				}
			}
			// A completed side with an empty queue can never pair again
			if (leftDone && len(left) == 0) || (rightDone && len(right) == 0) {
				s.Complete()
			}
		}

		a := stream.NewSink(s.Loop(), stream.Handlers{
			OnNext: func(v any) {
				left = append(left, v)
				emit()
			},
			OnError: s.Error,
			OnComplete: func() {
				leftDone = true
				emit()
			},
		})
		b := stream.NewSink(s.Loop(), stream.Handlers{
			OnNext: func(v any) {
				right = append(right, v)
				emit()
			},
			OnError: s.Error,
			OnComplete: func() {
				rightDone = true
				emit()
			},
		})
		s.OnTeardown(a.Unsubscribe)
		s.OnTeardown(b.Unsubscribe)

		primary(a)
		if !s.Active() {
			return
		}
		secondary(b)
	}
}

// buffer collects primary values and flushes the batch (possibly empty)
// each time the secondary emits. Primary completion flushes any pending
// batch before completing downstream.
func (f *Factory) buffer(primary, secondary stream.Producer) stream.Producer {
	return func(s *stream.Sink) {
		var batch []any

		flusher := stream.NewSink(s.Loop(), stream.Handlers{
			OnNext: func(any) {
				out := batch
				if out == nil {
					out = []any{}
				}
				batch = nil
				s.Next(out)
			},
			OnError: s.Error,
		})
		s.OnTeardown(flusher.Unsubscribe)
		secondary(flusher)
		if !s.Active() {
			return
		}

		child := stream.NewSink(s.Loop(), stream.Handlers{
			OnNext: func(v any) {
				batch = append(batch, v)
			},
			OnError: s.Error,
			OnComplete: func() {
				if len(batch) > 0 {
					out := batch
					batch = nil
					s.Next(out)
				}
				s.Complete()
			},
		})
		s.OnTeardown(child.Unsubscribe)
		primary(child)
	}
}
