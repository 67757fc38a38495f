package operator

import "github.com/langhuihui/rxcraft/stream"

// switchMapTo maps every primary emission to a fresh subscription of the
// secondary producer, cancelling whichever inner subscription was live.
// Because the secondary is cold, each switch restarts it from scratch.
// Downstream completes only when the primary has completed and the last
// inner subscription has finished.
func (f *Factory) switchMapTo(primary, secondary stream.Producer) stream.Producer {
	return func(s *stream.Sink) {
		var inner *stream.Sink
		primaryDone := false

		maybeComplete := func() {
			if primaryDone && (inner == nil || !inner.Active()) {
				s.Complete()
			}
		}

		// One teardown covers whichever inner subscription is current
		s.OnTeardown(func() {
			if inner != nil {
				inner.Unsubscribe()
			}
		})

		child := stream.NewSink(s.Loop(), stream.Handlers{
			OnNext: func(any) {
				if inner != nil {
					inner.Unsubscribe()
				}
				fresh := stream.NewSink(s.Loop(), stream.Handlers{
					OnNext:  s.Next,
					OnError: s.Error,
					OnComplete: func() {
						maybeComplete()
					},
				})
				inner = fresh
				secondary(fresh)
			},
			OnError: s.Error,
			OnComplete: func() {
				primaryDone = true
				maybeComplete()
			},
		})
		s.OnTeardown(child.Unsubscribe)
		primary(child)
	}
}
