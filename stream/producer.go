package stream

// Passthrough relays an upstream producer unchanged: every subscription
// opens its own upstream instance and forwards values and terminal states
// verbatim. Used for observer nodes and for operators degraded by
// configuration errors.
func Passthrough(up Producer) Producer {
	return func(s *Sink) {
		child := NewSink(s.Loop(), Handlers{
			OnNext:     s.Next,
			OnError:    s.Error,
			OnComplete: s.Complete,
		})
		s.OnTeardown(child.Unsubscribe)
		up(child)
	}
}
