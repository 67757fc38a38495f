package operator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/langhuihui/rxcraft/errors"
	"github.com/langhuihui/rxcraft/expr"
	"github.com/langhuihui/rxcraft/graph"
	"github.com/langhuihui/rxcraft/pkg/retry"
	"github.com/langhuihui/rxcraft/stream"
)

// compileExpr compiles a node's transform expression. A compile failure is
// a configuration error: the caller degrades to pass-through so the rest
// of the graph keeps running.
func (f *Factory) compileExpr(node graph.Node) (*expr.Program, bool) {
	source := node.ConfigString("expression", "")
	program, err := expr.Compile(source)
	if err != nil {
		f.logger.Warn("operator expression invalid, degrading to pass-through",
			"node", node.ID, "subtype", node.Subtype, "expression", source, "error", err)
		return nil, false
	}
	return program, true
}

// mapOp applies the node's expression to every upstream value. Evaluation
// failures are runtime data errors and terminate the subscription with an
// error, exactly like a throwing transform would.
func (f *Factory) mapOp(node graph.Node, up stream.Producer) stream.Producer {
	program, ok := f.compileExpr(node)
	if !ok {
		return stream.Passthrough(up)
	}

	return func(s *stream.Sink) {
		i := 0
		child := stream.NewSink(s.Loop(), stream.Handlers{
			OnNext: func(v any) {
				out, err := program.Eval(v, i)
				i++
				if err != nil {
					s.Error(err)
					return
				}
				s.Next(out)
			},
			OnError:    s.Error,
			OnComplete: s.Complete,
		})
		s.OnTeardown(child.Unsubscribe)
		up(child)
	}
}

// filterOp forwards upstream values whose predicate evaluates truthy
func (f *Factory) filterOp(node graph.Node, up stream.Producer) stream.Producer {
	program, ok := f.compileExpr(node)
	if !ok {
		return stream.Passthrough(up)
	}

	return func(s *stream.Sink) {
		i := 0
		child := stream.NewSink(s.Loop(), stream.Handlers{
			OnNext: func(v any) {
				keep, err := program.EvalBool(v, i)
				i++
				if err != nil {
					s.Error(err)
					return
				}
				if keep {
					s.Next(v)
				}
			},
			OnError:    s.Error,
			OnComplete: s.Complete,
		})
		s.OnTeardown(child.Unsubscribe)
		up(child)
	}
}

// take forwards the first count values then completes. The counter lives
// in the subscription closure: a second multiplexed consumer, or a
// resubscription by a downstream retry, always restarts at zero.
func (f *Factory) take(node graph.Node, up stream.Producer) stream.Producer {
	count := node.ConfigInt("count", 1)

	return func(s *stream.Sink) {
		if count <= 0 {
			s.Complete()
			return
		}
		remaining := count
		child := stream.NewSink(s.Loop(), stream.Handlers{
			OnNext: func(v any) {
				if remaining == 0 {
					return
				}
				remaining--
				s.Next(v)
				if remaining == 0 {
					s.Complete()
				}
			},
			OnError:    s.Error,
			OnComplete: s.Complete,
		})
		s.OnTeardown(child.Unsubscribe)
		up(child)
	}
}

// skip suppresses the first count values and forwards the rest
func (f *Factory) skip(node graph.Node, up stream.Producer) stream.Producer {
	count := node.ConfigInt("count", 1)

	return func(s *stream.Sink) {
		skipped := 0
		child := stream.NewSink(s.Loop(), stream.Handlers{
			OnNext: func(v any) {
				if skipped < count {
					skipped++
					return
				}
				s.Next(v)
			},
			OnError:    s.Error,
			OnComplete: s.Complete,
		})
		s.OnTeardown(child.Unsubscribe)
		up(child)
	}
}

// startWith emits the configured value(s) before subscribing upstream.
// The value may be given directly, or as a JSON array under "values" to
// prepend several.
func (f *Factory) startWith(node graph.Node, up stream.Producer) stream.Producer {
	prefix := startWithPrefix(node)

	return func(s *stream.Sink) {
		for _, v := range prefix {
			if !s.Active() {
				return
			}
			s.Next(v)
		}
		child := stream.NewSink(s.Loop(), stream.Handlers{
			OnNext:     s.Next,
			OnError:    s.Error,
			OnComplete: s.Complete,
		})
		s.OnTeardown(child.Unsubscribe)
		up(child)
	}
}

func startWithPrefix(node graph.Node) []any {
	if raw := node.ConfigString("values", ""); raw != "" {
		var out []any
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out
		}
		// Malformed prefix degrades to a descriptive value
		return []any{fmt.Sprintf("startWith: invalid JSON: %s", raw)}
	}
	return []any{node.ConfigAny("value", 0)}
}

// retryOp resubscribes upstream on error, up to count additional attempts.
// Each resubscription opens a fresh cold instance of the upstream chain.
// A non-zero delay config spaces the attempts out with exponential
// backoff on the loop clock; the default resubscribes immediately.
func (f *Factory) retryOp(node graph.Node, up stream.Producer) stream.Producer {
	count := node.ConfigInt("count", 1)
	backoff := retry.Config{
		MaxAttempts:  count + 1,
		InitialDelay: time.Duration(node.ConfigFloat("delay", 0)) * time.Millisecond,
		Multiplier:   2.0,
	}

	return func(s *stream.Sink) {
		attempts := 0
		var subscribe func()
		subscribe = func() {
			child := stream.NewSink(s.Loop(), stream.Handlers{
				OnNext:     s.Next,
				OnComplete: s.Complete,
				OnError: func(err error) {
					if attempts < count {
						attempts++
						if backoff.InitialDelay > 0 {
							timer := f.loop.After(retry.Backoff(backoff, attempts), subscribe)
							s.OnTeardown(timer.Stop)
							return
						}
						subscribe()
						return
					}
					s.Error(err)
				},
			})
			s.OnTeardown(child.Unsubscribe)
			up(child)
		}
		subscribe()
	}
}

// timeout errors the subscription when the gap between upstream emissions
// (or between attach and the first emission) exceeds the configured
// duration. The gap timer re-arms on every value.
func (f *Factory) timeout(node graph.Node, up stream.Producer) stream.Producer {
	d := time.Duration(node.ConfigFloat("duration", 1000)) * time.Millisecond
	if d <= 0 {
		d = time.Second
	}

	return func(s *stream.Sink) {
		var timer *stream.Timer
		arm := func() {
			if timer != nil {
				timer.Stop()
			}
			timer = f.loop.After(d, func() {
				s.Error(errors.WrapTransient(
					fmt.Errorf("%w: no emission within %s", errors.ErrConnectionTimeout, d),
					"operator", "timeout", "await emission"))
			})
		}

		child := stream.NewSink(s.Loop(), stream.Handlers{
			OnNext: func(v any) {
				arm()
				s.Next(v)
			},
			OnError:    s.Error,
			OnComplete: s.Complete,
		})
		s.OnTeardown(func() {
			if timer != nil {
				timer.Stop()
			}
		})
		s.OnTeardown(child.Unsubscribe)
		arm()
		up(child)
	}
}
