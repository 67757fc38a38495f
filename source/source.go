// Package source constructs producers for observable-kind nodes: timers,
// finite sequences, network fetches, sentinels, combining sources and
// externally-fired event sources. Every producer is cold: each
// subscription gets its own timers and counters, so the multiplexer can
// open as many independent instances of a node as its demand requires.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/langhuihui/rxcraft/errors"
	"github.com/langhuihui/rxcraft/graph"
	"github.com/langhuihui/rxcraft/pkg/retry"
	"github.com/langhuihui/rxcraft/stream"
)

// Source node subtypes
const (
	SubtypeInterval = "interval"
	SubtypeArray    = "array"
	SubtypeFetch    = "fetch"
	SubtypeEmpty    = "empty"
	SubtypeNever    = "never"
	SubtypeMerge    = "merge"
	SubtypeRace     = "race"
	SubtypePromise  = "promise"

	// Pointer/keyboard-style sources all share the hub-backed producer
	SubtypeMouseMove = "mousemove"
	SubtypeMouseDown = "mousedown"
	SubtypeKeyDown   = "keydown"
	SubtypeKeyUp     = "keyup"
)

const (
	defaultPeriod      = 1000 * time.Millisecond
	defaultDelay       = 1000 * time.Millisecond
	defaultSuccessRate = 0.5
	maxFetchBody       = 1 << 20 // 1 MiB is plenty for a teaching visualizer
)

// Factory builds producers for observable-kind nodes
type Factory struct {
	loop   *stream.Loop
	logger *slog.Logger
	hub    *Hub
	client *http.Client
	rng    func() float64
	retry  retry.Config
}

// Option configures a Factory
type Option func(*Factory)

// WithHTTPClient overrides the client used by fetch sources
func WithHTTPClient(c *http.Client) Option {
	return func(f *Factory) { f.client = c }
}

// WithRand overrides the random source used by promise nodes (tests)
func WithRand(rng func() float64) Option {
	return func(f *Factory) { f.rng = rng }
}

// WithRetry overrides the backoff applied to transient fetch failures
func WithRetry(cfg retry.Config) Option {
	return func(f *Factory) { f.retry = cfg }
}

// NewFactory creates a source factory bound to one run's loop and hub
func NewFactory(loop *stream.Loop, hub *Hub, logger *slog.Logger, opts ...Option) *Factory {
	f := &Factory{
		loop:   loop,
		logger: logger,
		hub:    hub,
		client: &http.Client{Timeout: 15 * time.Second},
		rng:    rand.Float64,
		retry:  retry.Single(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Build constructs the producer for one observable node. The upstreams
// slice carries the already-built producers of the node's resolved inputs
// (used only by merge and race). A nil producer with a non-nil error means
// the node degrades to "no producer available".
func (f *Factory) Build(node graph.Node, upstreams []stream.Producer) (stream.Producer, error) {
	switch node.Subtype {
	case SubtypeInterval:
		return f.interval(node), nil
	case SubtypeArray:
		return f.array(node), nil
	case SubtypeFetch:
		return f.fetch(node), nil
	case SubtypeEmpty:
		return Empty(), nil
	case SubtypeNever:
		return Never(), nil
	case SubtypeMerge:
		return f.merge(node, upstreams)
	case SubtypeRace:
		return f.race(node, upstreams)
	case SubtypePromise:
		return f.promise(node), nil
	case SubtypeMouseMove, SubtypeMouseDown, SubtypeKeyDown, SubtypeKeyUp:
		return f.hub.Producer(node.ID), nil
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: observable %q", errors.ErrUnknownSubtype, node.Subtype),
			"source", "Build", "construct producer")
	}
}

// Empty returns a producer that completes immediately with zero emissions
func Empty() stream.Producer {
	return func(s *stream.Sink) {
		s.Complete()
	}
}

// Never returns a producer that never emits and never completes; it stays
// alive until the subscription is cancelled
func Never() stream.Producer {
	return func(*stream.Sink) {}
}

// interval emits an incrementing integer every period. The count restarts
// at zero for every subscription, so a restarted run (or a second
// multiplexed consumer) always begins from 0.
func (f *Factory) interval(node graph.Node) stream.Producer {
	period := time.Duration(node.ConfigFloat("period", float64(defaultPeriod/time.Millisecond))) * time.Millisecond
	if period <= 0 {
		period = defaultPeriod
	}

	return func(s *stream.Sink) {
		count := 0
		var timer *stream.Timer
		var tick func()
		tick = func() {
			if !s.Active() {
				return
			}
			v := count
			count++
			timer = f.loop.After(period, tick)
			s.Next(v)
		}
		timer = f.loop.After(period, tick)
		s.OnTeardown(func() {
			if timer != nil {
				timer.Stop()
			}
		})
	}
}

// array parses the node's values as a JSON array and replays it per
// subscription. Malformed JSON degrades to a single descriptive value so
// the run keeps going instead of crashing the build.
func (f *Factory) array(node graph.Node) stream.Producer {
	values, parseErr := parseValues(node.ConfigAny("values", nil))
	if parseErr != nil {
		f.logger.Warn("array source has malformed values, degrading",
			"node", node.ID, "error", parseErr)
		degraded := fmt.Sprintf("array: %v", parseErr)
		return func(s *stream.Sink) {
			s.Next(degraded)
			s.Complete()
		}
	}

	return func(s *stream.Sink) {
		for _, v := range values {
			if !s.Active() {
				return
			}
			s.Next(v)
		}
		s.Complete()
	}
}

// parseValues accepts either a JSON-encoded string or an already-decoded
// slice, matching what canvas edits and sample files produce
func parseValues(raw any) ([]any, error) {
	switch t := raw.(type) {
	case nil:
		return nil, fmt.Errorf("missing values")
	case []any:
		return t, nil
	case string:
		var out []any
		if err := json.Unmarshal([]byte(t), &out); err != nil {
			return nil, fmt.Errorf("invalid JSON: %v", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("values must be a JSON array, got %T", raw)
	}
}

// fetch issues one GET per subscription, emits the decoded JSON body and
// completes. The request runs off-loop; the result re-enters through Post,
// so a fetch landing after teardown is dropped by the stopped loop.
func (f *Factory) fetch(node graph.Node) stream.Producer {
	url := node.ConfigString("url", "")
	retryCfg := f.retry

	return func(s *stream.Sink) {
		if url == "" {
			s.Error(errors.WrapInvalid(
				fmt.Errorf("%w: url", errors.ErrMissingConfig),
				"source", "fetch", "read config"))
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		s.OnTeardown(cancel)

		go func() {
			body, err := retry.DoWithResult(ctx, retryCfg, func() (any, error) {
				return f.fetchOnce(ctx, url)
			})
			f.loop.Post(func() {
				if err != nil {
					s.Error(errors.WrapTransient(err, "source", "fetch", "request "+url))
					return
				}
				s.Next(body)
				s.Complete()
			})
		}()
	}
}

func (f *Factory) fetchOnce(ctx context.Context, url string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", errors.ErrFetchFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrFetchFailed, err)
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		// Non-JSON bodies are still values worth showing
		return string(data), nil
	}
	return parsed, nil
}

// merge forwards every value from every upstream as it arrives and
// completes only once all upstreams have completed
func (f *Factory) merge(node graph.Node, upstreams []stream.Producer) (stream.Producer, error) {
	if len(upstreams) < 2 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: merge %q has %d", errors.ErrMissingUpstream, node.ID, len(upstreams)),
			"source", "merge", "construct producer")
	}

	return func(s *stream.Sink) {
		remaining := len(upstreams)
		for _, up := range upstreams {
			child := stream.NewSink(s.Loop(), stream.Handlers{
				OnNext:  s.Next,
				OnError: s.Error,
				OnComplete: func() {
					remaining--
					if remaining == 0 {
						s.Complete()
					}
				},
			})
			s.OnTeardown(child.Unsubscribe)
			up(child)
		}
	}, nil
}

// race subscribes to every upstream; the first to emit wins, the rest are
// unsubscribed at that moment. Completion and errors follow the winner.
// If every upstream completes without ever emitting, the race completes.
func (f *Factory) race(node graph.Node, upstreams []stream.Producer) (stream.Producer, error) {
	if len(upstreams) < 2 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: race %q has %d", errors.ErrMissingUpstream, node.ID, len(upstreams)),
			"source", "race", "construct producer")
	}

	return func(s *stream.Sink) {
		winner := -1
		silent := len(upstreams) // upstreams finished without emitting
		children := make([]*stream.Sink, len(upstreams))

		claim := func(idx int) {
			if winner != -1 {
				return
			}
			winner = idx
			for j, c := range children {
				if j != idx && c != nil {
					c.Unsubscribe()
				}
			}
		}

		for idx := range upstreams {
			idx := idx
			children[idx] = stream.NewSink(s.Loop(), stream.Handlers{
				OnNext: func(v any) {
					claim(idx)
					if winner == idx {
						s.Next(v)
					}
				},
				OnError: func(err error) {
					// An error is an emission for racing purposes
					claim(idx)
					if winner == idx {
						s.Error(err)
					}
				},
				OnComplete: func() {
					if winner == idx {
						s.Complete()
						return
					}
					if winner == -1 {
						silent--
						if silent == 0 {
							s.Complete()
						}
					}
				},
			})
		}

		for idx, up := range upstreams {
			s.OnTeardown(children[idx].Unsubscribe)
			up(children[idx])
		}
	}, nil
}

// promise waits delay ms, then emits its payload with probability
// successRate and completes, else signals an error. Single-shot per
// subscription; the delay timer dies with the subscription.
func (f *Factory) promise(node graph.Node) stream.Producer {
	delay := time.Duration(node.ConfigFloat("delay", float64(defaultDelay/time.Millisecond))) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	successRate := node.ConfigFloat("successRate", defaultSuccessRate)
	payload := node.ConfigAny("payload", "resolved")

	return func(s *stream.Sink) {
		timer := f.loop.After(delay, func() {
			if !s.Active() {
				return
			}
			if f.rng() < successRate {
				s.Next(payload)
				s.Complete()
				return
			}
			s.Error(errors.WrapTransient(
				fmt.Errorf("promise rejected (successRate=%v)", successRate),
				"source", "promise", "resolve"))
		})
		s.OnTeardown(timer.Stop)
	}
}
