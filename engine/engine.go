package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/langhuihui/rxcraft/errors"
	"github.com/langhuihui/rxcraft/event"
	"github.com/langhuihui/rxcraft/graph"
	"github.com/langhuihui/rxcraft/metric"
	"github.com/langhuihui/rxcraft/source"
	"github.com/langhuihui/rxcraft/stream"
)

// Engine turns staged graph descriptions into runs. It holds at most one
// run at a time: starting while a run is live fails, and stopping replaces
// nothing until the next start. Staging is independent of the run
// lifecycle, so a graph edited mid-run takes effect on the next start.
type Engine struct {
	logger     *slog.Logger
	metrics    *engineMetrics
	history    int
	newLoop    func() *stream.Loop
	sourceOpts []source.Option

	mu     sync.Mutex
	staged *graph.Graph
	run    *Run
}

// Option configures an Engine
type Option func(*Engine)

// WithLoopFactory overrides how run loops are created (virtual time in tests)
func WithLoopFactory(fn func() *stream.Loop) Option {
	return func(e *Engine) { e.newLoop = fn }
}

// WithSourceOptions passes options through to each run's source factory
func WithSourceOptions(opts ...source.Option) Option {
	return func(e *Engine) { e.sourceOpts = opts }
}

// WithHistory sets the event bus ring capacity for each run
func WithHistory(n int) Option {
	return func(e *Engine) { e.history = n }
}

// New creates an engine. A nil metrics registry disables engine metrics.
func New(logger *slog.Logger, registry *metric.MetricsRegistry, opts ...Option) *Engine {
	metrics, err := newEngineMetrics(registry)
	if err != nil {
		logger.Error("Failed to initialize engine metrics", "error", err)
		metrics = nil // Continue without metrics
	}

	e := &Engine{
		logger:  logger,
		metrics: metrics,
		history: event.DefaultHistory,
		newLoop: stream.NewLoop,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stage validates and stores a graph as the one the next run will execute
func (e *Engine) Stage(g *graph.Graph) error {
	if err := g.Validate(); err != nil {
		return errors.WrapInvalid(err, "engine", "Stage", "graph validation failed")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.staged = g.Clone()
	e.logger.Info("graph staged", "nodes", len(g.Nodes), "edges", len(g.Edges))
	return nil
}

// Staged returns a copy of the currently staged graph, or nil
func (e *Engine) Staged() *graph.Graph {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.staged == nil {
		return nil
	}
	return e.staged.Clone()
}

// Start compiles the staged graph into a new run and attaches it
func (e *Engine) Start() (*Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.run != nil && e.run.Running() {
		return nil, errors.WrapInvalid(errors.ErrAlreadyRunning, "engine", "Start", "start run")
	}
	if e.staged == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: no graph staged", errors.ErrMissingConfig),
			"engine", "Start", "start run")
	}

	begin := time.Now()
	g := e.staged.Clone()
	res := graph.Resolve(g)
	loop := e.newLoop()

	r := &Run{
		id:        uuid.NewString(),
		graph:     g,
		res:       res,
		demand:    graph.ComputeDemand(g, res),
		startedAt: begin,
		loop:      loop,
		bus:       event.NewBus(e.history),
		hub:       source.NewHub(loop),
		metrics:   e.metrics,
		ordinal:   make(map[string]int),
		skipped:   make(map[string]string),
		done:      make(chan struct{}),
	}

	loop.Start()
	r.compile(e.logger, e.sourceOpts)
	e.run = r

	e.metrics.recordStart(true, time.Since(begin).Seconds())
	e.logger.Info("run started",
		"run_id", r.id,
		"nodes", len(g.Nodes),
		"skipped", len(r.skipped))
	return r, nil
}

// Stop tears down the current run. Stopping when nothing runs is an error;
// stopping a run twice through Run.Stop directly is not.
func (e *Engine) Stop() error {
	e.mu.Lock()
	run := e.run
	e.mu.Unlock()

	if run == nil || !run.Running() {
		return errors.WrapInvalid(errors.ErrNotRunning, "engine", "Stop", "stop run")
	}

	begin := time.Now()
	run.Stop()
	e.metrics.recordStop(true, time.Since(begin).Seconds())
	e.logger.Info("run stopped", "run_id", run.id)
	return nil
}

// Run returns the current (possibly already stopped) run, or nil
func (e *Engine) Run() *Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run
}

// Fire injects a value into an event-source node of the current run
func (e *Engine) Fire(nodeID string, value any) error {
	e.mu.Lock()
	run := e.run
	e.mu.Unlock()

	if run == nil || !run.Running() {
		return errors.WrapInvalid(errors.ErrNotRunning, "engine", "Fire", "inject event")
	}
	return run.Fire(nodeID, value)
}

// Status snapshots the current run, or reports not-running
func (e *Engine) Status() Status {
	e.mu.Lock()
	run := e.run
	e.mu.Unlock()

	if run == nil {
		return Status{Running: false}
	}
	return run.Status()
}
