package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langhuihui/rxcraft/errors"
	"github.com/langhuihui/rxcraft/event"
	"github.com/langhuihui/rxcraft/graph"
	"github.com/langhuihui/rxcraft/stream"
	"github.com/langhuihui/rxcraft/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine builds an engine whose runs execute on virtual time
func newTestEngine(t *testing.T) (*Engine, *stream.FakeClock) {
	t.Helper()
	clock := stream.NewFakeClock()
	e := New(testLogger(), nil,
		WithHistory(4096),
		WithLoopFactory(func() *stream.Loop {
			loop := stream.NewLoopWithClock(clock)
			clock.Bind(loop)
			return loop
		}))
	t.Cleanup(func() {
		if run := e.Run(); run != nil {
			run.Stop()
		}
	})
	return e, clock
}

func stage(t *testing.T, e *Engine, nodes []graph.Node, edges ...graph.Edge) {
	t.Helper()
	require.NoError(t, e.Stage(&graph.Graph{Nodes: nodes, Edges: edges}))
}

func startRun(t *testing.T, e *Engine) *Run {
	t.Helper()
	run, err := e.Start()
	require.NoError(t, err)
	run.Loop().Flush()
	return run
}

func edge(id, source, target string) graph.Edge {
	return graph.Edge{ID: id, Source: source, Target: target}
}

func portEdge(id, source, target string, port graph.Port) graph.Edge {
	return graph.Edge{ID: id, Source: source, Target: target, TargetPort: port}
}

func opNode(id, subtype string, config map[string]any) graph.Node {
	return graph.Node{ID: id, Kind: graph.KindOperator, Subtype: subtype, Config: config}
}

func dualNode(id, subtype string) graph.Node {
	return graph.Node{ID: id, Kind: graph.KindOperator, Subtype: subtype, MultiInput: true}
}

// nodeEvents filters the run's event history by node and type
func nodeEvents(run *Run, nodeID string, t event.Type) []event.Event {
	var out []event.Event
	for _, e := range run.Bus().Recent(0) {
		if e.NodeID == nodeID && e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func subStates(t *testing.T, run *Run, nodeID string) []SubscriptionState {
	t.Helper()
	var out []SubscriptionState
	for _, s := range run.Status().Nodes[nodeID].Subscriptions {
		out = append(out, s.State)
	}
	return out
}

func TestStartRequiresStagedGraph(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestStageRejectsInvalidGraph(t *testing.T) {
	e, _ := newTestEngine(t)

	err := e.Stage(&graph.Graph{Nodes: []graph.Node{
		{ID: "x", Kind: "wormhole", Subtype: "interval"},
	}})
	assert.Error(t, err)
}

func TestStartWhileRunningFails(t *testing.T) {
	e, _ := newTestEngine(t)
	stage(t, e, []graph.Node{testutil.IntervalNode("t", 100)})
	startRun(t, e)

	_, err := e.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyRunning)
}

func TestStopWithoutRunFails(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.Stop()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotRunning)
}

func TestRestartAfterStop(t *testing.T) {
	e, clock := newTestEngine(t)
	stage(t, e,
		[]graph.Node{testutil.IntervalNode("t", 100), testutil.ObserverNode("log")},
		edge("e1", "t", "log"))

	first := startRun(t, e)
	clock.Advance(150 * time.Millisecond)
	require.NoError(t, e.Stop())

	second := startRun(t, e)
	defer second.Stop()

	assert.NotEqual(t, first.ID(), second.ID())
	assert.True(t, second.Running())
	assert.False(t, first.Running())
}

func TestIntervalToObserverEventFlow(t *testing.T) {
	e, clock := newTestEngine(t)
	stage(t, e,
		[]graph.Node{testutil.IntervalNode("timer", 100), testutil.ObserverNode("log")},
		edge("e1", "timer", "log"))
	run := startRun(t, e)

	clock.Advance(250 * time.Millisecond)

	require.Len(t, nodeEvents(run, "timer", event.TypeSubscribe), 1)
	require.Len(t, nodeEvents(run, "log", event.TypeSubscribe), 1)

	timerNexts := nodeEvents(run, "timer", event.TypeNext)
	logNexts := nodeEvents(run, "log", event.TypeNext)
	require.Len(t, timerNexts, 2)
	require.Len(t, logNexts, 2)
	assert.Equal(t, 0, timerNexts[0].Value)
	assert.Equal(t, 1, timerNexts[1].Value)

	assert.Equal(t, []SubscriptionState{StateActive}, subStates(t, run, "timer"))
	assert.Equal(t, []SubscriptionState{StateActive}, subStates(t, run, "log"))
}

func TestEventSequenceIsStrictlyIncreasing(t *testing.T) {
	e, clock := newTestEngine(t)
	stage(t, e,
		[]graph.Node{testutil.IntervalNode("timer", 100), testutil.ObserverNode("log")},
		edge("e1", "timer", "log"))
	run := startRun(t, e)

	clock.Advance(500 * time.Millisecond)

	events := run.Bus().Recent(0)
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Sequence, events[i-1].Sequence)
	}
}

func TestStopCancelsActiveSubscriptions(t *testing.T) {
	e, clock := newTestEngine(t)
	stage(t, e,
		[]graph.Node{testutil.IntervalNode("timer", 100), testutil.ObserverNode("log")},
		edge("e1", "timer", "log"))
	run := startRun(t, e)

	clock.Advance(150 * time.Millisecond)
	require.NoError(t, e.Stop())

	status := run.Status()
	assert.False(t, status.Running)
	assert.Equal(t, []SubscriptionState{StateCancelled}, subStates(t, run, "timer"))
	assert.Equal(t, []SubscriptionState{StateCancelled}, subStates(t, run, "log"))

	// Timers died with the loop: no further events arrive
	before := len(run.Bus().Recent(0))
	clock.Advance(time.Second)
	assert.Len(t, run.Bus().Recent(0), before)
}

func TestStopIsIdempotent(t *testing.T) {
	e, clock := newTestEngine(t)
	stage(t, e,
		[]graph.Node{testutil.IntervalNode("timer", 100), testutil.ObserverNode("log")},
		edge("e1", "timer", "log"))
	run := startRun(t, e)
	clock.Advance(150 * time.Millisecond)

	run.Stop()
	eventsAfterFirst := run.Bus().Recent(0)
	run.Stop()
	run.Stop()

	assert.Equal(t, eventsAfterFirst, run.Bus().Recent(0), "no duplicate terminal events")
	assert.Len(t, nodeEvents(run, "timer", event.TypeUnsubscribe), 1)
	assert.Len(t, nodeEvents(run, "log", event.TypeUnsubscribe), 1)
}

func TestProbeKeepsIsolatedNodeObservable(t *testing.T) {
	e, clock := newTestEngine(t)
	stage(t, e, []graph.Node{testutil.IntervalNode("lonely", 100)})
	run := startRun(t, e)

	clock.Advance(150 * time.Millisecond)

	assert.Equal(t, 0, run.Demand("lonely"))
	require.Len(t, nodeEvents(run, "lonely", event.TypeSubscribe), 1)
	require.Len(t, nodeEvents(run, "lonely", event.TypeNext), 1)
}

func TestCycleNodesAreSkipped(t *testing.T) {
	e, clock := newTestEngine(t)
	stage(t, e,
		[]graph.Node{
			opNode("a", "map", map[string]any{"expression": "x"}),
			opNode("b", "map", map[string]any{"expression": "x"}),
			testutil.IntervalNode("timer", 100),
			testutil.ObserverNode("log"),
		},
		edge("e1", "a", "b"),
		edge("e2", "b", "a"),
		edge("e3", "timer", "log"))
	run := startRun(t, e)

	clock.Advance(150 * time.Millisecond)

	_, aSkipped := run.Skipped("a")
	_, bSkipped := run.Skipped("b")
	assert.True(t, aSkipped)
	assert.True(t, bSkipped)
	assert.Empty(t, nodeEvents(run, "a", event.TypeSubscribe))

	// The healthy part of the graph still runs
	assert.NotEmpty(t, nodeEvents(run, "log", event.TypeNext))
}

func TestUnderConnectedDualInputIsSkipped(t *testing.T) {
	e, _ := newTestEngine(t)
	stage(t, e,
		[]graph.Node{
			testutil.IntervalNode("timer", 100),
			dualNode("z", "zip"),
			testutil.ObserverNode("log"),
		},
		portEdge("e1", "timer", "z", graph.PortPrimary),
		edge("e2", "z", "log"))
	run := startRun(t, e)

	reason, skipped := run.Skipped("z")
	require.True(t, skipped)
	assert.Contains(t, reason, "missing")

	// The observer depends on the skipped node and is skipped too
	_, logSkipped := run.Skipped("log")
	assert.True(t, logSkipped)
}

func TestFireDeliversToEventSource(t *testing.T) {
	e, _ := newTestEngine(t)
	stage(t, e,
		[]graph.Node{
			{ID: "mouse", Kind: graph.KindObservable, Subtype: "mousemove"},
			testutil.ObserverNode("log"),
		},
		edge("e1", "mouse", "log"))
	run := startRun(t, e)

	require.NoError(t, e.Fire("mouse", map[string]any{"x": 4, "y": 2}))
	run.Loop().Flush()

	nexts := nodeEvents(run, "log", event.TypeNext)
	require.Len(t, nexts, 1)
	assert.Equal(t, map[string]any{"x": 4, "y": 2}, nexts[0].Value)
}

func TestFireUnknownNodeFails(t *testing.T) {
	e, _ := newTestEngine(t)
	stage(t, e, []graph.Node{testutil.IntervalNode("t", 100)})
	startRun(t, e)

	err := e.Fire("ghost", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNodeNotFound)
}

func TestFireSkippedNodeFails(t *testing.T) {
	e, _ := newTestEngine(t)
	stage(t, e, []graph.Node{
		{ID: "wheel", Kind: graph.KindObservable, Subtype: "wheel"},
	})
	run := startRun(t, e)

	_, skipped := run.Skipped("wheel")
	require.True(t, skipped)

	err := e.Fire("wheel", map[string]any{"delta": 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoProducer)
}

func TestFireWithoutRunFails(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.Fire("mouse", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotRunning)
}

func TestStatusWithoutRun(t *testing.T) {
	e, _ := newTestEngine(t)
	status := e.Status()
	assert.False(t, status.Running)
	assert.Empty(t, status.RunID)
}

func TestStagedGraphIsCopied(t *testing.T) {
	e, _ := newTestEngine(t)
	g := &graph.Graph{Nodes: []graph.Node{testutil.IntervalNode("t", 100)}}
	require.NoError(t, e.Stage(g))

	g.Nodes[0].Config["period"] = float64(5)

	staged := e.Staged()
	assert.Equal(t, float64(100), staged.Nodes[0].Config["period"])
}
