package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langhuihui/rxcraft/engine"
	"github.com/langhuihui/rxcraft/event"
	"github.com/langhuihui/rxcraft/flowstore"
	"github.com/langhuihui/rxcraft/graph"
	"github.com/langhuihui/rxcraft/metric"
	"github.com/langhuihui/rxcraft/stream"
	"github.com/langhuihui/rxcraft/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	gateway *Gateway
	engine  *engine.Engine
	store   *flowstore.Store
	clock   *stream.FakeClock
	server  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, DefaultConfig(), nil)
}

func newFixtureWith(t *testing.T, cfg Config, metrics *metric.Metrics) *fixture {
	t.Helper()

	clock := stream.NewFakeClock()
	eng := engine.New(testLogger(), nil,
		engine.WithHistory(1024),
		engine.WithLoopFactory(func() *stream.Loop {
			loop := stream.NewLoopWithClock(clock)
			clock.Bind(loop)
			return loop
		}))
	store := flowstore.NewStore()
	store.Preload(flowstore.SampleFlows())

	g, err := NewGateway(cfg, eng, store, testLogger(), metrics)
	require.NoError(t, err)

	srv := httptest.NewServer(g.Handler())
	t.Cleanup(func() {
		srv.Close()
		if run := eng.Run(); run != nil {
			run.Stop()
		}
	})

	return &fixture{gateway: g, engine: eng, store: store, clock: clock, server: srv}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &decoded), "body: %s", data)
	}
	return resp, decoded
}

func simpleGraph() *graph.Graph {
	return &graph.Graph{
		Nodes: []graph.Node{
			testutil.IntervalNode("timer", 100),
			testutil.ObserverNode("log"),
		},
		Edges: []graph.Edge{
			{ID: "e1", Source: "timer", Target: "log"},
		},
	}
}

func (f *fixture) stageAndStart(t *testing.T, g *graph.Graph) {
	t.Helper()
	require.NoError(t, f.engine.Stage(g))
	resp, body := f.do(t, http.MethodPost, "/api/run/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["run_id"])
	f.engine.Run().Loop().Flush()
}

func TestStageGraphRoundTrip(t *testing.T) {
	f := newFixture(t)

	data, err := simpleGraph().Marshal()
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, f.server.URL+"/api/graph", bytes.NewReader(data))
	require.NoError(t, err)
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getResp, err := f.server.Client().Get(f.server.URL + "/api/graph")
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var staged graph.Graph
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&staged))
	assert.Len(t, staged.Nodes, 2)
	assert.Len(t, staged.Edges, 1)
}

func TestStageGraphRejectsMalformedJSON(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodPut, f.server.URL+"/api/graph", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetGraphWithoutStaged(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/api/graph", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartWithoutStagedGraph(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/api/run/start", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "missing required configuration")
}

func TestStartWhileRunningConflicts(t *testing.T) {
	f := newFixture(t)
	f.stageAndStart(t, simpleGraph())

	resp, _ := f.do(t, http.MethodPost, "/api/run/start", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStopWithoutRunConflicts(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodPost, "/api/run/stop", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRunLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.stageAndStart(t, simpleGraph())
	f.clock.Advance(250 * time.Millisecond)

	resp, body := f.do(t, http.MethodGet, "/api/run/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["running"])
	nodes, ok := body["nodes"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, nodes, "timer")
	assert.Contains(t, nodes, "log")

	resp, _ = f.do(t, http.MethodPost, "/api/run/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/api/run/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["running"])
}

func TestFireDeliversValue(t *testing.T) {
	f := newFixture(t)
	f.stageAndStart(t, &graph.Graph{
		Nodes: []graph.Node{
			{ID: "mouse", Kind: graph.KindObservable, Subtype: "mousemove"},
			testutil.ObserverNode("log"),
		},
		Edges: []graph.Edge{{ID: "e1", Source: "mouse", Target: "log"}},
	})

	resp, _ := f.do(t, http.MethodPost, "/api/nodes/mouse/fire",
		fireRequest{Value: map[string]any{"x": 4.0, "y": 2.0}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	run := f.engine.Run()
	run.Loop().Flush()

	var nexts []event.Event
	for _, e := range run.Bus().Recent(0) {
		if e.NodeID == "log" && e.Type == event.TypeNext {
			nexts = append(nexts, e)
		}
	}
	require.Len(t, nexts, 1)
	assert.Equal(t, map[string]any{"x": 4.0, "y": 2.0}, nexts[0].Value)
}

func TestFireUnknownNodeIs404(t *testing.T) {
	f := newFixture(t)
	f.stageAndStart(t, simpleGraph())

	resp, _ := f.do(t, http.MethodPost, "/api/nodes/ghost/fire", fireRequest{Value: 1})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFireWithoutRunConflicts(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodPost, "/api/nodes/mouse/fire", fireRequest{Value: 1})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestFlowCRUDOverHTTP(t *testing.T) {
	f := newFixture(t)

	flow := flowstore.Flow{
		ID:    "my-flow",
		Name:  "My Flow",
		Graph: *simpleGraph(),
	}
	resp, created := f.do(t, http.MethodPost, "/api/flows", flow)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(1), created["version"])

	resp, fetched := f.do(t, http.MethodGet, "/api/flows/my-flow", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "My Flow", fetched["name"])

	flow.Name = "Renamed"
	flow.Version = 1
	resp, updated := f.do(t, http.MethodPut, "/api/flows/my-flow", flow)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), updated["version"])

	// Stale version is rejected
	flow.Version = 1
	resp, _ = f.do(t, http.MethodPut, "/api/flows/my-flow", flow)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/api/flows/my-flow", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/flows/my-flow", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListFlowsIncludesSamples(t *testing.T) {
	f := newFixture(t)

	resp, err := f.server.Client().Get(f.server.URL + "/api/flows")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var flows []flowstore.Flow
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&flows))
	assert.Len(t, flows, len(flowstore.SampleFlows()))
}

func TestDeleteBuiltinFlowFails(t *testing.T) {
	f := newFixture(t)
	samples := flowstore.SampleFlows()
	require.NotEmpty(t, samples)

	resp, _ := f.do(t, http.MethodDelete, "/api/flows/"+samples[0].ID, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStageStoredFlowThenStart(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/flows/sample-interval-take/stage", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sample-interval-take", body["staged"])

	resp, body = f.do(t, http.MethodPost, "/api/run/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["run_id"])
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["running"])
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodDelete, "/api/run/start", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRequestIDPropagation(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/run/status", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "trace-me-123")
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "trace-me-123", resp.Header.Get("X-Request-ID"))

	// Absent header gets a generated ID
	resp2, err := f.server.Client().Get(f.server.URL + "/api/run/status")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.NotEmpty(t, resp2.Header.Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.server.URL+"/api/graph", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://editor.local")
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://editor.local", resp.Header.Get("Access-Control-Allow-Origin"))
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestEventStreamOverWebsocket(t *testing.T) {
	f := newFixture(t)
	f.stageAndStart(t, simpleGraph())
	f.clock.Advance(250 * time.Millisecond)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(f.server, "/api/events?backfill=100"), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Backfill covers everything published so far: two subscribes and the
	// ticks from the advance above.
	byType := map[event.Type]int{}
	deadline := time.Now().Add(5 * time.Second)
	for i := 0; i < 6; i++ {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var e event.Event
		require.NoError(t, conn.ReadJSON(&e))
		byType[e.Type]++
	}
	assert.Equal(t, 2, byType[event.TypeSubscribe])
	assert.Equal(t, 4, byType[event.TypeNext])
}

func TestWebsocketClosesWhenRunStops(t *testing.T) {
	f := newFixture(t)
	f.stageAndStart(t, simpleGraph())

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(f.server, "/api/events"), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, f.engine.Stop())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure),
				fmt.Sprintf("expected normal closure, got %v", err))
			return
		}
	}
}

func TestWebsocketWithoutRunIsRejected(t *testing.T) {
	f := newFixture(t)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(f.server, "/api/events"), nil)
	require.Error(t, err)
	if conn != nil {
		conn.Close()
	}
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRequestMetricsRecorded(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	core := registry.CoreMetrics()
	f := newFixtureWith(t, DefaultConfig(), core)

	resp, _ := f.do(t, http.MethodGet, "/api/run/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Stop with no run: a classified invalid error
	resp, _ = f.do(t, http.MethodPost, "/api/run/stop", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, float64(1),
		promtestutil.ToFloat64(core.HTTPRequests.WithLabelValues("GET", "/api/run/status", "200")))
	assert.Equal(t, float64(1),
		promtestutil.ToFloat64(core.HTTPRequests.WithLabelValues("POST", "/api/run/stop", "409")))
	assert.Equal(t, float64(1),
		promtestutil.ToFloat64(core.ErrorsTotal.WithLabelValues("gateway", "invalid")))
	assert.Equal(t, float64(1),
		promtestutil.ToFloat64(core.HealthCheckStatus.WithLabelValues("gateway")))
	assert.Positive(t, promtestutil.CollectAndCount(core.ProcessingDuration))
}

func TestServiceStatusTracksLifecycle(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	core := registry.CoreMetrics()

	eng := engine.New(testLogger(), nil)
	cfg := DefaultConfig()
	cfg.Port = freePort(t)
	g, err := NewGateway(cfg, eng, flowstore.NewStore(), testLogger(), core)
	require.NoError(t, err)

	require.NoError(t, g.Start(context.Background()))
	assert.Equal(t, float64(metric.StatusRunning),
		promtestutil.ToFloat64(core.ServiceStatus.WithLabelValues("gateway")))

	require.NoError(t, g.Stop(time.Second))
	assert.Equal(t, float64(metric.StatusStopped),
		promtestutil.ToFloat64(core.ServiceStatus.WithLabelValues("gateway")))
}

func TestWebsocketDropCountRecorded(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	core := registry.CoreMetrics()
	cfg := DefaultConfig()
	cfg.EventBuffer = 1
	f := newFixtureWith(t, cfg, core)
	f.stageAndStart(t, simpleGraph())

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(f.server, "/api/events"), nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// A one-event channel cannot absorb this burst while every forward
	// goes through a websocket write, so the bus sheds events.
	f.clock.Advance(100 * time.Second)

	require.NoError(t, f.engine.Stop())

	// Drain until the close frame so the handler finishes and reports
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	require.Eventually(t, func() bool {
		return promtestutil.ToFloat64(core.EventsDropped.WithLabelValues("gateway")) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

// freePort asks the kernel for an unused port
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default is valid", func(c *Config) {}, false},
		{"zero port", func(c *Config) { c.Port = 0 }, true},
		{"port out of range", func(c *Config) { c.Port = 70000 }, true},
		{"zero request size", func(c *Config) { c.MaxRequestSize = 0 }, true},
		{"cors without origins", func(c *Config) { c.CORSOrigins = nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewGatewayRequiresEngineAndStore(t *testing.T) {
	_, err := NewGateway(DefaultConfig(), nil, flowstore.NewStore(), testLogger(), nil)
	assert.Error(t, err)

	eng := engine.New(testLogger(), nil)
	_, err = NewGateway(DefaultConfig(), eng, nil, testLogger(), nil)
	assert.Error(t, err)
}
