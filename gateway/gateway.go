package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/langhuihui/rxcraft/engine"
	"github.com/langhuihui/rxcraft/errors"
	"github.com/langhuihui/rxcraft/flowstore"
	"github.com/langhuihui/rxcraft/metric"
)

// Gateway is the HTTP surface of the runtime: graph staging, run control,
// event injection, the flow library and the websocket event feed all hang
// off one mux. It owns no domain state; every request is delegated to the
// engine or the flow store.
type Gateway struct {
	config  Config
	engine  *engine.Engine
	store   *flowstore.Store
	logger  *slog.Logger
	metrics *metric.Metrics

	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]struct{}

	running atomic.Bool
}

// NewGateway creates a gateway serving the given engine and flow store.
// metrics may be nil, which disables request instrumentation.
func NewGateway(cfg Config, eng *engine.Engine, store *flowstore.Store, logger *slog.Logger, metrics *metric.Metrics) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if eng == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: engine is required", errors.ErrMissingConfig),
			"gateway", "NewGateway", "construct gateway")
	}
	if store == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: flow store is required", errors.ErrMissingConfig),
			"gateway", "NewGateway", "construct gateway")
	}

	return &Gateway{
		config:  cfg,
		engine:  eng,
		store:   store,
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}, nil
}

// Handler builds the full route table. Exposed so tests can drive the
// gateway through httptest without binding a port.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/graph", g.wrap(g.handleGraph))
	mux.HandleFunc("/api/run/start", g.wrap(g.handleRunStart))
	mux.HandleFunc("/api/run/stop", g.wrap(g.handleRunStop))
	mux.HandleFunc("/api/run/status", g.wrap(g.handleRunStatus))
	mux.HandleFunc("/api/nodes/", g.wrap(g.handleNodes))
	mux.HandleFunc("/api/flows", g.wrap(g.handleFlows))
	mux.HandleFunc("/api/flows/", g.wrap(g.handleFlowByID))
	mux.HandleFunc("/api/events", g.handleEvents)
	mux.HandleFunc("/health", g.handleHealth)

	return mux
}

// Start binds the listener and begins serving. Blocks only for the bind;
// serving happens on a background goroutine that exits on Stop.
func (g *Gateway) Start(_ context.Context) error {
	if g.running.Load() {
		return nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", g.config.Port))
	if err != nil {
		return errors.WrapFatal(err, "gateway", "Start", "bind listener")
	}
	g.listener = ln
	g.server = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.running.Store(true)

	go func() {
		if err := g.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			g.logger.Error("gateway server exited", "error", err)
		}
	}()

	if g.metrics != nil {
		g.metrics.RecordServiceStatus("gateway", metric.StatusRunning)
	}
	g.logger.Info("gateway listening", "address", ln.Addr().String())
	return nil
}

// Stop shuts the server down gracefully, closing websocket clients first
// so their read loops unblock before the HTTP shutdown deadline.
func (g *Gateway) Stop(timeout time.Duration) error {
	if !g.running.Load() {
		return nil
	}
	g.running.Store(false)

	g.closeAllClients()

	if g.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := g.server.Shutdown(ctx); err != nil {
			return errors.WrapTransient(err, "gateway", "Stop", "server shutdown")
		}
	}
	if g.metrics != nil {
		g.metrics.RecordServiceStatus("gateway", metric.StatusStopped)
	}
	g.logger.Info("gateway stopped")
	return nil
}

// Address returns the bound listen address, or empty before Start
func (g *Gateway) Address() string {
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

func (g *Gateway) closeAllClients() {
	g.clientsMu.Lock()
	for conn := range g.clients {
		_ = conn.Close()
	}
	g.clients = make(map[*websocket.Conn]struct{})
	g.clientsMu.Unlock()
	if g.metrics != nil {
		g.metrics.RecordWebsocketClients(0)
	}
}

// requestID extracts the caller's X-Request-ID or generates one
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// statusRecorder captures the response code for logging and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// wrap applies the shared request plumbing: request ID, CORS, body size
// cap, and per-request metrics and logging.
func (g *Gateway) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := requestID(r)
		w.Header().Set("X-Request-ID", reqID)

		if g.config.EnableCORS {
			g.applyCORS(w, r)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, g.config.MaxRequestSize)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		h(rec, r)

		if g.metrics != nil {
			g.metrics.RecordHTTPRequest(r.Method, r.URL.Path, fmt.Sprintf("%d", rec.status))
			g.metrics.RecordProcessingDuration("gateway", r.URL.Path, time.Since(start))
		}
		g.logger.Debug("request handled",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	}
}

func (g *Gateway) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")

	allowed := false
	for _, o := range g.config.CORSOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}

	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	} else {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	w.Header().Set("Access-Control-Max-Age", "3600")
}
