package gateway

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/langhuihui/rxcraft/event"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second
)

// handleEvents upgrades the connection and streams the current run's
// lifecycle events. With ?backfill=n the client first receives up to n
// recent events from the bus ring, so an editor attaching mid-run sees
// history before live traffic. The connection closes when the run stops.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	run := g.engine.Run()
	if run == nil || !run.Running() {
		g.writeError(w, http.StatusConflict, "no run in progress")
		return
	}

	backfill := 0
	if raw := r.URL.Query().Get("backfill"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			g.writeError(w, http.StatusBadRequest, "backfill must be a non-negative integer")
			return
		}
		backfill = n
	}

	sub := run.Bus().Subscribe(g.config.EventBuffer)
	if sub == nil {
		g.writeError(w, http.StatusConflict, "run is shutting down")
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	g.addClient(conn)
	defer func() {
		sub.Close()
		if g.metrics != nil {
			if n := sub.Dropped(); n > 0 {
				g.metrics.RecordEventsDropped("gateway", int(n))
			}
		}
		g.removeClient(conn)
		_ = conn.Close()
	}()

	// Writer side owns the connection; the read loop only services pongs
	// and detects the client going away.
	var writeMu sync.Mutex
	gone := make(chan struct{})
	go g.readUntilClosed(conn, gone)

	for _, e := range run.Bus().Recent(backfill) {
		if !writeEvent(conn, &writeMu, e) {
			return
		}
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				// Bus closed: the run has stopped
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run stopped"))
				writeMu.Unlock()
				return
			}
			if !writeEvent(conn, &writeMu, e) {
				return
			}
		case <-ping.C:
			writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, mu *sync.Mutex, e event.Event) bool {
	mu.Lock()
	defer mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(e) == nil
}

// readUntilClosed drains client frames so pongs are processed, signalling
// when the peer disconnects
func (g *Gateway) readUntilClosed(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (g *Gateway) addClient(conn *websocket.Conn) {
	g.clientsMu.Lock()
	g.clients[conn] = struct{}{}
	n := len(g.clients)
	g.clientsMu.Unlock()
	if g.metrics != nil {
		g.metrics.RecordWebsocketClients(n)
	}
}

func (g *Gateway) removeClient(conn *websocket.Conn) {
	g.clientsMu.Lock()
	delete(g.clients, conn)
	n := len(g.clients)
	g.clientsMu.Unlock()
	if g.metrics != nil {
		g.metrics.RecordWebsocketClients(n)
	}
}
