package gateway

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/langhuihui/rxcraft/errors"
	"github.com/langhuihui/rxcraft/flowstore"
	"github.com/langhuihui/rxcraft/graph"
)

// handleGraph stages a graph (PUT) or returns the staged one (GET)
func (g *Gateway) handleGraph(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		staged := g.engine.Staged()
		if staged == nil {
			g.writeError(w, http.StatusNotFound, "no graph staged")
			return
		}
		g.writeJSON(w, http.StatusOK, staged)

	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			g.writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		parsed, err := graph.Parse(body)
		if err != nil {
			g.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := g.engine.Stage(parsed); err != nil {
			g.writeClassified(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, map[string]any{
			"nodes": len(parsed.Nodes),
			"edges": len(parsed.Edges),
		})

	default:
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (g *Gateway) handleRunStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	run, err := g.engine.Start()
	if err != nil {
		g.writeClassified(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"run_id": run.ID()})
}

func (g *Gateway) handleRunStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := g.engine.Stop(); err != nil {
		g.writeClassified(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"stopped": true})
}

func (g *Gateway) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	g.writeJSON(w, http.StatusOK, g.engine.Status())
}

// fireRequest is the body of POST /api/nodes/{id}/fire
type fireRequest struct {
	Value any `json:"value"`
}

// handleNodes routes /api/nodes/{id}/fire
func (g *Gateway) handleNodes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/nodes/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "fire" {
		g.writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req fireRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			g.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	if err := g.engine.Fire(parts[0], req.Value); err != nil {
		g.writeClassified(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"fired": true})
}

// handleFlows serves the flow collection: list and create
func (g *Gateway) handleFlows(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.writeJSON(w, http.StatusOK, g.store.List())

	case http.MethodPost:
		var flow flowstore.Flow
		if err := json.NewDecoder(r.Body).Decode(&flow); err != nil {
			g.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := g.store.Create(&flow); err != nil {
			g.writeClassified(w, err)
			return
		}
		g.writeJSON(w, http.StatusCreated, flow)

	default:
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleFlowByID serves one flow: get, update, delete, and the stage action
func (g *Gateway) handleFlowByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/flows/")
	parts := strings.Split(rest, "/")
	if parts[0] == "" {
		g.writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	id := parts[0]

	if len(parts) == 2 && parts[1] == "stage" {
		g.handleFlowStage(w, r, id)
		return
	}
	if len(parts) != 1 {
		g.writeError(w, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		flow, err := g.store.Get(id)
		if err != nil {
			g.writeClassified(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, flow)

	case http.MethodPut:
		var flow flowstore.Flow
		if err := json.NewDecoder(r.Body).Decode(&flow); err != nil {
			g.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		flow.ID = id
		if err := g.store.Update(&flow); err != nil {
			g.writeClassified(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, flow)

	case http.MethodDelete:
		if err := g.store.Delete(id); err != nil {
			g.writeClassified(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, map[string]any{"deleted": true})

	default:
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleFlowStage loads a stored flow and stages its graph on the engine
func (g *Gateway) handleFlowStage(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flow, err := g.store.Get(id)
	if err != nil {
		g.writeClassified(w, err)
		return
	}
	if err := g.engine.Stage(&flow.Graph); err != nil {
		g.writeClassified(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"staged": flow.ID})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := g.engine.Status()
	if g.metrics != nil {
		g.metrics.RecordHealthStatus("gateway", true)
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": status.Running,
	})
}

// mapErrorToStatus translates classified errors to HTTP status codes
func mapErrorToStatus(err error) int {
	switch {
	case stderrors.Is(err, errors.ErrFlowNotFound),
		stderrors.Is(err, errors.ErrNodeNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, errors.ErrVersionConflict),
		stderrors.Is(err, errors.ErrAlreadyRunning),
		stderrors.Is(err, errors.ErrNotRunning),
		stderrors.Is(err, errors.ErrRunStopped):
		return http.StatusConflict
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	case errors.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeClassified maps a domain error to its HTTP status and writes it
func (g *Gateway) writeClassified(w http.ResponseWriter, err error) {
	status := mapErrorToStatus(err)
	if status >= http.StatusInternalServerError {
		g.logger.Error("request failed", "error", err)
	}
	if g.metrics != nil {
		g.metrics.RecordError("gateway", errors.Classify(err).String())
	}
	g.writeError(w, status, err.Error())
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":  message,
		"status": status,
	})
}
