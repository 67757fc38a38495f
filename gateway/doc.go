// Package gateway exposes the runtime over HTTP for the visual editor.
//
// The REST surface covers graph staging (PUT /api/graph), run control
// (POST /api/run/start, /api/run/stop, GET /api/run/status), event
// injection into externally-fired sources (POST /api/nodes/{id}/fire),
// and CRUD on the versioned flow library (/api/flows). Lifecycle events
// stream out over a websocket at /api/events, with optional backfill of
// recent history for clients attaching mid-run.
//
// Domain errors carry their HTTP mapping: not-found conditions become
// 404, lifecycle and version conflicts 409, validation failures 400.
package gateway
