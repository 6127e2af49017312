// Package ws is the WebSocket transport adapter (spec §4.4 "WebSocket
// adapter"): every plexus_call gets a numbered subscription, Request events
// ride ordinary subscription payloads, and a companion plexus_respond
// method resumes a waiting bidirectional channel. bidirectional_supported
// is always true for this transport.
package ws

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/hypermemetic/plexus-substrate/internal/plexus"
	"github.com/hypermemetic/plexus-substrate/internal/telemetry"
)

// Adapter upgrades incoming HTTP connections to WebSocket and serves the
// plexus JSON-RPC protocol over them.
type Adapter struct {
	dispatcher *plexus.Dispatcher
	logger     telemetry.Logger
	tracer     telemetry.Tracer
	queueDepth int
	upgrader   websocket.Upgrader
}

// NewAdapter constructs an Adapter. queueDepth<=0 uses
// backpressure.DefaultDepth.
func NewAdapter(dispatcher *plexus.Dispatcher, logger telemetry.Logger, tracer telemetry.Tracer, queueDepth int) *Adapter {
	return &Adapter{
		dispatcher: dispatcher,
		logger:     logger,
		tracer:     tracer,
		queueDepth: queueDepth,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs the session until the client
// disconnects.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn(r.Context(), "ws: upgrade failed", "error", err.Error())
		return
	}
	s := newSession(conn, a.dispatcher, a.logger, a.tracer, a.queueDepth)
	s.serve(r.Context())
}
