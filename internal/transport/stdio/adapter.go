// Package stdio is the notification-only, MCP-style transport adapter
// (spec §4.4 "Stdio / notification-only adapter"). It has no subscription
// concept: every non-Request event becomes a notifications/message (and
// Progress additionally a notifications/progress), Request becomes a tagged
// notification, and a synthetic _plexus_respond method resumes a waiting
// bidirectional channel via a session-scoped correlation table (spec §9's
// resolved "per-session, never process-wide" scoping).
package stdio

import (
	"bufio"
	"context"
	"io"

	"github.com/hypermemetic/plexus-substrate/internal/plexus"
	"github.com/hypermemetic/plexus-substrate/internal/telemetry"
)

// Adapter serves the plexus protocol over a single newline-delimited JSON
// stream, as used by MCP stdio transports.
type Adapter struct {
	dispatcher *plexus.Dispatcher
	logger     telemetry.Logger
	tracer     telemetry.Tracer
	queueDepth int
	// Bidirectional reports whether this adapter exposes the
	// response-injection endpoint (_plexus_respond). false makes every call
	// degrade predictably per spec §4.3 step 1 ("NotSupported").
	Bidirectional bool
}

// NewAdapter constructs an Adapter. bidirectional selects whether
// _plexus_respond is wired up; pass false for strictly unidirectional
// embeddings. queueDepth bounds each notification queue (spec §4.4
// back-pressure); <=0 uses backpressure.DefaultDepth.
func NewAdapter(dispatcher *plexus.Dispatcher, logger telemetry.Logger, tracer telemetry.Tracer, bidirectional bool, queueDepth int) *Adapter {
	return &Adapter{dispatcher: dispatcher, logger: logger, tracer: tracer, Bidirectional: bidirectional, queueDepth: queueDepth}
}

// Serve reads newline-delimited JSON-RPC frames from r and writes
// notifications/responses to w until r is exhausted. Cancelling ctx cancels
// in-flight calls but does not interrupt a blocked read of r.
func (a *Adapter) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s := newSession(a.dispatcher, a.logger, a.tracer, w, a.Bidirectional, a.queueDepth)
	s.start(ctx)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		s.handleLine(ctx, cp)
	}
	s.cancelAll()
	return scanner.Err()
}
