// Package channel implements the bidirectional request/response half of a
// plexus subscription (spec §4.3): an activation handler suspends mid-stream,
// the dispatcher injects a Request event into the subscription's sink, and a
// later plexus_respond call resumes the handler with the client's answer.
//
// The pending-request table is untyped (json.RawMessage in, json.RawMessage
// out) so one Raw instance can serve every method on a subscription
// regardless of each method's own (Req, Resp) pair; Request[Req, Resp]
// supplies the typed, ergonomic surface activation code actually calls
// (spec §9 "type erasure for the pending table across heterogeneous
// channels").
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hypermemetic/plexus-substrate/internal/streamevent"
)

type slot struct {
	result chan rawResult
	once   sync.Once
}

type rawResult struct {
	payload json.RawMessage
	err     error
}

// Raw is the untyped bidirectional channel. The WebSocket adapter creates
// one per subscription; the stdio adapter shares one across every call of
// a session (spec §9 "pending-request table scoping" decision:
// per-session, never process-wide).
type Raw struct {
	mu         sync.Mutex
	pending    map[string]*slot
	sink       streamevent.Sink
	supported  bool
	closed     bool
	schemaHash string
}

// NewRaw constructs a Raw channel over sink. supported mirrors the
// transport's negotiated bidirectional_supported flag (always true for the
// WebSocket adapter; the stdio adapter passes its Bidirectional setting).
func NewRaw(sink streamevent.Sink, supported bool) *Raw {
	return &Raw{
		pending:   make(map[string]*slot),
		sink:      sink,
		supported: supported,
	}
}

// WithSchemaHash sets the plexus root hash echoed on Request events sent
// through this channel, and returns r for chaining. Called by the
// dispatcher right after NewRaw, once the root hash for this call is known.
func (r *Raw) WithSchemaHash(hash string) *Raw {
	r.schemaHash = hash
	return r
}

// Request sends payload to the client as a Request event and blocks until a
// matching plexus_respond arrives, ctx is cancelled, or timeout elapses.
func (r *Raw) Request(ctx context.Context, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	if !r.supported {
		return nil, notSupported()
	}
	if timeout <= 0 {
		timeout = PresetNormal
	}

	id := uuid.NewString()
	s := &slot{result: make(chan rawResult, 1)}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, &Error{Kind: KindClosed}
	}
	r.pending[id] = s
	r.mu.Unlock()

	remove := func() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}

	if err := r.sink.Send(ctx, streamevent.NewRequest(r.schemaHash, id, payload, timeout.Milliseconds())); err != nil {
		remove()
		return nil, fmt.Errorf("channel: send request event: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-s.result:
		return res.payload, res.err
	case <-timer.C:
		remove()
		return nil, timeoutErr()
	case <-ctx.Done():
		remove()
		return nil, cancelledErr()
	}
}

// HandleResponse resolves the pending request named by requestID with
// payload. It is the server-side half of plexus_respond. A requestID with
// no pending slot (already delivered, timed out, or never issued) is
// reported as KindUnknownRequest rather than panicking, since a late
// response racing a timeout is an expected occurrence, not a protocol
// violation (spec §8 "late response after timeout").
func (r *Raw) HandleResponse(requestID string, payload json.RawMessage) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return &Error{Kind: KindClosed}
	}
	s, ok := r.pending[requestID]
	if ok {
		delete(r.pending, requestID)
	}
	r.mu.Unlock()
	if !ok {
		return unknownReqErr()
	}
	s.once.Do(func() { s.result <- rawResult{payload: payload} })
	return nil
}

// Close cancels every pending request (as KindCancelled) and marks the
// channel closed; subsequent Request and HandleResponse calls fail fast.
// The transports call it when the owning session ends (WebSocket
// connection closed, stdio input exhausted), so no handler goroutine blocks
// forever waiting on a response that can never arrive.
func (r *Raw) Close() {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[string]*slot)
	r.closed = true
	r.mu.Unlock()

	for _, s := range pending {
		s.once.Do(func() { s.result <- rawResult{err: cancelledErr()} })
	}
}

// Supported reports the transport's negotiated bidirectional_supported flag.
func (r *Raw) Supported() bool { return r.supported }

// Request marshals req, sends it through raw, and unmarshals the client's
// answer into Resp. A payload that doesn't decode as Resp is reported as
// KindTypeMismatch rather than a bare json error, so activation code can
// branch on channel.Error.Kind the same way for every failure mode.
func Request[Req any, Resp any](ctx context.Context, raw *Raw, req Req, timeout time.Duration) (Resp, error) {
	var zero Resp
	payload, err := json.Marshal(req)
	if err != nil {
		return zero, fmt.Errorf("channel: marshal request: %w", err)
	}
	respPayload, err := raw.Request(ctx, payload, timeout)
	if err != nil {
		return zero, err
	}
	var resp Resp
	if err := json.Unmarshal(respPayload, &resp); err != nil {
		return zero, typeMismatch(fmt.Sprintf("%T", resp), string(respPayload))
	}
	return resp, nil
}
