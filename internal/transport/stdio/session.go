package stdio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hypermemetic/plexus-substrate/internal/backpressure"
	"github.com/hypermemetic/plexus-substrate/internal/channel"
	"github.com/hypermemetic/plexus-substrate/internal/plexus"
	"github.com/hypermemetic/plexus-substrate/internal/streamevent"
	"github.com/hypermemetic/plexus-substrate/internal/telemetry"
	"github.com/hypermemetic/plexus-substrate/internal/transport/jsonrpc"
)

type respondParams struct {
	RequestID string          `json:"request_id"`
	Response  json.RawMessage `json:"response"`
}

// requestMeta extracts the MCP-style "_meta.progressToken" a client attaches
// to a call's params when it wants notifications/progress echoed back with
// a correlating token (spec §4.4 "a progress token... echoed from the
// client's request metadata").
type requestMeta struct {
	Meta struct {
		ProgressToken json.RawMessage `json:"progressToken"`
	} `json:"_meta"`
}

func progressTokenOf(params json.RawMessage) json.RawMessage {
	var meta requestMeta
	if err := json.Unmarshal(params, &meta); err != nil {
		return nil
	}
	return meta.Meta.ProgressToken
}

// defaultEventRate bounds how fast one notification queue drains, smoothing
// bursts the same way internal/transport/ws/session.go's per-subscription
// rate limiter does.
const defaultEventRate = 500

// session is one stdio connection's protocol state. One Raw channel is
// shared by every in-flight call on this session, since request_ids are
// globally unique and the pending table is scoped per-session, not
// per-call (spec §9 resolution).
type session struct {
	dispatcher *plexus.Dispatcher
	logger     telemetry.Logger
	tracer     telemetry.Tracer
	queueDepth int
	writeMu    sync.Mutex
	w          io.Writer
	raw        *channel.Raw
	sessionNQ  *notifyQueue

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	callSeq atomic.Int64
}

// notifyQueue is a bounded, rate-limited mailbox that drains onto one
// session's notification stream via its own goroutine, mirroring the ws
// adapter's per-subscription backpressure.Queue (internal/transport/ws
// /session.go's newSubscription/drain pair) — spec §4.4's back-pressure
// requirement applies to this realization too, not only the WebSocket one.
type notifyQueue struct {
	sess          *session
	queue         *backpressure.Queue[streamevent.Event]
	progressToken json.RawMessage
}

func newNotifyQueue(sess *session, queueDepth int, progressToken json.RawMessage) *notifyQueue {
	depth := queueDepth
	if depth <= 0 {
		depth = backpressure.DefaultDepth
	}
	return &notifyQueue{
		sess:          sess,
		queue:         backpressure.NewRateLimited[streamevent.Event](depth, defaultEventRate, depth),
		progressToken: progressToken,
	}
}

func (q *notifyQueue) push(ev streamevent.Event) error { return q.queue.Push(ev) }

// drain owns the FIFO order of events leaving one queue, same as ws's
// per-subscription drain goroutine.
func (q *notifyQueue) drain(ctx context.Context) {
	for ev := range q.queue.C() {
		if err := q.queue.Wait(ctx); err != nil {
			return
		}
		var token json.RawMessage
		if ev.Kind() == streamevent.KindProgress {
			token = q.progressToken
		}
		if err := q.sess.notify(ev, token); err != nil {
			return
		}
	}
}

func (q *notifyQueue) close() { q.queue.Close() }

// dropStream cancels the offending call (if any) and emits an unrecoverable
// Error directly, bypassing the overflowed queue, per spec §4.4's
// drop-with-unrecoverable-Error overflow policy.
func (s *session) dropStream(cancel context.CancelFunc, reason string) {
	if cancel != nil {
		cancel()
	}
	_ = s.notify(streamevent.NewError(nil, s.dispatcher.Hash(), reason, false), nil)
}

// notifySink adapts one call's notification queue to streamevent.Sink and
// counts events so the originating call's minimal completion marker (spec
// §4.4 "never the data itself") can report a count.
type notifySink struct {
	sess   *session
	count  atomic.Int64
	nq     *notifyQueue
	cancel context.CancelFunc
}

func (n *notifySink) Send(ctx context.Context, ev streamevent.Event) error {
	n.count.Add(1)
	if err := n.nq.push(ev); err != nil {
		n.sess.dropStream(n.cancel, "notification queue overflow")
		return err
	}
	return nil
}

func (n *notifySink) Close(context.Context) error {
	n.nq.close()
	return nil
}

func newSession(dispatcher *plexus.Dispatcher, logger telemetry.Logger, tracer telemetry.Tracer, w io.Writer, bidirectional bool, queueDepth int) *session {
	s := &session{
		dispatcher: dispatcher,
		logger:     logger,
		tracer:     tracer,
		queueDepth: queueDepth,
		w:          w,
		cancels:    make(map[string]context.CancelFunc),
	}
	s.sessionNQ = newNotifyQueue(s, queueDepth, nil)
	s.raw = channel.NewRaw(&sessionNotifySink{sess: s}, bidirectional)
	return s
}

// start launches the session-wide notification drain goroutine; must be
// called once ctx (the Serve call's context) is known.
func (s *session) start(ctx context.Context) {
	go s.sessionNQ.drain(ctx)
}

// sessionNotifySink lets the single shared Raw channel emit Request events
// onto the session's notification stream without going through a specific
// call's counting notifySink.
type sessionNotifySink struct{ sess *session }

func (s *sessionNotifySink) Send(ctx context.Context, ev streamevent.Event) error {
	if err := s.sess.sessionNQ.push(ev); err != nil {
		s.sess.dropStream(nil, "notification queue overflow")
		return err
	}
	return nil
}
func (s *sessionNotifySink) Close(context.Context) error { return nil }

func (s *session) handleLine(ctx context.Context, line []byte) {
	var req jsonrpc.Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Warn(ctx, "stdio: malformed frame", "error", err.Error())
		return
	}

	switch req.Method {
	case "plexus_schema":
		s.handleOneShot(ctx, req, s.schemaPayload)
	case "plexus_hash":
		s.handleOneShot(ctx, req, s.hashPayload)
	case "_plexus_respond":
		s.handleRespond(req)
	default:
		s.handleCall(ctx, req)
	}
}

func (s *session) schemaPayload() (string, json.RawMessage, error) {
	payload, err := json.Marshal(s.dispatcher.Schema())
	return "plexus.schema", payload, err
}

func (s *session) hashPayload() (string, json.RawMessage, error) {
	payload, err := json.Marshal(map[string]string{"hash": s.dispatcher.Hash()})
	return "plexus.hash", payload, err
}

func (s *session) handleOneShot(ctx context.Context, req jsonrpc.Request, build func() (string, json.RawMessage, error)) {
	contentType, payload, err := build()
	if err != nil {
		s.respondError(req, jsonrpc.NewError(jsonrpc.CodeInternalError, err.Error()))
		return
	}
	hash := s.dispatcher.Hash()
	nq := newNotifyQueue(s, s.queueDepth, progressTokenOf(req.Params))
	go nq.drain(ctx)
	sink := &notifySink{sess: s, nq: nq}
	_ = sink.Send(ctx, streamevent.NewData(nil, hash, contentType, payload))
	_ = sink.Send(ctx, streamevent.NewDone(nil, hash))
	_ = sink.Close(ctx)
	s.respond(req, fmt.Sprintf("stream completed: %d events", sink.count.Load()))
}

func (s *session) handleCall(ctx context.Context, req jsonrpc.Request) {
	namespace, method, ok := splitMethodID(req.Method)
	if !ok {
		s.respondError(req, jsonrpc.NewError(jsonrpc.CodeMethodNotFound, fmt.Sprintf("malformed method id %q", req.Method)))
		return
	}

	callCtx, cancel := context.WithCancel(ctx)
	callID := fmt.Sprintf("%s-%d", req.Method, s.callSeq.Add(1))
	s.mu.Lock()
	s.cancels[callID] = cancel
	s.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.cancels, callID)
			s.mu.Unlock()
		}()
		nq := newNotifyQueue(s, s.queueDepth, progressTokenOf(req.Params))
		go nq.drain(callCtx)
		sink := &notifySink{sess: s, nq: nq, cancel: cancel}
		if err := s.dispatcher.Call(callCtx, sink, s.raw, namespace, method, req.Params); err != nil {
			s.logger.Warn(callCtx, "stdio: call failed", "method", req.Method, "error", err.Error())
		}
		sink.nq.close()
		s.respond(req, fmt.Sprintf("stream completed: %d events", sink.count.Load()))
	}()
}

func splitMethodID(methodID string) (namespace, method string, ok bool) {
	idx := strings.IndexByte(methodID, '_')
	if idx <= 0 || idx == len(methodID)-1 {
		return "", "", false
	}
	return methodID[:idx], methodID[idx+1:], true
}

func (s *session) handleRespond(req jsonrpc.Request) {
	var p respondParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		s.respondError(req, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error()))
		return
	}
	if err := s.raw.HandleResponse(p.RequestID, p.Response); err != nil {
		var cerr *channel.Error
		if errors.As(err, &cerr) && cerr.Kind == channel.KindUnknownRequest {
			s.respondError(req, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "unknown or expired request_id"))
			return
		}
		s.logger.Warn(context.Background(), "stdio: handle_response failed", "request_id", p.RequestID, "error", err.Error())
	}
	s.respond(req, nil)
}

// notify writes one event as notifications/message (Request events included,
// using the same wire envelope as every other kind) and, for Progress,
// additionally as notifications/progress carrying the originating call's
// progress token back to the client (spec §4.4 bullet list).
func (s *session) notify(ev streamevent.Event, progressToken json.RawMessage) error {
	body, err := streamevent.Marshal(ev)
	if err != nil {
		return err
	}
	if err := s.writeNotification("notifications/message", body, nil); err != nil {
		return err
	}
	if ev.Kind() == streamevent.KindProgress {
		return s.writeNotification("notifications/progress", body, progressToken)
	}
	return nil
}

func (s *session) writeNotification(method string, data, progressToken json.RawMessage) error {
	params, err := json.Marshal(struct {
		Data          json.RawMessage `json:"data"`
		ProgressToken json.RawMessage `json:"progress_token,omitempty"`
	}{Data: data, ProgressToken: progressToken})
	if err != nil {
		return err
	}
	notif := jsonrpc.Notification{JSONRPC: jsonrpc.Version, Method: method, Params: params}
	line, err := json.Marshal(notif)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.w.Write(append(line, '\n'))
	return err
}

func (s *session) respond(req jsonrpc.Request, result any) {
	if req.ID == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		s.respondError(req, jsonrpc.NewError(jsonrpc.CodeInternalError, err.Error()))
		return
	}
	resp := jsonrpc.Response{JSONRPC: jsonrpc.Version, Result: payload, ID: req.ID}
	line, err := json.Marshal(resp)
	if err != nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, _ = s.w.Write(append(line, '\n'))
}

func (s *session) respondError(req jsonrpc.Request, rpcErr *jsonrpc.Error) {
	if req.ID == nil {
		return
	}
	resp := jsonrpc.Response{JSONRPC: jsonrpc.Version, Error: rpcErr, ID: req.ID}
	line, err := json.Marshal(resp)
	if err != nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, _ = s.w.Write(append(line, '\n'))
}

func (s *session) cancelAll() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = make(map[string]context.CancelFunc)
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	s.raw.Close()
	s.sessionNQ.close()
}
