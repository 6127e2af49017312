package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/hypermemetic/plexus-substrate/internal/backpressure"
	"github.com/hypermemetic/plexus-substrate/internal/channel"
	"github.com/hypermemetic/plexus-substrate/internal/plexus"
	"github.com/hypermemetic/plexus-substrate/internal/streamevent"
	"github.com/hypermemetic/plexus-substrate/internal/telemetry"
	"github.com/hypermemetic/plexus-substrate/internal/transport/jsonrpc"
)

// subscriptionNotifyMethod is the JSON-RPC method name used for the
// subscription-notification shape described in spec §6 ("params.subscription
// and params.result carrying the event envelope").
const subscriptionNotifyMethod = "plexus_subscription"

type subscription struct {
	id     int64
	queue  *backpressure.Queue[streamevent.Event]
	raw    *channel.Raw
	cancel context.CancelFunc
}

// sessionSink adapts one subscription's queue to streamevent.Sink. Push
// failures (queue overflow) tear the subscription down per spec §4.4's
// drop-slowest-subscription policy rather than blocking the activation.
type sessionSink struct {
	sess *session
	sub  *subscription
}

func (s *sessionSink) Send(ctx context.Context, ev streamevent.Event) error {
	if err := s.sub.queue.Push(ev); err != nil {
		s.sess.dropSubscription(ctx, s.sub, "subscription queue overflow")
		return err
	}
	return nil
}

func (s *sessionSink) Close(context.Context) error { return nil }

// session is one WebSocket connection's protocol state.
type session struct {
	conn       *websocket.Conn
	dispatcher *plexus.Dispatcher
	logger     telemetry.Logger
	tracer     telemetry.Tracer
	queueDepth int

	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[int64]*subscription
	nextID int64

	closed atomic.Bool
}

func newSession(conn *websocket.Conn, dispatcher *plexus.Dispatcher, logger telemetry.Logger, tracer telemetry.Tracer, queueDepth int) *session {
	return &session{
		conn:       conn,
		dispatcher: dispatcher,
		logger:     logger,
		tracer:     tracer,
		queueDepth: queueDepth,
		subs:       make(map[int64]*subscription),
	}
}

func (s *session) serve(ctx context.Context) {
	defer s.conn.Close()
	defer s.cancelAll()
	for {
		var req jsonrpc.Request
		if err := s.conn.ReadJSON(&req); err != nil {
			return
		}
		s.handle(ctx, req)
	}
}

func (s *session) handle(ctx context.Context, req jsonrpc.Request) {
	switch req.Method {
	case "plexus_schema":
		s.startSpecialSubscription(ctx, req, s.emitSchema)
	case "plexus_hash":
		s.startSpecialSubscription(ctx, req, s.emitHash)
	case "plexus_respond":
		s.handleRespond(req)
	default:
		s.startCall(ctx, req)
	}
}

func (s *session) emitSchema(ctx context.Context, sink streamevent.Sink) error {
	root := s.dispatcher.Schema()
	payload, err := json.Marshal(root)
	if err != nil {
		return err
	}
	if err := sink.Send(ctx, streamevent.NewData(nil, s.dispatcher.Hash(), "plexus.schema", payload)); err != nil {
		return err
	}
	return sink.Send(ctx, streamevent.NewDone(nil, s.dispatcher.Hash()))
}

func (s *session) emitHash(ctx context.Context, sink streamevent.Sink) error {
	hash := s.dispatcher.Hash()
	payload, err := json.Marshal(map[string]string{"hash": hash})
	if err != nil {
		return err
	}
	if err := sink.Send(ctx, streamevent.NewData(nil, hash, "plexus.hash", payload)); err != nil {
		return err
	}
	return sink.Send(ctx, streamevent.NewDone(nil, hash))
}

// startSpecialSubscription handles plexus_schema/plexus_hash, which behave
// like any other subscription on the wire (Data then Done) but are served
// by the session directly rather than a registered activation.
func (s *session) startSpecialSubscription(ctx context.Context, req jsonrpc.Request, run func(context.Context, streamevent.Sink) error) {
	sub, id := s.newSubscription()
	s.respond(req, map[string]int64{"subscription": id})
	go s.drain(ctx, sub)
	go func() {
		defer s.finishSubscription(sub)
		sink := &sessionSink{sess: s, sub: sub}
		if err := run(ctx, sink); err != nil {
			s.logger.Warn(ctx, "ws: special subscription failed", "subscription", id, "error", err.Error())
		}
	}()
}

// startCall dispatches "<namespace>_<method>" to the plexus dispatcher
// (spec §4.1: "splits method_id at the first _").
func (s *session) startCall(ctx context.Context, req jsonrpc.Request) {
	namespace, method, ok := splitMethodID(req.Method)
	if !ok {
		s.respondError(req, jsonrpc.NewError(jsonrpc.CodeMethodNotFound, fmt.Sprintf("malformed method id %q", req.Method)))
		return
	}

	sub, id := s.newSubscription()
	sub.raw = channel.NewRaw(&sessionSink{sess: s, sub: sub}, true)
	s.respond(req, map[string]int64{"subscription": id})
	go s.drain(ctx, sub)
	go func() {
		defer s.finishSubscription(sub)
		callCtx, cancel := context.WithCancel(ctx)
		sub.cancel = cancel
		defer cancel()
		sink := &sessionSink{sess: s, sub: sub}
		if err := s.dispatcher.Call(callCtx, sink, sub.raw, namespace, method, req.Params); err != nil {
			s.logger.Warn(callCtx, "ws: call failed", "subscription", id, "error", err.Error())
		}
	}()
}

func splitMethodID(methodID string) (namespace, method string, ok bool) {
	idx := strings.IndexByte(methodID, '_')
	if idx <= 0 || idx == len(methodID)-1 {
		return "", "", false
	}
	return methodID[:idx], methodID[idx+1:], true
}

type respondParams struct {
	SubscriptionID int64           `json:"subscription_id"`
	RequestID      string          `json:"request_id"`
	Response       json.RawMessage `json:"response"`
}

func (s *session) handleRespond(req jsonrpc.Request) {
	var p respondParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		s.respondError(req, jsonrpc.NewError(jsonrpc.CodeInvalidParams, err.Error()))
		return
	}
	s.mu.Lock()
	sub, ok := s.subs[p.SubscriptionID]
	s.mu.Unlock()
	if !ok {
		s.respondError(req, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "unknown subscription_id"))
		return
	}
	if err := sub.raw.HandleResponse(p.RequestID, p.Response); err != nil {
		var cerr *channel.Error
		if errors.As(err, &cerr) && cerr.Kind == channel.KindUnknownRequest {
			s.respondError(req, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "unknown or expired request_id"))
			return
		}
		s.logger.Warn(context.Background(), "ws: handle_response failed", "request_id", p.RequestID, "error", err.Error())
	}
	s.respond(req, nil)
}

// defaultEventRate bounds how fast one subscription's write loop drains
// its queue, smoothing bursts instead of relying solely on the bounded
// queue's drop-on-overflow path for every burst (spec §4.4 back-pressure).
const defaultEventRate = 500

func (s *session) newSubscription() (*subscription, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	depth := s.queueDepth
	if depth <= 0 {
		depth = backpressure.DefaultDepth
	}
	sub := &subscription{id: id, queue: backpressure.NewRateLimited[streamevent.Event](depth, defaultEventRate, depth)}
	s.subs[id] = sub
	return sub, id
}

func (s *session) finishSubscription(sub *subscription) {
	sub.queue.Close()
}

func (s *session) dropSubscription(ctx context.Context, sub *subscription, reason string) {
	s.mu.Lock()
	_, ok := s.subs[sub.id]
	delete(s.subs, sub.id)
	s.mu.Unlock()
	if !ok {
		return
	}
	if sub.cancel != nil {
		sub.cancel()
	}
	_ = s.writeFrame(sub.id, streamevent.NewError(nil, s.dispatcher.Hash(), reason, false))
}

// drain is the per-subscription write loop: it owns the FIFO order of
// events leaving one subscription (spec §5 "events within a single
// subscription are delivered ... in production order").
func (s *session) drain(ctx context.Context, sub *subscription) {
	for ev := range sub.queue.C() {
		if err := sub.queue.Wait(ctx); err != nil {
			return
		}
		if err := s.writeFrame(sub.id, ev); err != nil {
			return
		}
	}
	s.mu.Lock()
	delete(s.subs, sub.id)
	s.mu.Unlock()
}

func (s *session) writeFrame(subscriptionID int64, ev streamevent.Event) error {
	body, err := streamevent.Marshal(ev)
	if err != nil {
		return err
	}
	var rawEnvelope json.RawMessage = body
	params, err := json.Marshal(struct {
		Subscription int64           `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	}{Subscription: subscriptionID, Result: rawEnvelope})
	if err != nil {
		return err
	}
	notif := jsonrpc.Notification{JSONRPC: jsonrpc.Version, Method: subscriptionNotifyMethod, Params: params}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(notif)
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
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.WriteJSON(resp)
}

func (s *session) respondError(req jsonrpc.Request, rpcErr *jsonrpc.Error) {
	if req.ID == nil {
		return
	}
	resp := jsonrpc.Response{JSONRPC: jsonrpc.Version, Error: rpcErr, ID: req.ID}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.WriteJSON(resp)
}

func (s *session) cancelAll() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[int64]*subscription)
	s.mu.Unlock()
	for _, sub := range subs {
		if sub.cancel != nil {
			sub.cancel()
		}
		if sub.raw != nil {
			sub.raw.Close()
		}
	}
}
