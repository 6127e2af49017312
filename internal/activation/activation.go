// Package activation defines the pluggable unit the plexus dispatcher hosts:
// a namespace of methods, each backed by a Handler that emits stream events
// into a RunContext (spec §3 "Activation", §4.1 "Registration").
package activation

import (
	"context"
	"encoding/json"

	"github.com/hypermemetic/plexus-substrate/internal/channel"
	"github.com/hypermemetic/plexus-substrate/internal/provenance"
	"github.com/hypermemetic/plexus-substrate/internal/schema"
	"github.com/hypermemetic/plexus-substrate/internal/streamevent"
)

// Handler runs one method invocation. It emits zero or more Data/Progress
// events (and, for bidirectional methods, Request events via RunContext's
// channel) and returns when the call is complete. The dispatcher supplies
// the terminal event: Done when Handler returns nil and the call hasn't
// already terminated itself with an unrecoverable Error; nothing further
// when it has.
//
// Handler adapts to Go's usual functional-interface idiom via HandlerFunc,
// mirroring the teacher's ToolCallExecutor / ToolCallExecutorFunc pair.
type Handler interface {
	Handle(ctx context.Context, rc *RunContext, params json.RawMessage) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, rc *RunContext, params json.RawMessage) error

func (f HandlerFunc) Handle(ctx context.Context, rc *RunContext, params json.RawMessage) error {
	return f(ctx, rc, params)
}

// Method binds a schema.Method description to the Handler that implements
// it. An Activation's Methods are registered into the plexus schema tree
// under the activation's Namespace.
type Method struct {
	Describe schema.Method
	Handler  Handler
}

// Activation is a self-contained, pluggable group of methods addressable as
// "<namespace>_<method>" on the wire (spec §3). Concrete activations
// (bash, wizard, imaging, ...) implement this interface and are registered
// with the plexus dispatcher at startup.
type Activation interface {
	// Namespace is the activation's identifier, matching [a-z][a-z0-9_]*.
	Namespace() string
	// Description is a short human-readable summary shown by plexus_schema.
	Description() string
	// Methods lists every method the activation exposes. Called once at
	// registration time; the returned slice is not consulted again.
	Methods() []Method
}

// RunContext is the per-invocation handle a Handler uses to emit stream
// events and, for bidirectional methods, to suspend for a client response.
// One RunContext is constructed per method call and discarded when the call
// completes.
type RunContext struct {
	sink       streamevent.Sink
	prov       provenance.Chain
	schemaHash string
	raw        *channel.Raw

	terminated bool
}

// NewRunContext constructs a RunContext for a single method invocation.
// raw may be nil for non-bidirectional methods, in which case Channel
// returns a Raw that always reports KindNotSupported.
func NewRunContext(sink streamevent.Sink, prov provenance.Chain, schemaHash string, raw *channel.Raw) *RunContext {
	if raw == nil {
		raw = channel.NewRaw(sink, false)
	}
	raw = raw.WithSchemaHash(schemaHash)
	return &RunContext{sink: sink, prov: prov, schemaHash: schemaHash, raw: raw}
}

// Provenance is the ordered call-chain segments this invocation should tag
// onto every event it emits.
func (rc *RunContext) Provenance() provenance.Chain { return rc.prov }

// Channel exposes the bidirectional raw channel for this subscription. Use
// the package-level channel.Request / channel.Fallback generic helpers to
// get a typed request/response round trip.
func (rc *RunContext) Channel() *channel.Raw { return rc.raw }

// Terminated reports whether this RunContext has already emitted an
// unrecoverable Error, in which case the dispatcher must not append a Done.
func (rc *RunContext) Terminated() bool { return rc.terminated }

// Data emits a Data event carrying payload encoded as contentType.
func (rc *RunContext) Data(ctx context.Context, contentType string, payload json.RawMessage) error {
	return rc.emit(ctx, streamevent.NewData(rc.prov, rc.schemaHash, contentType, payload))
}

// Progress emits a Progress event. fraction is nil when completion can't be
// estimated.
func (rc *RunContext) Progress(ctx context.Context, message string, fraction *float64) error {
	return rc.emit(ctx, streamevent.NewProgress(rc.prov, rc.schemaHash, message, fraction))
}

// Guidance emits a Guidance event. Per spec §9's resolved ordering, a
// handler emitting both Guidance and Error for the same failure must call
// Guidance first.
func (rc *RunContext) Guidance(ctx context.Context, errorKind, action, activation, method string, available []string) error {
	return rc.emit(ctx, streamevent.NewGuidance(rc.prov, rc.schemaHash, errorKind, action, activation, method, available))
}

// Error emits an Error event. recoverable=false marks this RunContext
// terminated: the dispatcher will not append a Done, and further calls to
// any emit method return an error.
func (rc *RunContext) Error(ctx context.Context, message string, recoverable bool) error {
	return rc.emit(ctx, streamevent.NewError(rc.prov, rc.schemaHash, message, recoverable))
}

func (rc *RunContext) emit(ctx context.Context, ev streamevent.Event) error {
	if rc.terminated {
		return errAlreadyTerminated
	}
	if err := rc.sink.Send(ctx, ev); err != nil {
		return err
	}
	if errEv, ok := ev.(streamevent.Error); ok && !errEv.Recoverable {
		rc.terminated = true
	}
	return nil
}

var errAlreadyTerminated = terminatedError{}

type terminatedError struct{}

func (terminatedError) Error() string {
	return "activation: run context already terminated by an unrecoverable error"
}
