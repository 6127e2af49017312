// Package streamevent defines the wire-stable event envelope carried
// verbatim across every transport (WebSocket subscription payloads, stdio
// notifications). Every activation method produces a stream of Events;
// the dispatcher and transport adapters never interpret their payloads,
// only their envelope fields.
//
// All concrete event types embed Base, which implements the common
// Kind/Provenance/SchemaHash accessors. Implementations are immutable
// after construction and safe to send concurrently, mirroring the
// contract of goa-ai's runtime/agent/stream.Event.
package streamevent

import (
	"encoding/json"

	"github.com/hypermemetic/plexus-substrate/internal/provenance"
)

// Kind discriminates the envelope's wire shape. Serialized as the "type"
// field of every frame (spec §6, "Event envelope (wire)").
type Kind string

const (
	KindData     Kind = "data"
	KindProgress Kind = "progress"
	KindError    Kind = "error"
	KindDone     Kind = "done"
	KindRequest  Kind = "request"
	KindGuidance Kind = "guidance"
)

// Event is the tagged-union interface implemented by every concrete event
// type. Sinks use Kind/Provenance/SchemaHash for generic envelope framing;
// consumers type-assert to the concrete type for field access.
type Event interface {
	// Kind returns the discriminator for this event's wire shape.
	Kind() Kind
	// Provenance returns the call chain that produced the event. Empty for
	// Request events, which are server-to-client questions rather than
	// domain output (spec §3 only requires non-empty provenance on
	// Data/Progress/Error).
	Provenance() provenance.Chain
	// SchemaHash is the plexus root hash captured at subscription start,
	// echoed on every frame so clients can detect a stale schema without a
	// round trip (spec §6 "plexus_hash" field).
	SchemaHash() string
}

// Base provides the shared envelope fields every concrete event embeds.
// Field names are abbreviated because Base fields are set once at
// construction and read only through the Event interface methods.
type Base struct {
	k    Kind
	prov provenance.Chain
	hash string
}

// NewBase constructs the shared envelope for a concrete event.
func NewBase(k Kind, prov provenance.Chain, schemaHash string) Base {
	return Base{k: k, prov: prov, hash: schemaHash}
}

func (b Base) Kind() Kind                     { return b.k }
func (b Base) Provenance() provenance.Chain   { return b.prov }
func (b Base) SchemaHash() string             { return b.hash }

type (
	// Data carries a domain event produced by an activation method.
	Data struct {
		Base
		// ContentType is a dot-separated domain identifier, e.g. "bash.event".
		ContentType string
		// Payload is opaque, activation-defined JSON.
		Payload json.RawMessage
	}

	// Progress is an optional beacon describing in-flight work.
	Progress struct {
		Base
		Message  string
		Fraction *float64
	}

	// Error is an in-band failure. Recoverable reports whether the stream
	// may continue; when false, Error is the stream's terminal event.
	Error struct {
		Base
		Err         string
		Recoverable bool
	}

	// Done is the terminal marker for a successful stream. Exactly one Done
	// or unrecoverable Error is emitted per subscription (spec §3 invariant).
	Done struct {
		Base
	}

	// Request is a server-to-client question injected mid-stream by the
	// bidirectional channel. RequestID is unique for the lifetime of the
	// owning stream and is never reused.
	Request struct {
		Base
		RequestID   string
		RequestData json.RawMessage
		TimeoutMS   int64
	}

	// Guidance is a structured hint for error recovery, e.g. pointing a
	// client at plexus_schema after an ActivationNotFound failure.
	Guidance struct {
		Base
		ErrorKind            string
		Action               string
		Activation           string
		Method               string
		AvailableActivations []string
	}
)

// NewData constructs a Data event.
func NewData(prov provenance.Chain, schemaHash, contentType string, payload json.RawMessage) Data {
	return Data{Base: NewBase(KindData, prov, schemaHash), ContentType: contentType, Payload: payload}
}

// NewProgress constructs a Progress event. fraction may be nil when unknown.
func NewProgress(prov provenance.Chain, schemaHash, message string, fraction *float64) Progress {
	return Progress{Base: NewBase(KindProgress, prov, schemaHash), Message: message, Fraction: fraction}
}

// NewError constructs an Error event.
func NewError(prov provenance.Chain, schemaHash, errMsg string, recoverable bool) Error {
	return Error{Base: NewBase(KindError, prov, schemaHash), Err: errMsg, Recoverable: recoverable}
}

// NewDone constructs a Done event.
func NewDone(prov provenance.Chain, schemaHash string) Done {
	return Done{Base: NewBase(KindDone, prov, schemaHash)}
}

// NewRequest constructs a Request event. The owning channel is responsible
// for generating requestID and registering the pending slot before this
// event reaches the transport.
func NewRequest(schemaHash, requestID string, data json.RawMessage, timeoutMS int64) Request {
	return Request{
		Base:        NewBase(KindRequest, nil, schemaHash),
		RequestID:   requestID,
		RequestData: data,
		TimeoutMS:   timeoutMS,
	}
}

// NewGuidance constructs a Guidance event.
func NewGuidance(prov provenance.Chain, schemaHash, errorKind, action, activation, method string, available []string) Guidance {
	return Guidance{
		Base:                  NewBase(KindGuidance, prov, schemaHash),
		ErrorKind:             errorKind,
		Action:                action,
		Activation:            activation,
		Method:                method,
		AvailableActivations:  available,
	}
}
