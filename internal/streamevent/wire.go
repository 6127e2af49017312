package streamevent

import (
	"encoding/json"
	"fmt"

	"github.com/hypermemetic/plexus-substrate/internal/provenance"
)

// wireProvenance mirrors the spec §6 "provenance": { "segments": [...] }
// shape.
type wireProvenance struct {
	Segments []string `json:"segments"`
}

// wireEnvelope is the flat, type-tagged JSON shape every Event marshals to
// and unmarshals from. Type-specific fields are omitted from the JSON for
// kinds that don't use them.
type wireEnvelope struct {
	Type       Kind            `json:"type"`
	Provenance wireProvenance  `json:"provenance"`
	PlexusHash string          `json:"plexus_hash"`

	// data
	ContentType string          `json:"content_type,omitempty"`
	DataPayload json.RawMessage `json:"data,omitempty"`

	// progress
	Message    string   `json:"message,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`

	// error
	ErrorMessage string `json:"error,omitempty"`
	Recoverable  bool   `json:"recoverable,omitempty"`

	// request
	RequestID   string          `json:"request_id,omitempty"`
	RequestData json.RawMessage `json:"request_data,omitempty"`
	TimeoutMS   int64           `json:"timeout_ms,omitempty"`

	// guidance
	ErrorKind            string   `json:"error_kind,omitempty"`
	Action               string   `json:"action,omitempty"`
	Activation           string   `json:"activation,omitempty"`
	Method               string   `json:"method,omitempty"`
	AvailableActivations []string `json:"available_activations,omitempty"`
}

// Marshal encodes an Event into its wire envelope form.
func Marshal(e Event) ([]byte, error) {
	env := wireEnvelope{
		Type:       e.Kind(),
		Provenance: wireProvenance{Segments: e.Provenance().Segments()},
		PlexusHash: e.SchemaHash(),
	}
	switch ev := e.(type) {
	case Data:
		env.ContentType = ev.ContentType
		env.DataPayload = ev.Payload
	case Progress:
		env.Message = ev.Message
		env.Percentage = ev.Fraction
	case Error:
		env.ErrorMessage = ev.Err
		env.Recoverable = ev.Recoverable
	case Done:
		// no type-specific fields
	case Request:
		env.RequestID = ev.RequestID
		env.RequestData = ev.RequestData
		env.TimeoutMS = ev.TimeoutMS
	case Guidance:
		env.ErrorKind = ev.ErrorKind
		env.Action = ev.Action
		env.Activation = ev.Activation
		env.Method = ev.Method
		env.AvailableActivations = ev.AvailableActivations
	default:
		return nil, fmt.Errorf("streamevent: unknown event type %T", e)
	}
	return json.Marshal(env)
}

// Unmarshal decodes a wire envelope into its concrete Event type. The
// provenance chain and schema hash round-trip exactly; an empty segments
// list decodes as a nil Chain, the provenance NewRequest builds.
func Unmarshal(data []byte) (Event, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("streamevent: decode envelope: %w", err)
	}
	var prov provenance.Chain
	if len(env.Provenance.Segments) > 0 {
		prov = provenance.Chain(env.Provenance.Segments)
	}
	switch env.Type {
	case KindData:
		return Data{Base: NewBase(KindData, prov, env.PlexusHash), ContentType: env.ContentType, Payload: env.DataPayload}, nil
	case KindProgress:
		return Progress{Base: NewBase(KindProgress, prov, env.PlexusHash), Message: env.Message, Fraction: env.Percentage}, nil
	case KindError:
		return Error{Base: NewBase(KindError, prov, env.PlexusHash), Err: env.ErrorMessage, Recoverable: env.Recoverable}, nil
	case KindDone:
		return Done{Base: NewBase(KindDone, prov, env.PlexusHash)}, nil
	case KindRequest:
		return Request{
			Base:        NewBase(KindRequest, prov, env.PlexusHash),
			RequestID:   env.RequestID,
			RequestData: env.RequestData,
			TimeoutMS:   env.TimeoutMS,
		}, nil
	case KindGuidance:
		return Guidance{
			Base:                 NewBase(KindGuidance, prov, env.PlexusHash),
			ErrorKind:            env.ErrorKind,
			Action:               env.Action,
			Activation:           env.Activation,
			Method:               env.Method,
			AvailableActivations: env.AvailableActivations,
		}, nil
	default:
		return nil, fmt.Errorf("streamevent: unknown wire type %q", env.Type)
	}
}
