package schema

import (
	"encoding/json"
	"fmt"
)

// StandardRequest is the built-in tagged union covering the three
// ubiquitous UI intents a bidirectional channel can ask a client (spec
// §4.3 "Shape"). Exactly one of Confirm, Prompt, Select is set, matching
// Type.
type StandardRequest struct {
	Type    string         `json:"type"`
	Confirm *ConfirmParams `json:"confirm,omitempty"`
	Prompt  *PromptParams  `json:"prompt,omitempty"`
	Select  *SelectParams  `json:"select,omitempty"`
}

type (
	// ConfirmParams asks the client for a yes/no decision.
	ConfirmParams struct {
		Message string `json:"message"`
		Default *bool  `json:"default,omitempty"`
	}
	// PromptParams asks the client for free text.
	PromptParams struct {
		Message     string  `json:"message"`
		Default     *string `json:"default,omitempty"`
		Placeholder string  `json:"placeholder,omitempty"`
	}
	// SelectParams asks the client to choose among options.
	SelectParams struct {
		Message      string   `json:"message"`
		Options      []string `json:"options"`
		MultiSelect  bool     `json:"multi_select"`
	}
)

// NewConfirmRequest builds a StandardRequest of type "confirm".
func NewConfirmRequest(message string, def *bool) StandardRequest {
	return StandardRequest{Type: "confirm", Confirm: &ConfirmParams{Message: message, Default: def}}
}

// NewPromptRequest builds a StandardRequest of type "prompt".
func NewPromptRequest(message string, def *string, placeholder string) StandardRequest {
	return StandardRequest{Type: "prompt", Prompt: &PromptParams{Message: message, Default: def, Placeholder: placeholder}}
}

// NewSelectRequest builds a StandardRequest of type "select".
func NewSelectRequest(message string, options []string, multi bool) StandardRequest {
	return StandardRequest{Type: "select", Select: &SelectParams{Message: message, Options: options, MultiSelect: multi}}
}

// StandardResponse is the tagged union of client answers to a
// StandardRequest (spec §8 scenario 1 wire examples): { type: "text", value:
// "demo" }, { type: "selected", values: ["minimal"] }, { type: "confirmed",
// value: true }, or { type: "cancelled" } when the client declines to
// answer.
type StandardResponse struct {
	Type   string          `json:"type"`
	Value  json.RawMessage `json:"value,omitempty"`
	Values []string        `json:"values,omitempty"`
}

// AsBool extracts the boolean answer from a "confirmed" response.
func (r StandardResponse) AsBool() (bool, error) {
	if r.Type != "confirmed" {
		return false, fmt.Errorf("schema: expected confirmed response, got %q", r.Type)
	}
	var v bool
	if err := json.Unmarshal(r.Value, &v); err != nil {
		return false, fmt.Errorf("schema: decode confirmed value: %w", err)
	}
	return v, nil
}

// AsText extracts the string answer from a "text" response.
func (r StandardResponse) AsText() (string, error) {
	if r.Type != "text" {
		return "", fmt.Errorf("schema: expected text response, got %q", r.Type)
	}
	var v string
	if err := json.Unmarshal(r.Value, &v); err != nil {
		return "", fmt.Errorf("schema: decode text value: %w", err)
	}
	return v, nil
}

// AsSelected extracts the chosen option values from a "selected" response.
func (r StandardResponse) AsSelected() ([]string, error) {
	if r.Type != "selected" {
		return nil, fmt.Errorf("schema: expected selected response, got %q", r.Type)
	}
	return r.Values, nil
}

// IsCancelled reports whether the client declined to answer at all.
func (r StandardResponse) IsCancelled() bool { return r.Type == "cancelled" }

// MarshalStandardRequest is a convenience wrapper so callers constructing
// channel.Request[StandardRequest, StandardResponse] don't need to import
// encoding/json directly.
func MarshalStandardRequest(r StandardRequest) (json.RawMessage, error) {
	return json.Marshal(r)
}
