package channel

import (
	"context"
	"time"

	"github.com/hypermemetic/plexus-substrate/internal/schema"
)

// StandardChannel specializes Raw with the confirm/prompt/select
// conveniences spec §4.3 "Shape" describes as built into the bidirectional
// channel itself, so every standard-channel activation shares one
// implementation instead of hand-rolling StandardRequest/StandardResponse
// plumbing per activation.
type StandardChannel struct {
	raw *Raw
}

// NewStandardChannel wraps raw with the standard convenience methods.
func NewStandardChannel(raw *Raw) *StandardChannel {
	return &StandardChannel{raw: raw}
}

// Raw returns the underlying channel, for callers that also need the
// untyped Request/Fallback surface.
func (c *StandardChannel) Raw() *Raw { return c.raw }

// Confirm asks the client a yes/no question.
func (c *StandardChannel) Confirm(ctx context.Context, message string, def *bool, timeout time.Duration) (bool, error) {
	req := schema.NewConfirmRequest(message, def)
	resp, err := Request[schema.StandardRequest, schema.StandardResponse](ctx, c.raw, req, timeout)
	if err != nil {
		return false, err
	}
	return resp.AsBool()
}

// Prompt asks the client for free text.
func (c *StandardChannel) Prompt(ctx context.Context, message string, def *string, placeholder string, timeout time.Duration) (string, error) {
	req := schema.NewPromptRequest(message, def, placeholder)
	resp, err := Request[schema.StandardRequest, schema.StandardResponse](ctx, c.raw, req, timeout)
	if err != nil {
		return "", err
	}
	return resp.AsText()
}

// Select asks the client to choose among options.
func (c *StandardChannel) Select(ctx context.Context, message string, options []string, multi bool, timeout time.Duration) ([]string, error) {
	req := schema.NewSelectRequest(message, options, multi)
	resp, err := Request[schema.StandardRequest, schema.StandardResponse](ctx, c.raw, req, timeout)
	if err != nil {
		return nil, err
	}
	return resp.AsSelected()
}
