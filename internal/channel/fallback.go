package channel

import (
	"context"
	"errors"
	"time"
)

// Fallback wraps Request with a pure function of the request and, on any
// ChannelError, invokes it instead of propagating the error (spec §4.3
// "Fallback wrapper"). This is the recommended default for activations that
// must work under both interactive and non-interactive transports.
func Fallback[Req any, Resp any](ctx context.Context, raw *Raw, req Req, timeout time.Duration, fn func(*Req) Resp) (Resp, error) {
	resp, err := Request[Req, Resp](ctx, raw, req, timeout)
	if err == nil {
		return resp, nil
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return fn(&req), nil
	}
	return resp, err
}
