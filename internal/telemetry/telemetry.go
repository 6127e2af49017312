// Package telemetry abstracts logging and tracing so that the dispatcher,
// channel, and transport layers never depend directly on a logging or
// tracing provider. Production wiring uses the Clue-backed implementation;
// tests use the noop implementation.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger is the structured logging interface used throughout the substrate.
// It is intentionally narrow so that stubs are trivial to write in tests.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Tracer abstracts span creation so that dispatcher, channel, and transport
// code stays agnostic of the underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
}

// Span represents an in-flight trace span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}
