package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"goa.design/clue/log"
)

func TestNoopLoggerDiscardsEverything(t *testing.T) {
	t.Parallel()
	logger := NewNoopLogger()
	assert.NotPanics(t, func() {
		logger.Debug(context.Background(), "debug", "k", "v")
		logger.Info(context.Background(), "info")
		logger.Warn(context.Background(), "warn", "k", 1)
		logger.Error(context.Background(), "error", "k", nil)
	})
}

func TestNoopTracerProducesUsableSpan(t *testing.T) {
	t.Parallel()
	tracer := NewNoopTracer()
	ctx, span := tracer.Start(context.Background(), "op")
	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() {
		span.AddEvent("evt")
		span.SetStatus(codes.Ok, "fine")
		span.RecordError(nil)
		span.End()
	})
}

func TestFieldsPairsKeyvalsAndLeadsWithMessage(t *testing.T) {
	t.Parallel()
	fielders := fields("started", []any{"count", 3, "name", "x"})
	require.Len(t, fielders, 3)

	kv0, ok := fielders[0].(log.KV)
	require.True(t, ok)
	assert.Equal(t, "msg", kv0.K)
	assert.Equal(t, "started", kv0.V)

	kv1, ok := fielders[1].(log.KV)
	require.True(t, ok)
	assert.Equal(t, "count", kv1.K)
	assert.Equal(t, 3, kv1.V)

	kv2, ok := fielders[2].(log.KV)
	require.True(t, ok)
	assert.Equal(t, "name", kv2.K)
	assert.Equal(t, "x", kv2.V)
}

func TestFieldsSkipsTrailingUnpairedKey(t *testing.T) {
	t.Parallel()
	fielders := fields("m", []any{"only-key"})
	assert.Len(t, fielders, 1)
}

func TestFieldsSkipsNonStringKeys(t *testing.T) {
	t.Parallel()
	fielders := fields("m", []any{1, "value"})
	assert.Len(t, fielders, 1)
}
