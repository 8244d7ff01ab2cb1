package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/davidbz/soundgraph/internal/observability"
)

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	observability.SetLogger(zap.New(core))
	t.Cleanup(func() { observability.SetLogger(zap.NewNop()) })

	ctx := context.Background()
	ctx = observability.WithTraceID(ctx, "trace-1")
	ctx = observability.WithRequestID(ctx, "request-1")
	ctx = observability.WithClusterKey(ctx, "abc123")
	ctx = observability.WithFeatureSet(ctx, "audio")

	observability.FromContext(ctx).Info("clustering")
	observability.FromContext(context.Background()).Info("bare")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, map[string]interface{}{
		"trace_id":    "trace-1",
		"request_id":  "request-1",
		"cluster_key": "abc123",
		"feature_set": "audio",
	}, entries[0].ContextMap())
	require.Empty(t, entries[1].ContextMap())
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, observability.GetTraceID(ctx))
	require.Empty(t, observability.GetSpanID(ctx))

	ctx = observability.WithSpanID(ctx, "span-1")
	require.Equal(t, "span-1", observability.GetSpanID(ctx))

	require.Len(t, observability.GenerateTraceID(), 32)
	require.NotEqual(t, observability.GenerateRequestID(), observability.GenerateRequestID())
}
