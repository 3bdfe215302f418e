package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildSpansShareTraceID(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "full_reindex", "")
	require.NotEmpty(t, root.TraceID)

	childCtx, child := StartChildSpan(ctx, "reindex_topics")
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Same(t, child, SpanFromContext(childCtx))
	assert.Same(t, root, SpanFromContext(ctx), "the parent context keeps its own span")

	root.mu.Lock()
	assert.Contains(t, root.children, child)
	root.mu.Unlock()
}

func TestStartSpanKeepsCallerTraceID(t *testing.T) {
	_, span := StartSpan(context.Background(), "control.Sync.Rebuild", "abc-123")
	assert.Equal(t, "abc-123", span.TraceID)
}

func TestOrphanChildBecomesRoot(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "reindex_topics")
	assert.NotEmpty(t, span.TraceID)
}

func TestEndOnlyCountsOnce(t *testing.T) {
	_, span := StartSpan(context.Background(), "op", "")
	span.End()
	first := span.elapsed
	time.Sleep(5 * time.Millisecond)
	span.End()
	assert.Equal(t, first, span.elapsed)
}

func TestSetErrorIgnoresNil(t *testing.T) {
	_, span := StartSpan(context.Background(), "op", "")
	span.SetError(nil)
	assert.Empty(t, span.attrs)

	span.SetError(errors.New("boom"))
	assert.Len(t, span.attrs, 1)
}

func TestSpanFromContextWithoutSpan(t *testing.T) {
	assert.Nil(t, SpanFromContext(context.Background()))
}
