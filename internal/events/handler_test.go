package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forumkit/searchsync/internal/forum"
	"github.com/forumkit/searchsync/pkg/resilience"
)

func encode(t *testing.T, ev forum.Event) []byte {
	t.Helper()
	value, err := json.Marshal(ev)
	require.NoError(t, err)
	return value
}

func TestHandlerProcessesValidEvent(t *testing.T) {
	f := newRouterFixture(t)
	handle := Handler(f.router, testMetrics)

	ev := topicEvent(forum.EventTopicCreated, forum.Topic{ID: 1, CategoryID: 4, Title: "streamed in"})
	ev.At = time.Now()
	err := handle(context.Background(), []byte(ev.Key()), encode(t, ev))

	require.NoError(t, err)
	assert.True(t, f.engine.Has(forum.KindTopic, 1))
}

func TestHandlerDropsUndecodableMessage(t *testing.T) {
	f := newRouterFixture(t)
	handle := Handler(f.router, testMetrics)

	err := handle(context.Background(), []byte("topic:1"), []byte("{truncated"))
	assert.NoError(t, err, "undecodable messages are dropped, not redelivered forever")
	assert.Zero(t, f.engine.Count(forum.KindTopic))
}

func TestHandlerDropsInvalidEvent(t *testing.T) {
	f := newRouterFixture(t)
	handle := Handler(f.router, testMetrics)
	ctx := context.Background()

	for name, ev := range map[string]forum.Event{
		"unknown kind":    {ID: "e1", Kind: "category.created"},
		"missing payload": {ID: "e2", Kind: forum.EventTopicCreated},
	} {
		err := handle(ctx, []byte("k"), encode(t, ev))
		assert.NoError(t, err, name)
	}
	assert.Zero(t, f.engine.Count(forum.KindTopic))
}

func TestHandlerLeavesMessageUncommittedOnBackendFailure(t *testing.T) {
	f := newRouterFixture(t)
	handle := Handler(f.router, testMetrics)
	f.engine.IndexErr = assert.AnError

	ev := topicEvent(forum.EventTopicCreated, forum.Topic{ID: 1, CategoryID: 4, Title: "will fail"})
	err := handle(context.Background(), []byte(ev.Key()), encode(t, ev))

	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), string(forum.EventTopicCreated))
}

func TestHandlerBreakerOpensAfterRepeatedFailures(t *testing.T) {
	f := newRouterFixture(t)
	handle := Handler(f.router, testMetrics)
	ctx := context.Background()
	f.engine.IndexErr = assert.AnError

	ev := topicEvent(forum.EventTopicCreated, forum.Topic{ID: 1, CategoryID: 4, Title: "dead backend"})
	key, value := []byte(ev.Key()), encode(t, ev)

	for i := 0; i < 5; i++ {
		err := handle(ctx, key, value)
		require.ErrorIs(t, err, assert.AnError, "failure %d reaches the backend", i+1)
	}

	err := handle(ctx, key, value)
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen, "the sixth call fails fast without touching the backend")
	assert.NotErrorIs(t, err, assert.AnError)
}

func TestHandlerValidationBypassesBreaker(t *testing.T) {
	f := newRouterFixture(t)
	handle := Handler(f.router, testMetrics)
	ctx := context.Background()

	// A long run of invalid events must not open the breaker for valid ones.
	bad := encode(t, forum.Event{ID: "e", Kind: "category.created"})
	for i := 0; i < 20; i++ {
		require.NoError(t, handle(ctx, []byte("k"), bad))
	}

	ev := topicEvent(forum.EventTopicCreated, forum.Topic{ID: 1, CategoryID: 4, Title: "still healthy"})
	require.NoError(t, handle(ctx, []byte(ev.Key()), encode(t, ev)))
	assert.True(t, f.engine.Has(forum.KindTopic, 1))
}
