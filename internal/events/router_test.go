package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forumkit/searchsync/internal/engine"
	enginememory "github.com/forumkit/searchsync/internal/engine/memory"
	"github.com/forumkit/searchsync/internal/forum"
	pubsubmemory "github.com/forumkit/searchsync/internal/pubsub/memory"
	"github.com/forumkit/searchsync/internal/settings"
	storememory "github.com/forumkit/searchsync/internal/store/memory"
	"github.com/forumkit/searchsync/internal/syncer"
	apperrors "github.com/forumkit/searchsync/pkg/errors"
	"github.com/forumkit/searchsync/pkg/metrics"
)

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = metrics.New()

type routerFixture struct {
	store  *storememory.Store
	engine *enginememory.Engine
	sync   *syncer.Synchronizer
	router *Router
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	st := storememory.New()
	eng := enginememory.New()
	mgr := settings.NewManager(st, pubsubmemory.New(), "searchsync:settings")
	require.NoError(t, mgr.Load(context.Background()))
	sync := syncer.New(st, eng, mgr, testMetrics, 3)
	return &routerFixture{
		store:  st,
		engine: eng,
		sync:   sync,
		router: NewRouter(sync, st, testMetrics, 8),
	}
}

func postEvent(kind forum.EventKind, p forum.Post) forum.Event {
	return forum.Event{ID: "ev-1", Kind: kind, Post: &p}
}

func topicEvent(kind forum.EventKind, t forum.Topic) forum.Event {
	return forum.Event{ID: "ev-2", Kind: kind, Topic: &t}
}

// postsIn returns the indexed post IDs whose content matches word within
// categoryID.
func (f *routerFixture) postsIn(t *testing.T, word string, categoryID int64) []int64 {
	t.Helper()
	ids, err := f.engine.Search(context.Background(), forum.KindPost, engine.Query{
		Text:        word,
		CategoryIDs: []int64{categoryID},
	})
	require.NoError(t, err)
	return ids
}

func TestRouterUpsertsPostUnderParentCategory(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.store.AddTopic(forum.Topic{ID: 1, CategoryID: 4, MainPostID: 10, Title: "parent"})

	for _, kind := range []forum.EventKind{forum.EventPostCreated, forum.EventPostEdited, forum.EventPostRestored} {
		require.NoError(t, f.router.Handle(ctx, postEvent(kind, forum.Post{ID: 11, TopicID: 1, AuthorID: 3, Content: "hello there"})))
		assert.True(t, f.engine.Has(forum.KindPost, 11), "%s indexes the post", kind)
	}
	assert.Equal(t, []int64{11}, f.postsIn(t, "hello", 4), "the post inherits the parent topic's category")
}

func TestRouterSkipsPostWithMissingParent(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	err := f.router.Handle(ctx, postEvent(forum.EventPostCreated, forum.Post{ID: 11, TopicID: 99, Content: "orphan"}))
	require.NoError(t, err, "a missing parent is a skip, not a failure")
	assert.False(t, f.engine.Has(forum.KindPost, 11))
}

func TestRouterSkipsPostWithDeletedParent(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.store.AddTopic(forum.Topic{ID: 1, CategoryID: 4, Deleted: true, Title: "gone"})

	err := f.router.Handle(ctx, postEvent(forum.EventPostCreated, forum.Post{ID: 11, TopicID: 1, Content: "late reply"}))
	require.NoError(t, err)
	assert.False(t, f.engine.Has(forum.KindPost, 11))
}

func TestRouterMissingParentIsNotCached(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	require.NoError(t, f.router.Handle(ctx, postEvent(forum.EventPostCreated, forum.Post{ID: 11, TopicID: 1, Content: "early reply"})))
	require.False(t, f.engine.Has(forum.KindPost, 11))

	// The topic's creation lands in the store after its first reply's event.
	f.store.AddTopic(forum.Topic{ID: 1, CategoryID: 4, Title: "parent"})
	require.NoError(t, f.router.Handle(ctx, postEvent(forum.EventPostCreated, forum.Post{ID: 11, TopicID: 1, Content: "early reply"})))
	assert.True(t, f.engine.Has(forum.KindPost, 11), "the earlier miss must not stick")
}

func TestRouterParentCacheServesRepeatLookups(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.store.AddTopic(forum.Topic{ID: 1, CategoryID: 4, Title: "parent"})

	require.NoError(t, f.router.Handle(ctx, postEvent(forum.EventPostCreated, forum.Post{ID: 11, TopicID: 1, Content: "first"})))

	// With the record gone from the store, only the cache can resolve the
	// parent now.
	f.store.RemoveTopic(1)
	require.NoError(t, f.router.Handle(ctx, postEvent(forum.EventPostCreated, forum.Post{ID: 12, TopicID: 1, Content: "second"})))
	assert.True(t, f.engine.Has(forum.KindPost, 12))
}

func TestRouterTopicEventEvictsParentCache(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.store.AddTopic(forum.Topic{ID: 1, CategoryID: 4, Title: "parent"})

	// Warm the cache with category 4.
	require.NoError(t, f.router.Handle(ctx, postEvent(forum.EventPostCreated, forum.Post{ID: 11, TopicID: 1, Content: "reply one"})))
	require.Equal(t, []int64{11}, f.postsIn(t, "reply", 4))

	// The topic moves to category 9; its event must invalidate the cache so
	// later posts pick up the new category.
	f.store.AddTopic(forum.Topic{ID: 1, CategoryID: 9, Title: "parent"})
	require.NoError(t, f.router.Handle(ctx, topicEvent(forum.EventTopicMoved, forum.Topic{ID: 1, CategoryID: 9, Title: "parent"})))

	require.NoError(t, f.router.Handle(ctx, postEvent(forum.EventPostCreated, forum.Post{ID: 12, TopicID: 1, Content: "reply two"})))
	assert.Contains(t, f.postsIn(t, "reply", 9), int64(12), "the new post carries the post-move category")
	assert.NotContains(t, f.postsIn(t, "reply", 4), int64(12))
}

func TestRouterRemovesPostOnDeleteAndPurge(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.store.AddTopic(forum.Topic{ID: 1, CategoryID: 4, Title: "parent"})

	for _, kind := range []forum.EventKind{forum.EventPostDeleted, forum.EventPostPurged} {
		require.NoError(t, f.router.Handle(ctx, postEvent(forum.EventPostCreated, forum.Post{ID: 11, TopicID: 1, Content: "short lived"})))
		require.True(t, f.engine.Has(forum.KindPost, 11))

		require.NoError(t, f.router.Handle(ctx, postEvent(kind, forum.Post{ID: 11, TopicID: 1})))
		assert.False(t, f.engine.Has(forum.KindPost, 11), "%s removes the post", kind)
	}
}

func TestRouterReindexesMovedPost(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.store.AddTopic(forum.Topic{ID: 1, CategoryID: 4, Title: "origin"})
	f.store.AddTopic(forum.Topic{ID: 2, CategoryID: 9, Title: "destination"})
	f.store.AddPost(forum.Post{ID: 11, TopicID: 1, Content: "wandering reply"})
	require.NoError(t, f.router.Handle(ctx, postEvent(forum.EventPostCreated, forum.Post{ID: 11, TopicID: 1, Content: "wandering reply"})))
	require.Equal(t, []int64{11}, f.postsIn(t, "wandering", 4))

	f.store.MovePost(11, 2)
	require.NoError(t, f.router.Handle(ctx, postEvent(forum.EventPostMoved, forum.Post{ID: 11, TopicID: 2, Content: "wandering reply"})))

	assert.Empty(t, f.postsIn(t, "wandering", 4))
	assert.Equal(t, []int64{11}, f.postsIn(t, "wandering", 9), "the move re-derives the category from the store")
}

func TestRouterIndexesTopicFromInlinePayload(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	// No store record needed: create and edit events carry the document.
	for _, kind := range []forum.EventKind{forum.EventTopicCreated, forum.EventTopicEdited} {
		require.NoError(t, f.router.Handle(ctx, topicEvent(kind, forum.Topic{ID: 1, CategoryID: 4, Title: "inline payload"})))
		assert.True(t, f.engine.Has(forum.KindTopic, 1), "%s indexes the topic", kind)
	}
}

func TestRouterReindexesRestoredTopicSubtree(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.store.AddTopic(forum.Topic{ID: 1, CategoryID: 4, MainPostID: 10, Title: "back again"})
	f.store.AddPost(forum.Post{ID: 10, TopicID: 1, Content: "main body"})
	f.store.AddPost(forum.Post{ID: 11, TopicID: 1, Content: "a reply"})

	require.NoError(t, f.router.Handle(ctx, topicEvent(forum.EventTopicRestored, forum.Topic{ID: 1})))

	assert.True(t, f.engine.Has(forum.KindTopic, 1))
	assert.True(t, f.engine.Has(forum.KindPost, 10), "the main post is re-evaluated")
	assert.True(t, f.engine.Has(forum.KindPost, 11), "child posts are re-evaluated")
}

func TestRouterRemovesTopicTreeOnDeleteAndPurge(t *testing.T) {
	for _, kind := range []forum.EventKind{forum.EventTopicDeleted, forum.EventTopicPurged} {
		f := newRouterFixture(t)
		ctx := context.Background()
		f.store.AddTopic(forum.Topic{ID: 1, CategoryID: 4, MainPostID: 10, Title: "doomed"})
		f.store.AddPost(forum.Post{ID: 10, TopicID: 1, Content: "main body"})
		f.store.AddPost(forum.Post{ID: 11, TopicID: 1, Content: "a reply"})
		require.NoError(t, f.sync.ReindexTopic(ctx, 1))
		require.True(t, f.engine.Has(forum.KindTopic, 1))

		// Purges drop the store record before the event is consumed; the
		// payload still names the main post.
		f.store.RemoveTopic(1)
		require.NoError(t, f.router.Handle(ctx, topicEvent(kind, forum.Topic{ID: 1, MainPostID: 10})))

		assert.False(t, f.engine.Has(forum.KindTopic, 1), "%s removes the topic", kind)
		assert.False(t, f.engine.Has(forum.KindPost, 10), "%s removes the main post", kind)
		assert.False(t, f.engine.Has(forum.KindPost, 11), "%s removes child posts", kind)
	}
}

func TestRouterRejectsInvalidEvents(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	cases := map[string]forum.Event{
		"unknown kind":          {ID: "e", Kind: "user.created"},
		"post without payload":  {ID: "e", Kind: forum.EventPostCreated},
		"topic without payload": {ID: "e", Kind: forum.EventTopicDeleted},
		"non-positive post id":  postEvent(forum.EventPostCreated, forum.Post{ID: 0, TopicID: 1}),
		"non-positive topic id": topicEvent(forum.EventTopicCreated, forum.Topic{ID: -2}),
	}
	for name, ev := range cases {
		assert.ErrorIs(t, f.router.Handle(ctx, ev), apperrors.ErrInvalidInput, name)
	}
	assert.Zero(t, f.engine.Count(forum.KindTopic))
	assert.Zero(t, f.engine.Count(forum.KindPost))
}

func TestRouterPropagatesEngineFailure(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	f.store.AddTopic(forum.Topic{ID: 1, CategoryID: 4, Title: "parent"})
	f.engine.IndexErr = assert.AnError

	err := f.router.Handle(ctx, postEvent(forum.EventPostCreated, forum.Post{ID: 11, TopicID: 1, Content: "doomed write"}))
	assert.ErrorIs(t, err, assert.AnError, "backend failures surface so the message stays uncommitted")
}
