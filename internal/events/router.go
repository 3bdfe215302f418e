// Package events routes forum mutation events onto synchronizer operations.
// Each event kind maps to exactly one action and every action is idempotent,
// so at-least-once delivery from the stream converges on the correct index
// state.
package events

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/forumkit/searchsync/internal/forum"
	"github.com/forumkit/searchsync/internal/store"
	"github.com/forumkit/searchsync/internal/syncer"
	apperrors "github.com/forumkit/searchsync/pkg/errors"
	"github.com/forumkit/searchsync/pkg/logger"
	"github.com/forumkit/searchsync/pkg/metrics"
)

// DefaultTopicCacheSize bounds the parent-topic cache when no size is
// configured.
const DefaultTopicCacheSize = 1024

// cachedTopic is the slice of a topic record the post path needs: the
// effective category and whether the parent makes its posts ineligible.
type cachedTopic struct {
	categoryID int64
	deleted    bool
}

// Router maps mutation events onto synchronizer operations. Post events
// resolve the parent topic through a small LRU so a burst of replies to one
// topic does not re-read the same record per post; every topic event evicts
// its entry, which keeps the cache from serving a stale category after a
// move.
type Router struct {
	sync    *syncer.Synchronizer
	store   store.Store
	metrics *metrics.Metrics
	topics  *lru.Cache[int64, cachedTopic]
}

// NewRouter wires a Router. cacheSize bounds the parent-topic cache; zero
// selects the default.
func NewRouter(sync *syncer.Synchronizer, st store.Store, m *metrics.Metrics, cacheSize int) *Router {
	if cacheSize <= 0 {
		cacheSize = DefaultTopicCacheSize
	}
	cache, _ := lru.New[int64, cachedTopic](cacheSize)
	return &Router{
		sync:    sync,
		store:   st,
		metrics: m,
		topics:  cache,
	}
}

// Handle applies one event. Validation failures wrap ErrInvalidInput and
// cause no side effect; any other error comes from the store or engine, and
// the event is safe to redeliver.
func (r *Router) Handle(ctx context.Context, ev forum.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	switch ev.Kind {
	case forum.EventPostCreated, forum.EventPostEdited, forum.EventPostRestored:
		return r.upsertPost(ctx, *ev.Post)
	case forum.EventPostDeleted, forum.EventPostPurged:
		return r.sync.RemoveDocuments(ctx, forum.KindPost, []int64{ev.Post.ID})
	case forum.EventPostMoved:
		return r.sync.ReindexPost(ctx, ev.Post.ID)
	case forum.EventTopicCreated, forum.EventTopicEdited:
		r.topics.Remove(ev.Topic.ID)
		return r.sync.UpsertDocuments(ctx, forum.KindTopic, []forum.Document{ev.Topic.Document()})
	case forum.EventTopicRestored, forum.EventTopicMoved:
		r.topics.Remove(ev.Topic.ID)
		return r.sync.ReindexTopic(ctx, ev.Topic.ID)
	case forum.EventTopicDeleted, forum.EventTopicPurged:
		r.topics.Remove(ev.Topic.ID)
		return r.sync.RemoveTopicTree(ctx, ev.Topic.ID, ev.Topic.MainPostID)
	default:
		return fmt.Errorf("unroutable event kind %q: %w", ev.Kind, apperrors.ErrInvalidInput)
	}
}

// upsertPost indexes a post under its parent topic's category. Posts whose
// parent is gone or deleted are skipped: their entries were removed when the
// topic went away, and the upsert path never deletes what it did not write.
func (r *Router) upsertPost(ctx context.Context, p forum.Post) error {
	parent, ok, err := r.parentTopic(ctx, p.TopicID)
	if err != nil {
		return fmt.Errorf("resolving parent topic %d: %w", p.TopicID, err)
	}
	if !ok {
		r.metrics.DocumentsSkippedTotal.WithLabelValues(string(forum.KindPost), "parent_missing").Inc()
		logger.FromContext(ctx).Debug("skipping post, parent topic missing",
			"post_id", p.ID, "topic_id", p.TopicID)
		return nil
	}
	if parent.deleted {
		r.metrics.DocumentsSkippedTotal.WithLabelValues(string(forum.KindPost), "parent_deleted").Inc()
		logger.FromContext(ctx).Debug("skipping post, parent topic deleted",
			"post_id", p.ID, "topic_id", p.TopicID)
		return nil
	}
	return r.sync.UpsertDocuments(ctx, forum.KindPost, []forum.Document{p.Document(parent.categoryID)})
}

// parentTopic returns the cached category and deletion flag of a topic,
// reading through to the store on miss. Missing topics are never cached:
// the topic's creation may simply not have landed in the store yet.
func (r *Router) parentTopic(ctx context.Context, id int64) (cachedTopic, bool, error) {
	if t, ok := r.topics.Get(id); ok {
		r.metrics.TopicCacheHitsTotal.Inc()
		return t, true, nil
	}
	r.metrics.TopicCacheMissesTotal.Inc()

	topics, err := r.store.TopicFields(ctx, []int64{id})
	if err != nil {
		return cachedTopic{}, false, err
	}
	t, ok := topics[id]
	if !ok {
		return cachedTopic{}, false, nil
	}
	entry := cachedTopic{categoryID: t.CategoryID, deleted: t.Deleted}
	r.topics.Add(id, entry)
	return entry, true, nil
}
