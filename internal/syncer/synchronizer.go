// Package syncer keeps the index engine consistent with the forum's primary
// store. It carries the three synchronization modes: live per-document
// updates driven by mutation events, full rebuilds that walk both document
// sets, and the destructive full clear. All index writes and the progress
// counters that describe them flow through the Synchronizer, so the
// eligibility rules apply uniformly no matter which mode triggered a write.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forumkit/searchsync/internal/batch"
	"github.com/forumkit/searchsync/internal/engine"
	"github.com/forumkit/searchsync/internal/forum"
	"github.com/forumkit/searchsync/internal/normalize"
	"github.com/forumkit/searchsync/internal/settings"
	"github.com/forumkit/searchsync/internal/store"
	apperrors "github.com/forumkit/searchsync/pkg/errors"
	"github.com/forumkit/searchsync/pkg/logger"
	"github.com/forumkit/searchsync/pkg/metrics"
	"github.com/forumkit/searchsync/pkg/tracing"
)

// Synchronizer owns every write to the index engine. The rebuild mutex
// serializes full rebuilds and clears within this process; across processes
// the persisted working flag stays advisory.
type Synchronizer struct {
	store    store.Store
	engine   engine.Engine
	settings *settings.Manager
	metrics  *metrics.Metrics
	logger   *slog.Logger
	pageSize int64

	rebuildMu sync.Mutex
}

// New wires a Synchronizer. pageSize bounds each rank page read during
// rebuilds and subtree walks; zero selects the default.
func New(st store.Store, eng engine.Engine, mgr *settings.Manager, m *metrics.Metrics, pageSize int64) *Synchronizer {
	if pageSize <= 0 {
		pageSize = batch.DefaultPageSize
	}
	return &Synchronizer{
		store:    st,
		engine:   eng,
		settings: mgr,
		metrics:  m,
		logger:   logger.WithComponent("syncer"),
		pageSize: pageSize,
	}
}

// decision is the per-document outcome of one apply call. Duplicate IDs
// within a call collapse to the last decision so the engine sees each ID
// at most once.
type decision struct {
	record engine.Record
	remove bool
}

// UpsertDocuments indexes the eligible documents of kind. Ineligible
// documents are skipped, never removed; the live creation path must not
// delete entries it does not own. The indexed-document counter grows by the
// number actually submitted to the engine.
func (s *Synchronizer) UpsertDocuments(ctx context.Context, kind forum.Kind, docs []forum.Document) error {
	return s.apply(ctx, kind, docs, false)
}

// ReindexDocuments re-evaluates documents whose state may have changed.
// Eligible documents are upserted; documents that have become ineligible
// are removed from the index.
func (s *Synchronizer) ReindexDocuments(ctx context.Context, kind forum.Kind, docs []forum.Document) error {
	return s.apply(ctx, kind, docs, true)
}

// RemoveDocuments deletes ids from the index for kind. An empty list is a
// no-op. The counter decrements by len(ids) whether or not the entries
// existed; the counters are advisory progress figures, not exact set
// cardinalities.
func (s *Synchronizer) RemoveDocuments(ctx context.Context, kind forum.Kind, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.engine.Remove(ctx, kind, ids); err != nil {
		return err
	}
	s.metrics.DocumentsRemovedTotal.WithLabelValues(string(kind)).Add(float64(len(ids)))
	if _, err := s.settings.IncrCounter(ctx, kind, -int64(len(ids))); err != nil {
		return err
	}
	return nil
}

func (s *Synchronizer) apply(ctx context.Context, kind forum.Kind, docs []forum.Document, removeIneligible bool) error {
	if len(docs) == 0 {
		return nil
	}
	snap := s.settings.Current()

	order := make([]int64, 0, len(docs))
	byID := make(map[int64]decision, len(docs))
	for _, doc := range docs {
		if _, seen := byID[doc.ID]; !seen {
			order = append(order, doc.ID)
		}
		byID[doc.ID] = s.decide(snap, kind, doc)
	}

	var (
		records  []engine.Record
		removals []int64
	)
	for _, id := range order {
		d := byID[id]
		if d.remove {
			removals = append(removals, id)
			continue
		}
		records = append(records, d.record)
	}

	if len(records) > 0 {
		if err := s.engine.Index(ctx, kind, records); err != nil {
			return err
		}
		s.metrics.DocumentsIndexedTotal.WithLabelValues(string(kind)).Add(float64(len(records)))
		if _, err := s.settings.IncrCounter(ctx, kind, int64(len(records))); err != nil {
			return err
		}
	}
	if removeIneligible && len(removals) > 0 {
		if err := s.RemoveDocuments(ctx, kind, removals); err != nil {
			return err
		}
	}
	return nil
}

// decide evaluates one document against the eligibility rules: not deleted,
// category not excluded, trimmed text non-empty.
func (s *Synchronizer) decide(snap settings.Settings, kind forum.Kind, doc forum.Document) decision {
	reason := ""
	switch {
	case doc.Deleted:
		reason = "deleted"
	case snap.Excludes(doc.CategoryID):
		reason = "excluded_category"
	case strings.TrimSpace(doc.Text) == "":
		reason = "empty"
	}
	if reason != "" {
		s.metrics.DocumentsSkippedTotal.WithLabelValues(string(kind), reason).Inc()
		return decision{remove: true}
	}
	return decision{record: engine.Record{
		ID:         doc.ID,
		Content:    normalize.Text(doc.Text),
		CategoryID: doc.CategoryID,
		AuthorID:   doc.AuthorID,
	}}
}

// FullReindex rebuilds both indices from the primary store and blocks until
// done. A second rebuild or clear in this process fails fast.
func (s *Synchronizer) FullReindex(ctx context.Context) error {
	if !s.rebuildMu.TryLock() {
		return apperrors.ErrRebuildInProgress
	}
	defer s.rebuildMu.Unlock()
	return s.fullReindexLocked(ctx)
}

// StartFullReindex runs FullReindex in the background, bound to ctx. The
// in-progress check happens synchronously so callers learn about a running
// rebuild immediately; completion shows up through Progress.
func (s *Synchronizer) StartFullReindex(ctx context.Context) error {
	if !s.rebuildMu.TryLock() {
		return apperrors.ErrRebuildInProgress
	}
	go func() {
		defer s.rebuildMu.Unlock()
		if err := s.fullReindexLocked(ctx); err != nil {
			s.logger.Error("full reindex failed", "error", err)
		}
	}()
	return nil
}

func (s *Synchronizer) fullReindexLocked(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "full_reindex", "")
	defer func() {
		span.End()
		span.Log()
	}()
	start := time.Now()
	s.logger.Info("full reindex starting")
	s.metrics.RebuildRunning.Set(1)
	defer s.metrics.RebuildRunning.Set(0)

	if err := s.settings.SetWorking(ctx, true); err != nil {
		return err
	}
	defer s.resetWorking(ctx)

	if err := s.settings.ResetCounters(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.reindexKind(gctx, forum.KindTopic, forum.TopicSet) })
	g.Go(func() error { return s.reindexKind(gctx, forum.KindPost, forum.PostSet) })
	err := g.Wait()

	status := "ok"
	if err != nil {
		status = "error"
		span.SetError(err)
	}
	s.metrics.RebuildDuration.WithLabelValues("reindex", status).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	snap := s.settings.Current()
	span.SetAttr("topics_indexed", snap.TopicsIndexed)
	span.SetAttr("posts_indexed", snap.PostsIndexed)
	s.logger.Info("full reindex complete",
		"topics_indexed", snap.TopicsIndexed,
		"posts_indexed", snap.PostsIndexed,
		"duration", time.Since(start))
	return nil
}

// reindexKind walks one document set in rank pages, hydrating and indexing
// each page before reading the next.
func (s *Synchronizer) reindexKind(ctx context.Context, kind forum.Kind, set string) error {
	ctx, span := tracing.StartChildSpan(ctx, "reindex_"+string(kind)+"s")
	defer span.End()
	err := batch.ForEach(ctx, s.store, set, s.pageSize, func(ctx context.Context, ids []int64) error {
		docs, err := s.hydrate(ctx, kind, ids, false)
		if err != nil {
			s.metrics.BatchesTotal.WithLabelValues(string(kind), "error").Inc()
			return err
		}
		if err := s.UpsertDocuments(ctx, kind, docs); err != nil {
			s.metrics.BatchesTotal.WithLabelValues(string(kind), "error").Inc()
			return err
		}
		s.metrics.BatchesTotal.WithLabelValues(string(kind), "ok").Inc()
		return nil
	})
	if err != nil {
		span.SetError(err)
	}
	return err
}

// FullClear removes every known document from both indices and zeroes the
// counters. Entries orphaned in the engine (no longer listed in either set)
// are not touched; a full reindex after a clear leaves them behind until
// their IDs are reused.
func (s *Synchronizer) FullClear(ctx context.Context) error {
	if !s.rebuildMu.TryLock() {
		return apperrors.ErrRebuildInProgress
	}
	defer s.rebuildMu.Unlock()
	return s.fullClearLocked(ctx)
}

// StartFullClear runs FullClear in the background, bound to ctx.
func (s *Synchronizer) StartFullClear(ctx context.Context) error {
	if !s.rebuildMu.TryLock() {
		return apperrors.ErrRebuildInProgress
	}
	go func() {
		defer s.rebuildMu.Unlock()
		if err := s.fullClearLocked(ctx); err != nil {
			s.logger.Error("full clear failed", "error", err)
		}
	}()
	return nil
}

func (s *Synchronizer) fullClearLocked(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "full_clear", "")
	defer func() {
		span.End()
		span.Log()
	}()
	start := time.Now()
	s.logger.Info("full clear starting")
	s.metrics.RebuildRunning.Set(1)
	defer s.metrics.RebuildRunning.Set(0)

	if err := s.settings.SetWorking(ctx, true); err != nil {
		return err
	}
	defer s.resetWorking(ctx)

	sets := []struct {
		kind forum.Kind
		set  string
	}{
		{forum.KindTopic, forum.TopicSet},
		{forum.KindPost, forum.PostSet},
	}
	var err error
	for _, target := range sets {
		err = s.clearKind(ctx, target.kind, target.set)
		if err != nil {
			break
		}
	}
	if err == nil {
		err = s.settings.ResetCounters(ctx)
	}

	status := "ok"
	if err != nil {
		status = "error"
		span.SetError(err)
	}
	s.metrics.RebuildDuration.WithLabelValues("clear", status).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	s.logger.Info("full clear complete", "duration", time.Since(start))
	return nil
}

// clearKind removes one document set from the index in rank pages.
func (s *Synchronizer) clearKind(ctx context.Context, kind forum.Kind, set string) error {
	ctx, span := tracing.StartChildSpan(ctx, "clear_"+string(kind)+"s")
	defer span.End()
	err := batch.ForEach(ctx, s.store, set, s.pageSize, func(ctx context.Context, ids []int64) error {
		return s.RemoveDocuments(ctx, kind, ids)
	})
	if err != nil {
		span.SetError(err)
	}
	return err
}

// ReindexTopic re-evaluates one topic and every post beneath it. Topics
// that have vanished or become ineligible are removed along with their
// posts; a moved topic re-derives the effective category for the whole
// subtree. The main post lives on the topic record rather than in the
// child set, so it gets its own pass.
func (s *Synchronizer) ReindexTopic(ctx context.Context, id int64) error {
	topics, err := s.store.TopicFields(ctx, []int64{id})
	if err != nil {
		return fmt.Errorf("loading topic %d: %w", id, err)
	}
	doc := forum.Document{ID: id, Kind: forum.KindTopic, Deleted: true}
	if t, ok := topics[id]; ok {
		doc = t.Document()
	}
	if err := s.ReindexDocuments(ctx, forum.KindTopic, []forum.Document{doc}); err != nil {
		return err
	}
	if t, ok := topics[id]; ok && t.MainPostID > 0 {
		if err := s.ReindexPost(ctx, t.MainPostID); err != nil {
			return err
		}
	}
	return batch.ForEach(ctx, s.store, forum.TopicPostsSet(id), s.pageSize, func(ctx context.Context, ids []int64) error {
		docs, err := s.hydrate(ctx, forum.KindPost, ids, true)
		if err != nil {
			return err
		}
		return s.ReindexDocuments(ctx, forum.KindPost, docs)
	})
}

// RemoveTopicTree drops a topic and its posts from the index without
// consulting topic eligibility, for deletion events where the outcome is
// already known. The main post ID comes from the event payload because a
// purged topic record is gone by the time the event arrives; zero means
// unknown and is skipped.
func (s *Synchronizer) RemoveTopicTree(ctx context.Context, topicID, mainPostID int64) error {
	if err := s.RemoveDocuments(ctx, forum.KindTopic, []int64{topicID}); err != nil {
		return err
	}
	if mainPostID > 0 {
		if err := s.RemoveDocuments(ctx, forum.KindPost, []int64{mainPostID}); err != nil {
			return err
		}
	}
	return batch.ForEach(ctx, s.store, forum.TopicPostsSet(topicID), s.pageSize, func(ctx context.Context, ids []int64) error {
		return s.RemoveDocuments(ctx, forum.KindPost, ids)
	})
}

// ReindexPost re-evaluates one post from the primary store, removing it
// when it no longer exists or is no longer eligible.
func (s *Synchronizer) ReindexPost(ctx context.Context, id int64) error {
	docs, err := s.hydrate(ctx, forum.KindPost, []int64{id}, true)
	if err != nil {
		return fmt.Errorf("loading post %d: %w", id, err)
	}
	return s.ReindexDocuments(ctx, forum.KindPost, docs)
}

// hydrate loads documents of kind for ids. With placeholders set, missing
// ids yield deleted placeholders so reindex paths drop their index entries;
// without it missing ids are silently skipped, which is what rebuild wants.
func (s *Synchronizer) hydrate(ctx context.Context, kind forum.Kind, ids []int64, placeholders bool) ([]forum.Document, error) {
	if kind == forum.KindTopic {
		return s.hydrateTopics(ctx, ids, placeholders)
	}
	return s.hydratePosts(ctx, ids, placeholders)
}

func (s *Synchronizer) hydrateTopics(ctx context.Context, ids []int64, placeholders bool) ([]forum.Document, error) {
	topics, err := s.store.TopicFields(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading %d topics: %w", len(ids), err)
	}
	docs := make([]forum.Document, 0, len(ids))
	for _, id := range ids {
		t, ok := topics[id]
		if !ok {
			if placeholders {
				docs = append(docs, forum.Document{ID: id, Kind: forum.KindTopic, Deleted: true})
			}
			continue
		}
		docs = append(docs, t.Document())
	}
	return docs, nil
}

// hydratePosts resolves each post's parent topic in the same pass: the
// effective category comes from the topic, and a deleted or missing parent
// makes the post ineligible.
func (s *Synchronizer) hydratePosts(ctx context.Context, ids []int64, placeholders bool) ([]forum.Document, error) {
	posts, err := s.store.PostFields(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading %d posts: %w", len(ids), err)
	}

	tidSet := make(map[int64]struct{}, len(posts))
	tids := make([]int64, 0, len(posts))
	for _, p := range posts {
		if _, ok := tidSet[p.TopicID]; !ok {
			tidSet[p.TopicID] = struct{}{}
			tids = append(tids, p.TopicID)
		}
	}
	var parents map[int64]forum.Topic
	if len(tids) > 0 {
		parents, err = s.store.TopicFields(ctx, tids)
		if err != nil {
			return nil, fmt.Errorf("loading %d parent topics: %w", len(tids), err)
		}
	}

	docs := make([]forum.Document, 0, len(ids))
	for _, id := range ids {
		p, ok := posts[id]
		if !ok {
			if placeholders {
				docs = append(docs, forum.Document{ID: id, Kind: forum.KindPost, Deleted: true})
			}
			continue
		}
		parent, haveParent := parents[p.TopicID]
		doc := p.Document(parent.CategoryID)
		if !haveParent || parent.Deleted {
			doc.Deleted = true
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// resetWorking clears the working flag after a rebuild or clear. The write
// survives caller cancellation; if it fails anyway the flag stays set until
// the next successful run, and progress keeps reporting work in progress.
func (s *Synchronizer) resetWorking(ctx context.Context) {
	if err := s.settings.SetWorking(context.WithoutCancel(ctx), false); err != nil {
		s.logger.Error("resetting working flag", "error", err)
	}
}
