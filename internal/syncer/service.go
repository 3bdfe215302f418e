package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/forumkit/searchsync/internal/engine"
	"github.com/forumkit/searchsync/internal/forum"
	"github.com/forumkit/searchsync/internal/normalize"
	"github.com/forumkit/searchsync/internal/settings"
	"github.com/forumkit/searchsync/internal/store"
	apperrors "github.com/forumkit/searchsync/pkg/errors"
	"github.com/forumkit/searchsync/pkg/logger"
	"github.com/forumkit/searchsync/pkg/metrics"
)

// Service is the administrative surface of the daemon: settings, language,
// search, progress, and the rebuild and clear triggers. Control RPC
// handlers bind straight onto these methods. Rebuild and clear return
// before the work completes; callers observe completion through Progress.
type Service struct {
	runCtx   context.Context
	sync     *Synchronizer
	store    store.Store
	engine   engine.Engine
	settings *settings.Manager
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService wires the Service. runCtx bounds background rebuilds to the
// daemon lifetime; request contexts would cancel them as soon as the
// triggering RPC returned.
func NewService(runCtx context.Context, sync *Synchronizer, st store.Store, eng engine.Engine, mgr *settings.Manager, m *metrics.Metrics) *Service {
	return &Service{
		runCtx:   runCtx,
		sync:     sync,
		store:    st,
		engine:   eng,
		settings: mgr,
		metrics:  m,
		logger:   logger.WithComponent("service"),
	}
}

// Progress re-reads the persisted counters and both set cardinalities and
// returns the clamped view.
func (s *Service) Progress(ctx context.Context) (Progress, error) {
	topicsIndexed, postsIndexed, working, err := s.settings.Counters(ctx)
	if err != nil {
		return Progress{}, err
	}
	topicTotal, err := s.store.SortedSetCard(ctx, forum.TopicSet)
	if err != nil {
		return Progress{}, fmt.Errorf("counting topics: %w", err)
	}
	postTotal, err := s.store.SortedSetCard(ctx, forum.PostSet)
	if err != nil {
		return Progress{}, fmt.Errorf("counting posts: %w", err)
	}
	return Progress{
		Topics:  progressOf(topicsIndexed, topicTotal),
		Posts:   progressOf(postsIndexed, postTotal),
		Working: working,
	}, nil
}

// StartRebuild kicks off a full reindex in the background.
func (s *Service) StartRebuild() error {
	return s.sync.StartFullReindex(s.runCtx)
}

// StartClear kicks off a full clear in the background.
func (s *Service) StartClear() error {
	return s.sync.StartFullClear(s.runCtx)
}

// ReindexTopic re-evaluates one topic and its posts synchronously.
func (s *Service) ReindexTopic(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("topic id %d: %w", id, apperrors.ErrInvalidInput)
	}
	return s.sync.ReindexTopic(ctx, id)
}

// ReindexPost re-evaluates one post synchronously.
func (s *Service) ReindexPost(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("post id %d: %w", id, apperrors.ErrInvalidInput)
	}
	return s.sync.ReindexPost(ctx, id)
}

// Search queries the index for kind. A non-positive limit takes the
// configured per-kind result limit.
func (s *Service) Search(ctx context.Context, kind forum.Kind, q engine.Query) ([]int64, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown document kind %q: %w", kind, apperrors.ErrInvalidInput)
	}
	switch q.Mode {
	case "":
		q.Mode = engine.MatchAll
	case engine.MatchAll, engine.MatchAny:
	default:
		return nil, fmt.Errorf("unknown match mode %q: %w", q.Mode, apperrors.ErrInvalidInput)
	}
	if q.Limit <= 0 {
		q.Limit = s.settings.Current().LimitFor(kind)
	}

	start := time.Now()
	ids, err := s.engine.Search(ctx, kind, q)
	s.metrics.SearchLatency.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(string(kind), status).Inc()
	return ids, err
}

// CurrentSettings returns the cached settings snapshot.
func (s *Service) CurrentSettings() settings.Settings {
	return s.settings.Current()
}

// SaveSettings validates and persists a partial settings update and
// broadcasts the result.
func (s *Service) SaveSettings(ctx context.Context, p settings.Partial) error {
	return s.settings.Save(ctx, p)
}

// ChangeLanguage persists the new index language and switches the engine's
// analyzers. Existing entries may drop out of the index in the process;
// run a rebuild afterwards to repopulate.
func (s *Service) ChangeLanguage(ctx context.Context, lang string) error {
	if !normalize.Supported(lang) {
		return fmt.Errorf("unsupported index language %q: %w", lang, apperrors.ErrInvalidInput)
	}
	if err := s.settings.Save(ctx, settings.Partial{Language: lang}); err != nil {
		return err
	}
	if err := s.engine.ChangeLanguage(ctx, lang); err != nil {
		return err
	}
	s.logger.Info("index language changed", "language", lang)
	return nil
}
