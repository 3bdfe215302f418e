// Package bleve implements the index engine on embedded bleve indices, one
// per document kind, stored under a single directory. The index language
// selects the analyzer; analyzers are baked into an index at creation time,
// so a language change recreates both indices from scratch.
package bleve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	bleveindex "github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	_ "github.com/blevesearch/bleve/v2/analysis/lang/ar"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/da"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/de"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/en"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/es"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/fa"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/fi"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/fr"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/hi"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/hu"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/it"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/nl"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/no"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/pt"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/ro"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/ru"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/sv"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/tr"

	"github.com/forumkit/searchsync/internal/engine"
	"github.com/forumkit/searchsync/internal/forum"
	"github.com/forumkit/searchsync/internal/normalize"
	apperrors "github.com/forumkit/searchsync/pkg/errors"
	"github.com/forumkit/searchsync/pkg/logger"
)

// languageMarker records which language the on-disk indices were built
// with, so a boot after an unfinished language change recreates them
// instead of silently reopening mis-analyzed indices.
const languageMarker = "language"

// document is the indexed shape. Category and author go in as keyword
// terms for exact filtering.
type document struct {
	Content  string `json:"content"`
	Category string `json:"category"`
	Author   string `json:"author"`
}

// Engine holds one bleve index per document kind.
type Engine struct {
	dir    string
	logger *slog.Logger

	mu       sync.RWMutex
	language string
	topics   bleveindex.Index
	posts    bleveindex.Index
}

// New returns an Engine rooted at dir. Indices open on CreateIndices.
func New(dir string) *Engine {
	return &Engine{dir: dir, logger: logger.WithComponent("engine.bleve")}
}

// CreateIndices opens both indices, creating them when absent. When the
// on-disk indices were built for a different language they are dropped and
// recreated empty.
func (e *Engine) CreateIndices(ctx context.Context, language string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.topics != nil && e.language == language {
		return nil
	}
	if onDisk, err := e.readMarker(); err == nil && onDisk != "" && onDisk != language {
		e.logger.Warn("on-disk indices built for different language, recreating",
			"on_disk", onDisk, "configured", language)
		if err := e.dropLocked(); err != nil {
			return err
		}
	}
	return e.openLocked(language)
}

// ChangeLanguage drops both indices and recreates them empty with the new
// language's analyzer. Callers run a full reindex afterwards.
func (e *Engine) ChangeLanguage(ctx context.Context, language string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.dropLocked(); err != nil {
		return err
	}
	return e.openLocked(language)
}

// Index upserts records in one bleve batch.
func (e *Engine) Index(ctx context.Context, kind forum.Kind, records []engine.Record) error {
	if len(records) == 0 {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	idx, err := e.indexFor(kind)
	if err != nil {
		return err
	}
	batch := idx.NewBatch()
	for _, r := range records {
		doc := document{
			Content:  r.Content,
			Category: strconv.FormatInt(r.CategoryID, 10),
			Author:   strconv.FormatInt(r.AuthorID, 10),
		}
		if err := batch.Index(strconv.FormatInt(r.ID, 10), doc); err != nil {
			return fmt.Errorf("batching %s %d: %w: %w", kind, r.ID, apperrors.ErrIndexEngine, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("indexing %d %ss: %w: %w", len(records), kind, apperrors.ErrIndexEngine, err)
	}
	return nil
}

// Remove deletes ids in one bleve batch.
func (e *Engine) Remove(ctx context.Context, kind forum.Kind, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	idx, err := e.indexFor(kind)
	if err != nil {
		return err
	}
	batch := idx.NewBatch()
	for _, id := range ids {
		batch.Delete(strconv.FormatInt(id, 10))
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("removing %d %ss: %w: %w", len(ids), kind, apperrors.ErrIndexEngine, err)
	}
	return nil
}

// Search runs q against the index for kind and returns matching IDs in
// score order.
func (e *Engine) Search(ctx context.Context, kind forum.Kind, q engine.Query) ([]int64, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	idx, err := e.indexFor(kind)
	if err != nil {
		return nil, err
	}

	match := bleveindex.NewMatchQuery(q.Text)
	match.SetField("content")
	if q.Mode == engine.MatchAny {
		match.SetOperator(query.MatchQueryOperatorOr)
	} else {
		match.SetOperator(query.MatchQueryOperatorAnd)
	}

	conjuncts := []query.Query{match}
	if len(q.CategoryIDs) > 0 {
		categories := make([]query.Query, 0, len(q.CategoryIDs))
		for _, id := range q.CategoryIDs {
			tq := bleveindex.NewTermQuery(strconv.FormatInt(id, 10))
			tq.SetField("category")
			categories = append(categories, tq)
		}
		conjuncts = append(conjuncts, bleveindex.NewDisjunctionQuery(categories...))
	}
	if q.AuthorID != 0 {
		tq := bleveindex.NewTermQuery(strconv.FormatInt(q.AuthorID, 10))
		tq.SetField("author")
		conjuncts = append(conjuncts, tq)
	}

	req := bleveindex.NewSearchRequestOptions(bleveindex.NewConjunctionQuery(conjuncts...), q.Limit, 0, false)
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("searching %ss: %w: %w", kind, apperrors.ErrIndexEngine, err)
	}

	ids := make([]int64, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Close releases both indices.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeLocked()
}

func (e *Engine) indexFor(kind forum.Kind) (bleveindex.Index, error) {
	var idx bleveindex.Index
	if kind == forum.KindTopic {
		idx = e.topics
	} else {
		idx = e.posts
	}
	if idx == nil {
		return nil, fmt.Errorf("%s index not created: %w", kind, apperrors.ErrIndexEngine)
	}
	return idx, nil
}

func (e *Engine) openLocked(language string) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("creating index dir: %w", err)
	}
	m := buildMapping(language)
	topics, err := openIndex(e.topicsPath(), m)
	if err != nil {
		return fmt.Errorf("opening topic index: %w: %w", apperrors.ErrIndexEngine, err)
	}
	posts, err := openIndex(e.postsPath(), m)
	if err != nil {
		topics.Close()
		return fmt.Errorf("opening post index: %w: %w", apperrors.ErrIndexEngine, err)
	}
	if err := e.writeMarker(language); err != nil {
		topics.Close()
		posts.Close()
		return err
	}
	e.topics, e.posts, e.language = topics, posts, language
	e.logger.Info("indices ready", "dir", e.dir, "language", language,
		"analyzer", normalize.BleveAnalyzer(language))
	return nil
}

func (e *Engine) dropLocked() error {
	if err := e.closeLocked(); err != nil {
		return err
	}
	for _, path := range []string{e.topicsPath(), e.postsPath(), filepath.Join(e.dir, languageMarker)} {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("dropping %s: %w: %w", path, apperrors.ErrIndexEngine, err)
		}
	}
	return nil
}

func (e *Engine) closeLocked() error {
	var firstErr error
	for _, idx := range []bleveindex.Index{e.topics, e.posts} {
		if idx == nil {
			continue
		}
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.topics, e.posts = nil, nil
	return firstErr
}

func (e *Engine) topicsPath() string {
	return filepath.Join(e.dir, "topics.bleve")
}

func (e *Engine) postsPath() string {
	return filepath.Join(e.dir, "posts.bleve")
}

func (e *Engine) readMarker() (string, error) {
	data, err := os.ReadFile(filepath.Join(e.dir, languageMarker))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (e *Engine) writeMarker(language string) error {
	path := filepath.Join(e.dir, languageMarker)
	if err := os.WriteFile(path, []byte(language+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing language marker: %w", err)
	}
	return nil
}

func openIndex(path string, m *mapping.IndexMappingImpl) (bleveindex.Index, error) {
	idx, err := bleveindex.Open(path)
	if err == bleveindex.ErrorIndexPathDoesNotExist {
		return bleveindex.New(path, m)
	}
	return idx, err
}

func buildMapping(language string) *mapping.IndexMappingImpl {
	m := bleveindex.NewIndexMapping()
	m.DefaultAnalyzer = normalize.BleveAnalyzer(language)

	content := bleveindex.NewTextFieldMapping()
	content.Analyzer = m.DefaultAnalyzer
	content.Store = false

	doc := bleveindex.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", content)
	doc.AddFieldMappingsAt("category", bleveindex.NewKeywordFieldMapping())
	doc.AddFieldMappingsAt("author", bleveindex.NewKeywordFieldMapping())
	m.DefaultMapping = doc
	return m
}
