// Package memory implements the index engine in process memory. It backs
// tests and local development; matching is plain word containment rather
// than stemmed relevance, which keeps results predictable.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/forumkit/searchsync/internal/engine"
	"github.com/forumkit/searchsync/internal/forum"
	"github.com/forumkit/searchsync/internal/normalize"
)

// Engine keeps per-kind document maps guarded by one lock. The error
// fields, when set, make the corresponding operation fail; tests use them
// to exercise failure paths.
type Engine struct {
	IndexErr  error
	RemoveErr error
	SearchErr error

	mu       sync.RWMutex
	language string
	docs     map[forum.Kind]map[int64]engine.Record
}

func New() *Engine {
	return &Engine{docs: map[forum.Kind]map[int64]engine.Record{
		forum.KindTopic: {},
		forum.KindPost:  {},
	}}
}

func (e *Engine) CreateIndices(ctx context.Context, language string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.language = language
	return nil
}

// ChangeLanguage drops all entries, mirroring the embedded backend.
func (e *Engine) ChangeLanguage(ctx context.Context, language string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.language = language
	e.docs[forum.KindTopic] = map[int64]engine.Record{}
	e.docs[forum.KindPost] = map[int64]engine.Record{}
	return nil
}

func (e *Engine) Index(ctx context.Context, kind forum.Kind, records []engine.Record) error {
	if e.IndexErr != nil {
		return e.IndexErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.docs[kind][r.ID] = r
	}
	return nil
}

func (e *Engine) Remove(ctx context.Context, kind forum.Kind, ids []int64) error {
	if e.RemoveErr != nil {
		return e.RemoveErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		delete(e.docs[kind], id)
	}
	return nil
}

// Search returns IDs of documents containing the query words, newest ID
// first.
func (e *Engine) Search(ctx context.Context, kind forum.Kind, q engine.Query) ([]int64, error) {
	if e.SearchErr != nil {
		return nil, e.SearchErr
	}
	words := normalize.Words(strings.ToLower(strings.TrimSpace(q.Text)))
	if len(words) == 0 {
		return nil, nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	var ids []int64
	for id, r := range e.docs[kind] {
		if !matches(r, q, words) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	if q.Limit > 0 && len(ids) > q.Limit {
		ids = ids[:q.Limit]
	}
	return ids, nil
}

func (e *Engine) Close() error {
	return nil
}

// Language returns the language the indices were last created with.
func (e *Engine) Language() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.language
}

// Count reports how many documents of kind are indexed.
func (e *Engine) Count(kind forum.Kind) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs[kind])
}

// Has reports whether the document is indexed.
func (e *Engine) Has(kind forum.Kind, id int64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.docs[kind][id]
	return ok
}

// Content returns the indexed content of a document, "" when absent.
func (e *Engine) Content(kind forum.Kind, id int64) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.docs[kind][id].Content
}

func matches(r engine.Record, q engine.Query, words []string) bool {
	if len(q.CategoryIDs) > 0 {
		found := false
		for _, id := range q.CategoryIDs {
			if id == r.CategoryID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.AuthorID != 0 && q.AuthorID != r.AuthorID {
		return false
	}

	have := make(map[string]struct{})
	for _, w := range normalize.Words(strings.ToLower(r.Content)) {
		have[w] = struct{}{}
	}
	if q.Mode == engine.MatchAny {
		for _, w := range words {
			if _, ok := have[w]; ok {
				return true
			}
		}
		return false
	}
	for _, w := range words {
		if _, ok := have[w]; !ok {
			return false
		}
	}
	return true
}
