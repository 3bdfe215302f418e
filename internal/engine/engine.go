// Package engine defines the contract every index backend satisfies. The
// synchronizer hands backends normalized text and already-filtered records;
// backends own tokenization-for-ranking, storage, and query execution.
package engine

import (
	"context"

	"github.com/forumkit/searchsync/internal/forum"
)

// Record is one document ready for indexing. Content has been through the
// normalizer; CategoryID and AuthorID support filtered queries.
type Record struct {
	ID         int64
	Content    string
	CategoryID int64
	AuthorID   int64
}

// MatchMode selects how multiple query words combine.
type MatchMode string

const (
	// MatchAll requires every word to appear.
	MatchAll MatchMode = "all"
	// MatchAny requires at least one word to appear.
	MatchAny MatchMode = "any"
)

// Query describes one search. Zero-valued filters are inactive.
type Query struct {
	Text        string
	CategoryIDs []int64
	AuthorID    int64
	Mode        MatchMode
	Limit       int
}

// Engine indexes and searches one index per document kind. Implementations
// are safe for concurrent use. Failures carry the index-engine sentinel from
// pkg/errors so callers can classify them without knowing the backend.
type Engine interface {
	// CreateIndices ensures both per-kind indices exist, analyzed for
	// language. Idempotent.
	CreateIndices(ctx context.Context, language string) error

	// ChangeLanguage switches both indices to a new language. Indexed
	// entries may be dropped in the process; run a full reindex after.
	ChangeLanguage(ctx context.Context, language string) error

	// Index upserts records into the index for kind. Re-indexing an ID
	// replaces its previous entry.
	Index(ctx context.Context, kind forum.Kind, records []Record) error

	// Remove deletes the given IDs from the index for kind. Unknown IDs
	// are not an error.
	Remove(ctx context.Context, kind forum.Kind, ids []int64) error

	// Search returns the IDs of documents matching q, best match first,
	// at most q.Limit of them. An empty query matches nothing.
	Search(ctx context.Context, kind forum.Kind, q Query) ([]int64, error)

	Close() error
}
