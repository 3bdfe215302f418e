// Package store defines read access to the forum's primary store: typed
// document field reads, rank-paged ordered-set iteration, and the small
// object/hash operations the shared settings record is persisted with.
//
// The forum owns and mutates this data; the synchronizer only reads
// documents and never writes anything except the settings object.
package store

import (
	"context"
	"fmt"

	"github.com/forumkit/searchsync/internal/forum"
)

// Store is implemented by the Redis and Mongo backends (and by the
// in-memory store used in tests).
type Store interface {
	// TopicFields loads the indexing-relevant fields of the given topics.
	// Missing IDs are absent from the result, not an error.
	TopicFields(ctx context.Context, ids []int64) (map[int64]forum.Topic, error)

	// PostFields loads the indexing-relevant fields of the given posts.
	// Missing IDs are absent from the result, not an error.
	PostFields(ctx context.Context, ids []int64) (map[int64]forum.Post, error)

	// SortedSetRange returns the members of an ordered set by rank,
	// inclusive on both ends; stop = -1 means "to the end". Members are
	// document IDs.
	SortedSetRange(ctx context.Context, set string, start, stop int64) ([]int64, error)

	// SortedSetCard returns the cardinality of an ordered set.
	SortedSetCard(ctx context.Context, set string) (int64, error)

	// GetObject returns all fields of a stored object as strings. A
	// missing key yields an empty map, not an error.
	GetObject(ctx context.Context, key string) (map[string]string, error)

	// SetObject merges the given fields into a stored object, creating it
	// if absent.
	SetObject(ctx context.Context, key string, fields map[string]string) error

	// IncrObjectField atomically adds delta to a numeric object field and
	// returns the new value.
	IncrObjectField(ctx context.Context, key, field string, delta int64) (int64, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// TopicKey returns the object key under which the forum stores a topic.
func TopicKey(id int64) string {
	return fmt.Sprintf("topic:%d", id)
}

// PostKey returns the object key under which the forum stores a post.
func PostKey(id int64) string {
	return fmt.Sprintf("post:%d", id)
}
