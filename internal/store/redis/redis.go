// Package redis implements the primary-store interface against a Redis
// deployment using the forum's native schema: one hash per document and
// sorted sets for the ID orderings.
package redis

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/forumkit/searchsync/internal/forum"
	"github.com/forumkit/searchsync/internal/store"
	pkgredis "github.com/forumkit/searchsync/pkg/redis"
)

var topicFields = []string{"tid", "cid", "uid", "mainPid", "deleted", "title"}
var postFields = []string{"pid", "tid", "uid", "deleted", "content"}

// Store reads forum documents and settings from Redis.
type Store struct {
	client *pkgredis.Client
}

// New wraps an established Redis client.
func New(client *pkgredis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) TopicFields(ctx context.Context, ids []int64) (map[int64]forum.Topic, error) {
	rows, err := s.fetchRows(ctx, ids, store.TopicKey, topicFields)
	if err != nil {
		return nil, fmt.Errorf("reading topic fields: %w", err)
	}
	topics := make(map[int64]forum.Topic, len(rows))
	for id, row := range rows {
		topics[id] = forum.Topic{
			ID:         id,
			CategoryID: parseInt(row["cid"]),
			AuthorID:   parseInt(row["uid"]),
			MainPostID: parseInt(row["mainPid"]),
			Deleted:    parseBool(row["deleted"]),
			Title:      row["title"],
		}
	}
	return topics, nil
}

func (s *Store) PostFields(ctx context.Context, ids []int64) (map[int64]forum.Post, error) {
	rows, err := s.fetchRows(ctx, ids, store.PostKey, postFields)
	if err != nil {
		return nil, fmt.Errorf("reading post fields: %w", err)
	}
	posts := make(map[int64]forum.Post, len(rows))
	for id, row := range rows {
		posts[id] = forum.Post{
			ID:       id,
			TopicID:  parseInt(row["tid"]),
			AuthorID: parseInt(row["uid"]),
			Deleted:  parseBool(row["deleted"]),
			Content:  row["content"],
		}
	}
	return posts, nil
}

// fetchRows pipelines one HMGET per document and keeps only documents that
// exist (at least one non-nil field).
func (s *Store) fetchRows(ctx context.Context, ids []int64, key func(int64) string, fields []string) (map[int64]map[string]string, error) {
	if len(ids) == 0 {
		return map[int64]map[string]string{}, nil
	}
	cmds := make([]*goredis.SliceCmd, len(ids))
	_, err := s.client.RDB.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HMGet(ctx, key(id), fields...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rows := make(map[int64]map[string]string, len(ids))
	for i, cmd := range cmds {
		values := cmd.Val()
		row := make(map[string]string, len(fields))
		found := false
		for j, v := range values {
			if v == nil {
				continue
			}
			if sv, ok := v.(string); ok {
				row[fields[j]] = sv
				found = true
			}
		}
		if found {
			rows[ids[i]] = row
		}
	}
	return rows, nil
}

func (s *Store) SortedSetRange(ctx context.Context, set string, start, stop int64) ([]int64, error) {
	members, err := s.client.RDB.ZRange(ctx, set, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("reading sorted set %s: %w", set, err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if id := parseInt(m); id > 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) SortedSetCard(ctx context.Context, set string) (int64, error) {
	n, err := s.client.RDB.ZCard(ctx, set).Result()
	if err != nil {
		return 0, fmt.Errorf("counting sorted set %s: %w", set, err)
	}
	return n, nil
}

func (s *Store) GetObject(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.RDB.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", key, err)
	}
	return fields, nil
}

func (s *Store) SetObject(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(fields))
	for f, v := range fields {
		values[f] = v
	}
	if err := s.client.RDB.HSet(ctx, key, values).Err(); err != nil {
		return fmt.Errorf("writing object %s: %w", key, err)
	}
	return nil
}

func (s *Store) IncrObjectField(ctx context.Context, key, field string, delta int64) (int64, error) {
	n, err := s.client.RDB.HIncrBy(ctx, key, field, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing %s.%s: %w", key, field, err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Close()
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseBool(s string) bool {
	return s == "1" || s == "true"
}
