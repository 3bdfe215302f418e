// Package mongo implements the primary-store interface against MongoDB
// using the forum's native schema: a single objects collection keyed by
// _key, with one document per hash and one document per ordered-set member.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/forumkit/searchsync/internal/forum"
	"github.com/forumkit/searchsync/internal/store"
	pkgmongo "github.com/forumkit/searchsync/pkg/mongo"
)

const collection = "objects"

// Store reads forum documents and settings from MongoDB.
type Store struct {
	client *pkgmongo.Client
	coll   *driver.Collection
}

// New wraps an established Mongo client.
func New(client *pkgmongo.Client) *Store {
	return &Store{
		client: client,
		coll:   client.DB.Collection(collection),
	}
}

func (s *Store) TopicFields(ctx context.Context, ids []int64) (map[int64]forum.Topic, error) {
	rows, err := s.fetchRows(ctx, ids, store.TopicKey)
	if err != nil {
		return nil, fmt.Errorf("reading topic fields: %w", err)
	}
	topics := make(map[int64]forum.Topic, len(rows))
	for _, row := range rows {
		id := toInt64(row["tid"])
		if id <= 0 {
			continue
		}
		topics[id] = forum.Topic{
			ID:         id,
			CategoryID: toInt64(row["cid"]),
			AuthorID:   toInt64(row["uid"]),
			MainPostID: toInt64(row["mainPid"]),
			Deleted:    toBool(row["deleted"]),
			Title:      toString(row["title"]),
		}
	}
	return topics, nil
}

func (s *Store) PostFields(ctx context.Context, ids []int64) (map[int64]forum.Post, error) {
	rows, err := s.fetchRows(ctx, ids, store.PostKey)
	if err != nil {
		return nil, fmt.Errorf("reading post fields: %w", err)
	}
	posts := make(map[int64]forum.Post, len(rows))
	for _, row := range rows {
		id := toInt64(row["pid"])
		if id <= 0 {
			continue
		}
		posts[id] = forum.Post{
			ID:       id,
			TopicID:  toInt64(row["tid"]),
			AuthorID: toInt64(row["uid"]),
			Deleted:  toBool(row["deleted"]),
			Content:  toString(row["content"]),
		}
	}
	return posts, nil
}

func (s *Store) fetchRows(ctx context.Context, ids []int64, key func(int64) string) ([]bson.M, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	cursor, err := s.coll.Find(ctx,
		bson.M{"_key": bson.M{"$in": keys}},
		options.Find().SetProjection(bson.M{"_id": 0}),
	)
	if err != nil {
		return nil, err
	}
	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) SortedSetRange(ctx context.Context, set string, start, stop int64) ([]int64, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "score", Value: 1}, {Key: "value", Value: 1}}).
		SetSkip(start).
		SetProjection(bson.M{"_id": 0, "value": 1})
	if stop >= 0 {
		opts.SetLimit(stop - start + 1)
	}
	cursor, err := s.coll.Find(ctx, bson.M{"_key": set}, opts)
	if err != nil {
		return nil, fmt.Errorf("reading sorted set %s: %w", set, err)
	}
	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("reading sorted set %s: %w", set, err)
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		if id := toInt64(row["value"]); id > 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) SortedSetCard(ctx context.Context, set string) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"_key": set})
	if err != nil {
		return 0, fmt.Errorf("counting sorted set %s: %w", set, err)
	}
	return n, nil
}

func (s *Store) GetObject(ctx context.Context, key string) (map[string]string, error) {
	var row bson.M
	err := s.coll.FindOne(ctx, bson.M{"_key": key}).Decode(&row)
	if err != nil {
		if errors.Is(err, driver.ErrNoDocuments) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading object %s: %w", key, err)
	}
	fields := make(map[string]string, len(row))
	for f, v := range row {
		if f == "_id" || f == "_key" {
			continue
		}
		fields[f] = toString(v)
	}
	return fields, nil
}

func (s *Store) SetObject(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	set := bson.M{}
	for f, v := range fields {
		set[f] = toStored(v)
	}
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_key": key},
		bson.M{"$set": set},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("writing object %s: %w", key, err)
	}
	return nil
}

func (s *Store) IncrObjectField(ctx context.Context, key, field string, delta int64) (int64, error) {
	var row bson.M
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_key": key},
		bson.M{"$inc": bson.M{field: delta}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&row)
	if err != nil {
		return 0, fmt.Errorf("incrementing %s.%s: %w", key, field, err)
	}
	return toInt64(row[field]), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// toStored picks the BSON type for a written field. Numeric strings go in
// as numbers, matching the forum's schema and keeping $inc usable on
// counter fields it may later touch.
func toStored(v string) any {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	return v
}

// Field values written by the forum arrive as whatever BSON type its driver
// chose, so reads coerce instead of assuming.

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int32, int64, int:
		return toInt64(v) == 1
	case float64:
		return b == 1
	case string:
		return b == "1" || b == "true"
	default:
		return false
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case int32, int64, int:
		return strconv.FormatInt(toInt64(v), 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		if s {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(v)
	}
}
