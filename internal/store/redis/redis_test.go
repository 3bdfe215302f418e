package redis

import (
	"context"
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forumkit/searchsync/internal/forum"
	"github.com/forumkit/searchsync/pkg/config"
	pkgredis "github.com/forumkit/searchsync/pkg/redis"
)

// newTestStore connects to database 15 of a local Redis and flushes it.
// Set TEST_REDIS_ADDR to point elsewhere; without a reachable Redis the
// test skips.
func newTestStore(t *testing.T) (*Store, *pkgredis.Client) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: addr, DB: 15, PoolSize: 4})
	if err != nil {
		t.Skipf("skipping redis store test: redis unavailable: %v", err)
	}
	ctx := context.Background()
	require.NoError(t, client.RDB.FlushDB(ctx).Err())

	st := New(client)
	t.Cleanup(func() { st.Close(context.Background()) })
	return st, client
}

func TestTopicFields(t *testing.T) {
	st, client := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, client.RDB.HSet(ctx, "topic:1", map[string]any{
		"tid": "1", "cid": "4", "uid": "7", "mainPid": "10", "deleted": "0", "title": "alpha release",
	}).Err())
	require.NoError(t, client.RDB.HSet(ctx, "topic:2", map[string]any{
		"tid": "2", "cid": "5", "uid": "8", "mainPid": "20", "deleted": "1", "title": "old thread",
	}).Err())
	require.NoError(t, client.RDB.HSet(ctx, "topic:3", map[string]any{
		"tid": "3", "title": "sparse record",
	}).Err())

	topics, err := st.TopicFields(ctx, []int64{1, 2, 3, 99})
	require.NoError(t, err)
	require.Len(t, topics, 3, "missing IDs are absent, not an error")

	assert.Equal(t, forum.Topic{ID: 1, CategoryID: 4, AuthorID: 7, MainPostID: 10, Title: "alpha release"}, topics[1])
	assert.True(t, topics[2].Deleted)
	assert.Equal(t, forum.Topic{ID: 3, Title: "sparse record"}, topics[3], "absent hash fields read as zero values")
}

func TestPostFields(t *testing.T) {
	st, client := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, client.RDB.HSet(ctx, "post:11", map[string]any{
		"pid": "11", "tid": "1", "uid": "7", "deleted": "0", "content": "reply body",
	}).Err())

	posts, err := st.PostFields(ctx, []int64{11, 12})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, forum.Post{ID: 11, TopicID: 1, AuthorID: 7, Content: "reply body"}, posts[11])
}

func TestPostFieldsEmptyInput(t *testing.T) {
	st, _ := newTestStore(t)

	posts, err := st.PostFields(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestSortedSetRangeAndCard(t *testing.T) {
	st, client := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, client.RDB.ZAdd(ctx, forum.TopicSet,
		goredis.Z{Score: 10, Member: "1"},
		goredis.Z{Score: 20, Member: "2"},
		goredis.Z{Score: 30, Member: "3"},
	).Err())

	ids, err := st.SortedSetRange(ctx, forum.TopicSet, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	ids, err = st.SortedSetRange(ctx, forum.TopicSet, 2, -1)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids, "stop -1 reads to the end")

	ids, err = st.SortedSetRange(ctx, forum.TopicSet, 5, 9)
	require.NoError(t, err)
	assert.Empty(t, ids)

	n, err := st.SortedSetCard(ctx, forum.TopicSet)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = st.SortedSetCard(ctx, "nosuchset")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSortedSetRangeSkipsNonNumericMembers(t *testing.T) {
	st, client := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, client.RDB.ZAdd(ctx, forum.PostSet,
		goredis.Z{Score: 1, Member: "garbage"},
		goredis.Z{Score: 2, Member: "7"},
	).Err())

	ids, err := st.SortedSetRange(ctx, forum.PostSet, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, ids)
}

func TestObjectOperations(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	fields, err := st.GetObject(ctx, "searchsettings")
	require.NoError(t, err)
	assert.Empty(t, fields, "a missing key yields an empty map")

	require.NoError(t, st.SetObject(ctx, "searchsettings", map[string]string{"topicLimit": "250", "indexLanguage": "en"}))
	require.NoError(t, st.SetObject(ctx, "searchsettings", map[string]string{"indexLanguage": "de", "postLimit": "100"}))

	fields, err = st.GetObject(ctx, "searchsettings")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"topicLimit":    "250",
		"postLimit":     "100",
		"indexLanguage": "de",
	}, fields, "writes merge field by field")

	n, err := st.IncrObjectField(ctx, "searchsettings", "topicsIndexed", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	n, err = st.IncrObjectField(ctx, "searchsettings", "topicsIndexed", -2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestPing(t *testing.T) {
	st, _ := newTestStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}
