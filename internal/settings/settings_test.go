package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forumkit/searchsync/internal/forum"
	pubsubmemory "github.com/forumkit/searchsync/internal/pubsub/memory"
	storememory "github.com/forumkit/searchsync/internal/store/memory"
	apperrors "github.com/forumkit/searchsync/pkg/errors"
)

const testChannel = "searchsync:settings"

func newManager(t *testing.T) (*Manager, *storememory.Store, *pubsubmemory.Broadcaster) {
	t.Helper()
	st := storememory.New()
	bus := pubsubmemory.New()
	return NewManager(st, bus, testChannel), st, bus
}

func TestDefaults(t *testing.T) {
	s := Defaults()
	assert.Equal(t, DefaultTopicLimit, s.TopicLimit)
	assert.Equal(t, DefaultPostLimit, s.PostLimit)
	assert.Equal(t, "en", s.Language)
	assert.Empty(t, s.ExcludedCategories)
	assert.Zero(t, s.TopicsIndexed)
	assert.Zero(t, s.PostsIndexed)
	assert.False(t, s.Working)
}

func TestLoadMissingRecordKeepsDefaults(t *testing.T) {
	mgr, _, _ := newManager(t)
	require.NoError(t, mgr.Load(context.Background()))
	assert.Equal(t, Defaults(), mgr.Current())
}

func TestLoadParsesPersistedFields(t *testing.T) {
	mgr, st, _ := newManager(t)
	ctx := context.Background()
	require.NoError(t, st.SetObject(ctx, Key, map[string]string{
		"topicLimit":        "250",
		"postLimit":         "100",
		"indexLanguage":     "de",
		"excludeCategories": `[1,"2",3]`,
		"topicsIndexed":     "42",
		"postsIndexed":      "7",
		"working":           "1",
	}))

	require.NoError(t, mgr.Load(ctx))
	s := mgr.Current()
	assert.Equal(t, 250, s.TopicLimit)
	assert.Equal(t, 100, s.PostLimit)
	assert.Equal(t, "de", s.Language)
	assert.Equal(t, []int64{1, 2, 3}, s.ExcludedCategories, "string-encoded IDs parse like numeric ones")
	assert.Equal(t, int64(42), s.TopicsIndexed)
	assert.Equal(t, int64(7), s.PostsIndexed)
	assert.True(t, s.Working)
}

func TestLoadMalformedFieldsFallBack(t *testing.T) {
	mgr, st, _ := newManager(t)
	ctx := context.Background()
	require.NoError(t, st.SetObject(ctx, Key, map[string]string{
		"topicLimit":        "abc",
		"postLimit":         "-5",
		"topicsIndexed":     "xyz",
		"excludeCategories": "{not json",
	}))

	require.NoError(t, mgr.Load(ctx), "malformed fields never fail the load")
	s := mgr.Current()
	assert.Equal(t, DefaultTopicLimit, s.TopicLimit)
	assert.Equal(t, DefaultPostLimit, s.PostLimit)
	assert.Zero(t, s.TopicsIndexed)
	assert.Empty(t, s.ExcludedCategories)
}

func TestSaveRejectsInvalidInput(t *testing.T) {
	mgr, _, _ := newManager(t)
	ctx := context.Background()

	for name, p := range map[string]Partial{
		"non-numeric topic limit": {TopicLimit: "abc"},
		"zero topic limit":        {TopicLimit: "0"},
		"negative post limit":     {PostLimit: "-3"},
		"unsupported language":    {Language: "xx"},
	} {
		err := mgr.Save(ctx, p)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, name)
	}
	assert.Equal(t, Defaults(), mgr.Current(), "rejected saves leave the record untouched")
}

func TestSavePersistsAndBroadcasts(t *testing.T) {
	st := storememory.New()
	bus := pubsubmemory.New()
	ctx := context.Background()

	saver := NewManager(st, bus, testChannel)
	watcher := NewManager(st, bus, testChannel)
	var saverUpdates, watcherUpdates int
	saver.OnUpdate(func(Settings) { saverUpdates++ })
	watcher.OnUpdate(func(Settings) { watcherUpdates++ })
	require.NoError(t, saver.Watch(ctx))
	require.NoError(t, watcher.Watch(ctx))

	require.NoError(t, saver.Save(ctx, Partial{
		TopicLimit:         "250",
		Language:           "de",
		ExcludedCategories: []int64{5, 9},
	}))

	want := Settings{
		TopicLimit:         250,
		PostLimit:          DefaultPostLimit,
		ExcludedCategories: []int64{5, 9},
		Language:           "de",
	}
	assert.Equal(t, want, saver.Current())
	assert.Equal(t, want, watcher.Current(), "broadcast replaces the remote cache wholesale")
	assert.Equal(t, 1, watcherUpdates)
	assert.Zero(t, saverUpdates, "a process skips its own broadcast")

	fresh := NewManager(st, bus, testChannel)
	require.NoError(t, fresh.Load(ctx))
	assert.Equal(t, want, fresh.Current(), "the record survives a reload from the store")
}

func TestSaveEmptyPartialIsNoop(t *testing.T) {
	st := storememory.New()
	bus := pubsubmemory.New()
	ctx := context.Background()

	saver := NewManager(st, bus, testChannel)
	watcher := NewManager(st, bus, testChannel)
	var updates int
	watcher.OnUpdate(func(Settings) { updates++ })
	require.NoError(t, watcher.Watch(ctx))

	require.NoError(t, saver.Save(ctx, Partial{}))
	assert.Zero(t, updates, "nothing to persist means nothing to broadcast")

	fields, err := st.GetObject(ctx, Key)
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestSaveExclusionListSemantics(t *testing.T) {
	mgr, _, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.Save(ctx, Partial{ExcludedCategories: []int64{3, 4}}))
	assert.Equal(t, []int64{3, 4}, mgr.Current().ExcludedCategories)

	require.NoError(t, mgr.Save(ctx, Partial{TopicLimit: "10"}))
	assert.Equal(t, []int64{3, 4}, mgr.Current().ExcludedCategories, "nil slice leaves the list unchanged")

	require.NoError(t, mgr.Save(ctx, Partial{ExcludedCategories: []int64{}}))
	assert.Empty(t, mgr.Current().ExcludedCategories, "an empty non-nil slice clears the list")
}

func TestExcludes(t *testing.T) {
	s := Settings{ExcludedCategories: []int64{2, 7}}
	assert.True(t, s.Excludes(2))
	assert.True(t, s.Excludes(7))
	assert.False(t, s.Excludes(3))
	assert.False(t, Settings{}.Excludes(2))
}

func TestLimitAndCounterForKind(t *testing.T) {
	s := Settings{TopicLimit: 11, PostLimit: 22, TopicsIndexed: 3, PostsIndexed: 4}
	assert.Equal(t, 11, s.LimitFor(forum.KindTopic))
	assert.Equal(t, 22, s.LimitFor(forum.KindPost))
	assert.Equal(t, int64(3), s.CounterFor(forum.KindTopic))
	assert.Equal(t, int64(4), s.CounterFor(forum.KindPost))
}

func TestIncrCounter(t *testing.T) {
	mgr, _, _ := newManager(t)
	ctx := context.Background()

	v, err := mgr.IncrCounter(ctx, forum.KindTopic, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = mgr.IncrCounter(ctx, forum.KindTopic, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	v, err = mgr.IncrCounter(ctx, forum.KindPost, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v, "raw counters may go negative; display clamping is separate")

	s := mgr.Current()
	assert.Equal(t, int64(5), s.TopicsIndexed)
	assert.Equal(t, int64(-1), s.PostsIndexed)
}

func TestWorkingFlagAndCounterReset(t *testing.T) {
	mgr, _, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.SetWorking(ctx, true))
	assert.True(t, mgr.Current().Working)

	_, err := mgr.IncrCounter(ctx, forum.KindTopic, 8)
	require.NoError(t, err)
	_, err = mgr.IncrCounter(ctx, forum.KindPost, 4)
	require.NoError(t, err)

	require.NoError(t, mgr.ResetCounters(ctx))
	topics, posts, working, err := mgr.Counters(ctx)
	require.NoError(t, err)
	assert.Zero(t, topics)
	assert.Zero(t, posts)
	assert.True(t, working)

	require.NoError(t, mgr.SetWorking(ctx, false))
	assert.False(t, mgr.Current().Working)
}

func TestCountersReadThroughSeesOtherProcesses(t *testing.T) {
	mgr, st, _ := newManager(t)
	ctx := context.Background()

	// Another process bumps the persisted counter directly.
	_, err := st.IncrObjectField(ctx, Key, "topicsIndexed", 17)
	require.NoError(t, err)

	topics, posts, working, err := mgr.Counters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(17), topics)
	assert.Zero(t, posts)
	assert.False(t, working)
	assert.Equal(t, int64(17), mgr.Current().TopicsIndexed, "the poll refreshes the cache")
}

func TestMalformedBroadcastIsDropped(t *testing.T) {
	mgr, _, bus := newManager(t)
	ctx := context.Background()
	require.NoError(t, mgr.Watch(ctx))

	require.NoError(t, bus.Publish(ctx, testChannel, []byte("{not json")))
	assert.Equal(t, Defaults(), mgr.Current())
}

func TestParseExcluded(t *testing.T) {
	cases := []struct {
		raw  string
		want []int64
		ok   bool
	}{
		{`[1,2,3]`, []int64{1, 2, 3}, true},
		{`["4","5"]`, []int64{4, 5}, true},
		{`[1,"2"]`, []int64{1, 2}, true},
		{`[]`, []int64{}, true},
		{`[1,"x"]`, nil, false},
		{`{"a":1}`, nil, false},
		{`nonsense`, nil, false},
	}
	for _, tc := range cases {
		got, ok := parseExcluded(tc.raw)
		assert.Equal(t, tc.ok, ok, "raw=%s", tc.raw)
		if tc.ok {
			assert.Equal(t, tc.want, got, "raw=%s", tc.raw)
		}
	}
}
