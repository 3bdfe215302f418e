package bleve

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forumkit/searchsync/internal/engine"
	"github.com/forumkit/searchsync/internal/forum"
	apperrors "github.com/forumkit/searchsync/pkg/errors"
)

func newEngine(t *testing.T, language string) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	e := New(dir)
	require.NoError(t, e.CreateIndices(context.Background(), language))
	t.Cleanup(func() { e.Close() })
	return e, dir
}

func seedTopics(t *testing.T, e *Engine) {
	t.Helper()
	records := []engine.Record{
		{ID: 1, Content: "alpha release notes", CategoryID: 4, AuthorID: 7},
		{ID: 2, Content: "beta release discussion", CategoryID: 4, AuthorID: 8},
		{ID: 3, Content: "alpha feedback thread", CategoryID: 9, AuthorID: 7},
	}
	require.NoError(t, e.Index(context.Background(), forum.KindTopic, records))
}

func search(t *testing.T, e *Engine, kind forum.Kind, q engine.Query) []int64 {
	t.Helper()
	if q.Limit == 0 {
		q.Limit = 10
	}
	ids, err := e.Search(context.Background(), kind, q)
	require.NoError(t, err)
	return ids
}

func TestIndexAndSearch(t *testing.T) {
	e, _ := newEngine(t, "en")
	seedTopics(t, e)

	assert.ElementsMatch(t, []int64{1, 3}, search(t, e, forum.KindTopic, engine.Query{Text: "alpha"}))
	assert.ElementsMatch(t, []int64{1, 2, 3}, search(t, e, forum.KindTopic, engine.Query{Text: "release feedback", Mode: engine.MatchAny}))
	assert.Empty(t, search(t, e, forum.KindTopic, engine.Query{Text: "release feedback"}), "the default mode requires every word")
	assert.Equal(t, []int64{1}, search(t, e, forum.KindTopic, engine.Query{Text: "alpha release"}))
}

func TestSearchFilters(t *testing.T) {
	e, _ := newEngine(t, "en")
	seedTopics(t, e)

	assert.ElementsMatch(t, []int64{1}, search(t, e, forum.KindTopic, engine.Query{Text: "alpha", CategoryIDs: []int64{4}}))
	assert.ElementsMatch(t, []int64{1, 3}, search(t, e, forum.KindTopic, engine.Query{Text: "alpha", CategoryIDs: []int64{4, 9}}), "category filters are a disjunction")
	assert.ElementsMatch(t, []int64{1, 3}, search(t, e, forum.KindTopic, engine.Query{Text: "alpha", AuthorID: 7}))
	assert.Empty(t, search(t, e, forum.KindTopic, engine.Query{Text: "alpha", AuthorID: 8}))
	assert.Empty(t, search(t, e, forum.KindTopic, engine.Query{Text: "alpha", CategoryIDs: []int64{12}}))
}

func TestSearchLimit(t *testing.T) {
	e, _ := newEngine(t, "en")
	seedTopics(t, e)

	ids := search(t, e, forum.KindTopic, engine.Query{Text: "release", Mode: engine.MatchAny, Limit: 1})
	assert.Len(t, ids, 1)
}

func TestSearchBlankTextReturnsNothing(t *testing.T) {
	e, _ := newEngine(t, "en")
	seedTopics(t, e)

	ids, err := e.Search(context.Background(), forum.KindTopic, engine.Query{Text: "   ", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRemove(t *testing.T) {
	e, _ := newEngine(t, "en")
	seedTopics(t, e)

	require.NoError(t, e.Remove(context.Background(), forum.KindTopic, []int64{1, 3}))
	assert.Empty(t, search(t, e, forum.KindTopic, engine.Query{Text: "alpha"}))
	assert.ElementsMatch(t, []int64{2}, search(t, e, forum.KindTopic, engine.Query{Text: "beta"}))

	require.NoError(t, e.Remove(context.Background(), forum.KindTopic, []int64{99}), "removing an absent ID is not an error")
}

func TestKindsIndexSeparately(t *testing.T) {
	e, _ := newEngine(t, "en")
	ctx := context.Background()
	require.NoError(t, e.Index(ctx, forum.KindTopic, []engine.Record{{ID: 5, Content: "shared identifier"}}))
	require.NoError(t, e.Index(ctx, forum.KindPost, []engine.Record{{ID: 5, Content: "shared identifier"}}))

	require.NoError(t, e.Remove(ctx, forum.KindPost, []int64{5}))
	assert.ElementsMatch(t, []int64{5}, search(t, e, forum.KindTopic, engine.Query{Text: "shared"}))
	assert.Empty(t, search(t, e, forum.KindPost, engine.Query{Text: "shared"}))
}

func TestOperationsBeforeCreateIndicesFail(t *testing.T) {
	e := New(t.TempDir())
	ctx := context.Background()

	err := e.Index(ctx, forum.KindTopic, []engine.Record{{ID: 1, Content: "too early"}})
	assert.ErrorIs(t, err, apperrors.ErrIndexEngine)

	_, err = e.Search(ctx, forum.KindTopic, engine.Query{Text: "anything", Limit: 10})
	assert.ErrorIs(t, err, apperrors.ErrIndexEngine)
}

func TestReopenKeepsEntries(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	e := New(dir)
	require.NoError(t, e.CreateIndices(ctx, "en"))
	require.NoError(t, e.Index(ctx, forum.KindTopic, []engine.Record{{ID: 1, Content: "durable entry"}}))
	require.NoError(t, e.Close())

	reopened := New(dir)
	require.NoError(t, reopened.CreateIndices(ctx, "en"))
	defer reopened.Close()
	assert.ElementsMatch(t, []int64{1}, search(t, reopened, forum.KindTopic, engine.Query{Text: "durable"}))
}

func TestChangeLanguageRecreatesEmptyIndices(t *testing.T) {
	e, dir := newEngine(t, "en")
	seedTopics(t, e)

	require.NoError(t, e.ChangeLanguage(context.Background(), "de"))

	assert.Empty(t, search(t, e, forum.KindTopic, engine.Query{Text: "alpha"}))
	marker, err := os.ReadFile(filepath.Join(dir, languageMarker))
	require.NoError(t, err)
	assert.Equal(t, "de\n", string(marker))
}

func TestBootDropsIndicesBuiltForOtherLanguage(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	e := New(dir)
	require.NoError(t, e.CreateIndices(ctx, "en"))
	require.NoError(t, e.Index(ctx, forum.KindTopic, []engine.Record{{ID: 1, Content: "english entry"}}))
	require.NoError(t, e.Close())

	// A daemon configured for Russian must not reopen English-analyzed
	// indices.
	reopened := New(dir)
	require.NoError(t, reopened.CreateIndices(ctx, "ru"))
	defer reopened.Close()

	assert.Empty(t, search(t, reopened, forum.KindTopic, engine.Query{Text: "english"}))
	marker, err := os.ReadFile(filepath.Join(dir, languageMarker))
	require.NoError(t, err)
	assert.Equal(t, "ru\n", string(marker))
}

func TestCJKAnalyzer(t *testing.T) {
	e, _ := newEngine(t, "ja")
	require.NoError(t, e.Index(context.Background(), forum.KindTopic, []engine.Record{
		{ID: 1, Content: "日本語のテスト"},
	}))

	assert.ElementsMatch(t, []int64{1}, search(t, e, forum.KindTopic, engine.Query{Text: "日本語"}))
}
