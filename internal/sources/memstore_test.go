package sources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/deepresearch/internal/config"
	"github.com/dusk-indust/deepresearch/internal/research"
)

// exerciseStore runs the behaviour every Store implementation must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.AddJob(ctx, "job-1", "heat pumps"))
	a := research.Subtopic{ID: "st-a", Text: "efficiency", Origin: research.OriginInitial, Ordinal: 1}
	b := research.Subtopic{ID: "st-b", Text: "cost", Origin: research.OriginInitial, Ordinal: 2}
	require.NoError(t, s.AddSubtopic(ctx, "job-1", a))
	require.NoError(t, s.AddSubtopic(ctx, "job-1", b))

	require.NoError(t, RecordRetrieval(ctx, s, a.ID, []research.SearchResult{
		{Title: "One", URL: "https://one.example/"},
		{Title: "Two", URL: "https://two.example"},
	}))
	require.NoError(t, RecordRetrieval(ctx, s, b.ID, []research.SearchResult{
		{Title: "Two again", URL: "https://TWO.example/"},
		{Title: "Three", URL: "https://three.example"},
		{Title: "No URL"},
	}))
	require.NoError(t, s.AddCitation(ctx, "job-1", "https://two.example"))

	ok, err := s.HasSource(ctx, "https://one.example")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.HasSource(ctx, "https://missing.example")
	require.NoError(t, err)
	assert.False(t, ok)

	srcs, err := s.Sources(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, srcs, 3)
	assert.Equal(t, "https://one.example/", srcs[0].URL, "the URL as retrieved")
	assert.Equal(t, "One", srcs[0].Title)
	assert.Equal(t, "https://two.example", srcs[1].URL)
	assert.Equal(t, "Two", srcs[1].Title, "first insert wins")
	assert.True(t, srcs[1].Cited)
	assert.False(t, srcs[2].Cited)

	other, err := s.Sources(ctx, "job-2")
	require.NoError(t, err)
	assert.Empty(t, other)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Jobs)
	assert.Equal(t, 2, st.Subtopics)
	assert.Equal(t, 3, st.Sources)
	assert.Equal(t, 4, st.Retrievals)
	assert.Equal(t, 1, st.Citations)

	// Pages that differ only by query string are distinct sources.
	require.NoError(t, s.AddJob(ctx, "job-q", "news"))
	q := research.Subtopic{ID: "st-q", Text: "outages", Origin: research.OriginInitial, Ordinal: 1}
	require.NoError(t, s.AddSubtopic(ctx, "job-q", q))
	require.NoError(t, RecordRetrieval(ctx, s, q.ID, []research.SearchResult{
		{Title: "Story 1", URL: "https://news.example/Story?id=1&q=grid"},
		{Title: "Story 2", URL: "https://news.example/Story?id=2&q=grid"},
	}))
	require.NoError(t, s.AddCitation(ctx, "job-q", "https://news.example/Story?id=2&q=grid"))

	ok, err = s.HasSource(ctx, "https://news.example/story?id=999")
	require.NoError(t, err)
	assert.False(t, ok)

	srcs, err = s.Sources(ctx, "job-q")
	require.NoError(t, err)
	require.Len(t, srcs, 2)
	assert.Equal(t, "https://news.example/Story?id=1&q=grid", srcs[0].URL)
	assert.False(t, srcs[0].Cited)
	assert.Equal(t, "https://news.example/Story?id=2&q=grid", srcs[1].URL)
	assert.True(t, srcs[1].Cited)
}

func TestMemStore(t *testing.T) {
	exerciseStore(t, NewMemStore())
}

func TestMemStore_DuplicateEdgesIgnored(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.AddSource(ctx, research.SearchResult{URL: "https://x.example"}))
	require.NoError(t, s.AddRetrieval(ctx, "st", "https://x.example"))
	require.NoError(t, s.AddRetrieval(ctx, "st", "https://X.example/"))
	require.NoError(t, s.AddCitation(ctx, "job", "https://x.example"))
	require.NoError(t, s.AddCitation(ctx, "job", "https://x.example/"))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Retrievals)
	assert.Equal(t, 1, st.Citations)
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), config.SourcesConfig{Graph: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(context.Background(), config.SourcesConfig{Graph: "neo4j"}, nil)
	assert.Error(t, err)
}
