package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/deepresearch/internal/fetch"
	"github.com/dusk-indust/deepresearch/internal/llm"
	"github.com/dusk-indust/deepresearch/internal/research"
	"github.com/dusk-indust/deepresearch/internal/sources"
)

// scriptedLLM replays replies in order and records every request.
type scriptedLLM struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	requests []llm.Request
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return llm.Response{}, s.errs[i]
	}
	if i >= len(s.replies) {
		return llm.Response{}, errors.New("scriptedLLM: no reply scripted")
	}
	return llm.Response{Text: s.replies[i]}, nil
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// fakeSearch returns fixed results per query, or err.
type fakeSearch struct {
	mu      sync.Mutex
	results []research.SearchResult
	err     error
	queries []string
}

func (f *fakeSearch) Search(_ context.Context, query string) ([]research.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

// Compile-time interface check.
var _ llm.Client = (*scriptedLLM)(nil)

func leadOpts() LeadOptions {
	return LeadOptions{MinSubtopics: 2, MaxSubtopics: 3, ScopingSearch: true}
}

func TestDecompose(t *testing.T) {
	c := &scriptedLLM{replies: []string{
		`{"subtopics": ["Efficiency", "efficiency ", "Cost", "Installation", "Noise"]}`,
	}}
	s := &fakeSearch{results: []research.SearchResult{{Title: "HP", URL: "https://hp.example"}}}
	lead := NewLeadResearcher(c, s, leadOpts(), nil)

	subs, err := lead.Decompose(context.Background(), "heat pumps")
	require.NoError(t, err)

	require.Len(t, subs, 3, "duplicates removed, extras truncated")
	assert.Equal(t, []string{"Efficiency", "Cost", "Installation"}, []string{subs[0].Text, subs[1].Text, subs[2].Text})
	for i, st := range subs {
		assert.Equal(t, i+1, st.Ordinal)
		assert.Equal(t, research.OriginInitial, st.Origin)
		assert.NotEmpty(t, st.ID)
	}
	assert.Equal(t, []string{"heat pumps"}, s.queries)
	assert.Contains(t, c.requests[0].Prompt, "https://hp.example")
	assert.True(t, c.requests[0].JSON)
}

func TestDecompose_BareArrayAndObjects(t *testing.T) {
	c := &scriptedLLM{replies: []string{`[{"title": "A"}, "B"]`}}
	lead := NewLeadResearcher(c, nil, leadOpts(), nil)

	subs, err := lead.Decompose(context.Background(), "topic")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "A", subs[0].Text)
	assert.Equal(t, "B", subs[1].Text)
}

func TestDecompose_RetriesOnceWhenTooFew(t *testing.T) {
	c := &scriptedLLM{replies: []string{
		`{"subtopics": []}`,
		`{"subtopics": ["A", "B"]}`,
	}}
	lead := NewLeadResearcher(c, nil, leadOpts(), nil)

	subs, err := lead.Decompose(context.Background(), "topic")
	require.NoError(t, err)
	assert.Len(t, subs, 2)
	assert.Equal(t, 2, c.calls())
}

func TestDecompose_SecondFailureIsDecompositionError(t *testing.T) {
	c := &scriptedLLM{replies: []string{"no json", `{"subtopics": ["only one"]}`}}
	lead := NewLeadResearcher(c, nil, leadOpts(), nil)

	_, err := lead.Decompose(context.Background(), "topic")
	require.Error(t, err)
	assert.ErrorIs(t, err, research.ErrDecomposition)
	assert.ErrorIs(t, err, research.ErrMalformedOutput)
	assert.Equal(t, 2, c.calls())
}

func TestDecompose_ScopingSearchFailureIgnored(t *testing.T) {
	c := &scriptedLLM{replies: []string{`{"subtopics": ["A", "B"]}`}}
	s := &fakeSearch{err: research.ErrSearchUnavailable}
	lead := NewLeadResearcher(c, s, leadOpts(), nil)

	subs, err := lead.Decompose(context.Background(), "topic")
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestNeedsRefinement(t *testing.T) {
	c := &scriptedLLM{replies: []string{`{"refine": true, "reason": "no cost data"}`}}
	lead := NewLeadResearcher(c, nil, leadOpts(), nil)

	refine, reason, err := lead.NeedsRefinement(context.Background(), "topic", []research.Report{{Subtopic: "A", Narrative: "n"}})
	require.NoError(t, err)
	assert.True(t, refine)
	assert.Equal(t, "no cost data", reason)

	_, _, err = lead.NeedsRefinement(context.Background(), "topic", nil)
	assert.Error(t, err)
}

func TestRefine(t *testing.T) {
	existing := []research.Subtopic{
		research.NewSubtopic("Efficiency", research.OriginInitial, 1),
		research.NewSubtopic("Cost", research.OriginInitial, 2),
	}
	c := &scriptedLLM{replies: []string{`{"subtopics": ["cost", "Grid impact", "Subsidies"]}`}}
	lead := NewLeadResearcher(c, nil, leadOpts(), nil)

	subs, err := lead.Refine(context.Background(), "heat pumps", existing, nil, "gaps")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "Grid impact", subs[0].Text)
	assert.Equal(t, 3, subs[0].Ordinal)
	assert.Equal(t, 4, subs[1].Ordinal)
	assert.Equal(t, research.OriginRefinement, subs[1].Origin)
}

func TestResearchAgent_Research(t *testing.T) {
	s := &fakeSearch{results: []research.SearchResult{
		{Title: "COP explained", URL: "https://energy.example/cop", Snippet: "COP of 3-4"},
	}}
	c := &scriptedLLM{replies: []string{
		`{"narrative": "Heat pumps reach a COP of 3 to 4.", "citations": [{"url": "https://energy.example/cop", "quote": "COP of 3-4"}, {"url": ""}]}`,
	}}
	a := NewResearchAgent(c, s, "qwen3", nil)
	st := research.NewSubtopic("efficiency", research.OriginInitial, 1)

	rep, err := a.Research(context.Background(), "heat pumps", st, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"heat pumps efficiency"}, s.queries)
	assert.Equal(t, st.ID, rep.SubtopicID)
	assert.Equal(t, "efficiency", rep.Subtopic)
	assert.Equal(t, 1, rep.Round)
	assert.Equal(t, "Heat pumps reach a COP of 3 to 4.", rep.Narrative)
	require.Len(t, rep.Citations, 1)
	assert.Equal(t, "COP explained", rep.Citations[0].Title, "title filled from the search result")
	assert.Len(t, rep.Sources, 1)
	assert.Equal(t, "qwen3", c.requests[0].Model)
}

// fakePages serves canned page text and records the URLs requested.
type fakePages struct {
	mu     sync.Mutex
	text   map[string]string
	failed map[string]error
	urls   []string
}

func (f *fakePages) FetchAll(_ context.Context, urls []string) []fetch.Page {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, urls...)
	var out []fetch.Page
	for _, u := range urls {
		out = append(out, fetch.Page{URL: u, Content: f.text[u], Err: f.failed[u]})
	}
	return out
}

func TestResearchAgent_ReadsFetchedPages(t *testing.T) {
	s := &fakeSearch{results: []research.SearchResult{
		{Title: "COP explained", URL: "https://energy.example/cop", Snippet: "COP of 3-4"},
		{Title: "Blocked mirror", URL: "https://r.jina.ai/https://energy.example/cop"},
		{Title: "No URL"},
	}}
	pages := &fakePages{
		text:   map[string]string{"https://energy.example/cop": "Field trials measured a seasonal COP of 3.2.\nCold snaps lowered it."},
		failed: map[string]error{"https://r.jina.ai/https://energy.example/cop": fetch.ErrBlocked},
	}
	c := &scriptedLLM{replies: []string{`{"narrative": "Seasonal COP is about 3.2.", "citations": [{"url": "https://energy.example/cop"}]}`}}
	a := NewResearchAgent(c, s, "", nil).WithFetcher(pages)

	rep, err := a.Research(context.Background(), "heat pumps", research.NewSubtopic("efficiency", research.OriginInitial, 1), 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://energy.example/cop", "https://r.jina.ai/https://energy.example/cop"}, pages.urls)
	prompt := c.requests[0].Prompt
	assert.Contains(t, prompt, "Page content:\n      Field trials measured a seasonal COP of 3.2.\n      Cold snaps lowered it.")
	assert.Equal(t, 1, strings.Count(prompt, "Page content:"))
	require.Len(t, rep.Sources, 3)
	assert.Equal(t, "Seasonal COP is about 3.2.", rep.Narrative)
}

func TestResearchAgent_WithoutFetcherUsesSnippets(t *testing.T) {
	s := &fakeSearch{results: []research.SearchResult{{Title: "COP", URL: "https://energy.example/cop", Snippet: "COP of 3-4"}}}
	c := &scriptedLLM{replies: []string{`{"narrative": "ok"}`}}
	a := NewResearchAgent(c, s, "", nil)

	_, err := a.Research(context.Background(), "t", research.NewSubtopic("s", research.OriginInitial, 1), 1)
	require.NoError(t, err)
	assert.NotContains(t, c.requests[0].Prompt, "Page content:")
	assert.Contains(t, c.requests[0].Prompt, "COP of 3-4")
}

func TestRegistry_SpawnPassesFetcher(t *testing.T) {
	pages := &fakePages{}
	r := NewRegistry(&scriptedLLM{}, &fakeSearch{}, "lead", nil, nil).WithFetcher(pages)
	assert.Same(t, pages, r.Spawn().fetch)
	assert.Nil(t, NewRegistry(&scriptedLLM{}, &fakeSearch{}, "lead", nil, nil).Spawn().fetch)
}

func TestResearchAgent_SearchFailureFailsTask(t *testing.T) {
	s := &fakeSearch{err: fmt.Errorf("search: %w", research.ErrSearchUnavailable)}
	c := &scriptedLLM{}
	a := NewResearchAgent(c, s, "", nil)

	_, err := a.Research(context.Background(), "t", research.NewSubtopic("s", research.OriginInitial, 1), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, research.ErrSearchUnavailable)
	assert.Zero(t, c.calls())
}

func TestResearchAgent_EmptyResults(t *testing.T) {
	s := &fakeSearch{results: []research.SearchResult{}}
	c := &scriptedLLM{}
	a := NewResearchAgent(c, s, "", nil)

	rep, err := a.Research(context.Background(), "t", research.NewSubtopic("s", research.OriginInitial, 1), 1)
	require.NoError(t, err)
	assert.Equal(t, NoSourcesNarrative, rep.Narrative)
	assert.Empty(t, rep.Citations)
	assert.Zero(t, c.calls())
}

func TestResearchAgent_MalformedRetriedOnce(t *testing.T) {
	s := &fakeSearch{results: []research.SearchResult{{URL: "https://a.example"}}}
	c := &scriptedLLM{replies: []string{`{"narrative": ""}`, `{"narrative": "ok", "citations": []}`}}
	a := NewResearchAgent(c, s, "", nil)

	rep, err := a.Research(context.Background(), "t", research.NewSubtopic("s", research.OriginInitial, 1), 1)
	require.NoError(t, err)
	assert.Equal(t, "ok", rep.Narrative)
	assert.Equal(t, 2, c.calls())
}

func TestSynthesize_DedupesAndRenumbers(t *testing.T) {
	c := &scriptedLLM{replies: []string{`{
		"narrative": "Efficient [1]. Cheap over time [3]. Also efficient [2].",
		"citations": [
			{"index": 1, "url": "https://a.example/page", "title": "A"},
			{"index": 2, "url": "https://A.example/page/"},
			{"index": 3, "url": "https://b.example", "title": "B"}
		]}`}}
	s := NewSynthesisAgent(c, "", nil)

	m, err := s.Synthesize(context.Background(), "topic", []research.Report{{Subtopic: "x", Narrative: "y"}})
	require.NoError(t, err)

	assert.Equal(t, "Efficient [1]. Cheap over time [2]. Also efficient [1].", m.Narrative)
	require.Len(t, m.Citations, 2)
	assert.Equal(t, "https://b.example", m.Citations[1].URL)
	assert.Equal(t, 2, m.Citations[1].Index)
	assert.Equal(t, research.ReviewPending, m.Review)
}

func TestSynthesize_FailureIsSynthesisError(t *testing.T) {
	c := &scriptedLLM{errs: []error{research.ErrLLMUnavailable}}
	s := NewSynthesisAgent(c, "", nil)

	_, err := s.Synthesize(context.Background(), "topic", []research.Report{{Narrative: "y"}})
	assert.ErrorIs(t, err, research.ErrSynthesis)
	assert.ErrorIs(t, err, research.ErrLLMUnavailable)

	_, err = s.Synthesize(context.Background(), "topic", nil)
	assert.ErrorIs(t, err, research.ErrNoReports)
}

func TestRevise(t *testing.T) {
	c := &scriptedLLM{replies: []string{`{"narrative": "Fixed [1].", "citations": [{"index": 1, "url": "https://a.example"}]}`}}
	s := NewSynthesisAgent(c, "", nil)
	draft := &research.MasterReport{Narrative: "Bad [1].", Citations: []research.Citation{{Index: 1, URL: "https://fake.example"}}}

	m, err := s.Revise(context.Background(), "topic", draft,
		[]research.Finding{{Kind: research.FindingFabricated, URL: "https://fake.example"}},
		[]research.SearchResult{{URL: "https://a.example"}})
	require.NoError(t, err)
	assert.Equal(t, "Fixed [1].", m.Narrative)
	assert.Contains(t, c.requests[0].Prompt, "fabricated-citation https://fake.example")
}

func reviewFixture() (*research.MasterReport, []research.SearchResult, []research.Report) {
	draft := &research.MasterReport{
		Narrative: "Real claim [1]. Invented claim [2].",
		Citations: []research.Citation{
			{Index: 1, URL: "https://real.example/a"},
			{Index: 2, URL: "https://invented.example"},
		},
	}
	retrieved := []research.SearchResult{
		{URL: "https://real.example/a"},
		{URL: "https://real.example/b"},
		{URL: "https://real.example/c"},
	}
	reports := []research.Report{
		{Subtopic: "one", Citations: []research.Citation{{URL: "https://real.example/a"}, {URL: "https://real.example/b/"}}},
		{Subtopic: "two", Citations: []research.Citation{{URL: "https://real.example/b"}, {URL: "https://elsewhere.example"}}},
	}
	return draft, retrieved, reports
}

func TestReviewer_DeterministicFindings(t *testing.T) {
	draft, retrieved, reports := reviewFixture()
	r := NewCitationReviewer(nil, "", nil)

	review, err := r.Review(context.Background(), "topic", draft, retrieved, reports)
	require.NoError(t, err)
	assert.False(t, review.LLMChecked)
	require.Len(t, review.Findings, 2)

	assert.Equal(t, research.FindingFabricated, review.Findings[0].Kind)
	assert.Equal(t, "https://invented.example", review.Findings[0].URL)
	assert.Equal(t, "Invented claim [2].", review.Findings[0].Claim)

	assert.Equal(t, research.FindingMissing, review.Findings[1].Kind)
	assert.Equal(t, "https://real.example/b/", review.Findings[1].URL)
}

func TestReviewer_CleanDraft(t *testing.T) {
	draft := &research.MasterReport{Narrative: "Claim [1].", Citations: []research.Citation{{Index: 1, URL: "https://a.example"}}}
	findings := DeterministicFindings(draft, sources.NewSet("https://a.example"), nil)
	assert.Empty(t, findings)
}

func TestReviewer_QueryStringURLMustMatchExactly(t *testing.T) {
	draft := &research.MasterReport{
		Narrative: "Outages rose [1]. Repairs lagged [2].",
		Citations: []research.Citation{
			{Index: 1, URL: "https://news.example/Story?id=1&q=outage"},
			{Index: 2, URL: "https://news.example/story?id=999"},
		},
	}
	retrieved := []research.SearchResult{
		{URL: "https://news.example/Story?id=1&q=outage"},
		{URL: "https://news.example/Story?id=2&q=outage"},
	}
	r := NewCitationReviewer(nil, "", nil)

	review, err := r.Review(context.Background(), "outages", draft, retrieved, nil)
	require.NoError(t, err)
	require.Len(t, review.Findings, 1)
	assert.Equal(t, research.FindingFabricated, review.Findings[0].Kind)
	assert.Equal(t, "https://news.example/story?id=999", review.Findings[0].URL)
	assert.Equal(t, "Repairs lagged [2].", review.Findings[0].Claim)
}

func TestReviewer_LLMUnsupportedClaims(t *testing.T) {
	draft, retrieved, reports := reviewFixture()
	c := &scriptedLLM{replies: []string{`{"unsupported": [{"claim": "Real claim", "url": "https://real.example/a", "suggestion": "soften"}, {"claim": ""}]}`}}
	r := NewCitationReviewer(c, "", nil)

	review, err := r.Review(context.Background(), "topic", draft, retrieved, reports)
	require.NoError(t, err)
	assert.True(t, review.LLMChecked)
	require.Len(t, review.Findings, 3)
	assert.Equal(t, research.FindingUnsupported, review.Findings[2].Kind)
	assert.Equal(t, "soften", review.Findings[2].Suggestion)
}

func TestReviewer_LLMFailureKeepsDeterministicFindings(t *testing.T) {
	draft, retrieved, reports := reviewFixture()
	c := &scriptedLLM{errs: []error{research.ErrLLMUnavailable}}
	r := NewCitationReviewer(c, "", nil)

	review, err := r.Review(context.Background(), "topic", draft, retrieved, reports)
	require.NoError(t, err)
	assert.False(t, review.LLMChecked)
	assert.Len(t, review.Findings, 2)
}

func TestRegistry_RoundRobin(t *testing.T) {
	r := NewRegistry(&scriptedLLM{}, &fakeSearch{}, "lead", []string{"a", "", "b"}, nil)
	var got []string
	for i := 0; i < 5; i++ {
		got = append(got, r.Spawn().Model())
	}
	assert.Equal(t, []string{"a", "b", "a", "b", "a"}, got)

	empty := NewRegistry(&scriptedLLM{}, &fakeSearch{}, "lead", nil, nil)
	assert.Equal(t, "lead", empty.NextModel())
}

func TestQuery(t *testing.T) {
	st := research.Subtopic{Text: "installation cost"}
	assert.Equal(t, "heat pumps installation cost", Query("heat pumps", st))
	assert.True(t, strings.HasPrefix(Query("heat pumps", st), "heat pumps "))
}
