package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/deepresearch/internal/cache"
	"github.com/dusk-indust/deepresearch/internal/llm"
	"github.com/dusk-indust/deepresearch/internal/research"
	"github.com/dusk-indust/deepresearch/internal/search"
)

var (
	subtopicLine = regexp.MustCompile(`(?m)^Subtopic: (.+)$`)
	urlLine      = regexp.MustCompile(`(?m)URL: (\S+)`)
	reportCite   = regexp.MustCompile(`(?m)^- .*\((\S+)\)$`)
)

// fakeLLM answers each agent role with deterministic JSON, routed on the
// system prompt.
type fakeLLM struct {
	mu sync.Mutex

	subtopics    []string
	refine       bool
	refineWith   []string
	failResearch map[string]error // by subtopic text
	slowResearch map[string]bool  // blocks until the task context ends
	synthesize   func(prompt string) (string, error)
	revise       func(prompt string) (string, error)
	unsupported  string

	calls map[string]int
}

func (f *fakeLLM) count(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[kind]++
}

func (f *fakeLLM) Calls(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	switch {
	case strings.Contains(req.System, "lead researcher"):
		return f.lead(req.Prompt)
	case strings.Contains(req.System, "research agent"):
		return f.research(ctx, req.Prompt)
	case strings.Contains(req.System, "synthesis editor"):
		if strings.Contains(req.Prompt, "Revise the draft") {
			f.count("revise")
			if f.revise != nil {
				return text(f.revise(req.Prompt))
			}
			return text(defaultSynthesis(req.Prompt), nil)
		}
		f.count("synthesize")
		if f.synthesize != nil {
			return text(f.synthesize(req.Prompt))
		}
		return text(defaultSynthesis(req.Prompt), nil)
	case strings.Contains(req.System, "citation reviewer"):
		f.count("review")
		if f.unsupported != "" {
			return text(f.unsupported, nil)
		}
		return text(`{"unsupported": []}`, nil)
	}
	return llm.Response{}, fmt.Errorf("fakeLLM: unrouted request %q", req.System)
}

func (f *fakeLLM) lead(prompt string) (llm.Response, error) {
	switch {
	case strings.Contains(prompt, "Break the topic"):
		f.count("decompose")
		return jsonText(map[string]any{"subtopics": f.subtopics})
	case strings.Contains(prompt, "leave important gaps"):
		f.count("needs-refinement")
		return jsonText(map[string]any{"refine": f.refine, "reason": "coverage gaps"})
	case strings.Contains(prompt, "Propose up to"):
		f.count("refine")
		return jsonText(map[string]any{"subtopics": f.refineWith})
	}
	return llm.Response{}, errors.New("fakeLLM: unknown lead prompt")
}

func (f *fakeLLM) research(ctx context.Context, prompt string) (llm.Response, error) {
	f.count("research")
	m := subtopicLine.FindStringSubmatch(prompt)
	if m == nil {
		return llm.Response{}, errors.New("fakeLLM: research prompt without subtopic")
	}
	sub := m[1]
	if err := f.failResearch[sub]; err != nil {
		return llm.Response{}, err
	}
	if f.slowResearch[sub] {
		<-ctx.Done()
		return llm.Response{}, ctx.Err()
	}
	var cites []map[string]string
	for _, u := range urlLine.FindAllStringSubmatch(prompt, -1) {
		cites = append(cites, map[string]string{"url": u[1]})
	}
	return jsonText(map[string]any{
		"narrative": fmt.Sprintf("Findings about %s.", sub),
		"citations": cites,
	})
}

// defaultSynthesis cites every URL the input reports cite, one sentence
// each.
func defaultSynthesis(prompt string) string {
	var (
		narrative []string
		cites     []map[string]any
		seen      = make(map[string]bool)
	)
	for _, m := range reportCite.FindAllStringSubmatch(prompt, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		n := len(cites) + 1
		narrative = append(narrative, fmt.Sprintf("Claim %d [%d].", n, n))
		cites = append(cites, map[string]any{"index": n, "url": m[1]})
	}
	data, _ := json.Marshal(map[string]any{"narrative": strings.Join(narrative, " "), "citations": cites})
	return string(data)
}

func text(s string, err error) (llm.Response, error) {
	if err != nil {
		return llm.Response{}, err
	}
	return llm.Response{Text: s}, nil
}

func jsonText(v any) (llm.Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return llm.Response{}, err
	}
	return llm.Response{Text: string(data)}, nil
}

// fakeProvider returns one result per query at a URL derived from it.
type fakeProvider struct {
	mu    sync.Mutex
	calls int
	fail  map[string]error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Search(_ context.Context, query string) ([]research.SearchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if err := p.fail[query]; err != nil {
		return nil, err
	}
	slug := strings.ReplaceAll(strings.ToLower(query), " ", "-")
	return []research.SearchResult{{
		Title:   "About " + query,
		URL:     "https://src.example/" + slug,
		Snippet: "Snippet for " + query,
	}}, nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type harness struct {
	orch       *Orchestrator
	llm        *fakeLLM
	provider   *fakeProvider
	dispatcher *search.Dispatcher
	cache      *cache.Cache
}

func testOptions() Options {
	return Options{
		Concurrency:         5,
		MinSubtopics:        2,
		MaxSubtopics:        5,
		MaxRefinementRounds: 0,
		TaskTimeout:         5 * time.Second,
		ResearchDeadline:    10 * time.Second,
	}
}

func dispatcherOptions() search.Options {
	return search.Options{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		RequestTimeout: time.Second,
		RatePerSecond:  1000,
		Burst:          100,
		MaxQueueWait:   time.Second,
	}
}

// newHarness wires an Orchestrator to fakes. cacheDir may be shared between
// harnesses to simulate a repeat run.
func newHarness(t *testing.T, f *fakeLLM, opts Options, cacheDir string) *harness {
	t.Helper()
	c, err := cache.New(cacheDir)
	require.NoError(t, err)
	p := &fakeProvider{}
	d := search.NewDispatcher(p, c, dispatcherOptions(), nil)
	o := New(opts, Deps{LLM: f, Search: d})
	t.Cleanup(o.Close)
	return &harness{orch: o, llm: f, provider: p, dispatcher: d, cache: c}
}
