package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/deepresearch/internal/llm"
	"github.com/dusk-indust/deepresearch/internal/research"
)

const researchSystemPrompt = `You are a research agent. You write a concise, factual summary of one
subtopic using only the search results you are given, and you cite the
results you rely on by URL. Never cite a URL that is not in the results.
Reply with JSON only.`

// NoSourcesNarrative is the narrative of a report whose search returned
// no results.
const NoSourcesNarrative = "No sources were found for this subtopic."

// ResearchAgent researches a single subtopic: one contextual search, an
// optional fetch of the result pages, then one LLM call that summarizes
// the results.
type ResearchAgent struct {
	llm    llm.Client
	search Searcher
	fetch  PageFetcher // nil means snippets only
	model  string
	logger *zap.Logger
}

// NewResearchAgent creates a research agent bound to model (empty means the
// client default).
func NewResearchAgent(c llm.Client, search Searcher, model string, logger *zap.Logger) *ResearchAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResearchAgent{llm: c, search: search, model: model, logger: logger.Named(string(RoleResearch))}
}

// WithFetcher makes the agent read result pages before summarizing.
func (a *ResearchAgent) WithFetcher(f PageFetcher) *ResearchAgent {
	a.fetch = f
	return a
}

// Model returns the model the agent was assigned.
func (a *ResearchAgent) Model() string { return a.model }

type reportReply struct {
	Narrative string            `json:"narrative"`
	Citations []citationReplied `json:"citations"`
}

type citationReplied struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
	Title string `json:"title"`
	Quote string `json:"quote"`
}

func (r *reportReply) Validate() error {
	if strings.TrimSpace(r.Narrative) == "" {
		return errors.New("empty narrative")
	}
	return nil
}

// Query builds the contextual search query for a subtopic.
func Query(topic string, s research.Subtopic) string {
	return strings.TrimSpace(topic + " " + s.Text)
}

// Research produces the report for s. A failed search fails the task; it is
// never replaced with an empty report.
func (a *ResearchAgent) Research(ctx context.Context, topic string, s research.Subtopic, round int) (*research.Report, error) {
	results, err := a.search.Search(ctx, Query(topic, s))
	if err != nil {
		return nil, fmt.Errorf("research %q: %w", s.Text, err)
	}

	report := &research.Report{
		SubtopicID: s.ID,
		Subtopic:   s.Text,
		Sources:    results,
		Round:      round,
	}
	if len(results) == 0 {
		report.Narrative = NoSourcesNarrative
		return report, nil
	}

	prompt := fmt.Sprintf(`Research topic: %s
Subtopic: %s

Search results:
%s
Summarize what the results say about the subtopic.
Reply as {"narrative": "...", "citations": [{"url": "...", "title": "...", "quote": "..."}]}.`,
		topic, s.Text, formatSourcesWithContent(results, a.pageText(ctx, results)))

	var reply reportReply
	if err := llm.CompleteJSON(ctx, a.llm, llm.Request{
		System: researchSystemPrompt,
		Prompt: prompt,
		Model:  a.model,
	}, &reply); err != nil {
		return nil, fmt.Errorf("research %q: %w", s.Text, err)
	}

	report.Narrative = strings.TrimSpace(reply.Narrative)
	titles := make(map[string]string, len(results))
	for _, r := range results {
		titles[r.URL] = r.Title
	}
	for _, c := range reply.Citations {
		if strings.TrimSpace(c.URL) == "" {
			continue
		}
		title := c.Title
		if title == "" {
			title = titles[c.URL]
		}
		report.Citations = append(report.Citations, research.Citation{URL: c.URL, Title: title, Quote: c.Quote})
	}
	a.logger.Debug("subtopic researched",
		zap.String("subtopic", s.Text),
		zap.String("model", a.model),
		zap.Int("sources", len(results)),
		zap.Int("citations", len(report.Citations)))
	return report, nil
}

// pageText fetches the result pages and returns the readable text of those
// that succeeded, keyed by result URL. Fetch failures only cost context.
func (a *ResearchAgent) pageText(ctx context.Context, results []research.SearchResult) map[string]string {
	if a.fetch == nil {
		return nil
	}
	urls := make([]string, 0, len(results))
	for _, r := range results {
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	text := make(map[string]string)
	for _, p := range a.fetch.FetchAll(ctx, urls) {
		if p.OK() {
			text[p.URL] = p.Content
		}
	}
	a.logger.Debug("result pages fetched", zap.Int("requested", len(urls)), zap.Int("read", len(text)))
	return text
}
