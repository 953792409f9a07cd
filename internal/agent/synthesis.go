package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/deepresearch/internal/llm"
	"github.com/dusk-indust/deepresearch/internal/research"
	"github.com/dusk-indust/deepresearch/internal/sources"
)

const synthesisSystemPrompt = `You are the synthesis editor of a research team. You merge subtopic
findings into one coherent report. Mark every claim with numbered citations
like [1] that refer to the citation list you return. Only cite URLs that
appear in the findings. Reply with JSON only.`

// SynthesisAgent merges subtopic reports into a cited master report.
type SynthesisAgent struct {
	llm    llm.Client
	model  string
	logger *zap.Logger
}

// NewSynthesisAgent creates a synthesis agent.
func NewSynthesisAgent(c llm.Client, model string, logger *zap.Logger) *SynthesisAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SynthesisAgent{llm: c, model: model, logger: logger.Named(string(RoleSynthesis))}
}

type masterReply struct {
	Narrative string            `json:"narrative"`
	Citations []citationReplied `json:"citations"`
}

func (m *masterReply) Validate() error {
	if strings.TrimSpace(m.Narrative) == "" {
		return errors.New("empty narrative")
	}
	return nil
}

// toMaster deduplicates the reply's citations by normalized URL, renumbers
// them 1..n and rewrites the narrative markers to match.
func (m *masterReply) toMaster() *research.MasterReport {
	cits := make([]research.Citation, 0, len(m.Citations))
	for i, c := range m.Citations {
		idx := c.Index
		if idx == 0 {
			idx = i + 1
		}
		cits = append(cits, research.Citation{Index: idx, URL: c.URL, Title: c.Title, Quote: c.Quote})
	}
	deduped, mapping := sources.Dedupe(cits)
	return &research.MasterReport{
		Narrative: sources.Renumber(strings.TrimSpace(m.Narrative), mapping),
		Citations: deduped,
		Review:    research.ReviewPending,
	}
}

// Synthesize produces the draft master report. Any failure wraps
// research.ErrSynthesis.
func (s *SynthesisAgent) Synthesize(ctx context.Context, topic string, reports []research.Report) (*research.MasterReport, error) {
	if len(reports) == 0 {
		return nil, fmt.Errorf("%w: %w", research.ErrSynthesis, research.ErrNoReports)
	}
	prompt := fmt.Sprintf(`Research topic: %s

Subtopic findings:
%s
Write the master report.
Reply as {"narrative": "... [1] ...", "citations": [{"index": 1, "url": "...", "title": "..."}]}.`,
		topic, formatReports(reports))

	var reply masterReply
	if err := llm.CompleteJSON(ctx, s.llm, llm.Request{
		System: synthesisSystemPrompt,
		Prompt: prompt,
		Model:  s.model,
	}, &reply); err != nil {
		return nil, fmt.Errorf("%w: %w", research.ErrSynthesis, err)
	}
	m := reply.toMaster()
	s.logger.Info("draft synthesized", zap.Int("reports", len(reports)), zap.Int("citations", len(m.Citations)))
	return m, nil
}

// Revise asks for one corrected version of draft that addresses findings
// using only the retrieved sources.
func (s *SynthesisAgent) Revise(ctx context.Context, topic string, draft *research.MasterReport, findings []research.Finding, retrieved []research.SearchResult) (*research.MasterReport, error) {
	var issues strings.Builder
	for _, f := range findings {
		fmt.Fprintf(&issues, "- %s", f.Kind)
		if f.URL != "" {
			fmt.Fprintf(&issues, " %s", f.URL)
		}
		if f.Claim != "" {
			fmt.Fprintf(&issues, ": %q", f.Claim)
		}
		if f.Suggestion != "" {
			fmt.Fprintf(&issues, " (%s)", f.Suggestion)
		}
		issues.WriteString("\n")
	}
	var cited strings.Builder
	for _, c := range draft.Citations {
		fmt.Fprintf(&cited, "[%d] %s %s\n", c.Index, c.Title, c.URL)
	}

	prompt := fmt.Sprintf(`Research topic: %s

Draft report:
%s

Draft citations:
%s
Review findings:
%s
Sources that were actually retrieved:
%s
Revise the draft so that it fixes every finding. Remove claims whose source
was not retrieved and cite retrieved sources that are missing.
Reply as {"narrative": "...", "citations": [{"index": 1, "url": "...", "title": "..."}]}.`,
		topic, draft.Narrative, cited.String(), issues.String(), formatSources(retrieved))

	var reply masterReply
	if err := llm.CompleteJSON(ctx, s.llm, llm.Request{
		System: synthesisSystemPrompt,
		Prompt: prompt,
		Model:  s.model,
	}, &reply); err != nil {
		return nil, fmt.Errorf("synthesis: revise: %w", err)
	}
	return reply.toMaster(), nil
}
