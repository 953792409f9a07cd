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

const leadSystemPrompt = `You are the lead researcher of a research team. You plan the work:
you split a topic into focused, non-overlapping subtopics that together cover it,
and you decide whether gathered findings leave important gaps. Reply with JSON only.`

// LeadOptions configures a LeadResearcher.
type LeadOptions struct {
	Model         string
	MinSubtopics  int
	MaxSubtopics  int
	ScopingSearch bool
}

// LeadResearcher decomposes a topic into subtopics and decides on
// refinement rounds.
type LeadResearcher struct {
	llm    llm.Client
	search Searcher
	opts   LeadOptions
	logger *zap.Logger
}

// NewLeadResearcher creates a lead researcher. search may be nil, which
// disables the scoping search.
func NewLeadResearcher(c llm.Client, search Searcher, opts LeadOptions, logger *zap.Logger) *LeadResearcher {
	if opts.MinSubtopics <= 0 {
		opts.MinSubtopics = 2
	}
	if opts.MaxSubtopics < opts.MinSubtopics {
		opts.MaxSubtopics = max(5, opts.MinSubtopics)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeadResearcher{llm: c, search: search, opts: opts, logger: logger.Named(string(RoleLead))}
}

// Decompose splits topic into between MinSubtopics and MaxSubtopics
// subtopics, numbered from 1. A reply with too few subtopics or that cannot
// be parsed is retried once; a second failure wraps research.ErrDecomposition.
func (l *LeadResearcher) Decompose(ctx context.Context, topic string) ([]research.Subtopic, error) {
	var scoping string
	if l.opts.ScopingSearch && l.search != nil {
		results, err := l.search.Search(ctx, topic)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", research.ErrDecomposition, ctx.Err())
			}
			l.logger.Warn("scoping search failed, decomposing without it", zap.Error(err))
		} else if len(results) > 0 {
			scoping = "Preliminary search results for the topic:\n" + formatSources(results) + "\n"
		}
	}

	prompt := fmt.Sprintf(`Topic: %s

%sBreak the topic into %d to %d distinct subtopics that can be researched independently.
Reply as {"subtopics": ["...", "..."]}.`, topic, scoping, l.opts.MinSubtopics, l.opts.MaxSubtopics)

	reply := subtopicList{min: l.opts.MinSubtopics}
	err := llm.CompleteJSON(ctx, l.llm, llm.Request{
		System: leadSystemPrompt,
		Prompt: prompt,
		Model:  l.opts.Model,
	}, &reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", research.ErrDecomposition, err)
	}

	texts := dedupeTexts(reply.texts(), nil)
	if len(texts) > l.opts.MaxSubtopics {
		l.logger.Debug("truncating subtopics", zap.Int("got", len(texts)), zap.Int("max", l.opts.MaxSubtopics))
		texts = texts[:l.opts.MaxSubtopics]
	}

	out := make([]research.Subtopic, 0, len(texts))
	for i, t := range texts {
		out = append(out, research.NewSubtopic(t, research.OriginInitial, i+1))
	}
	l.logger.Info("topic decomposed", zap.String("topic", topic), zap.Int("subtopics", len(out)))
	return out, nil
}

type refinementDecision struct {
	Refine bool   `json:"refine"`
	Reason string `json:"reason"`
}

// NeedsRefinement asks whether the reports leave gaps worth another round.
func (l *LeadResearcher) NeedsRefinement(ctx context.Context, topic string, reports []research.Report) (bool, string, error) {
	if len(reports) == 0 {
		return false, "", errors.New("lead: no reports to assess")
	}
	prompt := fmt.Sprintf(`Topic: %s

Findings so far:
%s
Do these findings leave important gaps that more research should fill?
Reply as {"refine": true|false, "reason": "..."}.`, topic, formatReports(reports))

	var d refinementDecision
	if err := llm.CompleteJSON(ctx, l.llm, llm.Request{
		System: leadSystemPrompt,
		Prompt: prompt,
		Model:  l.opts.Model,
	}, &d); err != nil {
		return false, "", fmt.Errorf("lead: refinement decision: %w", err)
	}
	return d.Refine, d.Reason, nil
}

// Refine proposes up to MaxSubtopics new subtopics that do not repeat
// existing ones. Ordinals continue after the highest existing ordinal. An
// empty result means the model found nothing new to add.
func (l *LeadResearcher) Refine(ctx context.Context, topic string, existing []research.Subtopic, reports []research.Report, reason string) ([]research.Subtopic, error) {
	var covered strings.Builder
	for _, s := range existing {
		fmt.Fprintf(&covered, "- %s\n", s.Text)
	}
	prompt := fmt.Sprintf(`Topic: %s

Subtopics already researched:
%s
Findings so far:
%s
Gaps identified: %s

Propose up to %d additional subtopics that fill the gaps without repeating
the ones above. Reply as {"subtopics": ["..."]}.`,
		topic, covered.String(), formatReports(reports), reason, l.opts.MaxSubtopics)

	var reply subtopicList
	if err := llm.CompleteJSON(ctx, l.llm, llm.Request{
		System: leadSystemPrompt,
		Prompt: prompt,
		Model:  l.opts.Model,
	}, &reply); err != nil {
		return nil, fmt.Errorf("lead: refine: %w", err)
	}

	texts := dedupeTexts(reply.texts(), existing)
	if len(texts) > l.opts.MaxSubtopics {
		texts = texts[:l.opts.MaxSubtopics]
	}
	next := 1
	for _, s := range existing {
		if s.Ordinal >= next {
			next = s.Ordinal + 1
		}
	}
	out := make([]research.Subtopic, 0, len(texts))
	for i, t := range texts {
		out = append(out, research.NewSubtopic(t, research.OriginRefinement, next+i))
	}
	return out, nil
}
