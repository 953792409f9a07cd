package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/deepresearch/internal/llm"
	"github.com/dusk-indust/deepresearch/internal/research"
	"github.com/dusk-indust/deepresearch/internal/sources"
)

const reviewerSystemPrompt = `You are a citation reviewer. You check that every claim in a report is
supported by the source it cites. Report only claims that are not supported.
Reply with JSON only.`

// Review is the outcome of a citation review.
type Review struct {
	Findings []research.Finding
	// LLMChecked is false when the claim-support pass was skipped or failed.
	LLMChecked bool
}

// Clean reports whether the review found nothing to fix.
func (r *Review) Clean() bool { return len(r.Findings) == 0 }

// CitationReviewer checks a draft's citations against what was retrieved.
type CitationReviewer struct {
	llm    llm.Client // nil disables the claim-support pass
	model  string
	logger *zap.Logger
}

// NewCitationReviewer creates a reviewer. A nil client limits the review to
// the deterministic checks.
func NewCitationReviewer(c llm.Client, model string, logger *zap.Logger) *CitationReviewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CitationReviewer{llm: c, model: model, logger: logger.Named(string(RoleReviewer))}
}

// Review checks draft. Deterministic checks run first: every citation URL
// must have been retrieved, and every retrieved URL cited by an input report
// must appear in the draft. The optional LLM pass then flags unsupported
// claims; if it fails, only the deterministic findings are returned.
func (r *CitationReviewer) Review(ctx context.Context, topic string, draft *research.MasterReport, retrieved []research.SearchResult, reports []research.Report) (*Review, error) {
	retrievedSet := sources.NewSet()
	for _, s := range retrieved {
		retrievedSet.Add(s.URL)
	}
	out := &Review{Findings: DeterministicFindings(draft, retrievedSet, reports)}

	if r.llm == nil {
		return out, nil
	}
	unsupported, err := r.claimSupport(ctx, topic, draft, retrieved)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("claim-support review failed, using deterministic findings only", zap.Error(err))
		return out, nil
	}
	out.LLMChecked = true
	out.Findings = append(out.Findings, unsupported...)
	return out, nil
}

// DeterministicFindings reports fabricated citations and missing sources.
func DeterministicFindings(draft *research.MasterReport, retrieved sources.Set, reports []research.Report) []research.Finding {
	var findings []research.Finding
	for _, c := range draft.Citations {
		if !retrieved.Has(c.URL) {
			findings = append(findings, research.Finding{
				Kind:       research.FindingFabricated,
				URL:        c.URL,
				Claim:      claimFor(draft.Narrative, c.Index),
				Suggestion: "remove the citation or replace it with a retrieved source",
			})
		}
	}

	cited := sources.NewSet(draft.CitedURLs()...)
	reported := sources.NewSet()
	for _, rep := range reports {
		for _, c := range rep.Citations {
			if !retrieved.Has(c.URL) || cited.Has(c.URL) || reported.Has(c.URL) {
				continue
			}
			reported.Add(c.URL)
			findings = append(findings, research.Finding{
				Kind:       research.FindingMissing,
				URL:        c.URL,
				Suggestion: fmt.Sprintf("cite the source used for %q", rep.Subtopic),
			})
		}
	}
	return findings
}

// claimFor returns the first sentence of narrative carrying marker [index].
func claimFor(narrative string, index int) string {
	for _, sentence := range sources.Sentences(narrative) {
		for _, n := range sources.Markers(sentence) {
			if n == index {
				return sentence
			}
		}
	}
	return ""
}

type claimReply struct {
	Unsupported []struct {
		Claim      string `json:"claim"`
		URL        string `json:"url"`
		Suggestion string `json:"suggestion"`
	} `json:"unsupported"`
}

func (r *CitationReviewer) claimSupport(ctx context.Context, topic string, draft *research.MasterReport, retrieved []research.SearchResult) ([]research.Finding, error) {
	var cited strings.Builder
	for _, c := range draft.Citations {
		fmt.Fprintf(&cited, "[%d] %s %s\n", c.Index, c.Title, c.URL)
	}
	prompt := fmt.Sprintf(`Research topic: %s

Report:
%s

Citations:
%s
Retrieved sources:
%s
List claims that are not supported by the source they cite.
Reply as {"unsupported": [{"claim": "...", "url": "...", "suggestion": "..."}]}.`,
		topic, draft.Narrative, cited.String(), formatSources(retrieved))

	var reply claimReply
	if err := llm.CompleteJSON(ctx, r.llm, llm.Request{
		System: reviewerSystemPrompt,
		Prompt: prompt,
		Model:  r.model,
	}, &reply); err != nil {
		return nil, err
	}
	var out []research.Finding
	for _, u := range reply.Unsupported {
		if strings.TrimSpace(u.Claim) == "" {
			continue
		}
		out = append(out, research.Finding{
			Kind:       research.FindingUnsupported,
			Claim:      u.Claim,
			URL:        u.URL,
			Suggestion: u.Suggestion,
		})
	}
	return out, nil
}
