// Package agent holds the LLM-backed specialists of a research job: the
// lead researcher that plans subtopics, the research agents that work one
// subtopic each, the synthesis agent and the citation reviewer.
package agent

import (
	"context"

	"github.com/dusk-indust/deepresearch/internal/fetch"
	"github.com/dusk-indust/deepresearch/internal/research"
)

// Role identifies a specialist agent type.
type Role string

const (
	RoleLead      Role = "lead"
	RoleResearch  Role = "research"
	RoleSynthesis Role = "synthesis"
	RoleReviewer  Role = "reviewer"
)

// Searcher is the web search capability agents depend on. The search
// Dispatcher satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string) ([]research.SearchResult, error)
}

// PageFetcher downloads result pages so research agents can read more than
// the search snippet. The fetch Fetcher satisfies it.
type PageFetcher interface {
	FetchAll(ctx context.Context, urls []string) []fetch.Page
}
