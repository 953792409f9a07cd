package agent

import (
	"sync"

	"go.uber.org/zap"

	"github.com/dusk-indust/deepresearch/internal/llm"
)

// Registry hands out research agents, assigning subagent models from a
// pool in round-robin order. With an empty pool every agent uses the lead
// model.
type Registry struct {
	mu     sync.Mutex
	llm    llm.Client
	search Searcher
	fetch  PageFetcher
	lead   string
	pool   []string
	next   int
	logger *zap.Logger
}

// NewRegistry creates a Registry.
func NewRegistry(c llm.Client, search Searcher, leadModel string, pool []string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	var models []string
	for _, m := range pool {
		if m != "" {
			models = append(models, m)
		}
	}
	return &Registry{llm: c, search: search, lead: leadModel, pool: models, logger: logger}
}

// WithFetcher gives every spawned agent f for reading result pages. A nil
// f leaves agents on snippets only.
func (r *Registry) WithFetcher(f PageFetcher) *Registry {
	r.fetch = f
	return r
}

// NextModel returns the model for the next spawned agent.
func (r *Registry) NextModel() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pool) == 0 {
		return r.lead
	}
	m := r.pool[r.next%len(r.pool)]
	r.next++
	return m
}

// Spawn creates a research agent bound to the next model in the pool.
func (r *Registry) Spawn() *ResearchAgent {
	return NewResearchAgent(r.llm, r.search, r.NextModel(), r.logger).WithFetcher(r.fetch)
}
