package sources

import (
	"context"
	"sort"
	"sync"

	"github.com/dusk-indust/deepresearch/internal/research"
)

var _ Store = (*MemStore)(nil)

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex.
type MemStore struct {
	mu         sync.RWMutex
	jobs       map[string]string                // id -> topic
	subtopics  map[string]string                // subtopic id -> job id
	sources    map[string]research.SearchResult // canonical url -> first result seen
	order      map[string]int                   // canonical url -> insertion sequence
	retrievals map[string][]string              // subtopic id -> canonical urls
	citations  map[string]Set                   // job id -> cited urls
	nRetrieved int
	nCited     int
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	return &MemStore{
		jobs:       make(map[string]string),
		subtopics:  make(map[string]string),
		sources:    make(map[string]research.SearchResult),
		order:      make(map[string]int),
		retrievals: make(map[string][]string),
		citations:  make(map[string]Set),
	}
}

// InitSchema is a no-op for the in-memory store.
func (m *MemStore) InitSchema(_ context.Context) error { return nil }

func (m *MemStore) AddJob(_ context.Context, jobID, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[jobID] = topic
	return nil
}

func (m *MemStore) AddSubtopic(_ context.Context, jobID string, s research.Subtopic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subtopics[s.ID] = jobID
	return nil
}

func (m *MemStore) AddSource(_ context.Context, r research.SearchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := CanonicalURL(r.URL)
	if _, ok := m.sources[key]; ok {
		return nil
	}
	m.sources[key] = r
	m.order[key] = len(m.order)
	return nil
}

func (m *MemStore) AddRetrieval(_ context.Context, subtopicID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := CanonicalURL(url)
	for _, u := range m.retrievals[subtopicID] {
		if u == key {
			return nil
		}
	}
	m.retrievals[subtopicID] = append(m.retrievals[subtopicID], key)
	m.nRetrieved++
	return nil
}

func (m *MemStore) AddCitation(_ context.Context, jobID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.citations[jobID]
	if !ok {
		set = make(Set)
		m.citations[jobID] = set
	}
	if set.Has(url) {
		return nil
	}
	set.Add(url)
	m.nCited++
	return nil
}

func (m *MemStore) HasSource(_ context.Context, url string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sources[CanonicalURL(url)]
	return ok, nil
}

func (m *MemStore) Sources(_ context.Context, jobID string) ([]Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var keys []string
	for sid, jid := range m.subtopics {
		if jid != jobID {
			continue
		}
		for _, u := range m.retrievals[sid] {
			if !seen[u] {
				seen[u] = true
				keys = append(keys, u)
			}
		}
	}
	sortByOrder(keys, m.order)

	cited := m.citations[jobID]
	out := make([]Source, 0, len(keys))
	for _, k := range keys {
		r := m.sources[k]
		_, isCited := cited[k]
		out = append(out, Source{URL: r.URL, Title: r.Title, Snippet: r.Snippet, Cited: isCited})
	}
	return out, nil
}

func (m *MemStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Stats{
		Jobs:       len(m.jobs),
		Subtopics:  len(m.subtopics),
		Sources:    len(m.sources),
		Retrievals: m.nRetrieved,
		Citations:  m.nCited,
	}, nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error { return nil }

func sortByOrder(keys []string, order map[string]int) {
	sort.Slice(keys, func(i, j int) bool { return order[keys[i]] < order[keys[j]] })
}
