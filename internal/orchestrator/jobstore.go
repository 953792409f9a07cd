package orchestrator

import (
	"fmt"
	"sync"

	"github.com/dusk-indust/deepresearch/internal/research"
)

// JobStore is a concurrency-safe in-memory store of job snapshots. Jobs are
// stored in a map keyed by ID with a separate slice maintaining insertion
// order for deterministic listing.
//
// The orchestrator goroutine that owns a job is its only writer; it
// publishes snapshots with Put. Readers always receive deep copies.
type JobStore struct {
	mu       sync.RWMutex
	jobs     map[string]*research.Job
	orderIDs []string
}

// NewJobStore returns an initialized JobStore ready for use.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*research.Job),
	}
}

// Put stores a snapshot of job, replacing any earlier snapshot with the
// same ID.
func (s *JobStore) Put(job *research.Job) {
	snap := job.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[snap.ID]; !exists {
		s.orderIDs = append(s.orderIDs, snap.ID)
	}
	s.jobs[snap.ID] = snap
}

// Get returns a deep copy of the job with the given ID. The returned copy is
// safe to mutate without affecting the store.
func (s *JobStore) Get(id string) (*research.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", research.ErrJobNotFound, id)
	}
	return j.Clone(), nil
}

// List returns copies of every job in insertion order. A non-empty status
// keeps only jobs currently in that state.
func (s *JobStore) List(status research.Status) []*research.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*research.Job, 0, len(s.orderIDs))
	for _, id := range s.orderIDs {
		j := s.jobs[id]
		if status != "" && j.Status != status {
			continue
		}
		out = append(out, j.Clone())
	}
	return out
}

// Delete drops the job with the given ID and reports whether it was
// present. The orchestrator evicts terminal jobs once they are archived.
func (s *JobStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	for i, oid := range s.orderIDs {
		if oid == id {
			s.orderIDs = append(s.orderIDs[:i], s.orderIDs[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of stored jobs.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
