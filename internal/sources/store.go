package sources

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/dusk-indust/deepresearch/internal/config"
	"github.com/dusk-indust/deepresearch/internal/research"
)

// Source is a retrieved web page as seen by one job.
type Source struct {
	URL     string `json:"url"` // normalized
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Cited   bool   `json:"cited"`
}

// Stats counts nodes and edges in the source graph.
type Stats struct {
	Jobs       int `json:"jobs"`
	Subtopics  int `json:"subtopics"`
	Sources    int `json:"sources"`
	Retrievals int `json:"retrievals"`
	Citations  int `json:"citations"`
}

// Store is the source graph: jobs own subtopics, subtopics retrieve
// sources, and a job's master report cites sources.
// Implementations: MemStore (default), KuzuStore (cgo).
type Store interface {
	io.Closer

	InitSchema(ctx context.Context) error

	AddJob(ctx context.Context, jobID, topic string) error
	AddSubtopic(ctx context.Context, jobID string, s research.Subtopic) error
	// AddSource inserts a source keyed by its normalized URL. Adding the
	// same URL again is a no-op.
	AddSource(ctx context.Context, r research.SearchResult) error
	AddRetrieval(ctx context.Context, subtopicID, url string) error
	AddCitation(ctx context.Context, jobID, url string) error

	HasSource(ctx context.Context, url string) (bool, error)
	// Sources returns the sources retrieved by the job's subtopics in the
	// order they were first added.
	Sources(ctx context.Context, jobID string) ([]Source, error)
	Stats(ctx context.Context) (*Stats, error)
}

// Open returns the store selected by cfg. Kuzu requires a cgo build.
func Open(ctx context.Context, cfg config.SourcesConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		s   Store
		err error
	)
	switch cfg.Graph {
	case "", "memory":
		s = NewMemStore()
	case "kuzu":
		s, err = openKuzu(cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("source graph opened", zap.String("backend", "kuzu"), zap.String("path", cfg.Path))
	default:
		return nil, fmt.Errorf("sources: unknown graph backend %q", cfg.Graph)
	}
	if err := s.InitSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// RecordRetrieval adds every result retrieved for a subtopic.
func RecordRetrieval(ctx context.Context, s Store, subtopicID string, results []research.SearchResult) error {
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		if err := s.AddSource(ctx, r); err != nil {
			return err
		}
		if err := s.AddRetrieval(ctx, subtopicID, r.URL); err != nil {
			return err
		}
	}
	return nil
}
