package export

import (
	"context"
	"fmt"

	"github.com/dusk-indust/deepresearch/internal/research"
	"github.com/dusk-indust/deepresearch/internal/sources"
)

// Hydrate records an archived job in store so GenerateMermaid can draw it
// from a fresh source graph. Adding what the store already holds is a no-op.
func Hydrate(ctx context.Context, store sources.Store, job *research.Job) error {
	if err := store.AddJob(ctx, job.ID, job.Topic); err != nil {
		return fmt.Errorf("hydrate job %s: %w", job.ID, err)
	}
	for _, s := range job.Subtopics {
		if err := store.AddSubtopic(ctx, job.ID, s); err != nil {
			return fmt.Errorf("hydrate subtopic %q: %w", s.Text, err)
		}
	}
	for _, r := range job.Reports {
		if err := sources.RecordRetrieval(ctx, store, r.SubtopicID, r.Sources); err != nil {
			return fmt.Errorf("hydrate report %q: %w", r.Subtopic, err)
		}
	}
	if job.Master != nil {
		for _, c := range job.Master.Citations {
			if err := store.AddCitation(ctx, job.ID, c.URL); err != nil {
				return fmt.Errorf("hydrate citation %s: %w", c.URL, err)
			}
		}
	}
	return nil
}
