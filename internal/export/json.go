// Package export renders a finished job for consumption outside the tool:
// a JSON document and a Mermaid diagram of its source graph.
package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dusk-indust/deepresearch/internal/research"
)

// JobExport is the top-level JSON export structure.
type JobExport struct {
	ID                string              `json:"jobId"`
	Topic             string              `json:"topic"`
	Status            research.Status     `json:"status"`
	ExportedAt        string              `json:"exportedAt"`
	Error             string              `json:"error,omitempty"`
	Subtopics         []SubtopicExport    `json:"subtopics"`
	Narrative         string              `json:"narrative,omitempty"`
	Review            string              `json:"review,omitempty"`
	Citations         []research.Citation `json:"citations,omitempty"`
	Findings          []research.Finding  `json:"findings,omitempty"`
	AdditionalSources []string            `json:"additionalSources,omitempty"`
	Duration          string              `json:"duration,omitempty"`
}

// SubtopicExport describes one subtopic and how its task ended.
type SubtopicExport struct {
	Ordinal int      `json:"ordinal"`
	Text    string   `json:"text"`
	Origin  string   `json:"origin"`
	Round   int      `json:"round,omitempty"`
	Status  string   `json:"status"` // "reported", "failed" or "pending"
	Reason  string   `json:"reason,omitempty"`
	Sources []string `json:"sources,omitempty"`
}

// ExportJob builds a JobExport from a job snapshot.
func ExportJob(job *research.Job) *JobExport {
	out := &JobExport{
		ID:         job.ID,
		Topic:      job.Topic,
		Status:     job.Status,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Error:      job.Err,
	}
	if job.Status.IsTerminal() && !job.UpdatedAt.IsZero() {
		out.Duration = job.UpdatedAt.Sub(job.CreatedAt).Round(time.Millisecond).String()
	}

	reports := make(map[string]research.Report, len(job.Reports))
	for _, r := range job.Reports {
		reports[r.SubtopicID] = r
	}
	failures := make(map[string]research.TaskFailure, len(job.Failures))
	for _, f := range job.Failures {
		failures[f.Subtopic.ID] = f
	}

	for _, s := range job.Subtopics {
		se := SubtopicExport{Ordinal: s.Ordinal, Text: s.Text, Origin: string(s.Origin), Status: "pending"}
		if r, ok := reports[s.ID]; ok {
			se.Status = "reported"
			se.Round = r.Round
			for _, src := range r.Sources {
				se.Sources = append(se.Sources, src.URL)
			}
		} else if f, ok := failures[s.ID]; ok {
			se.Status = "failed"
			se.Round = f.Round
			se.Reason = f.Reason
		}
		out.Subtopics = append(out.Subtopics, se)
	}

	if m := job.Master; m != nil {
		out.Narrative = m.Narrative
		out.Review = string(m.Review)
		out.Citations = m.Citations
		out.Findings = m.Findings
		out.AdditionalSources = m.AdditionalSources
	}
	return out
}

// MarshalJob renders job as indented JSON.
func MarshalJob(job *research.Job) ([]byte, error) {
	data, err := json.MarshalIndent(ExportJob(job), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: marshal job %s: %w", job.ID, err)
	}
	return data, nil
}
