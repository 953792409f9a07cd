// Package status archives finished jobs on disk and reads them back for
// the status command.
package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dusk-indust/deepresearch/internal/research"
)

// Summary is the one-line view of a job.
type Summary struct {
	ID        string          `json:"jobId"`
	Topic     string          `json:"topic"`
	Status    research.Status `json:"status"`
	Subtopics int             `json:"subtopics"`
	Reports   int             `json:"reports"`
	Failures  int             `json:"failures"`
	Citations int             `json:"citations"`
	Err       string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Summarize builds the Summary of job.
func Summarize(job *research.Job) Summary {
	s := Summary{
		ID:        job.ID,
		Topic:     job.Topic,
		Status:    job.Status,
		Subtopics: len(job.Subtopics),
		Reports:   len(job.Reports),
		Failures:  len(job.Failures),
		Err:       job.Err,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.Master != nil {
		s.Citations = len(job.Master.Citations)
	}
	return s
}

// Archive stores one JSON file per job under a directory.
type Archive struct {
	dir string
}

// NewArchive returns an Archive rooted at dir. The directory is created on
// the first Save.
func NewArchive(dir string) *Archive {
	return &Archive{dir: dir}
}

// Dir returns the archive directory.
func (a *Archive) Dir() string { return a.dir }

func (a *Archive) path(id string) string {
	return filepath.Join(a.dir, id+".json")
}

// Save writes job to <dir>/<id>.json, replacing any earlier copy.
func (a *Archive) Save(job *research.Job) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("status: create archive dir: %w", err)
	}
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("status: marshal job %s: %w", job.ID, err)
	}
	tmp, err := os.CreateTemp(a.dir, job.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("status: archive job %s: %w", job.ID, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("status: archive job %s: %w", job.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("status: archive job %s: %w", job.ID, err)
	}
	if err := os.Rename(tmp.Name(), a.path(job.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("status: archive job %s: %w", job.ID, err)
	}
	return nil
}

// Load reads the archived job with the given ID.
func (a *Archive) Load(id string) (*research.Job, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("%w: %q", research.ErrJobNotFound, id)
	}
	data, err := os.ReadFile(a.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", research.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("status: read job %s: %w", id, err)
	}
	var job research.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("status: parse job %s: %w", id, err)
	}
	return &job, nil
}

// List returns a summary of every archived job, oldest first. A missing
// archive directory yields no jobs. Files that cannot be parsed are skipped.
func (a *Archive) List() ([]Summary, error) {
	entries, err := os.ReadDir(a.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("status: list archive: %w", err)
	}
	var out []Summary
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		job, err := a.Load(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		out = append(out, Summarize(job))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
