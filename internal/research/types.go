// Package research defines the domain model shared by every stage of a
// research job: subtopics, per-subtopic reports, the master report and the
// job record itself.
package research

import (
	"time"

	"github.com/google/uuid"
)

// Origin records which pass produced a subtopic.
type Origin string

const (
	OriginInitial    Origin = "initial"
	OriginRefinement Origin = "refinement"
)

// Subtopic is a narrower research question derived from the job topic.
// It is never modified after creation.
type Subtopic struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Origin  Origin `json:"origin"`
	Ordinal int    `json:"ordinal"`
}

// NewSubtopic creates a Subtopic with a fresh ID.
func NewSubtopic(text string, origin Origin, ordinal int) Subtopic {
	return Subtopic{
		ID:      uuid.NewString(),
		Text:    text,
		Origin:  origin,
		Ordinal: ordinal,
	}
}

// SearchResult is one ranked hit returned by a search provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Citation attributes a claim to a retrieved source. Index is the [n] marker
// used in the narrative; it is zero for per-subtopic reports.
type Citation struct {
	Index int    `json:"index,omitempty"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Quote string `json:"quote,omitempty"`
}

// Report holds the findings produced for a single subtopic.
type Report struct {
	SubtopicID string         `json:"subtopicId"`
	Subtopic   string         `json:"subtopic"`
	Narrative  string         `json:"narrative"`
	Citations  []Citation     `json:"citations"`
	Sources    []SearchResult `json:"sources"` // results retrieved for the subtopic
	Round      int            `json:"round"`
}

// TaskFailure records a subtopic whose task ended without a report.
type TaskFailure struct {
	Subtopic Subtopic `json:"subtopic"`
	Reason   string   `json:"reason"`
	Round    int      `json:"round"`
}

// ReviewStatus tracks the citation review of a MasterReport.
type ReviewStatus string

const (
	ReviewPending ReviewStatus = "pending"
	ReviewClean   ReviewStatus = "clean"
	ReviewRevised ReviewStatus = "revised"
)

// FindingKind classifies a citation review finding.
type FindingKind string

const (
	FindingFabricated  FindingKind = "fabricated-citation"
	FindingMissing     FindingKind = "missing-source"
	FindingUnsupported FindingKind = "unsupported-claim"
)

// Finding is a single issue raised by the citation reviewer.
type Finding struct {
	Kind       FindingKind `json:"kind"`
	Claim      string      `json:"claim,omitempty"`
	URL        string      `json:"url,omitempty"`
	Suggestion string      `json:"suggestion,omitempty"`
}

// MasterReport is the synthesized narrative for the whole job.
type MasterReport struct {
	Narrative         string       `json:"narrative"`
	Citations         []Citation   `json:"citations"`
	Review            ReviewStatus `json:"review"`
	Findings          []Finding    `json:"findings,omitempty"`
	AdditionalSources []string     `json:"additionalSources,omitempty"`
}

// CitedURLs returns the citation URLs in citation order.
func (m *MasterReport) CitedURLs() []string {
	urls := make([]string, 0, len(m.Citations))
	for _, c := range m.Citations {
		urls = append(urls, c.URL)
	}
	return urls
}

// Clone returns a deep copy of the report.
func (m *MasterReport) Clone() *MasterReport {
	if m == nil {
		return nil
	}
	dst := *m
	dst.Citations = append([]Citation(nil), m.Citations...)
	dst.Findings = append([]Finding(nil), m.Findings...)
	dst.AdditionalSources = append([]string(nil), m.AdditionalSources...)
	return &dst
}

// Transition is one entry in a job's state history.
type Transition struct {
	From Status    `json:"from"`
	To   Status    `json:"to"`
	At   time.Time `json:"at"`
}

// Job is the record of one conduct_research invocation.
type Job struct {
	ID        string        `json:"id"`
	Topic     string        `json:"topic"`
	Status    Status        `json:"status"`
	Subtopics []Subtopic    `json:"subtopics"`
	Reports   []Report      `json:"reports"`
	Failures  []TaskFailure `json:"failures,omitempty"`
	Master    *MasterReport `json:"master,omitempty"`
	Err       string        `json:"error,omitempty"`
	History   []Transition  `json:"history"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// NewJob creates a job in the created state.
func NewJob(topic string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		Topic:     topic,
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the job that is safe to hand to readers.
func (j *Job) Clone() *Job {
	dst := *j
	dst.Subtopics = append([]Subtopic(nil), j.Subtopics...)
	dst.Failures = append([]TaskFailure(nil), j.Failures...)
	dst.History = append([]Transition(nil), j.History...)
	if j.Reports != nil {
		dst.Reports = make([]Report, len(j.Reports))
		for i, r := range j.Reports {
			r.Citations = append([]Citation(nil), r.Citations...)
			r.Sources = append([]SearchResult(nil), r.Sources...)
			dst.Reports[i] = r
		}
	}
	dst.Master = j.Master.Clone()
	return &dst
}

// NextOrdinal returns the ordinal for the next subtopic of the job.
func (j *Job) NextOrdinal() int {
	next := 1
	for _, s := range j.Subtopics {
		if s.Ordinal >= next {
			next = s.Ordinal + 1
		}
	}
	return next
}

// RetrievedSources returns the union of the sources retrieved by every
// report, in first-seen order.
func (j *Job) RetrievedSources() []SearchResult {
	seen := make(map[string]bool)
	var out []SearchResult
	for _, r := range j.Reports {
		for _, s := range r.Sources {
			if seen[s.URL] {
				continue
			}
			seen[s.URL] = true
			out = append(out, s)
		}
	}
	return out
}
