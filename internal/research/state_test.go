package research

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_HappyPathTransitions(t *testing.T) {
	job := NewJob("heat pumps")
	require.Equal(t, StatusCreated, job.Status)

	path := []Status{
		StatusDecomposing,
		StatusResearching,
		StatusRefining,
		StatusResearching,
		StatusSynthesizing,
		StatusReviewing,
		StatusDone,
	}
	for _, to := range path {
		require.NoError(t, job.Transition(to), "transition to %s", to)
	}

	assert.Equal(t, StatusDone, job.Status)
	assert.Len(t, job.History, len(path))
	assert.Equal(t, StatusCreated, job.History[0].From)
	assert.Equal(t, StatusDone, job.History[len(path)-1].To)
}

func TestJob_InvalidTransition(t *testing.T) {
	job := NewJob("topic")

	err := job.Transition(StatusSynthesizing)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusCreated, job.Status)
	assert.Empty(t, job.History)
}

func TestJob_FailFromAnyNonTerminalState(t *testing.T) {
	for _, from := range []Status{
		StatusCreated, StatusDecomposing, StatusResearching, StatusRefining,
		StatusSynthesizing, StatusReviewing,
	} {
		t.Run(string(from), func(t *testing.T) {
			job := NewJob("topic")
			job.Status = from
			job.Fail(ErrNoReports)
			assert.Equal(t, StatusFailed, job.Status)
			assert.Equal(t, ErrNoReports.Error(), job.Err)
		})
	}
}

func TestJob_TerminalStatesAreFinal(t *testing.T) {
	job := NewJob("topic")
	job.Status = StatusDone

	job.Fail(errors.New("late failure"))
	assert.Equal(t, StatusDone, job.Status)
	assert.Empty(t, job.Err)

	assert.False(t, CanTransition(StatusFailed, StatusDecomposing))
}

func TestJob_CloneIsIndependent(t *testing.T) {
	job := NewJob("topic")
	job.Subtopics = []Subtopic{NewSubtopic("a", OriginInitial, 1)}
	job.Reports = []Report{{
		Subtopic:  "a",
		Citations: []Citation{{URL: "https://a.example"}},
		Sources:   []SearchResult{{URL: "https://a.example"}},
	}}
	job.Master = &MasterReport{Citations: []Citation{{Index: 1, URL: "https://a.example"}}}

	clone := job.Clone()
	clone.Subtopics[0].Text = "changed"
	clone.Reports[0].Citations[0].URL = "https://changed.example"
	clone.Master.Citations[0].URL = "https://changed.example"

	assert.Equal(t, "a", job.Subtopics[0].Text)
	assert.Equal(t, "https://a.example", job.Reports[0].Citations[0].URL)
	assert.Equal(t, "https://a.example", job.Master.Citations[0].URL)
}

func TestJob_NextOrdinalAndRetrievedSources(t *testing.T) {
	job := NewJob("topic")
	assert.Equal(t, 1, job.NextOrdinal())

	job.Subtopics = []Subtopic{
		NewSubtopic("a", OriginInitial, 1),
		NewSubtopic("b", OriginInitial, 2),
	}
	assert.Equal(t, 3, job.NextOrdinal())

	job.Reports = []Report{
		{Sources: []SearchResult{{URL: "https://a"}, {URL: "https://b"}}},
		{Sources: []SearchResult{{URL: "https://b"}, {URL: "https://c"}}},
	}
	var urls []string
	for _, s := range job.RetrievedSources() {
		urls = append(urls, s.URL)
	}
	assert.Equal(t, []string{"https://a", "https://b", "https://c"}, urls)
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", fmt.Errorf("brave: %w", ErrRateLimited), true},
		{"llm unavailable", ErrLLMUnavailable, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"malformed", ErrMalformedOutput, false},
		{"permanent rate limit", Permanent(ErrRateLimited), false},
		{"unknown", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}
