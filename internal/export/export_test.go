package export

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/deepresearch/internal/research"
	"github.com/dusk-indust/deepresearch/internal/sources"
)

func sampleJob() *research.Job {
	job := research.NewJob(`impact of "heat pumps" on grid demand`)
	a := research.NewSubtopic("winter peak load", research.OriginInitial, 1)
	b := research.NewSubtopic("grid upgrades", research.OriginInitial, 2)
	c := research.NewSubtopic("tariffs", research.OriginRefinement, 3)
	job.Subtopics = []research.Subtopic{a, b, c}
	job.Reports = []research.Report{
		{SubtopicID: a.ID, Subtopic: a.Text, Round: 1, Sources: []research.SearchResult{
			{URL: "https://grid.example/reports/peaks"},
			{URL: "https://shared.example/"},
		}},
		{SubtopicID: c.ID, Subtopic: c.Text, Round: 2, Sources: []research.SearchResult{
			{URL: "https://shared.example"},
		}},
	}
	job.Failures = []research.TaskFailure{{Subtopic: b, Reason: "research deadline exceeded", Round: 1}}
	job.Master = &research.MasterReport{
		Narrative:         "Peaks rise [1].",
		Citations:         []research.Citation{{Index: 1, URL: "https://grid.example/reports/peaks"}},
		Review:            research.ReviewClean,
		AdditionalSources: []string{"https://shared.example/"},
	}
	job.Status = research.StatusDone
	return job
}

func TestExportJob(t *testing.T) {
	job := sampleJob()
	out := ExportJob(job)

	assert.Equal(t, job.ID, out.ID)
	assert.Equal(t, research.StatusDone, out.Status)
	assert.Equal(t, "clean", out.Review)
	require.Len(t, out.Subtopics, 3)

	assert.Equal(t, "reported", out.Subtopics[0].Status)
	assert.Equal(t, []string{"https://grid.example/reports/peaks", "https://shared.example/"}, out.Subtopics[0].Sources)
	assert.Equal(t, "failed", out.Subtopics[1].Status)
	assert.Equal(t, "research deadline exceeded", out.Subtopics[1].Reason)
	assert.Equal(t, "reported", out.Subtopics[2].Status)
	assert.Equal(t, 2, out.Subtopics[2].Round)
	assert.Equal(t, "refinement", out.Subtopics[2].Origin)
	assert.Len(t, out.Citations, 1)
}

func TestMarshalJob(t *testing.T) {
	data, err := MarshalJob(sampleJob())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "done", decoded["status"])
	assert.Contains(t, decoded, "exportedAt")
	assert.Contains(t, decoded, "subtopics")
}

func TestExportJob_PendingWithoutMaster(t *testing.T) {
	job := research.NewJob("topic")
	job.Subtopics = []research.Subtopic{research.NewSubtopic("a", research.OriginInitial, 1)}
	out := ExportJob(job)
	assert.Equal(t, "pending", out.Subtopics[0].Status)
	assert.Empty(t, out.Narrative)
	assert.Empty(t, out.Duration)
}

func TestGenerateMermaid(t *testing.T) {
	ctx := context.Background()
	job := sampleJob()
	store := sources.NewMemStore()
	require.NoError(t, store.AddJob(ctx, job.ID, job.Topic))
	for _, s := range job.Subtopics {
		require.NoError(t, store.AddSubtopic(ctx, job.ID, s))
	}
	for _, r := range job.Reports {
		require.NoError(t, sources.RecordRetrieval(ctx, store, r.SubtopicID, r.Sources))
	}
	require.NoError(t, store.AddCitation(ctx, job.ID, "https://grid.example/reports/peaks"))

	out, err := GenerateMermaid(ctx, store, job)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, `N0["impact of 'heat pumps' on grid demand"]`)
	assert.Contains(t, out, `N0 --> N1["winter peak load"]`)
	assert.Contains(t, out, `N2["grid.example/…/peaks"]`)
	assert.Contains(t, out, "N1 --> N2")
	assert.Contains(t, out, `N3["shared.example"]`)
	assert.Equal(t, 1, strings.Count(out, `N3["shared.example"]`), "shared source emitted once")
	assert.Contains(t, out, "class N2 cited")
	assert.Contains(t, out, "class N4 failed")
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "short", label("short", 10))
	assert.Equal(t, "abcd…", label("abcdefgh", 5))
	assert.Equal(t, "say 'hi'", label(`say "hi"`, 20))
}

func TestHydrate(t *testing.T) {
	ctx := context.Background()
	job := sampleJob()
	store := sources.NewMemStore()

	require.NoError(t, Hydrate(ctx, store, job))
	// A second pass adds nothing new.
	require.NoError(t, Hydrate(ctx, store, job))

	tracked, err := store.Sources(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, tracked, 2)
	assert.True(t, tracked[0].Cited)
	assert.False(t, tracked[1].Cited)

	out, err := GenerateMermaid(ctx, store, job)
	require.NoError(t, err)
	assert.Contains(t, out, "class N2 cited")
}
