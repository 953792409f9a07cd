package mcptools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/dusk-indust/deepresearch/internal/export"
	"github.com/dusk-indust/deepresearch/internal/orchestrator"
	"github.com/dusk-indust/deepresearch/internal/research"
	"github.com/dusk-indust/deepresearch/internal/status"
)

// Researcher is the orchestrator surface the MCP tools depend on.
type Researcher interface {
	ConductResearch(ctx context.Context, topic string) (*research.MasterReport, *research.Job, error)
	Jobs() *orchestrator.JobStore
}

// CacheClearer removes every cached search entry.
type CacheClearer interface {
	ClearCache() (int, error)
}

// ResearchService holds the dependencies used by the MCP tool handlers.
type ResearchService struct {
	research Researcher
	cache    CacheClearer
	archive  *status.Archive // nil when archiving is disabled
	logger   *zap.Logger
}

// NewResearchService creates a ResearchService. archive may be nil.
func NewResearchService(r Researcher, cache CacheClearer, archive *status.Archive, logger *zap.Logger) *ResearchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResearchService{
		research: r,
		cache:    cache,
		archive:  archive,
		logger:   logger.Named("mcp"),
	}
}

// ConductResearch runs a full research job and returns the formatted report.
// A failed job is reported as a tool error carrying the failure reason.
func (s *ResearchService) ConductResearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ConductResearchInput,
) (*mcp.CallToolResult, ConductResearchOutput, error) {
	topic := strings.TrimSpace(input.Topic)
	if topic == "" {
		return nil, ConductResearchOutput{}, fmt.Errorf("topic is required")
	}

	s.logger.Info("conduct_research", zap.String("topic", topic))
	master, job, err := s.research.ConductResearch(ctx, topic)
	if err != nil {
		if job != nil {
			return nil, ConductResearchOutput{}, fmt.Errorf("research job %s failed: %w", job.ID, err)
		}
		return nil, ConductResearchOutput{}, fmt.Errorf("research failed: %w", err)
	}

	return nil, ConductResearchOutput{
		JobID:  job.ID,
		Status: string(job.Status),
		Report: orchestrator.FormatReport(master),
	}, nil
}

// ClearCache deletes every cached search result.
func (s *ResearchService) ClearCache(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ ClearCacheInput,
) (*mcp.CallToolResult, ClearCacheOutput, error) {
	n, err := s.cache.ClearCache()
	if err != nil {
		return nil, ClearCacheOutput{}, fmt.Errorf("clear cache: %w", err)
	}
	s.logger.Info("cache cleared", zap.Int("removed", n))
	return nil, ClearCacheOutput{Removed: n}, nil
}

// GetJob returns one job, looking in the live job store first and the
// archive second.
func (s *ResearchService) GetJob(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input GetJobInput,
) (*mcp.CallToolResult, GetJobOutput, error) {
	if input.JobID == "" {
		return nil, GetJobOutput{}, fmt.Errorf("jobId is required")
	}

	job, err := s.research.Jobs().Get(input.JobID)
	if errors.Is(err, research.ErrJobNotFound) && s.archive != nil {
		job, err = s.archive.Load(input.JobID)
	}
	if err != nil {
		return nil, GetJobOutput{}, err
	}
	return nil, GetJobOutput{Job: export.ExportJob(job)}, nil
}

// ListJobs returns summaries of live and archived jobs, oldest first. Live
// snapshots take precedence over archived copies of the same job.
func (s *ResearchService) ListJobs(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ListJobsInput,
) (*mcp.CallToolResult, ListJobsOutput, error) {
	want := research.Status(strings.ToLower(strings.TrimSpace(input.Status)))

	live := s.research.Jobs().List("")
	var summaries []status.Summary
	if s.archive != nil {
		archived, err := s.archive.List()
		if err != nil {
			return nil, ListJobsOutput{}, fmt.Errorf("list archive: %w", err)
		}
		inStore := make(map[string]bool, len(live))
		for _, j := range live {
			inStore[j.ID] = true
		}
		for _, a := range archived {
			if !inStore[a.ID] {
				summaries = append(summaries, a)
			}
		}
	}
	for _, j := range live {
		summaries = append(summaries, status.Summarize(j))
	}

	out := ListJobsOutput{Jobs: []JobSummary{}}
	for _, sum := range summaries {
		if want != "" && sum.Status != want {
			continue
		}
		out.Jobs = append(out.Jobs, toJobSummary(sum))
	}
	out.Total = len(out.Jobs)
	return nil, out, nil
}

func toJobSummary(s status.Summary) JobSummary {
	return JobSummary{
		JobID:     s.ID,
		Topic:     s.Topic,
		Status:    string(s.Status),
		Subtopics: s.Subtopics,
		Reports:   s.Reports,
		Failures:  s.Failures,
		Citations: s.Citations,
		Error:     s.Err,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
	}
}
