package mcptools

import "github.com/dusk-indust/deepresearch/internal/export"

// --- MCP Tool Input/Output Types ---
// The MCP Go SDK derives each tool's JSON schema from these struct tags.

// ConductResearchInput is the input for the conduct_research MCP tool.
type ConductResearchInput struct {
	Topic string `json:"topic" jsonschema:"the research question or topic to investigate"`
}

// ConductResearchOutput is the result of the conduct_research MCP tool.
type ConductResearchOutput struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
	Report string `json:"report" jsonschema:"the synthesized report with numbered citations and a sources section"`
}

// ClearCacheInput is the input for the clear_cache MCP tool.
type ClearCacheInput struct{}

// ClearCacheOutput is the result of the clear_cache MCP tool.
type ClearCacheOutput struct {
	Removed int `json:"removed" jsonschema:"number of cached search entries deleted"`
}

// GetJobInput is the input for the get_job MCP tool.
type GetJobInput struct {
	JobID string `json:"jobId" jsonschema:"the job ID returned by conduct_research"`
}

// GetJobOutput is the result of the get_job MCP tool.
type GetJobOutput struct {
	Job *export.JobExport `json:"job"`
}

// ListJobsInput is the input for the list_jobs MCP tool.
type ListJobsInput struct {
	Status string `json:"status,omitempty" jsonschema:"only list jobs in this state (e.g. done, failed, researching)"`
}

// JobSummary is one row of list_jobs.
type JobSummary struct {
	JobID     string `json:"jobId"`
	Topic     string `json:"topic"`
	Status    string `json:"status"`
	Subtopics int    `json:"subtopics"`
	Reports   int    `json:"reports"`
	Failures  int    `json:"failures"`
	Citations int    `json:"citations"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// ListJobsOutput is the result of the list_jobs MCP tool.
type ListJobsOutput struct {
	Jobs  []JobSummary `json:"jobs"`
	Total int          `json:"total"`
}
