package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driving"
)

// EnqueueSyncInput is the input schema for the enqueue_sync tool.
type EnqueueSyncInput struct {
	Source   string   `json:"source" jsonschema:"ID of the site to copy content from"`
	Targets  []string `json:"targets" jsonschema:"IDs of the sites to copy content to"`
	Selector string   `json:"selector" jsonschema:"content selector: kind:id, kind:id1,id2, kind:category=name or kind:*"`
}

// EnqueueSyncOutput is the output schema for the enqueue_sync tool.
type EnqueueSyncOutput struct {
	JobID string `json:"job_id"`
}

// JobInput identifies a job.
type JobInput struct {
	JobID string `json:"job_id" jsonschema:"the sync job ID"`
}

// JobOutput describes a sync job.
type JobOutput struct {
	ID              string   `json:"id"`
	Status          string   `json:"status"`
	Source          string   `json:"source"`
	Targets         []string `json:"targets"`
	Selector        string   `json:"selector"`
	Attempts        int      `json:"attempts"`
	LastError       string   `json:"last_error,omitempty"`
	CancelRequested bool     `json:"cancel_requested,omitempty"`
	CreatedAt       string   `json:"created_at"`
	FinishedAt      string   `json:"finished_at,omitempty"`
}

// RecordOutput describes one (content unit, target) outcome.
type RecordOutput struct {
	Target   string `json:"target"`
	Unit     string `json:"unit"`
	Revision int64  `json:"revision"`
	Outcome  string `json:"outcome"`
	TargetID string `json:"target_id,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// JobStatusOutput is the output schema for the job_status tool.
type JobStatusOutput struct {
	Job     JobOutput      `json:"job"`
	Counts  map[string]int `json:"counts"`
	Records []RecordOutput `json:"records"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "enqueue_sync",
		Description: "Queue a sync of content from one site to one or more other sites",
	}, s.handleEnqueueSync)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cancel_job",
		Description: "Cancel a sync job. Running jobs stop after the current item",
	}, s.handleCancelJob)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "job_status",
		Description: "Show a sync job with its per-item outcomes",
	}, s.handleJobStatus)
}

func (s *Server) handleEnqueueSync(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input EnqueueSyncInput,
) (*mcp.CallToolResult, EnqueueSyncOutput, error) {
	sel, err := domain.ParseSelector(input.Selector)
	if err != nil {
		return nil, EnqueueSyncOutput{}, err
	}

	id, err := s.ports.Sync.EnqueueSync(ctx, driving.EnqueueRequest{
		SourceSiteID:  input.Source,
		TargetSiteIDs: input.Targets,
		Selector:      sel,
	})
	if err != nil {
		return nil, EnqueueSyncOutput{}, fmt.Errorf("enqueue sync: %w", err)
	}
	return nil, EnqueueSyncOutput{JobID: id}, nil
}

func (s *Server) handleCancelJob(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input JobInput,
) (*mcp.CallToolResult, JobOutput, error) {
	job, err := s.ports.Sync.Cancel(ctx, input.JobID)
	if err != nil {
		return nil, JobOutput{}, err
	}
	return nil, jobOutput(job), nil
}

func (s *Server) handleJobStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input JobInput,
) (*mcp.CallToolResult, JobStatusOutput, error) {
	report, err := s.ports.Sync.Job(ctx, input.JobID)
	if err != nil {
		return nil, JobStatusOutput{}, err
	}

	output := JobStatusOutput{
		Job:     jobOutput(&report.Job),
		Counts:  make(map[string]int),
		Records: make([]RecordOutput, len(report.Records)),
	}
	for outcome, n := range report.Counts() {
		output.Counts[string(outcome)] = n
	}
	for i, r := range report.Records {
		output.Records[i] = RecordOutput{
			Target:   r.TargetSiteID,
			Unit:     r.UnitKey.String(),
			Revision: r.AppliedRevision,
			Outcome:  string(r.Outcome),
			TargetID: r.TargetID,
			Detail:   r.Detail,
		}
	}
	return nil, output, nil
}

func jobOutput(job *domain.SyncJob) JobOutput {
	out := JobOutput{
		ID:              job.ID,
		Status:          string(job.Status),
		Source:          job.SourceSiteID,
		Targets:         job.TargetSiteIDs,
		Selector:        job.Selector.String(),
		Attempts:        job.Attempts,
		LastError:       job.LastError,
		CancelRequested: job.CancelRequested,
		CreatedAt:       job.CreatedAt.Format(time.RFC3339),
	}
	if !job.FinishedAt.IsZero() {
		out.FinishedAt = job.FinishedAt.Format(time.RFC3339)
	}
	return out
}
