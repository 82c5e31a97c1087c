package driving

import (
	"context"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

// SyncService is the trigger and audit entry point of the engine.
// Driving adapters (CLI, MCP, scheduler) call it; they never reach the job
// store directly.
type SyncService interface {
	// EnqueueSync validates and enqueues a sync job, returning its ID.
	EnqueueSync(ctx context.Context, req EnqueueRequest) (string, error)

	// Cancel requests cancellation of a job.
	Cancel(ctx context.Context, jobID string) (*domain.SyncJob, error)

	// Job returns a job with its pair records.
	Job(ctx context.Context, jobID string) (*JobReport, error)

	// Jobs lists jobs matching the filter.
	Jobs(ctx context.Context, filter domain.JobFilter) ([]domain.SyncJob, error)

	// Audit returns audit log entries matching the filter.
	Audit(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error)

	// Sites lists the registered sites.
	Sites(ctx context.Context) ([]domain.SiteDescriptor, error)

	// CheckEnvironment reports whether the network can be synced.
	CheckEnvironment(ctx context.Context) error
}

// EnqueueRequest describes a sync to enqueue.
type EnqueueRequest struct {
	SourceSiteID  string
	TargetSiteIDs []string
	Selector      domain.ContentSelector
}

// JobReport is a job together with its per-pair outcomes.
type JobReport struct {
	Job     domain.SyncJob
	Records []domain.SyncRecord
}

// Counts tallies records by outcome.
func (r *JobReport) Counts() map[domain.Outcome]int {
	counts := make(map[domain.Outcome]int)
	for i := range r.Records {
		counts[r.Records[i].Outcome]++
	}
	return counts
}

// Dispatcher runs the worker pool that drives jobs to completion.
type Dispatcher interface {
	// Start runs the workers. Blocks until the context is cancelled or
	// Stop is called.
	Start(ctx context.Context) error

	// Stop signals the workers to finish their current job and exit.
	Stop() error

	// RunOnce leases and processes at most one job as workerID.
	// Returns false if no job was eligible.
	RunOnce(ctx context.Context, workerID string) (bool, error)
}
