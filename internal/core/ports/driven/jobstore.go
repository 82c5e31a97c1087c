package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

// JobStore is the durable queue of sync jobs.
//
// Transitions into a terminal state are conditional on the job still being
// owned by the calling worker and not yet terminal, so a terminal state is
// set exactly once.
type JobStore interface {
	// Enqueue stores a new queued job and returns its ID.
	// An empty job ID is assigned by the store.
	Enqueue(ctx context.Context, job domain.SyncJob) (string, error)

	// LeaseNext atomically claims the oldest eligible job for workerID.
	// Eligible jobs are queued or failed_retryable jobs whose NotBefore has
	// passed, and leased or processing jobs whose lease expired.
	// The job moves to leased and its Attempts is incremented.
	// Returns nil and no error if nothing is eligible.
	LeaseNext(ctx context.Context, workerID string, lease time.Duration) (*domain.SyncJob, error)

	// MarkProcessing moves a leased job to processing.
	MarkProcessing(ctx context.Context, jobID, workerID string) error

	// Ack finalises a job owned by workerID as completed or cancelled.
	Ack(ctx context.Context, jobID, workerID string, status domain.JobStatus) error

	// Requeue moves a job to failed_retryable, eligible again at notBefore.
	Requeue(ctx context.Context, jobID, workerID string, notBefore time.Time, lastErr string) error

	// MarkDead moves a job to dead_letter with the given reason.
	MarkDead(ctx context.Context, jobID, workerID string, reason string) error

	// RequestCancel flags a job for cancellation. A job that is queued or
	// waiting for retry is cancelled immediately. Returns the job afterwards.
	RequestCancel(ctx context.Context, jobID string) (*domain.SyncJob, error)

	// Get retrieves a job by ID. Returns domain.ErrNotFound if missing.
	Get(ctx context.Context, jobID string) (*domain.SyncJob, error)

	// List returns jobs matching the filter, newest first.
	List(ctx context.Context, filter domain.JobFilter) ([]domain.SyncJob, error)
}

// AuditLog is the append-only record of job and pair outcomes.
type AuditLog interface {
	// Append adds an entry. Seq and, when zero, At are assigned by the log.
	Append(ctx context.Context, entry domain.AuditEntry) error

	// List returns entries matching the filter in append order.
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error)
}
