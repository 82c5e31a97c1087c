package driven

import (
	"context"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

// SchedulerStore persists scheduler state for crash recovery.
// It stores schedule state and firing history.
type SchedulerStore interface {
	// GetSchedule retrieves a scheduled sync by ID.
	// Returns nil and no error if the schedule does not exist.
	GetSchedule(ctx context.Context, id string) (*domain.ScheduledSync, error)

	// ListSchedules returns all scheduled syncs.
	ListSchedules(ctx context.Context) ([]domain.ScheduledSync, error)

	// SaveSchedule persists a schedule's state.
	// Creates or updates the schedule based on ID.
	SaveSchedule(ctx context.Context, schedule *domain.ScheduledSync) error

	// DeleteSchedule removes a schedule from storage.
	DeleteSchedule(ctx context.Context, id string) error

	// RecordResult logs a schedule firing.
	RecordResult(ctx context.Context, result *domain.TaskResult) error

	// GetHistory returns recent results for a schedule.
	// Results are ordered by start time descending (most recent first).
	GetHistory(ctx context.Context, id string, limit int) ([]domain.TaskResult, error)

	// PruneHistory removes old results beyond the retention limit.
	// Keeps the most recent 'keep' results per schedule.
	PruneHistory(ctx context.Context, keep int) error
}
