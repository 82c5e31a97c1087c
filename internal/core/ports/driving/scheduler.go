package driving

import "context"

// Scheduler fires recurring syncs by enqueueing jobs on interval.
type Scheduler interface {
	// Start begins checking for due schedules.
	// Blocks until context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler and waits for in-flight firings.
	Stop() error
}
