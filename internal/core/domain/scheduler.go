package domain

import (
	"fmt"
	"time"
)

// ScheduledSync is a recurring sync that the scheduler enqueues on interval.
type ScheduledSync struct {
	// ID is the unique identifier for the schedule.
	ID string

	// Name is a human-readable name for the schedule.
	Name string

	// SourceSiteID, TargetSiteIDs and Selector describe the job to enqueue.
	SourceSiteID  string
	TargetSiteIDs []string
	Selector      ContentSelector

	// Interval defines how often the sync should run.
	Interval time.Duration

	// LastRun is when the schedule last fired.
	LastRun time.Time

	// NextRun is when the schedule should fire next.
	NextRun time.Time

	// LastError contains the last enqueue error, if any.
	LastError string

	// LastSuccess is when the schedule last enqueued a job.
	LastSuccess time.Time

	// LastJobID is the job enqueued by the last successful run.
	LastJobID string

	// Enabled indicates whether the schedule is active.
	Enabled bool
}

// Due reports whether the schedule should fire at now.
func (s *ScheduledSync) Due(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	return s.NextRun.IsZero() || !s.NextRun.After(now)
}

// Validate checks the schedule is complete.
func (s *ScheduledSync) Validate() error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("%w: schedule id is required", ErrInvalidInput)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("%w: schedule %s needs a positive interval", ErrInvalidInput, s.ID)
	}
	job := SyncJob{SourceSiteID: s.SourceSiteID, TargetSiteIDs: s.TargetSiteIDs, Selector: s.Selector}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("schedule %s: %w", s.ID, err)
	}
	return nil
}

// TaskResult represents the outcome of one schedule firing.
type TaskResult struct {
	// TaskID identifies which schedule fired.
	TaskID string

	// StartedAt is when the firing started.
	StartedAt time.Time

	// EndedAt is when the firing completed.
	EndedAt time.Time

	// Success indicates whether a job was enqueued.
	Success bool

	// Error contains the error message if Success is false.
	Error string

	// JobID is the enqueued job, if any.
	JobID string
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// Enabled is the master switch for the scheduler.
	Enabled bool

	// Tick is how often due schedules are checked.
	Tick time.Duration

	// HistoryLimit is how many results are kept per schedule.
	HistoryLimit int
}

// DefaultSchedulerConfig returns sensible defaults for the scheduler.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:      true,
		Tick:         time.Minute,
		HistoryLimit: 100,
	}
}
