package domain

import (
	"fmt"
	"slices"
	"time"
)

// JobStatus is the lifecycle state of a sync job.
type JobStatus string

// Job lifecycle states.
const (
	JobQueued          JobStatus = "queued"
	JobLeased          JobStatus = "leased"
	JobProcessing      JobStatus = "processing"
	JobCompleted       JobStatus = "completed"
	JobFailedRetryable JobStatus = "failed_retryable"
	JobDeadLetter      JobStatus = "dead_letter"
	JobCancelled       JobStatus = "cancelled"
)

// AllJobStatuses lists every status in lifecycle order.
var AllJobStatuses = []JobStatus{
	JobQueued, JobLeased, JobProcessing, JobFailedRetryable,
	JobCompleted, JobDeadLetter, JobCancelled,
}

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobDeadLetter || s == JobCancelled
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	return slices.Contains(AllJobStatuses, s)
}

// jobTransitions lists the allowed next states for each status.
// leased and processing may return to leased when their lease expires.
var jobTransitions = map[JobStatus][]JobStatus{
	JobQueued:          {JobLeased, JobCancelled},
	JobLeased:          {JobProcessing, JobLeased, JobFailedRetryable, JobDeadLetter, JobCompleted, JobCancelled},
	JobProcessing:      {JobCompleted, JobFailedRetryable, JobDeadLetter, JobCancelled, JobLeased},
	JobFailedRetryable: {JobQueued, JobLeased, JobCancelled},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	return slices.Contains(jobTransitions[from], to)
}

// SyncJob is one request to replicate content from a source site to one or
// more target sites.
type SyncJob struct {
	ID            string
	SourceSiteID  string
	TargetSiteIDs []string
	Selector      ContentSelector
	Status        JobStatus

	// Attempts counts leases handed out for this job.
	Attempts  int
	LastError string

	// NotBefore delays eligibility for leasing (set by backoff).
	NotBefore time.Time

	LeaseOwner     string
	LeaseExpiresAt time.Time

	// CancelRequested asks the dispatcher to stop between pairs.
	CancelRequested bool

	CreatedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt time.Time
}

// Validate checks the job can be enqueued.
func (j *SyncJob) Validate() error {
	if j == nil {
		return ErrInvalidInput
	}
	if j.SourceSiteID == "" {
		return fmt.Errorf("%w: source site is required", ErrInvalidInput)
	}
	if len(j.TargetSiteIDs) == 0 {
		return fmt.Errorf("%w: at least one target site is required", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(j.TargetSiteIDs))
	for _, t := range j.TargetSiteIDs {
		if t == "" {
			return fmt.Errorf("%w: empty target site id", ErrInvalidInput)
		}
		if t == j.SourceSiteID {
			return fmt.Errorf("%w: site %s cannot sync to itself", ErrInvalidInput, t)
		}
		if seen[t] {
			return fmt.Errorf("%w: duplicate target site %s", ErrInvalidInput, t)
		}
		seen[t] = true
	}
	return j.Selector.Validate()
}

// Eligible reports whether the job may be leased at now.
func (j *SyncJob) Eligible(now time.Time) bool {
	switch j.Status {
	case JobQueued, JobFailedRetryable:
		return j.NotBefore.IsZero() || !j.NotBefore.After(now)
	case JobLeased, JobProcessing:
		return !j.LeaseExpiresAt.IsZero() && !j.LeaseExpiresAt.After(now)
	default:
		return false
	}
}

// JobFilter narrows job listings.
type JobFilter struct {
	Statuses     []JobStatus
	SourceSiteID string

	// Limit caps the result count. Zero means no limit.
	Limit int
}

// Matches reports whether the job passes the filter.
func (f JobFilter) Matches(j *SyncJob) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, j.Status) {
		return false
	}
	if f.SourceSiteID != "" && f.SourceSiteID != j.SourceSiteID {
		return false
	}
	return true
}
