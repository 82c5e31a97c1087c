package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
)

// Ensure JobStore implements the interface.
var _ driven.JobStore = (*JobStore)(nil)

// JobStore is an in-memory implementation of driven.JobStore.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*storedJob
	seq  int64
	now  func() time.Time
}

type storedJob struct {
	job domain.SyncJob
	seq int64
}

// NewJobStore creates a new in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*storedJob),
		now:  time.Now,
	}
}

// SetClock replaces the store's clock. Used by tests to expire leases.
func (s *JobStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Enqueue stores a new queued job.
func (s *JobStore) Enqueue(_ context.Context, job domain.SyncJob) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if _, exists := s.jobs[job.ID]; exists {
		return "", fmt.Errorf("job %s: %w", job.ID, domain.ErrAlreadyExists)
	}

	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	job.Status = domain.JobQueued
	job.TargetSiteIDs = slices.Clone(job.TargetSiteIDs)

	s.seq++
	s.jobs[job.ID] = &storedJob{job: job, seq: s.seq}
	return job.ID, nil
}

// LeaseNext claims the oldest eligible job.
func (s *JobStore) LeaseNext(_ context.Context, workerID string, lease time.Duration) (*domain.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var next *storedJob
	for _, sj := range s.jobs {
		if !sj.job.Eligible(now) {
			continue
		}
		if next == nil || older(sj, next) {
			next = sj
		}
	}
	if next == nil {
		return nil, nil
	}

	next.job.Status = domain.JobLeased
	next.job.LeaseOwner = workerID
	next.job.LeaseExpiresAt = now.Add(lease)
	next.job.Attempts++
	next.job.UpdatedAt = now
	return copyJob(&next.job), nil
}

func older(a, b *storedJob) bool {
	if c := a.job.CreatedAt.Compare(b.job.CreatedAt); c != 0 {
		return c < 0
	}
	return a.seq < b.seq
}

// MarkProcessing moves a leased job to processing.
func (s *JobStore) MarkProcessing(_ context.Context, jobID, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.owned(jobID, workerID)
	if err != nil {
		return err
	}
	job.Status = domain.JobProcessing
	job.UpdatedAt = s.now()
	return nil
}

// Ack finalises a job as completed or cancelled.
func (s *JobStore) Ack(_ context.Context, jobID, workerID string, status domain.JobStatus) error {
	if status != domain.JobCompleted && status != domain.JobCancelled {
		return fmt.Errorf("%w: cannot ack with status %s", domain.ErrInvalidInput, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.owned(jobID, workerID)
	if err != nil {
		return err
	}
	s.finish(job, status)
	return nil
}

// Requeue schedules a retry.
func (s *JobStore) Requeue(_ context.Context, jobID, workerID string, notBefore time.Time, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.owned(jobID, workerID)
	if err != nil {
		return err
	}
	job.Status = domain.JobFailedRetryable
	job.NotBefore = notBefore
	job.LastError = lastErr
	job.LeaseOwner = ""
	job.LeaseExpiresAt = time.Time{}
	job.UpdatedAt = s.now()
	return nil
}

// MarkDead dead-letters a job.
func (s *JobStore) MarkDead(_ context.Context, jobID, workerID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.owned(jobID, workerID)
	if err != nil {
		return err
	}
	job.LastError = reason
	s.finish(job, domain.JobDeadLetter)
	return nil
}

// RequestCancel flags a job for cancellation.
func (s *JobStore) RequestCancel(_ context.Context, jobID string) (*domain.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	job := &sj.job
	switch job.Status {
	case domain.JobQueued, domain.JobFailedRetryable:
		job.CancelRequested = true
		s.finish(job, domain.JobCancelled)
	case domain.JobLeased, domain.JobProcessing:
		job.CancelRequested = true
		job.UpdatedAt = s.now()
	default:
		return copyJob(job), domain.ErrJobTerminal
	}
	return copyJob(job), nil
}

// Get retrieves a job by ID.
func (s *JobStore) Get(_ context.Context, jobID string) (*domain.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyJob(&sj.job), nil
}

// List returns matching jobs, newest first.
func (s *JobStore) List(_ context.Context, filter domain.JobFilter) ([]domain.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]*storedJob, 0, len(s.jobs))
	for _, sj := range s.jobs {
		if filter.Matches(&sj.job) {
			matched = append(matched, sj)
		}
	}
	slices.SortFunc(matched, func(a, b *storedJob) int {
		if c := b.job.CreatedAt.Compare(a.job.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	jobs := make([]domain.SyncJob, len(matched))
	for i, sj := range matched {
		jobs[i] = *copyJob(&sj.job)
	}
	return jobs, nil
}

// owned returns the job if workerID holds its lease. Caller holds s.mu.
func (s *JobStore) owned(jobID, workerID string) (*domain.SyncJob, error) {
	sj, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	job := &sj.job
	if job.Status.IsTerminal() {
		return nil, domain.ErrJobTerminal
	}
	if (job.Status != domain.JobLeased && job.Status != domain.JobProcessing) || job.LeaseOwner != workerID {
		return nil, domain.ErrLeaseLost
	}
	return job, nil
}

// finish moves a job to a terminal status. Caller holds s.mu.
func (s *JobStore) finish(job *domain.SyncJob, status domain.JobStatus) {
	now := s.now()
	job.Status = status
	job.LeaseOwner = ""
	job.LeaseExpiresAt = time.Time{}
	job.UpdatedAt = now
	job.FinishedAt = now
}

func copyJob(job *domain.SyncJob) *domain.SyncJob {
	c := *job
	c.TargetSiteIDs = slices.Clone(job.TargetSiteIDs)
	c.Selector.IDs = slices.Clone(job.Selector.IDs)
	return &c
}

// Ensure AuditLog implements the interface.
var _ driven.AuditLog = (*AuditLog)(nil)

// AuditLog is an in-memory implementation of driven.AuditLog.
type AuditLog struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

// NewAuditLog creates a new in-memory audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Append adds an entry.
func (l *AuditLog) Append(_ context.Context, entry domain.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Seq = int64(len(l.entries) + 1)
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	l.entries = append(l.entries, entry)
	return nil
}

// List returns matching entries in append order.
func (l *AuditLog) List(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.AuditEntry
	for _, e := range l.entries {
		if filter.JobID != "" && e.JobID != filter.JobID {
			continue
		}
		if len(filter.Events) > 0 && !slices.Contains(filter.Events, e.Event) {
			continue
		}
		out = append(out, e)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}
