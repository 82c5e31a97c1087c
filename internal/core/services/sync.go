package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
	"github.com/custodia-labs/sitesync/internal/core/ports/driving"
	"github.com/custodia-labs/sitesync/internal/logger"
)

// Ensure SyncService implements the interface.
var _ driving.SyncService = (*SyncService)(nil)

// minSites is the smallest network that can be synced.
const minSites = 2

// Notifier is told when a job is enqueued so idle workers wake early.
type Notifier interface {
	Notify()
}

// SyncService validates and enqueues sync jobs and reports on them.
type SyncService struct {
	jobs     driven.JobStore
	records  driven.SyncRecordStore
	audit    driven.AuditLog
	registry driven.SiteRegistry
	notifier Notifier
	now      func() time.Time
}

// NewSyncService creates a sync service. notifier may be nil.
func NewSyncService(
	jobs driven.JobStore,
	records driven.SyncRecordStore,
	audit driven.AuditLog,
	registry driven.SiteRegistry,
	notifier Notifier,
) *SyncService {
	return &SyncService{
		jobs:     jobs,
		records:  records,
		audit:    audit,
		registry: registry,
		notifier: notifier,
		now:      time.Now,
	}
}

// EnqueueSync validates the request against the registry and enqueues a job.
func (s *SyncService) EnqueueSync(ctx context.Context, req driving.EnqueueRequest) (string, error) {
	job := domain.SyncJob{
		SourceSiteID:  req.SourceSiteID,
		TargetSiteIDs: req.TargetSiteIDs,
		Selector:      req.Selector,
		Status:        domain.JobQueued,
	}
	if err := job.Validate(); err != nil {
		return "", err
	}

	source, err := s.registry.GetSite(ctx, req.SourceSiteID)
	if err != nil {
		return "", fmt.Errorf("source site %s: %w", req.SourceSiteID, err)
	}
	if !source.Accepts(req.Selector.Kind) {
		return "", fmt.Errorf("%w: site %s does not hold %s content", domain.ErrInvalidInput, source.ID, req.Selector.Kind)
	}
	for _, id := range req.TargetSiteIDs {
		if _, err := s.registry.GetSite(ctx, id); err != nil {
			return "", fmt.Errorf("target site %s: %w", id, err)
		}
	}

	id, err := s.jobs.Enqueue(ctx, job)
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	s.appendAudit(ctx, domain.AuditEntry{
		JobID:   id,
		Event:   domain.AuditEnqueued,
		Message: fmt.Sprintf("%s from %s to %v", req.Selector, req.SourceSiteID, req.TargetSiteIDs),
	})
	if s.notifier != nil {
		s.notifier.Notify()
	}
	return id, nil
}

// Cancel requests cancellation. Queued and retry-waiting jobs are cancelled
// immediately; running jobs stop after their current pair.
func (s *SyncService) Cancel(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	job, err := s.jobs.RequestCancel(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	if job.Status == domain.JobCancelled {
		s.appendAudit(ctx, domain.AuditEntry{
			JobID:    job.ID,
			Event:    domain.AuditCancelled,
			Attempts: job.Attempts,
			Message:  "cancelled before processing",
		})
	}
	return job, nil
}

// Job returns a job and its pair records.
func (s *SyncService) Job(ctx context.Context, jobID string) (*driving.JobReport, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	records, err := s.records.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return &driving.JobReport{Job: *job, Records: records}, nil
}

// Jobs lists jobs, newest first.
func (s *SyncService) Jobs(ctx context.Context, filter domain.JobFilter) ([]domain.SyncJob, error) {
	return s.jobs.List(ctx, filter)
}

// Audit lists audit entries in append order.
func (s *SyncService) Audit(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	return s.audit.List(ctx, filter)
}

// Sites lists the registered sites.
func (s *SyncService) Sites(ctx context.Context) ([]domain.SiteDescriptor, error) {
	return s.registry.ListSites(ctx)
}

// CheckEnvironment reports domain.ErrIncompatibleEnvironment unless at
// least two sites are registered.
func (s *SyncService) CheckEnvironment(ctx context.Context) error {
	sites, err := s.registry.ListSites(ctx)
	if err != nil {
		return fmt.Errorf("list sites: %w", err)
	}
	if len(sites) < minSites {
		return fmt.Errorf("%w: %d site(s) registered, at least %d required",
			domain.ErrIncompatibleEnvironment, len(sites), minSites)
	}
	return nil
}

func (s *SyncService) appendAudit(ctx context.Context, entry domain.AuditEntry) {
	entry.At = s.now()
	if err := s.audit.Append(ctx, entry); err != nil {
		logger.Warn("sync: failed to append audit entry for job %s: %v", entry.JobID, err)
	}
}
