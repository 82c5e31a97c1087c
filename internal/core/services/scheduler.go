package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
	"github.com/custodia-labs/sitesync/internal/core/ports/driving"
	"github.com/custodia-labs/sitesync/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// Scheduler enqueues recurring syncs. It never runs pipelines itself; jobs
// it enqueues go through the dispatcher like any other.
type Scheduler struct {
	config    domain.SchedulerConfig
	schedules []domain.ScheduledSync
	store     driven.SchedulerStore
	syncSvc   driving.SyncService
	now       func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler for the configured schedules.
func NewScheduler(
	config domain.SchedulerConfig,
	schedules []domain.ScheduledSync,
	store driven.SchedulerStore,
	syncSvc driving.SyncService,
) *Scheduler {
	return &Scheduler{
		config:    config,
		schedules: schedules,
		store:     store,
		syncSvc:   syncSvc,
		now:       time.Now,
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if !s.config.Enabled {
		logger.Info("scheduler: disabled")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		}
	}

	if err := s.initialiseSchedules(ctx); err != nil {
		logger.Warn("scheduler: failed to initialise schedules: %v", err)
	}

	return s.run(ctx)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	// Wait for in-flight firings
	s.wg.Wait()

	return nil
}

// initialiseSchedules stores configured schedules and drops ones removed
// from configuration.
func (s *Scheduler) initialiseSchedules(ctx context.Context) error {
	configured := make(map[string]bool, len(s.schedules))
	for i := range s.schedules {
		cfg := s.schedules[i]
		if err := cfg.Validate(); err != nil {
			logger.Warn("scheduler: skipping schedule: %v", err)
			continue
		}
		configured[cfg.ID] = true
		if err := s.ensureSchedule(ctx, cfg); err != nil {
			return err
		}
	}

	stored, err := s.store.ListSchedules(ctx)
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	for i := range stored {
		if !configured[stored[i].ID] {
			if err := s.store.DeleteSchedule(ctx, stored[i].ID); err != nil {
				return fmt.Errorf("delete schedule %s: %w", stored[i].ID, err)
			}
		}
	}
	return nil
}

// ensureSchedule creates or updates a schedule in the store, keeping its
// run history.
func (s *Scheduler) ensureSchedule(ctx context.Context, cfg domain.ScheduledSync) error {
	sched, err := s.store.GetSchedule(ctx, cfg.ID)
	if err != nil {
		return err
	}

	now := s.now()
	if sched == nil {
		sched = &cfg
		sched.NextRun = now.Add(cfg.Interval)
	} else {
		if sched.Interval != cfg.Interval {
			sched.Interval = cfg.Interval
			sched.NextRun = now.Add(cfg.Interval)
		}
		sched.Name = cfg.Name
		sched.SourceSiteID = cfg.SourceSiteID
		sched.TargetSiteIDs = cfg.TargetSiteIDs
		sched.Selector = cfg.Selector
		sched.Enabled = cfg.Enabled
	}

	return s.store.SaveSchedule(ctx, sched)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	// Check for due schedules immediately on startup
	s.checkAndRunDue(ctx)

	ticker := time.NewTicker(s.config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDue(ctx)
		}
	}
}

// checkAndRunDue fires every schedule that is due.
func (s *Scheduler) checkAndRunDue(ctx context.Context) {
	schedules, err := s.store.ListSchedules(ctx)
	if err != nil {
		logger.Warn("scheduler: failed to list schedules: %v", err)
		return
	}

	now := s.now()
	for i := range schedules {
		if schedules[i].Due(now) {
			s.fire(ctx, &schedules[i])
		}
	}
}

// fire enqueues the schedule's job and records the result.
func (s *Scheduler) fire(ctx context.Context, sched *domain.ScheduledSync) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		result := &domain.TaskResult{
			TaskID:    sched.ID,
			StartedAt: s.now(),
		}

		jobID, err := s.syncSvc.EnqueueSync(ctx, driving.EnqueueRequest{
			SourceSiteID:  sched.SourceSiteID,
			TargetSiteIDs: sched.TargetSiteIDs,
			Selector:      sched.Selector,
		})

		result.EndedAt = s.now()
		if err != nil {
			result.Error = err.Error()
			sched.LastError = err.Error()
			logger.Warn("scheduler: %s failed to enqueue: %v", sched.ID, err)
		} else {
			result.Success = true
			result.JobID = jobID
			sched.LastError = ""
			sched.LastSuccess = result.EndedAt
			sched.LastJobID = jobID
			logger.Info("scheduler: %s enqueued job %s", sched.ID, jobID)
		}

		sched.LastRun = result.StartedAt
		sched.NextRun = result.EndedAt.Add(sched.Interval)

		if err := s.store.SaveSchedule(ctx, sched); err != nil {
			logger.Warn("scheduler: failed to save schedule %s: %v", sched.ID, err)
		}
		if err := s.store.RecordResult(ctx, result); err != nil {
			logger.Warn("scheduler: failed to record result for %s: %v", sched.ID, err)
		}
		if err := s.store.PruneHistory(ctx, s.config.HistoryLimit); err != nil {
			logger.Warn("scheduler: failed to prune history: %v", err)
		}
	}()
}
