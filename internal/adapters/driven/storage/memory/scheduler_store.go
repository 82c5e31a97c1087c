package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
)

// Ensure SchedulerStore implements the interface.
var _ driven.SchedulerStore = (*SchedulerStore)(nil)

// SchedulerStore is an in-memory implementation of driven.SchedulerStore.
type SchedulerStore struct {
	mu        sync.RWMutex
	schedules map[string]domain.ScheduledSync
	results   []domain.TaskResult
}

// NewSchedulerStore creates a new in-memory scheduler store.
func NewSchedulerStore() *SchedulerStore {
	return &SchedulerStore{
		schedules: make(map[string]domain.ScheduledSync),
	}
}

// GetSchedule retrieves a schedule, or nil if it does not exist.
func (s *SchedulerStore) GetSchedule(_ context.Context, id string) (*domain.ScheduledSync, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[id]
	if !ok {
		return nil, nil
	}
	sched.TargetSiteIDs = slices.Clone(sched.TargetSiteIDs)
	return &sched, nil
}

// ListSchedules returns all schedules ordered by ID.
func (s *SchedulerStore) ListSchedules(_ context.Context) ([]domain.ScheduledSync, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ScheduledSync, 0, len(s.schedules))
	for _, sched := range s.schedules {
		sched.TargetSiteIDs = slices.Clone(sched.TargetSiteIDs)
		out = append(out, sched)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveSchedule creates or updates a schedule.
func (s *SchedulerStore) SaveSchedule(_ context.Context, schedule *domain.ScheduledSync) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched := *schedule
	sched.TargetSiteIDs = slices.Clone(schedule.TargetSiteIDs)
	s.schedules[sched.ID] = sched
	return nil
}

// DeleteSchedule removes a schedule and its history.
func (s *SchedulerStore) DeleteSchedule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, id)
	s.results = slices.DeleteFunc(s.results, func(r domain.TaskResult) bool { return r.TaskID == id })
	return nil
}

// RecordResult logs a schedule firing.
func (s *SchedulerStore) RecordResult(_ context.Context, result *domain.TaskResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, *result)
	return nil
}

// GetHistory returns the most recent results for a schedule, newest first.
func (s *SchedulerStore) GetHistory(_ context.Context, id string, limit int) ([]domain.TaskResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.TaskResult
	for i := len(s.results) - 1; i >= 0; i-- {
		if s.results[i].TaskID != id {
			continue
		}
		out = append(out, s.results[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// PruneHistory keeps the most recent keep results per schedule.
func (s *SchedulerStore) PruneHistory(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	kept := make([]domain.TaskResult, 0, len(s.results))
	for i := len(s.results) - 1; i >= 0; i-- {
		r := s.results[i]
		counts[r.TaskID]++
		if counts[r.TaskID] <= keep {
			kept = append(kept, r)
		}
	}
	slices.Reverse(kept)
	s.results = kept
	return nil
}
