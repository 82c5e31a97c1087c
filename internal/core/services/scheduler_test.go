package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sitesync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driving"
)

// mockSyncService records enqueue requests.
type mockSyncService struct {
	driving.SyncService

	mu       sync.Mutex
	requests []driving.EnqueueRequest
	err      error
}

func (m *mockSyncService) EnqueueSync(_ context.Context, req driving.EnqueueRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.requests = append(m.requests, req)
	return "job-" + req.SourceSiteID, nil
}

func (m *mockSyncService) enqueued() []driving.EnqueueRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]driving.EnqueueRequest(nil), m.requests...)
}

func testScheduledSync(id string, interval time.Duration) domain.ScheduledSync {
	return domain.ScheduledSync{
		ID:            id,
		Name:          "Nightly " + id,
		SourceSiteID:  "a",
		TargetSiteIDs: []string{"b"},
		Selector:      domain.ContentSelector{Kind: domain.KindArticle, All: true},
		Interval:      interval,
		Enabled:       true,
	}
}

func newTestScheduler(schedules ...domain.ScheduledSync) (*Scheduler, *memory.SchedulerStore, *mockSyncService, *testClock) {
	store := memory.NewSchedulerStore()
	svc := &mockSyncService{}
	clock := newTestClock()
	cfg := domain.DefaultSchedulerConfig()
	cfg.Tick = 10 * time.Millisecond
	s := NewScheduler(cfg, schedules, store, svc)
	s.now = clock.Now
	return s, store, svc, clock
}

func TestScheduler_StartStop(t *testing.T) {
	s, _, _, _ := newTestScheduler()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Stop())
	assert.NoError(t, <-done)
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s, _, _, _ := newTestScheduler()
	assert.NoError(t, s.Stop())
}

func TestScheduler_Disabled(t *testing.T) {
	s, _, svc, _ := newTestScheduler(testScheduledSync("nightly", time.Hour))
	s.config.Enabled = false

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, svc.enqueued())
}

func TestScheduler_InitialiseSchedules(t *testing.T) {
	s, store, _, clock := newTestScheduler(
		testScheduledSync("nightly", time.Hour),
		domain.ScheduledSync{ID: "broken"},
	)
	ctx := context.Background()
	require.NoError(t, store.SaveSchedule(ctx, &domain.ScheduledSync{ID: "removed", Interval: time.Minute}))

	require.NoError(t, s.initialiseSchedules(ctx))

	schedules, err := store.ListSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, "nightly", schedules[0].ID)
	assert.Equal(t, clock.Now().Add(time.Hour), schedules[0].NextRun)
}

func TestScheduler_EnsureSchedule_UpdateInterval(t *testing.T) {
	s, store, _, clock := newTestScheduler()
	ctx := context.Background()

	cfg := testScheduledSync("nightly", time.Hour)
	require.NoError(t, s.ensureSchedule(ctx, cfg))

	stored, err := store.GetSchedule(ctx, "nightly")
	require.NoError(t, err)
	stored.LastJobID = "job-1"
	require.NoError(t, store.SaveSchedule(ctx, stored))

	clock.Advance(10 * time.Minute)
	cfg.Interval = 2 * time.Hour
	cfg.Name = "Renamed"
	require.NoError(t, s.ensureSchedule(ctx, cfg))

	stored, err = store.GetSchedule(ctx, "nightly")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, stored.Interval)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, clock.Now().Add(2*time.Hour), stored.NextRun)
	assert.Equal(t, "job-1", stored.LastJobID)
}

func TestScheduler_FiresDueSchedules(t *testing.T) {
	s, store, svc, clock := newTestScheduler(testScheduledSync("nightly", time.Hour))
	ctx := context.Background()
	require.NoError(t, s.initialiseSchedules(ctx))

	s.checkAndRunDue(ctx)
	s.wg.Wait()
	assert.Empty(t, svc.enqueued(), "not due yet")

	clock.Advance(time.Hour)
	s.checkAndRunDue(ctx)
	s.wg.Wait()

	reqs := svc.enqueued()
	require.Len(t, reqs, 1)
	assert.Equal(t, "a", reqs[0].SourceSiteID)
	assert.Equal(t, []string{"b"}, reqs[0].TargetSiteIDs)
	assert.True(t, reqs[0].Selector.All)

	sched, err := store.GetSchedule(ctx, "nightly")
	require.NoError(t, err)
	assert.Equal(t, "job-a", sched.LastJobID)
	assert.Equal(t, clock.Now(), sched.LastRun)
	assert.Equal(t, clock.Now().Add(time.Hour), sched.NextRun)
	assert.Empty(t, sched.LastError)

	history, err := store.GetHistory(ctx, "nightly", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)
	assert.Equal(t, "job-a", history[0].JobID)
}

func TestScheduler_RecordsEnqueueError(t *testing.T) {
	s, store, svc, clock := newTestScheduler(testScheduledSync("nightly", time.Hour))
	svc.err = errors.New("site b is not registered")
	ctx := context.Background()
	require.NoError(t, s.initialiseSchedules(ctx))

	clock.Advance(time.Hour)
	s.checkAndRunDue(ctx)
	s.wg.Wait()

	sched, err := store.GetSchedule(ctx, "nightly")
	require.NoError(t, err)
	assert.Equal(t, "site b is not registered", sched.LastError)
	assert.True(t, sched.LastSuccess.IsZero())
	assert.Equal(t, clock.Now().Add(time.Hour), sched.NextRun)

	history, err := store.GetHistory(ctx, "nightly", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)
	assert.Equal(t, "site b is not registered", history[0].Error)
}

func TestScheduler_SkipsDisabledSchedule(t *testing.T) {
	cfg := testScheduledSync("paused", time.Minute)
	cfg.Enabled = false
	s, _, svc, clock := newTestScheduler(cfg)
	ctx := context.Background()
	require.NoError(t, s.initialiseSchedules(ctx))

	clock.Advance(time.Hour)
	s.checkAndRunDue(ctx)
	s.wg.Wait()

	assert.Empty(t, svc.enqueued())
}

func TestScheduler_RunLoopFires(t *testing.T) {
	s, _, svc, clock := newTestScheduler(testScheduledSync("nightly", time.Hour))
	ctx := context.Background()
	require.NoError(t, s.initialiseSchedules(ctx))
	clock.Advance(time.Hour)

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	assert.Eventually(t, func() bool { return len(svc.enqueued()) == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.NoError(t, <-done)
}
