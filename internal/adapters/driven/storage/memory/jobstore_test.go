package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

func newJob(source string, targets ...string) domain.SyncJob {
	return domain.SyncJob{
		SourceSiteID:  source,
		TargetSiteIDs: targets,
		Selector:      domain.ContentSelector{Kind: domain.KindPage, ID: "42"},
	}
}

// fakeClock is a settable clock for lease and backoff tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedJobStore() (*JobStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewJobStore()
	store.SetClock(clock.Now)
	return store, clock
}

func TestJobStore_Enqueue_AssignsIDAndQueues(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	id, err := store.Enqueue(ctx, newJob("a", "b"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	job, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, job.Status)
	assert.Equal(t, 0, job.Attempts)
	assert.False(t, job.CreatedAt.IsZero())
}

func TestJobStore_Enqueue_DuplicateID(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	job := newJob("a", "b")
	job.ID = "job-1"
	_, err := store.Enqueue(ctx, job)
	require.NoError(t, err)

	_, err = store.Enqueue(ctx, job)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestJobStore_LeaseNext_Empty(t *testing.T) {
	store := NewJobStore()

	job, err := store.LeaseNext(context.Background(), "w1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestJobStore_LeaseNext_FIFO(t *testing.T) {
	store, _ := newClockedJobStore()
	ctx := context.Background()

	first, err := store.Enqueue(ctx, newJob("a", "b"))
	require.NoError(t, err)
	second, err := store.Enqueue(ctx, newJob("a", "c"))
	require.NoError(t, err)

	job, err := store.LeaseNext(ctx, "w1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, first, job.ID)

	job, err = store.LeaseNext(ctx, "w2", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, second, job.ID)
}

func TestJobStore_LeaseNext_SetsLease(t *testing.T) {
	store, clock := newClockedJobStore()
	ctx := context.Background()

	id, err := store.Enqueue(ctx, newJob("a", "b"))
	require.NoError(t, err)

	job, err := store.LeaseNext(ctx, "w1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, domain.JobLeased, job.Status)
	assert.Equal(t, "w1", job.LeaseOwner)
	assert.Equal(t, clock.Now().Add(time.Minute), job.LeaseExpiresAt)
	assert.Equal(t, 1, job.Attempts)

	// Leased and unexpired: nothing else to hand out
	next, err := store.LeaseNext(ctx, "w2", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestJobStore_LeaseNext_ExpiredLeaseReclaimed(t *testing.T) {
	store, clock := newClockedJobStore()
	ctx := context.Background()

	id, err := store.Enqueue(ctx, newJob("a", "b"))
	require.NoError(t, err)

	_, err = store.LeaseNext(ctx, "w1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.MarkProcessing(ctx, id, "w1"))

	clock.Advance(2 * time.Minute)

	job, err := store.LeaseNext(ctx, "w2", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "w2", job.LeaseOwner)
	assert.Equal(t, 2, job.Attempts)

	// The original worker lost the lease
	err = store.Ack(ctx, id, "w1", domain.JobCompleted)
	assert.ErrorIs(t, err, domain.ErrLeaseLost)
}

func TestJobStore_LeaseNext_ConcurrentSingleWinner(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	_, err := store.Enqueue(ctx, newJob("a", "b"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := store.LeaseNext(ctx, "w", time.Minute)
			assert.NoError(t, err)
			if job != nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestJobStore_Requeue_RespectsNotBefore(t *testing.T) {
	store, clock := newClockedJobStore()
	ctx := context.Background()

	id, err := store.Enqueue(ctx, newJob("a", "b"))
	require.NoError(t, err)
	_, err = store.LeaseNext(ctx, "w1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.Requeue(ctx, id, "w1", clock.Now().Add(10*time.Second), "target down"))

	job, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailedRetryable, job.Status)
	assert.Equal(t, "target down", job.LastError)
	assert.Empty(t, job.LeaseOwner)

	leased, err := store.LeaseNext(ctx, "w1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, leased, "not eligible before not_before")

	clock.Advance(10 * time.Second)
	leased, err = store.LeaseNext(ctx, "w1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, leased)
	assert.Equal(t, 2, leased.Attempts)
}

func TestJobStore_TerminalSetOnce(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	id, err := store.Enqueue(ctx, newJob("a", "b"))
	require.NoError(t, err)
	_, err = store.LeaseNext(ctx, "w1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.Ack(ctx, id, "w1", domain.JobCompleted))

	assert.ErrorIs(t, store.Ack(ctx, id, "w1", domain.JobCompleted), domain.ErrJobTerminal)
	assert.ErrorIs(t, store.MarkDead(ctx, id, "w1", "late"), domain.ErrJobTerminal)
	assert.ErrorIs(t, store.Requeue(ctx, id, "w1", time.Now(), "late"), domain.ErrJobTerminal)

	job, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.False(t, job.FinishedAt.IsZero())

	leased, err := store.LeaseNext(ctx, "w2", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, leased)
}

func TestJobStore_Ack_InvalidStatus(t *testing.T) {
	store := NewJobStore()
	err := store.Ack(context.Background(), "job", "w1", domain.JobQueued)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestJobStore_MarkDead(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	id, err := store.Enqueue(ctx, newJob("a", "b"))
	require.NoError(t, err)
	_, err = store.LeaseNext(ctx, "w1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.MarkDead(ctx, id, "w1", "rejected"))

	job, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobDeadLetter, job.Status)
	assert.Equal(t, "rejected", job.LastError)
}

func TestJobStore_RequestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("queued job cancelled immediately", func(t *testing.T) {
		store := NewJobStore()
		id, err := store.Enqueue(ctx, newJob("a", "b"))
		require.NoError(t, err)

		job, err := store.RequestCancel(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.JobCancelled, job.Status)
		assert.True(t, job.CancelRequested)
	})

	t.Run("running job flagged", func(t *testing.T) {
		store := NewJobStore()
		id, err := store.Enqueue(ctx, newJob("a", "b"))
		require.NoError(t, err)
		_, err = store.LeaseNext(ctx, "w1", time.Minute)
		require.NoError(t, err)

		job, err := store.RequestCancel(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.JobLeased, job.Status)
		assert.True(t, job.CancelRequested)
	})

	t.Run("terminal job", func(t *testing.T) {
		store := NewJobStore()
		id, err := store.Enqueue(ctx, newJob("a", "b"))
		require.NoError(t, err)
		_, err = store.RequestCancel(ctx, id)
		require.NoError(t, err)

		_, err = store.RequestCancel(ctx, id)
		assert.ErrorIs(t, err, domain.ErrJobTerminal)
	})

	t.Run("unknown job", func(t *testing.T) {
		store := NewJobStore()
		_, err := store.RequestCancel(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestJobStore_List(t *testing.T) {
	store, clock := newClockedJobStore()
	ctx := context.Background()

	first, err := store.Enqueue(ctx, newJob("a", "b"))
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := store.Enqueue(ctx, newJob("c", "b"))
	require.NoError(t, err)
	_, err = store.RequestCancel(ctx, first)
	require.NoError(t, err)

	all, err := store.List(ctx, domain.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second, all[0].ID, "newest first")

	queued, err := store.List(ctx, domain.JobFilter{Statuses: []domain.JobStatus{domain.JobQueued}})
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, second, queued[0].ID)

	bySource, err := store.List(ctx, domain.JobFilter{SourceSiteID: "a"})
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, first, bySource[0].ID)

	limited, err := store.List(ctx, domain.JobFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestJobStore_Get_ReturnsCopy(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	id, err := store.Enqueue(ctx, newJob("a", "b"))
	require.NoError(t, err)

	job, err := store.Get(ctx, id)
	require.NoError(t, err)
	job.TargetSiteIDs[0] = "mutated"

	again, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, again.TargetSiteIDs)
}

func TestAuditLog_AppendAndList(t *testing.T) {
	log := NewAuditLog()
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, domain.AuditEntry{JobID: "j1", Event: domain.AuditEnqueued}))
	require.NoError(t, log.Append(ctx, domain.AuditEntry{JobID: "j2", Event: domain.AuditEnqueued}))
	require.NoError(t, log.Append(ctx, domain.AuditEntry{JobID: "j1", Event: domain.AuditCompleted}))

	all, err := log.List(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(1), all[0].Seq)
	assert.Equal(t, int64(3), all[2].Seq)
	assert.False(t, all[0].At.IsZero())

	j1, err := log.List(ctx, domain.AuditFilter{JobID: "j1"})
	require.NoError(t, err)
	require.Len(t, j1, 2)
	assert.Equal(t, domain.AuditCompleted, j1[1].Event)

	completed, err := log.List(ctx, domain.AuditFilter{Events: []domain.AuditEvent{domain.AuditCompleted}})
	require.NoError(t, err)
	assert.Len(t, completed, 1)

	last, err := log.List(ctx, domain.AuditFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, int64(3), last[0].Seq)
}
