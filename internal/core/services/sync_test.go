package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driving"
)

type countingNotifier struct{ n int }

func (c *countingNotifier) Notify() { c.n++ }

func TestSyncService_EnqueueSync(t *testing.T) {
	e := newTestEngine(t, testEngineConfig(), domain.SourceWins)
	notifier := &countingNotifier{}
	e.svc.notifier = notifier

	id := e.enqueue(t, pageSelector("42"))

	job := e.job(t, id)
	assert.Equal(t, domain.JobQueued, job.Status)
	assert.Equal(t, "a", job.SourceSiteID)
	assert.Equal(t, 1, notifier.n)

	events := e.events(t, id)
	assert.Equal(t, []domain.AuditEvent{domain.AuditEnqueued}, events)
}

func TestSyncService_EnqueueSync_Invalid(t *testing.T) {
	e := newTestEngine(t, testEngineConfig(), domain.SourceWins)
	e.registry.sites["c"] = domain.SiteDescriptor{ID: "c", Driver: "memory", Kinds: []domain.ContentKind{domain.KindArticle}}

	tests := []struct {
		name string
		req  driving.EnqueueRequest
		want error
	}{
		{
			name: "no targets",
			req:  driving.EnqueueRequest{SourceSiteID: "a", Selector: pageSelector("1")},
			want: domain.ErrInvalidInput,
		},
		{
			name: "target is source",
			req:  driving.EnqueueRequest{SourceSiteID: "a", TargetSiteIDs: []string{"a"}, Selector: pageSelector("1")},
			want: domain.ErrInvalidInput,
		},
		{
			name: "bad selector",
			req:  driving.EnqueueRequest{SourceSiteID: "a", TargetSiteIDs: []string{"b"}, Selector: domain.ContentSelector{Kind: domain.KindPage}},
			want: domain.ErrInvalidInput,
		},
		{
			name: "unknown source",
			req:  driving.EnqueueRequest{SourceSiteID: "x", TargetSiteIDs: []string{"b"}, Selector: pageSelector("1")},
			want: domain.ErrNotFound,
		},
		{
			name: "unknown target",
			req:  driving.EnqueueRequest{SourceSiteID: "a", TargetSiteIDs: []string{"b", "x"}, Selector: pageSelector("1")},
			want: domain.ErrNotFound,
		},
		{
			name: "source does not hold kind",
			req:  driving.EnqueueRequest{SourceSiteID: "c", TargetSiteIDs: []string{"b"}, Selector: pageSelector("1")},
			want: domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := e.svc.EnqueueSync(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, id)
		})
	}

	jobs, err := e.svc.Jobs(context.Background(), domain.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSyncService_Cancel(t *testing.T) {
	e := newTestEngine(t, testEngineConfig(), domain.SourceWins)
	ctx := context.Background()
	id := e.enqueue(t, pageSelector("42"))

	job, err := e.svc.Cancel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, job.Status)
	assert.Equal(t, []domain.AuditEvent{domain.AuditEnqueued, domain.AuditCancelled}, e.events(t, id))

	job, err = e.svc.Cancel(ctx, id)
	assert.ErrorIs(t, err, domain.ErrJobTerminal)
	assert.Nil(t, job)

	_, err = e.svc.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncService_JobReport(t *testing.T) {
	e := newTestEngine(t, testEngineConfig(), domain.SourceWins)
	ctx := context.Background()
	e.source.Put(domain.KindPage, "1", domain.Payload{"title": "One"})
	e.source.Put(domain.KindPage, "2", domain.Payload{"title": "Two"})

	id := e.enqueue(t, domain.ContentSelector{Kind: domain.KindPage, All: true})
	e.runOnce(t)

	report, err := e.svc.Job(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, report.Job.Status)
	require.Len(t, report.Records, 2)
	assert.Equal(t, map[domain.Outcome]int{domain.OutcomeSuccess: 2}, report.Counts())

	// A second run of the same revisions reuses the first job's records.
	id2 := e.enqueue(t, domain.ContentSelector{Kind: domain.KindPage, All: true})
	e.runOnce(t)
	report, err = e.svc.Job(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, report.Job.Status)
	assert.Empty(t, report.Records)
	assert.Empty(t, report.Counts())

	_, err = e.svc.Job(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncService_ListingsAndAudit(t *testing.T) {
	e := newTestEngine(t, testEngineConfig(), domain.SourceWins)
	ctx := context.Background()
	first := e.enqueue(t, pageSelector("1"))
	e.clock.Advance(1)
	second := e.enqueue(t, pageSelector("2"))
	_, err := e.svc.Cancel(ctx, first)
	require.NoError(t, err)

	jobs, err := e.svc.Jobs(ctx, domain.JobFilter{Statuses: []domain.JobStatus{domain.JobQueued}})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, second, jobs[0].ID)

	entries, err := e.svc.Audit(ctx, domain.AuditFilter{Events: []domain.AuditEvent{domain.AuditCancelled}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, first, entries[0].JobID)
	assert.Equal(t, e.clock.Now(), entries[0].At)

	sites, err := e.svc.Sites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "a", sites[0].ID)
}

func TestSyncService_CheckEnvironment(t *testing.T) {
	e := newTestEngine(t, testEngineConfig(), domain.SourceWins)
	ctx := context.Background()

	assert.NoError(t, e.svc.CheckEnvironment(ctx))

	delete(e.registry.sites, "b")
	err := e.svc.CheckEnvironment(ctx)
	assert.ErrorIs(t, err, domain.ErrIncompatibleEnvironment)

	e.registry.err = assert.AnError
	err = e.svc.CheckEnvironment(ctx)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, domain.ErrIncompatibleEnvironment)
}
