package cli

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driving"
)

func testJob(status domain.JobStatus) domain.SyncJob {
	return domain.SyncJob{
		ID:            "job-1",
		SourceSiteID:  "main",
		TargetSiteIDs: []string{"blog", "shop"},
		Selector:      domain.ContentSelector{Kind: domain.KindArticle, All: true},
		Status:        status,
		Attempts:      1,
		CreatedAt:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func testReport(status domain.JobStatus) *driving.JobReport {
	return &driving.JobReport{
		Job: testJob(status),
		Records: []domain.SyncRecord{
			{
				JobID:           "job-1",
				TargetSiteID:    "blog",
				UnitKey:         domain.NewUnitKey(domain.KindArticle, "main", "7"),
				AppliedRevision: 5,
				Outcome:         domain.OutcomeSuccess,
				TargetID:        "t-7",
			},
			{
				JobID:           "job-1",
				TargetSiteID:    "shop",
				UnitKey:         domain.NewUnitKey(domain.KindArticle, "main", "7"),
				AppliedRevision: 5,
				Outcome:         domain.OutcomeSkipped,
				Detail:          "target edited since last sync",
			},
		},
	}
}

func TestSyncCmd_Use(t *testing.T) {
	assert.Equal(t, "sync <selector>", syncCmd.Use)
	assert.Equal(t, "Queue a sync from a source site to target sites", syncCmd.Short)
}

func TestSyncCmd_Enqueues(t *testing.T) {
	s, svc := withSync(t)
	want := driving.EnqueueRequest{
		SourceSiteID:  "main",
		TargetSiteIDs: []string{"blog", "shop"},
		Selector:      domain.ContentSelector{Kind: domain.KindPage, Category: "news"},
	}
	svc.On("EnqueueSync", mock.Anything, want).Return("job-1", nil)

	out, err := execute(t, s, "sync", "page:category=news", "--from", "main", "--to", "blog,shop")

	require.NoError(t, err)
	assert.Contains(t, out, "Queued job job-1: page:category=news from main to blog, shop")
}

func TestSyncCmd_RepeatedTargets(t *testing.T) {
	s, svc := withSync(t)
	svc.On("EnqueueSync", mock.Anything, mock.MatchedBy(func(req driving.EnqueueRequest) bool {
		return assert.ObjectsAreEqual([]string{"blog", "shop"}, req.TargetSiteIDs)
	})).Return("job-1", nil)

	_, err := execute(t, s, "sync", "article:*", "--from", "main", "--to", "blog", "--to", "shop")
	require.NoError(t, err)
}

func TestSyncCmd_JSONOutput(t *testing.T) {
	s, svc := withSync(t)
	svc.On("EnqueueSync", mock.Anything, mock.Anything).Return("job-9", nil)

	out, err := execute(t, s, "-o", "json", "sync", "article:1,2", "--from", "main", "--to", "blog")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "job-9", got["job_id"])
}

func TestSyncCmd_InvalidSelector(t *testing.T) {
	s, _ := withSync(t)

	_, err := execute(t, s, "sync", "article:", "--from", "main", "--to", "blog")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSyncCmd_EnqueueError(t *testing.T) {
	s, svc := withSync(t)
	svc.On("EnqueueSync", mock.Anything, mock.Anything).
		Return("", errors.New("site nowhere: "+domain.ErrNotFound.Error()))

	_, err := execute(t, s, "sync", "article:*", "--from", "main", "--to", "nowhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enqueue sync")
}

func TestSyncCmd_WaitUntilCompleted(t *testing.T) {
	prev := pollInterval
	pollInterval = time.Millisecond
	t.Cleanup(func() { pollInterval = prev })

	s, svc := withSync(t)
	svc.On("EnqueueSync", mock.Anything, mock.Anything).Return("job-1", nil)
	svc.On("Job", mock.Anything, "job-1").Return(&driving.JobReport{Job: testJob(domain.JobQueued)}, nil).Once()
	svc.On("Job", mock.Anything, "job-1").Return(testReport(domain.JobProcessing), nil).Once()
	svc.On("Job", mock.Anything, "job-1").Return(testReport(domain.JobCompleted), nil).Once()

	out, err := execute(t, s, "sync", "article:*", "--from", "main", "--to", "blog,shop", "--wait")

	require.NoError(t, err)
	assert.Contains(t, out, "queued (0 records)")
	assert.Contains(t, out, "processing (2 records)")
	assert.Contains(t, out, "Status:    completed")
	assert.Contains(t, out, "Records:   1 success, 1 skipped, 0 failed")
	assert.Contains(t, out, "target edited since last sync")
}

func TestSyncCmd_WaitDeadLetter(t *testing.T) {
	prev := pollInterval
	pollInterval = time.Millisecond
	t.Cleanup(func() { pollInterval = prev })

	report := testReport(domain.JobDeadLetter)
	report.Job.Attempts = 5
	report.Job.LastError = "target unavailable: shop offline"

	s, svc := withSync(t)
	svc.On("EnqueueSync", mock.Anything, mock.Anything).Return("job-1", nil)
	svc.On("Job", mock.Anything, "job-1").Return(report, nil)

	out, err := execute(t, s, "sync", "article:*", "--from", "main", "--to", "blog,shop", "--wait")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "finished as dead_letter")
	assert.Contains(t, out, "shop offline")
}

func TestSyncCmd_WaitTimeout(t *testing.T) {
	prev := pollInterval
	pollInterval = time.Millisecond
	t.Cleanup(func() { pollInterval = prev })

	s, svc := withSync(t)
	svc.On("EnqueueSync", mock.Anything, mock.Anything).Return("job-1", nil)
	svc.On("Job", mock.Anything, "job-1").Return(&driving.JobReport{Job: testJob(domain.JobQueued)}, nil)

	_, err := execute(t, s, "sync", "article:*", "--from", "main", "--to", "blog", "--wait", "--timeout", "20ms")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "waiting for job job-1")
}
