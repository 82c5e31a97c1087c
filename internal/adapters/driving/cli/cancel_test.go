package cli

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

func TestCancelCmd_QueuedJob(t *testing.T) {
	s, svc := withSync(t)
	job := testJob(domain.JobCancelled)
	svc.On("Cancel", mock.Anything, "job-1").Return(&job, nil)

	out, err := execute(t, s, "cancel", "job-1")

	require.NoError(t, err)
	assert.Contains(t, out, "Job job-1 cancelled.")
}

func TestCancelCmd_RunningJob(t *testing.T) {
	s, svc := withSync(t)
	job := testJob(domain.JobProcessing)
	job.CancelRequested = true
	svc.On("Cancel", mock.Anything, "job-1").Return(&job, nil)

	out, err := execute(t, s, "cancel", "job-1")

	require.NoError(t, err)
	assert.Contains(t, out, "Cancellation requested for job job-1")
}

func TestCancelCmd_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"terminal", fmt.Errorf("job job-1 is completed: %w", domain.ErrJobTerminal), "already finished"},
		{"not found", fmt.Errorf("job job-1: %w", domain.ErrNotFound), "cancel job"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, svc := withSync(t)
			svc.On("Cancel", mock.Anything, "job-1").Return(nil, tt.err)

			_, err := execute(t, s, "cancel", "job-1")

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCancelCmd_RequiresJobID(t *testing.T) {
	s, _ := withSync(t)
	_, err := execute(t, s, "cancel")
	assert.Error(t, err)
}
