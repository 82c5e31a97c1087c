package mcp

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driving"
)

// mockSyncService is a mock implementation of driving.SyncService.
type mockSyncService struct {
	mock.Mock
}

func (m *mockSyncService) EnqueueSync(ctx context.Context, req driving.EnqueueRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockSyncService) Cancel(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	args := m.Called(ctx, jobID)
	job, _ := args.Get(0).(*domain.SyncJob)
	return job, args.Error(1)
}

func (m *mockSyncService) Job(ctx context.Context, jobID string) (*driving.JobReport, error) {
	args := m.Called(ctx, jobID)
	report, _ := args.Get(0).(*driving.JobReport)
	return report, args.Error(1)
}

func (m *mockSyncService) Jobs(ctx context.Context, filter domain.JobFilter) ([]domain.SyncJob, error) {
	args := m.Called(ctx, filter)
	jobs, _ := args.Get(0).([]domain.SyncJob)
	return jobs, args.Error(1)
}

func (m *mockSyncService) Audit(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	args := m.Called(ctx, filter)
	entries, _ := args.Get(0).([]domain.AuditEntry)
	return entries, args.Error(1)
}

func (m *mockSyncService) Sites(ctx context.Context) ([]domain.SiteDescriptor, error) {
	args := m.Called(ctx)
	sites, _ := args.Get(0).([]domain.SiteDescriptor)
	return sites, args.Error(1)
}

func (m *mockSyncService) CheckEnvironment(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
