package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
)

// ==================== Job Store ====================

// jobStore implements driven.JobStore.
type jobStore struct {
	store *Store
}

var _ driven.JobStore = (*jobStore)(nil)

const jobColumns = `id, source_site_id, target_site_ids, selector, status, attempts, last_error,
	not_before, lease_owner, lease_expires_at, cancel_requested, created_at, updated_at, finished_at`

// ownedBy restricts an UPDATE to a live lease held by the worker.
const ownedBy = `id = ? AND lease_owner = ? AND status IN ('leased', 'processing')`

// Enqueue stores a new queued job.
func (s *jobStore) Enqueue(ctx context.Context, job domain.SyncJob) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	targets, err := json.Marshal(job.TargetSiteIDs)
	if err != nil {
		return "", fmt.Errorf("marshalling targets: %w", err)
	}
	selector, err := json.Marshal(job.Selector)
	if err != nil {
		return "", fmt.Errorf("marshalling selector: %w", err)
	}

	now := s.store.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO sync_jobs (id, seq, source_site_id, target_site_ids, selector, status, created_at, updated_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM sync_jobs), ?, ?, ?, ?, ?, ?)
	`, job.ID, job.SourceSiteID, string(targets), string(selector), string(domain.JobQueued),
		unixNano(job.CreatedAt), unixNano(now))
	if err != nil {
		if isConstraintErr(err) {
			return "", fmt.Errorf("job %s: %w", job.ID, domain.ErrAlreadyExists)
		}
		return "", fmt.Errorf("inserting job: %w", err)
	}
	return job.ID, nil
}

// LeaseNext claims the oldest eligible job in a single statement.
func (s *jobStore) LeaseNext(ctx context.Context, workerID string, lease time.Duration) (*domain.SyncJob, error) {
	now := unixNano(s.store.now())
	row := s.store.db.QueryRowContext(ctx, `
		UPDATE sync_jobs SET
			status = 'leased',
			lease_owner = ?,
			lease_expires_at = ?,
			attempts = attempts + 1,
			updated_at = ?
		WHERE id = (
			SELECT id FROM sync_jobs
			WHERE (status IN ('queued', 'failed_retryable') AND not_before <= ?)
			   OR (status IN ('leased', 'processing') AND lease_expires_at <= ?)
			ORDER BY created_at, seq
			LIMIT 1
		)
		RETURNING `+jobColumns,
		workerID, now+int64(lease), now, now, now)

	job, err := scanJob(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("leasing job: %w", err)
	}
	return job, nil
}

// MarkProcessing moves a leased job to processing.
func (s *jobStore) MarkProcessing(ctx context.Context, jobID, workerID string) error {
	return s.transition(ctx, jobID, workerID, `status = 'processing', updated_at = ?`, unixNano(s.store.now()))
}

// Ack finalises a job as completed or cancelled.
func (s *jobStore) Ack(ctx context.Context, jobID, workerID string, status domain.JobStatus) error {
	if status != domain.JobCompleted && status != domain.JobCancelled {
		return fmt.Errorf("%w: cannot ack with status %s", domain.ErrInvalidInput, status)
	}
	now := unixNano(s.store.now())
	return s.transition(ctx, jobID, workerID,
		`status = ?, lease_owner = '', lease_expires_at = 0, updated_at = ?, finished_at = ?`,
		string(status), now, now)
}

// Requeue schedules a retry at notBefore.
func (s *jobStore) Requeue(ctx context.Context, jobID, workerID string, notBefore time.Time, lastErr string) error {
	return s.transition(ctx, jobID, workerID,
		`status = 'failed_retryable', not_before = ?, last_error = ?, lease_owner = '', lease_expires_at = 0, updated_at = ?`,
		unixNano(notBefore), lastErr, unixNano(s.store.now()))
}

// MarkDead dead-letters a job.
func (s *jobStore) MarkDead(ctx context.Context, jobID, workerID, reason string) error {
	now := unixNano(s.store.now())
	return s.transition(ctx, jobID, workerID,
		`status = 'dead_letter', last_error = ?, lease_owner = '', lease_expires_at = 0, updated_at = ?, finished_at = ?`,
		reason, now, now)
}

// transition applies set to a job the worker owns. When nothing matched it
// reports why.
func (s *jobStore) transition(ctx context.Context, jobID, workerID, set string, args ...any) error {
	args = append(args, jobID, workerID)
	res, err := s.store.db.ExecContext(ctx, `UPDATE sync_jobs SET `+set+` WHERE `+ownedBy, args...)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	if n == 1 {
		return nil
	}

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return domain.ErrJobTerminal
	}
	return domain.ErrLeaseLost
}

// RequestCancel flags a job; queued and retry-waiting jobs are cancelled at once.
func (s *jobStore) RequestCancel(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	now := unixNano(s.store.now())
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE sync_jobs SET
			cancel_requested = 1,
			status = CASE WHEN status IN ('queued', 'failed_retryable') THEN 'cancelled' ELSE status END,
			finished_at = CASE WHEN status IN ('queued', 'failed_retryable') THEN ? ELSE finished_at END,
			updated_at = ?
		WHERE id = ? AND status NOT IN ('completed', 'dead_letter', 'cancelled')
	`, now, now, jobID)
	if err != nil {
		return nil, fmt.Errorf("cancelling job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("cancelling job: %w", err)
	}

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return job, domain.ErrJobTerminal
	}
	return job, nil
}

// Get retrieves a job by ID.
func (s *jobStore) Get(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE id = ?`, jobID)
	return scanJob(row)
}

// List returns matching jobs, newest first.
func (s *jobStore) List(ctx context.Context, filter domain.JobFilter) ([]domain.SyncJob, error) {
	var where []string
	var args []any
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if filter.SourceSiteID != "" {
		where = append(where, "source_site_id = ?")
		args = append(args, filter.SourceSiteID)
	}

	query := `SELECT ` + jobColumns + ` FROM sync_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, seq DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.SyncJob //nolint:prealloc // size unknown from query
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}
	return jobs, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.SyncJob, error) {
	var job domain.SyncJob
	var targets, selector, status string
	var notBefore, leaseExpires, createdAt, updatedAt, finishedAt int64
	var cancel int

	if err := row.Scan(&job.ID, &job.SourceSiteID, &targets, &selector, &status,
		&job.Attempts, &job.LastError, &notBefore, &job.LeaseOwner, &leaseExpires,
		&cancel, &createdAt, &updatedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	if err := json.Unmarshal([]byte(targets), &job.TargetSiteIDs); err != nil {
		return nil, fmt.Errorf("unmarshalling targets: %w", err)
	}
	if err := json.Unmarshal([]byte(selector), &job.Selector); err != nil {
		return nil, fmt.Errorf("unmarshalling selector: %w", err)
	}

	job.Status = domain.JobStatus(status)
	job.NotBefore = fromUnixNano(notBefore)
	job.LeaseExpiresAt = fromUnixNano(leaseExpires)
	job.CancelRequested = cancel == 1
	job.CreatedAt = fromUnixNano(createdAt)
	job.UpdatedAt = fromUnixNano(updatedAt)
	job.FinishedAt = fromUnixNano(finishedAt)
	return &job, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
