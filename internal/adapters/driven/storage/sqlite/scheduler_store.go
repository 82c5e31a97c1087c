package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
)

// ==================== Scheduler Store ====================

// schedulerStore implements driven.SchedulerStore.
type schedulerStore struct {
	store *Store
}

var _ driven.SchedulerStore = (*schedulerStore)(nil)

const scheduleColumns = `id, name, source_site_id, target_site_ids, selector, interval_seconds,
	last_run, next_run, last_error, last_success, last_job_id, enabled`

// GetSchedule retrieves a scheduled sync by ID.
// Returns nil and no error if the schedule does not exist.
func (s *schedulerStore) GetSchedule(ctx context.Context, id string) (*domain.ScheduledSync, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM scheduled_syncs WHERE id = ?`, id)

	sched, err := scanSchedule(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil // Per interface: return nil and no error if not found
	}
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// ListSchedules returns all scheduled syncs ordered by ID.
func (s *schedulerStore) ListSchedules(ctx context.Context) ([]domain.ScheduledSync, error) {
	rows, err := s.store.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM scheduled_syncs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}
	defer rows.Close()

	var schedules []domain.ScheduledSync //nolint:prealloc // size unknown from query
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *sched)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedules: %w", err)
	}

	return schedules, nil
}

// SaveSchedule persists a schedule's state.
// Creates or updates the schedule based on ID.
func (s *schedulerStore) SaveSchedule(ctx context.Context, sched *domain.ScheduledSync) error {
	if sched == nil {
		return domain.ErrInvalidInput
	}

	targets, err := json.Marshal(sched.TargetSiteIDs)
	if err != nil {
		return fmt.Errorf("marshalling targets: %w", err)
	}
	selector, err := json.Marshal(sched.Selector)
	if err != nil {
		return fmt.Errorf("marshalling selector: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO scheduled_syncs (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			source_site_id = excluded.source_site_id,
			target_site_ids = excluded.target_site_ids,
			selector = excluded.selector,
			interval_seconds = excluded.interval_seconds,
			last_run = excluded.last_run,
			next_run = excluded.next_run,
			last_error = excluded.last_error,
			last_success = excluded.last_success,
			last_job_id = excluded.last_job_id,
			enabled = excluded.enabled
	`, sched.ID, sched.Name, sched.SourceSiteID, string(targets), string(selector),
		int64(sched.Interval.Seconds()),
		formatNullableTime(sched.LastRun), formatNullableTime(sched.NextRun),
		nullString(sched.LastError), formatNullableTime(sched.LastSuccess),
		nullString(sched.LastJobID), boolToInt(sched.Enabled))

	if err != nil {
		return fmt.Errorf("saving schedule: %w", err)
	}
	return nil
}

// DeleteSchedule removes a schedule and its history.
func (s *schedulerStore) DeleteSchedule(ctx context.Context, id string) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM task_results WHERE task_id = ?", id); err != nil {
		return fmt.Errorf("deleting schedule history: %w", err)
	}
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM scheduled_syncs WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}
	return nil
}

// RecordResult logs a schedule firing.
func (s *schedulerStore) RecordResult(ctx context.Context, result *domain.TaskResult) error {
	if result == nil {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO task_results (task_id, started_at, ended_at, success, error, job_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, result.TaskID,
		result.StartedAt.UTC().Format(timeLayout),
		result.EndedAt.UTC().Format(timeLayout),
		boolToInt(result.Success),
		nullString(result.Error),
		nullString(result.JobID))

	if err != nil {
		return fmt.Errorf("recording task result: %w", err)
	}
	return nil
}

// GetHistory returns recent results for a schedule.
// Results are ordered by start time descending (most recent first).
func (s *schedulerStore) GetHistory(ctx context.Context, id string, limit int) ([]domain.TaskResult, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT task_id, started_at, ended_at, success, error, job_id
		FROM task_results
		WHERE task_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("querying task history: %w", err)
	}
	defer rows.Close()

	var results []domain.TaskResult //nolint:prealloc // size unknown from query
	for rows.Next() {
		result, err := scanTaskResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating task history: %w", err)
	}

	return results, nil
}

// PruneHistory removes old task results beyond the retention limit.
// Keeps the most recent 'keep' results per schedule.
func (s *schedulerStore) PruneHistory(ctx context.Context, keep int) error {
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM task_results
		WHERE id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY task_id ORDER BY started_at DESC, id DESC) as rn
				FROM task_results
			) WHERE rn <= ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning task history: %w", err)
	}
	return nil
}

// scanSchedule scans a single scheduled sync row.
func scanSchedule(row scanner) (*domain.ScheduledSync, error) {
	var sched domain.ScheduledSync
	var targets, selector string
	var intervalSeconds int64
	var lastRun, nextRun, lastError, lastSuccess, lastJobID sql.NullString
	var enabled int

	if err := row.Scan(&sched.ID, &sched.Name, &sched.SourceSiteID, &targets, &selector,
		&intervalSeconds, &lastRun, &nextRun, &lastError, &lastSuccess, &lastJobID, &enabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning schedule: %w", err)
	}

	if err := json.Unmarshal([]byte(targets), &sched.TargetSiteIDs); err != nil {
		return nil, fmt.Errorf("unmarshalling targets: %w", err)
	}
	if err := json.Unmarshal([]byte(selector), &sched.Selector); err != nil {
		return nil, fmt.Errorf("unmarshalling selector: %w", err)
	}

	sched.Interval = time.Duration(intervalSeconds) * time.Second
	sched.LastRun = parseNullableTime(lastRun)
	sched.NextRun = parseNullableTime(nextRun)
	sched.LastError = lastError.String
	sched.LastSuccess = parseNullableTime(lastSuccess)
	sched.LastJobID = lastJobID.String
	sched.Enabled = enabled == 1

	return &sched, nil
}

// scanTaskResult scans a task result from *sql.Rows.
func scanTaskResult(rows *sql.Rows) (*domain.TaskResult, error) {
	var result domain.TaskResult
	var startedAt, endedAt string
	var success int
	var errMsg, jobID sql.NullString

	if err := rows.Scan(&result.TaskID, &startedAt, &endedAt, &success, &errMsg, &jobID); err != nil {
		return nil, fmt.Errorf("scanning task result: %w", err)
	}

	if t, err := time.Parse(timeLayout, startedAt); err == nil {
		result.StartedAt = t
	}
	if t, err := time.Parse(timeLayout, endedAt); err == nil {
		result.EndedAt = t
	}
	result.Success = success == 1
	result.Error = errMsg.String
	result.JobID = jobID.String

	return &result, nil
}
