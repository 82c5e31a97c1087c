package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
)

// ==================== Sync Record Store ====================

// syncRecordStore implements driven.SyncRecordStore.
type syncRecordStore struct {
	store *Store
}

var _ driven.SyncRecordStore = (*syncRecordStore)(nil)

const recordColumns = `job_id, target_site_id, unit_key, applied_revision, outcome,
	target_id, target_revision, fingerprint, detail, recorded_at`

// Save stores or updates the record for its (job, target, unit) triple.
func (s *syncRecordStore) Save(ctx context.Context, rec domain.SyncRecord) error {
	fingerprint, err := json.Marshal(rec.Fingerprint)
	if err != nil {
		return fmt.Errorf("marshalling fingerprint: %w", err)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.store.now()
	}

	// A success never lands at or below a revision another job applied.
	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_records (job_id, target_site_id, unit_key, seq, applied_revision, outcome,
			target_id, target_revision, fingerprint, detail, recorded_at)
		SELECT ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM sync_records), ?, ?, ?, ?, ?, ?, ?
		WHERE ? <> 'success' OR NOT EXISTS (
			SELECT 1 FROM sync_records
			WHERE target_site_id = ? AND unit_key = ? AND job_id <> ?
				AND outcome = 'success' AND applied_revision >= ?
		)
		ON CONFLICT(job_id, target_site_id, unit_key) DO UPDATE SET
			applied_revision = excluded.applied_revision,
			outcome = excluded.outcome,
			target_id = excluded.target_id,
			target_revision = excluded.target_revision,
			fingerprint = excluded.fingerprint,
			detail = excluded.detail,
			recorded_at = excluded.recorded_at
	`, rec.JobID, rec.TargetSiteID, string(rec.UnitKey), rec.AppliedRevision, string(rec.Outcome),
		rec.TargetID, rec.TargetRevision, string(fingerprint), rec.Detail, unixNano(rec.Timestamp),
		string(rec.Outcome), rec.TargetSiteID, string(rec.UnitKey), rec.JobID, rec.AppliedRevision)
	if err != nil {
		return fmt.Errorf("saving sync record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving sync record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: revision %d of %s is at or below one already applied",
			domain.ErrStaleWrite, rec.AppliedRevision, rec.UnitKey)
	}
	return nil
}

// LastApplied returns the successful record with the highest applied revision.
func (s *syncRecordStore) LastApplied(ctx context.Context, targetSiteID string, key domain.UnitKey) (*domain.SyncRecord, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM sync_records
		WHERE target_site_id = ? AND unit_key = ? AND outcome = 'success'
		ORDER BY applied_revision DESC, recorded_at DESC
		LIMIT 1
	`, targetSiteID, string(key))

	rec, err := scanRecord(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil // Per interface: nil and no error if never applied
	}
	return rec, err
}

// ListByJob returns a job's records in the order they were first saved.
func (s *syncRecordStore) ListByJob(ctx context.Context, jobID string) ([]domain.SyncRecord, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM sync_records WHERE job_id = ? ORDER BY seq
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("querying sync records: %w", err)
	}
	defer rows.Close()

	var records []domain.SyncRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync records: %w", err)
	}
	return records, nil
}

func scanRecord(row scanner) (*domain.SyncRecord, error) {
	var rec domain.SyncRecord
	var unitKey, outcome, fingerprint string
	var recordedAt int64

	if err := row.Scan(&rec.JobID, &rec.TargetSiteID, &unitKey, &rec.AppliedRevision, &outcome,
		&rec.TargetID, &rec.TargetRevision, &fingerprint, &rec.Detail, &recordedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning sync record: %w", err)
	}

	if fingerprint != "" && fingerprint != "null" {
		if err := json.Unmarshal([]byte(fingerprint), &rec.Fingerprint); err != nil {
			return nil, fmt.Errorf("unmarshalling fingerprint: %w", err)
		}
	}
	rec.UnitKey = domain.UnitKey(unitKey)
	rec.Outcome = domain.Outcome(outcome)
	rec.Timestamp = fromUnixNano(recordedAt)
	return &rec, nil
}

// ==================== External Ref Store ====================

// externalRefStore implements driven.ExternalRefStore.
type externalRefStore struct {
	store *Store
}

var _ driven.ExternalRefStore = (*externalRefStore)(nil)

// Get returns the mapping for a unit at a target.
func (s *externalRefStore) Get(ctx context.Context, targetSiteID string, key domain.UnitKey) (*domain.ExternalRef, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT target_site_id, kind, source_site_id, source_id, target_id, pending_fingerprint
		FROM external_refs WHERE target_site_id = ? AND unit_key = ?
	`, targetSiteID, string(key))

	var ref domain.ExternalRef
	var kind string
	if err := row.Scan(&ref.TargetSiteID, &kind, &ref.SourceSiteID, &ref.SourceID, &ref.TargetID,
		&ref.PendingFingerprint); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning external ref: %w", err)
	}
	ref.Kind = domain.ContentKind(kind)
	return &ref, nil
}

// Put inserts ref unless a mapping exists and returns the stored mapping.
func (s *externalRefStore) Put(ctx context.Context, ref domain.ExternalRef) (*domain.ExternalRef, error) {
	if strings.TrimSpace(ref.TargetID) == "" {
		return nil, fmt.Errorf("%w: external ref needs a target id", domain.ErrInvalidInput)
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO external_refs (target_site_id, unit_key, kind, source_site_id, source_id, target_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(target_site_id, unit_key) DO NOTHING
	`, ref.TargetSiteID, string(ref.UnitKey()), string(ref.Kind), ref.SourceSiteID, ref.SourceID,
		ref.TargetID, unixNano(s.store.now()))
	if err != nil {
		return nil, fmt.Errorf("saving external ref: %w", err)
	}
	return s.Get(ctx, ref.TargetSiteID, ref.UnitKey())
}

// MarkPending records the fingerprint of the engine's next write for a unit.
func (s *externalRefStore) MarkPending(ctx context.Context, targetSiteID string, key domain.UnitKey, fingerprint string) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE external_refs SET pending_fingerprint = ?
		WHERE target_site_id = ? AND unit_key = ?
	`, fingerprint, targetSiteID, string(key))
	if err != nil {
		return fmt.Errorf("marking pending write: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking pending write: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
