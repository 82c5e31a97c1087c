package driven

import (
	"context"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

// SyncRecordStore persists the per-pair sync ledger.
// It is both the audit trail of pair outcomes and the idempotency ledger
// consulted by the importer.
type SyncRecordStore interface {
	// Save stores or updates the record for (JobID, TargetSiteID, UnitKey).
	// There is never more than one record per triple. A success at or below
	// a revision another job already applied to the pair is refused with
	// domain.ErrStaleWrite.
	Save(ctx context.Context, record domain.SyncRecord) error

	// LastApplied returns the most recent successful record for a target and
	// unit, ordered by applied revision. Returns nil and no error if the pair
	// was never applied.
	LastApplied(ctx context.Context, targetSiteID string, key domain.UnitKey) (*domain.SyncRecord, error)

	// ListByJob returns all records written for a job.
	ListByJob(ctx context.Context, jobID string) ([]domain.SyncRecord, error)
}

// ExternalRefStore persists source entity to target entity mappings.
type ExternalRefStore interface {
	// Get returns the mapping for a source entity on a target site.
	// Returns domain.ErrNotFound if no mapping exists.
	Get(ctx context.Context, targetSiteID string, key domain.UnitKey) (*domain.ExternalRef, error)

	// Put stores a mapping if none exists for the same target and unit, and
	// returns the mapping that is stored afterwards. A concurrent writer that
	// loses the race receives the winner's mapping.
	Put(ctx context.Context, ref domain.ExternalRef) (*domain.ExternalRef, error)

	// MarkPending records the fingerprint of the payload about to be written
	// to the mapped target entity. Returns domain.ErrNotFound if no mapping
	// exists.
	MarkPending(ctx context.Context, targetSiteID string, key domain.UnitKey, fingerprint string) error
}
