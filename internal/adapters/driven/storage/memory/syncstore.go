package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
)

// Ensure SyncRecordStore implements the interface.
var _ driven.SyncRecordStore = (*SyncRecordStore)(nil)

type recordKey struct {
	jobID        string
	targetSiteID string
	unitKey      domain.UnitKey
}

// SyncRecordStore is an in-memory implementation of driven.SyncRecordStore.
type SyncRecordStore struct {
	mu      sync.RWMutex
	records map[recordKey]domain.SyncRecord
	order   []recordKey
}

// NewSyncRecordStore creates a new in-memory sync record store.
func NewSyncRecordStore() *SyncRecordStore {
	return &SyncRecordStore{
		records: make(map[recordKey]domain.SyncRecord),
	}
}

// Save stores or updates the record for its (job, target, unit) triple.
func (s *SyncRecordStore) Save(_ context.Context, record domain.SyncRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.Outcome == domain.OutcomeSuccess {
		for k, rec := range s.records {
			if k.jobID != record.JobID && k.targetSiteID == record.TargetSiteID && k.unitKey == record.UnitKey &&
				rec.Outcome == domain.OutcomeSuccess && rec.AppliedRevision >= record.AppliedRevision {
				return fmt.Errorf("%w: revision %d of %s already applied by job %s",
					domain.ErrStaleWrite, rec.AppliedRevision, record.UnitKey, k.jobID)
			}
		}
	}

	key := recordKey{record.JobID, record.TargetSiteID, record.UnitKey}
	if _, exists := s.records[key]; !exists {
		s.order = append(s.order, key)
	}
	record.Fingerprint = maps.Clone(record.Fingerprint)
	s.records[key] = record
	return nil
}

// LastApplied returns the successful record with the highest applied
// revision for a target and unit.
func (s *SyncRecordStore) LastApplied(_ context.Context, targetSiteID string, key domain.UnitKey) (*domain.SyncRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.SyncRecord
	for k, rec := range s.records {
		if k.targetSiteID != targetSiteID || k.unitKey != key || rec.Outcome != domain.OutcomeSuccess {
			continue
		}
		if best == nil || rec.AppliedRevision > best.AppliedRevision ||
			(rec.AppliedRevision == best.AppliedRevision && rec.Timestamp.After(best.Timestamp)) {
			r := rec
			best = &r
		}
	}
	if best != nil {
		best.Fingerprint = maps.Clone(best.Fingerprint)
	}
	return best, nil
}

// ListByJob returns a job's records in the order they were first saved.
func (s *SyncRecordStore) ListByJob(_ context.Context, jobID string) ([]domain.SyncRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.SyncRecord
	for _, k := range s.order {
		if k.jobID == jobID {
			rec := s.records[k]
			rec.Fingerprint = maps.Clone(rec.Fingerprint)
			out = append(out, rec)
		}
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *SyncRecordStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Ensure ExternalRefStore implements the interface.
var _ driven.ExternalRefStore = (*ExternalRefStore)(nil)

type refKey struct {
	targetSiteID string
	unitKey      domain.UnitKey
}

// ExternalRefStore is an in-memory implementation of driven.ExternalRefStore.
type ExternalRefStore struct {
	mu   sync.RWMutex
	refs map[refKey]domain.ExternalRef
}

// NewExternalRefStore creates a new in-memory external reference store.
func NewExternalRefStore() *ExternalRefStore {
	return &ExternalRefStore{
		refs: make(map[refKey]domain.ExternalRef),
	}
}

// Get returns the mapping for a unit at a target.
func (s *ExternalRefStore) Get(_ context.Context, targetSiteID string, key domain.UnitKey) (*domain.ExternalRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.refs[refKey{targetSiteID, key}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &ref, nil
}

// Put stores ref unless a mapping already exists and returns the stored one.
func (s *ExternalRefStore) Put(_ context.Context, ref domain.ExternalRef) (*domain.ExternalRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := refKey{ref.TargetSiteID, ref.UnitKey()}
	if existing, ok := s.refs[key]; ok {
		return &existing, nil
	}
	s.refs[key] = ref
	return &ref, nil
}

// MarkPending records the fingerprint of the engine's next write for a unit.
func (s *ExternalRefStore) MarkPending(_ context.Context, targetSiteID string, key domain.UnitKey, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := refKey{targetSiteID, key}
	ref, ok := s.refs[k]
	if !ok {
		return domain.ErrNotFound
	}
	ref.PendingFingerprint = fingerprint
	s.refs[k] = ref
	return nil
}

// List returns every mapping, ordered by target and unit key.
func (s *ExternalRefStore) List() []domain.ExternalRef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := slices.Collect(maps.Values(s.refs))
	slices.SortFunc(refs, func(a, b domain.ExternalRef) int {
		return cmp.Or(
			strings.Compare(a.TargetSiteID, b.TargetSiteID),
			strings.Compare(string(a.UnitKey()), string(b.UnitKey())),
		)
	})
	return refs
}
