package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
)

// Importer applies resolved units to target sites and maintains the sync
// ledger. Applying is idempotent and monotonic per (target, unit): a
// revision already applied returns the existing record, and an older
// revision never overwrites a newer one.
type Importer struct {
	registry driven.SiteRegistry
	repos    driven.RepositoryFactory
	records  driven.SyncRecordStore
	refs     driven.ExternalRefStore
	timeout  time.Duration

	locks *keyLock
	now   func() time.Time
	newID func() string
}

// NewImporter creates an importer. Each repository call is bounded by timeout.
func NewImporter(
	registry driven.SiteRegistry,
	repos driven.RepositoryFactory,
	records driven.SyncRecordStore,
	refs driven.ExternalRefStore,
	timeout time.Duration,
) *Importer {
	return &Importer{
		registry: registry,
		repos:    repos,
		records:  records,
		refs:     refs,
		timeout:  timeout,
		locks:    newKeyLock(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// DecideFunc resolves a unit against the latest successful record of its
// pair. It is called while the pair is locked, so the decision cannot go
// stale before the write.
type DecideFunc func(ctx context.Context, last *domain.SyncRecord) (Decision, error)

// Apply carries out decision for one unit at one target and records the
// outcome under jobID. The returned record reflects what is stored.
// On a write failure the failed record is returned together with the error.
func (i *Importer) Apply(ctx context.Context, jobID, targetSiteID string, mapped MappedUnit, decision Decision) (*domain.SyncRecord, error) {
	return i.ApplyWith(ctx, jobID, targetSiteID, mapped, func(context.Context, *domain.SyncRecord) (Decision, error) {
		return decision, nil
	})
}

// ApplyWith is Apply with the decision taken by decide under the pair lock.
func (i *Importer) ApplyWith(ctx context.Context, jobID, targetSiteID string, mapped MappedUnit, decide DecideFunc) (*domain.SyncRecord, error) {
	unlock := i.locks.Lock(targetSiteID + "|" + string(mapped.Key))
	defer unlock()

	last, err := i.records.LastApplied(ctx, targetSiteID, mapped.Key)
	if err != nil {
		return nil, storeErr("load last applied", err)
	}
	if last.Applied() && last.AppliedRevision == mapped.Revision {
		return last, nil
	}

	rec := domain.SyncRecord{
		JobID:           jobID,
		TargetSiteID:    targetSiteID,
		UnitKey:         mapped.Key,
		AppliedRevision: mapped.Revision,
		Fingerprint:     mapped.Fingerprint,
		Timestamp:       i.now(),
	}
	if last.Applied() {
		rec.TargetID = last.TargetID
		rec.TargetRevision = last.TargetRevision
	}

	if last.Applied() && mapped.Revision < last.AppliedRevision {
		return i.skip(ctx, last, rec, fmt.Sprintf("stale revision %d, already applied %d", mapped.Revision, last.AppliedRevision))
	}

	decision, err := decide(ctx, last)
	if err != nil {
		return nil, err
	}
	if decision.Action == ActionSkip {
		return i.skip(ctx, last, rec, decision.Reason)
	}

	site, err := i.registry.GetSite(ctx, targetSiteID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: target site %s is not registered", domain.ErrValidation, targetSiteID)
	}
	if err != nil {
		return nil, fmt.Errorf("get target site: %w", targetErr(err))
	}
	if !site.Accepts(mapped.Kind) {
		return nil, fmt.Errorf("%w: site %s does not accept %s content", domain.ErrTargetRejected, targetSiteID, mapped.Kind)
	}

	repo, err := i.repos.Open(ctx, *site)
	if err != nil {
		return nil, fmt.Errorf("open target %s: %w", targetSiteID, targetErr(err))
	}

	ref, err := i.mapping(ctx, targetSiteID, mapped)
	if err != nil {
		return nil, err
	}

	payload := mapped.Fields.Clone()
	if decision.Action == ActionMerge {
		payload, err = i.merge(ctx, repo, mapped, ref.TargetID, decision.Fields)
		if err != nil {
			return nil, err
		}
	}

	pending, err := payloadFingerprint(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if err := i.refs.MarkPending(ctx, targetSiteID, mapped.Key, pending); err != nil {
		return nil, storeErr("mark pending write", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, i.timeout)
	targetID, stamp, err := repo.Write(writeCtx, mapped.Kind, *ref, payload)
	cancel()
	if err != nil {
		err = targetErr(err)
		rec.Outcome = domain.OutcomeFailed
		rec.Detail = err.Error()
		if saveErr := i.save(ctx, last, rec); saveErr != nil {
			return &rec, errors.Join(err, storeErr("save record", saveErr))
		}
		return &rec, err
	}

	rec.Outcome = domain.OutcomeSuccess
	rec.TargetID = targetID
	rec.TargetRevision = stamp.Revision
	rec.Detail = decision.Reason
	if err := i.records.Save(ctx, rec); err != nil {
		return &rec, storeErr("save record", err)
	}
	return &rec, nil
}

func (i *Importer) skip(ctx context.Context, last *domain.SyncRecord, rec domain.SyncRecord, reason string) (*domain.SyncRecord, error) {
	rec.Outcome = domain.OutcomeSkipped
	rec.Detail = reason
	if err := i.save(ctx, last, rec); err != nil {
		return nil, storeErr("save record", err)
	}
	return &rec, nil
}

// save stores rec unless it would replace this job's own successful record
// for the same pair, which the ledger still needs as the last applied state.
func (i *Importer) save(ctx context.Context, last *domain.SyncRecord, rec domain.SyncRecord) error {
	if rec.Outcome != domain.OutcomeSuccess && last.Applied() && last.JobID == rec.JobID {
		return nil
	}
	return i.records.Save(ctx, rec)
}

// mapping returns the unit's external reference at the target, allocating
// and persisting a target ID before the first write so a retried create
// updates the same entity.
func (i *Importer) mapping(ctx context.Context, targetSiteID string, mapped MappedUnit) (*domain.ExternalRef, error) {
	ref, err := i.refs.Get(ctx, targetSiteID, mapped.Key)
	if err == nil {
		return ref, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, storeErr("get mapping", err)
	}

	ref, err = i.refs.Put(ctx, domain.ExternalRef{
		TargetSiteID: targetSiteID,
		Kind:         mapped.Kind,
		SourceSiteID: mapped.SourceSiteID,
		SourceID:     mapped.SourceID,
		TargetID:     i.newID(),
	})
	if err != nil {
		return nil, storeErr("put mapping", err)
	}
	return ref, nil
}

// merge overlays the changed fields onto the target's current payload.
// A target entity that no longer exists gets the full mapped payload.
func (i *Importer) merge(ctx context.Context, repo driven.ContentRepository, mapped MappedUnit, targetID string, fields []string) (domain.Payload, error) {
	readCtx, cancel := context.WithTimeout(ctx, i.timeout)
	current, err := repo.Read(readCtx, mapped.Kind, targetID)
	cancel()
	if errors.Is(err, domain.ErrNotFound) {
		return mapped.Fields.Clone(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read target %s: %w", targetID, targetErr(err))
	}

	merged := current.Payload.Clone()
	if merged == nil {
		merged = make(domain.Payload, len(fields))
	}
	for _, f := range fields {
		if v, ok := mapped.Fields[f]; ok {
			merged[f] = v
		} else {
			delete(merged, f)
		}
	}
	return merged, nil
}
