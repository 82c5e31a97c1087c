package services

import (
	"fmt"
	"slices"
	"time"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

// MappedUnit is a content unit after field policy has been applied.
// Fields and Fingerprint are keyed by target field name.
type MappedUnit struct {
	Key          domain.UnitKey
	Kind         domain.ContentKind
	SourceSiteID string
	SourceID     string
	Revision     int64
	ModifiedAt   time.Time
	Fields       domain.Payload
	Fingerprint  map[string]string
}

// DiffKind classifies a mapped unit against the last applied record.
type DiffKind string

// Diff results.
const (
	DiffUnseen   DiffKind = "unseen"
	DiffNoChange DiffKind = "no_change"
	DiffChanged  DiffKind = "changed"
)

// DiffResult is the outcome of Mapper.Diff.
type DiffResult struct {
	Kind DiffKind

	// Fields lists changed target fields, sorted. Only set for DiffChanged.
	Fields []string
}

// Mapper applies field policies and computes per-field diffs.
// It is stateless and safe for concurrent use.
type Mapper struct{}

// NewMapper creates a mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// Map filters and renames the unit's fields and fingerprints the result.
func (m *Mapper) Map(unit domain.ContentUnit, policy domain.FieldPolicy) (MappedUnit, error) {
	mapped := MappedUnit{
		Key:          unit.Key(),
		Kind:         unit.Kind,
		SourceSiteID: unit.SourceSiteID,
		SourceID:     unit.SourceID,
		Revision:     unit.Revision,
		ModifiedAt:   unit.ModifiedAt,
		Fields:       make(domain.Payload, len(unit.Payload)),
		Fingerprint:  make(map[string]string, len(unit.Payload)),
	}

	origin := make(map[string]string, len(unit.Payload))
	for field, value := range unit.Payload {
		if !policy.Allows(field) {
			continue
		}
		name := policy.TargetName(field)
		if prev, dup := origin[name]; dup {
			return MappedUnit{}, fmt.Errorf("%w: fields %q and %q both map to %q",
				domain.ErrValidation, prev, field, name)
		}
		origin[name] = field

		fp, err := fingerprintValue(value)
		if err != nil {
			return MappedUnit{}, fmt.Errorf("%w: field %q: %w", domain.ErrValidation, field, err)
		}
		mapped.Fields[name] = value
		mapped.Fingerprint[name] = fp
	}

	return mapped, nil
}

// Diff compares a mapped unit with the last successful record for its
// target. A nil record means the unit was never applied there.
func (m *Mapper) Diff(mapped MappedUnit, last *domain.SyncRecord) DiffResult {
	if !last.Applied() {
		return DiffResult{Kind: DiffUnseen}
	}
	if mapped.Revision <= last.AppliedRevision {
		return DiffResult{Kind: DiffNoChange}
	}

	var changed []string
	for name, fp := range mapped.Fingerprint {
		if last.Fingerprint[name] != fp {
			changed = append(changed, name)
		}
	}
	for name := range last.Fingerprint {
		if _, ok := mapped.Fingerprint[name]; !ok {
			changed = append(changed, name)
		}
	}

	if len(changed) == 0 {
		return DiffResult{Kind: DiffNoChange}
	}
	slices.Sort(changed)
	return DiffResult{Kind: DiffChanged, Fields: changed}
}
