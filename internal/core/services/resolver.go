package services

import (
	"fmt"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

// Action is what the importer should do with a mapped unit.
type Action string

// Resolver actions.
const (
	ActionApply Action = "apply"
	ActionSkip  Action = "skip"
	ActionMerge Action = "apply_with_merge"
)

// Decision is the resolver's verdict for one (unit, target) pair.
type Decision struct {
	Action Action

	// Fields lists the target fields to overwrite for ActionMerge.
	Fields []string

	// Conflict is set when the target changed outside the engine.
	Conflict bool

	Reason string
}

// TargetState is what the target currently holds for a unit.
type TargetState struct {
	// Exists is false when the unit was never created at the target or the
	// mapped entity has since been deleted.
	Exists   bool
	TargetID string
	Stamp    domain.Stamp

	// OwnWrite is set when the target still holds the engine's latest write
	// even though its success record was never saved.
	OwnWrite bool
}

// Resolve decides how to apply a mapped unit. It is a pure function: the
// same inputs always give the same decision.
//
// A conflict exists when the unit was applied before and the target's
// revision no longer matches the one recorded after that write, unless the
// target holds the engine's own unconfirmed write.
func Resolve(policy domain.ConflictPolicy, mapped MappedUnit, target TargetState, last *domain.SyncRecord, diff DiffResult) Decision {
	if diff.Kind == DiffNoChange {
		return Decision{Action: ActionSkip, Reason: "no change"}
	}
	if !target.Exists {
		return Decision{Action: ActionApply, Reason: "create"}
	}

	conflict := last.Applied() && target.Stamp.Revision != last.TargetRevision && !target.OwnWrite
	if !conflict {
		if diff.Kind == DiffChanged {
			return Decision{Action: ActionMerge, Fields: diff.Fields, Reason: "changed fields"}
		}
		return Decision{Action: ActionApply, Reason: "update"}
	}

	switch policy {
	case domain.SourceWins:
		return Decision{Action: ActionApply, Conflict: true, Reason: "conflict: source wins"}
	case domain.TargetWins:
		return Decision{Action: ActionSkip, Conflict: true, Reason: "conflict: target wins"}
	case domain.NewestWins:
		if mapped.ModifiedAt.Before(target.Stamp.ModifiedAt) {
			return Decision{Action: ActionSkip, Conflict: true, Reason: "conflict: target is newer"}
		}
		return Decision{Action: ActionApply, Conflict: true, Reason: "conflict: source is newer"}
	default:
		return Decision{Action: ActionSkip, Conflict: true, Reason: fmt.Sprintf("conflict: unknown policy %q", policy)}
	}
}
