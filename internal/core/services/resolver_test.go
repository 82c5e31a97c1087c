package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

func TestResolve(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mapped := MappedUnit{Key: "page:a:42", Revision: 7, ModifiedAt: t0.Add(time.Minute)}
	last := &domain.SyncRecord{Outcome: domain.OutcomeSuccess, AppliedRevision: 5, TargetRevision: 10}
	changed := DiffResult{Kind: DiffChanged, Fields: []string{"title"}}

	untouched := TargetState{Exists: true, TargetID: "t", Stamp: domain.Stamp{Revision: 10, ModifiedAt: t0}}
	editedBefore := TargetState{Exists: true, TargetID: "t", Stamp: domain.Stamp{Revision: 12, ModifiedAt: t0}}
	editedAfter := TargetState{Exists: true, TargetID: "t", Stamp: domain.Stamp{Revision: 12, ModifiedAt: t0.Add(time.Hour)}}
	editedSame := TargetState{Exists: true, TargetID: "t", Stamp: domain.Stamp{Revision: 12, ModifiedAt: mapped.ModifiedAt}}
	unconfirmed := TargetState{Exists: true, TargetID: "t", Stamp: domain.Stamp{Revision: 12, ModifiedAt: t0}, OwnWrite: true}

	tests := []struct {
		name     string
		policy   domain.ConflictPolicy
		target   TargetState
		last     *domain.SyncRecord
		diff     DiffResult
		action   Action
		conflict bool
	}{
		{"no change skips", domain.SourceWins, untouched, last, DiffResult{Kind: DiffNoChange}, ActionSkip, false},
		{"unseen creates", domain.TargetWins, TargetState{}, nil, DiffResult{Kind: DiffUnseen}, ActionApply, false},
		{"deleted at target recreates", domain.TargetWins, TargetState{TargetID: "t"}, last, changed, ActionApply, false},
		{"unseen but present updates", domain.SourceWins, untouched, nil, DiffResult{Kind: DiffUnseen}, ActionApply, false},
		{"changed merges", domain.TargetWins, untouched, last, changed, ActionMerge, false},
		{"conflict source wins", domain.SourceWins, editedAfter, last, changed, ActionApply, true},
		{"conflict target wins", domain.TargetWins, editedBefore, last, changed, ActionSkip, true},
		{"conflict newest: source newer", domain.NewestWins, editedBefore, last, changed, ActionApply, true},
		{"conflict newest: target newer", domain.NewestWins, editedAfter, last, changed, ActionSkip, true},
		{"conflict newest: tie goes to source", domain.NewestWins, editedSame, last, changed, ActionApply, true},
		{"unconfirmed own write is not a conflict", domain.TargetWins, unconfirmed, last, changed, ActionMerge, false},
		{"conflict unknown policy skips", domain.ConflictPolicy("coin_flip"), editedAfter, last, changed, ActionSkip, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.policy, mapped, tt.target, tt.last, tt.diff)
			assert.Equal(t, tt.action, got.Action)
			assert.Equal(t, tt.conflict, got.Conflict)
			assert.NotEmpty(t, got.Reason)

			again := Resolve(tt.policy, mapped, tt.target, tt.last, tt.diff)
			assert.Equal(t, got, again, "same inputs give the same decision")
		})
	}
}

func TestResolve_MergeCarriesFields(t *testing.T) {
	last := &domain.SyncRecord{Outcome: domain.OutcomeSuccess, TargetRevision: 3}
	target := TargetState{Exists: true, Stamp: domain.Stamp{Revision: 3}}
	got := Resolve(domain.SourceWins, MappedUnit{}, target, last, DiffResult{Kind: DiffChanged, Fields: []string{"body", "title"}})
	assert.Equal(t, ActionMerge, got.Action)
	assert.Equal(t, []string{"body", "title"}, got.Fields)
}
