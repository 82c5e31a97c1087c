package domain

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// Payload is the kind-specific field name to value mapping of a content unit.
type Payload map[string]any

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

// Stamp is the revision information a site reports for one entity.
type Stamp struct {
	// Revision is a counter that increases on every change at the site.
	Revision int64

	// ModifiedAt is when the entity was last changed at the site.
	ModifiedAt time.Time
}

// Entity is an entity as stored at one site.
type Entity struct {
	ID      string
	Kind    ContentKind
	Payload Payload
	Stamp   Stamp
}

// UnitKey identifies a source entity across the network.
// Format: kind:source_site_id:source_id.
type UnitKey string

// NewUnitKey builds the key for a source entity.
func NewUnitKey(kind ContentKind, sourceSiteID, sourceID string) UnitKey {
	return UnitKey(fmt.Sprintf("%s:%s:%s", kind, sourceSiteID, sourceID))
}

// String implements fmt.Stringer.
func (k UnitKey) String() string {
	return string(k)
}

// ContentUnit is the canonical, site-independent representation of one
// source entity, produced fresh by every export.
type ContentUnit struct {
	Kind         ContentKind
	SourceSiteID string
	SourceID     string

	// Revision is the source stamp's revision at read time.
	Revision int64

	// ModifiedAt is the source modification timestamp.
	ModifiedAt time.Time

	Payload Payload
}

// Key returns the unit's network-wide key.
func (u ContentUnit) Key() UnitKey {
	return NewUnitKey(u.Kind, u.SourceSiteID, u.SourceID)
}

// ContentSelector identifies which content units a job covers.
// Exactly one of ID, IDs, Category or All must be set.
type ContentSelector struct {
	Kind     ContentKind `json:"kind" yaml:"kind"`
	ID       string      `json:"id,omitempty" yaml:"id,omitempty"`
	IDs      []string    `json:"ids,omitempty" yaml:"ids,omitempty"`
	Category string      `json:"category,omitempty" yaml:"category,omitempty"`
	All      bool        `json:"all,omitempty" yaml:"all,omitempty"`
}

// Validate checks the selector is well formed.
func (s ContentSelector) Validate() error {
	if err := s.Kind.Validate(); err != nil {
		return err
	}
	set := 0
	if s.ID != "" {
		set++
	}
	if len(s.IDs) > 0 {
		set++
	}
	if s.Category != "" {
		set++
	}
	if s.All {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: selector needs exactly one of id, ids, category or all", ErrInvalidInput)
	}
	return nil
}

// String renders the selector in the form accepted by ParseSelector.
func (s ContentSelector) String() string {
	switch {
	case s.ID != "":
		return fmt.Sprintf("%s:%s", s.Kind, s.ID)
	case len(s.IDs) > 0:
		return fmt.Sprintf("%s:%s", s.Kind, strings.Join(s.IDs, ","))
	case s.Category != "":
		return fmt.Sprintf("%s:category=%s", s.Kind, s.Category)
	case s.All:
		return fmt.Sprintf("%s:*", s.Kind)
	default:
		return string(s.Kind)
	}
}

// ParseSelector parses a selector expression.
//
//	page:42             single unit
//	page:1,2,3          explicit set
//	article:category=x  every unit in a category
//	config:*            every unit of the kind
func ParseSelector(expr string) (ContentSelector, error) {
	kind, rest, ok := strings.Cut(strings.TrimSpace(expr), ":")
	if !ok || rest == "" {
		return ContentSelector{}, fmt.Errorf("%w: selector %q must be kind:target", ErrInvalidInput, expr)
	}

	sel := ContentSelector{Kind: ContentKind(kind)}
	switch {
	case rest == "*":
		sel.All = true
	case strings.HasPrefix(rest, "category="):
		sel.Category = strings.TrimPrefix(rest, "category=")
	case strings.Contains(rest, ","):
		for _, id := range strings.Split(rest, ",") {
			if id = strings.TrimSpace(id); id != "" {
				sel.IDs = append(sel.IDs, id)
			}
		}
	default:
		sel.ID = rest
	}

	if err := sel.Validate(); err != nil {
		return ContentSelector{}, err
	}
	return sel, nil
}

// ExternalRef links a source entity to the entity created for it on a
// target site.
type ExternalRef struct {
	TargetSiteID string
	Kind         ContentKind
	SourceSiteID string
	SourceID     string

	// TargetID is the entity id at the target site.
	TargetID string

	// PendingFingerprint is the payload fingerprint of the engine's latest
	// write to TargetID. It survives a crash between the write and its
	// success record.
	PendingFingerprint string
}

// UnitKey returns the key of the source entity this reference belongs to.
func (r ExternalRef) UnitKey() UnitKey {
	return NewUnitKey(r.Kind, r.SourceSiteID, r.SourceID)
}
