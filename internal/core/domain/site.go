package domain

import (
	"fmt"
	"slices"
	"strings"
)

// ContentKind identifies the type of a synchronisable entity.
type ContentKind string

// Built-in content kinds. Custom content types use any other non-empty name.
const (
	KindArticle ContentKind = "article"
	KindPage    ContentKind = "page"
	KindConfig  ContentKind = "config"
)

// Validate checks the kind is a usable identifier.
func (k ContentKind) Validate() error {
	if strings.TrimSpace(string(k)) == "" {
		return fmt.Errorf("%w: content kind is required", ErrInvalidInput)
	}
	if strings.ContainsAny(string(k), ":/ ") {
		return fmt.Errorf("%w: content kind %q contains reserved characters", ErrInvalidInput, k)
	}
	return nil
}

// SiteDescriptor describes one site in the network.
// Descriptors are immutable once registered.
type SiteDescriptor struct {
	// ID is the unique site identifier.
	ID string

	// Name is a human-readable label.
	Name string

	// Driver selects the content repository adapter (e.g., "sqlite", "memory").
	Driver string

	// DSN is the driver-specific connection string.
	DSN string

	// Kinds lists the content kinds this site accepts.
	// An empty list accepts every kind.
	Kinds []ContentKind
}

// Accepts reports whether the site stores content of the given kind.
func (s SiteDescriptor) Accepts(kind ContentKind) bool {
	if len(s.Kinds) == 0 {
		return true
	}
	return slices.Contains(s.Kinds, kind)
}

// Validate checks the descriptor has the fields the engine relies on.
func (s SiteDescriptor) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: site id is required", ErrInvalidInput)
	}
	if s.Driver == "" {
		return fmt.Errorf("%w: site %s has no driver", ErrInvalidInput, s.ID)
	}
	for _, k := range s.Kinds {
		if err := k.Validate(); err != nil {
			return fmt.Errorf("site %s: %w", s.ID, err)
		}
	}
	return nil
}
