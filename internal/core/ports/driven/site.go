package driven

import (
	"context"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

// SiteRegistry resolves site identifiers to descriptors. Read-only.
type SiteRegistry interface {
	// GetSite returns the descriptor for a site.
	// Returns domain.ErrNotFound if the site is not registered.
	GetSite(ctx context.Context, siteID string) (*domain.SiteDescriptor, error)

	// ListSites returns every registered site.
	ListSites(ctx context.Context) ([]domain.SiteDescriptor, error)
}

// ContentRepository reads and writes content at one site.
// Implementations wrap network and storage failures in
// domain.ErrSourceUnavailable / domain.ErrTargetUnavailable (or
// domain.ErrTransient) and schema mismatches in domain.ErrTargetRejected.
type ContentRepository interface {
	// Find resolves a selector to entity IDs, in a stable order.
	Find(ctx context.Context, selector domain.ContentSelector) ([]string, error)

	// Read returns one entity. Returns domain.ErrNotFound if missing.
	Read(ctx context.Context, kind domain.ContentKind, id string) (*domain.Entity, error)

	// Write creates or updates the entity identified by ref.TargetID and
	// returns the stored ID and new stamp. Writing the same TargetID twice
	// updates rather than duplicates.
	Write(ctx context.Context, kind domain.ContentKind, ref domain.ExternalRef, payload domain.Payload) (string, domain.Stamp, error)

	// CurrentRevision returns the stamp of an entity.
	// Returns domain.ErrNotFound if missing.
	CurrentRevision(ctx context.Context, kind domain.ContentKind, id string) (domain.Stamp, error)
}

// RepositoryFactory opens the content repository for a site.
type RepositoryFactory interface {
	// Open returns the repository for a site. Implementations may cache.
	Open(ctx context.Context, site domain.SiteDescriptor) (ContentRepository, error)
}
