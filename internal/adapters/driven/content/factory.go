// Package content resolves site descriptors to content repository adapters.
package content

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/custodia-labs/sitesync/internal/adapters/driven/content/memory"
	"github.com/custodia-labs/sitesync/internal/adapters/driven/content/ratelimit"
	"github.com/custodia-labs/sitesync/internal/adapters/driven/content/sqlite"
	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
)

// Supported site drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Ensure Factory implements the interface.
var _ driven.RepositoryFactory = (*Factory)(nil)

// Factory opens and caches one repository per site.
type Factory struct {
	rateLimit float64

	mu      sync.Mutex
	repos   map[string]driven.ContentRepository
	closers []func() error
}

// NewFactory creates a factory. A positive rateLimit caps writes per second
// for every repository it opens.
func NewFactory(rateLimit float64) *Factory {
	return &Factory{
		rateLimit: rateLimit,
		repos:     make(map[string]driven.ContentRepository),
	}
}

// Register installs a repository for a site, bypassing the driver lookup.
func (f *Factory) Register(siteID string, repo driven.ContentRepository) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repos[siteID] = ratelimit.Wrap(repo, f.rateLimit)
}

// Open returns the cached repository for a site, opening it on first use.
func (f *Factory) Open(_ context.Context, site domain.SiteDescriptor) (driven.ContentRepository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if repo, ok := f.repos[site.ID]; ok {
		return repo, nil
	}

	var repo driven.ContentRepository
	switch site.Driver {
	case DriverSQLite:
		r, err := sqlite.Open(site.DSN)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.ID, err)
		}
		f.closers = append(f.closers, r.Close)
		repo = r

	case DriverMemory:
		repo = memory.New()

	default:
		return nil, fmt.Errorf("%w: site %s has unsupported driver %q", domain.ErrValidation, site.ID, site.Driver)
	}

	repo = ratelimit.Wrap(repo, f.rateLimit)
	f.repos[site.ID] = repo
	return repo, nil
}

// Close releases every repository the factory opened.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for _, c := range f.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	f.closers = nil
	f.repos = make(map[string]driven.ContentRepository)
	return errors.Join(errs...)
}
