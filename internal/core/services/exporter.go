package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
)

// Exporter reads content units from a source site.
type Exporter struct {
	registry driven.SiteRegistry
	repos    driven.RepositoryFactory
	timeout  time.Duration

	// Highest revision seen per unit, to detect sources going backwards.
	mu   sync.Mutex
	seen map[domain.UnitKey]int64
}

// NewExporter creates an exporter. Each repository call is bounded by timeout.
func NewExporter(registry driven.SiteRegistry, repos driven.RepositoryFactory, timeout time.Duration) *Exporter {
	return &Exporter{
		registry: registry,
		repos:    repos,
		timeout:  timeout,
		seen:     make(map[domain.UnitKey]int64),
	}
}

// Export resolves a selector at the source and returns the matching units.
//
// Selector resolution errors are returned directly: domain.ErrNotFound when
// nothing matches, domain.ErrValidation for an unknown site or a kind the
// site does not hold. Per-unit read failures are yielded with the unit's
// identity and iteration continues. Units deleted between resolution and
// read are skipped.
func (e *Exporter) Export(ctx context.Context, siteID string, selector domain.ContentSelector) (iter.Seq2[domain.ContentUnit, error], error) {
	if err := selector.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	site, err := e.registry.GetSite(ctx, siteID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: source site %s is not registered", domain.ErrValidation, siteID)
	}
	if err != nil {
		return nil, fmt.Errorf("get source site: %w", sourceErr(err))
	}
	if !site.Accepts(selector.Kind) {
		return nil, fmt.Errorf("%w: site %s does not hold %s content", domain.ErrValidation, siteID, selector.Kind)
	}

	repo, err := e.repos.Open(ctx, *site)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", siteID, sourceErr(err))
	}

	findCtx, cancel := context.WithTimeout(ctx, e.timeout)
	ids, err := repo.Find(findCtx, selector)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("find %s on %s: %w", selector, siteID, sourceErr(err))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%s on %s: %w", selector, siteID, domain.ErrNotFound)
	}

	return func(yield func(domain.ContentUnit, error) bool) {
		for _, id := range ids {
			unit := domain.ContentUnit{Kind: selector.Kind, SourceSiteID: siteID, SourceID: id}
			if err := ctx.Err(); err != nil {
				yield(unit, err)
				return
			}

			readCtx, cancel := context.WithTimeout(ctx, e.timeout)
			entity, err := repo.Read(readCtx, selector.Kind, id)
			cancel()
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				if !yield(unit, fmt.Errorf("read %s: %w", unit.Key(), sourceErr(err))) {
					return
				}
				continue
			}

			unit.Revision = entity.Stamp.Revision
			unit.ModifiedAt = entity.Stamp.ModifiedAt
			unit.Payload = entity.Payload.Clone()

			if err := e.observe(unit); err != nil {
				if !yield(unit, err) {
					return
				}
				continue
			}
			if !yield(unit, nil) {
				return
			}
		}
	}, nil
}

// observe records the unit's revision and rejects one lower than any
// revision already exported for the same unit.
func (e *Exporter) observe(unit domain.ContentUnit) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := unit.Key()
	if prev, ok := e.seen[key]; ok && unit.Revision < prev {
		return fmt.Errorf("%w: %s went back from revision %d to %d",
			domain.ErrSourceUnavailable, key, prev, unit.Revision)
	}
	e.seen[key] = unit.Revision
	return nil
}
