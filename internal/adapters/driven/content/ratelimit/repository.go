// Package ratelimit throttles writes to a content repository.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
)

// Ensure Repository implements the interface.
var _ driven.ContentRepository = (*Repository)(nil)

// Repository wraps a ContentRepository and limits Write calls to a steady
// rate. Reads pass through untouched.
type Repository struct {
	driven.ContentRepository
	limiter *rate.Limiter
}

// Wrap limits writes on repo to perSecond with a burst of one.
// A non-positive rate returns repo unchanged.
func Wrap(repo driven.ContentRepository, perSecond float64) driven.ContentRepository {
	if perSecond <= 0 {
		return repo
	}
	return &Repository{
		ContentRepository: repo,
		limiter:           rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Write waits for a token, then delegates.
func (r *Repository) Write(ctx context.Context, kind domain.ContentKind, ref domain.ExternalRef, payload domain.Payload) (string, domain.Stamp, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", domain.Stamp{}, fmt.Errorf("%w: waiting for write slot: %w", domain.ErrTargetUnavailable, err)
	}
	return r.ContentRepository.Write(ctx, kind, ref, payload)
}
