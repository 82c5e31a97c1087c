package services

import (
	"errors"
	"fmt"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

// sourceErr classifies a repository failure observed while reading the
// source. Already classified errors pass through unchanged.
func sourceErr(err error) error {
	return classify(err, domain.ErrSourceUnavailable)
}

// targetErr classifies a repository failure observed at a target.
func targetErr(err error) error {
	return classify(err, domain.ErrTargetUnavailable)
}

func classify(err, unavailable error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrSourceUnavailable),
		errors.Is(err, domain.ErrTargetUnavailable),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrTargetRejected):
		return err
	default:
		// Unclassified adapter errors (I/O, timeouts, closed connections)
		// are treated as the site being unreachable.
		return fmt.Errorf("%w: %w", unavailable, err)
	}
}

// storeErr marks a local store failure as retryable.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrTransient, err)
}
