package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	// A selector that matches nothing also reports ErrNotFound; the
	// dispatcher treats that as a successful no-op.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Pipeline Errors.

	// ErrTransient indicates a network, timeout or busy condition that may
	// succeed when retried.
	ErrTransient = errors.New("transient failure")

	// ErrConflictDetected indicates the target changed independently of the
	// engine. It is resolved by policy and never fails a job on its own.
	ErrConflictDetected = errors.New("conflict detected")

	// ErrValidation indicates content that is incompatible with the target
	// or a malformed job. Permanent.
	ErrValidation = errors.New("validation failed")

	// ErrTargetRejected indicates the target refused the write (schema or
	// validation mismatch). Permanent.
	ErrTargetRejected = errors.New("target rejected content")

	// ErrSourceUnavailable indicates the source site could not be reached.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrTargetUnavailable indicates the target site could not be reached.
	ErrTargetUnavailable = errors.New("target unavailable")

	// Job Store Errors.

	// ErrJobTerminal indicates an operation on a job that already reached a
	// terminal state.
	ErrJobTerminal = errors.New("job is terminal")

	// ErrLeaseLost indicates the caller no longer owns the job lease.
	ErrLeaseLost = errors.New("lease lost")

	// ErrStaleWrite indicates a success record that would move the ledger
	// of a pair backwards, e.g. when two runners share one store.
	ErrStaleWrite = errors.New("stale write")

	// ErrIncompatibleEnvironment indicates the site network cannot be synced,
	// e.g. fewer than two sites are registered.
	ErrIncompatibleEnvironment = errors.New("incompatible environment")
)

// IsTransient reports whether err is worth retrying.
// Source and target unavailability count as transient until the job runs out
// of attempts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrSourceUnavailable) ||
		errors.Is(err, ErrTargetUnavailable)
}

// IsPermanent reports whether err can never succeed on retry.
// Anything that is not transient is permanent, except ErrNotFound and
// ErrConflictDetected which are not failures.
func IsPermanent(err error) bool {
	if err == nil || IsTransient(err) {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflictDetected) {
		return false
	}
	return true
}

// PairError is a failure of one (content unit, target site) pair.
type PairError struct {
	TargetSiteID string
	UnitKey      UnitKey
	Err          error
}

// Error implements the error interface.
func (e *PairError) Error() string {
	return fmt.Sprintf("%s -> %s: %v", e.UnitKey, e.TargetSiteID, e.Err)
}

// Unwrap returns the underlying error.
func (e *PairError) Unwrap() error {
	return e.Err
}
