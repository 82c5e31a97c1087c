package services

import (
	"sync/atomic"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

// PolicySource supplies the current sync policy. The dispatcher reads it
// once per job, so a reload takes effect at the next lease.
type PolicySource interface {
	Policy() domain.Policy
}

// PolicyHolder is a PolicySource that can be swapped at runtime, e.g. by
// the config file watcher.
type PolicyHolder struct {
	current atomic.Pointer[domain.Policy]
}

// NewPolicyHolder creates a holder with an initial policy.
func NewPolicyHolder(p domain.Policy) *PolicyHolder {
	h := &PolicyHolder{}
	h.Set(p)
	return h
}

// Policy returns the current policy.
func (h *PolicyHolder) Policy() domain.Policy {
	return *h.current.Load()
}

// Set replaces the policy.
func (h *PolicyHolder) Set(p domain.Policy) {
	h.current.Store(&p)
}
