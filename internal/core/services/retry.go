package services

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

// RetryPolicy computes backoff delays for failed jobs.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	Jitter      float64
}

// NewRetryPolicy builds a retry policy from engine configuration.
func NewRetryPolicy(cfg domain.EngineConfig) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Base:        cfg.BackoffBase,
		Cap:         cfg.BackoffCap,
		Jitter:      cfg.BackoffJitter,
	}
}

// Exhausted reports whether a job that failed on its attempts-th lease
// should be dead-lettered.
func (p *RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// NextAttemptDelay returns the wait before the next lease after the attempts-th
// failure: Base doubled per attempt, randomised by Jitter, never above Cap.
func (p *RetryPolicy) NextAttemptDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Base,
		RandomizationFactor: p.Jitter,
		Multiplier:          2,
		MaxInterval:         p.Cap,
	}
	b.Reset()

	var d time.Duration
	for range attempts {
		d = b.NextBackOff()
	}
	return min(d, p.Cap)
}
