package domain

import (
	"fmt"
	"slices"
	"time"
)

// ConflictPolicy decides who wins when the target changed independently.
type ConflictPolicy string

// Conflict resolution policies.
const (
	SourceWins ConflictPolicy = "source_wins"
	TargetWins ConflictPolicy = "target_wins"
	NewestWins ConflictPolicy = "newest_wins"
)

// ParseConflictPolicy validates a policy name.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	p := ConflictPolicy(s)
	switch p {
	case SourceWins, TargetWins, NewestWins:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown conflict policy %q", ErrInvalidInput, s)
	}
}

// FieldPolicy controls which fields of a content kind are synchronised.
type FieldPolicy struct {
	// Include lists fields to sync. Empty means every field.
	Include []string `toml:"include" yaml:"include"`

	// Exclude lists fields never synced. Applied after Include.
	Exclude []string `toml:"exclude" yaml:"exclude"`

	// Rename maps source field names to target field names.
	Rename map[string]string `toml:"rename" yaml:"rename"`
}

// Allows reports whether a source field passes the include/exclude rules.
func (p FieldPolicy) Allows(field string) bool {
	if len(p.Include) > 0 && !slices.Contains(p.Include, field) {
		return false
	}
	return !slices.Contains(p.Exclude, field)
}

// TargetName returns the field name used at the target.
func (p FieldPolicy) TargetName(field string) string {
	if renamed, ok := p.Rename[field]; ok && renamed != "" {
		return renamed
	}
	return field
}

// FieldPolicies holds a FieldPolicy per content kind.
type FieldPolicies map[ContentKind]FieldPolicy

// For returns the policy for a kind, or the zero policy (sync everything).
func (p FieldPolicies) For(kind ContentKind) FieldPolicy {
	if p == nil {
		return FieldPolicy{}
	}
	return p[kind]
}

// Policy bundles the reloadable sync policies.
type Policy struct {
	Fields   FieldPolicies
	Conflict ConflictPolicy
}

// EngineConfig holds dispatcher, retry and concurrency settings.
type EngineConfig struct {
	// Workers is the number of dispatcher loops.
	Workers int

	// MaxAttempts bounds leases per job before dead-lettering.
	MaxAttempts int

	// BackoffBase and BackoffCap bound the retry delay.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// BackoffJitter is the randomisation factor in [0, 1).
	BackoffJitter float64

	// PerSiteConcurrency caps in-flight pipelines per target site.
	PerSiteConcurrency int

	// PerSiteRateLimit caps writes per second per target. Zero disables it.
	PerSiteRateLimit float64

	// LeaseDuration is how long a worker owns a leased job.
	LeaseDuration time.Duration

	// PollInterval is how often idle workers look for jobs.
	PollInterval time.Duration

	// StageTimeout bounds each adapter call.
	StageTimeout time.Duration
}

// DefaultEngineConfig returns sensible defaults for the engine.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Workers:            4,
		MaxAttempts:        5,
		BackoffBase:        2 * time.Second,
		BackoffCap:         5 * time.Minute,
		BackoffJitter:      0.2,
		PerSiteConcurrency: 2,
		LeaseDuration:      2 * time.Minute,
		PollInterval:       time.Second,
		StageTimeout:       30 * time.Second,
	}
}

// Validate checks the configuration is usable.
func (c EngineConfig) Validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidInput)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max_attempts must be at least 1", ErrInvalidInput)
	case c.BackoffBase <= 0 || c.BackoffCap < c.BackoffBase:
		return fmt.Errorf("%w: backoff_base must be positive and not above backoff_cap", ErrInvalidInput)
	case c.BackoffJitter < 0 || c.BackoffJitter >= 1:
		return fmt.Errorf("%w: backoff_jitter must be in [0, 1)", ErrInvalidInput)
	case c.PerSiteConcurrency < 1:
		return fmt.Errorf("%w: per_site_concurrency_limit must be at least 1", ErrInvalidInput)
	case c.PerSiteRateLimit < 0:
		return fmt.Errorf("%w: per_site_rate_limit cannot be negative", ErrInvalidInput)
	case c.LeaseDuration <= 0:
		return fmt.Errorf("%w: lease_duration must be positive", ErrInvalidInput)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalidInput)
	case c.StageTimeout <= 0:
		return fmt.Errorf("%w: stage_timeout must be positive", ErrInvalidInput)
	}
	return nil
}
