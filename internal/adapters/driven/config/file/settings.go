package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

// Settings is the typed configuration read from config.toml.
type Settings struct {
	Engine    domain.EngineConfig
	Policy    domain.Policy
	Scheduler domain.SchedulerConfig
	Sites     []domain.SiteDescriptor
	Schedules []domain.ScheduledSync
}

// DefaultSettings returns the configuration used when no file exists.
func DefaultSettings() *Settings {
	return &Settings{
		Engine:    domain.DefaultEngineConfig(),
		Policy:    domain.Policy{Conflict: domain.SourceWins},
		Scheduler: domain.DefaultSchedulerConfig(),
	}
}

// Durations are strings such as "2s" or "5m".
type fileConfig struct {
	Engine    engineSection    `toml:"engine"`
	Policy    policySection    `toml:"policy"`
	Scheduler schedulerSection `toml:"scheduler"`
	SitesFile string           `toml:"sites_file"`
	Sites     []siteEntry      `toml:"sites"`
	Schedules []scheduleEntry  `toml:"schedules"`
}

type engineSection struct {
	Workers          int     `toml:"workers"`
	MaxAttempts      int     `toml:"max_attempts"`
	BackoffBase      string  `toml:"backoff_base"`
	BackoffCap       string  `toml:"backoff_cap"`
	BackoffJitter    float64 `toml:"backoff_jitter"`
	PerSiteLimit     int     `toml:"per_site_concurrency_limit"`
	PerSiteRateLimit float64 `toml:"per_site_rate_limit"`
	LeaseDuration    string  `toml:"lease_duration"`
	PollInterval     string  `toml:"poll_interval"`
	StageTimeout     string  `toml:"stage_timeout"`
}

type policySection struct {
	Conflict string                        `toml:"conflict"`
	Fields   map[string]domain.FieldPolicy `toml:"fields"`
}

type schedulerSection struct {
	Enabled      bool   `toml:"enabled"`
	Tick         string `toml:"tick"`
	HistoryLimit int    `toml:"history_limit"`
}

type siteEntry struct {
	ID     string   `toml:"id" yaml:"id"`
	Name   string   `toml:"name" yaml:"name"`
	Driver string   `toml:"driver" yaml:"driver"`
	DSN    string   `toml:"dsn" yaml:"dsn"`
	Kinds  []string `toml:"kinds" yaml:"kinds"`
}

type scheduleEntry struct {
	ID       string   `toml:"id"`
	Name     string   `toml:"name"`
	Source   string   `toml:"source"`
	Targets  []string `toml:"targets"`
	Selector string   `toml:"selector"`
	Interval string   `toml:"interval"`
	Enabled  *bool    `toml:"enabled"`
}

func defaultFileConfig() fileConfig {
	e := domain.DefaultEngineConfig()
	s := domain.DefaultSchedulerConfig()
	return fileConfig{
		Engine: engineSection{
			Workers:          e.Workers,
			MaxAttempts:      e.MaxAttempts,
			BackoffBase:      e.BackoffBase.String(),
			BackoffCap:       e.BackoffCap.String(),
			BackoffJitter:    e.BackoffJitter,
			PerSiteLimit:     e.PerSiteConcurrency,
			PerSiteRateLimit: e.PerSiteRateLimit,
			LeaseDuration:    e.LeaseDuration.String(),
			PollInterval:     e.PollInterval.String(),
			StageTimeout:     e.StageTimeout.String(),
		},
		Policy: policySection{Conflict: string(domain.SourceWins)},
		Scheduler: schedulerSection{
			Enabled:      s.Enabled,
			Tick:         s.Tick.String(),
			HistoryLimit: s.HistoryLimit,
		},
	}
}

// LoadSettings reads and validates the configuration file at path.
// A missing file yields DefaultSettings. Missing keys keep their defaults.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	raw := defaultFileConfig()
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrInvalidInput, path, err)
	}

	settings := &Settings{}
	if settings.Engine, err = raw.Engine.config(); err != nil {
		return nil, err
	}
	if settings.Policy, err = raw.Policy.policy(); err != nil {
		return nil, err
	}
	if settings.Scheduler, err = raw.Scheduler.config(); err != nil {
		return nil, err
	}

	entries := raw.Sites
	if raw.SitesFile != "" {
		sitesPath := raw.SitesFile
		if !filepath.IsAbs(sitesPath) {
			sitesPath = filepath.Join(filepath.Dir(path), sitesPath)
		}
		fromFile, err := loadSiteEntries(sitesPath)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fromFile...)
	}
	for _, e := range entries {
		settings.Sites = append(settings.Sites, e.descriptor())
	}

	for _, e := range raw.Schedules {
		sched, err := e.schedule()
		if err != nil {
			return nil, err
		}
		settings.Schedules = append(settings.Schedules, sched)
	}
	return settings, nil
}

// LoadPolicy reads only the policy section, for hot reloads.
func LoadPolicy(path string) (domain.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("read config: %w", err)
	}
	raw := defaultFileConfig()
	if err := toml.Unmarshal(data, &raw); err != nil {
		return domain.Policy{}, fmt.Errorf("%w: parse %s: %w", domain.ErrInvalidInput, path, err)
	}
	return raw.Policy.policy()
}

func (e engineSection) config() (domain.EngineConfig, error) {
	cfg := domain.EngineConfig{
		Workers:            e.Workers,
		MaxAttempts:        e.MaxAttempts,
		BackoffJitter:      e.BackoffJitter,
		PerSiteConcurrency: e.PerSiteLimit,
		PerSiteRateLimit:   e.PerSiteRateLimit,
	}
	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"backoff_base", e.BackoffBase, &cfg.BackoffBase},
		{"backoff_cap", e.BackoffCap, &cfg.BackoffCap},
		{"lease_duration", e.LeaseDuration, &cfg.LeaseDuration},
		{"poll_interval", e.PollInterval, &cfg.PollInterval},
		{"stage_timeout", e.StageTimeout, &cfg.StageTimeout},
	}
	for _, d := range durations {
		v, err := parseDuration("engine."+d.key, d.val)
		if err != nil {
			return domain.EngineConfig{}, err
		}
		*d.dst = v
	}
	if err := cfg.Validate(); err != nil {
		return domain.EngineConfig{}, fmt.Errorf("engine: %w", err)
	}
	return cfg, nil
}

func (p policySection) policy() (domain.Policy, error) {
	conflict, err := domain.ParseConflictPolicy(p.Conflict)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("policy: %w", err)
	}
	policy := domain.Policy{Conflict: conflict}
	if len(p.Fields) > 0 {
		policy.Fields = make(domain.FieldPolicies, len(p.Fields))
		for kind, fp := range p.Fields {
			k := domain.ContentKind(kind)
			if err := k.Validate(); err != nil {
				return domain.Policy{}, fmt.Errorf("policy.fields: %w", err)
			}
			policy.Fields[k] = fp
		}
	}
	return policy, nil
}

func (s schedulerSection) config() (domain.SchedulerConfig, error) {
	tick, err := parseDuration("scheduler.tick", s.Tick)
	if err != nil {
		return domain.SchedulerConfig{}, err
	}
	if s.HistoryLimit < 0 {
		return domain.SchedulerConfig{}, fmt.Errorf("%w: scheduler.history_limit cannot be negative", domain.ErrInvalidInput)
	}
	return domain.SchedulerConfig{Enabled: s.Enabled, Tick: tick, HistoryLimit: s.HistoryLimit}, nil
}

func (e siteEntry) descriptor() domain.SiteDescriptor {
	site := domain.SiteDescriptor{ID: e.ID, Name: e.Name, Driver: e.Driver, DSN: e.DSN}
	for _, k := range e.Kinds {
		site.Kinds = append(site.Kinds, domain.ContentKind(k))
	}
	return site
}

func (e scheduleEntry) schedule() (domain.ScheduledSync, error) {
	sel, err := domain.ParseSelector(e.Selector)
	if err != nil {
		return domain.ScheduledSync{}, fmt.Errorf("schedule %s: %w", e.ID, err)
	}
	interval, err := parseDuration("schedules."+e.ID+".interval", e.Interval)
	if err != nil {
		return domain.ScheduledSync{}, err
	}
	enabled := true
	if e.Enabled != nil {
		enabled = *e.Enabled
	}
	return domain.ScheduledSync{
		ID:            e.ID,
		Name:          e.Name,
		SourceSiteID:  e.Source,
		TargetSiteIDs: e.Targets,
		Selector:      sel,
		Interval:      interval,
		Enabled:       enabled,
	}, nil
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, key, err)
	}
	return d, nil
}
