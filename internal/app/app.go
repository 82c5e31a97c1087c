// Package app wires configuration, stores, site adapters and services into
// a runnable engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/sitesync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sitesync/internal/adapters/driven/content"
	"github.com/custodia-labs/sitesync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sitesync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
	"github.com/custodia-labs/sitesync/internal/core/services"
	"github.com/custodia-labs/sitesync/internal/logger"
)

// Option configures the app builder.
type Option func(*options) error

type options struct {
	configDir string
	dataDir   string
	inMemory  bool
}

// WithDataDir stores the engine database in dir instead of <config>/data.
func WithDataDir(dir string) Option {
	return func(o *options) error {
		if dir == "" {
			return errors.New("data directory cannot be empty")
		}
		o.dataDir = dir
		return nil
	}
}

// WithInMemoryStorage keeps jobs, records and audit entries in memory.
// Nothing survives the process.
func WithInMemoryStorage() Option {
	return func(o *options) error {
		o.inMemory = true
		return nil
	}
}

// App is a fully wired engine.
type App struct {
	Settings   *file.Settings
	Config     *file.ConfigStore
	Registry   *file.StaticRegistry
	Sync       *services.SyncService
	Dispatcher *services.Dispatcher
	Scheduler  *services.Scheduler
	Watcher    *file.Watcher
	Policy     *services.PolicyHolder

	closers []func() error
}

type stores struct {
	jobs      driven.JobStore
	records   driven.SyncRecordStore
	refs      driven.ExternalRefStore
	audit     driven.AuditLog
	schedules driven.SchedulerStore
}

// New loads configuration from configDir (default ~/.sitesync) and builds
// the engine. Call Close when done.
func New(_ context.Context, configDir string, opts ...Option) (*App, error) {
	o := &options{configDir: configDir}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.configDir == "" {
		dir, err := file.DefaultDir()
		if err != nil {
			return nil, err
		}
		o.configDir = dir
	}
	if o.dataDir == "" {
		o.dataDir = filepath.Join(o.configDir, "data")
	}

	cfgPath := filepath.Join(o.configDir, file.ConfigFile)
	settings, err := file.LoadSettings(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	configStore, err := file.NewConfigStore(o.configDir)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}

	registry, err := file.NewStaticRegistry(settings.Sites)
	if err != nil {
		return nil, fmt.Errorf("site registry: %w", err)
	}

	a := &App{
		Settings: settings,
		Config:   configStore,
		Registry: registry,
		Policy:   services.NewPolicyHolder(settings.Policy),
	}

	// Release whatever was opened if a later step fails.
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	st, err := a.openStores(o)
	if err != nil {
		return nil, err
	}

	repos := content.NewFactory(settings.Engine.PerSiteRateLimit)
	a.closers = append(a.closers, repos.Close)

	a.Dispatcher, err = services.NewDispatcher(settings.Engine, services.DispatcherDeps{
		Jobs:     st.jobs,
		Records:  st.records,
		Refs:     st.refs,
		Audit:    st.audit,
		Registry: registry,
		Repos:    repos,
		Policies: a.Policy,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}

	a.Sync = services.NewSyncService(st.jobs, st.records, st.audit, registry, a.Dispatcher)
	a.Scheduler = services.NewScheduler(settings.Scheduler, settings.Schedules, st.schedules, a.Sync)
	a.Watcher = file.NewWatcher(cfgPath, a.Policy)

	logger.Debug("app: %d sites, %d schedules, %d workers",
		len(settings.Sites), len(settings.Schedules), settings.Engine.Workers)

	ok = true
	return a, nil
}

func (a *App) openStores(o *options) (stores, error) {
	if o.inMemory {
		return stores{
			jobs:      memory.NewJobStore(),
			records:   memory.NewSyncRecordStore(),
			refs:      memory.NewExternalRefStore(),
			audit:     memory.NewAuditLog(),
			schedules: memory.NewSchedulerStore(),
		}, nil
	}

	db, err := sqlite.NewStore(o.dataDir)
	if err != nil {
		return stores{}, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	logger.Debug("app: using database %s", db.Path())

	return stores{
		jobs:      db.JobStore(),
		records:   db.SyncRecordStore(),
		refs:      db.ExternalRefStore(),
		audit:     db.AuditLog(),
		schedules: db.SchedulerStore(),
	}, nil
}

// Close releases site repositories and the engine database.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
