package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	contentmem "github.com/custodia-labs/sitesync/internal/adapters/driven/content/memory"
	"github.com/custodia-labs/sitesync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
	"github.com/custodia-labs/sitesync/internal/core/ports/driving"
)

// --- Test doubles shared by the pipeline tests ---

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testRegistry is a fixed driven.SiteRegistry.
type testRegistry struct {
	sites map[string]domain.SiteDescriptor
	err   error
}

func newTestRegistry(sites ...domain.SiteDescriptor) *testRegistry {
	r := &testRegistry{sites: make(map[string]domain.SiteDescriptor)}
	for _, s := range sites {
		r.sites[s.ID] = s
	}
	return r
}

func (r *testRegistry) GetSite(_ context.Context, id string) (*domain.SiteDescriptor, error) {
	if r.err != nil {
		return nil, r.err
	}
	s, ok := r.sites[id]
	if !ok {
		return nil, fmt.Errorf("site %s: %w", id, domain.ErrNotFound)
	}
	return &s, nil
}

func (r *testRegistry) ListSites(_ context.Context) ([]domain.SiteDescriptor, error) {
	if r.err != nil {
		return nil, r.err
	}
	sites := make([]domain.SiteDescriptor, 0, len(r.sites))
	for _, s := range r.sites {
		sites = append(sites, s)
	}
	slices.SortFunc(sites, func(a, b domain.SiteDescriptor) int {
		return strings.Compare(a.ID, b.ID)
	})
	return sites, nil
}

// testFactory maps site IDs to repositories.
type testFactory map[string]driven.ContentRepository

func (f testFactory) Open(_ context.Context, site domain.SiteDescriptor) (driven.ContentRepository, error) {
	repo, ok := f[site.ID]
	if !ok {
		return nil, fmt.Errorf("%w: no repository for %s", domain.ErrValidation, site.ID)
	}
	return repo, nil
}

// flakyRepo wraps a repository and fails writes on demand.
type flakyRepo struct {
	driven.ContentRepository

	mu          sync.Mutex
	failWrites  int
	writeErr    error
	writes      int
	beforeWrite func()
}

// failNext makes the next n writes fail with err.
func (r *flakyRepo) failNext(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWrites = n
	r.writeErr = err
}

func (r *flakyRepo) Write(ctx context.Context, kind domain.ContentKind, ref domain.ExternalRef, payload domain.Payload) (string, domain.Stamp, error) {
	r.mu.Lock()
	r.writes++
	hook := r.beforeWrite
	var err error
	if r.failWrites != 0 {
		if r.failWrites > 0 {
			r.failWrites--
		}
		err = r.writeErr
	}
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return "", domain.Stamp{}, err
	}
	return r.ContentRepository.Write(ctx, kind, ref, payload)
}

func (r *flakyRepo) attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// --- Engine fixture ---

// testEngine wires a dispatcher and sync service over in-memory stores with
// a source site "a" and a target site "b".
type testEngine struct {
	clock    *testClock
	jobs     *memory.JobStore
	records  *memory.SyncRecordStore
	refs     *memory.ExternalRefStore
	audit    *memory.AuditLog
	registry *testRegistry
	policy   *PolicyHolder

	source *contentmem.Repository
	target *contentmem.Repository
	flaky  *flakyRepo

	dispatcher *Dispatcher
	svc        *SyncService
}

func testEngineConfig() domain.EngineConfig {
	cfg := domain.DefaultEngineConfig()
	cfg.Workers = 1
	cfg.MaxAttempts = 5
	cfg.BackoffBase = time.Second
	cfg.BackoffCap = time.Minute
	cfg.BackoffJitter = 0
	cfg.LeaseDuration = time.Minute
	cfg.PollInterval = 10 * time.Millisecond
	cfg.StageTimeout = 5 * time.Second
	return cfg
}

func newTestEngine(t *testing.T, cfg domain.EngineConfig, conflict domain.ConflictPolicy) *testEngine {
	t.Helper()

	e := &testEngine{
		clock:   newTestClock(),
		jobs:    memory.NewJobStore(),
		records: memory.NewSyncRecordStore(),
		refs:    memory.NewExternalRefStore(),
		audit:   memory.NewAuditLog(),
		registry: newTestRegistry(
			domain.SiteDescriptor{ID: "a", Name: "Main", Driver: "memory"},
			domain.SiteDescriptor{ID: "b", Name: "Blog", Driver: "memory"},
		),
		policy: NewPolicyHolder(domain.Policy{Conflict: conflict}),
		source: contentmem.New(),
		target: contentmem.New(),
	}
	e.jobs.SetClock(e.clock.Now)
	e.source.SetClock(e.clock.Now)
	e.target.SetClock(e.clock.Now)
	e.flaky = &flakyRepo{ContentRepository: e.target}

	d, err := NewDispatcher(cfg, DispatcherDeps{
		Jobs:     e.jobs,
		Records:  e.records,
		Refs:     e.refs,
		Audit:    e.audit,
		Registry: e.registry,
		Repos:    testFactory{"a": e.source, "b": e.flaky},
		Policies: e.policy,
	})
	require.NoError(t, err)
	d.now = e.clock.Now
	d.importer.now = e.clock.Now
	e.dispatcher = d

	e.svc = NewSyncService(e.jobs, e.records, e.audit, e.registry, d)
	e.svc.now = e.clock.Now
	return e
}

// enqueue enqueues a sync from a to b.
func (e *testEngine) enqueue(t *testing.T, sel domain.ContentSelector) string {
	t.Helper()
	id, err := e.svc.EnqueueSync(context.Background(), driving.EnqueueRequest{
		SourceSiteID:  "a",
		TargetSiteIDs: []string{"b"},
		Selector:      sel,
	})
	require.NoError(t, err)
	return id
}

// runOnce processes one job and requires that a job was eligible.
func (e *testEngine) runOnce(t *testing.T) {
	t.Helper()
	ran, err := e.dispatcher.RunOnce(context.Background(), "w1")
	require.NoError(t, err)
	require.True(t, ran, "expected an eligible job")
}

func (e *testEngine) job(t *testing.T, id string) *domain.SyncJob {
	t.Helper()
	job, err := e.jobs.Get(context.Background(), id)
	require.NoError(t, err)
	return job
}

func (e *testEngine) events(t *testing.T, jobID string) []domain.AuditEvent {
	t.Helper()
	entries, err := e.audit.List(context.Background(), domain.AuditFilter{JobID: jobID})
	require.NoError(t, err)
	events := make([]domain.AuditEvent, len(entries))
	for i := range entries {
		events[i] = entries[i].Event
	}
	return events
}

func pageSelector(id string) domain.ContentSelector {
	return domain.ContentSelector{Kind: domain.KindPage, ID: id}
}
