package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
	"github.com/custodia-labs/sitesync/internal/core/ports/driving"
	"github.com/custodia-labs/sitesync/internal/logger"
)

// Ensure Dispatcher implements the interface.
var _ driving.Dispatcher = (*Dispatcher)(nil)

// DispatcherDeps are the stores and adapters the dispatcher drives.
type DispatcherDeps struct {
	Jobs     driven.JobStore
	Records  driven.SyncRecordStore
	Refs     driven.ExternalRefStore
	Audit    driven.AuditLog
	Registry driven.SiteRegistry
	Repos    driven.RepositoryFactory

	// Policies is optional; nil means sync every field, source wins.
	Policies PolicySource
}

// Dispatcher leases jobs and runs the export, map, resolve and import
// pipeline for every (unit, target) pair of each job.
type Dispatcher struct {
	cfg      domain.EngineConfig
	jobs     driven.JobStore
	records  driven.SyncRecordStore
	refs     driven.ExternalRefStore
	audit    driven.AuditLog
	registry driven.SiteRegistry
	repos    driven.RepositoryFactory
	policies PolicySource

	exporter *Exporter
	mapper   *Mapper
	importer *Importer
	retry    *RetryPolicy
	now      func() time.Time
	instance string

	semMu sync.Mutex
	sems  map[string]*semaphore.Weighted

	wake chan struct{}

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg domain.EngineConfig, deps DispatcherDeps) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Jobs == nil || deps.Records == nil || deps.Refs == nil ||
		deps.Audit == nil || deps.Registry == nil || deps.Repos == nil {
		return nil, fmt.Errorf("%w: dispatcher is missing a store or adapter", domain.ErrInvalidInput)
	}
	if deps.Policies == nil {
		deps.Policies = NewPolicyHolder(domain.Policy{Conflict: domain.SourceWins})
	}

	return &Dispatcher{
		cfg:      cfg,
		jobs:     deps.Jobs,
		records:  deps.Records,
		refs:     deps.Refs,
		audit:    deps.Audit,
		registry: deps.Registry,
		repos:    deps.Repos,
		policies: deps.Policies,
		exporter: NewExporter(deps.Registry, deps.Repos, cfg.StageTimeout),
		mapper:   NewMapper(),
		importer: NewImporter(deps.Registry, deps.Repos, deps.Records, deps.Refs, cfg.StageTimeout),
		retry:    NewRetryPolicy(cfg),
		now:      time.Now,
		instance: uuid.NewString()[:8],
		sems:     make(map[string]*semaphore.Weighted),
		wake:     make(chan struct{}, 1),
	}, nil
}

// Notify wakes one idle worker. It never blocks.
func (d *Dispatcher) Notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Start runs the worker pool. This method blocks until Stop is called or the
// context is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	d.stopCh = make(chan struct{})
	stopCh := d.stopCh
	d.wg.Add(1)
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		d.wg.Done()
	}()

	logger.Info("dispatcher: starting %d workers", d.cfg.Workers)

	g, gctx := errgroup.WithContext(ctx)
	for n := range d.cfg.Workers {
		workerID := fmt.Sprintf("%s-%d", d.instance, n)
		g.Go(func() error {
			return d.work(gctx, workerID, stopCh)
		})
	}
	return g.Wait()
}

// Stop lets every worker finish its current job and waits for Start to return.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.stopCh)
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

func (d *Dispatcher) work(ctx context.Context, workerID string, stopCh <-chan struct{}) error {
	log := logger.With("worker", workerID)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		default:
		}

		ran, err := d.RunOnce(ctx, workerID)
		if err != nil {
			log.Warn("dispatch failed: %v", err)
		}
		if ran && err == nil {
			continue
		}

		timer := time.NewTimer(d.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-stopCh:
			timer.Stop()
			return nil
		case <-d.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// RunOnce leases and processes at most one job.
func (d *Dispatcher) RunOnce(ctx context.Context, workerID string) (bool, error) {
	job, err := d.jobs.LeaseNext(ctx, workerID, d.cfg.LeaseDuration)
	if err != nil {
		return false, fmt.Errorf("lease next job: %w", err)
	}
	if job == nil {
		return false, nil
	}
	return true, d.process(ctx, workerID, job)
}

// runResult collects pair failures for one job attempt.
type runResult struct {
	pairs     int
	transient []error
	permanent []error
	cancelled bool
}

func (r *runResult) fail(err error) {
	if domain.IsTransient(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		r.transient = append(r.transient, err)
		return
	}
	r.permanent = append(r.permanent, err)
}

func (d *Dispatcher) process(ctx context.Context, workerID string, job *domain.SyncJob) error {
	log := logger.With("worker", workerID, "job", job.ID, "attempt", job.Attempts)
	log.Debug("leased %s from %s to %s", job.Selector, job.SourceSiteID, strings.Join(job.TargetSiteIDs, ","))

	if job.CancelRequested {
		return d.finish(ctx, workerID, job, runResult{cancelled: true}, log)
	}
	if job.Attempts > d.cfg.MaxAttempts {
		// Only reachable when earlier leases expired without an outcome.
		res := runResult{permanent: []error{fmt.Errorf("lease expired on %d attempts", job.Attempts-1)}}
		return d.finish(ctx, workerID, job, res, log)
	}

	if err := d.jobs.MarkProcessing(ctx, job.ID, workerID); err != nil {
		return d.leaseErr(fmt.Errorf("mark processing: %w", err), log)
	}

	res := d.run(ctx, job, d.policies.Policy(), log)
	return d.finish(ctx, workerID, job, res, log)
}

// run drives every (unit, target) pair of the job.
func (d *Dispatcher) run(ctx context.Context, job *domain.SyncJob, policy domain.Policy, log *logger.Logger) runResult {
	var res runResult

	units, err := d.exporter.Export(ctx, job.SourceSiteID, job.Selector)
	if errors.Is(err, domain.ErrNotFound) {
		log.Info("selector %s matched nothing on %s", job.Selector, job.SourceSiteID)
		return res
	}
	if err != nil {
		res.fail(err)
		return res
	}

	targets := d.targets(ctx, job, &res)
	if len(targets) == 0 {
		return res
	}

	fields := policy.Fields.For(job.Selector.Kind)
	for unit, err := range units {
		if err != nil {
			res.fail(err)
			d.appendAudit(ctx, domain.AuditEntry{
				JobID:    job.ID,
				Event:    domain.AuditPair,
				UnitKey:  unit.Key(),
				Outcome:  domain.OutcomeFailed,
				Attempts: job.Attempts,
				Message:  err.Error(),
			})
			continue
		}

		mapped, err := d.mapper.Map(unit, fields)
		if err != nil {
			err = fmt.Errorf("map %s: %w", unit.Key(), err)
			res.fail(err)
			d.appendAudit(ctx, domain.AuditEntry{
				JobID:    job.ID,
				Event:    domain.AuditPair,
				UnitKey:  unit.Key(),
				Outcome:  domain.OutcomeFailed,
				Attempts: job.Attempts,
				Message:  err.Error(),
			})
			continue
		}

		for _, site := range targets {
			// Checked between pairs; a job whose last pair is done completes.
			if res.pairs > 0 && d.cancelRequested(ctx, job.ID) {
				res.cancelled = true
				return res
			}
			d.pair(ctx, job, site, mapped, policy.Conflict, &res, log)
		}
	}
	return res
}

// targets resolves the job's target sites. Unknown sites fail permanently.
func (d *Dispatcher) targets(ctx context.Context, job *domain.SyncJob, res *runResult) []domain.SiteDescriptor {
	sites := make([]domain.SiteDescriptor, 0, len(job.TargetSiteIDs))
	for _, id := range job.TargetSiteIDs {
		site, err := d.registry.GetSite(ctx, id)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			res.fail(fmt.Errorf("%w: target site %s is not registered", domain.ErrValidation, id))
		case err != nil:
			res.fail(fmt.Errorf("get target site %s: %w", id, targetErr(err)))
		default:
			sites = append(sites, *site)
		}
	}
	return sites
}

// pair syncs one unit to one target and records the outcome.
func (d *Dispatcher) pair(ctx context.Context, job *domain.SyncJob, site domain.SiteDescriptor, mapped MappedUnit, conflict domain.ConflictPolicy, res *runResult, log *logger.Logger) {
	res.pairs++

	outcome, detail, err := d.syncPair(ctx, job, site, mapped, conflict)
	entry := domain.AuditEntry{
		JobID:        job.ID,
		Event:        domain.AuditPair,
		TargetSiteID: site.ID,
		UnitKey:      mapped.Key,
		Outcome:      outcome,
		Attempts:     job.Attempts,
		Message:      detail,
	}
	if err != nil {
		perr := &domain.PairError{TargetSiteID: site.ID, UnitKey: mapped.Key, Err: err}
		res.fail(perr)
		entry.Outcome = domain.OutcomeFailed
		entry.Message = err.Error()
		log.Warn("%v", perr)
	} else {
		log.Debug("%s -> %s: %s (%s)", mapped.Key, site.ID, outcome, detail)
	}
	d.appendAudit(ctx, entry)
}

func (d *Dispatcher) syncPair(ctx context.Context, job *domain.SyncJob, site domain.SiteDescriptor, mapped MappedUnit, conflict domain.ConflictPolicy) (domain.Outcome, string, error) {
	if !site.Accepts(mapped.Kind) {
		rec := domain.SyncRecord{
			JobID:           job.ID,
			TargetSiteID:    site.ID,
			UnitKey:         mapped.Key,
			AppliedRevision: mapped.Revision,
			Outcome:         domain.OutcomeSkipped,
			Detail:          fmt.Sprintf("target does not accept %s content", mapped.Kind),
			Timestamp:       d.now(),
		}
		if err := d.records.Save(ctx, rec); err != nil {
			return domain.OutcomeFailed, "", storeErr("save record", err)
		}
		return domain.OutcomeSkipped, rec.Detail, nil
	}

	release, err := d.acquire(ctx, site.ID)
	if err != nil {
		return domain.OutcomeFailed, "", fmt.Errorf("%w: wait for %s: %w", domain.ErrTransient, site.ID, err)
	}
	defer release()

	decide := func(ctx context.Context, last *domain.SyncRecord) (Decision, error) {
		diff := d.mapper.Diff(mapped, last)
		var target TargetState
		if diff.Kind != DiffNoChange {
			var err error
			if target, err = d.targetState(ctx, site, mapped, last); err != nil {
				return Decision{}, err
			}
		}
		return Resolve(conflict, mapped, target, last, diff), nil
	}

	rec, err := d.importer.ApplyWith(ctx, job.ID, site.ID, mapped, decide)
	if err != nil {
		return domain.OutcomeFailed, "", err
	}
	if rec.JobID != job.ID {
		return rec.Outcome, fmt.Sprintf("revision %d already applied by job %s", rec.AppliedRevision, rec.JobID), nil
	}
	return rec.Outcome, rec.Detail, nil
}

// targetState looks up what the target holds for the unit through the
// external-id mapping.
func (d *Dispatcher) targetState(ctx context.Context, site domain.SiteDescriptor, mapped MappedUnit, last *domain.SyncRecord) (TargetState, error) {
	ref, err := d.refs.Get(ctx, site.ID, mapped.Key)
	if errors.Is(err, domain.ErrNotFound) {
		return TargetState{}, nil
	}
	if err != nil {
		return TargetState{}, storeErr("get mapping", err)
	}

	repo, err := d.repos.Open(ctx, site)
	if err != nil {
		return TargetState{}, fmt.Errorf("open target %s: %w", site.ID, targetErr(err))
	}

	stageCtx, cancel := context.WithTimeout(ctx, d.cfg.StageTimeout)
	defer cancel()
	stamp, err := repo.CurrentRevision(stageCtx, mapped.Kind, ref.TargetID)
	if errors.Is(err, domain.ErrNotFound) {
		return TargetState{TargetID: ref.TargetID}, nil
	}
	if err != nil {
		return TargetState{}, fmt.Errorf("target revision: %w", targetErr(err))
	}

	state := TargetState{Exists: true, TargetID: ref.TargetID, Stamp: stamp}
	if last.Applied() && stamp.Revision != last.TargetRevision && ref.PendingFingerprint != "" {
		if state.OwnWrite, err = holdsPending(stageCtx, repo, mapped.Kind, ref); err != nil {
			return TargetState{}, err
		}
	}
	return state, nil
}

// holdsPending reports whether the target entity still carries the payload
// of the engine's last recorded write attempt.
func holdsPending(ctx context.Context, repo driven.ContentRepository, kind domain.ContentKind, ref *domain.ExternalRef) (bool, error) {
	entity, err := repo.Read(ctx, kind, ref.TargetID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read target %s: %w", ref.TargetID, targetErr(err))
	}
	fp, err := payloadFingerprint(entity.Payload)
	if err != nil {
		return false, nil
	}
	return fp == ref.PendingFingerprint, nil
}

// acquire takes a slot of the target site's concurrency limit.
func (d *Dispatcher) acquire(ctx context.Context, siteID string) (func(), error) {
	d.semMu.Lock()
	sem, ok := d.sems[siteID]
	if !ok {
		sem = semaphore.NewWeighted(int64(d.cfg.PerSiteConcurrency))
		d.sems[siteID] = sem
	}
	d.semMu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}

func (d *Dispatcher) cancelRequested(ctx context.Context, jobID string) bool {
	job, err := d.jobs.Get(ctx, jobID)
	if err != nil {
		return false
	}
	return job.CancelRequested
}

// finish moves the job to its next state and writes the job-level audit entry.
func (d *Dispatcher) finish(ctx context.Context, workerID string, job *domain.SyncJob, res runResult, log *logger.Logger) error {
	// The outcome must be stored even when shutdown cancelled the pipeline.
	ctx = context.WithoutCancel(ctx)

	entry := domain.AuditEntry{JobID: job.ID, Attempts: job.Attempts}
	var err error

	switch {
	case res.cancelled:
		entry.Event = domain.AuditCancelled
		entry.Message = fmt.Sprintf("cancelled after %d pairs", res.pairs)
		err = d.jobs.Ack(ctx, job.ID, workerID, domain.JobCancelled)
	case len(res.permanent) > 0:
		entry.Event = domain.AuditDeadLetter
		entry.Message = joinErrors(res.permanent)
		err = d.jobs.MarkDead(ctx, job.ID, workerID, entry.Message)
	case len(res.transient) > 0 && d.retry.Exhausted(job.Attempts):
		entry.Event = domain.AuditDeadLetter
		entry.Message = fmt.Sprintf("gave up after %d attempts: %s", job.Attempts, joinErrors(res.transient))
		err = d.jobs.MarkDead(ctx, job.ID, workerID, entry.Message)
	case len(res.transient) > 0:
		delay := d.retry.NextAttemptDelay(job.Attempts)
		lastErr := joinErrors(res.transient)
		entry.Event = domain.AuditRetry
		entry.Message = fmt.Sprintf("retry in %s: %s", delay.Round(time.Millisecond), lastErr)
		err = d.jobs.Requeue(ctx, job.ID, workerID, d.now().Add(delay), lastErr)
	default:
		entry.Event = domain.AuditCompleted
		entry.Message = fmt.Sprintf("%d pairs", res.pairs)
		err = d.jobs.Ack(ctx, job.ID, workerID, domain.JobCompleted)
	}

	if err != nil {
		return d.leaseErr(fmt.Errorf("finish job: %w", err), log)
	}

	if entry.Event == domain.AuditDeadLetter {
		log.Error("dead-lettered: %s", entry.Message)
	} else {
		log.Info("%s: %s", entry.Event, entry.Message)
	}
	d.appendAudit(ctx, entry)
	return nil
}

// leaseErr drops errors caused by another worker owning or finishing the
// job; they are expected after a lease expired.
func (d *Dispatcher) leaseErr(err error, log *logger.Logger) error {
	if errors.Is(err, domain.ErrLeaseLost) || errors.Is(err, domain.ErrJobTerminal) {
		log.Warn("abandoning job: %v", err)
		return nil
	}
	return err
}

func (d *Dispatcher) appendAudit(ctx context.Context, entry domain.AuditEntry) {
	if entry.At.IsZero() {
		entry.At = d.now()
	}
	if err := d.audit.Append(ctx, entry); err != nil {
		logger.Warn("dispatcher: failed to append audit entry for job %s: %v", entry.JobID, err)
	}
}

func joinErrors(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}
