// Package orchestrator runs searches as background jobs, one concurrent task per
// platform, and serves their status and results to pollers.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bernabe05rodriguez-stack/CarScraper/cache"
	"github.com/bernabe05rodriguez-stack/CarScraper/compare"
	"github.com/bernabe05rodriguez-stack/CarScraper/config"
	"github.com/bernabe05rodriguez-stack/CarScraper/fx"
	"github.com/bernabe05rodriguez-stack/CarScraper/models"
	"github.com/bernabe05rodriguez-stack/CarScraper/notify"
	"github.com/bernabe05rodriguez-stack/CarScraper/scraper"
	"github.com/bernabe05rodriguez-stack/CarScraper/source"
	"github.com/bernabe05rodriguez-stack/CarScraper/stats"
	"github.com/google/uuid"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobNotReady = errors.New("job not ready")
	ErrClosed      = errors.New("orchestrator closed")
)

// JobStore persists job snapshots, e.g. storage.Postgres. LoadJob serves jobs
// that are no longer held in memory.
type JobStore interface {
	SaveJob(ctx context.Context, job models.Job) error
	LoadJob(ctx context.Context, id string) (models.Job, error)
}

// Options configures New. Sources is required.
type Options struct {
	Sources   *source.Registry
	Cache     *cache.Cache
	Rates     fx.Source
	Publisher notify.Publisher
	Store     JobStore
	Metrics   *Metrics
	Logger    *slog.Logger

	// AdapterTimeout bounds one adapter call; zero means unbounded.
	AdapterTimeout time.Duration
	// PlatformRetries is the number of extra rounds for a platform that failed
	// with a timeout, block or connection error.
	PlatformRetries int
	// CachePartial also caches jobs in which some platforms failed.
	CachePartial bool
	// Retention is how long finished jobs stay queryable; zero keeps them forever.
	Retention time.Duration
	Now       func() time.Time
}

// OptionsFromConfig maps service configuration onto orchestrator options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		AdapterTimeout:  cfg.AdapterTimeout,
		PlatformRetries: cfg.PlatformRetries,
		CachePartial:    cfg.CachePartial,
		Retention:       cfg.JobRetention,
	}
}

// Results is the output of a completed job.
type Results struct {
	Job      models.Job       `json:"job"`
	Listings []models.Listing `json:"listings"`
	Stats    stats.Summary    `json:"stats"`
}

type job struct {
	snap     models.Job
	listings []models.Listing
	stats    stats.Summary
	finished int
	cancel   context.CancelFunc
	done     chan struct{}
}

type taskResult struct {
	platform models.Platform
	result   scraper.Result
	err      error
	canceled bool
	attempts int
	duration time.Duration
}

// Orchestrator owns every job record; callers only read snapshots.
type Orchestrator struct {
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*job
	closed bool
}

// New creates an orchestrator. Close it to stop in-flight jobs.
func New(opts Options) (*Orchestrator, error) {
	if opts.Sources == nil {
		return nil, fmt.Errorf("orchestrator needs a source registry")
	}
	if opts.PlatformRetries < 0 {
		return nil, fmt.Errorf("platform retries cannot be negative")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		opts:   opts,
		logger: logger.With(slog.String("component", "orchestrator")),
		now:    opts.Now,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
	}, nil
}

// Submit validates spec and starts a job. A fresh cache entry yields a job that
// is already completed and marked Cached, without contacting any platform.
func (o *Orchestrator) Submit(ctx context.Context, spec models.SearchSpec) (models.Job, error) {
	spec.Platforms = dedupe(spec.Platforms)
	if err := spec.Validate(); err != nil {
		return models.Job{}, err
	}
	if err := o.opts.Sources.Check(spec.Kind, spec.Platforms); err != nil {
		return models.Job{}, err
	}
	o.prune()

	j := &job{
		snap: models.Job{
			ID:          uuid.NewString(),
			Spec:        spec,
			Fingerprint: cache.Fingerprint(spec),
			Status:      models.StatusPending,
			CreatedAt:   o.now(),
		},
		done: make(chan struct{}),
	}
	for _, p := range spec.Platforms {
		j.snap.Platforms = append(j.snap.Platforms, models.PlatformReport{Platform: p, State: models.TaskPending})
	}

	if o.opts.Cache != nil {
		if entry, ok := o.opts.Cache.Get(ctx, j.snap.Fingerprint); ok {
			return o.completeFromCache(ctx, j, entry)
		}
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return models.Job{}, ErrClosed
	}
	jobCtx, cancel := context.WithCancel(o.ctx)
	j.cancel = cancel
	o.jobs[j.snap.ID] = j
	snap := j.snap.Clone()
	o.running.Add(1)
	o.mu.Unlock()

	o.logger.Info("job submitted",
		slog.String("job_id", snap.ID),
		slog.String("make", spec.Make),
		slog.String("model", spec.Model),
		slog.Int("platforms", len(spec.Platforms)),
	)
	o.persist(ctx, snap)
	o.emit(ctx, notify.JobCreated, snap)
	o.opts.Metrics.jobStarted()
	go o.run(jobCtx, j, spec)
	return snap, nil
}

func (o *Orchestrator) completeFromCache(ctx context.Context, j *job, entry cache.Entry) (models.Job, error) {
	now := o.now()
	counts := make(map[models.Platform]int)
	for _, l := range entry.Listings {
		counts[l.Platform]++
	}
	j.snap.Status = models.StatusCompleted
	j.snap.Cached = true
	j.snap.Progress = 100
	j.snap.ListingCount = len(entry.Listings)
	j.snap.StartedAt = &now
	j.snap.CompletedAt = &now
	for i := range j.snap.Platforms {
		j.snap.Platforms[i].State = models.TaskSucceeded
		j.snap.Platforms[i].Listings = counts[j.snap.Platforms[i].Platform]
	}
	j.listings = entry.Listings
	j.stats = entry.Stats
	close(j.done)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return models.Job{}, ErrClosed
	}
	o.jobs[j.snap.ID] = j
	snap := j.snap.Clone()
	o.mu.Unlock()

	o.logger.Info("job served from cache",
		slog.String("job_id", snap.ID),
		slog.String("fingerprint", snap.Fingerprint),
		slog.Int("listings", snap.ListingCount),
	)
	o.persist(ctx, snap)
	o.emit(ctx, notify.JobCompleted, snap)
	o.opts.Metrics.jobFinished(string(models.StatusCompleted), true)
	return snap, nil
}

func (o *Orchestrator) run(ctx context.Context, j *job, spec models.SearchSpec) {
	defer o.running.Done()
	defer o.opts.Metrics.jobDone()
	defer j.cancel()

	results := make(chan taskResult, len(spec.Platforms))
	for _, p := range spec.Platforms {
		src, _ := o.opts.Sources.Lookup(p)
		go o.runTask(ctx, j, src, spec, results)
	}
	for range spec.Platforms {
		o.collect(ctx, j, <-results)
	}
	o.finish(ctx, j)
}

func (o *Orchestrator) runTask(ctx context.Context, j *job, src source.Source, spec models.SearchSpec, out chan<- taskResult) {
	r := taskResult{platform: src.Info().Platform}
	start := time.Now()
	defer func() {
		r.duration = time.Since(start)
		out <- r
	}()
	if err := ctx.Err(); err != nil {
		r.err, r.canceled = err, true
		return
	}
	o.markRunning(ctx, j, r.platform)

	for {
		r.attempts++
		r.result, r.err = o.search(ctx, src, spec)
		if r.err != nil && ctx.Err() != nil && errors.Is(r.err, context.Canceled) {
			r.canceled = true
			return
		}
		if r.err == nil || ctx.Err() != nil || r.attempts > o.opts.PlatformRetries || !retryRound(r.err) {
			return
		}
		o.logger.Warn("platform failed, retrying",
			slog.String("job_id", j.snap.ID),
			slog.String("platform", string(r.platform)),
			slog.Int("attempt", r.attempts),
			slog.Any("error", r.err),
		)
	}
}

type searchOutcome struct {
	res scraper.Result
	err error
}

// search runs one bounded adapter call. Panics become errors. An adapter that
// ignores its context is abandoned once the deadline passes.
func (o *Orchestrator) search(ctx context.Context, src source.Source, spec models.SearchSpec) (scraper.Result, error) {
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if o.opts.AdapterTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, o.opts.AdapterTimeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	platform := src.Info().Platform
	done := make(chan searchOutcome, 1)
	go func() {
		var out searchOutcome
		defer func() {
			if rec := recover(); rec != nil {
				o.logger.Error("adapter panicked",
					slog.String("platform", string(platform)),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
				)
				out = searchOutcome{err: fmt.Errorf("adapter panic: %v", rec)}
			}
			done <- out
		}()
		out.res, out.err = src.Search(callCtx, spec)
	}()

	var out searchOutcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		select {
		case out = <-done:
		default:
			o.logger.Warn("adapter did not return after its deadline, abandoning call",
				slog.String("platform", string(platform)),
				slog.Any("error", callCtx.Err()),
			)
			out = searchOutcome{err: callCtx.Err()}
		}
	}

	res, err := out.res, out.err
	switch {
	case err == nil:
	case errors.Is(err, scraper.ErrNoResults):
		return scraper.Result{Warnings: res.Warnings}, nil
	case ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
		err = scraper.ErrTimeout{Err: err}
	}
	return res, err
}

func retryRound(err error) bool {
	switch scraper.ErrorKind(err) {
	case "timeout", "blocked", "connection":
		return true
	}
	return false
}

func (o *Orchestrator) markRunning(ctx context.Context, j *job, p models.Platform) {
	o.mu.Lock()
	if rep := j.snap.Report(p); rep != nil {
		rep.State = models.TaskRunning
	}
	first := j.snap.Status == models.StatusPending
	if first {
		now := o.now()
		j.snap.Status = models.StatusRunning
		j.snap.StartedAt = &now
	}
	snap := j.snap.Clone()
	o.mu.Unlock()

	if first {
		o.persist(ctx, snap)
		o.emit(ctx, notify.JobRunning, snap)
	}
}

// collect merges one finished task into the job, in completion order.
func (o *Orchestrator) collect(ctx context.Context, j *job, r taskResult) {
	valid, dropped := o.validListings(r)

	o.mu.Lock()
	rep := j.snap.Report(r.platform)
	rep.Attempts = r.attempts
	rep.Duration = r.duration
	rep.Warnings = append([]string(nil), r.result.Warnings...)
	switch {
	case r.canceled:
		rep.State = models.TaskCanceled
	case r.err != nil:
		rep.State = models.TaskFailed
		rep.ErrorKind = scraper.ErrorKind(r.err)
		rep.Error = r.err.Error()
	default:
		if dropped > 0 {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("dropped %d invalid listings", dropped))
		}
		rep.State = models.TaskSucceeded
		rep.Listings = len(valid)
		j.listings = append(j.listings, valid...)
	}
	j.finished++
	j.snap.ListingCount = len(j.listings)
	if progress := min(j.finished*100/len(j.snap.Platforms), 99); progress > j.snap.Progress {
		j.snap.Progress = progress
	}
	state := rep.State
	snap := j.snap.Clone()
	o.mu.Unlock()

	o.opts.Metrics.taskFinished(string(r.platform), string(state), r.duration)
	attrs := []any{
		slog.String("job_id", snap.ID),
		slog.String("platform", string(r.platform)),
		slog.String("state", string(state)),
		slog.Int("listings", len(valid)),
		slog.Int("progress", snap.Progress),
		slog.Duration("duration", r.duration),
	}
	if state == models.TaskFailed {
		o.logger.Warn("platform task failed", append(attrs, slog.Any("error", r.err))...)
	} else {
		o.logger.Info("platform task finished", attrs...)
	}
	o.persist(ctx, snap)
}

func (o *Orchestrator) validListings(r taskResult) ([]models.Listing, int) {
	if r.err != nil {
		return nil, 0
	}
	valid := make([]models.Listing, 0, len(r.result.Listings))
	for _, l := range r.result.Listings {
		if err := l.Validate(); err != nil {
			o.logger.Debug("dropping invalid listing", slog.String("platform", string(r.platform)), slog.Any("error", err))
			continue
		}
		if _, ok := o.opts.Sources.Lookup(l.Platform); !ok {
			continue
		}
		valid = append(valid, l)
	}
	return valid, len(r.result.Listings) - len(valid)
}

func (o *Orchestrator) finish(ctx context.Context, j *job) {
	o.mu.Lock()
	var failed, canceled int
	var reasons []string
	for _, rep := range j.snap.Platforms {
		switch rep.State {
		case models.TaskFailed:
			failed++
			reasons = append(reasons, fmt.Sprintf("%s: %s", rep.Platform, rep.Error))
		case models.TaskCanceled:
			canceled++
		}
	}
	allFailed := failed > 0 && failed == len(j.snap.Platforms)-canceled
	j.snap.Canceled = canceled > 0
	isCanceled := j.snap.Canceled
	j.stats = stats.Summarize(j.listings)
	entry := cache.Entry{
		Fingerprint: j.snap.Fingerprint,
		Spec:        j.snap.Spec,
		Listings:    j.listings,
		Stats:       j.stats,
		Partial:     failed > 0,
	}
	o.mu.Unlock()

	if !allFailed && !isCanceled && o.opts.Cache != nil && (failed == 0 || o.opts.CachePartial) {
		if err := o.opts.Cache.Put(context.WithoutCancel(ctx), entry); err != nil {
			o.logger.Warn("cache write failed", slog.String("job_id", j.snap.ID), slog.Any("error", err))
		}
	}

	o.mu.Lock()
	now := o.now()
	j.snap.CompletedAt = &now
	j.snap.Progress = 100
	event := notify.JobCompleted
	if allFailed {
		j.snap.Status = models.StatusFailed
		j.snap.Error = "all platforms failed: " + strings.Join(reasons, "; ")
		event = notify.JobFailed
	} else {
		j.snap.Status = models.StatusCompleted
	}
	snap := j.snap.Clone()
	close(j.done)
	o.mu.Unlock()

	o.logger.Info("job finished",
		slog.String("job_id", snap.ID),
		slog.String("status", string(snap.Status)),
		slog.Int("listings", snap.ListingCount),
		slog.Int("failed_platforms", failed),
		slog.Bool("canceled", snap.Canceled),
	)
	o.persist(ctx, snap)
	o.emit(ctx, event, snap)
	o.opts.Metrics.jobFinished(string(snap.Status), false)
}

// GetStatus returns a snapshot of the job. Jobs pruned from memory, or run by an
// earlier process, are read back from the store when one is configured.
func (o *Orchestrator) GetStatus(ctx context.Context, id string) (models.Job, error) {
	o.mu.Lock()
	j, ok := o.jobs[id]
	var snap models.Job
	if ok {
		snap = j.snap.Clone()
	}
	o.mu.Unlock()
	if ok {
		return snap, nil
	}
	if o.opts.Store == nil {
		return models.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	stored, err := o.opts.Store.LoadJob(ctx, id)
	if err != nil {
		return models.Job{}, fmt.Errorf("%w: %s: %w", ErrJobNotFound, id, err)
	}
	return stored, nil
}

// GetResults returns the listings and statistics of a completed job.
// Failed jobs never complete and also answer ErrJobNotReady.
func (o *Orchestrator) GetResults(id string) (Results, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.jobs[id]
	if !ok {
		return Results{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if j.snap.Status != models.StatusCompleted {
		return Results{}, fmt.Errorf("%w: job %s is %s", ErrJobNotReady, id, j.snap.Status)
	}
	return Results{
		Job:      j.snap.Clone(),
		Listings: append([]models.Listing(nil), j.listings...),
		Stats:    j.stats,
	}, nil
}

// Wait blocks until the job reaches a terminal status or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context, id string) (models.Job, error) {
	o.mu.Lock()
	j, ok := o.jobs[id]
	o.mu.Unlock()
	if !ok {
		return models.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	select {
	case <-j.done:
		return o.GetStatus(ctx, id)
	case <-ctx.Done():
		return models.Job{}, ctx.Err()
	}
}

// Cancel stops the job's unfinished platform tasks. Their contributions are
// recorded as canceled, not failed, and the job is not cached. Once every task
// has reported, Cancel has no effect.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.Lock()
	j, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if j.snap.Status.Terminal() || j.finished == len(j.snap.Platforms) {
		o.mu.Unlock()
		return nil
	}
	j.snap.Canceled = true
	cancel := j.cancel
	o.mu.Unlock()

	o.logger.Info("job canceled", slog.String("job_id", id))
	if cancel != nil {
		cancel()
	}
	return nil
}

// Jobs lists every retained job, newest first.
func (o *Orchestrator) Jobs() []models.Job {
	o.mu.Lock()
	out := make([]models.Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		out = append(out, j.snap.Clone())
	}
	o.mu.Unlock()
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}

// Comparison is the arbitrage report between a US and a German job.
type Comparison struct {
	compare.Result
	USAJobID      string    `json:"usa_job_id"`
	GermanyJobID  string    `json:"germany_job_id"`
	RateSource    string    `json:"rate_source,omitempty"`
	RateStale     bool      `json:"rate_stale,omitempty"`
	RateFetchedAt time.Time `json:"rate_fetched_at,omitempty"`
}

// Compare contrasts the US listings of one completed job with the German listings
// of another. Without an exchange rate the summaries are still returned.
func (o *Orchestrator) Compare(ctx context.Context, usaJobID, germanyJobID string) (Comparison, error) {
	usa, err := o.GetResults(usaJobID)
	if err != nil {
		return Comparison{}, err
	}
	de, err := o.GetResults(germanyJobID)
	if err != nil {
		return Comparison{}, err
	}

	var rate fx.Rate
	if o.opts.Rates != nil {
		if rate, err = o.opts.Rates.Rate(ctx); err != nil {
			o.logger.Warn("no exchange rate, comparing without conversion", slog.Any("error", err))
			rate = fx.Rate{}
		}
	}
	out := Comparison{
		Result:        compare.Compare(inRegion(usa.Listings, models.RegionUSA), inRegion(de.Listings, models.RegionGermany), rate.Value),
		USAJobID:      usaJobID,
		GermanyJobID:  germanyJobID,
		RateSource:    rate.Source,
		RateStale:     rate.Stale,
		RateFetchedAt: rate.FetchedAt,
	}
	return out, nil
}

func inRegion(listings []models.Listing, region models.Region) []models.Listing {
	out := make([]models.Listing, 0, len(listings))
	for _, l := range listings {
		if l.Region == region {
			out = append(out, l)
		}
	}
	return out
}

// Close cancels every in-flight job and waits for the tasks to wind down.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()
	o.running.Wait()
}

func (o *Orchestrator) prune() {
	if o.opts.Retention <= 0 {
		return
	}
	cutoff := o.now().Add(-o.opts.Retention)
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, j := range o.jobs {
		if j.snap.Status.Terminal() && j.snap.CompletedAt != nil && j.snap.CompletedAt.Before(cutoff) {
			delete(o.jobs, id)
		}
	}
}

func (o *Orchestrator) persist(ctx context.Context, snap models.Job) {
	if o.opts.Store == nil {
		return
	}
	if err := o.opts.Store.SaveJob(context.WithoutCancel(ctx), snap); err != nil {
		o.logger.Warn("job snapshot not saved", slog.String("job_id", snap.ID), slog.Any("error", err))
	}
}

func (o *Orchestrator) emit(ctx context.Context, t notify.EventType, snap models.Job) {
	if o.opts.Publisher == nil {
		return
	}
	if err := o.opts.Publisher.Publish(context.WithoutCancel(ctx), notify.NewEvent(t, snap, o.now())); err != nil {
		o.logger.Warn("job event not published",
			slog.String("job_id", snap.ID),
			slog.String("event", string(t)),
			slog.Any("error", err),
		)
	}
}

func dedupe(platforms []models.Platform) []models.Platform {
	seen := make(map[models.Platform]bool, len(platforms))
	out := make([]models.Platform, 0, len(platforms))
	for _, p := range platforms {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
