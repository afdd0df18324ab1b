package scrape

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"azubi-engine/internal/config"
	"azubi-engine/internal/domain"
	"azubi-engine/internal/scrape/dedup"
	"azubi-engine/internal/scrape/types"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	MaxPages    int
	MaxRuntime  time.Duration
	DetailFetch bool
	Render      bool // allow the headless renderer for adapters that need it
	Filters     Filters
	LockPath    string // cross-process guard; "" disables
}

func OptionsFromConfig(cfg config.Config, lockPath string) Options {
	return Options{
		MaxPages:    cfg.Scrape.MaxPages,
		MaxRuntime:  cfg.MaxRuntime(),
		DetailFetch: cfg.Scrape.DetailFetch,
		Render:      cfg.Fetch.Render,
		Filters: Filters{
			LocationsAllow: cfg.Filters.LocationsAllow,
			LocationsBlock: cfg.Filters.LocationsBlock,
			RequireEmail:   cfg.Scrape.RequireEmail,
		},
		LockPath: lockPath,
	}
}

// Orchestrator runs one scrape at a time across the registered sites.
type Orchestrator struct {
	store    JobStore
	fetcher  PageFetcher
	registry types.Registry
	opts     Options
	log      *zap.Logger
	now      func() time.Time

	// OnJob is called for every persisted new job.
	OnJob func(domain.Job)

	running atomic.Bool
	mu      sync.Mutex
	status  ScrapeStatus
	last    *RunResult
}

func New(store JobStore, fetcher PageFetcher, registry types.Registry, opts Options, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		store:    store,
		fetcher:  fetcher,
		registry: registry,
		opts:     opts,
		log:      log.Named("scrape"),
		now:      time.Now,
		status:   ScrapeStatus{State: StatusIdle},
	}
}

// runState is everything one run mutates. Sites run concurrently, so every
// access goes through mu.
type runState struct {
	req     Request
	mu      sync.Mutex
	index   *dedup.Index
	jobs    []domain.Job
	byID    map[int64]int // job ID -> position in jobs
	summary Summary
	aband   []string
}

// Run scrapes req.Sites for req.SearchTerms. Zero MaxPages and MaxRuntime fall
// back to the orchestrator's options. The returned error is non-nil only for
// ErrAlreadyRunning and *ConfigError; site failures are reported in the
// summary.
func (o *Orchestrator) Run(ctx context.Context, req Request) (RunResult, error) {
	run, err := o.Start(req)
	if err != nil {
		return RunResult{}, err
	}
	return run(ctx)
}

// Start claims the run slot before returning, so a second caller gets
// ErrAlreadyRunning even when the first run has not begun yet. The returned
// function performs the run and releases the slot; it must be called exactly
// once.
func (o *Orchestrator) Start(req Request) (func(context.Context) (RunResult, error), error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	var once sync.Once
	return func(ctx context.Context) (RunResult, error) {
		res := RunResult{}
		err := ErrAlreadyRunning
		once.Do(func() {
			defer o.running.Store(false)
			res, err = o.run(ctx, req)
		})
		return res, err
	}, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request) (RunResult, error) {
	unlock, err := acquireRunLock(o.opts.LockPath)
	if err != nil {
		return RunResult{}, err
	}
	defer unlock()

	if req.MaxPages <= 0 {
		req.MaxPages = o.opts.MaxPages
	}
	if req.MaxRuntime <= 0 {
		req.MaxRuntime = o.opts.MaxRuntime
	}

	res := RunResult{Status: StatusRunning, StartedAt: o.now().UTC()}
	o.setRunning(res.StartedAt)

	adapters, err := o.resolve(req)
	if err == nil {
		err = ctx.Err()
	}
	var existing []domain.IndexEntry
	if err == nil {
		existing, err = o.store.LoadExistingIndex(ctx)
	}
	if err != nil {
		res.Status = StatusAborted
		res.Error = err.Error()
		res.FinishedAt = o.now().UTC()
		o.finish(res)
		o.log.Error("scrape aborted", zap.Error(err))
		return res, err
	}

	st := &runState{req: req, index: dedup.New(existing), byID: map[int64]int{}}

	runCtx := ctx
	if req.MaxRuntime > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.MaxRuntime)
		defer cancel()
	}

	o.log.Info("scrape started",
		zap.Strings("sites", req.Sites),
		zap.Strings("terms", req.SearchTerms),
		zap.Int("max_pages", req.MaxPages),
		zap.Duration("max_runtime", req.MaxRuntime),
		zap.Int("known_jobs", len(existing)),
	)

	var g errgroup.Group
	for _, ad := range adapters {
		ad := ad
		g.Go(func() error {
			o.runSite(runCtx, st, ad)
			return nil // best-effort: a failing site never cancels its siblings
		})
	}
	_ = g.Wait()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		st.summary.BudgetExhausted = true
	}

	res.Status = StatusCompleted
	res.Jobs = st.jobs
	res.Summary = st.summary
	res.Summary.JobsFound = len(st.jobs)
	res.Abandoned = st.aband
	res.FinishedAt = o.now().UTC()
	o.finish(res)

	o.log.Info("scrape completed",
		zap.Int("jobs_found", res.Summary.JobsFound),
		zap.Int("duplicates_skipped", res.Summary.DuplicatesSkipped),
		zap.Int("extraction_errors", res.Summary.ExtractionErrors),
		zap.Int("sites_abandoned", res.Summary.SitesAbandoned),
		zap.Int("emails_merged", res.Summary.EmailsMerged),
		zap.Bool("budget_exhausted", res.Summary.BudgetExhausted),
		zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res, nil
}

func (o *Orchestrator) resolve(req Request) ([]types.Adapter, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	seen := map[domain.Site]bool{}
	var out []types.Adapter
	for _, s := range req.Sites {
		site, _ := domain.ParseSite(s)
		if seen[site] {
			continue
		}
		seen[site] = true
		ad, err := o.registry.Get(site)
		if err != nil {
			return nil, &ConfigError{Reason: err.Error()}
		}
		out = append(out, ad)
	}
	return out, nil
}

func (o *Orchestrator) Running() bool { return o.running.Load() }

func (o *Orchestrator) Status() ScrapeStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// LastResult returns the most recent finished run, if any.
func (o *Orchestrator) LastResult() (RunResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return RunResult{}, false
	}
	return *o.last, true
}

func (o *Orchestrator) setRunning(at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.State = StatusRunning
	o.status.Running = true
	o.status.LastRunAt = at.Format(time.RFC3339)
}

func (o *Orchestrator) finish(res RunResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.State = res.Status
	o.status.Running = false
	o.status.LastAdded = res.Summary.JobsFound
	sum := res.Summary
	o.status.LastSummary = &sum
	if res.Status == StatusCompleted {
		o.status.LastError = ""
		o.status.LastOkAt = res.FinishedAt.Format(time.RFC3339)
	} else {
		o.status.LastError = res.Error
	}
	o.last = &res
}
