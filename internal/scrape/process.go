package scrape

import (
	"context"
	"time"

	"azubi-engine/internal/domain"

	"go.uber.org/zap"
)

// storeTimeout bounds writes, which outlive the run budget so that work done
// before the deadline is kept.
const storeTimeout = 30 * time.Second

func storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
}

type pendingJob struct {
	job   domain.Job
	entry *domain.IndexEntry
}

// processListing runs one extracted listing through detail enrichment, the
// deduplicator and the keep filters. It returns the job when it is new and
// must be persisted.
func (o *Orchestrator) processListing(ctx context.Context, st *runState, sr *siteRun, j domain.Job) (pendingJob, bool) {
	if o.opts.DetailFetch && !j.HasContact() && st.wantsDetail(j) {
		o.enrich(ctx, st, sr, &j)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if e, dup := st.index.IsDuplicate(j); dup {
		st.summary.DuplicatesSkipped++
		if added := st.index.Merge(e, j.Emails); added > 0 {
			st.summary.EmailsMerged += added
			o.persistMerge(ctx, st, sr, e)
		}
		return pendingJob{}, false
	}

	if keep, why := ShouldKeepJob(o.opts.Filters, j); !keep {
		st.summary.Filtered++
		sr.log.Debug("skipped",
			zap.String("reason", why),
			zap.String("title", j.Title),
			zap.String("location", j.Location),
			zap.String("url", j.URL),
		)
		return pendingJob{}, false
	}

	j.Status = domain.JobNew
	j.ScrapedAt = o.now().UTC()
	return pendingJob{job: j, entry: st.index.Add(j)}, true
}

// wantsDetail skips the detail fetch for known postings that already have a
// contact address.
func (st *runState) wantsDetail(j domain.Job) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, dup := st.index.IsDuplicate(j)
	return !dup || len(e.Emails) == 0
}

// enrich fetches the job's detail page and fills in emails and any fields the
// listing card lacked. Failures are logged and counted, never fatal.
func (o *Orchestrator) enrich(ctx context.Context, st *runState, sr *siteRun, j *domain.Job) {
	p, err := o.fetcher.Fetch(ctx, j.URL, sr.render)
	if err != nil {
		if ctx.Err() == nil {
			sr.log.Debug("detail fetch failed", zap.String("url", j.URL), zap.Error(err))
			st.countDetailError()
		}
		return
	}
	d, err := sr.x.DetailFields(p.Body, sr.ad.DetailSelectors())
	if err != nil {
		sr.log.Debug("detail extraction failed", zap.String("url", j.URL), zap.Error(err))
		st.countDetailError()
		return
	}

	j.Emails, _ = domain.MergeEmails(j.Emails, d.Emails)
	if j.Institution == "" {
		j.Institution = d.Institution
	}
	if j.Location == "" {
		j.Location = d.Location
	}
	if j.StartDate == "" {
		j.StartDate = d.StartDate
	}
}

func (st *runState) countDetailError() {
	st.mu.Lock()
	st.summary.DetailErrors++
	st.mu.Unlock()
}

// persist saves a page's new jobs and records their IDs in the index. Caller
// must not hold st.mu.
func (o *Orchestrator) persist(ctx context.Context, st *runState, sr *siteRun, pending []pendingJob) {
	if len(pending) == 0 {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	jobs := make([]domain.Job, len(pending))
	for i, pj := range pending {
		jobs[i] = pj.job
		// emails merged from later listings on the same page
		jobs[i].Emails = pj.entry.Emails
	}

	sctx, cancel := storeContext(ctx)
	defer cancel()
	saved, err := o.store.SaveJobs(sctx, jobs)
	if err != nil {
		st.summary.StoreErrors += len(jobs)
		sr.log.Error("save jobs failed", zap.Int("jobs", len(jobs)), zap.Error(err))
		return
	}

	for i, j := range saved {
		pending[i].entry.ID = j.ID
		st.byID[j.ID] = len(st.jobs)
		st.jobs = append(st.jobs, j)
		if o.OnJob != nil {
			o.OnJob(j)
		}
	}
	sr.log.Info("jobs saved", zap.Int("count", len(saved)))
}

// persistMerge writes a merged email set back. Entries without an ID are
// still pending and pick up the merge when their page is saved. Caller holds
// st.mu.
func (o *Orchestrator) persistMerge(ctx context.Context, st *runState, sr *siteRun, e *domain.IndexEntry) {
	if e.ID == 0 {
		return
	}
	sctx, cancel := storeContext(ctx)
	defer cancel()
	if err := o.store.UpdateJobEmails(sctx, e.ID, e.Emails); err != nil {
		st.summary.StoreErrors++
		sr.log.Error("merge emails failed", zap.Int64("job_id", e.ID), zap.Error(err))
		return
	}
	if i, ok := st.byID[e.ID]; ok {
		st.jobs[i].Emails = e.Emails
	}
}
