package campaign

import (
	"context"
	"fmt"

	"azubi-engine/internal/backoff"
	"azubi-engine/internal/domain"

	"go.uber.org/zap"
)

// launch starts the campaign loop. Caller holds d.mu.
func (d *Dispatcher) launch(c domain.Campaign) {
	r := &run{stop: make(chan struct{}), done: make(chan struct{})}
	d.active[c.ID] = r

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		r.err = d.loop(d.base, c, r)
		if r.err != nil {
			d.log.Error("campaign loop stopped", zap.String("campaign", c.ID), zap.Error(r.err))
		}
		d.mu.Lock()
		delete(d.active, c.ID)
		d.mu.Unlock()
		close(r.done)
	}()
}

// loop sends the campaign's pending records batch by batch. Pause requests are
// honoured only between batches. Store failures fail the campaign; send
// failures only ever affect their own record.
func (d *Dispatcher) loop(ctx context.Context, c domain.Campaign, r *run) error {
	log := d.log.With(zap.String("campaign", c.ID))

	fail := func(err error) error {
		recs, _ := d.store.ListDeliveryRecords(ctx, c.ID)
		_ = d.store.UpdateCampaignStatus(ctx, c.ID, domain.CampaignFailed, domain.ProgressOf(recs))
		d.publish(domain.Summarize(domain.Campaign{ID: c.ID, Status: domain.CampaignFailed}, recs))
		return err
	}

	tmpl, err := parseTemplates(c.Subject, c.BodyTemplate)
	if err != nil {
		return fail(err)
	}
	recs, err := d.store.ListDeliveryRecords(ctx, c.ID)
	if err != nil {
		return fail(fmt.Errorf("list delivery records: %w", err))
	}

	var pending []int // positions in recs
	sentJobs := map[int64]bool{}
	ids := map[int64]bool{}
	var jobIDs []int64
	for i, rec := range recs {
		if rec.Outcome == domain.OutcomeSent {
			sentJobs[rec.JobID] = true
		}
		if rec.Outcome.Terminal() {
			continue
		}
		pending = append(pending, i)
		if !ids[rec.JobID] {
			ids[rec.JobID] = true
			jobIDs = append(jobIDs, rec.JobID)
		}
	}
	jobList, err := d.store.JobsByIDs(ctx, jobIDs)
	if err != nil {
		return fail(fmt.Errorf("load jobs: %w", err))
	}
	jobs := make(map[int64]domain.Job, len(jobList))
	for _, j := range jobList {
		jobs[j.ID] = j
	}

	log.Info("sending", zap.Int("pending", len(pending)), zap.Int("records", len(recs)))

	for start := 0; start < len(pending); start += d.opts.BatchSize {
		if start > 0 && d.opts.BatchDelay > 0 {
			if err := d.waitBatch(ctx, r); err != nil {
				return nil // shutdown: campaign stays running and can be resumed
			}
		}
		if r.stopped() {
			log.Info("paused", zap.Int("remaining", len(pending)-start))
			return d.setStatus(ctx, c.ID, domain.CampaignPaused)
		}
		if ctx.Err() != nil {
			return nil
		}

		end := min(start+d.opts.BatchSize, len(pending))
		for _, i := range pending[start:end] {
			rec := &recs[i]
			if err := d.deliver(ctx, rec, jobs[rec.JobID], tmpl); err != nil {
				return fail(err)
			}
			if ctx.Err() != nil {
				return nil
			}
			if err := d.updateJob(ctx, rec, sentJobs); err != nil {
				return fail(err)
			}
		}

		p, err := d.writeProgress(ctx, c.ID, domain.CampaignRunning)
		if err != nil {
			return fail(err)
		}
		log.Debug("batch done", zap.Int("sent", p.Sent), zap.Int("failed", p.Failed), zap.Int("pending", p.Pending))
	}

	if ctx.Err() != nil {
		return nil
	}
	p, err := d.writeProgress(ctx, c.ID, domain.CampaignCompleted)
	if err != nil {
		return fail(err)
	}
	log.Info("campaign completed", zap.Int("sent", p.Sent), zap.Int("failed", p.Failed))
	return nil
}

// waitBatch sleeps the batch delay. A pause request cuts it short.
func (d *Dispatcher) waitBatch(ctx context.Context, r *run) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.stop:
			cancel()
		case <-wctx.Done():
		}
	}()
	err := d.Sleep(wctx, d.opts.BatchDelay)
	if err != nil && ctx.Err() == nil && r.stopped() {
		return nil
	}
	return err
}

// deliver drives one record to a terminal outcome, persisting it after every
// attempt. The returned error is a store failure; send failures end up in
// the record.
func (d *Dispatcher) deliver(ctx context.Context, rec *domain.DeliveryRecord, j domain.Job, tmpl *messageTemplate) error {
	save := func() error {
		if err := d.store.SaveDeliveryRecord(ctx, *rec); err != nil {
			return fmt.Errorf("save delivery record: %w", err)
		}
		return nil
	}

	if j.ID == 0 {
		rec.Outcome = domain.OutcomeError
		rec.LastError = "job no longer exists"
		return save()
	}
	subject, body, err := tmpl.render(j, rec.EmailUsed)
	if err != nil {
		rec.Outcome = domain.OutcomeError
		rec.LastError = err.Error()
		return save()
	}

	for rec.Outcome == domain.OutcomePending {
		if rec.AttemptCount >= d.opts.MaxAttempts {
			rec.Outcome = domain.OutcomeError
			return save()
		}
		if ctx.Err() != nil {
			return nil
		}

		rec.AttemptCount++
		rec.LastAttemptAt = d.now().UTC()
		sctx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
		err := d.transport.Send(sctx, rec.EmailUsed, subject, body)
		cancel()

		switch {
		case err == nil:
			rec.Outcome = domain.OutcomeSent
			rec.LastError = ""
		case IsPermanent(err):
			rec.Outcome = domain.OutcomeBounced
			rec.LastError = err.Error()
		default:
			rec.LastError = err.Error()
			if rec.AttemptCount >= d.opts.MaxAttempts {
				rec.Outcome = domain.OutcomeError
			}
		}
		if err := save(); err != nil {
			return err
		}

		if rec.Outcome == domain.OutcomePending {
			delay := backoff.Exponential(rec.AttemptCount-1, d.opts.Backoff, d.opts.MaxBackoff)
			d.log.Debug("send retry",
				zap.String("campaign", rec.CampaignID),
				zap.String("to", rec.EmailUsed),
				zap.Int("attempt", rec.AttemptCount),
				zap.Duration("delay", delay),
				zap.String("error", rec.LastError),
			)
			if err := d.Sleep(ctx, delay); err != nil {
				return nil
			}
		}
	}
	return nil
}

// updateJob moves the job to sent or failed. A job with any sent record stays
// sent.
func (d *Dispatcher) updateJob(ctx context.Context, rec *domain.DeliveryRecord, sentJobs map[int64]bool) error {
	var status domain.JobStatus
	switch rec.Outcome {
	case domain.OutcomeSent:
		sentJobs[rec.JobID] = true
		status = domain.JobSent
	case domain.OutcomeBounced, domain.OutcomeError:
		if sentJobs[rec.JobID] {
			return nil
		}
		status = domain.JobFailed
	default:
		return nil
	}
	if err := d.store.UpdateJobStatus(ctx, rec.JobID, status); err != nil && !IsNotFound(err) {
		return fmt.Errorf("update job %d: %w", rec.JobID, err)
	}
	return nil
}
