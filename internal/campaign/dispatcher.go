// Package campaign sends outreach e-mail to scraped jobs in rate-limited
// batches and tracks one delivery record per job and address.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"azubi-engine/internal/backoff"
	"azubi-engine/internal/config"
	"azubi-engine/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the persistence the dispatcher needs. GetCampaign reports a
// missing campaign with domain.ErrNotFound.
type Store interface {
	CreateCampaign(ctx context.Context, c domain.Campaign) error
	GetCampaign(ctx context.Context, id string) (domain.Campaign, error)
	UpdateCampaignStatus(ctx context.Context, id string, status domain.CampaignStatus, p domain.Progress) error
	SaveDeliveryRecord(ctx context.Context, r domain.DeliveryRecord) error
	ListDeliveryRecords(ctx context.Context, campaignID string) ([]domain.DeliveryRecord, error)
	JobsByIDs(ctx context.Context, ids []int64) ([]domain.Job, error)
	SelectCampaignJobs(ctx context.Context, ids []int64) ([]domain.Job, error)
	SetCampaignTargets(ctx context.Context, id string, jobIDs []int64) error
	UpdateJobStatus(ctx context.Context, id int64, status domain.JobStatus) error
}

// Transport delivers one message. It returns nil, a *TransientError or a
// *PermanentError.
type Transport interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Options struct {
	BatchSize   int
	BatchDelay  time.Duration
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	SendTimeout time.Duration
	Recipients  domain.RecipientPolicy
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		BatchSize:   cfg.Campaign.BatchSize,
		BatchDelay:  cfg.BatchDelay(),
		MaxAttempts: cfg.Campaign.MaxAttempts,
		Backoff:     cfg.SendBackoff(),
		MaxBackoff:  cfg.SendMaxBackoff(),
		SendTimeout: cfg.SendTimeout(),
		Recipients:  domain.RecipientPolicy(cfg.Campaign.Recipients),
	}
}

type CreateRequest struct {
	Subject      string                 `json:"subject"`
	BodyTemplate string                 `json:"bodyTemplate"`
	Recipients   domain.RecipientPolicy `json:"recipients,omitempty"`
	JobIDs       []int64                `json:"jobIds,omitempty"` // empty targets every eligible job
}

type Dispatcher struct {
	store     Store
	transport Transport
	opts      Options
	log       *zap.Logger
	now       func() time.Time

	// Sleep waits out batch delays and retry backoff. Tests replace it.
	Sleep backoff.SleepFunc
	// OnProgress is called after every batch and on every state change.
	OnProgress func(domain.CampaignSummary)

	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[string]*run
	wg     sync.WaitGroup
}

// run is the in-memory handle of a campaign whose loop is executing.
type run struct {
	stop     chan struct{} // closed by Pause
	stopOnce sync.Once
	done     chan struct{}
	err      error
}

func (r *run) requestStop() { r.stopOnce.Do(func() { close(r.stop) }) }

func (r *run) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

func New(store Store, transport Transport, opts Options, log *zap.Logger) *Dispatcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.Recipients == "" {
		opts.Recipients = domain.RecipientsFirst
	}
	if log == nil {
		log = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		store:     store,
		transport: transport,
		opts:      opts,
		log:       log.Named("campaign"),
		now:       time.Now,
		Sleep:     backoff.Sleep,
		base:      base,
		cancel:    cancel,
		active:    map[string]*run{},
	}
}

// Close stops every running campaign loop and waits for it. Campaigns stay
// in status running and can be resumed later.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) Create(ctx context.Context, req CreateRequest) (domain.Campaign, error) {
	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.BodyTemplate) == "" {
		return domain.Campaign{}, errors.New("campaign: subject and body are required")
	}
	if _, err := parseTemplates(req.Subject, req.BodyTemplate); err != nil {
		return domain.Campaign{}, err
	}
	policy := req.Recipients
	if policy == "" {
		policy = d.opts.Recipients
	}
	if policy != domain.RecipientsFirst && policy != domain.RecipientsAll {
		return domain.Campaign{}, fmt.Errorf("campaign: unknown recipient policy %q", policy)
	}

	c := domain.Campaign{
		ID:           uuid.NewString(),
		CreatedAt:    d.now().UTC(),
		Status:       domain.CampaignDraft,
		Subject:      req.Subject,
		BodyTemplate: req.BodyTemplate,
		Recipients:   policy,
		TargetJobIDs: req.JobIDs,
	}
	if err := d.store.CreateCampaign(ctx, c); err != nil {
		return domain.Campaign{}, err
	}
	d.log.Info("campaign created", zap.String("campaign", c.ID), zap.String("recipients", string(policy)))
	return c, nil
}

// Start selects the campaign's targets, creates their delivery records and
// begins sending in the background.
func (d *Dispatcher) Start(ctx context.Context, id string) error {
	c, err := d.get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignDraft {
		return transition(string(c.Status), string(domain.CampaignRunning))
	}

	jobs, err := d.store.SelectCampaignJobs(ctx, c.TargetJobIDs)
	if err != nil {
		return fmt.Errorf("select targets: %w", err)
	}
	if len(c.TargetJobIDs) > 0 {
		jobs = orderTargets(jobs, c.TargetJobIDs)
	} else {
		ids := make([]int64, len(jobs))
		for i, j := range jobs {
			ids[i] = j.ID
		}
		if err := d.store.SetCampaignTargets(ctx, c.ID, ids); err != nil {
			return fmt.Errorf("record targets: %w", err)
		}
		c.TargetJobIDs = ids
	}

	recs := BuildRecords(c, jobs)
	for _, r := range recs {
		if err := d.store.SaveDeliveryRecord(ctx, r); err != nil {
			return fmt.Errorf("create delivery record: %w", err)
		}
	}
	queued := map[int64]bool{}
	for _, r := range recs {
		if queued[r.JobID] {
			continue
		}
		queued[r.JobID] = true
		if err := d.store.UpdateJobStatus(ctx, r.JobID, domain.JobQueued); err != nil {
			return fmt.Errorf("queue job %d: %w", r.JobID, err)
		}
	}

	if err := d.activate(ctx, c, false); err != nil {
		return err
	}
	d.log.Info("campaign started",
		zap.String("campaign", c.ID),
		zap.Int("jobs", len(queued)),
		zap.Int("records", len(recs)),
	)
	return nil
}

// orderTargets returns the selected jobs in the order of ids. IDs that were
// not selected, and repeats, are dropped.
func orderTargets(jobs []domain.Job, ids []int64) []domain.Job {
	byID := make(map[int64]domain.Job, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}
	out := make([]domain.Job, 0, len(jobs))
	for _, id := range ids {
		if j, ok := byID[id]; ok {
			out = append(out, j)
			delete(byID, id)
		}
	}
	return out
}

// BuildRecords creates the pending delivery records for jobs under the
// campaign's recipient policy. Jobs without an address are skipped.
func BuildRecords(c domain.Campaign, jobs []domain.Job) []domain.DeliveryRecord {
	var out []domain.DeliveryRecord
	for _, j := range jobs {
		emails, _ := domain.MergeEmails(nil, j.Emails)
		if len(emails) == 0 {
			continue
		}
		if c.Recipients != domain.RecipientsAll {
			emails = emails[:1]
		}
		for _, e := range emails {
			out = append(out, domain.DeliveryRecord{
				CampaignID: c.ID,
				JobID:      j.ID,
				EmailUsed:  e,
				Outcome:    domain.OutcomePending,
			})
		}
	}
	return out
}

// Pause stops the campaign at the next batch boundary and waits until the
// in-flight batch has finished or ctx is done.
func (d *Dispatcher) Pause(ctx context.Context, id string) error {
	c, err := d.get(ctx, id)
	if err != nil {
		return err
	}
	switch c.Status {
	case domain.CampaignPaused:
		return nil
	case domain.CampaignRunning:
	default:
		return transition(string(c.Status), string(domain.CampaignPaused))
	}

	d.mu.Lock()
	r := d.active[id]
	d.mu.Unlock()

	if r == nil {
		// nothing in flight, e.g. after a restart
		return d.setStatus(ctx, id, domain.CampaignPaused)
	}
	r.requestStop()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resume continues a paused campaign from its pending records. Resuming a
// campaign whose loop is already executing is a no-op. A campaign left in
// status running without a loop, after a restart, is resumed as well.
func (d *Dispatcher) Resume(ctx context.Context, id string) error {
	c, err := d.get(ctx, id)
	if err != nil {
		return err
	}

	switch c.Status {
	case domain.CampaignPaused, domain.CampaignRunning:
	default:
		return transition(string(c.Status), string(domain.CampaignRunning))
	}
	if err := d.activate(ctx, c, true); err != nil {
		return err
	}
	d.log.Info("campaign resumed", zap.String("campaign", id))
	return nil
}

// activate marks the campaign running and starts its loop. Holding d.mu
// across both keeps Pause from observing a running campaign without a loop.
func (d *Dispatcher) activate(ctx context.Context, c domain.Campaign, resume bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.active[c.ID]; busy {
		if resume {
			return nil
		}
		return transition(string(c.Status), string(domain.CampaignRunning))
	}

	recs, err := d.store.ListDeliveryRecords(ctx, c.ID)
	if err != nil {
		return err
	}
	if err := d.store.UpdateCampaignStatus(ctx, c.ID, domain.CampaignRunning, domain.ProgressOf(recs)); err != nil {
		return err
	}
	c.Status = domain.CampaignRunning
	d.publish(domain.Summarize(c, recs))
	d.launch(c)
	return nil
}

func (d *Dispatcher) Status(ctx context.Context, id string) (domain.CampaignSummary, error) {
	c, err := d.get(ctx, id)
	if err != nil {
		return domain.CampaignSummary{}, err
	}
	recs, err := d.store.ListDeliveryRecords(ctx, id)
	if err != nil {
		return domain.CampaignSummary{}, err
	}
	return domain.Summarize(c, recs), nil
}

// Wait blocks until the campaign's loop exits and returns its error. It
// returns nil at once when no loop is executing.
func (d *Dispatcher) Wait(ctx context.Context, id string) error {
	d.mu.Lock()
	r := d.active[id]
	d.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) get(ctx context.Context, id string) (domain.Campaign, error) {
	c, err := d.store.GetCampaign(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return c, fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
		}
		return c, err
	}
	return c, nil
}

func (d *Dispatcher) setStatus(ctx context.Context, id string, status domain.CampaignStatus) error {
	_, err := d.writeProgress(ctx, id, status)
	return err
}

// writeProgress stores status with progress counted from the stored records,
// so bounces recorded by another writer mid-run are not overwritten.
func (d *Dispatcher) writeProgress(ctx context.Context, id string, status domain.CampaignStatus) (domain.Progress, error) {
	recs, err := d.store.ListDeliveryRecords(ctx, id)
	if err != nil {
		return domain.Progress{}, err
	}
	p := domain.ProgressOf(recs)
	if err := d.store.UpdateCampaignStatus(ctx, id, status, p); err != nil {
		return p, err
	}
	d.publish(domain.Summarize(domain.Campaign{ID: id, Status: status}, recs))
	return p, nil
}

func (d *Dispatcher) publish(s domain.CampaignSummary) {
	if d.OnProgress != nil {
		d.OnProgress(s)
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound) || errors.Is(err, domain.ErrNotFound)
}
