package bounce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"azubi-engine/internal/config"
	"azubi-engine/internal/domain"

	"github.com/emersion/go-imap/v2"
	"go.uber.org/zap"
)

// Store is what a bounce needs to touch: the delivery records for the address
// and the progress of the campaigns they belong to.
type Store interface {
	MarkBounced(ctx context.Context, address, reason string) ([]domain.DeliveryRecord, error)
	GetCampaign(ctx context.Context, id string) (domain.Campaign, error)
	ListDeliveryRecords(ctx context.Context, campaignID string) ([]domain.DeliveryRecord, error)
	UpdateCampaignStatus(ctx context.Context, id string, status domain.CampaignStatus, p domain.Progress) error
}

type Options struct {
	MaxMessages int
	MaxAge      time.Duration // older unseen messages are not considered
}

type Result struct {
	Scanned  int `json:"scanned"`
	Reports  int `json:"reports"`
	Bounced  int `json:"bounced"` // delivery records flipped to bounced
	Campaign int `json:"campaigns"`
}

type Scanner struct {
	store Store
	open  func(ctx context.Context) (Mailbox, error)
	opts  Options
	log   *zap.Logger
	now   func() time.Time

	// OnBounce is called for every campaign whose progress changed.
	OnBounce func(domain.CampaignSummary)
}

func New(store Store, open func(ctx context.Context) (Mailbox, error), opts Options, log *zap.Logger) *Scanner {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = 200
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 30 * 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{store: store, open: open, opts: opts, log: log.Named("bounce"), now: time.Now}
}

// FromConfig builds a scanner that dials the configured IMAP mailbox.
func FromConfig(store Store, cfg config.Config, log *zap.Logger) *Scanner {
	ic := IMAPConfig{
		Host:     cfg.Bounce.IMAPHost,
		Port:     cfg.Bounce.IMAPPort,
		Username: cfg.Bounce.Username,
		Password: cfg.Bounce.Password,
		Mailbox:  cfg.Bounce.Mailbox,
	}
	return New(store, func(ctx context.Context) (Mailbox, error) { return DialIMAP(ctx, ic) }, Options{}, log)
}

// ScanOnce processes unseen messages. Every message it could read is marked
// seen, bounce or not; messages that failed to parse stay unseen for the next
// scan.
func (s *Scanner) ScanOnce(ctx context.Context) (Result, error) {
	var res Result
	mb, err := s.open(ctx)
	if err != nil {
		return res, err
	}
	defer func() {
		if err := mb.Close(); err != nil {
			s.log.Debug("mailbox close", zap.Error(err))
		}
	}()

	msgs, err := mb.Unseen(ctx, s.now().Add(-s.opts.MaxAge), s.opts.MaxMessages)
	if err != nil {
		return res, err
	}
	res.Scanned = len(msgs)

	touched := map[string]bool{}
	var seen []imap.UID
	var errs []error
	for _, m := range msgs {
		reports, err := ParseDSN(m.Raw)
		if err != nil {
			s.log.Warn("unreadable message", zap.Uint32("uid", uint32(m.UID)), zap.String("subject", m.Subject), zap.Error(err))
			continue
		}
		ok := true
		for _, r := range reports {
			if !r.Permanent() {
				continue
			}
			res.Reports++
			recs, err := s.store.MarkBounced(ctx, r.Recipient, r.Reason())
			if err != nil {
				errs = append(errs, fmt.Errorf("mark %s bounced: %w", r.Recipient, err))
				ok = false
				continue
			}
			res.Bounced += len(recs)
			for _, rec := range recs {
				touched[rec.CampaignID] = true
			}
			if len(recs) > 0 {
				s.log.Info("bounce recorded", zap.String("address", r.Recipient), zap.String("status", r.Status), zap.Int("records", len(recs)))
			}
		}
		if ok {
			seen = append(seen, m.UID)
		}
	}

	for id := range touched {
		if err := s.refresh(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		res.Campaign++
	}

	if err := mb.MarkSeen(ctx, seen); err != nil {
		errs = append(errs, err)
	}
	return res, errors.Join(errs...)
}

// refresh recomputes a campaign's stored progress after its records changed.
func (s *Scanner) refresh(ctx context.Context, id string) error {
	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return fmt.Errorf("campaign %s: %w", id, err)
	}
	recs, err := s.store.ListDeliveryRecords(ctx, id)
	if err != nil {
		return fmt.Errorf("campaign %s records: %w", id, err)
	}
	if err := s.store.UpdateCampaignStatus(ctx, id, c.Status, domain.ProgressOf(recs)); err != nil {
		return fmt.Errorf("campaign %s progress: %w", id, err)
	}
	if s.OnBounce != nil {
		s.OnBounce(domain.Summarize(c, recs))
	}
	return nil
}
