package bounce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"azubi-engine/internal/domain"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailbox struct {
	msgs   []Message
	seen   []imap.UID
	since  time.Time
	closed bool
}

func (f *fakeMailbox) Unseen(_ context.Context, since time.Time, max int) ([]Message, error) {
	f.since = since
	if len(f.msgs) > max {
		return f.msgs[:max], nil
	}
	return f.msgs, nil
}

func (f *fakeMailbox) MarkSeen(_ context.Context, uids []imap.UID) error {
	f.seen = append(f.seen, uids...)
	return nil
}

func (f *fakeMailbox) Close() error {
	f.closed = true
	return nil
}

type fakeStore struct {
	mu        sync.Mutex
	records   []domain.DeliveryRecord
	campaigns map[string]domain.Campaign
	failFor   string
}

func (s *fakeStore) MarkBounced(_ context.Context, address, reason string) ([]domain.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if address == s.failFor {
		return nil, errors.New("database is locked")
	}
	var hit []domain.DeliveryRecord
	for i := range s.records {
		r := &s.records[i]
		if r.EmailUsed == address && r.Outcome == domain.OutcomeSent {
			r.Outcome = domain.OutcomeBounced
			r.LastError = reason
			hit = append(hit, *r)
		}
	}
	return hit, nil
}

func (s *fakeStore) GetCampaign(_ context.Context, id string) (domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return c, domain.ErrNotFound
	}
	return c, nil
}

func (s *fakeStore) ListDeliveryRecords(_ context.Context, id string) ([]domain.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DeliveryRecord
	for _, r := range s.records {
		if r.CampaignID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateCampaignStatus(_ context.Context, id string, st domain.CampaignStatus, p domain.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.campaigns[id]
	c.Status = st
	c.Progress = p
	s.campaigns[id] = c
	return nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		campaigns: map[string]domain.Campaign{
			"c1": {ID: "c1", Status: domain.CampaignCompleted, Progress: domain.Progress{Sent: 2}},
		},
		records: []domain.DeliveryRecord{
			{CampaignID: "c1", JobID: 1, EmailUsed: "weg@firma.de", Outcome: domain.OutcomeSent},
			{CampaignID: "c1", JobID: 2, EmailUsed: "da@firma.de", Outcome: domain.OutcomeSent},
		},
	}
}

func TestScanOnceMarksBounces(t *testing.T) {
	st := newFakeStore()
	mb := &fakeMailbox{msgs: []Message{
		{UID: 7, Raw: crlf(dsnReport)},
		{UID: 8, Raw: crlf("From: a@b.de\nSubject: hallo\n\ntext\n")},
	}}
	s := New(st, func(context.Context) (Mailbox, error) { return mb, nil }, Options{MaxAge: 24 * time.Hour}, nil)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	var summaries []domain.CampaignSummary
	s.OnBounce = func(cs domain.CampaignSummary) { summaries = append(summaries, cs) }

	res, err := s.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Scanned: 2, Reports: 1, Bounced: 1, Campaign: 1}, res)
	assert.Equal(t, []imap.UID{7, 8}, mb.seen)
	assert.Equal(t, now.Add(-24*time.Hour), mb.since)
	assert.True(t, mb.closed)

	c := st.campaigns["c1"]
	assert.Equal(t, domain.CampaignCompleted, c.Status)
	assert.Equal(t, domain.Progress{Sent: 1, Failed: 1}, c.Progress)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].Bounced)

	// the same report again changes nothing
	mb.msgs = mb.msgs[:1]
	res, err = s.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Bounced)
	assert.Zero(t, res.Campaign)
}

func TestScanOnceKeepsUnprocessedUnseen(t *testing.T) {
	st := newFakeStore()
	st.failFor = "weg@firma.de"
	mb := &fakeMailbox{msgs: []Message{{UID: 9, Raw: crlf(dsnReport)}}}
	s := New(st, func(context.Context) (Mailbox, error) { return mb, nil }, Options{}, nil)

	_, err := s.ScanOnce(context.Background())
	require.Error(t, err)
	assert.Empty(t, mb.seen)
}

func TestScanOnceOpenError(t *testing.T) {
	s := New(newFakeStore(), func(context.Context) (Mailbox, error) { return nil, errors.New("imap login: bad credentials") }, Options{}, nil)
	_, err := s.ScanOnce(context.Background())
	assert.ErrorContains(t, err, "bad credentials")
}
