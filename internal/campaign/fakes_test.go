package campaign

import (
	"context"
	"sort"
	"sync"

	"azubi-engine/internal/domain"
)

type memStore struct {
	mu        sync.Mutex
	jobs      map[int64]domain.Job
	campaigns map[string]domain.Campaign
	records   map[string][]domain.DeliveryRecord
	failSave  bool
}

func newMemStore(jobs ...domain.Job) *memStore {
	m := &memStore{
		jobs:      map[int64]domain.Job{},
		campaigns: map[string]domain.Campaign{},
		records:   map[string][]domain.DeliveryRecord{},
	}
	for _, j := range jobs {
		if j.Status == "" {
			j.Status = domain.JobNew
		}
		m.jobs[j.ID] = j
	}
	return m
}

func (m *memStore) CreateCampaign(_ context.Context, c domain.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[c.ID] = c
	return nil
}

func (m *memStore) GetCampaign(_ context.Context, id string) (domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return c, domain.ErrNotFound
	}
	return c, nil
}

func (m *memStore) UpdateCampaignStatus(_ context.Context, id string, s domain.CampaignStatus, p domain.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Status = s
	c.Progress = p
	m.campaigns[id] = c
	return nil
}

func (m *memStore) SaveDeliveryRecord(_ context.Context, r domain.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave && r.Outcome != domain.OutcomePending {
		return context.DeadlineExceeded
	}
	recs := m.records[r.CampaignID]
	for i := range recs {
		if recs[i].JobID == r.JobID && recs[i].EmailUsed == r.EmailUsed {
			recs[i] = r
			return nil
		}
	}
	m.records[r.CampaignID] = append(recs, r)
	return nil
}

func (m *memStore) ListDeliveryRecords(_ context.Context, id string) ([]domain.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DeliveryRecord(nil), m.records[id]...), nil
}

func (m *memStore) JobsByIDs(_ context.Context, ids []int64) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, id := range ids {
		if j, ok := m.jobs[id]; ok {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *memStore) SelectCampaignJobs(_ context.Context, ids []int64) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Job
	for _, j := range m.jobs {
		if j.Status != domain.JobNew || len(j.Emails) == 0 {
			continue
		}
		if len(ids) > 0 && !want[j.ID] {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (m *memStore) SetCampaignTargets(_ context.Context, id string, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.TargetJobIDs = append([]int64(nil), ids...)
	m.campaigns[id] = c
	return nil
}

// bounce flips sent records for addr the way a late bounce report does.
func (m *memStore) bounce(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, recs := range m.records {
		for i := range recs {
			if recs[i].EmailUsed == addr && recs[i].Outcome == domain.OutcomeSent {
				recs[i].Outcome = domain.OutcomeBounced
			}
		}
		m.records[id] = recs
	}
}

func (m *memStore) campaign(id string) domain.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.campaigns[id]
}

func (m *memStore) UpdateJobStatus(_ context.Context, id int64, s domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.Status = s
	m.jobs[id] = j
	return nil
}

func (m *memStore) job(id int64) domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

type sendCall struct {
	To, Subject, Body string
}

type fakeTransport struct {
	mu     sync.Mutex
	calls  []sendCall
	sent   map[string]int
	script map[string][]error // errors returned in order before succeeding
	always map[string]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: map[string]int{}, script: map[string][]error{}, always: map[string]error{}}
}

func (f *fakeTransport) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sendCall{To: to, Subject: subject, Body: body})
	if err, ok := f.always[to]; ok {
		return err
	}
	if q := f.script[to]; len(q) > 0 {
		f.script[to] = q[1:]
		return q[0]
	}
	f.sent[to]++
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.sent {
		n += c
	}
	return n
}
