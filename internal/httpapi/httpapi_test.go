package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"azubi-engine/internal/campaign"
	"azubi-engine/internal/config"
	"azubi-engine/internal/domain"
	"azubi-engine/internal/events"
	"azubi-engine/internal/scrape"
	"azubi-engine/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScraper struct {
	mu      sync.Mutex
	running bool
	got     []scrape.Request
	hold    chan struct{} // when set, runs block until it is closed
}

func (f *fakeScraper) Start(req scrape.Request) (func(context.Context) (scrape.RunResult, error), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return nil, scrape.ErrAlreadyRunning
	}
	f.running = true
	return func(context.Context) (scrape.RunResult, error) {
		if f.hold != nil {
			<-f.hold
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.got = append(f.got, req)
		f.running = false
		return scrape.RunResult{Status: scrape.StatusCompleted, Summary: scrape.Summary{JobsFound: 2}}, nil
	}, nil
}

func (f *fakeScraper) Status() scrape.ScrapeStatus {
	return scrape.ScrapeStatus{State: scrape.StatusIdle}
}

type fakeCampaigns struct {
	created []campaign.CreateRequest
	status  map[string]domain.CampaignStatus
}

func (f *fakeCampaigns) Create(_ context.Context, req campaign.CreateRequest) (domain.Campaign, error) {
	if req.Subject == "" {
		return domain.Campaign{}, fmt.Errorf("campaign: subject and body are required")
	}
	f.created = append(f.created, req)
	f.status["c-new"] = domain.CampaignDraft
	return domain.Campaign{ID: "c-new", Status: domain.CampaignDraft, Subject: req.Subject}, nil
}

func (f *fakeCampaigns) move(id string, from, to domain.CampaignStatus) error {
	st, ok := f.status[id]
	if !ok {
		return fmt.Errorf("%w: %s", campaign.ErrCampaignNotFound, id)
	}
	if st != from {
		return fmt.Errorf("%w: %s -> %s", campaign.ErrInvalidTransition, st, to)
	}
	f.status[id] = to
	return nil
}

func (f *fakeCampaigns) Start(_ context.Context, id string) error {
	return f.move(id, domain.CampaignDraft, domain.CampaignRunning)
}

func (f *fakeCampaigns) Pause(_ context.Context, id string) error {
	return f.move(id, domain.CampaignRunning, domain.CampaignPaused)
}

func (f *fakeCampaigns) Resume(_ context.Context, id string) error {
	return f.move(id, domain.CampaignPaused, domain.CampaignRunning)
}

func (f *fakeCampaigns) Status(_ context.Context, id string) (domain.CampaignSummary, error) {
	st, ok := f.status[id]
	if !ok {
		return domain.CampaignSummary{}, fmt.Errorf("%w: %s", campaign.ErrCampaignNotFound, id)
	}
	return domain.CampaignSummary{ID: id, Status: st}, nil
}

type fakeStore struct {
	opts store.ListJobsOpts
}

func (f *fakeStore) ListJobs(_ context.Context, opts store.ListJobsOpts) ([]domain.Job, error) {
	f.opts = opts
	return []domain.Job{{ID: 1, Title: "Mechatroniker", Emails: []string{"info@abc.de"}}}, nil
}

func (f *fakeStore) ListCampaigns(context.Context) ([]domain.Campaign, error) { return nil, nil }

func (f *fakeStore) Checkpoint(context.Context) error { return nil }

type fixture struct {
	srv       *httptest.Server
	scraper   *fakeScraper
	campaigns *fakeCampaigns
	store     *fakeStore
	hub       *events.Hub
	cfg       *atomic.Value
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Defaults()
	cfg.Scrape.SearchTerms = []string{"Mechatroniker"}
	var cfgVal atomic.Value
	cfgVal.Store(cfg)

	f := &fixture{
		scraper:   &fakeScraper{},
		campaigns: &fakeCampaigns{status: map[string]domain.CampaignStatus{}},
		store:     &fakeStore{},
		hub:       events.NewHub(),
		cfg:       &cfgVal,
	}
	f.srv = httptest.NewServer(Handler(Deps{
		Store:     f.store,
		Scraper:   f.scraper,
		Campaigns: f.campaigns,
		Hub:       f.hub,
		CfgVal:    &cfgVal,
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestScrapeRunWait(t *testing.T) {
	f := newFixture(t)

	resp, out := f.do(t, http.MethodPost, "/scrape/run?wait=1", `{"sites":["azubi"],"maxPages":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", out["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	require.Len(t, f.scraper.got, 1)
	got := f.scraper.got[0]
	assert.Equal(t, []string{"azubi"}, got.Sites)
	assert.Equal(t, []string{"Mechatroniker"}, got.SearchTerms)
	assert.Equal(t, 2, got.MaxPages)
}

func TestScrapeRunRejects(t *testing.T) {
	f := newFixture(t)

	resp, out := f.do(t, http.MethodPost, "/scrape/run", `{"sites":["indeed"]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", out["error"].(map[string]any)["code"])

	resp, _ = f.do(t, http.MethodPost, "/scrape/run", `{"bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.scraper.mu.Lock()
	f.scraper.running = true
	f.scraper.mu.Unlock()
	resp, out = f.do(t, http.MethodPost, "/scrape/run", `{}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_running", out["error"].(map[string]any)["code"])

	resp, _ = f.do(t, http.MethodGet, "/scrape/run", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestScrapeRunSecondRequestConflicts(t *testing.T) {
	f := newFixture(t)
	hold := make(chan struct{})
	f.scraper.hold = hold
	sub := f.hub.Subscribe()
	defer f.hub.Unsubscribe(sub)

	resp, _ := f.do(t, http.MethodPost, "/scrape/run", `{"sites":["azubi"]}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// the first run is still held, so its slot is taken before it scrapes
	resp, out := f.do(t, http.MethodPost, "/scrape/run", `{"sites":["azubi"]}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_running", out["error"].(map[string]any)["code"])

	var e events.Event
	require.NoError(t, json.Unmarshal([]byte(<-sub), &e))
	assert.Equal(t, events.TypeScrapeStarted, e.Type)
	assert.Equal(t, events.SourceAPI, e.Source)
	assert.Empty(t, sub, "the rejected request publishes nothing")

	close(hold)
	require.NoError(t, json.Unmarshal([]byte(<-sub), &e))
	assert.Equal(t, events.TypeScrapeFinished, e.Type)

	f.scraper.mu.Lock()
	defer f.scraper.mu.Unlock()
	assert.Len(t, f.scraper.got, 1)
	assert.False(t, f.scraper.running)
}

func TestCampaignLifecycle(t *testing.T) {
	f := newFixture(t)

	resp, out := f.do(t, http.MethodPost, "/campaigns", `{"subject":"Bewerbung","bodyTemplate":"Hallo {{.Institution}}","recipients":"all"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "c-new", out["id"])
	require.Len(t, f.campaigns.created, 1)
	assert.Equal(t, domain.RecipientsAll, f.campaigns.created[0].Recipients)

	resp, out = f.do(t, http.MethodPost, "/campaigns/c-new/start", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "running", out["status"])

	resp, _ = f.do(t, http.MethodPost, "/campaigns/c-new/start", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/campaigns/c-new/pause", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, out = f.do(t, http.MethodGet, "/campaigns/c-new", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paused", out["status"])

	resp, _ = f.do(t, http.MethodPost, "/campaigns/c-new/stop", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/campaigns/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/campaigns", `{"bodyTemplate":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJobsList(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/jobs?status=new&site=azubi&has_email=true&limit=20", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var jobs []domain.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, store.ListJobsOpts{Status: "new", Site: "azubi", HasEmail: true, Limit: 20}, f.store.opts)

	bad, _ := f.do(t, http.MethodGet, "/jobs?site=stepstone", "")
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestSetSecret(t *testing.T) {
	f := newFixture(t)
	var stored []string
	h := SecretsHandler{CfgVal: f.cfg, Set: func(acct, pw string) error {
		stored = append(stored, acct+"="+pw)
		return nil
	}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/secrets/{kind}", h.SetPassword)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/secrets/smtp", strings.NewReader(`{"password":"geheim"}`)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"azubi:smtp:@=geheim"}, stored)
	assert.Equal(t, "geheim", f.cfg.Load().(config.Config).SMTP.Password)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/secrets/pop3", strings.NewReader(`{"password":"x"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckpointLoopbackOnly(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodPost, "/db/checkpoint", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	rec := httptest.NewRecorder()
	DBHandler{Store: &fakeStore{}}.Checkpoint(rec, httptest.NewRequest(http.MethodPost, "/db/checkpoint", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIsLoopback(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:5000":        true,
		"[::1]:5000":            true,
		"[::ffff:127.0.0.1]:80": true,
		"localhost":             true,
		"192.0.2.1:1234":        false,
		"garbage":               false,
	} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = addr
		assert.Equal(t, want, IsLoopback(r), addr)
	}
}
