package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"azubi-engine/internal/domain"
	"azubi-engine/internal/scrape/ausbildung"
	"azubi-engine/internal/scrape/azubi"
	"azubi-engine/internal/scrape/fetch"
	"azubi-engine/internal/scrape/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu       sync.Mutex
	existing []domain.IndexEntry
	jobs     []domain.Job
	merges   map[int64][]string
	nextID   int64
}

func newMemStore(existing ...domain.IndexEntry) *memStore {
	return &memStore{existing: existing, merges: map[int64][]string{}, nextID: 100}
}

func (m *memStore) SaveJobs(_ context.Context, jobs []domain.Job) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Job, len(jobs))
	for i, j := range jobs {
		m.nextID++
		j.ID = m.nextID
		m.jobs = append(m.jobs, j)
		out[i] = j
	}
	return out, nil
}

func (m *memStore) LoadExistingIndex(context.Context) ([]domain.IndexEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.IndexEntry
	for _, e := range m.existing {
		if merged, ok := m.merges[e.ID]; ok {
			e.Emails = merged
		}
		out = append(out, e)
	}
	for _, j := range m.jobs {
		out = append(out, j.IndexEntry())
	}
	return out, nil
}

func (m *memStore) UpdateJobEmails(_ context.Context, id int64, emails []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merges[id] = append([]string(nil), emails...)
	return nil
}

func (m *memStore) byTitle(title string) (domain.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Title == title {
			return j, true
		}
	}
	return domain.Job{}, false
}

const searchPage1 = `<html><body>
<article class="job-result">
  <h2 class="job-result__title">Mechatroniker (m/w/d)</h2>
  <a class="job-result__link" href="/ausbildungsplatz/1">Details</a>
  <span class="job-result__company">ABC GmbH</span>
  <span class="job-result__location">Berlin</span>
  <a href="mailto:azubi@abc.de">Kontakt</a>
</article>
<article class="job-result">
  <h2 class="job-result__title">Koch</h2>
  <a class="job-result__link" href="/ausbildungsplatz/2">Details</a>
  <span class="job-result__company">Hotel Adler</span>
  <span class="job-result__location">Hamburg</span>
</article>
<article class="job-result">
  <a class="job-result__link" href="/ausbildungsplatz/9">kein Titel</a>
</article>
<a rel="next" href="/suche?text=x&amp;page=2">weiter</a>
</body></html>`

const searchPage2 = `<html><body>
<article class="job-result">
  <h2 class="job-result__title">Elektroniker</h2>
  <a class="job-result__link" href="/ausbildungsplatz/3">Details</a>
  <span class="job-result__company">Stadtwerke</span>
  <span class="job-result__location">Berlin</span>
  <a href="mailto:karriere@stadtwerke.de">Kontakt</a>
</article>
</body></html>`

const detailKoch = `<html><body><h1>Koch</h1>
<div id="kontakt">Bewerbungen an <a href="mailto:Personal@Hotel-Adler.de">Frau Roth</a></div>
</body></html>`

func azubiSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/suche", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, searchPage2)
			return
		}
		fmt.Fprint(w, searchPage1)
	})
	mux.HandleFunc("/ausbildungsplatz/2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailKoch)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func failingSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testFetcher() *fetch.Fetcher {
	return fetch.New(fetch.Options{
		MaxRetries: 0,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Timeout:    2 * time.Second,
	}, nil)
}

func testOptions() Options {
	return Options{MaxPages: 5, MaxRuntime: 10 * time.Second, DetailFetch: true}
}

func request(sites ...string) Request {
	return Request{Sites: sites, SearchTerms: []string{"Mechatroniker"}}
}

func TestRunCollectsPagesAndAbandonsFailingSite(t *testing.T) {
	good := azubiSite(t)
	bad := failingSite(t)
	store := newMemStore()

	var published []string
	o := New(store, testFetcher(), types.NewRegistry(azubi.New(good.URL), ausbildung.New(bad.URL)), testOptions(), nil)
	o.OnJob = func(j domain.Job) { published = append(published, j.Title) }

	res, err := o.Run(context.Background(), request("azubi", "ausbildung"))
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 3, res.Summary.JobsFound)
	assert.Equal(t, 1, res.Summary.ExtractionErrors)
	assert.Equal(t, 1, res.Summary.SitesAbandoned)
	assert.Equal(t, []string{"ausbildung"}, res.Abandoned)
	assert.Len(t, res.Jobs, 3)
	assert.ElementsMatch(t, []string{"Mechatroniker (m/w/d)", "Koch", "Elektroniker"}, published)

	koch, ok := store.byTitle("Koch")
	require.True(t, ok)
	assert.Equal(t, []string{"personal@hotel-adler.de"}, koch.Emails, "detail page fills missing contact")
	assert.Equal(t, domain.SiteAzubi, koch.SourceSite)
	assert.Equal(t, domain.JobNew, koch.Status)
	assert.NotZero(t, koch.ID)
	assert.Equal(t, good.URL+"/ausbildungsplatz/2", koch.URL)

	st := o.Status()
	assert.Equal(t, StatusCompleted, st.State)
	assert.False(t, st.Running)
	assert.Equal(t, 3, st.LastAdded)
}

func TestRunEnrichesFromDetailWithoutHeading(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/suche", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><article class="job-result">
  <h2 class="job-result__title">Koch</h2>
  <a class="job-result__link" href="/ausbildungsplatz/2">Details</a>
</article></body></html>`)
	})
	mux.HandleFunc("/ausbildungsplatz/2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div class="job-detail__company">Hotel Adler</div>
<div id="kontakt"><a href="mailto:personal@hotel-adler.de">Frau Roth</a></div></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := newMemStore()
	o := New(store, testFetcher(), types.NewRegistry(azubi.New(srv.URL)), testOptions(), nil)
	res, err := o.Run(context.Background(), request("azubi"))
	require.NoError(t, err)
	assert.Zero(t, res.Summary.DetailErrors)

	koch, ok := store.byTitle("Koch")
	require.True(t, ok)
	assert.Equal(t, []string{"personal@hotel-adler.de"}, koch.Emails)
	assert.Equal(t, "Hotel Adler", koch.Institution)
}

func TestRunMergesEmailsIntoDuplicates(t *testing.T) {
	good := azubiSite(t)
	store := newMemStore(domain.IndexEntry{
		ID:          42,
		URL:         "https://www.ausbildung.de/stellen/mechatroniker-abc",
		Title:       "Mechatroniker (m/w/d)",
		Institution: "ABC GmbH",
		Location:    "Berlin",
		Emails:      []string{"alt@abc.de"},
	})

	o := New(store, testFetcher(), types.NewRegistry(azubi.New(good.URL)), testOptions(), nil)
	res, err := o.Run(context.Background(), request("azubi"))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Summary.JobsFound)
	assert.Equal(t, 1, res.Summary.DuplicatesSkipped)
	assert.Equal(t, 1, res.Summary.EmailsMerged)
	assert.Equal(t, []string{"alt@abc.de", "azubi@abc.de"}, store.merges[42])

	// a second run over the same pages adds nothing new
	again, err := o.Run(context.Background(), request("azubi"))
	require.NoError(t, err)
	assert.Zero(t, again.Summary.JobsFound)
	assert.Equal(t, 3, again.Summary.DuplicatesSkipped)
}

func TestRunRequireEmailFilter(t *testing.T) {
	good := azubiSite(t)
	opts := testOptions()
	opts.DetailFetch = false
	opts.Filters.RequireEmail = true

	o := New(newMemStore(), testFetcher(), types.NewRegistry(azubi.New(good.URL)), opts, nil)
	res, err := o.Run(context.Background(), request("azubi"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.JobsFound)
	assert.Equal(t, 1, res.Summary.Filtered)
}

func TestRunMaxPages(t *testing.T) {
	good := azubiSite(t)
	o := New(newMemStore(), testFetcher(), types.NewRegistry(azubi.New(good.URL)), testOptions(), nil)
	req := request("azubi")
	req.MaxPages = 1
	res, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.JobsFound)
}

func TestRunConfigErrorsAbort(t *testing.T) {
	o := New(newMemStore(), testFetcher(), types.NewRegistry(azubi.New("http://127.0.0.1:1")), testOptions(), nil)

	for name, req := range map[string]Request{
		"no sites":     {SearchTerms: []string{"Koch"}},
		"no terms":     {Sites: []string{"azubi"}},
		"unknown site": {Sites: []string{"indeed"}, SearchTerms: []string{"Koch"}},
		"no adapter":   {Sites: []string{"ausbildung"}, SearchTerms: []string{"Koch"}},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := o.Run(context.Background(), req)
			var ce *ConfigError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, StatusAborted, res.Status)
			assert.Equal(t, StatusAborted, o.Status().State)
		})
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	hit := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case hit <- struct{}{}:
		default:
		}
		<-release
		fmt.Fprint(w, "<html></html>")
	}))
	defer srv.Close()

	o := New(newMemStore(), testFetcher(), types.NewRegistry(azubi.New(srv.URL)), testOptions(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), request("azubi"))
		done <- err
	}()
	<-hit

	_, err := o.Run(context.Background(), request("azubi"))
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.True(t, o.Running())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, o.Running())
}

func TestStartClaimsSlotBeforeRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html></html>")
	}))
	defer srv.Close()

	o := New(newMemStore(), testFetcher(), types.NewRegistry(azubi.New(srv.URL)), testOptions(), nil)

	run, err := o.Start(request("azubi"))
	require.NoError(t, err)
	assert.True(t, o.Running())

	// the first run has not begun yet
	_, err = o.Start(request("azubi"))
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	_, err = o.Run(context.Background(), request("azubi"))
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	res, err := run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.False(t, o.Running())

	_, err = run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning, "a started run executes once")

	again, err := o.Start(request("azubi"))
	require.NoError(t, err)
	_, err = again(context.Background())
	require.NoError(t, err)
}

func TestRunBudgetExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	o := New(newMemStore(), testFetcher(), types.NewRegistry(azubi.New(srv.URL)), testOptions(), nil)
	req := request("azubi")
	req.MaxRuntime = 50 * time.Millisecond
	res, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.True(t, res.Summary.BudgetExhausted)
	assert.Zero(t, res.Summary.SitesAbandoned)
}

func TestRunLockAcrossProcesses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrape.lock")

	unlock, err := acquireRunLock(path)
	require.NoError(t, err)

	_, err = acquireRunLock(path)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	unlock()
	unlock2, err := acquireRunLock(path)
	require.NoError(t, err)
	unlock2()
}

func TestShouldKeepJob(t *testing.T) {
	f := Filters{LocationsAllow: []string{"berlin", "hamburg"}, LocationsBlock: []string{"berlin-spandau"}}

	keep, _ := ShouldKeepJob(f, domain.Job{Location: "Berlin"})
	assert.True(t, keep)

	keep, why := ShouldKeepJob(f, domain.Job{Location: "Berlin-Spandau"})
	assert.False(t, keep)
	assert.Equal(t, "location", why)

	keep, _ = ShouldKeepJob(f, domain.Job{Location: "München"})
	assert.False(t, keep)

	keep, why = ShouldKeepJob(Filters{RequireEmail: true}, domain.Job{Location: "Köln"})
	assert.False(t, keep)
	assert.Equal(t, "no_email", why)
}
