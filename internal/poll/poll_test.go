package poll

import (
	"context"
	"encoding/json"
	"testing"

	"azubi-engine/internal/config"
	"azubi-engine/internal/events"
	"azubi-engine/internal/scrape"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeScraper struct {
	got scrape.Request
	res scrape.RunResult
	err error
}

func (f *fakeScraper) Run(_ context.Context, req scrape.Request) (scrape.RunResult, error) {
	f.got = req
	return f.res, f.err
}

func TestScrapeOnce(t *testing.T) {
	cfg := config.Defaults()
	cfg.Scrape.SearchTerms = []string{"Mechatroniker"}
	hub := events.NewHub()
	ch := hub.Subscribe()

	s := &fakeScraper{res: scrape.RunResult{Status: scrape.StatusCompleted, Summary: scrape.Summary{JobsFound: 4}}}
	res, err := ScrapeOnce(context.Background(), s, cfg, hub, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Summary.JobsFound)
	assert.Equal(t, []string{"azubi", "ausbildung"}, s.got.Sites)
	assert.Equal(t, cfg.MaxRuntime(), s.got.MaxRuntime)

	var types []string
	for len(ch) > 0 {
		var e events.Event
		require.NoError(t, json.Unmarshal([]byte(<-ch), &e))
		types = append(types, e.Type)
		assert.Equal(t, events.SourceSchedule, e.Source)
	}
	assert.Equal(t, []string{events.TypeScrapeStarted, events.TypeScrapeFinished}, types)
}

func TestScrapeOnceSkips(t *testing.T) {
	cfg := config.Defaults()
	_, err := ScrapeOnce(context.Background(), &fakeScraper{}, cfg, nil, zap.NewNop())
	assert.ErrorIs(t, err, ErrNothingToDo)

	cfg.Scrape.SearchTerms = []string{"Koch"}
	_, err = ScrapeOnce(context.Background(), &fakeScraper{err: scrape.ErrAlreadyRunning}, cfg, nil, zap.NewNop())
	assert.NoError(t, err)
}
