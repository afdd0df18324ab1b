package poll

import (
	"context"
	"errors"

	"azubi-engine/internal/bounce"
	"azubi-engine/internal/config"
	"azubi-engine/internal/events"
	"azubi-engine/internal/scrape"

	"go.uber.org/zap"
)

// ErrNothingToDo is returned when the config leaves a scheduled run empty.
var ErrNothingToDo = errors.New("poll: nothing configured")

type Scraper interface {
	Run(ctx context.Context, req scrape.Request) (scrape.RunResult, error)
}

type BounceScanner interface {
	ScanOnce(ctx context.Context) (bounce.Result, error)
}

// RequestFromConfig is the request a scheduled scrape uses.
func RequestFromConfig(cfg config.Config) scrape.Request {
	return scrape.Request{
		Sites:       cfg.Scrape.Sites,
		SearchTerms: cfg.Scrape.SearchTerms,
		MaxPages:    cfg.Scrape.MaxPages,
		MaxRuntime:  cfg.MaxRuntime(),
	}
}

// ScrapeOnce runs one scheduled scrape and announces it on hub. A run already
// in progress, manual or scheduled, is not an error.
func ScrapeOnce(ctx context.Context, s Scraper, cfg config.Config, hub *events.Hub, log *zap.Logger) (scrape.RunResult, error) {
	req := RequestFromConfig(cfg)
	if len(req.SearchTerms) == 0 || len(req.Sites) == 0 {
		return scrape.RunResult{}, ErrNothingToDo
	}

	if hub != nil {
		hub.Emit(events.TypeScrapeStarted, events.SourceSchedule, events.ScrapeStartedOf(req))
	}
	res, err := s.Run(ctx, req)
	if errors.Is(err, scrape.ErrAlreadyRunning) {
		log.Info("scheduled scrape skipped, a run is in progress")
		return res, nil
	}
	if hub != nil {
		hub.Emit(events.TypeScrapeFinished, events.SourceSchedule, events.ScrapeFinishedOf(res))
	}
	if err != nil {
		return res, err
	}
	log.Info("scheduled scrape done", zap.Int("jobs_found", res.Summary.JobsFound), zap.Int("sites_abandoned", res.Summary.SitesAbandoned))
	return res, nil
}

// BounceOnce runs one bounce scan.
func BounceOnce(ctx context.Context, b BounceScanner, log *zap.Logger) (bounce.Result, error) {
	res, err := b.ScanOnce(ctx)
	if err != nil {
		return res, err
	}
	if res.Bounced > 0 {
		log.Info("bounces recorded", zap.Int("records", res.Bounced), zap.Int("campaigns", res.Campaign))
	}
	return res, nil
}
