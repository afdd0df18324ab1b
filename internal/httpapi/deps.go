package httpapi

import (
	"context"
	"sync/atomic"

	"azubi-engine/internal/campaign"
	"azubi-engine/internal/config"
	"azubi-engine/internal/domain"
	"azubi-engine/internal/events"
	"azubi-engine/internal/scrape"
	"azubi-engine/internal/store"

	"go.uber.org/zap"
)

// Scraper is satisfied by *scrape.Orchestrator.
type Scraper interface {
	Start(req scrape.Request) (func(context.Context) (scrape.RunResult, error), error)
	Status() scrape.ScrapeStatus
}

type Campaigns interface {
	Create(ctx context.Context, req campaign.CreateRequest) (domain.Campaign, error)
	Start(ctx context.Context, id string) error
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Status(ctx context.Context, id string) (domain.CampaignSummary, error)
}

type Store interface {
	ListJobs(ctx context.Context, opts store.ListJobsOpts) ([]domain.Job, error)
	ListCampaigns(ctx context.Context) ([]domain.Campaign, error)
	Checkpoint(ctx context.Context) error
}

type Deps struct {
	Store     Store
	Scraper   Scraper
	Campaigns Campaigns
	Hub       *events.Hub
	Log       *zap.Logger

	// BaseCtx outlives requests; background scrapes run under it.
	BaseCtx context.Context

	CfgVal *atomic.Value // stores config.Config

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)
}
