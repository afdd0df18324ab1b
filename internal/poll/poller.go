package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"azubi-engine/internal/config"
	"azubi-engine/internal/events"
	"azubi-engine/internal/scheduler"

	"go.uber.org/zap"
)

// Poller drives the periodic scrape and bounce scan in serve mode. Intervals
// are read once at Start; a zero interval disables the task.
type Poller struct {
	Scraper Scraper
	Bounce  BounceScanner // nil disables bounce scanning
	CfgVal  *atomic.Value // stores config.Config
	Hub     *events.Hub
	Log     *zap.Logger

	wg sync.WaitGroup
}

func (p *Poller) cfg() config.Config {
	return p.CfgVal.Load().(config.Config)
}

// Start launches the enabled loops. They stop when ctx is done; Wait blocks
// until they have.
func (p *Poller) Start(ctx context.Context) {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("poll")
	cfg := p.cfg()

	if n := cfg.Scrape.IntervalMinutes; n > 0 && p.Scraper != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			scheduler.Every(ctx, time.Duration(n)*time.Minute, "scrape", log, func(ctx context.Context) error {
				_, err := ScrapeOnce(ctx, p.Scraper, p.cfg(), p.Hub, log)
				if errors.Is(err, ErrNothingToDo) {
					return nil
				}
				return err
			})
		}()
		log.Info("scheduled scrape enabled", zap.Int("interval_minutes", n))
	}

	if n := cfg.Bounce.IntervalMinutes; cfg.Bounce.Enabled && n > 0 && p.Bounce != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			scheduler.Every(ctx, time.Duration(n)*time.Minute, "bounce", log, func(ctx context.Context) error {
				_, err := BounceOnce(ctx, p.Bounce, log)
				return err
			})
		}()
		log.Info("bounce scan enabled", zap.Int("interval_minutes", n))
	}
}

func (p *Poller) Wait() { p.wg.Wait() }
