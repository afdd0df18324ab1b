package main

import (
	"fmt"
	"os"
	"path/filepath"

	"azubi-engine/internal/bounce"
	"azubi-engine/internal/campaign"
	"azubi-engine/internal/config"
	"azubi-engine/internal/logger"
	"azubi-engine/internal/mailer"
	"azubi-engine/internal/scrape"
	"azubi-engine/internal/scrape/fetch"
	"azubi-engine/internal/secrets"
	"azubi-engine/internal/store"

	"go.uber.org/zap"
)

// app is what every command shares: the resolved config, the logger and the
// open store.
type app struct {
	cfg     config.Config
	cfgPath string
	dataDir string
	log     *zap.Logger
	db      *store.DB
}

func bootstrap(f *rootFlags) (*app, error) {
	config.LoadDotEnv(".env")

	dataDir := f.dataDir
	if dataDir == "" {
		dataDir = os.Getenv("AZUBI_DATA_DIR")
	}
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	cfgPath := f.cfgPath
	if cfgPath == "" {
		p, err := config.EnsureUserConfig(dataDir, filepath.Join("config", "config.yml"))
		if err != nil {
			return nil, fmt.Errorf("config bootstrap failed: %w", err)
		}
		cfgPath = p
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	if f.debug {
		cfg.Logging.Debug = true
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Debug)
	if err != nil {
		return nil, err
	}
	cfg, vr := config.NormalizeAndValidate(cfg)
	for _, w := range vr.Warnings {
		log.Warn("config", zap.String("warning", w))
	}
	if err := vr.Err(); err != nil {
		return nil, err
	}
	if err := secrets.Resolve(&cfg); err != nil {
		// no keychain on this host; env passwords still apply
		log.Warn("keychain unavailable", zap.Error(err))
	}

	db, err := store.Open(filepath.Join(dataDir, "azubi.db"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &app{cfg: cfg, cfgPath: cfgPath, dataDir: dataDir, log: log, db: db}, nil
}

// loadConfig reads the file and applies AZUBI_* overrides.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	config.ApplyEnv(&cfg)
	return cfg, nil
}

func (a *app) Close() {
	_ = a.db.Close()
	_ = a.log.Sync()
}

func (a *app) lockPath() string { return filepath.Join(a.dataDir, "scrape.lock") }

// fetcher builds the page fetcher, with the headless renderer when enabled.
// The renderer is optional: a failed browser launch only disables it.
func (a *app) fetcher() *fetch.Fetcher {
	f := fetch.New(fetch.OptionsFromConfig(a.cfg), a.log)
	if a.cfg.Fetch.Render {
		r, err := fetch.NewPlaywrightRenderer(a.cfg.Fetch.UserAgent)
		if err != nil {
			a.log.Warn("renderer unavailable, falling back to plain HTTP", zap.Error(err))
		} else {
			f.WithRenderer(r)
		}
	}
	return f
}

func (a *app) orchestrator(f *fetch.Fetcher) *scrape.Orchestrator {
	return scrape.New(a.db, f, scrape.DefaultAdapters(), scrape.OptionsFromConfig(a.cfg, a.lockPath()), a.log)
}

// dispatcher returns a dispatcher without a transport when SMTP is not set
// up; such a dispatcher can still create, list and pause campaigns.
func (a *app) dispatcher() (*campaign.Dispatcher, error) {
	var tr campaign.Transport = noTransport{}
	if a.cfg.SMTP.Host != "" {
		m, err := mailer.New(mailer.FromConfig(a.cfg), a.log)
		if err != nil {
			return nil, err
		}
		tr = m
	}
	return campaign.New(a.db, tr, campaign.OptionsFromConfig(a.cfg), a.log), nil
}

func (a *app) bounceScanner() *bounce.Scanner {
	return bounce.FromConfig(a.db, a.cfg, a.log)
}
