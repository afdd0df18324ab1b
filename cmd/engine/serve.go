package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"azubi-engine/internal/config"
	"azubi-engine/internal/domain"
	"azubi-engine/internal/events"
	"azubi-engine/internal/httpapi"
	"azubi-engine/internal/poll"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(f *rootFlags) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP API with scheduled scrapes and bounce scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), f, port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default app.port)")
	return cmd
}

func runServe(ctx context.Context, f *rootFlags, port int) error {
	a, err := bootstrap(f)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfgVal atomic.Value
	cfgVal.Store(a.cfg)
	hub := events.NewHub()

	fetcher := a.fetcher()
	defer fetcher.Close()
	orch := a.orchestrator(fetcher)
	orch.OnJob = func(j domain.Job) { hub.Emit(events.TypeJobCreated, events.SourceScraper, events.JobCreatedOf(j)) }

	disp, err := a.dispatcher()
	if err != nil {
		return err
	}
	defer disp.Close()
	disp.OnProgress = func(s domain.CampaignSummary) { hub.Emit(events.TypeCampaignProgress, events.SourceDispatcher, events.CampaignProgressOf(s)) }
	campaigns := sendGuard{Dispatcher: disp, configured: a.cfg.SMTP.Host != ""}

	poller := &poll.Poller{Scraper: orch, CfgVal: &cfgVal, Hub: hub, Log: log}
	if a.cfg.Bounce.Enabled {
		sc := a.bounceScanner()
		sc.OnBounce = func(s domain.CampaignSummary) { hub.Emit(events.TypeBounceRecorded, events.SourceBounces, events.CampaignProgressOf(s)) }
		poller.Bounce = sc
	}

	resumeRunning(ctx, a, campaigns)

	token := os.Getenv("AZUBI_SHUTDOWN_TOKEN")
	if token == "" {
		if token, err = randomToken(16); err != nil {
			return err
		}
	}

	api := httpapi.Handler(httpapi.Deps{
		Store:       a.db,
		Scraper:     orch,
		Campaigns:   campaigns,
		Hub:         hub,
		Log:         log,
		BaseCtx:     ctx,
		CfgVal:      &cfgVal,
		UserCfgPath: a.cfgPath,
		LoadCfg: func() (config.Config, error) {
			c, err := loadConfig(a.cfgPath)
			if err != nil {
				return c, err
			}
			c, _ = config.NormalizeAndValidate(c)
			return c, nil
		},
	})

	if port == 0 {
		port = a.cfg.App.Port
	}
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{ReadHeaderTimeout: 5 * time.Second}
	root := http.NewServeMux()
	root.Handle("/", api)
	root.Handle("POST /shutdown", shutdownHandler(token, srv, log))
	srv.Handler = root

	poller.Start(ctx)
	defer poller.Wait()

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info("engine listening", zap.String("addr", "http://"+addr), zap.String("data_dir", a.dataDir))
	fmt.Printf("shutdown token: %s\n", token)

	err = srv.Serve(ln)
	stop()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// resumeRunning restarts the loops of campaigns left running by a previous
// process.
func resumeRunning(ctx context.Context, a *app, c sendGuard) {
	list, err := a.db.ListCampaigns(ctx)
	if err != nil {
		a.log.Warn("list campaigns failed", zap.Error(err))
		return
	}
	for _, cp := range list {
		if cp.Status != domain.CampaignRunning {
			continue
		}
		if err := c.Resume(ctx, cp.ID); err != nil {
			a.log.Warn("resume campaign failed", zap.String("campaign", cp.ID), zap.Error(err))
			continue
		}
		a.log.Info("campaign resumed after restart", zap.String("campaign", cp.ID))
	}
}
