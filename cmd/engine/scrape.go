package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"azubi-engine/internal/poll"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScrapeCmd(f *rootFlags) *cobra.Command {
	var (
		sites      []string
		terms      []string
		maxPages   int
		maxRuntime time.Duration
		showJobs   bool
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run one scrape over the configured sites and search terms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(f)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			req := poll.RequestFromConfig(a.cfg)
			if len(sites) > 0 {
				req.Sites = sites
			}
			if len(terms) > 0 {
				req.SearchTerms = terms
			}
			if maxPages > 0 {
				req.MaxPages = maxPages
			}
			if maxRuntime > 0 {
				req.MaxRuntime = maxRuntime
			}

			fetcher := a.fetcher()
			defer fetcher.Close()
			res, err := a.orchestrator(fetcher).Run(ctx, req)
			if err != nil && ctx.Err() == nil {
				return err
			}
			a.log.Info("scrape finished",
				zap.String("status", string(res.Status)),
				zap.Int("jobs_found", res.Summary.JobsFound),
				zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)),
			)

			out := cmd.OutOrStdout()
			if showJobs {
				printJobs(out, res.Jobs)
			}
			printSummary(out, res)
			return exitOnCancel(ctx)
		},
	}
	cmd.Flags().StringSliceVar(&sites, "site", nil, "site to scrape: azubi, ausbildung (repeatable)")
	cmd.Flags().StringSliceVar(&terms, "term", nil, "search term (repeatable)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "result pages per site and term")
	cmd.Flags().DurationVar(&maxRuntime, "max-runtime", 0, "overall time budget")
	cmd.Flags().BoolVar(&showJobs, "jobs", true, "print the new jobs")
	return cmd
}

// exitOnCancel turns an interrupt into a non-zero exit after the partial
// result has been printed.
func exitOnCancel(ctx context.Context) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}
