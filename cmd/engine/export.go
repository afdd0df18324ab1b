package main

import (
	"fmt"

	"azubi-engine/internal/export"
	"azubi-engine/internal/store"

	"github.com/spf13/cobra"
)

func newExportCmd(f *rootFlags) *cobra.Command {
	var (
		out  string
		opts store.ListJobsOpts
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored jobs as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(f)
			if err != nil {
				return err
			}
			defer a.Close()

			if out == "-" {
				jobs, err := a.db.ListJobs(cmd.Context(), opts)
				if err != nil {
					return err
				}
				_, err = export.WriteJSONL(cmd.OutOrStdout(), jobs)
				return err
			}
			n, err := export.ToFile(cmd.Context(), a.db, out, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d jobs to %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "jobs.jsonl", `output file, "-" for stdout`)
	cmd.Flags().StringVar(&opts.Status, "status", "", "only jobs with this status")
	cmd.Flags().StringVar(&opts.Site, "site", "", "only jobs from this site")
	cmd.Flags().BoolVar(&opts.HasEmail, "has-email", false, "only jobs with a contact address")
	cmd.Flags().StringVar(&opts.Sort, "sort", "scraped", "scraped, title or institution")
	cmd.Flags().IntVar(&opts.Limit, "limit", 5000, "maximum number of jobs")
	return cmd
}
