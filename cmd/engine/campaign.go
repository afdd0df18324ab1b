package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"azubi-engine/internal/campaign"
	"azubi-engine/internal/domain"

	"github.com/spf13/cobra"
)

func newCampaignCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Create and run email campaigns to scraped jobs",
	}
	cmd.AddCommand(
		newCampaignCreateCmd(f),
		newCampaignStartCmd(f),
		newCampaignPauseCmd(f),
		newCampaignResumeCmd(f),
		newCampaignStatusCmd(f),
		newCampaignListCmd(f),
	)
	return cmd
}

func newCampaignCreateCmd(f *rootFlags) *cobra.Command {
	var (
		subject    string
		bodyFile   string
		recipients string
		jobIDs     []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft campaign from a subject and a body template file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(bodyFile)
			if err != nil {
				return fmt.Errorf("read body template: %w", err)
			}
			ids, err := parseIDs(jobIDs)
			if err != nil {
				return err
			}
			return withDispatcher(f, cmd, func(ctx context.Context, d sendGuard) error {
				c, err := d.Create(ctx, campaign.CreateRequest{
					Subject:      subject,
					BodyTemplate: string(body),
					Recipients:   domain.RecipientPolicy(strings.ToLower(recipients)),
					JobIDs:       ids,
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), c.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject template")
	cmd.Flags().StringVar(&bodyFile, "body", "", "file holding the body template")
	cmd.Flags().StringVar(&recipients, "recipients", "", "recipient policy: first or all (default campaign.recipients)")
	cmd.Flags().StringSliceVar(&jobIDs, "job", nil, "restrict to these job IDs (repeatable)")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func newCampaignStartCmd(f *rootFlags) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Start sending a draft campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDispatcher(f, cmd, func(ctx context.Context, d sendGuard) error {
				if err := d.Start(ctx, args[0]); err != nil {
					return err
				}
				return finish(ctx, cmd, d, args[0], wait)
			})
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", true, "block until the campaign stops")
	return cmd
}

func newCampaignResumeCmd(f *rootFlags) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "resume <id>",
		Short: "Continue a paused campaign from its pending deliveries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDispatcher(f, cmd, func(ctx context.Context, d sendGuard) error {
				if err := d.Resume(ctx, args[0]); err != nil {
					return err
				}
				return finish(ctx, cmd, d, args[0], wait)
			})
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", true, "block until the campaign stops")
	return cmd
}

// newCampaignPauseCmd pauses through the store. A loop running in another
// process is only reached through the HTTP API.
func newCampaignPauseCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <id>",
		Short: "Pause a running campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDispatcher(f, cmd, func(ctx context.Context, d sendGuard) error {
				if err := d.Pause(ctx, args[0]); err != nil {
					return err
				}
				return printStatus(ctx, cmd, d, args[0])
			})
		},
	}
}

func newCampaignStatusCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show delivery counts for a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDispatcher(f, cmd, func(ctx context.Context, d sendGuard) error {
				return printStatus(ctx, cmd, d, args[0])
			})
		},
	}
}

func newCampaignListCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List campaigns, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(f)
			if err != nil {
				return err
			}
			defer a.Close()
			list, err := a.db.ListCampaigns(cmd.Context())
			if err != nil {
				return err
			}
			printCampaigns(cmd.OutOrStdout(), list)
			return nil
		},
	}
}

// withDispatcher bootstraps the app and runs fn with an interruptible context.
// Closing the dispatcher on the way out leaves an unfinished campaign running
// in the store so it can be resumed.
func withDispatcher(f *rootFlags, cmd *cobra.Command, fn func(ctx context.Context, d sendGuard) error) error {
	a, err := bootstrap(f)
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.dispatcher()
	if err != nil {
		return err
	}
	defer d.Close()
	d.OnProgress = func(s domain.CampaignSummary) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: sent=%d bounced=%d error=%d pending=%d\n", s.Status, s.Sent, s.Bounced, s.Error, s.Pending)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	return fn(ctx, sendGuard{Dispatcher: d, configured: a.cfg.SMTP.Host != ""})
}

func finish(ctx context.Context, cmd *cobra.Command, d sendGuard, id string, wait bool) error {
	if wait {
		if err := d.Wait(ctx, id); err != nil && ctx.Err() == nil {
			return err
		}
	}
	return printStatus(context.WithoutCancel(ctx), cmd, d, id)
}

func printStatus(ctx context.Context, cmd *cobra.Command, d sendGuard, id string) error {
	s, err := d.Status(ctx, id)
	if err != nil {
		return err
	}
	printCampaignSummary(cmd.OutOrStdout(), s)
	return nil
}

func parseIDs(xs []string) ([]int64, error) {
	var out []int64
	for _, x := range xs {
		id, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid job id %q", x)
		}
		out = append(out, id)
	}
	return out, nil
}
