package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func newBounceCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bounce",
		Short: "Process delivery failure reports",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "scan",
		Short: "Read unseen bounce reports from the IMAP mailbox once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(f)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.Bounce.IMAPHost == "" {
				return errors.New("bounce.imap_host is not configured")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			res, err := a.bounceScanner().ScanOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d reports=%d bounced=%d campaigns=%d\n",
				res.Scanned, res.Reports, res.Bounced, res.Campaign)
			return nil
		},
	})
	return cmd
}
