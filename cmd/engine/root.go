package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	dataDir string
	cfgPath string
	debug   bool
}

func newRootCmd() *cobra.Command {
	var f rootFlags
	root := &cobra.Command{
		Use:           "engine",
		Short:         "Apprenticeship scraper and outreach campaign engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&f.dataDir, "data-dir", "", "data directory (default $AZUBI_DATA_DIR or .)")
	root.PersistentFlags().StringVar(&f.cfgPath, "config", "", "config file (default <data-dir>/config.yml)")
	root.PersistentFlags().BoolVar(&f.debug, "debug", false, "debug logging")

	root.AddCommand(
		newServeCmd(&f),
		newScrapeCmd(&f),
		newCampaignCmd(&f),
		newExportCmd(&f),
		newSecretCmd(&f),
		newBounceCmd(&f),
	)
	return root
}
