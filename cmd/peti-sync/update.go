package main

import (
	"github.com/spf13/cobra"
)

var keepDiscarded bool

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Sync system tools and allowed games, remove denied ones",
	Long: `Update reconciles the Resilio Sync folder set with the game catalog:

  1. Adds or updates the system folders from the config file.
  2. Adds or updates every allowed catalog folder and its preferences.
  3. Removes denied and discarded folders and deletes their local
     mirrors (skipped with --keep-discarded).

All remote calls are idempotent; a partially failed run is safe to
repeat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, engine, err := setup(keepDiscarded)
		if err != nil {
			return err
		}

		sets, err := loadSets(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}

		summary := engine.Run(cmd.Context(), sets)

		return reportSummary(logger, summary)
	},
}

func init() {
	updateCmd.Flags().BoolVar(&keepDiscarded, "keep-discarded", false,
		"do not remove discarded games from sync")
}
