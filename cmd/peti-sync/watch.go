package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/eti-lan/peti-sync/internal/catalog"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reconcile now and again whenever the catalog database updates",
	Long: `Watch performs one update run, then keeps watching the launcher
update directory inside the sync folder. Whenever the launcher delivers
a fresh catalog database, the folder set is reconciled again. Runs
until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, engine, err := setup(keepDiscarded)
		if err != nil {
			return err
		}

		runOnce := func(ctx context.Context) error {
			sets, err := loadSets(ctx, cfg, logger)
			if err != nil {
				return err
			}

			summary := engine.Run(ctx, sets)
			logger.Info("run complete",
				slog.Int("operations", len(summary.Outcomes)),
				slog.Int("failed", summary.Failed),
			)

			return nil
		}

		if err := runOnce(cmd.Context()); err != nil {
			// The first run may race the initial sync of the launcher
			// folder itself; the watcher will pick up the database once
			// it arrives.
			logger.Error("initial reconciliation failed", slog.String("error", err.Error()))
		}

		watcher := catalog.NewWatcher(cfg, logger, runOnce)

		if err := watcher.Watch(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVar(&keepDiscarded, "keep-discarded", false,
		"do not remove discarded games from sync")
}
