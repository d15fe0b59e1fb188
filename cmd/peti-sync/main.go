// peti-sync keeps a Resilio Sync instance's shared folder set
// consistent with the locally desired one: the system tools from the
// config file plus the game catalog, minus the denylist.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/eti-lan/peti-sync/internal/catalog"
	"github.com/eti-lan/peti-sync/internal/config"
	"github.com/eti-lan/peti-sync/internal/logging"
	"github.com/eti-lan/peti-sync/internal/reconcile"
	"github.com/eti-lan/peti-sync/internal/resilio"
	"github.com/spf13/cobra"
)

var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:          "peti-sync",
	Short:        "Reconcile a Resilio Sync folder set with the ETI game catalog",
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath,
		"path to the configuration file")
	rootCmd.AddCommand(updateCmd, cleanupCmd, watchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and wires the logger, API client and
// reconciliation engine together.
func setup(keepDiscarded bool) (*config.Config, *slog.Logger, *reconcile.Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	cfg.KeepDiscarded = keepDiscarded

	logger := logging.NewLogger(cfg.Environment, os.Stdout)
	logger.Info("peti-sync starting",
		slog.String("version", Version),
		slog.String("host", cfg.Host),
	)

	client := resilio.NewClient(cfg, logger, nil)
	engine := reconcile.NewEngine(cfg, client, logger)

	return cfg, logger, engine, nil
}

// loadSets resolves the catalog database, downloading the initial
// archive when no database exists yet, and assembles the desired
// folder state.
func loadSets(ctx context.Context, cfg *config.Config, logger *slog.Logger) (reconcile.Sets, error) {
	dbPath, err := catalog.Resolve(logger, cfg)
	if errors.Is(err, catalog.ErrNoDatabase) {
		logger.Warn("catalog database not found, downloading initial archive")

		if err := catalog.DownloadInitial(ctx, logger, cfg, catalog.DownloadURL); err != nil {
			return reconcile.Sets{}, fmt.Errorf("downloading initial catalog: %w", err)
		}

		dbPath, err = catalog.Resolve(logger, cfg)
	}

	if err != nil {
		return reconcile.Sets{}, fmt.Errorf("resolving catalog database: %w", err)
	}

	store, err := catalog.Open(dbPath)
	if err != nil {
		return reconcile.Sets{}, fmt.Errorf("opening catalog: %w", err)
	}
	defer store.Close()

	allow, err := store.AllowFolders(ctx, cfg)
	if err != nil {
		return reconcile.Sets{}, fmt.Errorf("loading catalog folders: %w", err)
	}

	discarded, err := store.DiscardedFolders(ctx, cfg)
	if err != nil {
		return reconcile.Sets{}, fmt.Errorf("loading discarded folders: %w", err)
	}

	sets := reconcile.Assemble(cfg, allow, discarded)

	logger.Info("prepared folder lists",
		slog.Int("system", len(sets.System)),
		slog.Int("allowed", len(sets.Allow)),
		slog.Int("denied", len(sets.Deny)),
	)

	return sets, nil
}

// reportSummary logs the run summary and converts a partial failure
// into a command error so the process exit code reflects it.
func reportSummary(logger *slog.Logger, summary reconcile.Summary) error {
	logger.Info("run complete",
		slog.Int("operations", len(summary.Outcomes)),
		slog.Int("failed", summary.Failed),
	)

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d operations failed", summary.Failed, len(summary.Outcomes))
	}

	return nil
}
