package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/eti-lan/peti-sync/internal/config"
	"github.com/fsnotify/fsnotify"
)

const (
	// watcherPollInterval is how often pending filesystem events are
	// checked, batching the launcher's partial writes of the database
	// into a single reconciliation.
	watcherPollInterval = 500 * time.Millisecond

	// watcherSettleDelay is how long the database file must stay quiet
	// before an update fires. The launcher writes the file in chunks;
	// reacting to the first write would read a torn database.
	watcherSettleDelay = 2 * time.Second
)

// Watcher observes the launcher update directory inside the sync folder
// and invokes a callback once a freshly delivered catalog database has
// settled on disk.
type Watcher struct {
	logger   *slog.Logger
	dir      string
	onUpdate func(context.Context) error
}

// NewWatcher creates a watcher for the configured sync folder. onUpdate
// is called after each settled database delivery; its error is logged,
// not propagated, so one bad delivery does not stop the watch loop.
func NewWatcher(cfg *config.Config, logger *slog.Logger, onUpdate func(context.Context) error) *Watcher {
	return &Watcher{
		logger:   logger,
		dir:      filepath.Join(cfg.SyncDir, LauncherUpdatePath),
		onUpdate: onUpdate,
	}
}

// Watch blocks until the context is cancelled, invoking the update
// callback whenever a new catalog database lands.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := os.MkdirAll(w.dir, dirPerm); err != nil {
		return fmt.Errorf("creating launcher update dir: %w", err)
	}

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching launcher update dir: %w", err)
	}

	w.logger.Info("catalog watcher started", slog.String("dir", w.dir))

	var (
		pending  bool
		lastSeen time.Time
	)

	ticker := time.NewTicker(watcherPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			if filepath.Base(event.Name) != LocalDBName {
				continue
			}

			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.Debug("catalog database event", slog.String("op", event.Op.String()))

			pending = true
			lastSeen = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			w.logger.Warn("catalog watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			if !pending || time.Since(lastSeen) < watcherSettleDelay {
				continue
			}

			pending = false

			w.logger.Info("catalog database updated, reconciling")

			if err := w.onUpdate(ctx); err != nil {
				w.logger.Error("reconciliation after catalog update failed",
					slog.String("error", err.Error()))
			}
		}
	}
}
