package reconcile

import (
	"log/slog"
	"os"
	"path/filepath"
)

// CleanMirror deletes the local on-disk mirror of a folder under the
// sync root. A missing directory is a successful no-op. Deletion
// failures are logged and reported, never raised: mirror cleanup must
// not abort the batch.
func CleanMirror(logger *slog.Logger, syncDir, folderID string) bool {
	path := filepath.Join(syncDir, folderID)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return true
	}

	if err := os.RemoveAll(path); err != nil {
		logger.Warn("removing local mirror failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return false
	}

	logger.Info("removed local mirror", slog.String("path", path))

	return true
}
