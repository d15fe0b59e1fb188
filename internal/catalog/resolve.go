package catalog

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eti-lan/peti-sync/internal/config"
)

const (
	// LocalDBName is the catalog database file name under the data dir.
	LocalDBName = "game.db"

	// LauncherUpdatePath is where the launcher delivers a refreshed
	// catalog database through the sync folder, relative to the sync root.
	LauncherUpdatePath = "eti_launcher/update"

	// DownloadURL serves the initial catalog archive for fresh installs.
	DownloadURL = "https://www.eti-lan.xyz/sync_server.tar"

	// downloadTimeout bounds the initial archive download.
	downloadTimeout = 10 * time.Minute

	dirPerm = 0o755
)

// ErrNoDatabase is returned by Resolve when no catalog database exists
// yet. Callers are expected to download the initial archive and retry.
var ErrNoDatabase = errors.New("catalog database not found")

// Resolve returns the path of the local catalog database. When the
// launcher has delivered a newer database through the sync folder, it
// is copied over the local one first. A copy failure keeps the stale
// local database usable and is only logged.
func Resolve(logger *slog.Logger, cfg *config.Config) (string, error) {
	dbPath := filepath.Join(cfg.DataDir, LocalDBName)
	updatePath := filepath.Join(cfg.SyncDir, LauncherUpdatePath, LocalDBName)

	if _, err := os.Stat(updatePath); err == nil {
		logger.Info("updating catalog database from sync folder", slog.String("path", updatePath))

		if err := copyFile(updatePath, dbPath); err != nil {
			logger.Error("could not copy updated catalog database", slog.String("error", err.Error()))
		}
	}

	if _, err := os.Stat(dbPath); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoDatabase, dbPath)
	}

	return dbPath, nil
}

// DownloadInitial fetches the initial catalog archive from srcURL and
// extracts the catalog database into the data dir. Used on fresh
// installs where the sync folder has not delivered a database yet.
func DownloadInitial(ctx context.Context, logger *slog.Logger, cfg *config.Config, srcURL string) error {
	logger.Info("downloading initial catalog database", slog.String("url", srcURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return fmt.Errorf("creating download request: %w", err)
	}

	client := &http.Client{Timeout: downloadTimeout}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading catalog archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading catalog archive: status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(cfg.DataDir, dirPerm); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, LocalDBName)

	if err := extractDatabase(resp.Body, dbPath); err != nil {
		return fmt.Errorf("extracting catalog archive: %w", err)
	}

	logger.Info("initial catalog database downloaded", slog.String("path", dbPath))

	return nil
}

// extractDatabase streams through the tar archive and writes the first
// member named like the catalog database to dst.
func extractDatabase(archive io.Reader, dst string) error {
	tr := tar.NewReader(archive)

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s not found in archive", LocalDBName)
		}

		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(hdr.Name, LocalDBName) {
			continue
		}

		out, err := os.Create(dst)
		if err != nil {
			return fmt.Errorf("creating %s: %w", dst, err)
		}

		if _, err := io.Copy(out, tr); err != nil {
			_ = out.Close()
			return fmt.Errorf("writing %s: %w", dst, err)
		}

		return out.Close()
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying to %s: %w", dst, err)
	}

	return out.Close()
}
