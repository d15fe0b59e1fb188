package resilio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/eti-lan/peti-sync/internal/config"
	"github.com/tidwall/gjson"
)

// Method is a Resilio control API endpoint method.
type Method string

const (
	MethodAddFolder      Method = "add_folder"
	MethodRemoveFolder   Method = "remove_folder"
	MethodSetFolderPrefs Method = "set_folder_prefs"
	MethodShutdown       Method = "shutdown"
)

// action returns the past-tense log phrasing for a method.
func (m Method) action() string {
	switch m {
	case MethodAddFolder:
		return "added or updated"
	case MethodRemoveFolder:
		return "removed"
	case MethodSetFolderPrefs:
		return "preferences updated"
	case MethodShutdown:
		return "shutdown requested"
	default:
		return "processed (unknown method)"
	}
}

const (
	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads. Control API
	// responses are small JSON payloads.
	maxAPIResponseBytes = 1024 * 1024

	// errFolderNotKnown is the application error code Resilio returns
	// for operations on an unknown folder.
	errFolderNotKnown = 3
)

// Client issues idempotent calls against the Resilio Sync control API.
// Every call is a basic-authenticated GET; every call is safe to repeat.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cfg        *config.Config
	logger     *slog.Logger
}

// NewClient creates an API client for the configured Resilio host.
// If httpClient is nil, a client with a 30-second timeout is used.
func NewClient(cfg *config.Config, logger *slog.Logger, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpClientTimeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    "http://" + cfg.Host,
		cfg:        cfg,
		logger:     logger,
	}
}

// Sync adds the folder to the sync service, or updates it when already
// known. A nil return means the request was dispatched; the remote
// side's own status is logged, not escalated.
func (c *Client) Sync(ctx context.Context, f Folder) error {
	return c.call(ctx, MethodAddFolder, f, false)
}

// UpdatePrefs updates the folder's preferences. The folder must already
// be known to the sync service.
func (c *Client) UpdatePrefs(ctx context.Context, f Folder) error {
	return c.call(ctx, MethodSetFolderPrefs, f, false)
}

// Remove removes the folder from the sync service. The force flag is
// always set so the service does not refuse folders with pending peers.
func (c *Client) Remove(ctx context.Context, f Folder) error {
	return c.call(ctx, MethodRemoveFolder, f, true)
}

// Shutdown asks the sync service to shut down.
func (c *Client) Shutdown(ctx context.Context) error {
	u := c.baseURL + "/api?" + url.Values{"method": {string(MethodShutdown)}}.Encode()

	if _, err := c.get(ctx, u); err != nil {
		c.logger.Error("shutdown request failed", slog.String("error", err.Error()))
		return fmt.Errorf("requesting shutdown: %w", err)
	}

	c.logger.Info("sync service " + MethodShutdown.action())

	return nil
}

// folderURL builds the control API URL for one folder call. The secret
// parameter is omitted entirely when the folder has no secret; the
// configured sync options are appended as a raw query fragment.
func (c *Client) folderURL(m Method, f Folder, force bool) string {
	q := url.Values{}
	q.Set("method", string(m))
	q.Set("dir", c.cfg.SyncDir+"/"+f.ID)

	if f.Secret != "" {
		q.Set("secret", f.Secret)
	}

	u := c.baseURL + "/api?" + q.Encode()

	if c.cfg.SyncOptions != "" {
		u += "&" + c.cfg.SyncOptions
	}

	if force {
		u += "&force=1"
	}

	return u
}

// call performs one folder-scoped API request. A non-nil error means
// the HTTP call itself could not complete (connection error or non-2xx
// status). Application-level errors reported by the service are logged
// at warn level but the dispatch still counts as successful: the remote
// side is authoritative about its own folder state.
func (c *Client) call(ctx context.Context, m Method, f Folder, force bool) error {
	body, err := c.get(ctx, c.folderURL(m, f, force))
	if err != nil {
		c.logger.Error("folder request failed",
			slog.String("folder", f.Name),
			slog.String("id", f.ID),
			slog.String("method", string(m)),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("processing folder %q: %w", f.Name, err)
	}

	code := gjson.GetBytes(body, "error").Int()

	message := gjson.GetBytes(body, "message").Str
	if code == errFolderNotKnown {
		message = "Folder is not known"
	}

	if code != 0 {
		c.logger.Warn(fmt.Sprintf("[%s|%s] %s: %q (%d)", f.Name, f.ID, m.action(), message, code))
	} else {
		c.logger.Info(fmt.Sprintf("[%s|%s] %s", f.Name, f.ID, m.action()))
	}

	return nil
}

// get performs a basic-authenticated GET and returns the response body.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.SetBasicAuth(c.cfg.Auth.User, c.cfg.Auth.Password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	return body, nil
}
