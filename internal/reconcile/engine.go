package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eti-lan/peti-sync/internal/config"
	"github.com/eti-lan/peti-sync/internal/resilio"
	"golang.org/x/sync/errgroup"
)

// Op names one remote operation applied to a folder.
type Op string

const (
	OpSync        Op = "sync"
	OpUpdatePrefs Op = "update_prefs"
	OpRemove      Op = "remove"
)

// Outcome records the result of one operation on one folder. The engine
// aggregates outcomes instead of relying on log scraping, so callers
// can act on a non-zero failure count.
type Outcome struct {
	Folder string
	ID     string
	Op     Op
	OK     bool
	Detail string
}

// Summary aggregates the outcomes of a full run.
type Summary struct {
	Outcomes []Outcome
	Failed   int
}

// FolderClient is the remote API surface the engine drives. A nil error
// means the request was dispatched; the remote side's own status codes
// are not escalated here.
type FolderClient interface {
	Sync(ctx context.Context, f resilio.Folder) error
	UpdatePrefs(ctx context.Context, f resilio.Folder) error
	Remove(ctx context.Context, f resilio.Folder) error
}

// Engine drives the three reconciliation phases through the API client
// with bounded parallelism and per-folder failure isolation.
//
// The engine is stateless by design: it keeps no record of what is
// currently synced remotely and relies entirely on the control API's
// idempotency. A failed run is safe to simply repeat.
type Engine struct {
	client        FolderClient
	logger        *slog.Logger
	syncDir       string
	workers       int
	callDelay     time.Duration
	keepDiscarded bool
}

// NewEngine creates an engine over the given client and configuration.
func NewEngine(cfg *config.Config, client FolderClient, logger *slog.Logger) *Engine {
	return &Engine{
		client:        client,
		logger:        logger,
		syncDir:       cfg.SyncDir,
		workers:       cfg.Workers,
		callDelay:     cfg.CallDelay.Std(),
		keepDiscarded: cfg.KeepDiscarded,
	}
}

// Run executes the full three-phase reconciliation:
//
//  1. System phase: sync each config folder, sequentially.
//  2. Allow phase: sync then update prefs for each allowed catalog
//     folder, fanned out over the worker pool. The two calls for one
//     folder stay in order; distinct folders interleave freely.
//  3. Deny phase: remove each denied folder and, when the remove call
//     was dispatched, delete its local mirror. Skipped entirely when
//     keep-discarded is set.
//
// Each phase finishes completely before the next begins. One folder's
// failure never aborts its siblings or the run.
func (e *Engine) Run(ctx context.Context, sets Sets) Summary {
	res := &results{}

	e.logger.Info("add/update system tools", slog.Int("folders", len(sets.System)))

	for _, f := range sets.System {
		res.record(e.logger, f, OpSync, e.client.Sync(ctx, f))
		e.pace(ctx)
	}

	e.logger.Info("synchronizing allowed games",
		slog.Int("allowed", len(sets.Allow)),
		slog.Int("denied", len(sets.Deny)),
	)

	e.forEach(ctx, sets.Allow, func(ctx context.Context, f resilio.Folder) {
		e.logger.Debug("processing", slog.String("folder", f.Name), slog.String("id", f.ID))

		res.record(e.logger, f, OpSync, e.client.Sync(ctx, f))
		e.pace(ctx)
		res.record(e.logger, f, OpUpdatePrefs, e.client.UpdatePrefs(ctx, f))
	})

	if e.keepDiscarded {
		e.logger.Info("keeping discarded games, skipping removal phase")
		return res.summary()
	}

	e.logger.Info("removing denied games", slog.Int("folders", len(sets.Deny)))

	e.forEach(ctx, sets.Deny, func(ctx context.Context, f resilio.Folder) {
		e.removeAndClean(ctx, res, f)
	})

	return res.summary()
}

// TearDown removes every known folder from the sync service and deletes
// its local mirror. The human confirmation step belongs to the caller.
func (e *Engine) TearDown(ctx context.Context, sets Sets) Summary {
	res := &results{}

	all := sets.All()
	e.logger.Info("removing all synchronized folders", slog.Int("folders", len(all)))

	e.forEach(ctx, all, func(ctx context.Context, f resilio.Folder) {
		e.removeAndClean(ctx, res, f)
	})

	return res.summary()
}

// removeAndClean issues a remote remove and, only when the remove call
// itself was dispatched, deletes the folder's local mirror.
func (e *Engine) removeAndClean(ctx context.Context, res *results, f resilio.Folder) {
	err := e.client.Remove(ctx, f)
	res.record(e.logger, f, OpRemove, err)
	e.pace(ctx)

	if err != nil {
		return
	}

	CleanMirror(e.logger, e.syncDir, f.ID)
}

// forEach runs fn for each folder under the bounded worker pool and
// waits for all units to finish. Each folder is one indivisible unit of
// work; the calls within a unit are never split across workers.
func (e *Engine) forEach(ctx context.Context, folders []resilio.Folder, fn func(context.Context, resilio.Folder)) {
	g := new(errgroup.Group)
	if e.workers > 0 {
		g.SetLimit(e.workers)
	}

	for _, f := range folders {
		f := f
		g.Go(func() error {
			fn(ctx, f)
			return nil
		})
	}

	// Units never return errors; failures live in the outcomes.
	_ = g.Wait()
}

// pace sleeps for the configured inter-call delay, if any.
func (e *Engine) pace(ctx context.Context) {
	if e.callDelay <= 0 {
		return
	}

	timer := time.NewTimer(e.callDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// results collects outcomes from concurrent units.
type results struct {
	mu       sync.Mutex
	outcomes []Outcome
	failed   int
}

func (r *results) record(logger *slog.Logger, f resilio.Folder, op Op, err error) {
	o := Outcome{Folder: f.Name, ID: f.ID, Op: op, OK: err == nil}
	if err != nil {
		o.Detail = err.Error()
	}

	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)

	if err != nil {
		r.failed++
	}
	r.mu.Unlock()

	if err == nil {
		logger.Debug("completed", slog.String("folder", f.Name), slog.String("op", string(op)))
	}
}

func (r *results) summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Summary{Outcomes: r.outcomes, Failed: r.failed}
}
