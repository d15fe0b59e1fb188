package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eti-lan/peti-sync/internal/config"
	"github.com/eti-lan/peti-sync/internal/resilio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	op Op
	id string
}

// fakeClient records every call in arrival order and can be told to
// fail specific operations for specific folder ids.
type fakeClient struct {
	mu    sync.Mutex
	calls []recordedCall
	fail  map[string]map[Op]bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
}

func newFakeClient() *fakeClient {
	return &fakeClient{fail: make(map[string]map[Op]bool)}
}

func (c *fakeClient) failOn(id string, op Op) {
	if c.fail[id] == nil {
		c.fail[id] = make(map[Op]bool)
	}

	c.fail[id][op] = true
}

func (c *fakeClient) do(op Op, f resilio.Folder) error {
	cur := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)

	for {
		max := c.maxInFlight.Load()
		if cur <= max || c.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}

	if c.delay > 0 {
		time.Sleep(c.delay)
	}

	c.mu.Lock()
	c.calls = append(c.calls, recordedCall{op: op, id: f.ID})
	shouldFail := c.fail[f.ID][op]
	c.mu.Unlock()

	if shouldFail {
		return errors.New("connection refused")
	}

	return nil
}

func (c *fakeClient) Sync(_ context.Context, f resilio.Folder) error {
	return c.do(OpSync, f)
}

func (c *fakeClient) UpdatePrefs(_ context.Context, f resilio.Folder) error {
	return c.do(OpUpdatePrefs, f)
}

func (c *fakeClient) Remove(_ context.Context, f resilio.Folder) error {
	return c.do(OpRemove, f)
}

// callsFor returns the ops recorded for one folder id, in order.
func (c *fakeClient) callsFor(id string) []Op {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ops []Op

	for _, call := range c.calls {
		if call.id == id {
			ops = append(ops, call.op)
		}
	}

	return ops
}

func (c *fakeClient) countOp(op Op) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int

	for _, call := range c.calls {
		if call.op == op {
			n++
		}
	}

	return n
}

func testEngine(t *testing.T, client FolderClient, workers int, keepDiscarded bool) (*Engine, string) {
	t.Helper()

	syncDir := t.TempDir()
	cfg := &config.Config{
		SyncDir:       syncDir,
		Workers:       workers,
		KeepDiscarded: keepDiscarded,
	}

	return NewEngine(cfg, client, slog.New(slog.NewTextHandler(io.Discard, nil))), syncDir
}

func folders(idlist ...string) []resilio.Folder {
	out := make([]resilio.Folder, 0, len(idlist))
	for _, id := range idlist {
		out = append(out, resilio.Folder{Name: id, ID: id, Secret: "K"})
	}

	return out
}

func TestRun_SyncPrecedesUpdatePrefsPerFolder(t *testing.T) {
	client := newFakeClient()
	client.delay = time.Millisecond

	engine, _ := testEngine(t, client, 4, false)

	sets := Sets{Allow: folders("g1", "g2", "g3", "g4", "g5", "g6")}
	engine.Run(context.Background(), sets)

	for _, id := range []string{"g1", "g2", "g3", "g4", "g5", "g6"} {
		ops := client.callsFor(id)
		require.Equal(t, []Op{OpSync, OpUpdatePrefs}, ops, "folder %s", id)
	}
}

func TestRun_PhaseOrdering(t *testing.T) {
	client := newFakeClient()

	engine, _ := testEngine(t, client, 4, false)

	sets := Sets{
		System: folders("sys1", "sys2"),
		Allow:  folders("a1", "a2"),
		Deny:   folders("d1"),
	}
	engine.Run(context.Background(), sets)

	client.mu.Lock()
	defer client.mu.Unlock()

	phase := func(id string) int {
		switch id {
		case "sys1", "sys2":
			return 0
		case "a1", "a2":
			return 1
		default:
			return 2
		}
	}

	last := 0
	for _, call := range client.calls {
		p := phase(call.id)
		assert.GreaterOrEqual(t, p, last, "call %v arrived after a later phase began", call)
		last = p
	}
}

func TestRun_FailureDoesNotAbortSiblings(t *testing.T) {
	client := newFakeClient()
	client.failOn("g2", OpSync)

	engine, _ := testEngine(t, client, 2, false)

	sets := Sets{Allow: folders("g1", "g2", "g3", "g4")}
	summary := engine.Run(context.Background(), sets)

	assert.Equal(t, 4, client.countOp(OpSync), "every folder still gets its sync call")
	assert.Equal(t, 4, client.countOp(OpUpdatePrefs))
	assert.Equal(t, 1, summary.Failed)
}

func TestRun_OutcomesRecorded(t *testing.T) {
	client := newFakeClient()
	client.failOn("d1", OpRemove)

	engine, _ := testEngine(t, client, 1, false)

	sets := Sets{
		System: folders("sys1"),
		Allow:  folders("g1"),
		Deny:   folders("d1"),
	}
	summary := engine.Run(context.Background(), sets)

	// sys1 sync, g1 sync+prefs, d1 remove.
	require.Len(t, summary.Outcomes, 4)
	assert.Equal(t, 1, summary.Failed)

	var removeOutcome *Outcome

	for i := range summary.Outcomes {
		if summary.Outcomes[i].Op == OpRemove {
			removeOutcome = &summary.Outcomes[i]
		}
	}

	require.NotNil(t, removeOutcome)
	assert.False(t, removeOutcome.OK)
	assert.Equal(t, "d1", removeOutcome.ID)
	assert.Contains(t, removeOutcome.Detail, "connection refused")
}

func TestRun_KeepDiscardedSkipsRemovalPhase(t *testing.T) {
	client := newFakeClient()

	engine, syncDir := testEngine(t, client, 2, true)

	mirror := filepath.Join(syncDir, "d1")
	require.NoError(t, os.MkdirAll(mirror, 0o755))

	sets := Sets{Deny: folders("d1", "d2")}
	summary := engine.Run(context.Background(), sets)

	assert.Zero(t, client.countOp(OpRemove))
	assert.Zero(t, summary.Failed)
	assert.DirExists(t, mirror)
}

func TestRun_RemoveSuccessDeletesMirror(t *testing.T) {
	client := newFakeClient()

	engine, syncDir := testEngine(t, client, 2, false)

	mirror := filepath.Join(syncDir, "d1")
	require.NoError(t, os.MkdirAll(filepath.Join(mirror, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(mirror, "nested", "data.bin"), []byte("x"), 0o644))

	engine.Run(context.Background(), Sets{Deny: folders("d1")})

	assert.NoDirExists(t, mirror)
}

func TestRun_RemoveFailureKeepsMirror(t *testing.T) {
	client := newFakeClient()
	client.failOn("d1", OpRemove)

	engine, syncDir := testEngine(t, client, 2, false)

	mirror := filepath.Join(syncDir, "d1")
	require.NoError(t, os.MkdirAll(mirror, 0o755))

	summary := engine.Run(context.Background(), Sets{Deny: folders("d1")})

	assert.DirExists(t, mirror, "mirror is only deleted after the remote remove dispatches")
	assert.Equal(t, 1, summary.Failed)
}

func TestRun_MissingMirrorIsNotAFailure(t *testing.T) {
	client := newFakeClient()

	engine, _ := testEngine(t, client, 2, false)

	summary := engine.Run(context.Background(), Sets{Deny: folders("d1")})
	assert.Zero(t, summary.Failed)
}

func TestRun_WorkerPoolIsBounded(t *testing.T) {
	client := newFakeClient()
	client.delay = 2 * time.Millisecond

	engine, _ := testEngine(t, client, 2, false)

	engine.Run(context.Background(), Sets{Allow: folders("g1", "g2", "g3", "g4", "g5", "g6", "g7", "g8")})

	assert.LessOrEqual(t, client.maxInFlight.Load(), int32(2))
}

func TestRun_UnboundedWhenWorkersNegative(t *testing.T) {
	client := newFakeClient()

	engine, _ := testEngine(t, client, -1, false)

	summary := engine.Run(context.Background(), Sets{Allow: folders("g1", "g2", "g3")})
	assert.Len(t, summary.Outcomes, 6)
}

func TestTearDown_RemovesEverythingAndCleansMirrors(t *testing.T) {
	client := newFakeClient()

	engine, syncDir := testEngine(t, client, 2, false)

	for _, id := range []string{"sys1", "g1", "d1"} {
		require.NoError(t, os.MkdirAll(filepath.Join(syncDir, id), 0o755))
	}

	sets := Sets{
		System: folders("sys1"),
		Allow:  folders("g1"),
		Deny:   folders("d1"),
	}
	summary := engine.TearDown(context.Background(), sets)

	assert.Equal(t, 3, client.countOp(OpRemove))
	assert.Zero(t, client.countOp(OpSync))
	assert.Zero(t, summary.Failed)

	for _, id := range []string{"sys1", "g1", "d1"} {
		assert.NoDirExists(t, filepath.Join(syncDir, id))
	}
}

func TestRun_CallDelayPacesSequentialCalls(t *testing.T) {
	client := newFakeClient()

	syncDir := t.TempDir()
	cfg := &config.Config{
		SyncDir:   syncDir,
		Workers:   1,
		CallDelay: config.Duration(5 * time.Millisecond),
	}
	engine := NewEngine(cfg, client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	start := time.Now()
	engine.Run(context.Background(), Sets{System: folders("s1", "s2", "s3")})

	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}
