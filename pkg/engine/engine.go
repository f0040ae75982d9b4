// Package engine wires every subsystem into one open database handle:
// the sharded store, the WAL writer, the checkpoint coordinator, the
// transaction manager, every primitive facade, and the command
// executor. Callers never construct these pieces directly; Open runs
// the full recovery sequence and returns a ready Database.
package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stratadb/strata/pkg/command"
	"github.com/stratadb/strata/pkg/config"
	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/primitives/branch"
	"github.com/stratadb/strata/pkg/primitives/event"
	"github.com/stratadb/strata/pkg/primitives/jsondoc"
	"github.com/stratadb/strata/pkg/primitives/kv"
	"github.com/stratadb/strata/pkg/primitives/state"
	"github.com/stratadb/strata/pkg/retention"
	"github.com/stratadb/strata/pkg/snapshot"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/strataerr"
	"github.com/stratadb/strata/pkg/txn"
	"github.com/stratadb/strata/pkg/vector"
	"github.com/stratadb/strata/pkg/wal"
)

const (
	walDirName      = "wal"
	snapshotDirName = "snapshots"
	codecID         = "msgpack/v1"
)

// DefaultBranch is the branch every Executor resolves to when a
// command omits one. It is the zero BranchId, the same id
// branch.Facade treats as the always-existing administrative scope
// (see branch.Facade.BranchExists): reusing it as the ordinary default
// data branch means a freshly opened database can be written to
// immediately, with no "create the default branch" step required
// before the first put.
var DefaultBranch = ids.BranchId{}

// lazyBranchChecker breaks the constructor cycle between txn.Manager
// (which needs a BranchChecker up front) and branch.Facade (which
// needs a *txn.Manager to commit its own metadata writes): it
// implements txn.BranchChecker over a branch.Facade wired in after
// both are constructed, the same deferred-wiring shape
// branch.Facade.AttachVectorDropper and command.Hooks already use.
type lazyBranchChecker struct {
	facade atomic.Pointer[branch.Facade]
}

func (c *lazyBranchChecker) BranchExists(id ids.BranchId) bool {
	f := c.facade.Load()
	if f == nil {
		return id == DefaultBranch
	}
	return f.BranchExists(id)
}

func (c *lazyBranchChecker) attach(f *branch.Facade) { c.facade.Store(f) }

// executorKey identifies one cached command.Executor: one fixed
// namespace scope plus the branch its commands default to.
type executorKey struct {
	ns     ids.Namespace
	branch ids.BranchId
}

// Database is one open Strata database. All of its exported behaviour
// is reached through Executor/Execute; the fields below are the
// subsystems Open wires together and Close tears down.
type Database struct {
	dataDir string
	walDir  string
	snapDir string
	cfg     config.Config
	log     zerolog.Logger

	databaseUUID uuid.UUID

	store      *storage.ShardedStore
	wal        *wal.Writer
	manager    *txn.Manager
	checkpoint *snapshot.Coordinator

	kv     *kv.Facade
	event  *event.Facade
	state  *state.Facade
	json   *jsondoc.Facade
	vector *vector.Facade
	branch *branch.Facade

	manifestMu sync.Mutex
	manifest   snapshot.Manifest

	modeMu sync.RWMutex
	mode   config.AccessMode

	execMu    sync.Mutex
	executors map[executorKey]*command.Executor

	workers    *errgroup.Group
	cancelWork context.CancelFunc

	registeredDir string
	closeOnce     sync.Once
	closeErr      error
}

// Executor returns the (cached) command.Executor serving ns with
// defaultBranch as the branch commands resolve to when they omit one.
// Facades are stateless and freely re-constructible, but an Executor
// also owns the open explicit-transaction table a caller's TxnBegin/
// TxnCommit pair must agree on across calls, so one is kept per scope
// rather than rebuilt on every Execute.
func (d *Database) Executor(ns ids.Namespace, defaultBranch ids.BranchId) *command.Executor {
	key := executorKey{ns: ns, branch: defaultBranch}

	d.execMu.Lock()
	defer d.execMu.Unlock()
	if ex, ok := d.executors[key]; ok {
		return ex
	}

	ex := command.New(ns, defaultBranch, d.currentMode(), d.kv, d.event, d.state, d.json, d.vector, d.branch, d.manager)
	ex.Hooks = command.Hooks{Flush: d.Flush, Compact: d.Compact}
	d.executors[key] = ex
	return ex
}

// Execute is shorthand for Executor(ns, defaultBranch).Execute(cmd),
// for callers that only ever issue one command per scope and don't
// need to hold onto the Executor themselves.
func (d *Database) Execute(ns ids.Namespace, defaultBranch ids.BranchId, cmd command.Command) (command.Output, error) {
	return d.Executor(ns, defaultBranch).Execute(cmd)
}

func (d *Database) currentMode() config.AccessMode {
	d.modeMu.RLock()
	defer d.modeMu.RUnlock()
	return d.mode
}

// SetAccessMode flips every cached Executor's access mode at once, the
// way promoting a read-only replica to primary would.
func (d *Database) SetAccessMode(mode config.AccessMode) {
	d.modeMu.Lock()
	d.mode = mode
	d.modeMu.Unlock()

	d.execMu.Lock()
	defer d.execMu.Unlock()
	for _, ex := range d.executors {
		ex.SetMode(mode)
	}
}

// Flush forces the WAL's buffered writes to stable storage, independent
// of the configured durability mode's own fsync cadence.
func (d *Database) Flush() error {
	return d.wal.Sync()
}

// Stats is a point-in-time snapshot of engine-level counters, for a
// metrics collector to poll without reaching into Database internals.
type Stats struct {
	CommittedCount     uint64
	ConflictCount      uint64
	CurrentVersion     uint64
	WalBytes           int64
	WalSegments        int
	ActiveCheckpointID uint64
}

// Stats reports the current commit/WAL/checkpoint counters.
func (d *Database) Stats() (Stats, error) {
	bytes, err := d.walBytes()
	if err != nil {
		return Stats{}, err
	}
	indices, err := wal.ListSegmentIndices(d.walDir)
	if err != nil {
		return Stats{}, err
	}

	d.manifestMu.Lock()
	checkpointID := d.manifest.ActiveCheckpointID
	d.manifestMu.Unlock()

	return Stats{
		CommittedCount:     d.manager.CommittedCount(),
		ConflictCount:      d.manager.ConflictCount(),
		CurrentVersion:     d.manager.CurrentVersion(),
		WalBytes:           bytes,
		WalSegments:        len(indices),
		ActiveCheckpointID: checkpointID,
	}, nil
}

// Compact runs an out-of-cycle checkpoint immediately, the same
// capture-and-retire path the background checkpoint worker takes once
// its policy thresholds fire.
func (d *Database) Compact() error {
	return d.runCheckpoint()
}

// Close stops the background workers, flushes and closes the WAL, and
// releases this data directory from the process-wide open registry.
// Safe to call more than once; only the first call's outcome is
// returned.
func (d *Database) Close() error {
	d.closeOnce.Do(func() {
		if d.cancelWork != nil {
			d.cancelWork()
		}
		if d.workers != nil {
			if err := d.workers.Wait(); err != nil {
				d.log.Error().Err(err).Msg("background worker exited with error")
			}
		}
		if err := d.wal.Close(); err != nil {
			d.closeErr = err
		}
		if d.registeredDir != "" {
			unregisterOpen(d.registeredDir)
		}
	})
	return d.closeErr
}

func mkdirAll(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return strataerr.Wrap(strataerr.Io, err, "create directory %s", path)
	}
	return nil
}

func walSegmentPath(dir string, idx uint32) string {
	return filepath.Join(dir, wal.SegmentFileName(idx))
}

// retentionOrDefault mirrors config.HNSWDefaults/wal.DefaultConfig's
// "zero value means use the stock default" convention for the one
// cross-cutting policy Open doesn't currently expose a config knob
// for: history retention defaults to keeping everything.
func retentionOrDefault(p retention.Policy) retention.Policy {
	if p == nil {
		return retention.KeepAll{}
	}
	return p
}
