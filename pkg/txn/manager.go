package txn

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/strataerr"
	"github.com/stratadb/strata/pkg/wal"
)

// BranchChecker reports whether a branch id is registered, so Begin
// can reject transactions on nonexistent branches up front rather than
// lazily at first read. pkg/primitives/branch
// implements this; txn only depends on the narrow interface to avoid
// an import cycle.
type BranchChecker interface {
	BranchExists(ids.BranchId) bool
}

// Durability is the subset of *wal.Writer the manager needs, narrowed
// to an interface so tests can substitute a no-op.
type Durability interface {
	Append(wal.TransactionPayload) error
}

// Manager mediates every mutation across every primitive: it assigns
// commit versions from one global monotonic counter, validates OCC
// read/CAS sets at commit time, and persists through Durability before
// applying to Store.
type Manager struct {
	store      *storage.ShardedStore
	durability Durability
	branches   BranchChecker
	log        zerolog.Logger

	nextVersion atomic.Uint64

	locksMu sync.Mutex
	locks   map[ids.BranchId]*sync.Mutex

	committed atomic.Uint64
	conflicts atomic.Uint64
}

// NewManager builds a Manager over store, persisting commits through
// durability and consulting branches for branch existence.
func NewManager(store *storage.ShardedStore, durability Durability, branches BranchChecker, log zerolog.Logger) *Manager {
	return &Manager{
		store:      store,
		durability: durability,
		branches:   branches,
		log:        log,
		locks:      make(map[ids.BranchId]*sync.Mutex),
	}
}

// RestoreVersion fast-forwards the commit version counter past a value
// already observed durable (recovery's WAL-tail replay, or a loaded
// snapshot's watermark), so freshly minted versions never collide with
// ones already on disk.
func (m *Manager) RestoreVersion(v uint64) {
	for {
		cur := m.nextVersion.Load()
		if v <= cur {
			return
		}
		if m.nextVersion.CompareAndSwap(cur, v) {
			return
		}
	}
}

// CommittedCount returns the number of transactions committed since
// the manager was constructed, for the checkpoint coordinator's
// commit-count threshold.
func (m *Manager) CommittedCount() uint64 { return m.committed.Load() }

// ConflictCount returns the number of commits aborted on an OCC
// read/CAS conflict since the manager was constructed.
func (m *Manager) ConflictCount() uint64 { return m.conflicts.Load() }

// CurrentVersion returns the highest commit version minted so far, the
// watermark a checkpoint capture records as "every write up to and
// including this version is reflected in the snapshot."
func (m *Manager) CurrentVersion() uint64 { return m.nextVersion.Load() }

func (m *Manager) lockFor(branch ids.BranchId) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[branch]
	if !ok {
		l = &sync.Mutex{}
		m.locks[branch] = l
	}
	return l
}

// ForgetBranch drops the per-branch commit lock entry, used by branch
// deletion cascade once no transaction can
// still be holding it.
func (m *Manager) ForgetBranch(branch ids.BranchId) {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	delete(m.locks, branch)
}

// Begin starts a new transaction against branch, snapshotting the
// store for its reads. branch MUST already exist.
func (m *Manager) Begin(branch ids.BranchId) (*Context, error) {
	if !m.branches.BranchExists(branch) {
		return nil, strataerr.New(strataerr.BranchNotFound, "branch %s does not exist", branch)
	}
	return newContext(branch, m.store.Snapshot()), nil
}

// VectorApplier lets a transaction's vector writes be framed inside
// the same commit barrier as its KV/JSON/Event/State writes: Apply runs after the WAL record is durable and before
// status flips to Committed.
type VectorApplier func() error

// Commit validates ctx's read and CAS sets against the live store,
// allocates a commit version, persists through the WAL, applies to
// the store, optionally runs applyVector, and only then flips status
// to Committed.
func (m *Manager) Commit(ctx *Context, applyVector VectorApplier) (ids.Version, error) {
	if ctx.Status != Active {
		return ids.Version{}, strataerr.New(strataerr.InvalidInput, "transaction is not active")
	}

	lock := m.lockFor(ctx.Branch)
	lock.Lock()
	defer lock.Unlock()

	if err := m.validate(ctx); err != nil {
		ctx.Status = Aborted
		if strataerr.Is(err, strataerr.Conflict) {
			m.conflicts.Add(1)
		}
		return ids.Version{}, err
	}

	commitVersion := ids.Txn(m.nextVersion.Add(1))
	ts := ids.Now()

	payload := buildPayload(ctx, commitVersion)

	if err := m.durability.Append(payload); err != nil {
		ctx.Status = Aborted
		return ids.Version{}, strataerr.Wrap(strataerr.Io, err, "persist transaction")
	}

	m.apply(ctx, commitVersion, ts)

	if applyVector != nil {
		if err := applyVector(); err != nil {
			// The WAL record and KV/JSON/Event/State effects are
			// already durable and applied; a failing vector backend
			// update cannot be unwound without violating "durable once
			// committed." It is surfaced to the caller so it can be
			// retried or reported, but the transaction itself is
			// already committed per the KV/WAL side of the barrier.
			ctx.Status = Committed
			m.committed.Add(1)
			return commitVersion, strataerr.Wrap(strataerr.Internal, err, "apply vector backend after commit")
		}
	}

	ctx.Status = Committed
	m.committed.Add(1)
	return commitVersion, nil
}

// Rollback marks ctx Aborted, discarding its staged writes. No store
// or WAL state was ever touched for an uncommitted transaction, so
// this is purely a status change.
func (m *Manager) Rollback(ctx *Context) {
	if ctx.Status == Active {
		ctx.Status = Aborted
	}
}

func (m *Manager) validate(ctx *Context) error {
	for _, re := range ctx.readSet {
		current, ok := m.store.RawGet(re.Key)
		if !ok {
			if re.Version != (ids.Version{}) {
				return strataerr.New(strataerr.Conflict, "key %x was deleted since read", re.Key.UserKey)
			}
			continue
		}
		if current.Version != re.Version {
			return strataerr.New(strataerr.Conflict, "key %x changed since read", re.Key.UserKey)
		}
	}
	for _, cas := range ctx.casSet {
		current, ok := m.store.RawGet(cas.Key)
		if !ok {
			if cas.Expected != (ids.Version{}) {
				return strataerr.New(strataerr.Conflict, "cas key %x does not exist", cas.Key.UserKey)
			}
			continue
		}
		if current.IsTombstone || current.Version != cas.Expected {
			return strataerr.New(strataerr.Conflict, "cas key %x expected version %s, got %s", cas.Key.UserKey, cas.Expected, current.Version)
		}
	}
	return nil
}

func buildPayload(ctx *Context, version ids.Version) wal.TransactionPayload {
	payload := wal.TransactionPayload{Version: version.Value}
	for enc, val := range ctx.writeSet {
		payload.Puts = append(payload.Puts, wal.PutEntry{Key: ctx.writeKeys[enc], Value: val})
	}
	for _, cas := range ctx.casSet {
		payload.Puts = append(payload.Puts, wal.PutEntry{Key: cas.Key, Value: cas.NewValue})
	}
	for _, key := range ctx.deleteSet {
		payload.Deletes = append(payload.Deletes, key)
	}
	return payload
}

func (m *Manager) apply(ctx *Context, version ids.Version, ts ids.Timestamp) {
	for enc, val := range ctx.writeSet {
		m.store.Put(ctx.writeKeys[enc], val, version, ts)
	}
	for _, cas := range ctx.casSet {
		m.store.Put(cas.Key, cas.NewValue, version, ts)
	}
	for _, key := range ctx.deleteSet {
		m.store.Delete(key, version, ts)
	}
}
