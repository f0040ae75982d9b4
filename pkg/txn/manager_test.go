package txn_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/strataerr"
	"github.com/stratadb/strata/pkg/txn"
	"github.com/stratadb/strata/pkg/value"
	"github.com/stratadb/strata/pkg/wal"
)

// alwaysExists treats every branch as registered, for tests that don't
// care about branch lifecycle.
type alwaysExists struct{}

func (alwaysExists) BranchExists(ids.BranchId) bool { return true }

// recordingDurability is a no-op wal.Writer substitute that counts
// appended payloads, optionally failing every Append.
type recordingDurability struct {
	appended int
	failNext bool
}

func (d *recordingDurability) Append(wal.TransactionPayload) error {
	d.appended++
	if d.failNext {
		return assert.AnError
	}
	return nil
}

func newManager(t *testing.T) (*txn.Manager, *storage.ShardedStore, *recordingDurability) {
	t.Helper()
	store := storage.NewShardedStore()
	dur := &recordingDurability{}
	return txn.NewManager(store, dur, alwaysExists{}, zerolog.Nop()), store, dur
}

func testKey(branch ids.BranchId, userKey string) ids.Key {
	ns := ids.NewNamespace("acme", "widgets", "agent-1", branch)
	return ids.NewKey(ns, ids.TagKv, []byte(userKey))
}

func TestManager_CommitAppliesWritesAndPersists(t *testing.T) {
	m, store, dur := newManager(t)
	branch := ids.NewBranchId()
	key := testKey(branch, "a")

	ctx, err := m.Begin(branch)
	require.NoError(t, err)
	ctx.Put(key, value.String("hi"))

	version, err := m.Commit(ctx, nil)
	require.NoError(t, err)
	assert.NotZero(t, version.Value)
	assert.Equal(t, 1, dur.appended)
	assert.Equal(t, uint64(1), m.CommittedCount())

	got, ok := store.Get(key, ids.Now())
	require.True(t, ok)
	s, _ := got.Value.AsString()
	assert.Equal(t, "hi", s)
}

func TestManager_BeginRejectsUnknownBranch(t *testing.T) {
	store := storage.NewShardedStore()
	dur := &recordingDurability{}
	m := txn.NewManager(store, dur, rejectingChecker{}, zerolog.Nop())

	_, err := m.Begin(ids.NewBranchId())
	require.Error(t, err)
	assert.True(t, strataerr.Is(err, strataerr.BranchNotFound))
}

type rejectingChecker struct{}

func (rejectingChecker) BranchExists(ids.BranchId) bool { return false }

func TestManager_CommitDetectsReadWriteConflict(t *testing.T) {
	m, _, _ := newManager(t)
	branch := ids.NewBranchId()
	key := testKey(branch, "a")

	seed, err := m.Begin(branch)
	require.NoError(t, err)
	seed.Put(key, value.Int(1))
	_, err = m.Commit(seed, nil)
	require.NoError(t, err)

	reader, err := m.Begin(branch)
	require.NoError(t, err)
	_, ok := reader.Read(key)
	require.True(t, ok)

	writer, err := m.Begin(branch)
	require.NoError(t, err)
	writer.Put(key, value.Int(2))
	_, err = m.Commit(writer, nil)
	require.NoError(t, err)

	reader.Put(key, value.Int(3))
	_, err = m.Commit(reader, nil)
	require.Error(t, err)
	assert.True(t, strataerr.Is(err, strataerr.Conflict))
	assert.Equal(t, uint64(1), m.ConflictCount())
}

func TestManager_CommitDetectsCasConflict(t *testing.T) {
	m, _, _ := newManager(t)
	branch := ids.NewBranchId()
	key := testKey(branch, "cell")

	seed, err := m.Begin(branch)
	require.NoError(t, err)
	seed.Put(key, value.Int(1))
	v1, err := m.Commit(seed, nil)
	require.NoError(t, err)

	other, err := m.Begin(branch)
	require.NoError(t, err)
	other.Put(key, value.Int(2))
	_, err = m.Commit(other, nil)
	require.NoError(t, err)

	stale, err := m.Begin(branch)
	require.NoError(t, err)
	stale.Cas(key, v1, value.Int(99))
	_, err = m.Commit(stale, nil)
	require.Error(t, err)
	assert.True(t, strataerr.Is(err, strataerr.Conflict))
}

func TestManager_CommitTwiceRejectsReuse(t *testing.T) {
	m, _, _ := newManager(t)
	branch := ids.NewBranchId()

	ctx, err := m.Begin(branch)
	require.NoError(t, err)
	ctx.Put(testKey(branch, "a"), value.Int(1))
	_, err = m.Commit(ctx, nil)
	require.NoError(t, err)

	_, err = m.Commit(ctx, nil)
	require.Error(t, err)
	assert.True(t, strataerr.Is(err, strataerr.InvalidInput))
}

func TestManager_RollbackDiscardsStagedWrites(t *testing.T) {
	m, store, _ := newManager(t)
	branch := ids.NewBranchId()
	key := testKey(branch, "a")

	ctx, err := m.Begin(branch)
	require.NoError(t, err)
	ctx.Put(key, value.Int(1))
	m.Rollback(ctx)

	_, ok := store.Get(key, ids.Now())
	assert.False(t, ok, "a rolled-back transaction must not be visible in the store")
}

func TestManager_RestoreVersionNeverMovesBackward(t *testing.T) {
	m, _, _ := newManager(t)
	m.RestoreVersion(100)
	assert.Equal(t, uint64(100), m.CurrentVersion())

	m.RestoreVersion(10)
	assert.Equal(t, uint64(100), m.CurrentVersion(), "RestoreVersion must never move the counter backward")
}

func TestManager_CommitWithDurabilityFailureAbortsTransaction(t *testing.T) {
	store := storage.NewShardedStore()
	dur := &recordingDurability{failNext: true}
	m := txn.NewManager(store, dur, alwaysExists{}, zerolog.Nop())
	branch := ids.NewBranchId()
	key := testKey(branch, "a")

	ctx, err := m.Begin(branch)
	require.NoError(t, err)
	ctx.Put(key, value.Int(1))

	_, err = m.Commit(ctx, nil)
	require.Error(t, err)

	_, ok := store.Get(key, ids.Now())
	assert.False(t, ok, "a transaction whose WAL append failed must not be applied to the store")
}
