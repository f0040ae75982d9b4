package event_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/primitives/event"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/txn"
	"github.com/stratadb/strata/pkg/value"
	"github.com/stratadb/strata/pkg/wal"
)

type alwaysExists struct{}

func (alwaysExists) BranchExists(ids.BranchId) bool { return true }

type noopDurability struct{}

func (noopDurability) Append(wal.TransactionPayload) error { return nil }

func newFacade(t *testing.T) (*event.Facade, ids.BranchId) {
	t.Helper()
	store := storage.NewShardedStore()
	manager := txn.NewManager(store, noopDurability{}, alwaysExists{}, zerolog.Nop())
	return event.New(store, manager), ids.NewBranchId()
}

func testNamespace(branch ids.BranchId) ids.Namespace {
	return ids.NewNamespace("acme", "widgets", "agent-1", branch)
}

func TestFacade_AppendAssignsSequentialSequenceNumbers(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	e0, err := f.Append(ns, branch, "signup", value.String("alice"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), e0.Sequence)
	assert.Equal(t, event.Zero32, e0.PrevHash)

	e1, err := f.Append(ns, branch, "signup", value.String("bob"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e1.Sequence)
	assert.Equal(t, e0.Hash, e1.PrevHash, "each event's prev_hash must chain from the previous event's hash")
}

func TestFacade_ReadReturnsAppendedEntry(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	appended, err := f.Append(ns, branch, "signup", value.String("alice"))
	require.NoError(t, err)

	got, ok, err := f.Read(ns, branch, appended.Sequence)
	require.NoError(t, err)
	require.True(t, ok)
	s, _ := got.Payload.AsString()
	assert.Equal(t, "alice", s)
	assert.Equal(t, appended.Hash, got.Hash)
}

func TestFacade_LenTracksAppendCount(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	n, err := f.Len(ns, branch)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	for i := 0; i < 3; i++ {
		_, err := f.Append(ns, branch, "tick", value.Int(int64(i)))
		require.NoError(t, err)
	}

	n, err = f.Len(ns, branch)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}

func TestFacade_ReadByTypeFiltersToMatchingEvents(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	_, err := f.Append(ns, branch, "signup", value.String("alice"))
	require.NoError(t, err)
	_, err = f.Append(ns, branch, "login", value.String("alice"))
	require.NoError(t, err)
	_, err = f.Append(ns, branch, "signup", value.String("bob"))
	require.NoError(t, err)

	signups, err := f.ReadByType(ns, branch, "signup")
	require.NoError(t, err)
	require.Len(t, signups, 2)
	for _, e := range signups {
		assert.Equal(t, "signup", e.EventType)
	}
}

func TestFacade_VerifyChainPassesForIntactChain(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	for i := 0; i < 5; i++ {
		_, err := f.Append(ns, branch, "tick", value.Int(int64(i)))
		require.NoError(t, err)
	}

	assert.NoError(t, f.VerifyChain(ns, branch))
}

func TestFacade_AppendIsIsolatedPerBranch(t *testing.T) {
	store := storage.NewShardedStore()
	manager := txn.NewManager(store, noopDurability{}, alwaysExists{}, zerolog.Nop())
	f := event.New(store, manager)

	b1, b2 := ids.NewBranchId(), ids.NewBranchId()
	ns := testNamespace(b1)

	_, err := f.Append(ns, b1, "tick", value.Int(1))
	require.NoError(t, err)

	n, err := f.Len(ns, b2)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n, "a fresh branch must not see another branch's event log")
}
