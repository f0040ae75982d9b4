package state_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/primitives/state"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/strataerr"
	"github.com/stratadb/strata/pkg/txn"
	"github.com/stratadb/strata/pkg/value"
	"github.com/stratadb/strata/pkg/wal"
)

type alwaysExists struct{}

func (alwaysExists) BranchExists(ids.BranchId) bool { return true }

type noopDurability struct{}

func (noopDurability) Append(wal.TransactionPayload) error { return nil }

func newFacade(t *testing.T) (*state.Facade, ids.BranchId) {
	t.Helper()
	store := storage.NewShardedStore()
	manager := txn.NewManager(store, noopDurability{}, alwaysExists{}, zerolog.Nop())
	return state.New(store, manager, nil), ids.NewBranchId()
}

func testNamespace(branch ids.BranchId) ids.Namespace {
	return ids.NewNamespace("acme", "widgets", "agent-1", branch)
}

func TestFacade_InitCreatesCellAtCounterZero(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	require.NoError(t, f.Init(ns, branch, []byte("cell"), value.Int(1)))

	v, counter, ok, err := f.Read(ns, branch, []byte("cell"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(0), counter)
	n, _ := v.AsInt()
	assert.Equal(t, int64(1), n)
}

func TestFacade_InitTwiceFailsAlreadyExists(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	require.NoError(t, f.Init(ns, branch, []byte("cell"), value.Int(1)))
	err := f.Init(ns, branch, []byte("cell"), value.Int(2))
	require.Error(t, err)
	assert.True(t, strataerr.Is(err, strataerr.AlreadyExists))
}

func TestFacade_SetIncrementsCounterEachCall(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	c1, err := f.Set(ns, branch, []byte("cell"), value.Int(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), c1)

	c2, err := f.Set(ns, branch, []byte("cell"), value.Int(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c2)
}

func TestFacade_CasSucceedsOnMatchingCounter(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	require.NoError(t, f.Init(ns, branch, []byte("cell"), value.Int(1)))

	newCounter, matched, err := f.Cas(ns, branch, []byte("cell"), 0, value.Int(2))
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, uint64(1), newCounter)

	v, counter, _, err := f.Read(ns, branch, []byte("cell"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), counter)
	n, _ := v.AsInt()
	assert.Equal(t, int64(2), n)
}

func TestFacade_CasFailsOnStaleCounterWithoutError(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	require.NoError(t, f.Init(ns, branch, []byte("cell"), value.Int(1)))

	_, matched, err := f.Cas(ns, branch, []byte("cell"), 5, value.Int(2))
	require.NoError(t, err, "a counter mismatch must not surface as an error")
	assert.False(t, matched)
}

func TestFacade_DeleteRemovesCell(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	require.NoError(t, f.Init(ns, branch, []byte("cell"), value.Int(1)))
	deleted, err := f.Delete(ns, branch, []byte("cell"))
	require.NoError(t, err)
	assert.True(t, deleted)

	_, _, ok, err := f.Read(ns, branch, []byte("cell"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFacade_HistoryRecordsPriorValueOnSet(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	require.NoError(t, f.Init(ns, branch, []byte("cell"), value.Int(1)))
	_, err := f.Set(ns, branch, []byte("cell"), value.Int(2))
	require.NoError(t, err)

	hist, err := f.History(ns, branch, []byte("cell"))
	require.NoError(t, err)
	require.Len(t, hist, 1)
}
