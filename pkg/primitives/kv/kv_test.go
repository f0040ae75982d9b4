package kv_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/primitives/kv"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/txn"
	"github.com/stratadb/strata/pkg/value"
	"github.com/stratadb/strata/pkg/wal"
)

type alwaysExists struct{}

func (alwaysExists) BranchExists(ids.BranchId) bool { return true }

type noopDurability struct{}

func (noopDurability) Append(wal.TransactionPayload) error { return nil }

func newFacade(t *testing.T) (*kv.Facade, ids.BranchId) {
	t.Helper()
	store := storage.NewShardedStore()
	manager := txn.NewManager(store, noopDurability{}, alwaysExists{}, zerolog.Nop())
	return kv.New(store, manager, nil), ids.NewBranchId()
}

func testNamespace(branch ids.BranchId) ids.Namespace {
	return ids.NewNamespace("acme", "widgets", "agent-1", branch)
}

func TestFacade_PutThenGet(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	_, err := f.Put(ns, branch, []byte("a"), value.String("hi"))
	require.NoError(t, err)

	vv, ok, err := f.Get(ns, branch, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	s, _ := vv.Value.AsString()
	assert.Equal(t, "hi", s)
}

func TestFacade_GetMissingKeyReturnsNotFound(t *testing.T) {
	f, branch := newFacade(t)
	_, ok, err := f.Get(testNamespace(branch), branch, []byte("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFacade_ExistsAgreesWithGet(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	exists, err := f.Exists(ns, branch, []byte("a"))
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = f.Put(ns, branch, []byte("a"), value.Int(1))
	require.NoError(t, err)

	exists, err = f.Exists(ns, branch, []byte("a"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFacade_DeleteRemovesKey(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	_, err := f.Put(ns, branch, []byte("a"), value.Int(1))
	require.NoError(t, err)

	deleted, err := f.Delete(ns, branch, []byte("a"))
	require.NoError(t, err)
	assert.True(t, deleted)

	_, ok, err := f.Get(ns, branch, []byte("a"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFacade_DeleteMissingKeyReturnsFalseWithoutError(t *testing.T) {
	f, branch := newFacade(t)
	deleted, err := f.Delete(testNamespace(branch), branch, []byte("missing"))
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestFacade_ListReturnsKeysUnderPrefixInOrder(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	for _, k := range []string{"b", "a", "c"} {
		_, err := f.Put(ns, branch, []byte(k), value.String(k))
		require.NoError(t, err)
	}

	out, err := f.List(ns, branch, nil)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "a", string(out[0].Key.UserKey))
	assert.Equal(t, "b", string(out[1].Key.UserKey))
	assert.Equal(t, "c", string(out[2].Key.UserKey))
}

func TestFacade_HistoryRecordsPriorVersionsOnOverwrite(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	_, err := f.Put(ns, branch, []byte("a"), value.Int(1))
	require.NoError(t, err)
	_, err = f.Put(ns, branch, []byte("a"), value.Int(2))
	require.NoError(t, err)

	hist, err := f.History(ns, branch, []byte("a"))
	require.NoError(t, err)
	require.Len(t, hist, 1, "the first Put has no prior version to record, only the second overwrite does")
	n, _ := hist[0].Value.AsInt()
	assert.Equal(t, int64(1), n)
}

func TestFacade_PutRejectsReservedKeyPrefix(t *testing.T) {
	f, branch := newFacade(t)
	_, err := f.Put(testNamespace(branch), branch, []byte(ids.ReservedKeyPrefix+"x"), value.Int(1))
	assert.Error(t, err)
}
