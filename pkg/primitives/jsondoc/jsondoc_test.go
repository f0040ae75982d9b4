package jsondoc_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/primitives/jsondoc"
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

func newFacade(t *testing.T) (*jsondoc.Facade, ids.BranchId) {
	t.Helper()
	store := storage.NewShardedStore()
	manager := txn.NewManager(store, noopDurability{}, alwaysExists{}, zerolog.Nop())
	return jsondoc.New(store, manager), ids.NewBranchId()
}

func testNamespace(branch ids.BranchId) ids.Namespace {
	return ids.NewNamespace("acme", "widgets", "agent-1", branch)
}

func TestFacade_CreateThenGetWholeDocument(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	root := value.Object(map[string]value.Value{"name": value.String("alice")})
	_, err := f.Create(ns, branch, []byte("doc1"), root)
	require.NoError(t, err)

	got, found, err := f.Get(ns, branch, []byte("doc1"), "$")
	require.NoError(t, err)
	require.True(t, found)
	obj, ok := got.AsObject()
	require.True(t, ok)
	s, _ := obj["name"].AsString()
	assert.Equal(t, "alice", s)
}

func TestFacade_CreateRejectsNonObjectRoot(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	_, err := f.Create(ns, branch, []byte("doc1"), value.String("not an object"))
	assert.Error(t, err)
}

func TestFacade_GetMissingDocumentReturnsNotFound(t *testing.T) {
	f, branch := newFacade(t)
	_, found, err := f.Get(testNamespace(branch), branch, []byte("missing"), "$")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFacade_GetAtFieldPath(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	root := value.Object(map[string]value.Value{
		"profile": value.Object(map[string]value.Value{"age": value.Int(30)}),
	})
	_, err := f.Create(ns, branch, []byte("doc1"), root)
	require.NoError(t, err)

	got, found, err := f.Get(ns, branch, []byte("doc1"), "$.profile.age")
	require.NoError(t, err)
	require.True(t, found)
	n, _ := got.AsInt()
	assert.Equal(t, int64(30), n)
}

func TestFacade_SetCreatesIntermediateObjects(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	_, err := f.Set(ns, branch, []byte("doc1"), "$.profile.age", value.Int(42))
	require.NoError(t, err)

	got, found, err := f.Get(ns, branch, []byte("doc1"), "$.profile.age")
	require.NoError(t, err)
	require.True(t, found)
	n, _ := got.AsInt()
	assert.Equal(t, int64(42), n)
}

func TestFacade_SetRejectsDocumentExceedingArrayLengthLimit(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	items := make([]value.Value, jsondoc.MaxArrayLength+1)
	for i := range items {
		items[i] = value.Int(int64(i))
	}
	_, err := f.Set(ns, branch, []byte("doc1"), "$.items", value.Array(items...))
	require.Error(t, err)
	assert.True(t, strataerr.Is(err, strataerr.LimitExceeded))

	_, found, getErr := f.Get(ns, branch, []byte("doc1"), "$.items")
	require.NoError(t, getErr)
	assert.False(t, found, "a rejected mutation must never partially land")
}

func TestFacade_DeleteAtPathRemovesField(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	root := value.Object(map[string]value.Value{"a": value.Int(1), "b": value.Int(2)})
	_, err := f.Create(ns, branch, []byte("doc1"), root)
	require.NoError(t, err)

	deleted, err := f.DeleteAtPath(ns, branch, []byte("doc1"), "$.a")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, found, err := f.Get(ns, branch, []byte("doc1"), "$.a")
	require.NoError(t, err)
	assert.False(t, found)

	got, found, err := f.Get(ns, branch, []byte("doc1"), "$.b")
	require.NoError(t, err)
	require.True(t, found)
	n, _ := got.AsInt()
	assert.Equal(t, int64(2), n)
}

func TestFacade_DeleteAtPathRejectsDocumentRoot(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)
	_, err := f.Create(ns, branch, []byte("doc1"), value.Object(nil))
	require.NoError(t, err)

	_, err = f.DeleteAtPath(ns, branch, []byte("doc1"), "$")
	assert.Error(t, err)
}

func TestFacade_MergeAppliesRFC7396Semantics(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	root := value.Object(map[string]value.Value{
		"a": value.Int(1),
		"b": value.Int(2),
	})
	_, err := f.Create(ns, branch, []byte("doc1"), root)
	require.NoError(t, err)

	patch := value.Object(map[string]value.Value{
		"b": value.Null,
		"c": value.Int(3),
	})
	_, err = f.Merge(ns, branch, []byte("doc1"), "$", patch)
	require.NoError(t, err)

	got, found, err := f.Get(ns, branch, []byte("doc1"), "$")
	require.NoError(t, err)
	require.True(t, found)
	obj, _ := got.AsObject()
	_, hasB := obj["b"]
	assert.False(t, hasB, "a null-valued field in the patch must delete that field")
	n, _ := obj["c"].AsInt()
	assert.Equal(t, int64(3), n)
	n, _ = obj["a"].AsInt()
	assert.Equal(t, int64(1), n, "fields absent from the patch must be left untouched")
}

func TestFacade_DestroyRemovesDocument(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)

	_, err := f.Create(ns, branch, []byte("doc1"), value.Object(nil))
	require.NoError(t, err)

	destroyed, err := f.Destroy(ns, branch, []byte("doc1"))
	require.NoError(t, err)
	assert.True(t, destroyed)

	_, found, err := f.Get(ns, branch, []byte("doc1"), "$")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFacade_DestroyMissingDocumentReturnsFalse(t *testing.T) {
	f, branch := newFacade(t)
	destroyed, err := f.Destroy(testNamespace(branch), branch, []byte("missing"))
	require.NoError(t, err)
	assert.False(t, destroyed)
}
