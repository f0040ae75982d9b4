package vector_test

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/strataerr"
	"github.com/stratadb/strata/pkg/txn"
	"github.com/stratadb/strata/pkg/value"
	"github.com/stratadb/strata/pkg/vector"
	"github.com/stratadb/strata/pkg/wal"
)

type alwaysExists struct{}

func (alwaysExists) BranchExists(ids.BranchId) bool { return true }

type noopDurability struct{}

func (noopDurability) Append(wal.TransactionPayload) error { return nil }

func newFacade(t *testing.T) (*vector.Facade, ids.BranchId) {
	t.Helper()
	store := storage.NewShardedStore()
	manager := txn.NewManager(store, noopDurability{}, alwaysExists{}, zerolog.Nop())
	return vector.New(store, manager), ids.NewBranchId()
}

func testNamespace(branch ids.BranchId) ids.Namespace {
	return ids.NewNamespace("acme", "widgets", "agent-1", branch)
}

func testConfig() vector.Config {
	return vector.Config{
		Dimension:      3,
		Metric:         vector.Cosine,
		Dtype:          vector.F32,
		M:              vector.DefaultM,
		EfConstruction: vector.DefaultEfConstruction,
		EfSearch:       vector.DefaultEfSearch,
	}
}

func TestFacade_CreateCollectionTwiceFailsAlreadyExists(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)
	require.NoError(t, f.CreateCollection(ns, branch, "docs", testConfig()))

	err := f.CreateCollection(ns, branch, "docs", testConfig())
	require.Error(t, err)
	assert.True(t, strataerr.Is(err, strataerr.AlreadyExists))
}

func TestFacade_CreateCollectionRejectsInvalidConfig(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)
	bad := testConfig()
	bad.Dimension = 0
	err := f.CreateCollection(ns, branch, "docs", bad)
	assert.Error(t, err)
}

func TestFacade_UpsertThenGet(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)
	require.NoError(t, f.CreateCollection(ns, branch, "docs", testConfig()))

	_, err := f.Upsert(ns, branch, "docs", "a", []float32{1, 0, 0}, value.Object(map[string]value.Value{"tag": value.String("x")}))
	require.NoError(t, err)

	emb, meta, _, ok, err := f.Get(ns, branch, "docs", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0, 0}, emb)
	obj, _ := meta.AsObject()
	s, _ := obj["tag"].AsString()
	assert.Equal(t, "x", s)
}

func TestFacade_UpsertRejectsDimensionMismatch(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)
	require.NoError(t, f.CreateCollection(ns, branch, "docs", testConfig()))

	_, err := f.Upsert(ns, branch, "docs", "a", []float32{1, 0}, value.Null)
	require.Error(t, err)
	assert.True(t, strataerr.Is(err, strataerr.DimensionMismatch))
}

func TestFacade_UpsertRejectsNonFiniteComponent(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)
	require.NoError(t, f.CreateCollection(ns, branch, "docs", testConfig()))

	_, err := f.Upsert(ns, branch, "docs", "a", []float32{1, 0, float32(math.NaN())}, value.Null)
	require.Error(t, err)
	assert.True(t, strataerr.Is(err, strataerr.InvalidEmbedding))
}

func TestFacade_UpsertSameKeyTwiceUpdatesRatherThanDuplicates(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)
	require.NoError(t, f.CreateCollection(ns, branch, "docs", testConfig()))

	v1, err := f.Upsert(ns, branch, "docs", "a", []float32{1, 0, 0}, value.Null)
	require.NoError(t, err)
	v2, err := f.Upsert(ns, branch, "docs", "a", []float32{0, 1, 0}, value.Null)
	require.NoError(t, err)
	assert.Equal(t, v1, v2, "re-upserting the same key must reuse its VectorId rather than minting a new one")

	emb, _, _, ok, err := f.Get(ns, branch, "docs", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1, 0}, emb)
}

func TestFacade_DeleteRemovesRecordAndSearch(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)
	require.NoError(t, f.CreateCollection(ns, branch, "docs", testConfig()))

	_, err := f.Upsert(ns, branch, "docs", "a", []float32{1, 0, 0}, value.Null)
	require.NoError(t, err)

	deleted, err := f.Delete(ns, branch, "docs", "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, _, _, ok, err := f.Get(ns, branch, "docs", "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFacade_SearchReturnsNearestMatch(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)
	cfg := testConfig()
	cfg.Metric = vector.Euclidean
	require.NoError(t, f.CreateCollection(ns, branch, "docs", cfg))

	_, err := f.Upsert(ns, branch, "docs", "near", []float32{0, 0, 0}, value.Null)
	require.NoError(t, err)
	_, err = f.Upsert(ns, branch, "docs", "far", []float32{100, 100, 100}, value.Null)
	require.NoError(t, err)

	res, err := f.Search(ns, branch, "docs", []float32{0, 0, 0}, 1, nil, vector.SearchBudget{})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)

	emb, _, v, ok, err := f.Get(ns, branch, "docs", "near")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0, 0, 0}, emb)
	assert.Equal(t, v, ids.Counter(res.Matches[0].ID))
}

func TestFacade_DeleteCollectionRemovesEverything(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)
	require.NoError(t, f.CreateCollection(ns, branch, "docs", testConfig()))
	_, err := f.Upsert(ns, branch, "docs", "a", []float32{1, 0, 0}, value.Null)
	require.NoError(t, err)

	deleted, err := f.DeleteCollection(ns, branch, "docs")
	require.NoError(t, err)
	assert.True(t, deleted)

	names, err := f.ListCollections(ns, branch)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestFacade_ListCollectionsReturnsAllNames(t *testing.T) {
	f, branch := newFacade(t)
	ns := testNamespace(branch)
	require.NoError(t, f.CreateCollection(ns, branch, "docs", testConfig()))
	require.NoError(t, f.CreateCollection(ns, branch, "images", testConfig()))

	names, err := f.ListCollections(ns, branch)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"docs", "images"}, names)
}

func TestFacade_DropBranchEvictsCachedCollectionsForThatBranchOnly(t *testing.T) {
	store := storage.NewShardedStore()
	manager := txn.NewManager(store, noopDurability{}, alwaysExists{}, zerolog.Nop())
	f := vector.New(store, manager)

	b1, b2 := ids.NewBranchId(), ids.NewBranchId()
	require.NoError(t, f.CreateCollection(testNamespace(b1), b1, "docs", testConfig()))
	require.NoError(t, f.CreateCollection(testNamespace(b2), b2, "docs", testConfig()))

	f.DropBranch(b1)

	names, err := f.ListCollections(testNamespace(b2), b2)
	require.NoError(t, err)
	assert.Contains(t, names, "docs", "dropping one branch's cache must not disturb another branch's collection")
}
