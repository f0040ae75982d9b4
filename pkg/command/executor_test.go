package command_test

import (
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/pkg/command"
	"github.com/stratadb/strata/pkg/config"
	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/primitives/branch"
	"github.com/stratadb/strata/pkg/primitives/event"
	"github.com/stratadb/strata/pkg/primitives/jsondoc"
	"github.com/stratadb/strata/pkg/primitives/kv"
	"github.com/stratadb/strata/pkg/primitives/state"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/strataerr"
	"github.com/stratadb/strata/pkg/txn"
	"github.com/stratadb/strata/pkg/value"
	"github.com/stratadb/strata/pkg/vector"
	"github.com/stratadb/strata/pkg/wal"
)

type noopDurability struct{}

func (noopDurability) Append(wal.TransactionPayload) error { return nil }

func testNamespace() ids.Namespace {
	return ids.NewNamespace("acme", "widgets", "agent-1", ids.BranchId{})
}

// lazyChecker breaks the constructor cycle between txn.Manager (which
// needs a BranchChecker up front) and branch.Facade (which needs a
// *txn.Manager to commit its own metadata writes).
type lazyChecker struct {
	facade atomic.Pointer[branch.Facade]
}

func (c *lazyChecker) BranchExists(id ids.BranchId) bool {
	f := c.facade.Load()
	if f == nil {
		return id == (ids.BranchId{})
	}
	return f.BranchExists(id)
}

func newExecutor(t *testing.T, mode config.AccessMode) *command.Executor {
	t.Helper()
	store := storage.NewShardedStore()
	checker := &lazyChecker{}
	manager := txn.NewManager(store, noopDurability{}, checker, zerolog.Nop())

	branchFacade := branch.New(store, manager)
	checker.facade.Store(branchFacade)

	vectorFacade := vector.New(store, manager)
	branchFacade.AttachVectorDropper(vectorFacade)

	kvFacade := kv.New(store, manager, nil)
	eventFacade := event.New(store, manager)
	stateFacade := state.New(store, manager, nil)
	jsonFacade := jsondoc.New(store, manager)

	return command.New(testNamespace(), ids.BranchId{}, mode,
		kvFacade, eventFacade, stateFacade, jsonFacade, vectorFacade, branchFacade, manager)
}

func TestExecutor_PingAlwaysSucceeds(t *testing.T) {
	e := newExecutor(t, config.ReadWrite)
	out, err := e.Execute(command.Ping{})
	require.NoError(t, err)
	assert.Equal(t, command.Unit{}, out)
}

func TestExecutor_ReadOnlyRejectsMutatingCommand(t *testing.T) {
	e := newExecutor(t, config.ReadOnly)
	_, err := e.Execute(command.KvPut{Key: []byte("a"), Value: value.Int(1)})
	require.Error(t, err)
	assert.True(t, strataerr.Is(err, strataerr.ReadOnly))
}

func TestExecutor_ReadOnlyAllowsReadCommand(t *testing.T) {
	e := newExecutor(t, config.ReadOnly)
	out, err := e.Execute(command.KvGet{Key: []byte("a")})
	require.NoError(t, err)
	got, ok := out.(command.MaybeVersionedOutput)
	require.True(t, ok)
	assert.False(t, got.Found)
}

func TestExecutor_KvPutThenGet(t *testing.T) {
	e := newExecutor(t, config.ReadWrite)
	_, err := e.Execute(command.KvPut{Key: []byte("a"), Value: value.String("hi")})
	require.NoError(t, err)

	out, err := e.Execute(command.KvGet{Key: []byte("a")})
	require.NoError(t, err)
	got := out.(command.MaybeVersionedOutput)
	require.True(t, got.Found)
	s, _ := got.Value.Value.AsString()
	assert.Equal(t, "hi", s)
}

func TestExecutor_BranchCreateThenGet(t *testing.T) {
	e := newExecutor(t, config.ReadWrite)
	out, err := e.Execute(command.BranchCreate{Name: "feature-x"})
	require.NoError(t, err)
	created := out.(command.BranchWithVersionOutput)
	assert.Equal(t, "feature-x", created.Info.Name)

	out, err = e.Execute(command.BranchGet{Name: "feature-x"})
	require.NoError(t, err)
	got := out.(command.BranchOutput)
	assert.True(t, got.Found)
}

func TestExecutor_ExplicitTxnStagesKvWritesUntilCommit(t *testing.T) {
	e := newExecutor(t, config.ReadWrite)
	out, err := e.Execute(command.TxnBegin{})
	require.NoError(t, err)
	handle := out.(command.TxnHandleOutput).Handle

	_, err = e.Execute(command.KvPut{Key: []byte("a"), Value: value.Int(1), Txn: handle})
	require.NoError(t, err)

	out, err = e.Execute(command.KvGet{Key: []byte("a")})
	require.NoError(t, err)
	assert.False(t, out.(command.MaybeVersionedOutput).Found, "a staged-but-uncommitted write must not be visible yet")

	_, err = e.Execute(command.TxnCommit{Txn: handle})
	require.NoError(t, err)

	out, err = e.Execute(command.KvGet{Key: []byte("a")})
	require.NoError(t, err)
	assert.True(t, out.(command.MaybeVersionedOutput).Found)
}

func TestExecutor_ExplicitTxnRollbackDiscardsStagedWrites(t *testing.T) {
	e := newExecutor(t, config.ReadWrite)
	out, err := e.Execute(command.TxnBegin{})
	require.NoError(t, err)
	handle := out.(command.TxnHandleOutput).Handle

	_, err = e.Execute(command.KvPut{Key: []byte("a"), Value: value.Int(1), Txn: handle})
	require.NoError(t, err)
	_, err = e.Execute(command.TxnRollback{Txn: handle})
	require.NoError(t, err)

	_, err = e.Execute(command.TxnCommit{Txn: handle})
	require.Error(t, err, "a rolled-back handle must not be reusable")
}

func TestExecutor_VectorRoundTripThroughCommands(t *testing.T) {
	e := newExecutor(t, config.ReadWrite)
	cfg := vector.Config{Dimension: 2, Metric: vector.Cosine, Dtype: vector.F32, M: 16, EfConstruction: 200, EfSearch: 50}
	_, err := e.Execute(command.VectorCreateCollection{Name: "docs", Config: cfg})
	require.NoError(t, err)

	_, err = e.Execute(command.VectorUpsert{Collection: "docs", Key: "a", Embedding: []float32{1, 0}})
	require.NoError(t, err)

	out, err := e.Execute(command.VectorSearch{Collection: "docs", Query: []float32{1, 0}, K: 1})
	require.NoError(t, err)
	matches := out.(command.VectorMatchesOutput).Matches
	require.Len(t, matches, 1)
}

func TestExecutor_InfoReportsBranchCountAndMode(t *testing.T) {
	e := newExecutor(t, config.ReadWrite)
	_, err := e.Execute(command.BranchCreate{Name: "main"})
	require.NoError(t, err)

	out, err := e.Execute(command.Info{})
	require.NoError(t, err)
	info := out.(command.InfoOutput)
	assert.Equal(t, string(config.ReadWrite), info.AccessMode)
	assert.Equal(t, 1, info.BranchCount)
}

func TestExecutor_UnrecognizedCommandIsRejected(t *testing.T) {
	e := newExecutor(t, config.ReadWrite)
	_, err := e.Execute(nil)
	assert.Error(t, err)
}
