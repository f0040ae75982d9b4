package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/pkg/command"
	"github.com/stratadb/strata/pkg/config"
	"github.com/stratadb/strata/pkg/engine"
	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/value"
)

func testNamespace() ids.Namespace {
	return ids.NewNamespace("acme", "widgets", "agent-1", engine.DefaultBranch)
}

func TestOpen_EmptyDatabaseAcceptsWrites(t *testing.T) {
	db, err := engine.Open(config.Default(t.TempDir()))
	require.NoError(t, err)
	defer db.Close()

	ns := testNamespace()
	out, err := db.Execute(ns, engine.DefaultBranch, command.KvPut{
		Key:   []byte("greeting"),
		Value: value.String("hello"),
	})
	require.NoError(t, err)
	_, ok := out.(command.VersionOutput)
	assert.True(t, ok, "KvPut should return a VersionOutput")

	out, err = db.Execute(ns, engine.DefaultBranch, command.KvGet{Key: []byte("greeting")})
	require.NoError(t, err)
	got, ok := out.(command.MaybeVersionedOutput)
	require.True(t, ok)
	require.True(t, got.Found)
	s, ok := got.Value.Value.AsString()
	require.True(t, ok)
	assert.Equal(t, "hello", s)
}

func TestOpen_RejectsSecondOpenOnSameDirectory(t *testing.T) {
	dir := t.TempDir()
	db, err := engine.Open(config.Default(dir))
	require.NoError(t, err)
	defer db.Close()

	_, err = engine.Open(config.Default(dir))
	assert.Error(t, err)
}

func TestOpen_ReopenRecoversCommittedWrites(t *testing.T) {
	dir := t.TempDir()
	ns := testNamespace()

	db, err := engine.Open(config.Default(dir))
	require.NoError(t, err)
	_, err = db.Execute(ns, engine.DefaultBranch, command.KvPut{
		Key:   []byte("k"),
		Value: value.Int(42),
	})
	require.NoError(t, err)
	require.NoError(t, db.Flush())
	require.NoError(t, db.Close())

	db2, err := engine.Open(config.Default(dir))
	require.NoError(t, err)
	defer db2.Close()

	out, err := db2.Execute(ns, engine.DefaultBranch, command.KvGet{Key: []byte("k")})
	require.NoError(t, err)
	got := out.(command.MaybeVersionedOutput)
	require.True(t, got.Found)
	n, ok := got.Value.Value.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(42), n)
}

func TestOpen_ReadOnlyRejectsMutation(t *testing.T) {
	dir := t.TempDir()
	db, err := engine.Open(config.Default(dir))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cfg := config.Default(dir)
	cfg.AccessMode = config.ReadOnly
	db2, err := engine.Open(cfg)
	require.NoError(t, err)
	defer db2.Close()

	_, err = db2.Execute(testNamespace(), engine.DefaultBranch, command.KvPut{
		Key:   []byte("k"),
		Value: value.Int(1),
	})
	assert.Error(t, err)
}

func TestDatabase_CompactRunsWithoutError(t *testing.T) {
	db, err := engine.Open(config.Default(t.TempDir()))
	require.NoError(t, err)
	defer db.Close()

	ns := testNamespace()
	for i := 1; i <= 5; i++ {
		_, err := db.Execute(ns, engine.DefaultBranch, command.KvPut{
			Key:   []byte{byte(i)},
			Value: value.Int(int64(i)),
		})
		require.NoError(t, err)
	}

	require.NoError(t, db.Compact())

	out, err := db.Execute(ns, engine.DefaultBranch, command.KvGet{Key: []byte{2}})
	require.NoError(t, err)
	got := out.(command.MaybeVersionedOutput)
	require.True(t, got.Found)
	n, ok := got.Value.Value.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(2), n)
}

func TestDatabase_ExecutorIsCachedPerScope(t *testing.T) {
	db, err := engine.Open(config.Default(t.TempDir()))
	require.NoError(t, err)
	defer db.Close()

	ns := testNamespace()
	a := db.Executor(ns, engine.DefaultBranch)
	b := db.Executor(ns, engine.DefaultBranch)
	assert.Same(t, a, b, "Executor must return the same instance for the same scope so an open explicit transaction isn't lost across calls")
}
