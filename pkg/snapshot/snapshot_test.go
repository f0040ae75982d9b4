package snapshot_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/snapshot"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/value"
)

func testEntry(userKey string) snapshot.Entry {
	ns := ids.NewNamespace("acme", "widgets", "agent-1", ids.BranchId{})
	key := ids.NewKey(ns, ids.TagKv, []byte(userKey))
	return snapshot.Entry{
		Key: key,
		Value: storage.StoredValue{
			Value:     value.String(userKey),
			Version:   ids.Txn(1),
			Timestamp: ids.Now(),
		},
	}
}

func TestWriteThenRead_RoundTripsEntries(t *testing.T) {
	dir := t.TempDir()
	sections := map[byte][]snapshot.Entry{
		byte(ids.TagKv): {testEntry("a"), testEntry("b")},
	}

	require.NoError(t, snapshot.Write(dir, 1, 42, sections))

	snap, err := snapshot.Read(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Header.CheckpointID)
	assert.Equal(t, uint64(42), snap.Header.WalWatermark)
	require.Len(t, snap.Entries, 2)
}

func TestWrite_LeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, snapshot.Write(dir, 1, 0, map[byte][]snapshot.Entry{byte(ids.TagKv): {testEntry("a")}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, ".tmp", filepath.Ext(e.Name()), "Write must rename the tmp file away on success")
	}
}

func TestRead_DetectsCorruptedSectionBody(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, snapshot.Write(dir, 1, 0, map[byte][]snapshot.Entry{byte(ids.TagKv): {testEntry("a")}}))

	path := filepath.Join(dir, snapshot.FileName(1))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Flip a byte well past the header so the section body's CRC no
	// longer matches.
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = snapshot.Read(dir, 1)
	assert.Error(t, err)
}

func TestGCTemporaries_RemovesOnlyTmpFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000000000001.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000000000002.snap"), []byte("x"), 0o644))

	require.NoError(t, snapshot.GCTemporaries(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "000000000002.snap", entries[0].Name())
}

func TestGCTemporaries_MissingDirIsNotAnError(t *testing.T) {
	assert.NoError(t, snapshot.GCTemporaries(filepath.Join(t.TempDir(), "does-not-exist")))
}

func TestManifest_AppendThenReadReturnsLatestRecord(t *testing.T) {
	dir := t.TempDir()

	rec1 := snapshot.NewManifest(uuid.New(), "msgpack/v1")
	require.NoError(t, snapshot.AppendManifest(dir, rec1))

	rec2 := rec1
	rec2.ActiveCheckpointID = 1
	require.NoError(t, snapshot.AppendManifest(dir, rec2))

	got, found, err := snapshot.ReadManifest(dir)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(1), got.ActiveCheckpointID)
}

func TestManifest_ReadMissingReturnsNotFound(t *testing.T) {
	_, found, err := snapshot.ReadManifest(t.TempDir())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestManifest_ReadIgnoresTrailingPartialLine(t *testing.T) {
	dir := t.TempDir()
	rec := snapshot.NewManifest(uuid.New(), "msgpack/v1")
	require.NoError(t, snapshot.AppendManifest(dir, rec))

	path := filepath.Join(dir, snapshot.ManifestFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"active_checkpoint_id`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, found, err := snapshot.ReadManifest(dir)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec.ActiveCheckpointID, got.ActiveCheckpointID, "a torn trailing line must not corrupt the last known good record")
}
