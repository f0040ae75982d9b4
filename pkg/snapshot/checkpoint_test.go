package snapshot_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/pkg/snapshot"
	"github.com/stratadb/strata/pkg/storage"
)

func TestCoordinator_ShouldCheckpointOnWalBytesThreshold(t *testing.T) {
	policy := snapshot.CheckpointPolicy{WalBytesThreshold: 1000, CommitCountThreshold: 1_000_000, IdleTimeout: time.Hour}
	c := snapshot.NewCoordinator(t.TempDir(), policy, 0, zerolog.Nop())

	assert.False(t, c.ShouldCheckpoint(999, 0))
	assert.True(t, c.ShouldCheckpoint(1000, 0))
}

func TestCoordinator_ShouldCheckpointOnCommitCountThreshold(t *testing.T) {
	policy := snapshot.CheckpointPolicy{WalBytesThreshold: 1 << 40, CommitCountThreshold: 10, IdleTimeout: time.Hour}
	c := snapshot.NewCoordinator(t.TempDir(), policy, 0, zerolog.Nop())

	assert.False(t, c.ShouldCheckpoint(0, 9))
	assert.True(t, c.ShouldCheckpoint(0, 10))
}

func TestCoordinator_CaptureWritesSnapshotAndAdvancesCheckpointID(t *testing.T) {
	dir := t.TempDir()
	c := snapshot.NewCoordinator(dir, snapshot.DefaultCheckpointPolicy(), 5, zerolog.Nop())

	store := storage.NewShardedStore()
	view := store.Snapshot()

	rec, err := c.Capture(view, 42, 0, snapshot.Manifest{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), rec.ActiveCheckpointID)

	snap, err := snapshot.Read(dir, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), snap.Header.WalWatermark)

	rec2, err := c.Capture(view, 43, 0, rec, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), rec2.ActiveCheckpointID, "each Capture must mint the next sequential checkpoint id")
}
