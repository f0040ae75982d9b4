package snapshot

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stratadb/strata/pkg/storage"
)

// CheckpointPolicy is the set of thresholds that trigger a checkpoint:
// whichever of these fires first.
type CheckpointPolicy struct {
	WalBytesThreshold    int64
	CommitCountThreshold uint64
	IdleTimeout          time.Duration
}

// DefaultCheckpointPolicy matches the scale of wal.DefaultSegmentSize:
// checkpoint roughly every two segments' worth of WAL growth, every
// 10000 commits, or after 30 seconds of inactivity following a commit.
func DefaultCheckpointPolicy() CheckpointPolicy {
	return CheckpointPolicy{
		WalBytesThreshold:    128 * 1024 * 1024,
		CommitCountThreshold: 10000,
		IdleTimeout:          30 * time.Second,
	}
}

// Coordinator decides when to checkpoint and drives the capture,
// ignorant of how the caller wires its trigger loop (pkg/engine runs
// it on a ticker via errgroup alongside its other background workers).
type Coordinator struct {
	mu sync.Mutex

	dir    string
	policy CheckpointPolicy
	log    zerolog.Logger

	nextCheckpointID    uint64
	walBytesAtLast      int64
	commitsAtLast       uint64
	lastCheckpointAt    time.Time
	lastCommitAt        time.Time
}

// NewCoordinator builds a Coordinator resuming after nextCheckpointID
// (the id the next captured checkpoint should use).
func NewCoordinator(dir string, policy CheckpointPolicy, nextCheckpointID uint64, log zerolog.Logger) *Coordinator {
	now := time.Now()
	return &Coordinator{dir: dir, policy: policy, log: log, nextCheckpointID: nextCheckpointID, lastCheckpointAt: now, lastCommitAt: now}
}

// NoteCommit records that a transaction committed, for the idle-timer
// threshold; the commit-count threshold uses the totalCommits passed
// to ShouldCheckpoint.
func (c *Coordinator) NoteCommit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCommitAt = time.Now()
}

// ShouldCheckpoint reports whether any threshold has been crossed
// given the current WAL byte count and total commits observed by the
// caller.
func (c *Coordinator) ShouldCheckpoint(walBytes int64, totalCommits uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if walBytes-c.walBytesAtLast >= c.policy.WalBytesThreshold {
		return true
	}
	if totalCommits-c.commitsAtLast >= c.policy.CommitCountThreshold {
		return true
	}
	if !c.lastCommitAt.IsZero() && c.lastCommitAt.After(c.lastCheckpointAt) &&
		time.Since(c.lastCommitAt) >= c.policy.IdleTimeout {
		return true
	}
	return false
}

// Capture takes a snapshot of view, writes it atomically, appends the
// MANIFEST record, and returns the checkpoint id used. The caller
// supplies walWatermark (the last WAL version the snapshot fully
// covers) and manifestBase (the prior Manifest record to extend) so
// this package does not need to know about database-level identity.
func (c *Coordinator) Capture(view *storage.SnapshotView, walWatermark uint64, retiredSegment uint32, manifestBase Manifest, walBytes int64, totalCommits uint64) (Manifest, error) {
	c.mu.Lock()
	checkpointID := c.nextCheckpointID
	c.mu.Unlock()

	sections := groupByTag(view.All())

	if err := Write(c.dir, checkpointID, walWatermark, sections); err != nil {
		return Manifest{}, err
	}

	rec := manifestBase
	rec.ActiveCheckpointID = checkpointID
	rec.WalPrefixRetiredUpTo = retiredSegment

	c.mu.Lock()
	c.nextCheckpointID++
	c.walBytesAtLast = walBytes
	c.commitsAtLast = totalCommits
	c.lastCheckpointAt = time.Now()
	c.mu.Unlock()

	c.log.Info().Uint64("checkpoint_id", checkpointID).Uint64("wal_watermark", walWatermark).Msg("checkpoint captured")
	return rec, nil
}

func groupByTag(kvs []storage.KeyedValue) map[byte][]Entry {
	out := make(map[byte][]Entry)
	for _, kv := range kvs {
		tag := byte(kv.Key.Tag)
		out[tag] = append(out[tag], Entry{Key: kv.Key, Value: storage.StoredValue{
			Value:     kv.Value.Value,
			Version:   kv.Value.Version,
			Timestamp: kv.Value.Timestamp,
		}})
	}
	return out
}
