package engine

import (
	"context"
	"os"
	"time"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/snapshot"
	"github.com/stratadb/strata/pkg/wal"
)

const (
	ttlScavengeInterval    = time.Second
	checkpointPollInterval = 2 * time.Second
)

// runTTLScavenger evicts expired keys through ordinary transactions,
// grouped one commit per branch per tick, so an expiry is WAL-durable
// and OCC-ordered exactly like any foreground delete rather than
// bypassing the transaction manager.
func (d *Database) runTTLScavenger(ctx context.Context) error {
	ticker := time.NewTicker(ttlScavengeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := d.scavengeExpired(); err != nil {
				d.log.Error().Err(err).Msg("ttl scavenge failed")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (d *Database) scavengeExpired() error {
	expired := d.store.ExpiredKeys(ids.Now())
	if len(expired) == 0 {
		return nil
	}

	byBranch := make(map[ids.BranchId][]ids.Key)
	for _, key := range expired {
		branch := key.Namespace.Branch
		byBranch[branch] = append(byBranch[branch], key)
	}

	for branch, keys := range byBranch {
		txnCtx, err := d.manager.Begin(branch)
		if err != nil {
			d.log.Warn().Err(err).Msg("skip ttl scavenge for vanished branch")
			continue
		}
		for _, key := range keys {
			txnCtx.Delete(key)
		}
		if _, err := d.manager.Commit(txnCtx, nil); err != nil {
			return err
		}
	}
	return nil
}

// runCheckpointWorker polls the checkpoint policy and triggers a
// capture whenever WAL growth, commit volume or idle time after a
// commit crosses its thresholds, the same ticker-driven shape as the
// TTL scavenger.
func (d *Database) runCheckpointWorker(ctx context.Context) error {
	ticker := time.NewTicker(checkpointPollInterval)
	defer ticker.Stop()
	seenCommits := d.manager.CommittedCount()

	for {
		select {
		case <-ticker.C:
			// Commits seen since the previous tick count as activity at
			// this tick for the coordinator's idle timer.
			if n := d.manager.CommittedCount(); n != seenCommits {
				seenCommits = n
				d.checkpoint.NoteCommit()
			}
			bytes, err := d.walBytes()
			if err != nil {
				d.log.Error().Err(err).Msg("measure wal size for checkpoint policy")
				continue
			}
			if d.checkpoint.ShouldCheckpoint(bytes, d.manager.CommittedCount()) {
				if err := d.runCheckpoint(); err != nil {
					d.log.Error().Err(err).Msg("checkpoint failed")
				}
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// walBytes sums every WAL segment file's size on disk. wal.Writer
// tracks its own active segment's byte count privately and exposes no
// cumulative getter, so the coordinator's WalBytesThreshold is
// measured here instead, from the files themselves.
func (d *Database) walBytes() (int64, error) {
	indices, err := wal.ListSegmentIndices(d.walDir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, idx := range indices {
		info, err := os.Stat(walSegmentPath(d.walDir, idx))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// runCheckpoint captures a new snapshot and retires every WAL segment
// it fully covers. The active segment index is read before the
// store's snapshot is taken, so any segment rotated in concurrently
// with capture is never mistaken for already-covered.
func (d *Database) runCheckpoint() error {
	activeIdx := d.wal.ActiveSegmentIndex()
	view := d.store.Snapshot()
	watermark := d.manager.CurrentVersion()

	bytes, err := d.walBytes()
	if err != nil {
		return err
	}

	d.manifestMu.Lock()
	base := d.manifest
	d.manifestMu.Unlock()

	rec, err := d.checkpoint.Capture(view, watermark, activeIdx, base, bytes, d.manager.CommittedCount())
	if err != nil {
		return err
	}
	if err := snapshot.AppendManifest(d.dataDir, rec); err != nil {
		return err
	}

	d.manifestMu.Lock()
	d.manifest = rec
	d.manifestMu.Unlock()

	indices, err := wal.ListSegmentIndices(d.walDir)
	if err != nil {
		return err
	}
	for _, idx := range indices {
		if idx >= activeIdx {
			continue
		}
		if err := wal.RemoveSegment(d.walDir, idx); err != nil {
			return err
		}
	}
	return nil
}
