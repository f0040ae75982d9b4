/*
Package storage provides Strata's in-memory, sharded, ordered keyspace:
the current committed state of every branch and primitive held
entirely in RAM behind a small, versioned Store interface. Durability
across restarts is the job of pkg/wal and pkg/snapshot; this package
never touches disk itself.

# Architecture

Every key maps to one of NumShards shards by hashing its (branch_id,
primitive_tag) pair, so one primitive's traffic within one branch
always lands on the same shard and its prefix scans never cross a
shard boundary:

	┌──────────────────── SHARDED STORE ────────────────────────┐
	│                                                             │
	│  hash(branch_id, primitive_tag) -> shard index              │
	│                                                             │
	│  ┌──────────┐  ┌──────────┐  ┌──────────┐      ┌──────────┐│
	│  │ shard[0] │  │ shard[1] │  │ shard[2] │ ...  │shard[N-1]││
	│  │  RWMutex │  │  RWMutex │  │  RWMutex │      │  RWMutex ││
	│  │  map +   │  │  map +   │  │  map +   │      │  map +   ││
	│  │  ttlIndex│  │  ttlIndex│  │  ttlIndex│      │  ttlIndex││
	│  └──────────┘  └──────────┘  └──────────┘      └──────────┘│
	│                                                             │
	└─────────────────────────────────────────────────────────────┘

Each shard entry is a StoredValue: a payload, the version that wrote
it, a wall-clock timestamp, an optional TTL deadline, and a tombstone
bit. Writes always replace the entry pointer rather than mutating it in
place, which is what makes Snapshot cheap — taking a snapshot copies
each shard's map (a pointer copy per entry) under a brief read lock,
and the copied map then stays frozen no matter what the live store does
afterward.

# Tombstones

A tombstoned key is never returned by Get or ScanPrefix: those two
apply one shared visibility predicate (not tombstoned, not
TTL-expired) so a deleted key is indistinguishable from one that never
existed, to every caller except OCC validation and recovery, which read
the raw StoredValue through RawGet / SnapshotView.RawGet.

# Transactions and checkpoints

pkg/txn takes a SnapshotView at the start of every transaction for
its reads, and validates the transaction's read/CAS sets against the
live store's raw state at commit time. pkg/snapshot takes a
SnapshotView to serialize every live entry into checkpoint sections
grouped by primitive tag.
*/
package storage
