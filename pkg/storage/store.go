// Package storage implements the sharded, in-memory ordered keyspace
// every primitive reads and writes through. A ShardedStore
// holds the latest committed value for each composite key; durability
// across restarts is the job of pkg/wal and pkg/snapshot, which replay
// into a fresh ShardedStore on open.
package storage

import (
	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/value"
)

// StoredValue is the unit held per key: a payload, the version that
// produced it, the wall-clock time of that write, an optional TTL
// deadline, and a tombstone bit. Tombstones are never themselves
// returned by a read; they exist only so a deleted key's absence can
// be told apart from a key that never existed, and so WAL replay can
// distinguish a delete from a write.
type StoredValue struct {
	Value        value.Value
	Version      ids.Version
	Timestamp    ids.Timestamp
	TTLExpiresAt *ids.Timestamp
	IsTombstone  bool
}

// Expired reports whether sv carries a TTL deadline that has passed as
// of asOf.
func (sv StoredValue) Expired(asOf ids.Timestamp) bool {
	return sv.TTLExpiresAt != nil && *sv.TTLExpiresAt <= asOf
}

// VersionedValue is the public projection of a StoredValue returned to
// callers: it never carries the tombstone bit, because a tombstone is
// an internal bookkeeping detail, not a value a reader can observe.
type VersionedValue struct {
	Value     value.Value
	Version   ids.Version
	Timestamp ids.Timestamp
}

// Visible converts a StoredValue into a VersionedValue, reporting false
// if sv is a tombstone or has expired as of asOf and so must not be
// visible to any reader.
func (sv StoredValue) Visible(asOf ids.Timestamp) (VersionedValue, bool) {
	if sv.IsTombstone || sv.Expired(asOf) {
		return VersionedValue{}, false
	}
	return VersionedValue{Value: sv.Value, Version: sv.Version, Timestamp: sv.Timestamp}, true
}

// Store is the operation set the keyspace must support: plain
// reads/writes, prefix scans in key order, and a cheap point-in-time
// snapshot for transaction isolation and checkpointing.
type Store interface {
	// Get returns the visible value at key, or ok=false if absent,
	// tombstoned, or TTL-expired as of asOf.
	Get(key ids.Key, asOf ids.Timestamp) (VersionedValue, bool)

	// Put writes val under key at version, replacing any prior entry.
	Put(key ids.Key, val value.Value, version ids.Version, ts ids.Timestamp) error

	// PutWithTTL is Put plus a TTL deadline after which the key is no
	// longer visible.
	PutWithTTL(key ids.Key, val value.Value, version ids.Version, ts ids.Timestamp, ttlExpiresAt ids.Timestamp) error

	// Delete writes a tombstone at key, recording the version that
	// performed the delete.
	Delete(key ids.Key, version ids.Version, ts ids.Timestamp) error

	// Contains reports whether key has a visible (non-tombstone,
	// unexpired) entry as of asOf.
	Contains(key ids.Key, asOf ids.Timestamp) bool

	// RawGet returns the full StoredValue including tombstone state,
	// for callers (OCC validation, recovery) that must see past the
	// tombstone-filtering single predicate Get applies.
	RawGet(key ids.Key) (StoredValue, bool)

	// ScanPrefix returns every visible entry whose key has prefix, in
	// ascending key order.
	ScanPrefix(prefix ids.Key, asOf ids.Timestamp) []KeyedValue

	// Snapshot returns a cheap, consistent point-in-time view of the
	// entire store.
	Snapshot() *SnapshotView

	// TotalEntries returns the number of live (non-tombstone) entries
	// across all shards.
	TotalEntries() int

	// BranchEntryCount returns the number of live entries belonging to
	// branch, across all primitive tags.
	BranchEntryCount(branch ids.BranchId) int

	// DeleteBranch removes every entry (including tombstones) whose key
	// belongs to branch, used by branch deletion cascade.
	DeleteBranch(branch ids.BranchId)
}

// KeyedValue pairs a decoded key with its visible value, returned by
// ScanPrefix.
type KeyedValue struct {
	Key   ids.Key
	Value VersionedValue
}

// RawKeyedValue pairs a decoded key with its full StoredValue
// (tombstone state included), returned where a caller needs to see
// past the tombstone-filtering single predicate Get and ScanPrefix
// apply.
type RawKeyedValue struct {
	Key   ids.Key
	Value StoredValue
}
