package storage

import (
	"sort"

	"github.com/stratadb/strata/pkg/ids"
)

// SnapshotView is a cheap, consistent point-in-time view over a
// ShardedStore, handed to transactions for their read set and to the
// checkpoint writer for durable snapshots. Taking a
// SnapshotView never blocks writers and vice versa: each shard is
// locked only long enough to copy its map, and StoredValue entries are
// never mutated in place, so the copied maps stay frozen even as the
// live store keeps moving.
type SnapshotView struct {
	shards  []map[string]*entry
	takenAt ids.Timestamp
}

// TakenAt returns the wall-clock time the snapshot was assembled,
// which transactions use as their as-of timestamp for TTL and
// tombstone visibility.
func (sv *SnapshotView) TakenAt() ids.Timestamp { return sv.takenAt }

// Get looks up key within the frozen view.
func (sv *SnapshotView) Get(key ids.Key) (VersionedValue, bool) {
	idx := shardIndex(key)
	e, ok := sv.shards[idx][string(key.Encode())]
	if !ok {
		return VersionedValue{}, false
	}
	return e.value.Visible(sv.takenAt)
}

// RawGet returns the full StoredValue, tombstone state included, for
// OCC read-set/CAS-set validation which must distinguish "absent" from
// "deleted since the snapshot was taken."
func (sv *SnapshotView) RawGet(key ids.Key) (StoredValue, bool) {
	idx := shardIndex(key)
	e, ok := sv.shards[idx][string(key.Encode())]
	if !ok {
		return StoredValue{}, false
	}
	return e.value, true
}

// ScanPrefix returns every visible entry under prefix within the
// frozen view, in ascending key order.
func (sv *SnapshotView) ScanPrefix(prefix ids.Key) []KeyedValue {
	idx := shardIndex(prefix)
	prefixBytes := prefix.Encode()

	matched := make([]*entry, 0)
	for enc, e := range sv.shards[idx] {
		if len(enc) >= len(prefixBytes) && enc[:len(prefixBytes)] == string(prefixBytes) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].key.Compare(matched[j].key) < 0 })

	out := make([]KeyedValue, 0, len(matched))
	for _, e := range matched {
		if vv, ok := e.value.Visible(sv.takenAt); ok {
			out = append(out, KeyedValue{Key: e.key, Value: vv})
		}
	}
	return out
}

// All returns every entry in the frozen view across every shard, in
// no particular order, for the checkpoint writer to serialize into
// snapshot sections grouped by primitive tag.
func (sv *SnapshotView) All() []KeyedValue {
	var out []KeyedValue
	for _, shardMap := range sv.shards {
		for _, e := range shardMap {
			if vv, ok := e.value.Visible(sv.takenAt); ok {
				out = append(out, KeyedValue{Key: e.key, Value: vv})
			}
		}
	}
	return out
}

// AllRaw returns every entry including tombstones, for OCC commit-time
// validation which needs to see tombstones written after the snapshot
// was taken.
func (sv *SnapshotView) AllRaw() []RawKeyedValue {
	out := make([]RawKeyedValue, 0)
	for _, shardMap := range sv.shards {
		for _, e := range shardMap {
			out = append(out, RawKeyedValue{Key: e.key, Value: e.value})
		}
	}
	return out
}
