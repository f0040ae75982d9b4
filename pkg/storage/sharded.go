package storage

import (
	"github.com/cespare/xxhash/v2"
	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/value"
)

// NumShards is the fixed shard count a ShardedStore partitions its
// keyspace across. Keys map to shards by hash of (branch_id,
// primitive_tag), so every key belonging to one branch's
// one primitive always lands on the same shard — this keeps a single
// primitive's prefix scan confined to one shard's lock.
const NumShards = 64

// ShardedStore is the concrete, in-process Store: NumShards
// independently-locked shards, selected by hashing a key's
// (branch, primitive_tag) pair with xxhash.
type ShardedStore struct {
	shards [NumShards]*shard
}

// NewShardedStore allocates an empty ShardedStore.
func NewShardedStore() *ShardedStore {
	s := &ShardedStore{}
	for i := range s.shards {
		s.shards[i] = newShard()
	}
	return s
}

func shardIndex(key ids.Key) int {
	sk := ids.ShardKey{Branch: key.Namespace.Branch, Tag: key.Tag}
	var buf [17]byte
	copy(buf[:16], sk.Branch[:])
	buf[16] = byte(sk.Tag)
	h := xxhash.Sum64(buf[:])
	return int(h % NumShards)
}

func (s *ShardedStore) shardFor(key ids.Key) *shard {
	return s.shards[shardIndex(key)]
}

func (s *ShardedStore) Get(key ids.Key, asOf ids.Timestamp) (VersionedValue, bool) {
	sv, ok := s.shardFor(key).get(key)
	if !ok {
		return VersionedValue{}, false
	}
	return sv.Visible(asOf)
}

func (s *ShardedStore) RawGet(key ids.Key) (StoredValue, bool) {
	return s.shardFor(key).get(key)
}

func (s *ShardedStore) Put(key ids.Key, val value.Value, version ids.Version, ts ids.Timestamp) error {
	s.shardFor(key).put(key, StoredValue{Value: val, Version: version, Timestamp: ts})
	return nil
}

func (s *ShardedStore) PutWithTTL(key ids.Key, val value.Value, version ids.Version, ts ids.Timestamp, ttlExpiresAt ids.Timestamp) error {
	s.shardFor(key).put(key, StoredValue{Value: val, Version: version, Timestamp: ts, TTLExpiresAt: &ttlExpiresAt})
	return nil
}

func (s *ShardedStore) Delete(key ids.Key, version ids.Version, ts ids.Timestamp) error {
	s.shardFor(key).put(key, StoredValue{Version: version, Timestamp: ts, IsTombstone: true})
	return nil
}

func (s *ShardedStore) Contains(key ids.Key, asOf ids.Timestamp) bool {
	_, ok := s.Get(key, asOf)
	return ok
}

func (s *ShardedStore) ScanPrefix(prefix ids.Key, asOf ids.Timestamp) []KeyedValue {
	// A prefix scan spans every shard whose (branch, tag) pair could
	// hold a matching key. Since the shard key is (branch, tag) and the
	// prefix always carries a concrete branch and tag, only one shard
	// can ever match; scan it directly rather than fanning out.
	sh := s.shardFor(prefix)
	prefixBytes := prefix.Encode()

	out := make([]KeyedValue, 0)
	for _, e := range sh.scanPrefix(prefixBytes) {
		if vv, ok := e.value.Visible(asOf); ok {
			out = append(out, KeyedValue{Key: e.key, Value: vv})
		}
	}
	return out
}

func (s *ShardedStore) Snapshot() *SnapshotView {
	shardSnapshots := make([]map[string]*entry, NumShards)
	for i, sh := range s.shards {
		shardSnapshots[i] = sh.snapshot()
	}
	return &SnapshotView{shards: shardSnapshots, takenAt: ids.Now()}
}

func (s *ShardedStore) TotalEntries() int {
	total := 0
	for _, sh := range s.shards {
		total += sh.count(nil)
	}
	return total
}

func (s *ShardedStore) BranchEntryCount(branch ids.BranchId) int {
	total := 0
	for _, sh := range s.shards {
		total += sh.count(&branch)
	}
	return total
}

func (s *ShardedStore) DeleteBranch(branch ids.BranchId) {
	for _, sh := range s.shards {
		sh.deleteBranch(branch)
	}
}

// ExpiredKeys returns every key across every shard whose TTL has
// passed as of asOf, for the background scavenger (pkg/engine) to
// tombstone.
func (s *ShardedStore) ExpiredKeys(asOf ids.Timestamp) []ids.Key {
	var out []ids.Key
	for _, sh := range s.shards {
		out = append(out, sh.expiredKeys(asOf)...)
	}
	return out
}
