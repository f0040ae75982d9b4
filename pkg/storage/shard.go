package storage

import (
	"sort"
	"sync"

	"github.com/stratadb/strata/pkg/ids"
)

// entry pairs a decoded Key with its current StoredValue. Shards key
// their map on the key's encoded byte form (as a string) for O(1)
// lookup, but keep the decoded Key alongside so ScanPrefix can hand
// keys back to callers without re-decoding.
type entry struct {
	key   ids.Key
	value StoredValue
}

// shard is one partition of the keyspace: a map guarded by its own
// RWMutex (scanPrefix sorts its matches by key), plus a TTL index so the background scavenger can
// find expired keys without scanning the whole shard.
type shard struct {
	mu   sync.RWMutex
	data map[string]*entry
	ttl  *ttlIndex
}

func newShard() *shard {
	return &shard{
		data: make(map[string]*entry),
		ttl:  newTTLIndex(),
	}
}

func (s *shard) get(key ids.Key) (StoredValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[string(key.Encode())]
	if !ok {
		return StoredValue{}, false
	}
	return e.value, true
}

func (s *shard) put(key ids.Key, sv StoredValue) {
	enc := string(key.Encode())
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.data[enc]; ok && prev.value.TTLExpiresAt != nil {
		s.ttl.remove(enc, *prev.value.TTLExpiresAt)
	}
	s.data[enc] = &entry{key: key, value: sv}
	if sv.TTLExpiresAt != nil {
		s.ttl.add(enc, *sv.TTLExpiresAt)
	}
}

func (s *shard) delete(enc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.data[enc]; ok && prev.value.TTLExpiresAt != nil {
		s.ttl.remove(enc, *prev.value.TTLExpiresAt)
	}
	delete(s.data, enc)
}

// expiredKeys returns the decoded keys whose TTL has passed as of asOf.
func (s *shard) expiredKeys(asOf ids.Timestamp) []ids.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	encoded := s.ttl.expired(asOf)
	out := make([]ids.Key, 0, len(encoded))
	for _, enc := range encoded {
		if e, ok := s.data[enc]; ok {
			out = append(out, e.key)
		}
	}
	return out
}

// scanPrefix returns every entry whose encoded key begins with prefix,
// in ascending key order. The shard is locked only long enough to copy
// matching entries; filtering for visibility happens in the caller.
func (s *shard) scanPrefix(prefixBytes []byte) []*entry {
	s.mu.RLock()
	matched := make([]*entry, 0)
	for enc, e := range s.data {
		if len(enc) >= len(prefixBytes) && enc[:len(prefixBytes)] == string(prefixBytes) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].key.Compare(matched[j].key) < 0
	})
	return matched
}

// snapshot returns a shallow copy of the shard's map for use by a
// SnapshotView. Copying is cheap relative to a full scan because
// StoredValue is never mutated in place — every write replaces the
// *entry pointer — so the copied map is a frozen, consistent view of
// this shard as of the lock.
func (s *shard) snapshot() map[string]*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[string]*entry, len(s.data))
	for k, v := range s.data {
		cp[k] = v
	}
	return cp
}

func (s *shard) count(branch *ids.BranchId) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.data {
		if e.value.IsTombstone {
			continue
		}
		if branch != nil && e.key.Namespace.Branch != *branch {
			continue
		}
		n++
	}
	return n
}

func (s *shard) deleteBranch(branch ids.BranchId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for enc, e := range s.data {
		if e.key.Namespace.Branch == branch {
			if e.value.TTLExpiresAt != nil {
				s.ttl.remove(enc, *e.value.TTLExpiresAt)
			}
			delete(s.data, enc)
		}
	}
}
