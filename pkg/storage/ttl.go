package storage

import (
	"sort"

	"github.com/stratadb/strata/pkg/ids"
)

// ttlIndex is a secondary index from expiry deadline to the set of
// encoded keys expiring then, so the background scavenger can find due
// keys without scanning the shard's whole keyspace.
type ttlIndex struct {
	byDeadline map[ids.Timestamp]map[string]struct{}
}

func newTTLIndex() *ttlIndex {
	return &ttlIndex{byDeadline: make(map[ids.Timestamp]map[string]struct{})}
}

func (t *ttlIndex) add(encodedKey string, deadline ids.Timestamp) {
	set, ok := t.byDeadline[deadline]
	if !ok {
		set = make(map[string]struct{})
		t.byDeadline[deadline] = set
	}
	set[encodedKey] = struct{}{}
}

func (t *ttlIndex) remove(encodedKey string, deadline ids.Timestamp) {
	set, ok := t.byDeadline[deadline]
	if !ok {
		return
	}
	delete(set, encodedKey)
	if len(set) == 0 {
		delete(t.byDeadline, deadline)
	}
}

// expired returns every key whose deadline is <= asOf.
func (t *ttlIndex) expired(asOf ids.Timestamp) []string {
	deadlines := make([]ids.Timestamp, 0, len(t.byDeadline))
	for d := range t.byDeadline {
		if d <= asOf {
			deadlines = append(deadlines, d)
		}
	}
	sort.Slice(deadlines, func(i, j int) bool { return deadlines[i] < deadlines[j] })

	var out []string
	for _, d := range deadlines {
		for k := range t.byDeadline[d] {
			out = append(out, k)
		}
	}
	return out
}
