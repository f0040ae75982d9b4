// Package retention defines the contract for bounding how much history
// a primitive keeps, without prescribing an algorithm.
package retention

import "github.com/stratadb/strata/pkg/storage"

// Policy decides whether a historical StoredValue is still worth
// keeping. KV's `history` operation and any future compaction pass
// consult a Policy before discarding an old version.
type Policy interface {
	ShouldRetain(sv storage.StoredValue) bool
}

// KeepAll is the default Policy: every version is retained until
// explicitly deleted. Strata ships no bounded-retention algorithm;
// callers who need one (time-windowed, count-bounded) implement
// Policy themselves.
type KeepAll struct{}

func (KeepAll) ShouldRetain(storage.StoredValue) bool { return true }
