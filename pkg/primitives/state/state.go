// Package state is the compare-and-swap state cell primitive: a single
// value per key paired with a monotonic counter that increments on
// every successful write, the basis for optimistic updates external to
// a full transaction.
package state

import (
	"sync"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/retention"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/strataerr"
	"github.com/stratadb/strata/pkg/txn"
	"github.com/stratadb/strata/pkg/value"
)

// Facade is the state primitive's entry point.
type Facade struct {
	store   *storage.ShardedStore
	manager *txn.Manager
	policy  retention.Policy

	historyMu sync.Mutex
	history   map[string][]storage.VersionedValue
}

// New builds a state facade.
func New(store *storage.ShardedStore, manager *txn.Manager, policy retention.Policy) *Facade {
	if policy == nil {
		policy = retention.KeepAll{}
	}
	return &Facade{store: store, manager: manager, policy: policy, history: make(map[string][]storage.VersionedValue)}
}

func (f *Facade) key(ns ids.Namespace, branch ids.BranchId, userKey []byte) (ids.Key, error) {
	if err := ids.ValidateUserKey(userKey); err != nil {
		return ids.Key{}, strataerr.Wrap(strataerr.InvalidInput, err, "invalid state key")
	}
	ns.Branch = branch
	return ids.NewKey(ns, ids.TagState, userKey), nil
}

// cellValue wraps a cell's logical value and counter into the Object
// stored under the key; the counter lives inside the payload rather
// than being inferred from the commit's own OCC version, since a
// cell's counter must survive independently of how the surrounding
// transaction numbers its commits.
func cellValue(v value.Value, counter uint64) value.Value {
	return value.Object(map[string]value.Value{
		"value":   v,
		"counter": value.Int(int64(counter)),
	})
}

func decodeCell(v value.Value) (value.Value, uint64, bool) {
	obj, ok := v.AsObject()
	if !ok {
		return value.Null, 0, false
	}
	counter, _ := obj["counter"].AsInt()
	return obj["value"], uint64(counter), true
}

// Init creates cell with counter 0. It fails with AlreadyExists if the
// cell is already present; the caller should use Set to overwrite an
// existing cell unconditionally, or Cas to overwrite conditionally.
func (f *Facade) Init(ns ids.Namespace, branch ids.BranchId, userKey []byte, val value.Value) error {
	key, err := f.key(ns, branch, userKey)
	if err != nil {
		return err
	}
	return txn.Retry(txn.StateCasBudget, func() error {
		ctx, err := f.manager.Begin(branch)
		if err != nil {
			return err
		}
		if _, existed := ctx.Read(key); existed {
			f.manager.Rollback(ctx)
			return strataerr.New(strataerr.AlreadyExists, "state cell already exists")
		}
		ctx.Put(key, cellValue(val, 0))
		_, err = f.manager.Commit(ctx, nil)
		return err
	})
}

// Read returns cell's current value and counter, or ok=false if absent.
func (f *Facade) Read(ns ids.Namespace, branch ids.BranchId, userKey []byte) (value.Value, uint64, bool, error) {
	key, err := f.key(ns, branch, userKey)
	if err != nil {
		return value.Null, 0, false, err
	}
	vv, ok := f.store.Get(key, ids.Now())
	if !ok {
		return value.Null, 0, false, nil
	}
	v, counter, ok := decodeCell(vv.Value)
	return v, counter, ok, nil
}

// Exists reports whether userKey has a live cell.
func (f *Facade) Exists(ns ids.Namespace, branch ids.BranchId, userKey []byte) (bool, error) {
	key, err := f.key(ns, branch, userKey)
	if err != nil {
		return false, err
	}
	return f.store.Contains(key, ids.Now()), nil
}

// Set overwrites cell's value unconditionally, strictly incrementing
// the counter regardless of whether newValue equals the prior value.
func (f *Facade) Set(ns ids.Namespace, branch ids.BranchId, userKey []byte, newValue value.Value) (uint64, error) {
	key, err := f.key(ns, branch, userKey)
	if err != nil {
		return 0, err
	}
	var nextCounter uint64
	err = txn.Retry(txn.StateCasBudget, func() error {
		ctx, err := f.manager.Begin(branch)
		if err != nil {
			return err
		}
		prevVV, existed := ctx.Read(key)
		nextCounter = 0
		if existed {
			if _, counter, ok := decodeCell(prevVV.Value); ok {
				nextCounter = counter + 1
			}
		}
		ctx.Put(key, cellValue(newValue, nextCounter))
		if _, err := f.manager.Commit(ctx, nil); err != nil {
			return err
		}
		if existed {
			f.recordHistory(key, prevVV)
		}
		return nil
	})
	return nextCounter, err
}

// Cas overwrites cell's value only if its current counter equals
// expectedCounter, returning (newCounter, true) on success or (0,
// false) if the counter did not match. Cas never returns an error for
// a counter mismatch, only for genuine I/O or internal failures, so
// callers can distinguish "lost the race" from "something actually
// broke."
//
// The counter comparison is the facade's own logical check, not the
// storage layer's OCC version compare: a cell's counter lives inside
// its payload (see cellValue), so a concurrent write to the same key
// is still caught as a commit-time conflict through the transaction's
// ordinary read set, and Cas simply retries and re-reads the counter
// on that conflict rather than racing against a stale comparison.
func (f *Facade) Cas(ns ids.Namespace, branch ids.BranchId, userKey []byte, expectedCounter uint64, newValue value.Value) (uint64, bool, error) {
	key, err := f.key(ns, branch, userKey)
	if err != nil {
		return 0, false, err
	}

	var resultCounter uint64
	matched := false
	err = txn.Retry(txn.StateCasBudget, func() error {
		ctx, err := f.manager.Begin(branch)
		if err != nil {
			return err
		}
		prevVV, existed := ctx.Read(key)
		var curCounter uint64
		if existed {
			_, curCounter, _ = decodeCell(prevVV.Value)
		}
		if curCounter != expectedCounter {
			f.manager.Rollback(ctx)
			matched = false
			return nil
		}

		newCounter := expectedCounter + 1
		ctx.Put(key, cellValue(newValue, newCounter))
		if _, err := f.manager.Commit(ctx, nil); err != nil {
			return err
		}
		matched = true
		resultCounter = newCounter
		if existed {
			f.recordHistory(key, prevVV)
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return resultCounter, matched, nil
}

// Delete removes cell, writing a tombstone.
func (f *Facade) Delete(ns ids.Namespace, branch ids.BranchId, userKey []byte) (bool, error) {
	key, err := f.key(ns, branch, userKey)
	if err != nil {
		return false, err
	}
	ctx, err := f.manager.Begin(branch)
	if err != nil {
		return false, err
	}
	prevVV, existed := ctx.Read(key)
	if !existed {
		f.manager.Rollback(ctx)
		return false, nil
	}
	ctx.Delete(key)
	if _, err := f.manager.Commit(ctx, nil); err != nil {
		return false, err
	}
	f.recordHistory(key, prevVV)
	return true, nil
}

// History returns cell's retained prior (value, counter) pairs, oldest
// first, bounded by the facade's retention.Policy.
func (f *Facade) History(ns ids.Namespace, branch ids.BranchId, userKey []byte) ([]storage.VersionedValue, error) {
	key, err := f.key(ns, branch, userKey)
	if err != nil {
		return nil, err
	}
	f.historyMu.Lock()
	defer f.historyMu.Unlock()
	return append([]storage.VersionedValue(nil), f.history[string(key.Encode())]...), nil
}

func (f *Facade) recordHistory(key ids.Key, vv storage.VersionedValue) {
	sv := storage.StoredValue{Value: vv.Value, Version: vv.Version, Timestamp: vv.Timestamp}
	if !f.policy.ShouldRetain(sv) {
		return
	}
	f.historyMu.Lock()
	defer f.historyMu.Unlock()
	enc := string(key.Encode())
	f.history[enc] = append(f.history[enc], vv)
}
