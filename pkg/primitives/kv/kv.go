// Package kv is the key-value primitive facade: a thin wrapper over
// {ShardedStore, TransactionManager} that validates keys, composes
// composite Keys, and drives single-operation transactions. Like every
// primitive facade it holds no state of its own beyond a handle to the
// shared engine internals and its retention policy.
package kv

import (
	"sync"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/retention"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/strataerr"
	"github.com/stratadb/strata/pkg/txn"
	"github.com/stratadb/strata/pkg/value"
)

// Facade is the KV primitive's entry point.
type Facade struct {
	store   *storage.ShardedStore
	manager *txn.Manager
	policy  retention.Policy

	historyMu sync.Mutex
	history   map[string][]storage.VersionedValue
}

// New builds a KV facade over store and manager, retaining history
// according to policy.
func New(store *storage.ShardedStore, manager *txn.Manager, policy retention.Policy) *Facade {
	if policy == nil {
		policy = retention.KeepAll{}
	}
	return &Facade{store: store, manager: manager, policy: policy, history: make(map[string][]storage.VersionedValue)}
}

func (f *Facade) key(ns ids.Namespace, branch ids.BranchId, userKey []byte) (ids.Key, error) {
	if err := ids.ValidateUserKey(userKey); err != nil {
		return ids.Key{}, strataerr.Wrap(strataerr.InvalidInput, err, "invalid kv key")
	}
	ns.Branch = branch
	return ids.NewKey(ns, ids.TagKv, userKey), nil
}

// Get returns the current value for userKey, or ok=false if absent.
func (f *Facade) Get(ns ids.Namespace, branch ids.BranchId, userKey []byte) (storage.VersionedValue, bool, error) {
	key, err := f.key(ns, branch, userKey)
	if err != nil {
		return storage.VersionedValue{}, false, err
	}
	vv, ok := f.store.Get(key, ids.Now())
	return vv, ok, nil
}

// Exists reports whether userKey has a live value, agreeing with Get.
func (f *Facade) Exists(ns ids.Namespace, branch ids.BranchId, userKey []byte) (bool, error) {
	key, err := f.key(ns, branch, userKey)
	if err != nil {
		return false, err
	}
	return f.store.Contains(key, ids.Now()), nil
}

// Put writes val under userKey in one single-operation transaction.
func (f *Facade) Put(ns ids.Namespace, branch ids.BranchId, userKey []byte, val value.Value) (ids.Version, error) {
	key, err := f.key(ns, branch, userKey)
	if err != nil {
		return ids.Version{}, err
	}

	ctx, err := f.manager.Begin(branch)
	if err != nil {
		return ids.Version{}, err
	}
	prevVV, existed := ctx.Read(key)
	ctx.Put(key, val)

	version, err := f.manager.Commit(ctx, nil)
	if err != nil {
		return ids.Version{}, err
	}
	if existed {
		f.recordHistory(key, prevVV)
	}
	return version, nil
}

// Delete removes userKey, writing a tombstone in one atomic step.
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

// List returns every live key/value under prefix, in ascending key
// order.
func (f *Facade) List(ns ids.Namespace, branch ids.BranchId, prefix []byte) ([]storage.KeyedValue, error) {
	ns.Branch = branch
	prefixKey := ids.NewKey(ns, ids.TagKv, prefix)
	return f.store.ScanPrefix(prefixKey, ids.Now()), nil
}

// History returns the retained prior versions of userKey, oldest
// first, bounded by the facade's retention.Policy. This is a
// best-effort, in-process log: it is not itself replayed from the WAL
// on recovery, since retention is a contract rather than a durability
// requirement.
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
