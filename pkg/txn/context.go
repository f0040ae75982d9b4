// Package txn implements Strata's optimistic concurrency control:
// per-branch snapshot-isolated transactions that validate at commit
// time and persist through the WAL before becoming visible.
package txn

import (
	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/value"
)

// Status is a transaction's lifecycle state.
type Status int

const (
	Active Status = iota
	Committed
	Aborted
)

// CasOp is one compare-and-swap write folded into a transaction: a
// write that is only valid if the key's stored version still matches
// expected at commit time.
type CasOp struct {
	Key      ids.Key
	Expected ids.Version
	NewValue value.Value
}

// Context is one transaction's accumulated state between Begin and
// Commit/Rollback.
type Context struct {
	Branch   ids.BranchId
	Snapshot *storage.SnapshotView
	Status   Status

	readSet   map[string]readEntry
	writeSet  map[string]value.Value
	writeKeys map[string]ids.Key
	deleteSet map[string]ids.Key
	casSet    []CasOp

	// Context has no vector write set: vector commands carry no
	// transaction handle, so a vector mutation is never staged here.
	// Each vector write commits in a transaction of its own, with its
	// graph update passed to Manager.Commit as a VectorApplier.
}

// readEntry pairs a key with its version as observed through the
// transaction's snapshot, so commit-time validation can re-check the
// live store without needing to decode the encoded map key back into
// structured fields.
type readEntry struct {
	Key     ids.Key
	Version ids.Version
}

func newContext(branch ids.BranchId, snap *storage.SnapshotView) *Context {
	return &Context{
		Branch:    branch,
		Snapshot:  snap,
		Status:    Active,
		readSet:   make(map[string]readEntry),
		writeSet:  make(map[string]value.Value),
		writeKeys: make(map[string]ids.Key),
		deleteSet: make(map[string]ids.Key),
	}
}

// Read looks up key through the transaction's snapshot, recording the
// observed version in the read set unless the key has already been
// written or deleted within this same transaction (a read-your-writes
// lookup is not a conflict source and must not be validated against
// the committed store).
func (c *Context) Read(key ids.Key) (storage.VersionedValue, bool) {
	enc := string(key.Encode())
	if v, ok := c.writeSet[enc]; ok {
		return storage.VersionedValue{Value: v, Version: c.pendingVersion(), Timestamp: c.Snapshot.TakenAt()}, true
	}
	if _, deleted := c.deleteSet[enc]; deleted {
		return storage.VersionedValue{}, false
	}

	vv, ok := c.Snapshot.Get(key)
	if ok {
		c.readSet[enc] = readEntry{Key: key, Version: vv.Version}
	} else if raw, rawOK := c.Snapshot.RawGet(key); rawOK {
		// The key exists but only as a tombstone/expired entry; record
		// its version anyway so a concurrent un-delete still conflicts.
		c.readSet[enc] = readEntry{Key: key, Version: raw.Version}
	}
	return vv, ok
}

// pendingVersion is a placeholder Version for read-your-writes lookups
// within an still-uncommitted transaction; its numeric value is never
// persisted or compared against, since it is never written to the
// read set.
func (c *Context) pendingVersion() ids.Version { return ids.Txn(0) }

// Put stages a blind write; it is not added to the read set.
func (c *Context) Put(key ids.Key, val value.Value) {
	enc := string(key.Encode())
	c.writeSet[enc] = val
	c.writeKeys[enc] = key
	delete(c.deleteSet, enc)
}

// Delete stages a blind delete.
func (c *Context) Delete(key ids.Key) {
	enc := string(key.Encode())
	c.deleteSet[enc] = key
	delete(c.writeSet, enc)
	delete(c.writeKeys, enc)
}

// RequireVersion adds key to the read set with an explicitly observed
// version, for callers that validate against a version they obtained
// outside Context.Read.
func (c *Context) RequireVersion(key ids.Key, version ids.Version) {
	c.readSet[string(key.Encode())] = readEntry{Key: key, Version: version}
}

// Cas stages a compare-and-swap write: valid at commit only if key's
// committed version still equals expected.
func (c *Context) Cas(key ids.Key, expected ids.Version, newValue value.Value) {
	c.casSet = append(c.casSet, CasOp{Key: key, Expected: expected, NewValue: newValue})
}
