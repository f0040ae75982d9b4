// Package branch is the branch primitive: the scoping unit every other
// primitive's keys are partitioned by. Branch metadata itself lives in
// a fixed administrative namespace and is written through the same
// transaction manager as every other primitive, so it is durable and
// participates in WAL/snapshot recovery like any other stored value.
package branch

import (
	"sync"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/strataerr"
	"github.com/stratadb/strata/pkg/txn"
	"github.com/stratadb/strata/pkg/value"
)

// Status is a branch's lifecycle state.
type Status int

const (
	Active Status = iota
	Frozen
	Archived
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Frozen:
		return "frozen"
	case Archived:
		return "archived"
	default:
		return "unknown"
	}
}

func statusFromString(s string) Status {
	switch s {
	case "frozen":
		return Frozen
	case "archived":
		return Archived
	default:
		return Active
	}
}

// Metadata describes one branch.
type Metadata struct {
	ID        ids.BranchId
	Name      string
	Parent    *ids.BranchId
	Status    Status
	CreatedAt ids.Timestamp
	Tags      map[string]string
}

// adminNamespace holds every branch's metadata entry, independent of
// the tenant/app/agent scope its entries apply to: a BranchId is a
// globally opaque identifier, so branch existence and
// bookkeeping is engine-global rather than namespace-scoped the way
// KV/State/JSON/Event/Vector data is.
var adminNamespace = ids.Namespace{Tenant: "_system", App: "_system", Agent: "_system", Space: "_branches"}

func metadataKey(id ids.BranchId) ids.Key {
	return ids.NewKey(adminNamespace, ids.TagBranch, id[:])
}

// VectorDropper lets branch deletion cascade into the vector backend
// without pkg/primitives/branch importing pkg/vector directly (the
// same decoupling-by-interface pattern txn.Manager uses for
// VectorApplier).
type VectorDropper interface {
	DropBranch(ids.BranchId)
}

// Facade is the branch primitive's entry point.
type Facade struct {
	store   *storage.ShardedStore
	manager *txn.Manager

	mu      sync.RWMutex
	exists  map[ids.BranchId]struct{}
	vectors VectorDropper
}

// New builds a branch facade. manager's transactions are expected to
// consult this facade as their BranchChecker.
func New(store *storage.ShardedStore, manager *txn.Manager) *Facade {
	return &Facade{store: store, manager: manager, exists: make(map[ids.BranchId]struct{})}
}

// AttachVectorDropper wires the vector backend into branch deletion's
// cascade, once pkg/vector exists. Deleting a branch before this is
// called simply has no vector collections to drop.
func (f *Facade) AttachVectorDropper(d VectorDropper) {
	f.vectors = d
}

// BranchExists implements txn.BranchChecker. The zero BranchId names
// the administrative scope branch metadata itself is written through,
// and always exists — otherwise branch creation could never durably
// record its own first entry.
func (f *Facade) BranchExists(id ids.BranchId) bool {
	if id == (ids.BranchId{}) {
		return true
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.exists[id]
	return ok
}

// LoadCache rebuilds the in-memory existence cache from the store,
// used once at recovery after WAL replay has repopulated branch
// metadata entries.
func (f *Facade) LoadCache() error {
	all, err := f.List()
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exists = make(map[ids.BranchId]struct{}, len(all))
	for _, m := range all {
		f.exists[m.ID] = struct{}{}
	}
	return nil
}

func metadataToValue(m Metadata) value.Value {
	var parent value.Value
	if m.Parent != nil {
		parent = value.Bytes((*m.Parent)[:])
	} else {
		parent = value.Null
	}
	tags := make(map[string]value.Value, len(m.Tags))
	for k, v := range m.Tags {
		tags[k] = value.String(v)
	}
	return value.Object(map[string]value.Value{
		"id":         value.Bytes(m.ID[:]),
		"name":       value.String(m.Name),
		"parent":     parent,
		"status":     value.String(m.Status.String()),
		"created_at": value.Int(int64(m.CreatedAt)),
		"tags":       value.Object(tags),
	})
}

func valueToMetadata(v value.Value) (Metadata, bool) {
	obj, ok := v.AsObject()
	if !ok {
		return Metadata{}, false
	}
	idBytes, _ := obj["id"].AsBytes()
	var id ids.BranchId
	copy(id[:], idBytes)

	name, _ := obj["name"].AsString()
	statusStr, _ := obj["status"].AsString()
	createdAt, _ := obj["created_at"].AsInt()

	var parent *ids.BranchId
	if pb, ok := obj["parent"].AsBytes(); ok {
		var p ids.BranchId
		copy(p[:], pb)
		parent = &p
	}

	tags := map[string]string{}
	if tagObj, ok := obj["tags"].AsObject(); ok {
		for k, tv := range tagObj {
			s, _ := tv.AsString()
			tags[k] = s
		}
	}

	return Metadata{
		ID:        id,
		Name:      name,
		Parent:    parent,
		Status:    statusFromString(statusStr),
		CreatedAt: ids.Timestamp(createdAt),
		Tags:      tags,
	}, true
}

// Create registers a new branch named name with no parent. The
// branch's id is deterministically derived from name (a convenience
// name-to-id mapping; ids are canonical, see ids.BranchIdFromName), so
// Create is naturally idempotent-checkable:
// calling it twice with the same name always targets the same id.
func (f *Facade) Create(name string, tags map[string]string) (Metadata, ids.Version, error) {
	return f.create(name, nil, tags)
}

// Fork creates a new branch named name whose parent is the branch
// currently named parentName.
func (f *Facade) Fork(parentName, name string, tags map[string]string) (Metadata, ids.Version, error) {
	parent, ok, err := f.Get(parentName)
	if err != nil {
		return Metadata{}, ids.Version{}, err
	}
	if !ok {
		return Metadata{}, ids.Version{}, strataerr.New(strataerr.BranchNotFound, "parent branch %q does not exist", parentName)
	}
	return f.create(name, &parent.ID, tags)
}

func (f *Facade) create(name string, parent *ids.BranchId, tags map[string]string) (Metadata, ids.Version, error) {
	if err := ids.ValidateBranchName(name); err != nil {
		return Metadata{}, ids.Version{}, strataerr.Wrap(strataerr.InvalidInput, err, "invalid branch name")
	}
	id := ids.BranchIdFromName(name)
	key := metadataKey(id)

	ctx, err := f.manager.Begin(ids.BranchId{})
	if err != nil {
		return Metadata{}, ids.Version{}, err
	}
	if _, existed := ctx.Read(key); existed {
		f.manager.Rollback(ctx)
		return Metadata{}, ids.Version{}, strataerr.New(strataerr.AlreadyExists, "branch %q already exists", name)
	}

	meta := Metadata{ID: id, Name: name, Parent: parent, Status: Active, CreatedAt: ids.Now(), Tags: tags}
	ctx.Put(key, metadataToValue(meta))
	version, err := f.manager.Commit(ctx, nil)
	if err != nil {
		return Metadata{}, ids.Version{}, err
	}

	f.mu.Lock()
	f.exists[id] = struct{}{}
	f.mu.Unlock()
	return meta, version, nil
}

// Get returns the branch named name, or ok=false if it doesn't exist.
func (f *Facade) Get(name string) (Metadata, bool, error) {
	if err := ids.ValidateBranchName(name); err != nil {
		return Metadata{}, false, strataerr.Wrap(strataerr.InvalidInput, err, "invalid branch name")
	}
	id := ids.BranchIdFromName(name)
	vv, ok := f.store.Get(metadataKey(id), ids.Now())
	if !ok {
		return Metadata{}, false, nil
	}
	m, ok := valueToMetadata(vv.Value)
	return m, ok, nil
}

// Exists reports whether a branch named name exists.
func (f *Facade) Exists(name string) (bool, error) {
	_, ok, err := f.Get(name)
	return ok, err
}

// List returns every registered branch's metadata.
func (f *Facade) List() ([]Metadata, error) {
	prefix := ids.NewKey(adminNamespace, ids.TagBranch, nil)
	kvs := f.store.ScanPrefix(prefix, ids.Now())
	out := make([]Metadata, 0, len(kvs))
	for _, kv := range kvs {
		if m, ok := valueToMetadata(kv.Value.Value); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// Delete removes a branch and cascades: its per-branch commit lock
// (txn.Manager.ForgetBranch), its vector collections (if a
// VectorDropper is attached), and every primitive entry the store
// holds under it (storage.ShardedStore.DeleteBranch), so a deleted
// branch leaves no orphaned state behind in any subsystem.
func (f *Facade) Delete(name string) (bool, error) {
	m, ok, err := f.Get(name)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	ctx, err := f.manager.Begin(ids.BranchId{})
	if err != nil {
		return false, err
	}
	ctx.Delete(metadataKey(m.ID))
	if _, err := f.manager.Commit(ctx, nil); err != nil {
		return false, err
	}

	f.mu.Lock()
	delete(f.exists, m.ID)
	f.mu.Unlock()

	f.manager.ForgetBranch(m.ID)
	if f.vectors != nil {
		f.vectors.DropBranch(m.ID)
	}
	f.store.DeleteBranch(m.ID)
	return true, nil
}
