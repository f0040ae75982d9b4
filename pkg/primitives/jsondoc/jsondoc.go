// Package jsondoc is the JSON document primitive: a Value::Object root
// addressed by a small path grammar ("$", "$.f", "$.a[i]", "$.a[-]"),
// with RFC 7396 merge-patch support.
package jsondoc

import (
	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/strataerr"
	"github.com/stratadb/strata/pkg/txn"
	"github.com/stratadb/strata/pkg/value"
)

// Facade is the JSON document primitive's entry point.
type Facade struct {
	store   *storage.ShardedStore
	manager *txn.Manager
}

// New builds a JSON document facade.
func New(store *storage.ShardedStore, manager *txn.Manager) *Facade {
	return &Facade{store: store, manager: manager}
}

func (f *Facade) key(ns ids.Namespace, branch ids.BranchId, docID []byte) (ids.Key, error) {
	if err := ids.ValidateUserKey(docID); err != nil {
		return ids.Key{}, strataerr.Wrap(strataerr.InvalidInput, err, "invalid document id")
	}
	ns.Branch = branch
	return ids.NewKey(ns, ids.TagJson, docID), nil
}

// Create writes a brand-new document at docID, failing with
// AlreadyExists if one is already present.
func (f *Facade) Create(ns ids.Namespace, branch ids.BranchId, docID []byte, root value.Value) (ids.Version, error) {
	key, err := f.key(ns, branch, docID)
	if err != nil {
		return ids.Version{}, err
	}
	if _, ok := root.AsObject(); !ok {
		return ids.Version{}, strataerr.New(strataerr.InvalidInput, "document root must be an object")
	}
	if err := validateDocument(root); err != nil {
		return ids.Version{}, err
	}

	ctx, err := f.manager.Begin(branch)
	if err != nil {
		return ids.Version{}, err
	}
	if _, existed := ctx.Read(key); existed {
		f.manager.Rollback(ctx)
		return ids.Version{}, strataerr.New(strataerr.AlreadyExists, "document already exists")
	}
	ctx.Put(key, root)
	return f.manager.Commit(ctx, nil)
}

// Get reads the value at path within docID. path == "$" returns the
// whole document.
func (f *Facade) Get(ns ids.Namespace, branch ids.BranchId, docID []byte, path string) (value.Value, bool, error) {
	key, err := f.key(ns, branch, docID)
	if err != nil {
		return value.Null, false, err
	}
	segs, err := parsePath(path)
	if err != nil {
		return value.Null, false, err
	}
	vv, ok := f.store.Get(key, ids.Now())
	if !ok {
		return value.Null, false, nil
	}
	got, found := getAtPath(vv.Value, segs)
	return got, found, nil
}

// Set writes newValue at path within docID, creating intermediate
// objects along the way. The final document is validated
// for depth/size/array-length before the write is staged, so an
// oversized mutation never lands even partially.
func (f *Facade) Set(ns ids.Namespace, branch ids.BranchId, docID []byte, path string, newValue value.Value) (ids.Version, error) {
	key, err := f.key(ns, branch, docID)
	if err != nil {
		return ids.Version{}, err
	}
	segs, err := parsePath(path)
	if err != nil {
		return ids.Version{}, err
	}

	ctx, err := f.manager.Begin(branch)
	if err != nil {
		return ids.Version{}, err
	}
	vv, existed := ctx.Read(key)
	root := vv.Value
	if !existed {
		root = value.Object(nil)
	}

	updated, err := setAtPath(root, segs, newValue)
	if err != nil {
		f.manager.Rollback(ctx)
		return ids.Version{}, err
	}
	if err := validateDocument(updated); err != nil {
		f.manager.Rollback(ctx)
		return ids.Version{}, err
	}

	ctx.Put(key, updated)
	return f.manager.Commit(ctx, nil)
}

// DeleteAtPath removes the entry at path within docID, reporting
// found=false if path did not resolve to anything.
func (f *Facade) DeleteAtPath(ns ids.Namespace, branch ids.BranchId, docID []byte, path string) (bool, error) {
	key, err := f.key(ns, branch, docID)
	if err != nil {
		return false, err
	}
	segs, err := parsePath(path)
	if err != nil {
		return false, err
	}
	if len(segs) == 0 {
		return false, strataerr.New(strataerr.InvalidInput, "cannot delete the document root, use destroy")
	}

	ctx, err := f.manager.Begin(branch)
	if err != nil {
		return false, err
	}
	vv, existed := ctx.Read(key)
	if !existed {
		f.manager.Rollback(ctx)
		return false, nil
	}

	updated, found, err := deleteAtPath(vv.Value, segs)
	if err != nil {
		f.manager.Rollback(ctx)
		return false, err
	}
	if !found {
		f.manager.Rollback(ctx)
		return false, nil
	}

	ctx.Put(key, updated)
	if _, err := f.manager.Commit(ctx, nil); err != nil {
		return false, err
	}
	return true, nil
}

// Merge applies patch as an RFC 7396 JSON Merge Patch at path within
// docID.
func (f *Facade) Merge(ns ids.Namespace, branch ids.BranchId, docID []byte, path string, patch value.Value) (ids.Version, error) {
	key, err := f.key(ns, branch, docID)
	if err != nil {
		return ids.Version{}, err
	}
	segs, err := parsePath(path)
	if err != nil {
		return ids.Version{}, err
	}

	ctx, err := f.manager.Begin(branch)
	if err != nil {
		return ids.Version{}, err
	}
	vv, existed := ctx.Read(key)
	root := vv.Value
	if !existed {
		root = value.Object(nil)
	}

	target, found := getAtPath(root, segs)
	if !found {
		target = value.Null
	}
	merged := mergePatch(target, patch)

	updated, err := setAtPath(root, segs, merged)
	if err != nil {
		f.manager.Rollback(ctx)
		return ids.Version{}, err
	}
	if err := validateDocument(updated); err != nil {
		f.manager.Rollback(ctx)
		return ids.Version{}, err
	}

	ctx.Put(key, updated)
	return f.manager.Commit(ctx, nil)
}

// Destroy removes docID entirely, tombstoning it.
func (f *Facade) Destroy(ns ids.Namespace, branch ids.BranchId, docID []byte) (bool, error) {
	key, err := f.key(ns, branch, docID)
	if err != nil {
		return false, err
	}
	ctx, err := f.manager.Begin(branch)
	if err != nil {
		return false, err
	}
	if _, existed := ctx.Read(key); !existed {
		f.manager.Rollback(ctx)
		return false, nil
	}
	ctx.Delete(key)
	if _, err := f.manager.Commit(ctx, nil); err != nil {
		return false, err
	}
	return true, nil
}
