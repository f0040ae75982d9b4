package vector

import (
	"math"
	"sync"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/strataerr"
	"github.com/stratadb/strata/pkg/txn"
	"github.com/stratadb/strata/pkg/value"
)

// collection is the in-memory state a live vector collection keeps on
// top of its KV-layer records: the HNSW graph plus the key<->VectorId
// mapping and a metadata cache Search's filter step reads without a
// store round trip. Rebuilt from the KV section on recovery.
type collection struct {
	mu       sync.RWMutex
	config   Config
	graph    *Graph
	keyToID  map[string]uint64
	idToKey  map[uint64]string
	metadata map[uint64]value.Value
}

func newCollection(cfg Config) *collection {
	return &collection{
		config:   cfg,
		graph:    NewGraph(cfg.Metric, cfg.M, cfg.EfConstruction, cfg.EfSearch),
		keyToID:  make(map[string]uint64),
		idToKey:  make(map[uint64]string),
		metadata: make(map[uint64]value.Value),
	}
}

func (c *collection) metadataOf(id uint64) value.Value {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata[id]
}

type collectionCacheKey struct {
	branch ids.BranchId
	name   string
}

// Facade is the vector collection primitive's entry point.
type Facade struct {
	store   *storage.ShardedStore
	manager *txn.Manager

	mu          sync.RWMutex
	collections map[collectionCacheKey]*collection
}

// New builds a vector facade over store and manager.
func New(store *storage.ShardedStore, manager *txn.Manager) *Facade {
	return &Facade{store: store, manager: manager, collections: make(map[collectionCacheKey]*collection)}
}

// DropBranch releases every in-memory collection cached for branch,
// implementing the VectorDropper interface pkg/primitives/branch's
// delete cascade consumes.
func (f *Facade) DropBranch(branch ids.BranchId) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.collections {
		if key.branch == branch {
			delete(f.collections, key)
		}
	}
}

func (f *Facade) cached(branch ids.BranchId, name string) (*collection, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.collections[collectionCacheKey{branch, name}]
	return c, ok
}

// loadCollection returns the cached collection, or rebuilds it from
// the KV layer's config + live records if it isn't cached yet (also
// exercised lazily on first access after open).
func (f *Facade) loadCollection(ns ids.Namespace, branch ids.BranchId, name string) (*collection, error) {
	if c, ok := f.cached(branch, name); ok {
		return c, nil
	}

	ns.Branch = branch
	vv, ok := f.store.Get(configKey(ns, name), ids.Now())
	if !ok {
		return nil, strataerr.New(strataerr.CollectionNotFound, "vector collection %q does not exist", name)
	}
	cfg, ok := valueToConfig(vv.Value)
	if !ok {
		return nil, strataerr.New(strataerr.Corruption, "vector collection %q config is corrupt", name)
	}

	c := newCollection(cfg)
	prefix := recordPrefix(ns, name)
	now := ids.Now()
	for _, kv := range f.store.ScanPrefix(prefix, now) {
		rec, ok := valueToRecord(kv.Value.Value)
		if !ok {
			continue
		}
		c.keyToID[rec.Key] = rec.VectorID
		c.idToKey[rec.VectorID] = rec.Key
		c.metadata[rec.VectorID] = rec.Metadata
		c.graph.Insert(rec.VectorID, rec.Embedding, kv.Value.Timestamp)
	}

	f.mu.Lock()
	f.collections[collectionCacheKey{branch, name}] = c
	f.mu.Unlock()
	return c, nil
}

// CreateCollection registers a new, empty collection. Config is
// immutable for the collection's lifetime.
func (f *Facade) CreateCollection(ns ids.Namespace, branch ids.BranchId, name string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ns.Branch = branch

	ctx, err := f.manager.Begin(branch)
	if err != nil {
		return err
	}
	if _, existed := ctx.Read(configKey(ns, name)); existed {
		f.manager.Rollback(ctx)
		return strataerr.New(strataerr.AlreadyExists, "vector collection %q already exists", name)
	}
	ctx.Put(configKey(ns, name), configToValue(cfg))
	ctx.Put(collectionMetaKey(ns, name), metaToValue(meta{NextID: 0}))

	if _, err := f.manager.Commit(ctx, nil); err != nil {
		return err
	}

	f.mu.Lock()
	f.collections[collectionCacheKey{branch, name}] = newCollection(cfg)
	f.mu.Unlock()
	return nil
}

// DeleteCollection removes a collection's config, records and
// in-memory index. Returns false if it didn't exist.
func (f *Facade) DeleteCollection(ns ids.Namespace, branch ids.BranchId, name string) (bool, error) {
	ns.Branch = branch

	ctx, err := f.manager.Begin(branch)
	if err != nil {
		return false, err
	}
	if _, existed := ctx.Read(configKey(ns, name)); !existed {
		f.manager.Rollback(ctx)
		return false, nil
	}
	ctx.Delete(configKey(ns, name))
	ctx.Delete(collectionMetaKey(ns, name))

	prefix := recordPrefix(ns, name)
	for _, kv := range f.store.ScanPrefix(prefix, ids.Now()) {
		ctx.Delete(kv.Key)
	}

	if _, err := f.manager.Commit(ctx, nil); err != nil {
		return false, err
	}

	f.mu.Lock()
	delete(f.collections, collectionCacheKey{branch, name})
	f.mu.Unlock()
	return true, nil
}

// ListCollections returns every collection name live on branch.
func (f *Facade) ListCollections(ns ids.Namespace, branch ids.BranchId) ([]string, error) {
	ns.Branch = branch
	prefix := ids.NewKey(ns, ids.TagVectorConfig, []byte{discrimConfig})
	kvs := f.store.ScanPrefix(prefix, ids.Now())
	names := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		names = append(names, string(kv.Key.UserKey[1:]))
	}
	return names, nil
}

func validateEmbedding(embedding []float32, dimension int) error {
	if len(embedding) != dimension {
		return strataerr.New(strataerr.DimensionMismatch, "embedding has %d components, collection expects %d", len(embedding), dimension)
	}
	for _, f := range embedding {
		v := float64(f)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return strataerr.New(strataerr.InvalidEmbedding, "embedding component must be finite")
		}
	}
	return nil
}

// Upsert inserts or replaces the vector stored under key in
// collection. The existence check that decides insert-vs-update is
// made under the collection's write lock, which is released before
// commit; two concurrent inserts of the same new key both read the
// collection's id-counter key, so the later commit fails with Conflict.
func (f *Facade) Upsert(ns ids.Namespace, branch ids.BranchId, collectionName string, key string, embedding []float32, metadata value.Value) (ids.Version, error) {
	c, err := f.loadCollection(ns, branch, collectionName)
	if err != nil {
		return ids.Version{}, err
	}
	if err := validateEmbedding(embedding, c.config.Dimension); err != nil {
		return ids.Version{}, err
	}
	if metadata.Kind == value.KindNull {
		metadata = value.Object(map[string]value.Value{})
	}

	ns.Branch = branch
	rKey := recordKey(ns, collectionName, []byte(key))

	ctx, err := f.manager.Begin(branch)
	if err != nil {
		return ids.Version{}, err
	}

	c.mu.Lock()
	existingID, isUpdate := c.keyToID[key]
	var vectorID uint64
	var m meta
	if isUpdate {
		vectorID = existingID
	} else {
		mVV, ok := ctx.Read(collectionMetaKey(ns, collectionName))
		if ok {
			m = valueToMeta(mVV.Value)
		}
		vectorID = m.NextID
		ctx.Put(collectionMetaKey(ns, collectionName), metaToValue(meta{NextID: vectorID + 1}))
	}
	c.mu.Unlock()

	rec := record{VectorID: vectorID, Key: key, Embedding: embedding, Metadata: metadata}
	ctx.Put(rKey, recordToValue(rec))

	now := ids.Now()
	applyVector := func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if isUpdate {
			c.graph.Remove(vectorID)
		}
		c.graph.Insert(vectorID, embedding, now)
		c.keyToID[key] = vectorID
		c.idToKey[vectorID] = key
		c.metadata[vectorID] = metadata
		return nil
	}

	if _, err := f.manager.Commit(ctx, applyVector); err != nil {
		return ids.Version{}, err
	}
	// Vector read/write report a single locked-down Version variant,
	// Counter(vector_id), independent of whatever Version the storage
	// layer physically tagged the write with.
	return ids.Counter(vectorID), nil
}

// Get returns the embedding and metadata for key in collection.
func (f *Facade) Get(ns ids.Namespace, branch ids.BranchId, collectionName string, key string) ([]float32, value.Value, ids.Version, bool, error) {
	c, err := f.loadCollection(ns, branch, collectionName)
	if err != nil {
		return nil, value.Value{}, ids.Version{}, false, err
	}
	ns.Branch = branch

	c.mu.RLock()
	vectorID, ok := c.keyToID[key]
	c.mu.RUnlock()
	if !ok {
		return nil, value.Value{}, ids.Version{}, false, nil
	}

	vv, ok := f.store.Get(recordKey(ns, collectionName, []byte(key)), ids.Now())
	if !ok {
		return nil, value.Value{}, ids.Version{}, false, nil
	}
	rec, ok := valueToRecord(vv.Value)
	if !ok {
		return nil, value.Value{}, ids.Version{}, false, strataerr.New(strataerr.Corruption, "vector record %q is corrupt", key)
	}
	return rec.Embedding, rec.Metadata, ids.Counter(vectorID), true, nil
}

// Delete soft-deletes key's HNSW node (preserving graph navigability
// for concurrent searches) while transactionally removing its KV
// record.
func (f *Facade) Delete(ns ids.Namespace, branch ids.BranchId, collectionName string, key string) (bool, error) {
	c, err := f.loadCollection(ns, branch, collectionName)
	if err != nil {
		return false, err
	}
	ns.Branch = branch
	rKey := recordKey(ns, collectionName, []byte(key))

	ctx, err := f.manager.Begin(branch)
	if err != nil {
		return false, err
	}
	c.mu.RLock()
	vectorID, isMember := c.keyToID[key]
	c.mu.RUnlock()
	if _, existed := ctx.Read(rKey); !existed || !isMember {
		f.manager.Rollback(ctx)
		return false, nil
	}
	ctx.Delete(rKey)

	now := ids.Now()
	applyVector := func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.graph.MarkDeleted(vectorID, now)
		delete(c.keyToID, key)
		delete(c.idToKey, vectorID)
		return nil
	}

	if _, err := f.manager.Commit(ctx, applyVector); err != nil {
		return false, err
	}
	return true, nil
}

// Search returns the k best matches for query in collection, honouring
// an optional metadata filter and budget.
func (f *Facade) Search(ns ids.Namespace, branch ids.BranchId, collectionName string, query []float32, k int, filter *Filter, budget SearchBudget) (SearchResult, error) {
	c, err := f.loadCollection(ns, branch, collectionName)
	if err != nil {
		return SearchResult{}, err
	}
	if err := validateEmbedding(query, c.config.Dimension); err != nil {
		return SearchResult{}, err
	}
	asOf := ids.Now()
	return c.graph.Search(query, k, filter, c.metadataOf, asOf, budget), nil
}
