package command

import (
	"sync"

	"github.com/stratadb/strata/pkg/config"
	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/primitives/branch"
	"github.com/stratadb/strata/pkg/primitives/event"
	"github.com/stratadb/strata/pkg/primitives/jsondoc"
	"github.com/stratadb/strata/pkg/primitives/kv"
	"github.com/stratadb/strata/pkg/primitives/state"
	"github.com/stratadb/strata/pkg/strataerr"
	"github.com/stratadb/strata/pkg/txn"
	"github.com/stratadb/strata/pkg/vector"
)

// Hooks wires administrative commands to whatever pkg/engine considers
// a flush or a compaction, the same callback-seam pattern txn.Manager
// uses for VectorApplier and branch.Facade uses for VectorDropper: the
// executor stays ignorant of WAL/snapshot internals.
type Hooks struct {
	Flush   func() error
	Compact func() error
}

// Executor dispatches every Command to the primitive facade that
// implements it. One Executor serves one fixed (tenant, app,
// agent, space) scope — the command surface names only Branch as an
// optional, per-command override, so
// the rest of the namespace is pinned at construction rather than
// threaded through every command.
type Executor struct {
	ns            ids.Namespace
	defaultBranch ids.BranchId
	mode          config.AccessMode

	kv     *kv.Facade
	event  *event.Facade
	state  *state.Facade
	json   *jsondoc.Facade
	vector *vector.Facade
	branch *branch.Facade

	manager *txn.Manager

	Hooks Hooks

	txMu   sync.Mutex
	txNext uint64
	txns   map[uint64]*txn.Context
}

// New builds an Executor over the given facades, serving ns with
// defaultBranch as the branch commands resolve to when they omit one.
func New(ns ids.Namespace, defaultBranch ids.BranchId, mode config.AccessMode,
	kvF *kv.Facade, eventF *event.Facade, stateF *state.Facade, jsonF *jsondoc.Facade,
	vectorF *vector.Facade, branchF *branch.Facade, manager *txn.Manager) *Executor {
	return &Executor{
		ns: ns, defaultBranch: defaultBranch, mode: mode,
		kv: kvF, event: eventF, state: stateF, json: jsonF, vector: vectorF, branch: branchF,
		manager: manager,
		txns:    make(map[uint64]*txn.Context),
	}
}

// SetMode changes the executor's access mode at runtime, the way
// opening a database read-only vs. read-write would be decided once
// but may need to flip (e.g. a replica promoted to primary).
func (e *Executor) SetMode(mode config.AccessMode) { e.mode = mode }

func (e *Executor) resolveBranch(b *ids.BranchId) ids.BranchId {
	if b == nil {
		return e.defaultBranch
	}
	return *b
}

// isMutating reports whether cmd can change durable state, the single
// predicate read-only rejection is built on.
func isMutating(cmd Command) bool {
	switch cmd.(type) {
	case KvPut, KvDelete,
		JsonCreate, JsonSet, JsonMerge, JsonDeleteAtPath, JsonDestroy,
		EventAppend,
		StateInit, StateSet, StateCas, StateDelete,
		VectorCreateCollection, VectorUpsert, VectorDelete, VectorDeleteCollection,
		BranchCreate, BranchFork, BranchDelete,
		TxnCommit,
		Flush, Compact:
		return true
	default:
		return false
	}
}

// Execute dispatches cmd, centralizing branch resolution and read-only
// rejection ahead of the type switch so neither can be skipped by a
// case that forgets to apply them.
func (e *Executor) Execute(cmd Command) (Output, error) {
	if e.mode == config.ReadOnly && isMutating(cmd) {
		return nil, strataerr.New(strataerr.ReadOnly, "database is open read-only")
	}

	switch c := cmd.(type) {

	case KvPut:
		return e.execKvPut(c)
	case KvGet:
		return e.execKvGet(c)
	case KvDelete:
		return e.execKvDelete(c)
	case KvList:
		return e.execKvList(c)
	case KvHistory:
		return e.execKvHistory(c)

	case JsonCreate:
		return e.execJsonCreate(c)
	case JsonSet:
		return e.execJsonSet(c)
	case JsonGet:
		return e.execJsonGet(c)
	case JsonMerge:
		return e.execJsonMerge(c)
	case JsonDeleteAtPath:
		return e.execJsonDeleteAtPath(c)
	case JsonDestroy:
		return e.execJsonDestroy(c)

	case EventAppend:
		return e.execEventAppend(c)
	case EventRead:
		return e.execEventRead(c)
	case EventReadByType:
		return e.execEventReadByType(c)
	case EventLen:
		return e.execEventLen(c)
	case EventVerifyChain:
		return e.execEventVerifyChain(c)

	case StateInit:
		return e.execStateInit(c)
	case StateSet:
		return e.execStateSet(c)
	case StateRead:
		return e.execStateRead(c)
	case StateCas:
		return e.execStateCas(c)
	case StateDelete:
		return e.execStateDelete(c)
	case StateHistory:
		return e.execStateHistory(c)

	case VectorCreateCollection:
		return e.execVectorCreateCollection(c)
	case VectorUpsert:
		return e.execVectorUpsert(c)
	case VectorGet:
		return e.execVectorGet(c)
	case VectorDelete:
		return e.execVectorDelete(c)
	case VectorSearch:
		return e.execVectorSearch(c.Branch, c.Collection, c.Query, c.K, c.Filter, c.Budget)
	case VectorListCollections:
		return e.execVectorListCollections(c)
	case VectorDeleteCollection:
		return e.execVectorDeleteCollection(c)
	case Search:
		return e.execVectorSearch(c.Branch, c.Collection, c.Query, c.K, c.Filter, c.Budget)

	case BranchCreate:
		return e.execBranchCreate(c)
	case BranchFork:
		return e.execBranchFork(c)
	case BranchGet:
		return e.execBranchGet(c)
	case BranchList:
		return e.execBranchList(c)
	case BranchExistsCmd:
		return e.execBranchExists(c)
	case BranchDelete:
		return e.execBranchDelete(c)

	case TxnBegin:
		return e.execTxnBegin(c)
	case TxnCommit:
		return e.execTxnCommit(c)
	case TxnRollback:
		return e.execTxnRollback(c)

	case Ping:
		return Unit{}, nil
	case Info:
		return e.execInfo()
	case Flush:
		if e.Hooks.Flush == nil {
			return Unit{}, nil
		}
		if err := e.Hooks.Flush(); err != nil {
			return nil, err
		}
		return Unit{}, nil
	case Compact:
		if e.Hooks.Compact == nil {
			return Unit{}, nil
		}
		if err := e.Hooks.Compact(); err != nil {
			return nil, err
		}
		return Unit{}, nil

	default:
		return nil, strataerr.New(strataerr.InvalidInput, "unrecognized command %T", cmd)
	}
}

// --- Kv ---

func (e *Executor) execKvPut(c KvPut) (Output, error) {
	if c.Txn != nil {
		ctx, err := e.txnFor(c.Txn)
		if err != nil {
			return nil, err
		}
		if err := ids.ValidateUserKey(c.Key); err != nil {
			return nil, strataerr.Wrap(strataerr.InvalidInput, err, "invalid kv key")
		}
		ns := e.ns
		ns.Branch = ctx.Branch
		ctx.Put(ids.NewKey(ns, ids.TagKv, c.Key), c.Value)
		return Unit{}, nil
	}
	branch := e.resolveBranch(c.Branch)
	version, err := e.kv.Put(e.ns, branch, c.Key, c.Value)
	if err != nil {
		return nil, err
	}
	return VersionOutput{Version: version}, nil
}

func (e *Executor) execKvGet(c KvGet) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	vv, ok, err := e.kv.Get(e.ns, branch, c.Key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return MaybeVersionedOutput{Found: false}, nil
	}
	return MaybeVersionedOutput{Value: &vv, Found: true}, nil
}

func (e *Executor) execKvDelete(c KvDelete) (Output, error) {
	if c.Txn != nil {
		ctx, err := e.txnFor(c.Txn)
		if err != nil {
			return nil, err
		}
		if err := ids.ValidateUserKey(c.Key); err != nil {
			return nil, strataerr.Wrap(strataerr.InvalidInput, err, "invalid kv key")
		}
		ns := e.ns
		ns.Branch = ctx.Branch
		ctx.Delete(ids.NewKey(ns, ids.TagKv, c.Key))
		return Unit{}, nil
	}
	branch := e.resolveBranch(c.Branch)
	ok, err := e.kv.Delete(e.ns, branch, c.Key)
	if err != nil {
		return nil, err
	}
	return BoolOutput{Value: ok}, nil
}

func (e *Executor) execKvList(c KvList) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	kvs, err := e.kv.List(e.ns, branch, c.Prefix)
	if err != nil {
		return nil, err
	}
	return VersionedValuesOutput{Values: kvs}, nil
}

func (e *Executor) execKvHistory(c KvHistory) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	vvs, err := e.kv.History(e.ns, branch, c.Key)
	if err != nil {
		return nil, err
	}
	return HistoryOutput{Values: vvs}, nil
}

// --- Json ---

func (e *Executor) execJsonCreate(c JsonCreate) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	version, err := e.json.Create(e.ns, branch, c.DocID, c.Root)
	if err != nil {
		return nil, err
	}
	return VersionOutput{Version: version}, nil
}

func (e *Executor) execJsonSet(c JsonSet) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	version, err := e.json.Set(e.ns, branch, c.DocID, c.Path, c.Value)
	if err != nil {
		return nil, err
	}
	return VersionOutput{Version: version}, nil
}

func (e *Executor) execJsonGet(c JsonGet) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	v, found, err := e.json.Get(e.ns, branch, c.DocID, c.Path)
	if err != nil {
		return nil, err
	}
	if !found {
		return CellOutput{Found: false}, nil
	}
	return CellOutput{Value: v, Found: true}, nil
}

func (e *Executor) execJsonMerge(c JsonMerge) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	version, err := e.json.Merge(e.ns, branch, c.DocID, c.Path, c.Patch)
	if err != nil {
		return nil, err
	}
	return VersionOutput{Version: version}, nil
}

func (e *Executor) execJsonDeleteAtPath(c JsonDeleteAtPath) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	ok, err := e.json.DeleteAtPath(e.ns, branch, c.DocID, c.Path)
	if err != nil {
		return nil, err
	}
	return BoolOutput{Value: ok}, nil
}

func (e *Executor) execJsonDestroy(c JsonDestroy) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	ok, err := e.json.Destroy(e.ns, branch, c.DocID)
	if err != nil {
		return nil, err
	}
	return BoolOutput{Value: ok}, nil
}

// --- Event ---

func (e *Executor) execEventAppend(c EventAppend) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	entry, err := e.event.Append(e.ns, branch, c.EventType, c.Payload)
	if err != nil {
		return nil, err
	}
	return EntryOutput{Entry: entry, Found: true}, nil
}

func (e *Executor) execEventRead(c EventRead) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	entry, ok, err := e.event.Read(e.ns, branch, c.Sequence)
	if err != nil {
		return nil, err
	}
	return EntryOutput{Entry: entry, Found: ok}, nil
}

func (e *Executor) execEventReadByType(c EventReadByType) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	entries, err := e.event.ReadByType(e.ns, branch, c.EventType)
	if err != nil {
		return nil, err
	}
	return EntriesOutput{Entries: entries}, nil
}

func (e *Executor) execEventLen(c EventLen) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	n, err := e.event.Len(e.ns, branch)
	if err != nil {
		return nil, err
	}
	return UintOutput{Value: n}, nil
}

func (e *Executor) execEventVerifyChain(c EventVerifyChain) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	if err := e.event.VerifyChain(e.ns, branch); err != nil {
		return nil, err
	}
	return Unit{}, nil
}

// --- State ---

func (e *Executor) execStateInit(c StateInit) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	if err := e.state.Init(e.ns, branch, c.Key, c.Value); err != nil {
		return nil, err
	}
	return Unit{}, nil
}

func (e *Executor) execStateSet(c StateSet) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	counter, err := e.state.Set(e.ns, branch, c.Key, c.Value)
	if err != nil {
		return nil, err
	}
	return UintOutput{Value: counter}, nil
}

func (e *Executor) execStateRead(c StateRead) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	v, counter, found, err := e.state.Read(e.ns, branch, c.Key)
	if err != nil {
		return nil, err
	}
	return CellOutput{Value: v, Counter: counter, Found: found}, nil
}

func (e *Executor) execStateCas(c StateCas) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	newCounter, matched, err := e.state.Cas(e.ns, branch, c.Key, c.ExpectedCounter, c.Value)
	if err != nil {
		return nil, err
	}
	if !matched {
		return MaybeVersionOutput{Version: nil}, nil
	}
	v := ids.Counter(newCounter)
	return MaybeVersionOutput{Version: &v}, nil
}

func (e *Executor) execStateDelete(c StateDelete) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	ok, err := e.state.Delete(e.ns, branch, c.Key)
	if err != nil {
		return nil, err
	}
	return BoolOutput{Value: ok}, nil
}

func (e *Executor) execStateHistory(c StateHistory) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	vvs, err := e.state.History(e.ns, branch, c.Key)
	if err != nil {
		return nil, err
	}
	return HistoryOutput{Values: vvs}, nil
}

// --- Vector ---

func (e *Executor) execVectorCreateCollection(c VectorCreateCollection) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	if err := e.vector.CreateCollection(e.ns, branch, c.Name, c.Config); err != nil {
		return nil, err
	}
	return Unit{}, nil
}

func (e *Executor) execVectorUpsert(c VectorUpsert) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	version, err := e.vector.Upsert(e.ns, branch, c.Collection, c.Key, c.Embedding, c.Metadata)
	if err != nil {
		return nil, err
	}
	return VersionOutput{Version: version}, nil
}

func (e *Executor) execVectorGet(c VectorGet) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	embedding, metadata, version, found, err := e.vector.Get(e.ns, branch, c.Collection, c.Key)
	if err != nil {
		return nil, err
	}
	if !found {
		return VectorGetOutput{Found: false}, nil
	}
	return VectorGetOutput{Embedding: embedding, Metadata: metadata, Version: version, Found: true}, nil
}

func (e *Executor) execVectorDelete(c VectorDelete) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	ok, err := e.vector.Delete(e.ns, branch, c.Collection, c.Key)
	if err != nil {
		return nil, err
	}
	return BoolOutput{Value: ok}, nil
}

func (e *Executor) execVectorSearch(branchPtr *ids.BranchId, collection string, query []float32, k int, filter *vector.Filter, budget vector.SearchBudget) (Output, error) {
	branch := e.resolveBranch(branchPtr)
	result, err := e.vector.Search(e.ns, branch, collection, query, k, filter, budget)
	if err != nil {
		return nil, err
	}
	return VectorMatchesOutput{Matches: result.Matches, Truncated: result.Truncated}, nil
}

func (e *Executor) execVectorListCollections(c VectorListCollections) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	names, err := e.vector.ListCollections(e.ns, branch)
	if err != nil {
		return nil, err
	}
	return NamesOutput{Names: names}, nil
}

func (e *Executor) execVectorDeleteCollection(c VectorDeleteCollection) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	ok, err := e.vector.DeleteCollection(e.ns, branch, c.Name)
	if err != nil {
		return nil, err
	}
	return BoolOutput{Value: ok}, nil
}

// --- Branch ---

func (e *Executor) execBranchCreate(c BranchCreate) (Output, error) {
	m, version, err := e.branch.Create(c.Name, c.Tags)
	if err != nil {
		return nil, err
	}
	return BranchWithVersionOutput{Info: m, Version: version}, nil
}

func (e *Executor) execBranchFork(c BranchFork) (Output, error) {
	m, version, err := e.branch.Fork(c.ParentName, c.Name, c.Tags)
	if err != nil {
		return nil, err
	}
	return BranchWithVersionOutput{Info: m, Version: version}, nil
}

func (e *Executor) execBranchGet(c BranchGet) (Output, error) {
	m, ok, err := e.branch.Get(c.Name)
	if err != nil {
		return nil, err
	}
	return BranchOutput{Metadata: m, Found: ok}, nil
}

func (e *Executor) execBranchList(c BranchList) (Output, error) {
	all, err := e.branch.List()
	if err != nil {
		return nil, err
	}
	return BranchesOutput{Branches: all}, nil
}

func (e *Executor) execBranchExists(c BranchExistsCmd) (Output, error) {
	ok, err := e.branch.Exists(c.Name)
	if err != nil {
		return nil, err
	}
	return BoolOutput{Value: ok}, nil
}

func (e *Executor) execBranchDelete(c BranchDelete) (Output, error) {
	ok, err := e.branch.Delete(c.Name)
	if err != nil {
		return nil, err
	}
	return BoolOutput{Value: ok}, nil
}

// --- Explicit transactions ---

// execTxnBegin opens a *txn.Context the caller stages Kv operations
// into via KvPut/KvDelete's Txn field, committed or discarded by a
// later TxnCommit/TxnRollback. Only Kv ops are accepted onto a handle:
// Json/State/Event each wrap their raw storage.Value in primitive-
// specific framing (path resolution, cas counters, hash chains) that
// lives inside their own facades and isn't exported for a generic
// caller to replicate correctly outside of it — Kv has no such
// framing, so it's the one primitive an explicit multi-key transaction
// can stage safely at this layer.
func (e *Executor) execTxnBegin(c TxnBegin) (Output, error) {
	branch := e.resolveBranch(c.Branch)
	ctx, err := e.manager.Begin(branch)
	if err != nil {
		return nil, err
	}
	e.txMu.Lock()
	e.txNext++
	id := e.txNext
	e.txns[id] = ctx
	e.txMu.Unlock()
	return TxnHandleOutput{Handle: &TxnHandle{id: id}}, nil
}

func (e *Executor) txnFor(h *TxnHandle) (*txn.Context, error) {
	if h == nil {
		return nil, strataerr.New(strataerr.InvalidInput, "no transaction handle given")
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()
	ctx, ok := e.txns[h.id]
	if !ok {
		return nil, strataerr.New(strataerr.InvalidInput, "unknown or already-closed transaction")
	}
	return ctx, nil
}

func (e *Executor) execTxnCommit(c TxnCommit) (Output, error) {
	ctx, err := e.txnFor(c.Txn)
	if err != nil {
		return nil, err
	}
	version, err := e.manager.Commit(ctx, nil)
	e.txMu.Lock()
	delete(e.txns, c.Txn.id)
	e.txMu.Unlock()
	if err != nil {
		return nil, err
	}
	return VersionOutput{Version: version}, nil
}

func (e *Executor) execTxnRollback(c TxnRollback) (Output, error) {
	ctx, err := e.txnFor(c.Txn)
	if err != nil {
		return nil, err
	}
	e.manager.Rollback(ctx)
	e.txMu.Lock()
	delete(e.txns, c.Txn.id)
	e.txMu.Unlock()
	return Unit{}, nil
}

// --- Administrative ---

func (e *Executor) execInfo() (Output, error) {
	branches, err := e.branch.List()
	if err != nil {
		return nil, err
	}
	return InfoOutput{
		AccessMode:     string(e.mode),
		BranchCount:    len(branches),
		CommittedCount: e.manager.CommittedCount(),
	}, nil
}
