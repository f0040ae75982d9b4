// Package command is Strata's executor: the single programmatic
// boundary every caller drives the engine through. A Command
// is a tagged union of every operation the engine exposes; Execute maps
// each one to exactly one Output variant. The dispatcher centralizes
// two cross-cutting concerns so no individual case can forget them:
// branch resolution (an absent Branch field resolves to the executor's
// default) and read-only rejection.
package command

import (
	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/primitives/branch"
	"github.com/stratadb/strata/pkg/primitives/event"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/value"
	"github.com/stratadb/strata/pkg/vector"
)

// Command is the tagged union of every operation the executor accepts.
// Go has no sum type, so the tag is the concrete type itself: Execute
// type-switches over it. Every command that touches branch-scoped data
// carries a Branch field; nil resolves to the executor's default.
type Command interface{ isCommand() }

// TxnHandle identifies an explicit, caller-spanning transaction opened
// by TxnBegin. Only Kv commands may be staged into one (see
// Executor.Execute's TxnBegin case for why): Vector writes have no Txn
// field at all, which is what keeps them structurally out of reach of
// a multi-op transaction without Execute needing
// a runtime check to enforce it.
type TxnHandle struct{ id uint64 }

// --- KV ---

type KvPut struct {
	Branch *ids.BranchId
	Key    []byte
	Value  value.Value
	Txn    *TxnHandle
}

type KvGet struct {
	Branch *ids.BranchId
	Key    []byte
}

type KvDelete struct {
	Branch *ids.BranchId
	Key    []byte
	Txn    *TxnHandle
}

type KvList struct {
	Branch *ids.BranchId
	Prefix []byte
}

type KvHistory struct {
	Branch *ids.BranchId
	Key    []byte
}

func (KvPut) isCommand()     {}
func (KvGet) isCommand()     {}
func (KvDelete) isCommand()  {}
func (KvList) isCommand()    {}
func (KvHistory) isCommand() {}

// --- JSON document ---

type JsonCreate struct {
	Branch *ids.BranchId
	DocID  []byte
	Root   value.Value
}

type JsonSet struct {
	Branch *ids.BranchId
	DocID  []byte
	Path   string
	Value  value.Value
}

type JsonGet struct {
	Branch *ids.BranchId
	DocID  []byte
	Path   string
}

type JsonMerge struct {
	Branch *ids.BranchId
	DocID  []byte
	Path   string
	Patch  value.Value
}

type JsonDeleteAtPath struct {
	Branch *ids.BranchId
	DocID  []byte
	Path   string
}

type JsonDestroy struct {
	Branch *ids.BranchId
	DocID  []byte
}

func (JsonCreate) isCommand()       {}
func (JsonSet) isCommand()          {}
func (JsonGet) isCommand()          {}
func (JsonMerge) isCommand()        {}
func (JsonDeleteAtPath) isCommand() {}
func (JsonDestroy) isCommand()      {}

// --- Event log ---

type EventAppend struct {
	Branch    *ids.BranchId
	EventType string
	Payload   value.Value
}

type EventRead struct {
	Branch   *ids.BranchId
	Sequence uint64
}

type EventReadByType struct {
	Branch    *ids.BranchId
	EventType string
}

type EventLen struct {
	Branch *ids.BranchId
}

type EventVerifyChain struct {
	Branch *ids.BranchId
}

func (EventAppend) isCommand()     {}
func (EventRead) isCommand()       {}
func (EventReadByType) isCommand() {}
func (EventLen) isCommand()        {}
func (EventVerifyChain) isCommand() {}

// --- State cell ---

type StateInit struct {
	Branch *ids.BranchId
	Key    []byte
	Value  value.Value
}

type StateSet struct {
	Branch *ids.BranchId
	Key    []byte
	Value  value.Value
}

type StateRead struct {
	Branch *ids.BranchId
	Key    []byte
}

type StateCas struct {
	Branch          *ids.BranchId
	Key             []byte
	ExpectedCounter uint64
	Value           value.Value
}

type StateDelete struct {
	Branch *ids.BranchId
	Key    []byte
}

type StateHistory struct {
	Branch *ids.BranchId
	Key    []byte
}

func (StateInit) isCommand()    {}
func (StateSet) isCommand()     {}
func (StateRead) isCommand()    {}
func (StateCas) isCommand()     {}
func (StateDelete) isCommand()  {}
func (StateHistory) isCommand() {}

// --- Vector ---

type VectorCreateCollection struct {
	Branch *ids.BranchId
	Name   string
	Config vector.Config
}

type VectorUpsert struct {
	Branch     *ids.BranchId
	Collection string
	Key        string
	Embedding  []float32
	Metadata   value.Value
}

type VectorGet struct {
	Branch     *ids.BranchId
	Collection string
	Key        string
}

type VectorDelete struct {
	Branch     *ids.BranchId
	Collection string
	Key        string
}

type VectorSearch struct {
	Branch     *ids.BranchId
	Collection string
	Query      []float32
	K          int
	Filter     *vector.Filter
	Budget     vector.SearchBudget
}

type VectorListCollections struct {
	Branch *ids.BranchId
}

type VectorDeleteCollection struct {
	Branch *ids.BranchId
	Name   string
}

func (VectorCreateCollection) isCommand() {}
func (VectorUpsert) isCommand()           {}
func (VectorGet) isCommand()              {}
func (VectorDelete) isCommand()           {}
func (VectorSearch) isCommand()           {}
func (VectorListCollections) isCommand()  {}
func (VectorDeleteCollection) isCommand() {}

// --- Branch ---

type BranchCreate struct {
	Name string
	Tags map[string]string
}

type BranchFork struct {
	ParentName string
	Name       string
	Tags       map[string]string
}

type BranchGet struct{ Name string }

type BranchList struct{}

type BranchExistsCmd struct{ Name string }

type BranchDelete struct{ Name string }

func (BranchCreate) isCommand()     {}
func (BranchFork) isCommand()       {}
func (BranchGet) isCommand()        {}
func (BranchList) isCommand()       {}
func (BranchExistsCmd) isCommand()  {}
func (BranchDelete) isCommand()     {}

// --- Explicit cross-op transactions ---

type TxnBegin struct {
	Branch *ids.BranchId
}

type TxnCommit struct {
	Txn *TxnHandle
}

type TxnRollback struct {
	Txn *TxnHandle
}

func (TxnBegin) isCommand()    {}
func (TxnCommit) isCommand()   {}
func (TxnRollback) isCommand() {}

// --- Administrative ---

// Ping is a liveness check: it touches nothing and always succeeds.
type Ping struct{}

// Info reports engine-wide state a caller can poll without knowing any
// collection or branch name up front.
type Info struct{}

// Flush and Compact delegate to whatever pkg/engine wires as their
// Hooks (see Executor.Hooks) — the executor itself owns no WAL or
// snapshot state to flush or compact.
type Flush struct{}
type Compact struct{}

// Search is a top-level convenience alias for VectorSearch: identical
// fields, identical behaviour. VectorSearch is the primitive operation
// and Search is the administrative-surface spelling of the same call.
type Search struct {
	Branch     *ids.BranchId
	Collection string
	Query      []float32
	K          int
	Filter     *vector.Filter
	Budget     vector.SearchBudget
}

func (Ping) isCommand()    {}
func (Info) isCommand()    {}
func (Flush) isCommand()   {}
func (Compact) isCommand() {}
func (Search) isCommand()  {}

// Output is the tagged union every Execute call returns exactly one
// member of. "Found" and "not found" share a single variant,
// distinguished by a Found/presence field rather than a second
// variant: Go has no Option<T>, so a bool alongside the payload is the
// idiomatic stand-in.
type Output interface{ isOutput() }

type Unit struct{}

type BoolOutput struct{ Value bool }

type UintOutput struct{ Value uint64 }

type VersionOutput struct{ Version ids.Version }

// MaybeVersionOutput is CAS's result shape: nil means the counter
// didn't match and nothing changed.
type MaybeVersionOutput struct{ Version *ids.Version }

type MaybeVersionedOutput struct {
	Value *storage.VersionedValue
	Found bool
}

type VersionedValuesOutput struct{ Values []storage.KeyedValue }

type HistoryOutput struct{ Values []storage.VersionedValue }

type CellOutput struct {
	Value   value.Value
	Counter uint64
	Found   bool
}

type EntryOutput struct {
	Entry Entry
	Found bool
}

// Entry mirrors pkg/primitives/event.Entry so pkg/command doesn't force
// callers who only need the executor's Output shapes to also import
// pkg/primitives/event for the type itself.
type Entry = event.Entry

type EntriesOutput struct{ Entries []Entry }

type VectorGetOutput struct {
	Embedding []float32
	Metadata  value.Value
	Version   ids.Version
	Found     bool
}

type VectorMatchesOutput struct {
	Matches   []vector.Match
	Truncated bool
}

type NamesOutput struct{ Names []string }

type BranchOutput struct {
	Metadata branch.Metadata
	Found    bool
}

type BranchesOutput struct{ Branches []branch.Metadata }

type BranchWithVersionOutput struct {
	Info    branch.Metadata
	Version ids.Version
}

type TxnHandleOutput struct{ Handle *TxnHandle }

type InfoOutput struct {
	AccessMode     string
	BranchCount    int
	CommittedCount uint64
}

func (Unit) isOutput()                    {}
func (BoolOutput) isOutput()              {}
func (UintOutput) isOutput()              {}
func (VersionOutput) isOutput()           {}
func (MaybeVersionOutput) isOutput()      {}
func (MaybeVersionedOutput) isOutput()    {}
func (VersionedValuesOutput) isOutput()   {}
func (HistoryOutput) isOutput()           {}
func (CellOutput) isOutput()              {}
func (EntryOutput) isOutput()             {}
func (EntriesOutput) isOutput()           {}
func (VectorGetOutput) isOutput()         {}
func (VectorMatchesOutput) isOutput()     {}
func (NamesOutput) isOutput()             {}
func (BranchOutput) isOutput()            {}
func (BranchesOutput) isOutput()          {}
func (BranchWithVersionOutput) isOutput() {}
func (TxnHandleOutput) isOutput()         {}
func (InfoOutput) isOutput()              {}
