// Package event is the append-only event log primitive: a dense,
// hash-chained sequence of entries per branch.
package event

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/strataerr"
	"github.com/stratadb/strata/pkg/txn"
	"github.com/stratadb/strata/pkg/value"
)

// Zero32 is the canonical prev_hash of the first event in a branch.
var Zero32 [32]byte

// userKey layout within the Event primitive's key space: a one-byte
// discriminator distinguishes branch metadata (sorts first) from
// event entries and the per-type secondary index, so all three live
// under one primitive tag's prefix scan without colliding.
const (
	discrimMeta  byte = 0x00
	discrimEntry byte = 0x01
	discrimType  byte = 0x02
)

func metaKey(ns ids.Namespace) ids.Key {
	return ids.NewKey(ns, ids.TagEvent, []byte{discrimMeta})
}

func entryKey(ns ids.Namespace, seq uint64) ids.Key {
	buf := make([]byte, 9)
	buf[0] = discrimEntry
	binary.BigEndian.PutUint64(buf[1:], seq)
	return ids.NewKey(ns, ids.TagEvent, buf)
}

func typeIndexKey(ns ids.Namespace, eventType string, seq uint64) ids.Key {
	buf := make([]byte, 1+len(eventType)+8)
	buf[0] = discrimType
	copy(buf[1:], eventType)
	binary.BigEndian.PutUint64(buf[1+len(eventType):], seq)
	return ids.NewKey(ns, ids.TagEvent, buf)
}

// Entry is one event in the log.
type Entry struct {
	Sequence  uint64
	EventType string
	Payload   value.Value
	Timestamp ids.Timestamp
	PrevHash  [32]byte
	Hash      [32]byte
}

// canonicalBytes renders the fields that feed the hash chain in a
// single canonical ordering: little-endian integers, 4-byte length
// prefixes on variable-length fields, applied identically whether this
// entry was appended directly or from inside a larger transaction.
func canonicalBytes(seq uint64, eventType string, payload value.Value, ts ids.Timestamp, prevHash [32]byte) []byte {
	var buf []byte
	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], seq)
	buf = append(buf, seqBuf[:]...)

	var tsBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], uint64(ts))
	buf = append(buf, tsBuf[:]...)

	buf = appendLP(buf, []byte(eventType))
	buf = appendLP(buf, encodePayload(payload))
	buf = append(buf, prevHash[:]...)
	return buf
}

func appendLP(buf, field []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(field)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, field...)
}

// encodePayload renders an event payload deterministically: object
// keys sorted, nested structure walked recursively, so the same
// logical payload always hashes the same regardless of map iteration
// order.
func encodePayload(v value.Value) []byte {
	var buf []byte
	switch v.Kind {
	case value.KindObject:
		obj, _ := v.AsObject()
		keys := value.SortedObjectKeys(v)
		for _, k := range keys {
			buf = appendLP(buf, []byte(k))
			buf = append(buf, encodePayload(obj[k])...)
		}
	case value.KindArray:
		items, _ := v.AsArray()
		for _, item := range items {
			buf = append(buf, encodePayload(item)...)
		}
	case value.KindString:
		s, _ := v.AsString()
		buf = appendLP(buf, []byte(s))
	case value.KindBytes:
		b, _ := v.AsBytes()
		buf = appendLP(buf, b)
	case value.KindInt:
		i, _ := v.AsInt()
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(i))
		buf = append(buf, b[:]...)
	case value.KindFloat:
		f, _ := v.AsFloat()
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
		buf = append(buf, b[:]...)
	case value.KindBool:
		b, _ := v.AsBool()
		if b {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}

// entryToValue/valueToEntry project Entry into the Value grammar so it
// travels through the existing WAL/snapshot serialization paths
// unchanged, the same way every other primitive's entity shape does.
func entryToValue(e Entry) value.Value {
	return value.Object(map[string]value.Value{
		"sequence":   value.Int(int64(e.Sequence)),
		"event_type": value.String(e.EventType),
		"payload":    e.Payload,
		"timestamp":  value.Int(int64(e.Timestamp)),
		"prev_hash":  value.Bytes(e.PrevHash[:]),
		"hash":       value.Bytes(e.Hash[:]),
	})
}

func valueToEntry(v value.Value) (Entry, bool) {
	obj, ok := v.AsObject()
	if !ok {
		return Entry{}, false
	}
	seq, _ := obj["sequence"].AsInt()
	et, _ := obj["event_type"].AsString()
	ts, _ := obj["timestamp"].AsInt()
	prevHash, _ := obj["prev_hash"].AsBytes()
	hash, _ := obj["hash"].AsBytes()
	e := Entry{Sequence: uint64(seq), EventType: et, Payload: obj["payload"], Timestamp: ids.Timestamp(ts)}
	copy(e.PrevHash[:], prevHash)
	copy(e.Hash[:], hash)
	return e, true
}

// Facade is the event log primitive's entry point.
type Facade struct {
	store   *storage.ShardedStore
	manager *txn.Manager
}

// New builds an event facade.
func New(store *storage.ShardedStore, manager *txn.Manager) *Facade {
	return &Facade{store: store, manager: manager}
}

// meta is the per-branch chain tail bookkeeping: next sequence to
// assign and the previous entry's hash. It is itself a StoredValue
// under the branch's Event namespace, so it is durable and
// transactional exactly like any other write.
type meta struct {
	NextSeq  uint64
	LastHash [32]byte
}

func (f *Facade) readMeta(ctx *txn.Context, ns ids.Namespace) meta {
	vv, ok := ctx.Read(metaKey(ns))
	if !ok {
		return meta{NextSeq: 0, LastHash: Zero32}
	}
	obj, _ := vv.Value.AsObject()
	next, _ := obj["next_seq"].AsInt()
	hashBytes, _ := obj["last_hash"].AsBytes()
	m := meta{NextSeq: uint64(next)}
	copy(m.LastHash[:], hashBytes)
	return m
}

func metaToValue(m meta) value.Value {
	return value.Object(map[string]value.Value{
		"next_seq":  value.Int(int64(m.NextSeq)),
		"last_hash": value.Bytes(m.LastHash[:]),
	})
}

// Append writes the next event in branch's chain. Appending serializes
// on the branch's metadata key (every appender reads and writes
// meta()), a high-contention path that warrants a larger retry budget
// than per-cell CAS paths.
func (f *Facade) Append(ns ids.Namespace, branch ids.BranchId, eventType string, payload value.Value) (Entry, error) {
	ns.Branch = branch
	var result Entry
	err := txn.Retry(txn.EventAppendBudget, func() error {
		ctx, err := f.manager.Begin(branch)
		if err != nil {
			return err
		}
		m := f.readMeta(ctx, ns)
		ts := ids.Now()
		hash := sha256.Sum256(canonicalBytes(m.NextSeq, eventType, payload, ts, m.LastHash))
		entry := Entry{Sequence: m.NextSeq, EventType: eventType, Payload: payload, Timestamp: ts, PrevHash: m.LastHash, Hash: hash}

		ctx.Put(entryKey(ns, entry.Sequence), entryToValue(entry))
		ctx.Put(typeIndexKey(ns, eventType, entry.Sequence), value.Int(int64(entry.Sequence)))
		ctx.Put(metaKey(ns), metaToValue(meta{NextSeq: m.NextSeq + 1, LastHash: hash}))

		if _, commitErr := f.manager.Commit(ctx, nil); commitErr != nil {
			return commitErr
		}
		result = entry
		return nil
	})
	return result, err
}

// Read returns the entry at sequence, or ok=false if it doesn't exist.
func (f *Facade) Read(ns ids.Namespace, branch ids.BranchId, sequence uint64) (Entry, bool, error) {
	ns.Branch = branch
	vv, ok := f.store.Get(entryKey(ns, sequence), ids.Now())
	if !ok {
		return Entry{}, false, nil
	}
	e, ok := valueToEntry(vv.Value)
	return e, ok, nil
}

// Len returns the number of events appended to branch (the next
// sequence to be assigned).
func (f *Facade) Len(ns ids.Namespace, branch ids.BranchId) (uint64, error) {
	ns.Branch = branch
	vv, ok := f.store.Get(metaKey(ns), ids.Now())
	if !ok {
		return 0, nil
	}
	obj, _ := vv.Value.AsObject()
	next, _ := obj["next_seq"].AsInt()
	return uint64(next), nil
}

// ReadByType returns every event of eventType in sequence order, using
// the per-type index keys written at append time, so only matching
// entries are decoded.
func (f *Facade) ReadByType(ns ids.Namespace, branch ids.BranchId, eventType string) ([]Entry, error) {
	ns.Branch = branch
	prefix := ids.NewKey(ns, ids.TagEvent, append([]byte{discrimType}, []byte(eventType)...))
	kvs := f.store.ScanPrefix(prefix, ids.Now())

	entries := make([]Entry, 0, len(kvs))
	for _, kv := range kvs {
		seq, ok := kv.Value.Value.AsInt()
		if !ok {
			continue
		}
		e, found, err := f.Read(ns, branch, uint64(seq))
		if err != nil {
			return nil, err
		}
		// The prefix also matches longer type names that start with
		// eventType, so keep only exact matches.
		if found && e.EventType == eventType {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// VerifyChain walks every event in branch and confirms the hash chain
// is unbroken.
func (f *Facade) VerifyChain(ns ids.Namespace, branch ids.BranchId) error {
	ns.Branch = branch
	length, err := f.Len(ns, branch)
	if err != nil {
		return err
	}
	prevHash := Zero32
	for seq := uint64(0); seq < length; seq++ {
		e, ok, err := f.Read(ns, branch, seq)
		if err != nil {
			return err
		}
		if !ok {
			return strataerr.New(strataerr.Corruption, "event chain missing sequence %d", seq)
		}
		if e.PrevHash != prevHash {
			return strataerr.New(strataerr.Corruption, "event chain broken at sequence %d", seq)
		}
		want := sha256.Sum256(canonicalBytes(e.Sequence, e.EventType, e.Payload, e.Timestamp, e.PrevHash))
		if want != e.Hash {
			return strataerr.New(strataerr.Corruption, "event hash mismatch at sequence %d", seq)
		}
		prevHash = e.Hash
	}
	return nil
}
