package snapshot

import (
	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/value"
)

// Entry is one stored key/value pair as captured into a snapshot
// section. Only live (non-tombstone) entries are ever captured: a
// tombstoned key is simply absent from the snapshot, and recovery's
// snapshot-then-WAL-tail replay never needs to see the delete that
// produced the absence, since the WAL prefix before the watermark is
// never replayed.
type Entry struct {
	Key   ids.Key
	Value storage.StoredValue
}

// wireEntry is the MessagePack-friendly projection of Entry, mirroring
// the flattening pkg/wal's wirePut/wireKey perform for the same reason:
// the codec encodes plain exported structs, not Key's raw-byte/tagged
// fields directly.
type wireEntry struct {
	Tenant       string     `codec:"t"`
	App          string     `codec:"a"`
	Agent        string     `codec:"g"`
	Branch       [16]byte   `codec:"b"`
	Space        string     `codec:"s"`
	Tag          byte       `codec:"p"`
	UserKey      []byte     `codec:"u"`
	Value        value.Wire `codec:"v"`
	VersionKind  byte       `codec:"vk"`
	VersionValue uint64     `codec:"vv"`
	Timestamp    uint64     `codec:"ts"`
	HasTTL       bool       `codec:"ht,omitempty"`
	TTLExpiresAt uint64     `codec:"te,omitempty"`
	IsTombstone  bool       `codec:"tb,omitempty"`
}

func toWireEntry(e Entry) wireEntry {
	w := wireEntry{
		Tenant:       e.Key.Namespace.Tenant,
		App:          e.Key.Namespace.App,
		Agent:        e.Key.Namespace.Agent,
		Branch:       e.Key.Namespace.Branch,
		Space:        e.Key.Namespace.Space,
		Tag:          byte(e.Key.Tag),
		UserKey:      e.Key.UserKey,
		Value:        value.ToWire(e.Value.Value),
		VersionKind:  byte(e.Value.Version.Kind),
		VersionValue: e.Value.Version.Value,
		Timestamp:    uint64(e.Value.Timestamp),
		IsTombstone:  e.Value.IsTombstone,
	}
	if e.Value.TTLExpiresAt != nil {
		w.HasTTL = true
		w.TTLExpiresAt = uint64(*e.Value.TTLExpiresAt)
	}
	return w
}

func fromWireEntry(w wireEntry) Entry {
	ns := ids.Namespace{Tenant: w.Tenant, App: w.App, Agent: w.Agent, Branch: w.Branch, Space: w.Space}
	key := ids.NewKey(ns, ids.PrimitiveTag(w.Tag), w.UserKey)
	sv := storage.StoredValue{
		Value:       value.FromWire(w.Value),
		Version:     ids.Version{Kind: ids.VersionKind(w.VersionKind), Value: w.VersionValue},
		Timestamp:   ids.Timestamp(w.Timestamp),
		IsTombstone: w.IsTombstone,
	}
	if w.HasTTL {
		ts := ids.Timestamp(w.TTLExpiresAt)
		sv.TTLExpiresAt = &ts
	}
	return Entry{Key: key, Value: sv}
}

func encodeEntries(entries []Entry) ([]byte, error) {
	wire := make([]wireEntry, len(entries))
	for i, e := range entries {
		wire[i] = toWireEntry(e)
	}
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, &codec.MsgpackHandle{})
	if err := enc.Encode(wire); err != nil {
		return nil, err
	}
	return buf, nil
}

func decodeEntries(b []byte) ([]Entry, error) {
	var wire []wireEntry
	dec := codec.NewDecoderBytes(b, &codec.MsgpackHandle{})
	if err := dec.Decode(&wire); err != nil {
		return nil, err
	}
	entries := make([]Entry, len(wire))
	for i, w := range wire {
		entries[i] = fromWireEntry(w)
	}
	return entries, nil
}
