package wal

import (
	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/value"
)

// RecordType is the single byte identifying what a WAL record's
// payload means. The ranges are a registry: each owner
// claims a contiguous block so new record kinds can be added to a
// primitive without colliding with another's.
type RecordType uint8

const (
	// RecordTxnPayload is the one record type every commit writes:
	// a TransactionPayload describing the puts/deletes a transaction
	// applied. CAS operations and primitive-specific writes (JSON
	// merge, event append, branch lifecycle, vector upsert) are all
	// materialized into this same put/delete shape before the WAL ever
	// sees them, because by the time the transaction manager builds the
	// payload those operations have already been validated into plain
	// key/value writes.
	RecordTxnPayload RecordType = 0x01
)

const recordVersion uint16 = 1

// TransactionPayload is the MessagePack body of every WAL record: one
// committed transaction's effect on the keyspace.
type TransactionPayload struct {
	Version uint64
	Puts    []PutEntry
	Deletes []ids.Key
}

// PutEntry is one (key, value) write inside a TransactionPayload.
type PutEntry struct {
	Key   ids.Key
	Value value.Value
}

// wirePayload is the MessagePack-friendly projection of
// TransactionPayload: ids.Key and value.Value are not plain structs
// the codec can encode directly (Key.UserKey wants raw bytes, Value is
// a tagged union), so we flatten to primitive fields and convert at
// the encode/decode boundary, the same approach pkg/value.Wire takes.
type wirePayload struct {
	Version uint64       `codec:"v"`
	Puts    []wirePut    `codec:"p,omitempty"`
	Deletes []wireKey    `codec:"d,omitempty"`
}

type wirePut struct {
	Key   wireKey    `codec:"k"`
	Value value.Wire `codec:"v"`
}

type wireKey struct {
	Tenant  string `codec:"t"`
	App     string `codec:"a"`
	Agent   string `codec:"g"`
	Branch  [16]byte `codec:"b"`
	Space   string `codec:"s"`
	Tag     byte   `codec:"p"`
	UserKey []byte `codec:"u"`
}

func toWireKey(k ids.Key) wireKey {
	return wireKey{
		Tenant:  k.Namespace.Tenant,
		App:     k.Namespace.App,
		Agent:   k.Namespace.Agent,
		Branch:  k.Namespace.Branch,
		Space:   k.Namespace.Space,
		Tag:     byte(k.Tag),
		UserKey: k.UserKey,
	}
}

func fromWireKey(w wireKey) ids.Key {
	ns := ids.Namespace{Tenant: w.Tenant, App: w.App, Agent: w.Agent, Branch: w.Branch, Space: w.Space}
	return ids.NewKey(ns, ids.PrimitiveTag(w.Tag), w.UserKey)
}

func toWirePayload(p TransactionPayload) wirePayload {
	wp := wirePayload{Version: p.Version}
	if len(p.Puts) > 0 {
		wp.Puts = make([]wirePut, len(p.Puts))
		for i, put := range p.Puts {
			wp.Puts[i] = wirePut{Key: toWireKey(put.Key), Value: value.ToWire(put.Value)}
		}
	}
	if len(p.Deletes) > 0 {
		wp.Deletes = make([]wireKey, len(p.Deletes))
		for i, k := range p.Deletes {
			wp.Deletes[i] = toWireKey(k)
		}
	}
	return wp
}

func fromWirePayload(wp wirePayload) TransactionPayload {
	p := TransactionPayload{Version: wp.Version}
	if len(wp.Puts) > 0 {
		p.Puts = make([]PutEntry, len(wp.Puts))
		for i, wput := range wp.Puts {
			p.Puts[i] = PutEntry{Key: fromWireKey(wput.Key), Value: value.FromWire(wput.Value)}
		}
	}
	if len(wp.Deletes) > 0 {
		p.Deletes = make([]ids.Key, len(wp.Deletes))
		for i, wk := range wp.Deletes {
			p.Deletes[i] = fromWireKey(wk)
		}
	}
	return p
}

func mpHandle() *codec.MsgpackHandle {
	return &codec.MsgpackHandle{}
}

// EncodePayload serializes a TransactionPayload to MessagePack bytes.
func EncodePayload(p TransactionPayload) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, mpHandle())
	if err := enc.Encode(toWirePayload(p)); err != nil {
		return nil, err
	}
	return buf, nil
}

// DecodePayload deserializes MessagePack bytes back into a
// TransactionPayload.
func DecodePayload(b []byte) (TransactionPayload, error) {
	var wp wirePayload
	dec := codec.NewDecoderBytes(b, mpHandle())
	if err := dec.Decode(&wp); err != nil {
		return TransactionPayload{}, err
	}
	return fromWirePayload(wp), nil
}
