// Package ids defines the identifiers that make up Strata's composite
// storage key: branches, namespaces, primitive tags, keys, versions and
// timestamps.
package ids

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BranchId is a 128-bit opaque branch identifier.
type BranchId [16]byte

// NewBranchId allocates a fresh random branch identifier.
func NewBranchId() BranchId {
	return BranchId(uuid.New())
}

// BranchIdFromName deterministically derives a BranchId from a
// user-supplied branch name, so the same name always maps to the same
// id within a database (branch names are a convenience; ids are
// canonical).
func BranchIdFromName(name string) BranchId {
	sum := sha1.Sum([]byte("strata/branch/" + name))
	var id BranchId
	copy(id[:], sum[:16])
	return id
}

func (b BranchId) String() string {
	return uuid.UUID(b).String()
}

// Hex renders the branch id as a fixed 32-character lowercase hex
// string, used for the vectors/<branch_hex>/ filesystem layout.
func (b BranchId) Hex() string {
	return fmt.Sprintf("%032x", [16]byte(b))
}

// IsZero reports whether this is the zero-value branch id.
func (b BranchId) IsZero() bool {
	return b == BranchId{}
}

// ReservedNamePrefix is rejected for user-supplied branch/namespace
// names at the facade boundary.
const ReservedNamePrefix = "_system/"

// ReservedKeyPrefix is rejected for user-supplied KV/State/Vector keys.
const ReservedKeyPrefix = "_strata/"

const maxNameBytes = 255

// ValidateBranchName checks the constraints placed on branch names:
// non-empty, at most 255 bytes, free of control characters and the
// reserved "_system/" prefix.
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("branch name must not be empty")
	}
	if len(name) > maxNameBytes {
		return fmt.Errorf("branch name exceeds %d bytes", maxNameBytes)
	}
	if strings.HasPrefix(name, ReservedNamePrefix) {
		return fmt.Errorf("branch name must not use reserved prefix %q", ReservedNamePrefix)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("branch name must not contain control characters")
		}
	}
	return nil
}

// ValidateUserKey checks the constraints the facades place on raw
// user-supplied key bytes: non-empty, no NUL bytes, no reserved
// "_strata/" prefix.
func ValidateUserKey(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("key must not be empty")
	}
	if bytes.IndexByte(key, 0) >= 0 {
		return fmt.Errorf("key must not contain NUL bytes")
	}
	if bytes.HasPrefix(key, []byte(ReservedKeyPrefix)) {
		return fmt.Errorf("key must not use reserved prefix %q", ReservedKeyPrefix)
	}
	return nil
}

// PrimitiveTag discriminates which of the six co-resident primitives a
// composite key belongs to; it is a single byte on the wire.
type PrimitiveTag byte

const (
	TagKv PrimitiveTag = iota + 1
	TagEvent
	TagState
	TagJson
	TagVector
	TagVectorConfig
	TagBranch
)

func (t PrimitiveTag) String() string {
	switch t {
	case TagKv:
		return "kv"
	case TagEvent:
		return "event"
	case TagState:
		return "state"
	case TagJson:
		return "json"
	case TagVector:
		return "vector"
	case TagVectorConfig:
		return "vector_config"
	case TagBranch:
		return "branch"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// Valid reports whether t is one of the seven recognized tags (the six
// primitives plus the internal VectorConfig tag).
func (t PrimitiveTag) Valid() bool {
	return t >= TagKv && t <= TagBranch
}

// Namespace is the logical path (tenant, app, agent, branch, space)
// used as a key prefix for isolation. Space defaults to
// "default".
type Namespace struct {
	Tenant string
	App    string
	Agent  string
	Branch BranchId
	Space  string
}

// DefaultSpace is used when a namespace's Space field is left blank.
const DefaultSpace = "default"

// NewNamespace builds a Namespace, defaulting Space when empty.
func NewNamespace(tenant, app, agent string, branch BranchId) Namespace {
	return Namespace{Tenant: tenant, App: app, Agent: agent, Branch: branch, Space: DefaultSpace}
}

// WithSpace returns a copy of ns with Space overridden.
func (ns Namespace) WithSpace(space string) Namespace {
	if space == "" {
		space = DefaultSpace
	}
	ns.Space = space
	return ns
}

// bytes renders the namespace into a canonical, order-preserving byte
// sequence used as the storage key prefix. Length-prefixing each
// variable-length field keeps the encoding prefix-free, so lexical
// comparison of the bytes agrees with field-by-field comparison.
func (ns Namespace) bytes() []byte {
	var buf bytes.Buffer
	writeLPString(&buf, ns.Tenant)
	writeLPString(&buf, ns.App)
	writeLPString(&buf, ns.Agent)
	buf.Write(ns.Branch[:])
	writeLPString(&buf, ns.Space)
	return buf.Bytes()
}

func writeLPString(buf *bytes.Buffer, s string) {
	var lenBuf [4]byte
	putUint32BE(lenBuf[:], uint32(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func putUint32BE(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// Key is the composite (Namespace, PrimitiveTag, user_bytes) tuple that
// identifies a single stored value. Comparison is lexicographic over
// the full tuple.
type Key struct {
	Namespace Namespace
	Tag       PrimitiveTag
	UserKey   []byte
}

// NewKey builds a Key for the given namespace, primitive and raw bytes.
func NewKey(ns Namespace, tag PrimitiveTag, userKey []byte) Key {
	cp := make([]byte, len(userKey))
	copy(cp, userKey)
	return Key{Namespace: ns, Tag: tag, UserKey: cp}
}

// Encode renders the key into its canonical ordered byte representation.
// Shards and the ordered map both sort on this representation.
func (k Key) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(k.Namespace.bytes())
	buf.WriteByte(byte(k.Tag))
	buf.Write(k.UserKey)
	return buf.Bytes()
}

// Compare orders two keys lexicographically over their encoded form.
func (k Key) Compare(other Key) int {
	return bytes.Compare(k.Encode(), other.Encode())
}

// HasPrefix reports whether k's encoded bytes begin with prefix's.
// Used by scan_prefix.
func (k Key) HasPrefix(prefix Key) bool {
	return bytes.HasPrefix(k.Encode(), prefix.Encode())
}

// ShardKey is the (branch, primitive_tag) pair shards are hashed on.
type ShardKey struct {
	Branch BranchId
	Tag    PrimitiveTag
}

// VersionKind tags why a Version counter was minted: the tag carries
// meaning even though the underlying counter is a single monotonic
// u64 space shared across all three kinds.
type VersionKind byte

const (
	// VersionTxn marks a version minted by a committed transaction
	// (KV, JSON, Vector writes).
	VersionTxn VersionKind = iota
	// VersionSequence marks a version minted by an event append.
	VersionSequence
	// VersionCounter marks a version minted by a state-cell write
	// (also used for vector read/write).
	VersionCounter
)

// Version is the tagged monotonic counter attached to every committed
// value.
type Version struct {
	Kind  VersionKind
	Value uint64
}

// Txn builds a Version with the Txn tag.
func Txn(n uint64) Version { return Version{Kind: VersionTxn, Value: n} }

// Sequence builds a Version with the Sequence tag.
func Sequence(n uint64) Version { return Version{Kind: VersionSequence, Value: n} }

// Counter builds a Version with the Counter tag.
func Counter(n uint64) Version { return Version{Kind: VersionCounter, Value: n} }

func (v Version) String() string {
	switch v.Kind {
	case VersionTxn:
		return fmt.Sprintf("Txn(%d)", v.Value)
	case VersionSequence:
		return fmt.Sprintf("Sequence(%d)", v.Value)
	case VersionCounter:
		return fmt.Sprintf("Counter(%d)", v.Value)
	default:
		return fmt.Sprintf("Version(%d,%d)", v.Kind, v.Value)
	}
}

// Timestamp is microseconds since the Unix epoch.
type Timestamp uint64

// Now returns the current wall-clock time as a Timestamp.
func Now() Timestamp {
	return Timestamp(time.Now().UnixMicro())
}

// Time converts the Timestamp back to a time.Time.
func (t Timestamp) Time() time.Time {
	return time.UnixMicro(int64(t))
}

// EntityRef is the stable identity surfaced by search and audit paths.
type EntityRef struct {
	Branch  BranchId
	Tag     PrimitiveTag
	EntityKey string
}
