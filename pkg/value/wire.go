package value

// Wire is the MessagePack-friendly projection of Value used by
// pkg/wal and pkg/snapshot. hashicorp/go-msgpack/v2's codec encodes
// plain exported structs directly, so rather than hand-rolling a
// custom Selfer we convert Value <-> Wire at the serialization
// boundary and let the codec handle the struct mechanically.
type Wire struct {
	Kind   byte             `codec:"k"`
	Bool   bool             `codec:"b,omitempty"`
	Int    int64            `codec:"i,omitempty"`
	Float  float64          `codec:"f,omitempty"`
	Str    string           `codec:"s,omitempty"`
	Bytes  []byte           `codec:"y,omitempty"`
	Array  []Wire           `codec:"a,omitempty"`
	Object map[string]Wire  `codec:"o,omitempty"`
}

// ToWire converts a Value into its wire projection for encoding.
func ToWire(v Value) Wire {
	switch v.Kind {
	case KindNull:
		return Wire{Kind: byte(KindNull)}
	case KindBool:
		return Wire{Kind: byte(KindBool), Bool: v.boolVal}
	case KindInt:
		return Wire{Kind: byte(KindInt), Int: v.intVal}
	case KindFloat:
		return Wire{Kind: byte(KindFloat), Float: v.floatVal}
	case KindString:
		return Wire{Kind: byte(KindString), Str: v.stringVal}
	case KindBytes:
		return Wire{Kind: byte(KindBytes), Bytes: v.bytesVal}
	case KindArray:
		items := make([]Wire, len(v.arrayVal))
		for i, item := range v.arrayVal {
			items[i] = ToWire(item)
		}
		return Wire{Kind: byte(KindArray), Array: items}
	case KindObject:
		fields := make(map[string]Wire, len(v.objectVal))
		for k, fv := range v.objectVal {
			fields[k] = ToWire(fv)
		}
		return Wire{Kind: byte(KindObject), Object: fields}
	default:
		return Wire{Kind: byte(KindNull)}
	}
}

// FromWire converts a wire projection back into a Value.
func FromWire(w Wire) Value {
	switch Kind(w.Kind) {
	case KindNull:
		return Null
	case KindBool:
		return Bool(w.Bool)
	case KindInt:
		return Int(w.Int)
	case KindFloat:
		return Float(w.Float)
	case KindString:
		return String(w.Str)
	case KindBytes:
		return Bytes(w.Bytes)
	case KindArray:
		items := make([]Value, len(w.Array))
		for i, item := range w.Array {
			items[i] = FromWire(item)
		}
		return Value{Kind: KindArray, arrayVal: items}
	case KindObject:
		fields := make(map[string]Value, len(w.Object))
		for k, fv := range w.Object {
			fields[k] = FromWire(fv)
		}
		return Value{Kind: KindObject, objectVal: fields}
	default:
		return Null
	}
}
