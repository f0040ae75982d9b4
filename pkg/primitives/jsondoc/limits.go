package jsondoc

import (
	"github.com/stratadb/strata/pkg/strataerr"
	"github.com/stratadb/strata/pkg/value"
)

// Bounds validated before a document mutation is applied: nesting
// depth, serialized size, and array length. None of these are
// configurable; a fixed, generous ceiling keeps a single misbehaving
// write from degrading every other tenant sharing the engine.
const (
	MaxDocDepth    = 64
	MaxDocBytes    = 4 << 20 // 4 MiB
	MaxArrayLength = 200_000
)

// validateDocument walks v and rejects it if it exceeds any of the
// bounds above. It is run on the candidate document *before* a write
// is staged, so a rejected mutation never partially lands.
func validateDocument(v value.Value) error {
	size, err := walkValidate(v, 0)
	if err != nil {
		return err
	}
	if size > MaxDocBytes {
		return strataerr.New(strataerr.LimitExceeded, "document exceeds %d bytes", MaxDocBytes)
	}
	return nil
}

func walkValidate(v value.Value, depth int) (int, error) {
	if depth > MaxDocDepth {
		return 0, strataerr.New(strataerr.LimitExceeded, "document nesting exceeds depth %d", MaxDocDepth)
	}
	switch v.Kind {
	case value.KindObject:
		obj, _ := v.AsObject()
		total := 0
		for k, fv := range obj {
			total += len(k)
			n, err := walkValidate(fv, depth+1)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	case value.KindArray:
		items, _ := v.AsArray()
		if len(items) > MaxArrayLength {
			return 0, strataerr.New(strataerr.LimitExceeded, "array exceeds %d elements", MaxArrayLength)
		}
		total := 0
		for _, item := range items {
			n, err := walkValidate(item, depth+1)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	case value.KindString:
		s, _ := v.AsString()
		return len(s), nil
	case value.KindBytes:
		b, _ := v.AsBytes()
		return len(b), nil
	default:
		return 8, nil
	}
}
