package vector

import (
	"github.com/stratadb/strata/pkg/strataerr"
	"github.com/stratadb/strata/pkg/value"
)

// FilterOp is a metadata filter comparison operator. All advertised
// operators MUST be honoured; an unrecognized operator is rejected at
// parse time rather than silently dropped.
type FilterOp int

const (
	OpEq FilterOp = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpContains
)

// Filter is one metadata predicate: field OP value.
type Filter struct {
	Field string
	Op    FilterOp
	Value value.Value
}

// Matches reports whether metadata satisfies f.
func (f Filter) Matches(metadata value.Value) bool {
	obj, ok := metadata.AsObject()
	if !ok {
		return false
	}
	field, present := obj[f.Field]
	switch f.Op {
	case OpEq:
		return present && value.Equal(field, f.Value)
	case OpNe:
		return !present || !value.Equal(field, f.Value)
	case OpGt, OpGte, OpLt, OpLte:
		if !present {
			return false
		}
		return compareOrdered(field, f.Value, f.Op)
	case OpIn:
		if !present {
			return false
		}
		items, ok := f.Value.AsArray()
		if !ok {
			return false
		}
		for _, item := range items {
			if value.Equal(field, item) {
				return true
			}
		}
		return false
	case OpContains:
		if !present {
			return false
		}
		items, ok := field.AsArray()
		if !ok {
			return false
		}
		for _, item := range items {
			if value.Equal(item, f.Value) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func compareOrdered(a, b value.Value, op FilterOp) bool {
	var cmp int
	switch {
	case a.Kind == value.KindInt && b.Kind == value.KindInt:
		av, _ := a.AsInt()
		bv, _ := b.AsInt()
		cmp = compareInt64(av, bv)
	case a.Kind == value.KindFloat || b.Kind == value.KindFloat:
		af, aok := asFloat(a)
		bf, bok := asFloat(b)
		if !aok || !bok {
			return false
		}
		cmp = compareFloat64(af, bf)
	case a.Kind == value.KindString && b.Kind == value.KindString:
		as, _ := a.AsString()
		bs, _ := b.AsString()
		cmp = compareString(as, bs)
	default:
		return false
	}
	switch op {
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	default:
		return false
	}
}

func asFloat(v value.Value) (float64, bool) {
	if f, ok := v.AsFloat(); ok {
		return f, true
	}
	if i, ok := v.AsInt(); ok {
		return float64(i), true
	}
	return 0, false
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ParseOp maps a filter operator name to FilterOp, rejecting anything
// unrecognized.
func ParseOp(name string) (FilterOp, error) {
	switch name {
	case "eq":
		return OpEq, nil
	case "ne":
		return OpNe, nil
	case "gt":
		return OpGt, nil
	case "gte":
		return OpGte, nil
	case "lt":
		return OpLt, nil
	case "lte":
		return OpLte, nil
	case "in":
		return OpIn, nil
	case "contains":
		return OpContains, nil
	default:
		return 0, strataerr.New(strataerr.InvalidInput, "unknown filter operator %q", name)
	}
}
