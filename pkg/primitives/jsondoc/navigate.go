package jsondoc

import (
	"github.com/stratadb/strata/pkg/strataerr"
	"github.com/stratadb/strata/pkg/value"
)

// getAtPath reads the value pointed to by segs within root.
func getAtPath(root value.Value, segs []segment) (value.Value, bool) {
	cur := root
	for _, s := range segs {
		switch s.kind {
		case segField:
			obj, ok := cur.AsObject()
			if !ok {
				return value.Null, false
			}
			child, exists := obj[s.field]
			if !exists {
				return value.Null, false
			}
			cur = child
		case segIndex:
			arr, ok := cur.AsArray()
			if !ok || s.index >= len(arr) {
				return value.Null, false
			}
			cur = arr[s.index]
		case segAppend:
			return value.Null, false
		}
	}
	return cur, true
}

// setAtPath returns a new root with newVal placed at segs, rebuilding
// every container on the path (objects and arrays are copied
// shallowly at each level they're touched, never mutated in place, so
// a caller whose write later fails validation never sees a partial
// mutation reflected in the original root).
func setAtPath(root value.Value, segs []segment, newVal value.Value) (value.Value, error) {
	if len(segs) == 0 {
		return newVal, nil
	}
	return setAt(root, segs, 0, newVal)
}

func setAt(cur value.Value, segs []segment, idx int, newVal value.Value) (value.Value, error) {
	s := segs[idx]
	last := idx == len(segs)-1

	switch s.kind {
	case segField:
		obj, ok := cur.AsObject()
		var newObj map[string]value.Value
		if ok {
			newObj = make(map[string]value.Value, len(obj)+1)
			for k, v := range obj {
				newObj[k] = v
			}
		} else {
			newObj = make(map[string]value.Value, 1)
		}
		if last {
			newObj[s.field] = newVal
		} else {
			child, exists := newObj[s.field]
			if !exists {
				child = value.Object(nil)
			}
			updated, err := setAt(child, segs, idx+1, newVal)
			if err != nil {
				return value.Value{}, err
			}
			newObj[s.field] = updated
		}
		return value.Object(newObj), nil

	case segIndex:
		arr, ok := cur.AsArray()
		if !ok {
			return value.Value{}, strataerr.New(strataerr.JsonPathError, "path segment expects an array")
		}
		if s.index >= len(arr) {
			return value.Value{}, strataerr.New(strataerr.JsonPathError, "array index %d out of range", s.index)
		}
		newArr := make([]value.Value, len(arr))
		copy(newArr, arr)
		if last {
			newArr[s.index] = newVal
		} else {
			updated, err := setAt(arr[s.index], segs, idx+1, newVal)
			if err != nil {
				return value.Value{}, err
			}
			newArr[s.index] = updated
		}
		return value.Array(newArr...), nil

	case segAppend:
		arr, ok := cur.AsArray()
		if !ok {
			arr = nil
		}
		if len(arr) >= MaxArrayLength {
			return value.Value{}, strataerr.New(strataerr.LimitExceeded, "array exceeds %d elements", MaxArrayLength)
		}
		newArr := make([]value.Value, len(arr)+1)
		copy(newArr, arr)
		newArr[len(arr)] = newVal
		return value.Array(newArr...), nil
	}
	return value.Value{}, strataerr.New(strataerr.Internal, "unreachable path segment kind")
}

// deleteAtPath returns a new root with the entry at segs removed.
// Deleting a nonexistent path is a no-op that reports found=false.
func deleteAtPath(root value.Value, segs []segment) (value.Value, bool, error) {
	if len(segs) == 0 {
		return value.Null, false, strataerr.New(strataerr.InvalidInput, "cannot delete the document root, use destroy")
	}
	return deleteAt(root, segs, 0)
}

func deleteAt(cur value.Value, segs []segment, idx int) (value.Value, bool, error) {
	s := segs[idx]
	last := idx == len(segs)-1

	switch s.kind {
	case segField:
		obj, ok := cur.AsObject()
		if !ok {
			return cur, false, nil
		}
		if last {
			if _, exists := obj[s.field]; !exists {
				return cur, false, nil
			}
			newObj := make(map[string]value.Value, len(obj)-1)
			for k, v := range obj {
				if k != s.field {
					newObj[k] = v
				}
			}
			return value.Object(newObj), true, nil
		}
		child, exists := obj[s.field]
		if !exists {
			return cur, false, nil
		}
		updated, found, err := deleteAt(child, segs, idx+1)
		if err != nil || !found {
			return cur, found, err
		}
		newObj := make(map[string]value.Value, len(obj))
		for k, v := range obj {
			newObj[k] = v
		}
		newObj[s.field] = updated
		return value.Object(newObj), true, nil

	case segIndex:
		arr, ok := cur.AsArray()
		if !ok || s.index >= len(arr) {
			return cur, false, nil
		}
		if last {
			newArr := make([]value.Value, 0, len(arr)-1)
			newArr = append(newArr, arr[:s.index]...)
			newArr = append(newArr, arr[s.index+1:]...)
			return value.Array(newArr...), true, nil
		}
		updated, found, err := deleteAt(arr[s.index], segs, idx+1)
		if err != nil || !found {
			return cur, found, err
		}
		newArr := make([]value.Value, len(arr))
		copy(newArr, arr)
		newArr[s.index] = updated
		return value.Array(newArr...), true, nil

	case segAppend:
		return cur, false, strataerr.New(strataerr.JsonPathError, "'[-]' is not a valid delete target")
	}
	return cur, false, strataerr.New(strataerr.Internal, "unreachable path segment kind")
}
