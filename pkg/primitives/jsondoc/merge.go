package jsondoc

import "github.com/stratadb/strata/pkg/value"

// mergePatch applies an RFC 7396 JSON Merge Patch: a null field value
// deletes that field, a non-object patch replaces the target wholesale,
// and an object patch is merged key by key, recursively.
func mergePatch(target, patch value.Value) value.Value {
	patchObj, ok := patch.AsObject()
	if !ok {
		return patch
	}

	targetObj, ok := target.AsObject()
	base := map[string]value.Value{}
	if ok {
		for k, v := range targetObj {
			base[k] = v
		}
	}

	for k, pv := range patchObj {
		if pv.IsNull() {
			delete(base, k)
			continue
		}
		base[k] = mergePatch(base[k], pv)
	}
	return value.Object(base)
}
