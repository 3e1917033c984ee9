// Package sanitize prepares arbitrary in-memory values for persistence.
//
// Records handed to the store may have passed through third-party SDKs
// and can carry handles, callbacks, or cyclic references that a plain
// document store cannot hold. Clean strips everything that is not plain
// data; Encode additionally guarantees a parsable JSON result on every
// write path, for both the remote and the local backend.
package sanitize

import (
	"encoding/json"
	"reflect"
)

// Clean returns a serialization-safe copy of v containing only
// primitives, slices of cleaned elements, and string-keyed maps of
// cleaned values. Values that are not plain data (struct instances,
// functions, channels, non-string-keyed maps) are dropped, as is any
// value already being visited on the current recursion path, which
// breaks reference cycles. The second return reports whether v itself
// survived.
//
// Clean is pure: the cycle-tracking set lives only for the duration of
// a single call and the input is never mutated.
func Clean(v any) (any, bool) {
	return clean(reflect.ValueOf(v), map[visitKey]struct{}{})
}

// visitKey identifies a container on the current recursion path.
// Pointer alone is not enough: distinct container types can report
// the same address.
type visitKey struct {
	ptr uintptr
	typ reflect.Type
}

func clean(val reflect.Value, visiting map[visitKey]struct{}) (any, bool) {
	if !val.IsValid() {
		// Reflect's encoding of an untyped nil. Keep it: null is
		// plain data, unlike a dropped value.
		return nil, true
	}

	switch val.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return val.Interface(), true

	case reflect.Interface, reflect.Pointer:
		if val.IsNil() {
			return nil, true
		}
		if val.Kind() == reflect.Pointer {
			key := visitKey{val.Pointer(), val.Type()}
			if _, seen := visiting[key]; seen {
				return nil, false
			}
			visiting[key] = struct{}{}
			defer delete(visiting, key)
		}
		return clean(val.Elem(), visiting)

	case reflect.Slice:
		if val.IsNil() {
			return nil, true
		}
		key := visitKey{val.Pointer(), val.Type()}
		if _, seen := visiting[key]; seen {
			return nil, false
		}
		visiting[key] = struct{}{}
		defer delete(visiting, key)
		return cleanSequence(val, visiting), true

	case reflect.Array:
		return cleanSequence(val, visiting), true

	case reflect.Map:
		if val.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		if val.IsNil() {
			return nil, true
		}
		key := visitKey{val.Pointer(), val.Type()}
		if _, seen := visiting[key]; seen {
			return nil, false
		}
		visiting[key] = struct{}{}
		defer delete(visiting, key)

		// An empty map survives as {}; only individual unkeepable
		// values disappear.
		out := make(map[string]any, val.Len())
		iter := val.MapRange()
		for iter.Next() {
			cleaned, keep := clean(iter.Value(), visiting)
			if !keep {
				continue
			}
			out[iter.Key().String()] = cleaned
		}
		return out, true

	default:
		// Structs, funcs, chans, complex numbers, unsafe pointers:
		// not plain data.
		return nil, false
	}
}

func cleanSequence(val reflect.Value, visiting map[visitKey]struct{}) []any {
	out := make([]any, 0, val.Len())
	for i := 0; i < val.Len(); i++ {
		cleaned, keep := clean(val.Index(i), visiting)
		if !keep {
			continue
		}
		out = append(out, cleaned)
	}
	return out
}

// Encode cleans v and renders it as JSON. It never fails: if v is
// dropped entirely or the cleaned value still cannot be marshalled
// (NaN and infinities reach this path), the encoding of an empty
// object is returned instead.
func Encode(v any) []byte {
	cleaned, keep := Clean(v)
	if !keep {
		return []byte("{}")
	}
	data, err := json.Marshal(cleaned)
	if err != nil {
		return []byte("{}")
	}
	return data
}

// Record re-cleans v and asserts the map shape used by the store. A
// dropped or non-map value comes back as an empty record.
func Record(v any) map[string]any {
	cleaned, keep := Clean(v)
	if !keep {
		return map[string]any{}
	}
	rec, ok := cleaned.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return rec
}
