package dataverse

import "reflect"

// defaultEquals is the cutoff test used when a derivation recomputes.
// Primitives and other comparable values compare by value; slices, maps,
// funcs, channels and pointers compare by identity.
func defaultEquals[T any](a, b T) bool {
	switch av := any(a).(type) {
	case string:
		bv, ok := any(b).(string)
		return ok && av == bv
	case int:
		bv, ok := any(b).(int)
		return ok && av == bv
	case int64:
		bv, ok := any(b).(int64)
		return ok && av == bv
	case float64:
		bv, ok := any(b).(float64)
		return ok && av == bv
	case bool:
		bv, ok := any(b).(bool)
		return ok && av == bv
	default:
		return identical(any(a), any(b))
	}
}

// identical compares two dynamically typed values without deep traversal.
func identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	if va.Comparable() && vb.Comparable() {
		return a == b
	}
	switch va.Kind() {
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	default:
		return false
	}
}
