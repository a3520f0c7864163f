package dedup

import (
	"reflect"

	"github.com/solatis/schemainspector/internal/types"
)

// Equal reports deep equality of two values.
// Maps compare by key set and per-key equality regardless of order; lists
// compare element by element in order. Int and Float never equal each other,
// matching the distinct schema types they produce.
func Equal(a, b types.Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}

	switch a.Kind() {
	case types.KindNull:
		return true
	case types.KindBool:
		x, _ := a.AsBool()
		y, _ := b.AsBool()
		return x == y
	case types.KindInt:
		x, _ := a.AsInt()
		y, _ := b.AsInt()
		return x == y
	case types.KindFloat:
		x, _ := a.AsFloat()
		y, _ := b.AsFloat()
		return x == y
	case types.KindString:
		x, _ := a.AsString()
		y, _ := b.AsString()
		return x == y
	case types.KindList:
		xs, ys := a.Items(), b.Items()
		if len(xs) != len(ys) {
			return false
		}
		for i := range xs {
			if !Equal(xs[i], ys[i]) {
				return false
			}
		}
		return true
	case types.KindMap:
		if a.Len() != b.Len() {
			return false
		}
		for _, k := range a.Keys() {
			x, _ := a.Field(k)
			y, ok := b.Field(k)
			if !ok || !Equal(x, y) {
				return false
			}
		}
		return true
	default:
		return opaqueEqual(a.Opaque(), b.Opaque())
	}
}

// opaqueEqual compares host values that are comparable; funcs, slices and
// other uncomparable dynamic types are never equal.
func opaqueEqual(x, y any) (equal bool) {
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	if x == nil || y == nil {
		return x == nil && y == nil
	}
	tx, ty := reflect.TypeOf(x), reflect.TypeOf(y)
	if tx != ty || !tx.Comparable() {
		return false
	}
	return x == y
}
