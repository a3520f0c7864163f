// internal/rules/coercion.go
package rules

import (
	"fmt"
	"strconv"

	"github.com/solatis/schemainspector/internal/types"
)

/*
 * Canonical string form of runtime values.
 *
 * Pinned and allowed-value constraints are keyed by strings, so every runtime
 * value is reduced to one canonical string before comparison:
 *   - null: "null"
 *   - bool: "true" / "false"
 *   - int: base-10 digits
 *   - float: shortest round-trip decimal, no exponent; integral floats carry
 *     no fraction (1.0 renders "1")
 *   - string: the string itself, unquoted
 *   - list/map: compact JSON with sorted keys
 *   - unknown: fmt %v of the host value
 *
 * Allowed-value arrays from the tracking plan pass through the same function
 * after JSON decoding, so "1.0" in a plan and 1.0 at runtime agree.
 */

// Stringify returns the canonical comparison string for v.
func Stringify(v types.Value) string {
	switch v.Kind() {
	case types.KindNull:
		return "null"
	case types.KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	case types.KindInt:
		i, _ := v.AsInt()
		return strconv.FormatInt(i, 10)
	case types.KindFloat:
		f, _ := v.AsFloat()
		return strconv.FormatFloat(f, 'f', -1, 64)
	case types.KindString:
		s, _ := v.AsString()
		return s
	case types.KindList, types.KindMap:
		data, err := v.MarshalJSON()
		if err != nil {
			return fmt.Sprintf("%v", v.Interface())
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", v.Opaque())
	}
}
