// internal/types/adapt.go
package types

/*
 * Adapters from host data to Value.
 *
 * FromGo walks arbitrary Go data with reflection, following the same field
 * naming rules as encoding/json (exported fields, json tag names, "-" skips,
 * untagged embedded structs flatten). FromJSON decodes raw JSON keeping the
 * integer/float distinction. FromProto converts structpb payloads delivered
 * by protobuf-speaking hosts.
 *
 * None of the adapters panics: a recovered panic or a nesting level beyond
 * MaxAdaptDepth produces an Unknown value for that subtree.
 */

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"reflect"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

var (
	valueType  = reflect.TypeOf(Value{})
	timeType   = reflect.TypeOf(time.Time{})
	numberType = reflect.TypeOf(json.Number(""))
	rawType    = reflect.TypeOf(json.RawMessage(nil))
)

// FromGo converts arbitrary Go data to a Value.
// nil pointers, interfaces, slices and maps become Null; time.Time becomes an
// RFC 3339 string; channels, funcs and complex numbers become Unknown.
func FromGo(v any) (out Value) {
	defer func() {
		if r := recover(); r != nil {
			out = Unknown(v)
		}
	}()
	if v == nil {
		return Null()
	}
	return fromReflect(reflect.ValueOf(v), 0)
}

func fromReflect(rv reflect.Value, depth int) Value {
	if !rv.IsValid() {
		return Null()
	}
	if depth > MaxAdaptDepth {
		return Unknown(nil)
	}

	switch rv.Type() {
	case valueType:
		return rv.Interface().(Value)
	case timeType:
		return String(rv.Interface().(time.Time).UTC().Format(time.RFC3339Nano))
	case numberType:
		return fromNumber(rv.Interface().(json.Number))
	case rawType:
		parsed, err := FromJSON(rv.Bytes())
		if err != nil {
			return Unknown(rv.Interface())
		}
		return parsed
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null()
		}
		return fromReflect(rv.Elem(), depth+1)
	case reflect.Bool:
		return Bool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Float(float64(u))
		}
		return Int(int64(u))
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float())
	case reflect.String:
		return String(rv.String())
	case reflect.Slice:
		if rv.IsNil() {
			return Null()
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return String(string(rv.Bytes()))
		}
		return fromSequence(rv, depth)
	case reflect.Array:
		return fromSequence(rv, depth)
	case reflect.Map:
		if rv.IsNil() {
			return Null()
		}
		fields := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			fields[mapKey(iter.Key())] = fromReflect(iter.Value(), depth+1)
		}
		return Value{kind: KindMap, fields: fields}
	case reflect.Struct:
		fields := make(map[string]Value)
		collectStructFields(rv, depth, fields)
		return Value{kind: KindMap, fields: fields}
	default:
		return Unknown(rv.Interface())
	}
}

func fromSequence(rv reflect.Value, depth int) Value {
	items := make([]Value, rv.Len())
	for i := range items {
		items[i] = fromReflect(rv.Index(i), depth+1)
	}
	return Value{kind: KindList, items: items}
}

// mapKey renders a map key the way encoding/json would for common key kinds.
func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.Kind() == reflect.Interface && !k.IsNil() {
		return mapKey(k.Elem())
	}
	return fmt.Sprint(k.Interface())
}

// collectStructFields adds exported fields of rv to fields using json tag names.
// Untagged embedded structs flatten into the parent.
func collectStructFields(rv reflect.Value, depth int, fields map[string]Value) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		tag := sf.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")

		fv := rv.Field(i)
		if sf.Anonymous && name == "" {
			inner := fv
			if inner.Kind() == reflect.Pointer {
				if inner.IsNil() {
					continue
				}
				inner = inner.Elem()
			}
			if inner.Kind() == reflect.Struct {
				collectStructFields(inner, depth+1, fields)
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		fields[name] = fromReflect(fv, depth+1)
	}
}

// FromJSON decodes raw JSON into a Value.
// Numbers without fraction or exponent that fit int64 become Int, all other
// numbers become Float. Trailing data after the first JSON value is an error.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("decode json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, fmt.Errorf("decode json: unexpected trailing data")
	}
	return fromDecoded(raw), nil
}

func fromDecoded(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(x)
	case json.Number:
		return fromNumber(x)
	case string:
		return String(x)
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = fromDecoded(item)
		}
		return Value{kind: KindList, items: items}
	case map[string]any:
		fields := make(map[string]Value, len(x))
		for k, item := range x {
			fields[k] = fromDecoded(item)
		}
		return Value{kind: KindMap, fields: fields}
	default:
		return Unknown(x)
	}
}

func fromNumber(n json.Number) Value {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return Int(i)
		}
	}
	f, err := n.Float64()
	if err != nil {
		return String(s)
	}
	return Float(f)
}

// FromProto converts a protobuf struct value.
// structpb carries every number as a double, so integral numbers within the
// exactly representable range (|n| <= 2^53) are reported as Int.
func FromProto(pv *structpb.Value) Value {
	if pv == nil {
		return Null()
	}
	switch k := pv.GetKind().(type) {
	case *structpb.Value_NullValue:
		return Null()
	case *structpb.Value_BoolValue:
		return Bool(k.BoolValue)
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if n == math.Trunc(n) && math.Abs(n) <= 1<<53 {
			return Int(int64(n))
		}
		return Float(n)
	case *structpb.Value_StringValue:
		return String(k.StringValue)
	case *structpb.Value_ListValue:
		values := k.ListValue.GetValues()
		items := make([]Value, len(values))
		for i, item := range values {
			items[i] = FromProto(item)
		}
		return Value{kind: KindList, items: items}
	case *structpb.Value_StructValue:
		return FromProtoStruct(k.StructValue)
	default:
		return Null()
	}
}

// FromProtoStruct converts a protobuf Struct to a Map value.
func FromProtoStruct(s *structpb.Struct) Value {
	if s == nil {
		return Null()
	}
	fields := make(map[string]Value, len(s.GetFields()))
	for k, item := range s.GetFields() {
		fields[k] = FromProto(item)
	}
	return Value{kind: KindMap, fields: fields}
}
