// internal/schema/type.go
package schema

/*
 * Structural schema types.
 *
 * A Type is an immutable tag describing the shape of one runtime value.
 * Identity is the canonical name: two Types with the same Name() are equal
 * regardless of how they were built, which lets callers use names as map
 * keys and compare whole trees with a single string comparison.
 *
 * Canonical names:
 *   - Scalars: "int", "float", "boolean", "string", "null", "unknown"
 *   - List: "list<a|b>" with subtype names deduplicated and sorted
 *   - Object: JSON object of child name -> child canonical name, keys sorted
 *
 * Map iteration order is random in Go; names sort keys and subtypes so one
 * payload always yields one name.
 */

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// Kind tags the variant of a Type.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInt
	KindFloat
	KindBoolean
	KindString
	KindNull
	KindList
	KindObject
)

// Type is an immutable structural type. The zero value is Unknown.
type Type struct {
	kind     Kind
	name     string
	subtypes []Type
	children map[string]Type
}

var (
	Int     = Type{kind: KindInt, name: "int"}
	Float   = Type{kind: KindFloat, name: "float"}
	Boolean = Type{kind: KindBoolean, name: "boolean"}
	String  = Type{kind: KindString, name: "string"}
	Null    = Type{kind: KindNull, name: "null"}
	Unknown = Type{kind: KindUnknown, name: "unknown"}
)

// NewList builds a list type from element types.
// Subtypes are deduplicated by canonical name and kept in name order.
func NewList(subtypes ...Type) Type {
	byName := make(map[string]Type, len(subtypes))
	for _, st := range subtypes {
		byName[st.Name()] = st
	}
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)

	set := make([]Type, len(names))
	for i, n := range names {
		set[i] = byName[n]
	}
	return Type{kind: KindList, name: "list<" + strings.Join(names, "|") + ">", subtypes: set}
}

// NewObject builds an object type from named children. The map is copied.
func NewObject(children map[string]Type) Type {
	cp := make(map[string]Type, len(children))
	names := make(map[string]string, len(children))
	for k, c := range children {
		cp[k] = c
		names[k] = c.Name()
	}
	return Type{kind: KindObject, name: marshalNames(names), children: cp}
}

// Kind returns the variant tag.
func (t Type) Kind() Kind { return t.kind }

// Name returns the canonical name that defines equality.
func (t Type) Name() string {
	if t.name == "" {
		return Unknown.name
	}
	return t.name
}

// ReportedName is the type name sent to the backend: "object" for objects,
// the canonical name for everything else.
func (t Type) ReportedName() string {
	if t.kind == KindObject {
		return "object"
	}
	return t.Name()
}

// Equal reports whether t and other have the same canonical name.
func (t Type) Equal(other Type) bool { return t.Name() == other.Name() }

// Subtypes returns the element type set of a list, sorted by name.
func (t Type) Subtypes() []Type {
	return append([]Type(nil), t.subtypes...)
}

// Children returns a copy of an object's child types, or nil for non-objects.
func (t Type) Children() map[string]Type {
	if t.kind != KindObject {
		return nil
	}
	cp := make(map[string]Type, len(t.children))
	for k, c := range t.children {
		cp[k] = c
	}
	return cp
}

// String implements fmt.Stringer with the canonical name.
func (t Type) String() string { return t.Name() }

// SchemaEqual compares two property schemas by canonical name per property.
func SchemaEqual(a, b map[string]Type) bool {
	if len(a) != len(b) {
		return false
	}
	for k, ta := range a {
		tb, ok := b[k]
		if !ok || !ta.Equal(tb) {
			return false
		}
	}
	return true
}

// Render returns a compact, human-readable description of a property schema
// for diagnostics: {"prop": "type", ...} with keys sorted.
func Render(props map[string]Type) string {
	names := make(map[string]string, len(props))
	for k, t := range props {
		names[k] = t.Name()
	}
	return strings.ReplaceAll(marshalNames(names), `\"`, `"`)
}

// marshalNames encodes name -> type name without HTML escaping, so "list<int>"
// stays readable. encoding/json sorts map keys, which gives the canonical order.
func marshalNames(names map[string]string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(names); err != nil {
		return "{}"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
