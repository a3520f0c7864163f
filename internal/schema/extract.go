// internal/schema/extract.go
package schema

/*
 * Schema extraction.
 *
 * Maps a types.Value tree to a Type tree. Recursion follows the value
 * structure; termination is guaranteed because Values are finite trees
 * (FromGo cuts cyclic host data at types.MaxAdaptDepth).
 *
 * Mapping:
 *   - Null -> Null
 *   - List -> List of the set of element types (empty list -> list<>)
 *   - Map -> Object with one child per field
 *   - Int -> Int, Float -> Float, Bool -> Boolean, String -> String
 *   - Unknown -> Unknown
 *
 * Extraction never fails: every input has a Type, and shapes without a rule
 * degrade to Unknown.
 */

import (
	"context"
	"log/slog"

	"github.com/solatis/schemainspector/internal/types"
)

// Extractor infers schemas from event payloads.
type Extractor struct {
	logger  *slog.Logger
	verbose bool
}

// NewExtractor creates an Extractor. A nil logger disables logging; verbose
// logs every extracted schema at debug level.
func NewExtractor(logger *slog.Logger, verbose bool) *Extractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{logger: logger, verbose: verbose}
}

// Extract returns the structural type of v.
func (e *Extractor) Extract(v types.Value) Type {
	return extract(v)
}

// ExtractAll returns the schema of each top-level property of a payload map.
// Non-map payloads have no properties and yield an empty schema.
func (e *Extractor) ExtractAll(props types.Value) map[string]Type {
	result := make(map[string]Type, props.Len())
	if props.Kind() == types.KindMap {
		for name, v := range props.Fields() {
			result[name] = extract(v)
		}
	}

	if e != nil && e.verbose {
		e.logger.LogAttrs(context.Background(), slog.LevelDebug, "extracted schema",
			slog.String("schema", Render(result)))
	}
	return result
}

// ExtractGo converts host data with types.FromGo and extracts its schema.
func (e *Extractor) ExtractGo(props any) map[string]Type {
	return e.ExtractAll(types.FromGo(props))
}

func extract(v types.Value) Type {
	switch v.Kind() {
	case types.KindNull:
		return Null
	case types.KindBool:
		return Boolean
	case types.KindInt:
		return Int
	case types.KindFloat:
		return Float
	case types.KindString:
		return String
	case types.KindList:
		items := v.Items()
		subtypes := make([]Type, len(items))
		for i, item := range items {
			subtypes[i] = extract(item)
		}
		return NewList(subtypes...)
	case types.KindMap:
		fields := v.Fields()
		children := make(map[string]Type, len(fields))
		for name, f := range fields {
			children[name] = extract(f)
		}
		return NewObject(children)
	default:
		return Unknown
	}
}
