// internal/rules/compile.go
package rules

import (
	"github.com/solatis/schemainspector/internal/types"
)

/*
 * Constraint collection across spec entries.
 *
 * A response can hold several entries (a base event plus A/B variants, or
 * several base events sharing a name). Validation runs against one merged
 * constraint table:
 *   1. Event ID scope: each entry's base ID followed by its variant IDs
 *   2. Single entry: its props are used directly, no copy
 *   3. Several entries: first sight of a property deep-copies it, later
 *      sights union the event ID lists per constraint key and recurse into
 *      children
 *
 * Union keeps first-seen order and drops duplicates. The merged table is the
 * same set-wise whatever order the entries arrive in; only ID order within a
 * list can differ, and results are reordered by scope order anyway.
 *
 * Type, Required and IsList come from the first entry that declares the
 * property; later entries only contribute constraint mappings and children.
 */

// collectEventIDs returns every base and variant event ID in entry order.
func collectEventIDs(events []types.EventSpecEntry) []string {
	var ids []string
	for _, e := range events {
		ids = append(ids, e.BaseEventID)
		ids = append(ids, e.VariantIDs...)
	}
	return ids
}

// mergeConstraints builds the property constraint table for a set of entries.
func mergeConstraints(events []types.EventSpecEntry) map[string]*types.PropertyConstraints {
	switch len(events) {
	case 0:
		return map[string]*types.PropertyConstraints{}
	case 1:
		return events[0].Props
	}

	merged := make(map[string]*types.PropertyConstraints)
	for _, e := range events {
		mergeInto(merged, e.Props)
	}
	return merged
}

// mergeInto folds source into target, copying unseen properties and
// unioning seen ones.
func mergeInto(target, source map[string]*types.PropertyConstraints) {
	for name, src := range source {
		if src == nil {
			continue
		}
		dst, ok := target[name]
		if !ok || dst == nil {
			target[name] = src.Clone()
			continue
		}

		dst.PinnedValues = unionMapping(dst.PinnedValues, src.PinnedValues)
		dst.AllowedValues = unionMapping(dst.AllowedValues, src.AllowedValues)
		dst.RegexPatterns = unionMapping(dst.RegexPatterns, src.RegexPatterns)
		dst.MinMaxRanges = unionMapping(dst.MinMaxRanges, src.MinMaxRanges)

		if src.Children != nil {
			if dst.Children == nil {
				dst.Children = types.CloneConstraints(src.Children)
			} else {
				mergeInto(dst.Children, src.Children)
			}
		}
	}
}

// unionMapping merges source IDs into target per key. A nil source leaves
// target untouched, so absent mappings stay nil.
func unionMapping(target, source types.ConstraintMapping) types.ConstraintMapping {
	if source == nil {
		return target
	}
	if target == nil {
		target = make(types.ConstraintMapping, len(source))
	}
	for key, ids := range source {
		target[key] = unionIDs(target[key], ids)
	}
	return target
}

func unionIDs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
