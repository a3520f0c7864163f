// internal/rules/evaluate.go
package rules

import (
	"sort"

	"github.com/solatis/schemainspector/internal/types"
)

/*
 * Recursive property validation.
 *
 * Dispatch on the constraint shape, in order:
 *   1. depth >= maxDepth: empty result
 *   2. IsList: the value must be a list, otherwise empty result
 *      - with children: each child is validated on every item and failures
 *        aggregate across items
 *      - without children: the four checks run on every item
 *   3. Children (single object): each declared child is validated against
 *      the value's field; a non-map value validates as {}
 *   4. null on a non-required property: empty result
 *   5. Primitive: the four checks on the value
 *
 * Object results carry only non-empty child results. A child that reports
 * passed IDs inside a list aggregates as failing the complement of the scope.
 */

// scope is the ordered set of event IDs a spec covers.
type scope struct {
	ids   []string
	index map[string]int
}

func newScope(ids []string) *scope {
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, dup := index[id]; !dup {
			index[id] = i
		}
	}
	return &scope{ids: ids, index: index}
}

// failedSet accumulates failing event IDs from constraint checks.
type failedSet map[string]struct{}

func (f failedSet) add(ids []string) {
	for _, id := range ids {
		f[id] = struct{}{}
	}
}

func (v *Validator) validateProperty(value types.Value, c *types.PropertyConstraints, s *scope, depth int) *types.PropertyValidationResult {
	if depth >= v.maxDepth {
		return &types.PropertyValidationResult{}
	}
	if c.List() {
		return v.validateList(value, c, s, depth)
	}
	if c.Children != nil {
		return v.validateObject(value, c, s, depth)
	}
	if value.IsNull() && !c.Required {
		return &types.PropertyValidationResult{}
	}

	failed := failedSet{}
	v.checkAll(value, c, failed)
	return buildResult(failed, s)
}

func (v *Validator) validateObject(value types.Value, c *types.PropertyConstraints, s *scope, depth int) *types.PropertyValidationResult {
	result := &types.PropertyValidationResult{}
	children := make(map[string]*types.PropertyValidationResult)

	for name, child := range c.Children {
		if child == nil {
			continue
		}
		// Field on a non-map yields null, which treats the value as {}.
		childValue, _ := value.Field(name)
		cr := v.validateProperty(childValue, child, s, depth+1)
		if !cr.Empty() {
			children[name] = cr
		}
	}

	if len(children) > 0 {
		result.Children = children
	}
	return result
}

func (v *Validator) validateList(value types.Value, c *types.PropertyConstraints, s *scope, depth int) *types.PropertyValidationResult {
	result := &types.PropertyValidationResult{}
	if value.Kind() != types.KindList {
		return result
	}
	items := value.Items()

	if c.Children == nil {
		failed := failedSet{}
		for _, item := range items {
			v.checkAll(item, c, failed)
		}
		return buildResult(failed, s)
	}

	children := make(map[string]*types.PropertyValidationResult)
	for name, child := range c.Children {
		if child == nil {
			continue
		}
		failed := failedSet{}
		for _, item := range items {
			childValue, _ := item.Field(name)
			cr := v.validateProperty(childValue, child, s, depth+1)
			failed.add(cr.FailedEventIDs)
			if cr.PassedEventIDs != nil {
				failed.add(s.complement(cr.PassedEventIDs))
			}
		}
		if len(failed) > 0 {
			children[name] = buildResult(failed, s)
		}
	}

	if len(children) > 0 {
		result.Children = children
	}
	return result
}

// checkAll runs the four value checks and records failures.
func (v *Validator) checkAll(value types.Value, c *types.PropertyConstraints, failed failedSet) {
	if c.PinnedValues != nil {
		v.checkPinned(value, c.PinnedValues, failed)
	}
	if c.AllowedValues != nil {
		v.checkAllowed(value, c.AllowedValues, failed)
	}
	if c.RegexPatterns != nil {
		v.checkRegex(value, c.RegexPatterns, failed)
	}
	if c.MinMaxRanges != nil {
		v.checkMinMax(value, c.MinMaxRanges, failed)
	}
}

// complement returns the scope IDs not in passed, in scope order.
func (s *scope) complement(passed []string) []string {
	in := make(map[string]struct{}, len(passed))
	for _, id := range passed {
		in[id] = struct{}{}
	}
	var out []string
	for _, id := range s.ids {
		if _, ok := in[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// buildResult reports whichever of the failed and passed lists is smaller.
// Passed wins only when strictly smaller and non-empty; ties report failed.
// Both lists follow scope order; failed IDs outside the scope sort last.
func buildResult(failed failedSet, s *scope) *types.PropertyValidationResult {
	var passed []string
	for _, id := range s.ids {
		if _, ok := failed[id]; !ok {
			passed = append(passed, id)
		}
	}
	failedIDs := s.order(failed)

	result := &types.PropertyValidationResult{}
	switch {
	case len(failedIDs) == 0 && len(passed) == 0:
	case len(passed) > 0 && len(passed) < len(failedIDs):
		result.PassedEventIDs = passed
	case len(failedIDs) > 0:
		result.FailedEventIDs = failedIDs
	}
	return result
}

// order lists the IDs of set by scope position.
func (s *scope) order(set failedSet) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		pi, iok := s.index[ids[i]]
		pj, jok := s.index[ids[j]]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return ids[i] < ids[j]
		}
	})
	return ids
}
