// internal/types/spec.go
package types

/*
 * Tracking-plan and validation result types.
 *
 * Provides the decoded form of a tracking-plan response (EventSpecResponse)
 * and the per-property report produced by internal/rules. Wire decoding of
 * the abbreviated backend keys lives in internal/eventspec; these types carry
 * long-form JSON tags for transmission bodies and CLI output.
 *
 * Key types:
 *   - ConstraintMapping: constraint key -> event IDs the constraint applies to
 *   - PropertyConstraints: all constraints on one property, possibly nested
 *   - EventSpecEntry: one base event, its variants and their constraints
 *   - EventSpecResponse: entries plus tracking-plan metadata
 *   - ValidationResult: per-property failed/passed event IDs
 *
 * Invariant: constraint mappings not relevant to a property are nil, not empty.
 */

// ConstraintMapping maps a constraint key to the event IDs that declare it.
// Key format depends on the constraint kind: the stringified pinned value, a
// JSON array of allowed values, a regex pattern, or a "min,max" range.
type ConstraintMapping map[string][]string

// Clone returns a deep copy, or nil for a nil mapping.
func (m ConstraintMapping) Clone() ConstraintMapping {
	if m == nil {
		return nil
	}
	out := make(ConstraintMapping, len(m))
	for k, ids := range m {
		out[k] = append([]string(nil), ids...)
	}
	return out
}

// PropertyConstraints describes everything a tracking plan requires of one property.
type PropertyConstraints struct {
	Type          string                          `json:"type,omitempty"`
	Required      bool                            `json:"required"`
	IsList        *bool                           `json:"isList,omitempty"`
	PinnedValues  ConstraintMapping               `json:"pinnedValues,omitempty"`
	AllowedValues ConstraintMapping               `json:"allowedValues,omitempty"`
	RegexPatterns ConstraintMapping               `json:"regexPatterns,omitempty"`
	MinMaxRanges  ConstraintMapping               `json:"minMaxRanges,omitempty"`
	Children      map[string]*PropertyConstraints `json:"children,omitempty"`
}

// List reports whether the property is declared as a list.
func (c *PropertyConstraints) List() bool {
	return c != nil && c.IsList != nil && *c.IsList
}

// Clone returns a deep copy including nested children.
func (c *PropertyConstraints) Clone() *PropertyConstraints {
	if c == nil {
		return nil
	}
	out := &PropertyConstraints{
		Type:          c.Type,
		Required:      c.Required,
		PinnedValues:  c.PinnedValues.Clone(),
		AllowedValues: c.AllowedValues.Clone(),
		RegexPatterns: c.RegexPatterns.Clone(),
		MinMaxRanges:  c.MinMaxRanges.Clone(),
		Children:      CloneConstraints(c.Children),
	}
	if c.IsList != nil {
		isList := *c.IsList
		out.IsList = &isList
	}
	return out
}

// CloneConstraints deep-copies a property constraint table, or returns nil for nil.
func CloneConstraints(props map[string]*PropertyConstraints) map[string]*PropertyConstraints {
	if props == nil {
		return nil
	}
	out := make(map[string]*PropertyConstraints, len(props))
	for name, c := range props {
		out[name] = c.Clone()
	}
	return out
}

// EventSpecEntry is one base event and its variants sharing a branch.
type EventSpecEntry struct {
	BranchID    string                          `json:"branchId"`
	BaseEventID string                          `json:"baseEventId"`
	VariantIDs  []string                        `json:"variantIds"`
	Props       map[string]*PropertyConstraints `json:"props"`
}

// EventSpecMetadata identifies the tracking-plan revision a spec came from.
type EventSpecMetadata struct {
	SchemaID       string `json:"schemaId"`
	BranchID       string `json:"branchId"`
	LatestActionID string `json:"latestActionId"`
	SourceID       string `json:"sourceId,omitempty"`
}

// EventSpecResponse is the decoded tracking-plan answer for one event name.
type EventSpecResponse struct {
	Events   []EventSpecEntry   `json:"events"`
	Metadata *EventSpecMetadata `json:"metadata"`
}

// PropertyValidationResult reports constraint outcomes for one property.
// At most one of FailedEventIDs and PassedEventIDs is set; all fields empty
// means nothing to report.
type PropertyValidationResult struct {
	FailedEventIDs []string                             `json:"failedEventIds,omitempty"`
	PassedEventIDs []string                             `json:"passedEventIds,omitempty"`
	Children       map[string]*PropertyValidationResult `json:"children,omitempty"`
}

// Empty reports whether the result carries no information.
func (r *PropertyValidationResult) Empty() bool {
	return r == nil || (len(r.FailedEventIDs) == 0 && len(r.PassedEventIDs) == 0 && len(r.Children) == 0)
}

// ValidationResult is the outcome of validating one event against its spec.
type ValidationResult struct {
	Metadata        *EventSpecMetadata                   `json:"metadata"`
	PropertyResults map[string]*PropertyValidationResult `json:"propertyResults"`
}
