// internal/eventspec/wire.go
package eventspec

/*
 * Wire decoding of the tracking-plan endpoint.
 *
 * The backend abbreviates constraint keys to keep responses small:
 *
 *   entry:       b=branchId id=baseEventId vids=variantIds p=props
 *   constraints: t=type r=required l=isList p=pinnedValues v=allowedValues
 *                rx=regexPatterns minmax=minMaxRanges children
 *
 * ParseResponse decodes those keys and converts to the long-form types in
 * internal/types. Metadata strings decode through pointers so a missing field
 * is distinguishable from an empty one during the shape check.
 */

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/solatis/schemainspector/internal/types"
)

type constraintsWire struct {
	T        string                      `json:"t"`
	R        bool                        `json:"r"`
	L        *bool                       `json:"l"`
	P        map[string][]string         `json:"p"`
	V        map[string][]string         `json:"v"`
	RX       map[string][]string         `json:"rx"`
	MinMax   map[string][]string         `json:"minmax"`
	Children map[string]*constraintsWire `json:"children"`
}

type entryWire struct {
	B    string                      `json:"b"`
	ID   string                      `json:"id"`
	VIDs []string                    `json:"vids"`
	P    map[string]*constraintsWire `json:"p"`
}

type metadataWire struct {
	SchemaID       *string `json:"schemaId"`
	BranchID       *string `json:"branchId"`
	LatestActionID *string `json:"latestActionId"`
	SourceID       *string `json:"sourceId"`
}

type responseWire struct {
	Events   []*entryWire  `json:"events"`
	Metadata *metadataWire `json:"metadata"`
}

// ParseResponse decodes a tracking-plan response body.
// Returns an error wrapping types.ErrMalformedSpec when the body is not JSON
// or lacks events, metadata, or any of schemaId, branchId and latestActionId.
func ParseResponse(body []byte) (*types.EventSpecResponse, error) {
	var wire responseWire
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedSpec, err)
	}
	if err := wire.checkShape(); err != nil {
		return nil, err
	}
	return wire.toSpec(), nil
}

func (w *responseWire) checkShape() error {
	switch {
	case w.Events == nil:
		return fmt.Errorf("%w: missing events", types.ErrMalformedSpec)
	case w.Metadata == nil:
		return fmt.Errorf("%w: missing metadata", types.ErrMalformedSpec)
	case w.Metadata.SchemaID == nil:
		return fmt.Errorf("%w: missing schemaId", types.ErrMalformedSpec)
	case w.Metadata.BranchID == nil:
		return fmt.Errorf("%w: missing branchId", types.ErrMalformedSpec)
	case w.Metadata.LatestActionID == nil:
		return fmt.Errorf("%w: missing latestActionId", types.ErrMalformedSpec)
	}
	return nil
}

func (w *responseWire) toSpec() *types.EventSpecResponse {
	spec := &types.EventSpecResponse{
		Events: make([]types.EventSpecEntry, 0, len(w.Events)),
		Metadata: &types.EventSpecMetadata{
			SchemaID:       *w.Metadata.SchemaID,
			BranchID:       *w.Metadata.BranchID,
			LatestActionID: *w.Metadata.LatestActionID,
		},
	}
	if w.Metadata.SourceID != nil {
		spec.Metadata.SourceID = *w.Metadata.SourceID
	}

	for _, e := range w.Events {
		if e == nil {
			continue
		}
		entry := types.EventSpecEntry{
			BranchID:    e.B,
			BaseEventID: e.ID,
			VariantIDs:  e.VIDs,
			Props:       make(map[string]*types.PropertyConstraints, len(e.P)),
		}
		for name, c := range e.P {
			if c != nil {
				entry.Props[name] = c.toConstraints()
			}
		}
		spec.Events = append(spec.Events, entry)
	}
	return spec
}

func (w *constraintsWire) toConstraints() *types.PropertyConstraints {
	c := &types.PropertyConstraints{
		Type:          w.T,
		Required:      w.R,
		IsList:        w.L,
		PinnedValues:  types.ConstraintMapping(w.P),
		AllowedValues: types.ConstraintMapping(w.V),
		RegexPatterns: types.ConstraintMapping(w.RX),
		MinMaxRanges:  types.ConstraintMapping(w.MinMax),
	}
	if w.Children != nil {
		c.Children = make(map[string]*types.PropertyConstraints, len(w.Children))
		for name, child := range w.Children {
			if child != nil {
				c.Children[name] = child.toConstraints()
			}
		}
	}
	return c
}
