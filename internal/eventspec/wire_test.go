package eventspec

import (
	"errors"
	"testing"

	"github.com/solatis/schemainspector/internal/types"
)

const purchaseSpecJSON = `{
  "events": [
    {
      "b": "branch_1",
      "id": "evt_purchase",
      "vids": ["evt_purchase_v2"],
      "p": {
        "amount": {"t": "float", "r": true, "minmax": {"0,1000": ["evt_purchase"]}},
        "currency": {"t": "string", "r": true, "v": {"[\"USD\",\"EUR\"]": ["evt_purchase", "evt_purchase_v2"]}},
        "items": {
          "t": "object", "r": false, "l": true,
          "children": {"sku": {"t": "string", "r": true, "rx": {"^SKU-": ["evt_purchase"]}}}
        }
      }
    }
  ],
  "metadata": {"schemaId": "sch_1", "branchId": "branch_1", "latestActionId": "act_1", "sourceId": "src_1"}
}`

func TestParseResponse(t *testing.T) {
	spec, err := ParseResponse([]byte(purchaseSpecJSON))
	if err != nil {
		t.Fatalf("ParseResponse() error = %v, want nil", err)
	}

	if len(spec.Events) != 1 {
		t.Fatalf("len(Events) = %d, want 1", len(spec.Events))
	}
	entry := spec.Events[0]
	if entry.BranchID != "branch_1" || entry.BaseEventID != "evt_purchase" {
		t.Errorf("entry = %+v, want branch_1/evt_purchase", entry)
	}
	if len(entry.VariantIDs) != 1 || entry.VariantIDs[0] != "evt_purchase_v2" {
		t.Errorf("VariantIDs = %v, want [evt_purchase_v2]", entry.VariantIDs)
	}

	amount := entry.Props["amount"]
	if amount == nil || amount.Type != "float" || !amount.Required {
		t.Fatalf("amount = %+v, want required float", amount)
	}
	if ids := amount.MinMaxRanges["0,1000"]; len(ids) != 1 || ids[0] != "evt_purchase" {
		t.Errorf("amount minmax = %v", amount.MinMaxRanges)
	}
	if amount.PinnedValues != nil || amount.AllowedValues != nil || amount.RegexPatterns != nil {
		t.Errorf("absent mappings should stay nil, got %+v", amount)
	}
	if amount.IsList != nil {
		t.Errorf("IsList = %v, want nil when l is absent", *amount.IsList)
	}

	items := entry.Props["items"]
	if !items.List() {
		t.Errorf("items.List() = false, want true")
	}
	sku := items.Children["sku"]
	if sku == nil || sku.RegexPatterns["^SKU-"] == nil {
		t.Errorf("items.sku = %+v, want regex constraint", sku)
	}

	want := types.EventSpecMetadata{SchemaID: "sch_1", BranchID: "branch_1", LatestActionID: "act_1", SourceID: "src_1"}
	if *spec.Metadata != want {
		t.Errorf("Metadata = %+v, want %+v", *spec.Metadata, want)
	}
}

func TestParseResponse_Shape(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "minimal valid", body: `{"events":[],"metadata":{"schemaId":"s","branchId":"b","latestActionId":"a"}}`},
		{name: "empty strings are present", body: `{"events":[],"metadata":{"schemaId":"","branchId":"","latestActionId":""}}`},
		{name: "missing events", body: `{"metadata":{"schemaId":"s","branchId":"b","latestActionId":"a"}}`, wantErr: true},
		{name: "null events", body: `{"events":null,"metadata":{"schemaId":"s","branchId":"b","latestActionId":"a"}}`, wantErr: true},
		{name: "missing metadata", body: `{"events":[]}`, wantErr: true},
		{name: "missing schemaId", body: `{"events":[],"metadata":{"branchId":"b","latestActionId":"a"}}`, wantErr: true},
		{name: "missing branchId", body: `{"events":[],"metadata":{"schemaId":"s","latestActionId":"a"}}`, wantErr: true},
		{name: "missing latestActionId", body: `{"events":[],"metadata":{"schemaId":"s","branchId":"b"}}`, wantErr: true},
		{name: "not json", body: `<html>`, wantErr: true},
		{name: "wrong type", body: `{"events":"nope","metadata":{}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := ParseResponse([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, types.ErrMalformedSpec) {
					t.Errorf("ParseResponse() error = %v, want ErrMalformedSpec", err)
				}
				if spec != nil {
					t.Errorf("ParseResponse() spec = %+v, want nil", spec)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseResponse() error = %v, want nil", err)
			}
			if spec.Metadata.SourceID != "" {
				t.Errorf("SourceID = %q, want empty", spec.Metadata.SourceID)
			}
		})
	}
}
