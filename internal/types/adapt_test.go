package types

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

type address struct {
	City string `json:"city"`
	Zip  string `json:"-"`
}

type audit struct {
	CreatedBy string
}

type customer struct {
	audit
	Name    string   `json:"name,omitempty"`
	Age     int      `json:"age"`
	Tags    []string `json:"tags"`
	Address *address `json:"address"`
	secret  string
}

func TestFromGo(t *testing.T) {
	ch := make(chan int)

	tests := []struct {
		name     string
		input    any
		wantKind Kind
		wantJSON string
	}{
		{name: "nil", input: nil, wantKind: KindNull, wantJSON: `null`},
		{name: "nil pointer", input: (*address)(nil), wantKind: KindNull, wantJSON: `null`},
		{name: "nil slice", input: []int(nil), wantKind: KindNull, wantJSON: `null`},
		{name: "nil map", input: map[string]int(nil), wantKind: KindNull, wantJSON: `null`},
		{name: "bool", input: true, wantKind: KindBool, wantJSON: `true`},
		{name: "int8", input: int8(-3), wantKind: KindInt, wantJSON: `-3`},
		{name: "uint32", input: uint32(7), wantKind: KindInt, wantJSON: `7`},
		{name: "int64", input: int64(1) << 40, wantKind: KindInt, wantJSON: `1099511627776`},
		{name: "float32", input: float32(1.5), wantKind: KindFloat, wantJSON: `1.5`},
		{name: "string", input: "hi", wantKind: KindString, wantJSON: `"hi"`},
		{name: "bytes", input: []byte("raw"), wantKind: KindString, wantJSON: `"raw"`},
		{name: "array", input: [2]int{1, 2}, wantKind: KindList, wantJSON: `[1,2]`},
		{name: "empty slice", input: []any{}, wantKind: KindList, wantJSON: `[]`},
		{name: "mixed slice", input: []any{1, "a", nil}, wantKind: KindList, wantJSON: `[1,"a",null]`},
		{name: "int keyed map", input: map[int]string{2: "b"}, wantKind: KindMap, wantJSON: `{"2":"b"}`},
		{
			name:     "struct with tags",
			input:    customer{audit: audit{CreatedBy: "ops"}, Age: 30, Tags: []string{"x"}, Address: &address{City: "Oslo", Zip: "0150"}, secret: "s"},
			wantKind: KindMap,
			wantJSON: `{"CreatedBy":"ops","address":{"city":"Oslo"},"age":30,"name":"","tags":["x"]}`,
		},
		{name: "time", input: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), wantKind: KindString, wantJSON: `"2024-01-02T03:04:05Z"`},
		{name: "json number int", input: json.Number("12"), wantKind: KindInt, wantJSON: `12`},
		{name: "json number float", input: json.Number("1.25"), wantKind: KindFloat, wantJSON: `1.25`},
		{name: "raw message", input: json.RawMessage(`{"a":[1]}`), wantKind: KindMap, wantJSON: `{"a":[1]}`},
		{name: "value passthrough", input: Int(5), wantKind: KindInt, wantJSON: `5`},
		{name: "func", input: func() {}, wantKind: KindUnknown},
		{name: "chan", input: ch, wantKind: KindUnknown},
		{name: "complex", input: complex(1, 2), wantKind: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromGo(tt.input)
			if got.Kind() != tt.wantKind {
				t.Fatalf("FromGo() kind = %v, want %v", got.Kind(), tt.wantKind)
			}
			if tt.wantJSON == "" {
				return
			}
			enc, err := json.Marshal(got)
			if err != nil {
				t.Fatalf("Marshal() error = %v, want nil", err)
			}
			if string(enc) != tt.wantJSON {
				t.Errorf("Marshal() = %s, want %s", enc, tt.wantJSON)
			}
		})
	}
}

func TestFromGo_CyclicDataTerminates(t *testing.T) {
	type node struct {
		Next *node `json:"next"`
	}
	n := &node{}
	n.Next = n

	got := FromGo(n)
	if got.Kind() != KindMap {
		t.Fatalf("FromGo() kind = %v, want map", got.Kind())
	}
}

func TestFromJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind Kind
		wantErr  bool
	}{
		{name: "integer", input: `42`, wantKind: KindInt},
		{name: "integral float literal", input: `42.0`, wantKind: KindFloat},
		{name: "exponent", input: `1e3`, wantKind: KindFloat},
		{name: "huge integer", input: `123456789012345678901234567890`, wantKind: KindFloat},
		{name: "object", input: `{"a": {"b": [true]}}`, wantKind: KindMap},
		{name: "null", input: `null`, wantKind: KindNull},
		{name: "invalid", input: `{"a":`, wantErr: true},
		{name: "trailing data", input: `{} {}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromJSON([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("FromJSON() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("FromJSON() error = %v, want nil", err)
			}
			if got.Kind() != tt.wantKind {
				t.Errorf("FromJSON() kind = %v, want %v", got.Kind(), tt.wantKind)
			}
		})
	}
}

func TestFromProto(t *testing.T) {
	s, err := structpb.NewStruct(map[string]any{
		"amount":   42,
		"ratio":    0.5,
		"currency": "USD",
		"paid":     true,
		"items":    []any{"a", nil},
		"meta":     map[string]any{"k": "v"},
	})
	if err != nil {
		t.Fatalf("NewStruct() error = %v, want nil", err)
	}

	got := FromProtoStruct(s)
	enc, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("Marshal() error = %v, want nil", err)
	}
	want := `{"amount":42,"currency":"USD","items":["a",null],"meta":{"k":"v"},"paid":true,"ratio":0.5}`
	if string(enc) != want {
		t.Errorf("FromProtoStruct() = %s, want %s", enc, want)
	}

	if FromProto(nil).Kind() != KindNull {
		t.Errorf("FromProto(nil) kind = %v, want null", FromProto(nil).Kind())
	}
}

func TestValue_MarshalNonFinite(t *testing.T) {
	v := List(Float(math.NaN()), Float(math.Inf(1)), Float(2))
	enc, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error = %v, want nil", err)
	}
	if string(enc) != `[null,null,2]` {
		t.Errorf("Marshal() = %s, want [null,null,2]", enc)
	}
}

func TestValue_Immutable(t *testing.T) {
	src := map[string]Value{"a": Int(1)}
	v := Map(src)
	src["b"] = Int(2)

	if v.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", v.Len())
	}
	fields := v.Fields()
	fields["c"] = Int(3)
	if _, ok := v.Field("c"); ok {
		t.Errorf("Field(c) found after mutating Fields() copy")
	}
}

func TestParseEnv(t *testing.T) {
	tests := []struct {
		input   string
		want    Env
		wantErr bool
	}{
		{input: "prod", want: EnvProd},
		{input: "DEV", want: EnvDev},
		{input: " staging ", want: EnvStaging},
		{input: "production", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseEnv(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEnv() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}
