// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    ID
		wantErr bool
	}{
		{name: "int", raw: 5, want: 5},
		{name: "int64", raw: int64(9), want: 9},
		{name: "integral float", raw: float64(12), want: 12},
		{name: "numeric string", raw: "42", want: 42},
		{name: "padded string", raw: " 42 ", want: 42},
		{name: "float string", raw: "7.0", want: 7},
		{name: "json number", raw: json.Number("31"), want: 31},
		{name: "fractional float", raw: 1.5, wantErr: true},
		{name: "zero", raw: 0, wantErr: true},
		{name: "negative", raw: -3, wantErr: true},
		{name: "empty string", raw: "", wantErr: true},
		{name: "word", raw: "alice", wantErr: true},
		{name: "nil", raw: nil, wantErr: true},
		{name: "bool", raw: true, wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Parse(test.raw)
			if test.wantErr {
				if err == nil {
					t.Fatalf("Parse(%v) = %v, want error", test.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%v) error: %v", test.raw, err)
			}
			if got != test.want {
				t.Errorf("Parse(%v) = %v, want %v", test.raw, got, test.want)
			}
		})
	}
}

// 2^63 is the first float64 past int64; it must not wrap negative.
func TestParseRejectsFloatBeyondInt64(t *testing.T) {
	for _, raw := range []any{float64(1 << 63), 1e19, "9223372036854775808.0"} {
		_, err := Parse(raw)
		if err == nil || !strings.Contains(err.Error(), "not an integral identifier") {
			t.Errorf("Parse(%v) error = %v, want a not-integral error", raw, err)
		}
	}
}

func TestUnmarshalJSONNormalizesRepresentations(t *testing.T) {
	var payload struct {
		Numeric ID `json:"numeric"`
		Text    ID `json:"text"`
		Missing ID `json:"missing"`
	}
	if err := json.Unmarshal([]byte(`{"numeric": 17, "text": "17", "missing": null}`), &payload); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if payload.Numeric != payload.Text {
		t.Errorf("numeric %v != text %v", payload.Numeric, payload.Text)
	}
	if !payload.Missing.IsZero() {
		t.Errorf("missing = %v, want zero", payload.Missing)
	}
}

func TestUnmarshalJSONRejectsGarbage(t *testing.T) {
	var id ID
	if err := json.Unmarshal([]byte(`"bob"`), &id); err == nil {
		t.Fatalf("Unmarshal(\"bob\") = %v, want error", id)
	}
	if err := json.Unmarshal([]byte(`{}`), &id); err == nil {
		t.Fatalf("Unmarshal({}) = %v, want error", id)
	}
}

func TestLessIsNumeric(t *testing.T) {
	if !ID(9).Less(ID(10)) {
		t.Error("9 should order before 10")
	}
	if ID(10).Less(ID(9)) {
		t.Error("10 should not order before 9")
	}
}

func TestMarshalJSON(t *testing.T) {
	encoded, err := json.Marshal(struct {
		Set   ID `json:"set"`
		Unset ID `json:"unset"`
	}{Set: 8})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(encoded) != `{"set":8,"unset":null}` {
		t.Errorf("Marshal = %s", encoded)
	}
}
