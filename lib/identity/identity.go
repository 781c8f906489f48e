// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity provides the participant identifier shared by the
// signaling, call, and chat packages.
//
// The backend emits user identifiers inconsistently: the same user may
// appear as 42 in one payload and "42" in another. ID normalizes every
// representation to an int64 at the decoding boundary so comparisons
// (self-authored message detection, the call initiation tie-break) are
// numeric and never fall back to string ordering.
package identity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ID is a positive integral participant identifier. The zero value
// means "unknown"; use IsZero to check.
type ID int64

// Parse normalizes a raw identifier. Accepted forms are integers of any
// Go integer type, integral floats (JSON numbers decode to float64),
// json.Number, and decimal strings with optional surrounding spaces.
// Zero, negative, fractional, and non-numeric values are rejected.
func Parse(raw any) (ID, error) {
	var value int64
	switch typed := raw.(type) {
	case ID:
		value = int64(typed)
	case int:
		value = int64(typed)
	case int32:
		value = int64(typed)
	case int64:
		value = typed
	case uint32:
		value = int64(typed)
	case float64:
		if typed != math.Trunc(typed) || math.IsInf(typed, 0) || typed >= 1<<63 {
			return 0, fmt.Errorf("identity: %v is not an integral identifier", typed)
		}
		value = int64(typed)
	case json.Number:
		return parseString(typed.String())
	case string:
		return parseString(typed)
	case nil:
		return 0, fmt.Errorf("identity: missing identifier")
	default:
		return 0, fmt.Errorf("identity: unsupported identifier type %T", raw)
	}
	if value <= 0 {
		return 0, fmt.Errorf("identity: identifier must be positive, got %d", value)
	}
	return ID(value), nil
}

func parseString(raw string) (ID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("identity: empty identifier")
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		// "7.0" shows up when a numeric id went through a float formatter.
		floatValue, floatErr := strconv.ParseFloat(trimmed, 64)
		if floatErr != nil {
			return 0, fmt.Errorf("identity: %q is not numeric", raw)
		}
		return Parse(floatValue)
	}
	if value <= 0 {
		return 0, fmt.Errorf("identity: identifier must be positive, got %d", value)
	}
	return ID(value), nil
}

// MustParse is like Parse but panics on error. Use in tests and static
// initialization where the input is known-valid.
func MustParse(raw any) ID {
	id, err := Parse(raw)
	if err != nil {
		panic(fmt.Sprintf("identity.MustParse(%v): %v", raw, err))
	}
	return id
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool { return id == 0 }

// Less reports whether id orders before other. Identifiers are compared
// numerically: 9 < 10 even though "10" < "9" as strings.
func (id ID) Less(other ID) bool { return id < other }

// String returns the decimal form.
func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// MarshalJSON encodes the ID as a JSON number, or null when unset.
func (id ID) MarshalJSON() ([]byte, error) {
	if id == 0 {
		return []byte("null"), nil
	}
	return []byte(id.String()), nil
}

// UnmarshalJSON accepts a JSON number or a JSON string holding a
// number. null leaves the ID unset; callers that require an identifier
// check IsZero after decoding.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
