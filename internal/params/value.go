package params

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the canonical value representation of a parameter.
type Kind int

const (
	// Bool is carried as 0/1 on the wire.
	Bool Kind = iota
	// Int is a plain decimal integer.
	Int
	// Float is written with fixed decimals (six unless a spec overrides).
	Float
	// Enum is a token string, canonically upper-case.
	Enum
	// Range reads as a float and writes as a token; the canonical form
	// is the wire-write token, translated through a conversion table.
	Range
)

// Value is the canonical in-memory form of one parameter. Wire-read and
// wire-write forms are derived from it, never stored.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int
	Float float64
	Str   string
}

func BoolValue(b bool) Value      { return Value{Kind: Bool, Bool: b} }
func IntValue(i int) Value        { return Value{Kind: Int, Int: i} }
func FloatValue(f float64) Value  { return Value{Kind: Float, Float: f} }
func EnumValue(s string) Value    { return Value{Kind: Enum, Str: strings.ToUpper(s)} }
func RangeValue(tok string) Value { return Value{Kind: Range, Str: strings.ToUpper(tok)} }

// Equal compares two canonical values.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case Bool:
		return v.Bool == o.Bool
	case Int:
		return v.Int == o.Int
	case Float:
		return v.Float == o.Float
	default:
		return v.Str == o.Str
	}
}

// IsZero reports whether the value equals its inactive sentinel.
func (v Value) IsZero() bool {
	switch v.Kind {
	case Bool:
		return !v.Bool
	case Int:
		return v.Int == 0
	case Float:
		return v.Float == 0
	default:
		return v.Str == ""
	}
}

// Display renders the value for logs and API payloads.
func (v Value) Display() string {
	switch v.Kind {
	case Bool:
		if v.Bool {
			return "on"
		}
		return "off"
	case Int:
		return strconv.Itoa(v.Int)
	case Float:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return v.Str
	}
}

// Native returns the JSON-friendly representation used by the flat
// configuration export format.
func (v Value) Native() any {
	switch v.Kind {
	case Bool:
		if v.Bool {
			return 1
		}
		return 0
	case Int:
		return v.Int
	case Float:
		return v.Float
	default:
		return v.Str
	}
}

func parseBool(raw string) (bool, error) {
	switch strings.ToUpper(raw) {
	case "0", "OFF":
		return false, nil
	case "1", "ON":
		return true, nil
	}
	return false, fmt.Errorf("malformed boolean %q", raw)
}
