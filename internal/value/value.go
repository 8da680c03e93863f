// Package value maps test case cells to typed attribute values.
//
// Cells are coerced best-effort: NULL/NONE become an explicit null, strings
// with a decimal point are tried as floats, everything else is tried as an
// integer, and whatever fails to parse stays text. Coercion never fails.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	// Null is an explicit absent value.
	Null Kind = iota
	// Integer is a whole number.
	Integer
	// Float is a floating point number.
	Float
	// Text is any value that did not parse as a number.
	Text
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Text:
		return "text"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// NullToken is the canonical rendering of an absent value.
const NullToken = "NULL"

// Value is a coerced scalar. The zero Value is Null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

// NullValue returns the explicit absent value.
func NullValue() Value { return Value{} }

// Int returns an Integer value.
func Int(i int64) Value { return Value{kind: Integer, i: i} }

// Float64 returns a Float value.
func Float64(f float64) Value { return Value{kind: Float, f: f} }

// Str returns a Text value without coercion.
func Str(s string) Value { return Value{kind: Text, s: s} }

// Coerce converts a raw cell into a Value.
func Coerce(raw string) Value {
	s := strings.TrimSpace(raw)
	if isNullWord(s) {
		return NullValue()
	}

	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Float64(f)
		}
		return Str(s)
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i)
	}
	return Str(s)
}

// FromJSON converts a value decoded from an API response.
// Numbers must be decoded as json.Number to keep integers exact; strings are
// coerced like cells so that both sides of a comparison agree.
func FromJSON(v any) Value {
	switch t := v.(type) {
	case nil:
		return NullValue()
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		return Coerce(t.String())
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return Int(int64(t))
		}
		return Float64(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case string:
		return Coerce(t)
	case bool:
		return Str(strconv.FormatBool(t))
	case Value:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return Str(fmt.Sprint(t))
		}
		return Str(string(b))
	}
}

// Kind returns the variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the explicit absent value.
func (v Value) IsNull() bool { return v.kind == Null }

// IsAbsent reports whether v carries no usable data: null, empty text, or
// text spelling NULL/NONE.
func (v Value) IsAbsent() bool {
	switch v.kind {
	case Null:
		return true
	case Text:
		s := strings.TrimSpace(v.s)
		return s == "" || isNullWord(s)
	default:
		return false
	}
}

// Canonical collapses every absent spelling into the NULL token.
func (v Value) Canonical() Value {
	if v.IsAbsent() {
		return Str(NullToken)
	}
	return v
}

// Equal compares two values. Integers and floats compare numerically.
func (v Value) Equal(o Value) bool {
	switch {
	case v.kind == Null || o.kind == Null:
		return v.kind == o.kind
	case v.kind == Text || o.kind == Text:
		return v.kind == o.kind && v.s == o.s
	case v.kind == Integer && o.kind == Integer:
		return v.i == o.i
	default:
		return v.number() == o.number()
	}
}

func (v Value) number() float64 {
	if v.kind == Integer {
		return float64(v.i)
	}
	return v.f
}

// Interface returns the Go value suitable for JSON payloads.
func (v Value) Interface() any {
	switch v.kind {
	case Integer:
		return v.i
	case Float:
		return v.f
	case Text:
		return v.s
	default:
		return nil
	}
}

// String renders v so that Coerce(v.String()) yields v again.
func (v Value) String() string {
	switch v.kind {
	case Integer:
		return strconv.FormatInt(v.i, 10)
	case Float:
		s := strconv.FormatFloat(v.f, 'f', -1, 64)
		if !strings.Contains(s, ".") && !math.IsInf(v.f, 0) && !math.IsNaN(v.f) {
			s += ".0"
		}
		return s
	case Text:
		return v.s
	default:
		return NullToken
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == Float && (math.IsInf(v.f, 0) || math.IsNaN(v.f)) {
		return json.Marshal(v.String())
	}
	return json.Marshal(v.Interface())
}

func isNullWord(s string) bool {
	return strings.EqualFold(s, "NULL") || strings.EqualFold(s, "NONE")
}
