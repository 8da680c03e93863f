package value

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/erp/tools/acctest/internal/sheet"
)

// ErrConfiguration marks metadata that does not line up with the sheet.
// It is fatal for the current test case only.
var ErrConfiguration = errors.New("value: configuration error")

// Section selects the half of the sheet a value is read from.
type Section string

const (
	// Inputs holds values written into entities by the input flow.
	Inputs Section = "INPUTS"
	// Outputs holds identifiers for the output flow and expected values.
	Outputs Section = "OUTPUTS"
)

// Pair is one attribute name and its coerced value.
type Pair struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// AttributeMap is an ordered list of attribute values for one step.
type AttributeMap []Pair

// HasAbsent reports whether any value in the map is absent.
func (m AttributeMap) HasAbsent() bool {
	for _, p := range m {
		if p.Value.IsAbsent() {
			return true
		}
	}
	return false
}

// Keys returns the attribute names in order.
func (m AttributeMap) Keys() []string {
	keys := make([]string, len(m))
	for i, p := range m {
		keys[i] = p.Key
	}
	return keys
}

// MissingColumnError is returned when metadata names an attribute that has
// no column in the sheet.
type MissingColumnError struct {
	Attribute string
	Column    string
}

// Error implements error.
func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing attribute: %s present in metadata is not present in the input sheet: %s", e.Attribute, e.Column)
}

// Is makes errors.Is(err, ErrConfiguration) match.
func (e *MissingColumnError) Is(target error) bool {
	return target == ErrConfiguration
}

// ColumnKey builds the composite sheet key SECTION::ENTITY::ATTRIBUTE.
func ColumnKey(section Section, entity, attribute string) string {
	return strings.ToUpper(string(section) + sheet.KeySeparator + entity + sheet.KeySeparator + attribute)
}

// MapAttributes reads and coerces attrs for entity from rec.
func MapAttributes(rec sheet.Record, attrs []string, entity string, section Section) (AttributeMap, error) {
	out := make(AttributeMap, 0, len(attrs))
	for _, attr := range attrs {
		key := ColumnKey(section, entity, attr)
		raw, ok := rec.Lookup(key)
		if !ok {
			return nil, &MissingColumnError{Attribute: attr, Column: key}
		}
		out = append(out, Pair{Key: attr, Value: Coerce(raw)})
	}
	return out, nil
}
