// Package check compares the expected values of a test case row against the
// entity objects collected by its output flow.
package check

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/example/erp/tools/acctest/internal/client"
	"github.com/example/erp/tools/acctest/internal/sheet"
	"github.com/example/erp/tools/acctest/internal/step"
	"github.com/example/erp/tools/acctest/internal/value"
)

// ReasonEntityNotFound is the verdict reason when no output was collected for an entity.
const ReasonEntityNotFound = "Entity output not found!"

// MismatchReason formats the verdict reason for a value mismatch.
func MismatchReason(expected, actual value.Value) string {
	return fmt.Sprintf("Value from Test case: %s and value from result: %s do not match!", expected, actual)
}

// EntityOutputs maps an upper-cased entity name to the last result the
// output flow produced for it.
type EntityOutputs map[string]step.Result

// Record stores r for entity, replacing any earlier result.
func (o EntityOutputs) Record(entity string, r step.Result) {
	o[normalize(entity)] = r
}

// Lookup returns the result stored for entity.
func (o EntityOutputs) Lookup(entity string) (step.Result, bool) {
	r, ok := o[normalize(entity)]
	return r, ok
}

// Verdict is the outcome of one output check.
type Verdict struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// Checker performs output checks.
type Checker struct {
	log *zap.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Checker) {
		if log != nil {
			c.log = log
		}
	}
}

// NewChecker creates a Checker.
func NewChecker(opts ...Option) *Checker {
	c := &Checker{log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check compares the OUTPUTS values of rec for entity's attrs against the
// entity's collected output. A missing sheet column is returned as an error;
// everything else is reported through the verdict.
func (c *Checker) Check(outputs EntityOutputs, entity string, attrs []string, rec sheet.Record) (Verdict, error) {
	expected, err := value.MapAttributes(rec, attrs, normalize(entity), value.Outputs)
	if err != nil {
		return Verdict{}, err
	}

	res, ok := outputs.Lookup(entity)
	if !ok || res.IsSkipped() {
		return Verdict{Passed: false, Reason: ReasonEntityNotFound}, nil
	}

	actual := Extract(res.Object(), expected.Keys())
	if len(actual) != len(expected) {
		return Verdict{Passed: false, Reason: fmt.Sprintf("attribute keys do not match: %v vs %v", expected.Keys(), actual.Keys())}, nil
	}

	for i, want := range expected {
		got := actual[i]
		if want.Key != got.Key {
			return Verdict{Passed: false, Reason: fmt.Sprintf("attribute keys do not match: %v vs %v", expected.Keys(), actual.Keys())}, nil
		}

		e, a := want.Value.Canonical(), got.Value.Canonical()
		if !e.Equal(a) {
			c.log.Debug("output mismatch",
				zap.String("entity", normalize(entity)),
				zap.String("attribute", want.Key),
				zap.Stringer("expected", e),
				zap.Stringer("actual", a),
			)
			return Verdict{Passed: false, Reason: MismatchReason(e, a)}, nil
		}
	}

	return Verdict{Passed: true}, nil
}

// Extract reads attrs from obj. A key is looked up directly first and then
// as a dotted path; a value that cannot be found is null.
func Extract(obj map[string]any, attrs []string) value.AttributeMap {
	out := make(value.AttributeMap, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, value.Pair{Key: attr, Value: lookup(obj, attr)})
	}
	return out
}

func lookup(obj map[string]any, attr string) value.Value {
	if v, ok := obj[attr]; ok {
		return value.FromJSON(v)
	}
	if strings.ContainsAny(attr, ".[") {
		if v, err := client.JSONPath(obj, attr); err == nil {
			return value.FromJSON(v)
		}
	}
	return value.NullValue()
}

func normalize(entity string) string {
	return strings.ToUpper(strings.TrimSpace(entity))
}
