// Package step runs a single API step of a test case flow: it builds the
// search or update payload from the row, calls the API, and turns the reply
// into a step result that the next step can chain on.
package step

import (
	"encoding/json"
	"fmt"

	"github.com/example/erp/tools/acctest/internal/value"
)

// Result is the outcome of one step: a completed entity object or a skip.
// The zero Result is Skipped.
type Result struct {
	object    map[string]any
	completed bool
}

// Completed wraps the entity object returned by a step.
func Completed(obj map[string]any) Result {
	if obj == nil {
		obj = map[string]any{}
	}
	return Result{object: obj, completed: true}
}

// Skip returns the skipped result.
func Skip() Result { return Result{} }

// IsSkipped reports whether the step was skipped.
func (r Result) IsSkipped() bool { return !r.completed }

// Object returns the entity object, or nil when skipped.
func (r Result) Object() map[string]any { return r.object }

// Outcome labels how a step ended.
type Outcome string

// Step outcomes.
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Pager selects the page of a search.
type Pager struct {
	PageNumber int `json:"pageNumber"`
	PageSize   int `json:"pageSize"`
}

// Sorter orders search results.
type Sorter struct {
	Direction string `json:"direction"`
	Property  string `json:"property"`
}

// Filter is one equality condition of a search.
type Filter struct {
	FilterType   string      `json:"filterType"`
	JoinType     string      `json:"joinType"`
	OperatorType string      `json:"operatorType"`
	Key          string      `json:"key"`
	Value        value.Value `json:"value"`
	DataType     string      `json:"dataType"`
}

// SearchRequest is the POST filter-search payload.
type SearchRequest struct {
	Pager   Pager    `json:"pager"`
	Sorters []Sorter `json:"sorters"`
	Filters []Filter `json:"filters"`
}

// NewSearchRequest builds a search for the newest record matching every identifier.
func NewSearchRequest(identifiers value.AttributeMap) SearchRequest {
	filters := make([]Filter, 0, len(identifiers))
	for _, p := range identifiers {
		filters = append(filters, Filter{
			FilterType:   "CONDITION",
			JoinType:     "NONE",
			OperatorType: "EQUALS",
			Key:          p.Key,
			Value:        p.Value,
			DataType:     "string",
		})
	}

	return SearchRequest{
		Pager:   Pager{PageNumber: 0, PageSize: 1},
		Sorters: []Sorter{{Direction: "DESC", Property: "id"}},
		Filters: filters,
	}
}

// SearchResponse is the paged reply of a search.
type SearchResponse struct {
	TotalElements json.Number      `json:"totalElements"`
	Content       []map[string]any `json:"content"`
}

// Total returns totalElements, or 0 if it is missing or not an integer.
func (r SearchResponse) Total() int64 {
	n, err := r.TotalElements.Int64()
	if err != nil {
		return 0
	}
	return n
}

// UpdateRequest is the PUT payload.
type UpdateRequest struct {
	Data []map[string]any `json:"data"`
}

// NewUpdateRequest clones prev and overwrites it with the input values and
// then the identifier values.
func NewUpdateRequest(prev map[string]any, inputs, identifiers value.AttributeMap) UpdateRequest {
	merged := cloneObject(prev)
	for _, p := range inputs {
		merged[p.Key] = p.Value
	}
	for _, p := range identifiers {
		merged[p.Key] = p.Value
	}
	return UpdateRequest{Data: []map[string]any{merged}}
}

func cloneObject(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneAny(v)
	}
	return dst
}

func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneObject(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneAny(e)
		}
		return out
	default:
		return v
	}
}

// payloadString renders a payload for error messages.
func payloadString(payload any) string {
	if payload == nil {
		return "null"
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(b)
}
