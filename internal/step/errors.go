package step

import (
	"fmt"

	"github.com/example/erp/tools/acctest/internal/metadata"
	"github.com/example/erp/tools/acctest/internal/value"
)

// Ref identifies the step an error belongs to.
type Ref struct {
	Sequence string
	Entity   string
}

// Where returns the step reference.
func (r Ref) Where() Ref { return r }

// StepError is implemented by every error returned from Process.
type StepError interface {
	error
	Where() Ref
}

// Error wraps an underlying failure (missing column, transport error,
// undecodable reply) with the step it happened in.
type Error struct {
	Ref
	Err error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// SequencingError is returned when a PUT step has no preceding result to update.
type SequencingError struct {
	Ref
}

func (e *SequencingError) Error() string {
	return fmt.Sprintf("PUT step %s for entity %s has no preceding step result to update", e.Sequence, e.Entity)
}

// UnsupportedActionError is returned for actions a flow cannot run.
type UnsupportedActionError struct {
	Ref
	Action metadata.Action
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("unsupported action %q for entity %s; flows support POST and PUT", string(e.Action), e.Entity)
}

// Is makes errors.Is(err, value.ErrConfiguration) match.
func (e *UnsupportedActionError) Is(target error) bool {
	return target == value.ErrConfiguration
}

// LookupError is returned when a search matches nothing.
type LookupError struct {
	Ref
	URL     string
	Payload any
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("no record found for entity %s at %s with payload %s", e.Entity, e.URL, payloadString(e.Payload))
}

// APIError is returned when the API answers with anything but 200 or 201,
// or when no response was produced at all.
type APIError struct {
	Ref
	Action     metadata.Action
	URL        string
	StatusCode int
	Message    string
	Payload    any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API call failed: %s %s for entity %s returned status %d: %s; payload: %s",
		e.Action, e.URL, e.Entity, e.StatusCode, e.Message, payloadString(e.Payload))
}
