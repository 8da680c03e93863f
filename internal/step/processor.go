package step

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/erp/tools/acctest/internal/client"
	"github.com/example/erp/tools/acctest/internal/metadata"
	"github.com/example/erp/tools/acctest/internal/sheet"
	"github.com/example/erp/tools/acctest/internal/value"
)

// Executor performs one API call. *client.Client satisfies it.
type Executor interface {
	Perform(ctx context.Context, action, path string, payload any) (*client.Response, error)
}

// Processor runs individual steps.
type Processor struct {
	exec Executor
	log  *zap.Logger

	// onStepComplete is called after every step with its outcome and the
	// time spent in the API call (zero when no call was made).
	onStepComplete func(action metadata.Action, outcome Outcome, duration time.Duration)
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Processor) {
		if log != nil {
			p.log = log
		}
	}
}

// WithStepHook registers a callback invoked after each step.
func WithStepHook(fn func(action metadata.Action, outcome Outcome, duration time.Duration)) Option {
	return func(p *Processor) {
		p.onStepComplete = fn
	}
}

// NewProcessor creates a step processor backed by exec.
func NewProcessor(exec Executor, opts ...Option) *Processor {
	p := &Processor{
		exec: exec,
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs def for one test case row. Identifier and input values are
// read from the given section of rec. prev is the result of the preceding
// step in the same flow, or nil when there is none.
func (p *Processor) Process(ctx context.Context, def metadata.StepDefinition, section value.Section, prev *Result, rec sheet.Record) (Result, error) {
	var duration time.Duration
	res, err := p.process(ctx, def, section, prev, rec, &duration)

	outcome := OutcomeCompleted
	switch {
	case err != nil:
		outcome = OutcomeFailed
	case res.IsSkipped():
		outcome = OutcomeSkipped
	}
	if p.onStepComplete != nil {
		p.onStepComplete(def.Method(), outcome, duration)
	}

	return res, err
}

func (p *Processor) process(ctx context.Context, def metadata.StepDefinition, section value.Section, prev *Result, rec sheet.Record, duration *time.Duration) (Result, error) {
	ref := Ref{Sequence: string(def.Sequence), Entity: def.NormalizedEntity()}
	action := def.Method()
	log := p.log.With(
		zap.String("sequence", ref.Sequence),
		zap.String("entity", ref.Entity),
		zap.String("action", string(action)),
		zap.String("url", def.URL),
	)

	switch action {
	case metadata.ActionPost:
	case metadata.ActionPut:
		if prev == nil {
			return Skip(), &SequencingError{Ref: ref}
		}
		if prev.IsSkipped() {
			log.Info("previous step skipped, skipping update")
			return Skip(), nil
		}
	default:
		return Skip(), &UnsupportedActionError{Ref: ref, Action: action}
	}

	identifiers, err := value.MapAttributes(rec, def.IdentifierAttributes, ref.Entity, section)
	if err != nil {
		return Skip(), &Error{Ref: ref, Err: err}
	}
	if identifiers.HasAbsent() {
		log.Info("identifier value absent, skipping step", zap.Strings("identifiers", identifiers.Keys()))
		return Skip(), nil
	}

	var inputs value.AttributeMap
	if section == value.Inputs {
		inputs, err = value.MapAttributes(rec, def.InputAttributes, ref.Entity, section)
		if err != nil {
			return Skip(), &Error{Ref: ref, Err: err}
		}
	}

	var payload any
	var merged map[string]any
	if action == metadata.ActionPost {
		payload = NewSearchRequest(identifiers)
	} else {
		update := NewUpdateRequest(prev.Object(), inputs, identifiers)
		merged = update.Data[0]
		payload = update
	}

	resp, err := p.exec.Perform(ctx, string(action), def.URL, payload)
	if err != nil {
		return Skip(), &Error{Ref: ref, Err: err}
	}
	target := def.URL
	if resp != nil {
		*duration = resp.Duration
		if resp.URL != "" {
			target = resp.URL
		}
	}

	if !resp.IsSuccess() {
		apiErr := &APIError{
			Ref:     ref,
			Action:  action,
			URL:     target,
			Message: "no response received",
			Payload: payload,
		}
		if resp != nil {
			apiErr.StatusCode = resp.StatusCode
			apiErr.Message = client.ErrorMessage(resp.Body)
		}
		return Skip(), apiErr
	}

	log.Debug("step completed", zap.Int("status_code", resp.StatusCode), zap.Duration("duration", resp.Duration))

	if action == metadata.ActionPost {
		return p.searchResult(ref, target, payload, resp)
	}
	return updateResult(resp, merged), nil
}

// searchResult returns the first record of a search reply.
func (p *Processor) searchResult(ref Ref, url string, payload any, resp *client.Response) (Result, error) {
	var sr SearchResponse
	if err := resp.Decode(&sr); err != nil {
		return Skip(), &Error{Ref: ref, Err: err}
	}
	if sr.Total() <= 0 || len(sr.Content) == 0 {
		return Skip(), &LookupError{Ref: ref, URL: url, Payload: payload}
	}
	return Completed(sr.Content[0]), nil
}

// updateResult picks the updated entity from a PUT reply: the first element
// of its data array, else the reply object, else the payload that was sent.
func updateResult(resp *client.Response, merged map[string]any) Result {
	var body any
	if len(resp.Body) == 0 || resp.Decode(&body) != nil {
		return Completed(merged)
	}

	obj, ok := body.(map[string]any)
	if !ok {
		return Completed(merged)
	}
	if data, ok := obj["data"].([]any); ok && len(data) > 0 {
		if first, ok := data[0].(map[string]any); ok {
			return Completed(first)
		}
	}
	return Completed(obj)
}
