// Package runner drives test cases: for every row of a tab it runs the input
// flow, then the output flow, then checks the collected outputs against the
// row's expected values. Failures are contained to the row or tab they occur in.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/erp/tools/acctest/internal/check"
	"github.com/example/erp/tools/acctest/internal/metadata"
	"github.com/example/erp/tools/acctest/internal/sheet"
	"github.com/example/erp/tools/acctest/internal/step"
	"github.com/example/erp/tools/acctest/internal/value"
)

// Status is the automated status of a row.
type Status string

// Row statuses.
const (
	StatusSuccess Status = "SUCCESS"
	StatusFail    Status = "FAIL"
)

// ReasonNoChecks is the comment of a row whose tab declares no output steps.
const ReasonNoChecks = "No output checks declared"

// StepProcessor runs one step. *step.Processor satisfies it.
type StepProcessor interface {
	Process(ctx context.Context, def metadata.StepDefinition, section value.Section, prev *step.Result, rec sheet.Record) (step.Result, error)
}

// OutputChecker checks one entity. *check.Checker satisfies it.
type OutputChecker interface {
	Check(outputs check.EntityOutputs, entity string, attrs []string, rec sheet.Record) (check.Verdict, error)
}

// TableSource reads the sheet of a tab. sheet.Dir satisfies it.
type TableSource interface {
	ReadTab(tab string) (*sheet.Table, error)
}

// Outcome is the recorded result of one row.
type Outcome struct {
	// Row is the 1-based data row number.
	Row     int    `json:"row"`
	Status  Status `json:"status"`
	Comment string `json:"comment,omitempty"`
}

// TabResult holds the outcome of every row of a tab.
type TabResult struct {
	Tab      string        `json:"tab"`
	Source   string        `json:"source,omitempty"`
	Table    *sheet.Table  `json:"-"`
	Outcomes []Outcome     `json:"outcomes"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Counts returns the number of passed and failed rows.
func (r TabResult) Counts() (passed, failed int) {
	for _, o := range r.Outcomes {
		if o.Status == StatusSuccess {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// Runner executes test cases.
type Runner struct {
	proc    StepProcessor
	checker OutputChecker
	log     *zap.Logger
	runID   string
	tabs    map[string]bool

	onCase func(tab string, o Outcome)
	onTab  func(ctx context.Context, r TabResult) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option {
	return func(r *Runner) {
		if id != "" {
			r.runID = id
		}
	}
}

// WithTabs restricts Run to the named tabs (case-insensitive).
func WithTabs(names ...string) Option {
	return func(r *Runner) {
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				if r.tabs == nil {
					r.tabs = make(map[string]bool)
				}
				r.tabs[strings.ToLower(n)] = true
			}
		}
	}
}

// WithCaseHook registers a callback invoked after each row.
func WithCaseHook(fn func(tab string, o Outcome)) Option {
	return func(r *Runner) {
		r.onCase = fn
	}
}

// WithTabHook registers a callback invoked after each tab, typically to
// write its output. A returned error is logged as a tab failure.
func WithTabHook(fn func(ctx context.Context, r TabResult) error) Option {
	return func(r *Runner) {
		r.onTab = fn
	}
}

// New creates a Runner.
func New(proc StepProcessor, checker OutputChecker, opts ...Option) *Runner {
	r := &Runner{
		proc:    proc,
		checker: checker,
		log:     zap.NewNop(),
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(zap.String("run_id", r.runID))
	return r
}

// RunID returns the identifier of this run.
func (r *Runner) RunID() string {
	return r.runID
}

// plan holds the runnable steps of a descriptor.
type plan struct {
	inputs  []metadata.StepDefinition
	outputs []metadata.StepDefinition
}

func newPlan(desc *metadata.Descriptor, log *zap.Logger) plan {
	return plan{
		inputs:  metadata.Partition(desc.Flow.Inputs, log),
		outputs: metadata.Partition(desc.Flow.Outputs, log),
	}
}

// Run executes every selected tab in order. Tab failures are logged and the
// next tab runs.
func (r *Runner) Run(ctx context.Context, descs []metadata.Descriptor, source TableSource) []TabResult {
	results := make([]TabResult, 0, len(descs))

	for i := range descs {
		desc := &descs[i]
		if err := ctx.Err(); err != nil {
			r.log.Warn("run cancelled", zap.Error(err))
			break
		}
		if !r.selected(desc.TabName) {
			r.log.Debug("tab not selected", zap.String("tab", desc.TabName))
			continue
		}

		log := r.log.With(zap.String("tab", desc.TabName), zap.String("metadata", desc.Source))

		if err := desc.Validate(); err != nil {
			log.Error("invalid metadata", zap.Error(err))
			results = append(results, TabResult{Tab: desc.TabName, Source: desc.Source, Err: err})
			continue
		}

		table, err := source.ReadTab(desc.TabName)
		if err != nil {
			log.Error("failed to read sheet", zap.Error(err))
			results = append(results, TabResult{Tab: desc.TabName, Source: desc.Source, Err: err})
			continue
		}

		result := r.RunTab(ctx, desc, table)
		if r.onTab != nil {
			if err := r.onTab(ctx, result); err != nil {
				log.Error("failed to record tab result", zap.Error(err))
				result.Err = err
			}
		}
		results = append(results, result)
	}

	return results
}

func (r *Runner) selected(tab string) bool {
	if len(r.tabs) == 0 {
		return true
	}
	return r.tabs[strings.ToLower(strings.TrimSpace(tab))]
}

// RunTab runs every row of table. Rows left unprocessed by a cancelled
// context keep the FAIL status.
func (r *Runner) RunTab(ctx context.Context, desc *metadata.Descriptor, table *sheet.Table) TabResult {
	start := time.Now()
	log := r.log.With(zap.String("tab", desc.TabName))
	p := newPlan(desc, log)

	result := TabResult{
		Tab:      desc.TabName,
		Source:   desc.Source,
		Table:    table,
		Outcomes: make([]Outcome, table.Len()),
	}

	total := table.Len()
	log.Info("processing tab", zap.Int("test_cases", total))

	for i := range total {
		if err := ctx.Err(); err != nil {
			result.Outcomes[i] = Outcome{Row: i + 1, Status: StatusFail, Comment: fmt.Sprintf("not run: %v", err)}
			continue
		}

		log.Debug("processing test case", zap.Int("row", i+1), zap.Int("total", total))
		outcome := r.runCase(ctx, p, i, table.Record(i), log)
		result.Outcomes[i] = outcome
		if r.onCase != nil {
			r.onCase(desc.TabName, outcome)
		}
	}

	result.Duration = time.Since(start)
	passed, failed := result.Counts()
	log.Info("tab completed",
		zap.Int("passed", passed),
		zap.Int("failed", failed),
		zap.Duration("duration", result.Duration),
	)

	return result
}

// RunCase runs the flows and checks of desc for one row. index is 0-based.
func (r *Runner) RunCase(ctx context.Context, desc *metadata.Descriptor, index int, rec sheet.Record) Outcome {
	log := r.log.With(zap.String("tab", desc.TabName))
	return r.runCase(ctx, newPlan(desc, zap.NewNop()), index, rec, log)
}

func (r *Runner) runCase(ctx context.Context, p plan, index int, rec sheet.Record, log *zap.Logger) Outcome {
	outcome := Outcome{Row: index + 1, Status: StatusFail}

	fail := func(def metadata.StepDefinition, err error) Outcome {
		sequence, entity := string(def.Sequence), def.NormalizedEntity()
		var se step.StepError
		if errors.As(err, &se) {
			sequence, entity = se.Where().Sequence, se.Where().Entity
		}
		log.Error("test case failed",
			zap.Int("row", outcome.Row),
			zap.String("sequence", sequence),
			zap.String("entity", entity),
			zap.Error(err),
		)
		outcome.Comment = fmt.Sprintf(
			"Exception encountered while processing the test case, row -- %d ||| Sequence -- %s ||| Entity -- %s\nException details: %v",
			outcome.Row, sequence, entity, err)
		return outcome
	}

	var prev *step.Result
	for _, def := range p.inputs {
		if def.Method() != metadata.ActionPut {
			prev = nil
		}
		res, err := r.proc.Process(ctx, def, value.Inputs, prev, rec)
		if err != nil {
			return fail(def, err)
		}
		prev = &res
	}

	outputs := check.EntityOutputs{}
	for _, def := range p.outputs {
		if def.Method() != metadata.ActionPut {
			prev = nil
		}
		res, err := r.proc.Process(ctx, def, value.Outputs, prev, rec)
		if err != nil {
			return fail(def, err)
		}
		prev = &res
		outputs.Record(def.Entity, res)
	}

	if len(p.outputs) == 0 {
		outcome.Comment = ReasonNoChecks
		return outcome
	}

	for _, def := range p.outputs {
		verdict, err := r.checker.Check(outputs, def.Entity, def.OutputAttributes, rec)
		if err != nil {
			return fail(def, err)
		}
		if !verdict.Passed {
			outcome.Comment = verdict.Reason
			log.Info("output check failed",
				zap.Int("row", outcome.Row),
				zap.String("entity", def.NormalizedEntity()),
				zap.String("reason", verdict.Reason),
			)
			return outcome
		}
	}

	outcome.Status = StatusSuccess
	return outcome
}
