package stepfunctions

import (
	"context"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SearchParams are the execution search filters. Empty patterns are not
// applied.
type SearchParams struct {
	StateMachineARN   string
	StateName         string
	InputPattern      string
	OutputPattern     string
	StatusFilter      string
	MaxResults        int
	HoursBack         int
	IncludeDefinition bool
}

type filters struct {
	stateName *regexp.Regexp
	input     *regexp.Regexp
	output    *regexp.Regexp
}

func (f filters) empty() bool {
	return f.stateName == nil && f.input == nil && f.output == nil
}

func compileFilters(p SearchParams) (filters, error) {
	var f filters
	var err error
	if f.stateName, err = compilePattern("state_name", p.StateName); err != nil {
		return f, err
	}
	if f.input, err = compilePattern("input_pattern", p.InputPattern); err != nil {
		return f, err
	}
	if f.output, err = compilePattern("output_pattern", p.OutputPattern); err != nil {
		return f, err
	}
	return f, nil
}

func compilePattern(name, pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s regex %q: %v", ErrInvalidInput, name, pattern, err)
	}
	return re, nil
}

// matches applies the filters with AND semantics. Input and output
// patterns only look at the states selected by the name filter, or at
// every state when there is none.
func (f filters) matches(states StateHistory) bool {
	candidates := states.Names()
	if f.stateName != nil {
		var named []string
		for _, n := range candidates {
			if f.stateName.MatchString(n) {
				named = append(named, n)
			}
		}
		if len(named) == 0 {
			return false
		}
		candidates = named
	}

	if f.input != nil && !anyPayload(states, candidates, f.input, func(io *StateIO) []string { return io.Inputs }) {
		return false
	}
	if f.output != nil && !anyPayload(states, candidates, f.output, func(io *StateIO) []string { return io.Outputs }) {
		return false
	}
	return true
}

func anyPayload(states StateHistory, names []string, re *regexp.Regexp, pick func(*StateIO) []string) bool {
	for _, n := range names {
		for _, payload := range pick(states[n]) {
			if re.MatchString(payload) {
				return true
			}
		}
	}
	return false
}

// SearchExecutions lists executions in the window and returns those whose
// state history passes the filters, with full detail. Without filters
// every listed execution is returned with its history; one whose detail
// cannot be fetched carries an empty history and the failure as its error.
// With filters such executions are skipped. The definition, when asked
// for, is fetched once and shared.
func (d *Debugger) SearchExecutions(ctx context.Context, p SearchParams) ([]*Execution, error) {
	lp := ListParams{
		StateMachineARN: p.StateMachineARN,
		StatusFilter:    p.StatusFilter,
		MaxResults:      p.MaxResults,
		HoursBack:       p.HoursBack,
	}
	status, err := validateList(&lp, DefaultSearchMaxResults)
	if err != nil {
		return nil, err
	}
	f, err := compileFilters(p)
	if err != nil {
		return nil, err
	}

	ctx, span := d.tracer.Start(ctx, "stepfunctions.SearchExecutions", trace.WithAttributes(
		attribute.String("sfn.state_machine_arn", lp.StateMachineARN),
		attribute.Bool("sfn.filtered", !f.empty()),
		attribute.Int("sfn.max_results", lp.MaxResults),
	))
	defer span.End()

	listed, err := d.listExecutions(ctx, lp, status)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list executions")
		return nil, err
	}

	var def *Definition
	if p.IncludeDefinition {
		if def, err = d.GetDefinition(ctx, lp.StateMachineARN); err != nil {
			d.logger.Debug("definition unavailable for search", zap.String("state_machine_arn", lp.StateMachineARN), zap.Error(err))
			def = nil
		}
	}

	results := make([]*Execution, len(listed))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, summary := range listed {
		g.Go(func() error {
			exec, err := d.executionDetails(ctx, summary.ARN)
			if err != nil {
				d.logger.Debug("execution detail failed", zap.String("execution_arn", summary.ARN), zap.Error(err))
				if f.empty() {
					results[i] = placeholder(summary, err)
				}
				return nil
			}
			if !f.empty() && !f.matches(exec.States) {
				return nil
			}
			exec.StateMachineDefinition = def
			results[i] = exec
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancelled")
		return nil, err
	}

	out := make([]*Execution, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	span.SetAttributes(attribute.Int("sfn.listed", len(listed)), attribute.Int("sfn.returned", len(out)))
	return out, nil
}

func placeholder(s ExecutionSummary, err error) *Execution {
	msg := fmt.Sprintf("Failed to retrieve history: %v", err)
	return &Execution{
		Name:      s.Name,
		ARN:       s.ARN,
		Status:    s.Status,
		StartDate: s.StartDate,
		StopDate:  s.StopDate,
		Link:      s.Link,
		States:    StateHistory{},
		Error:     &msg,
	}
}
