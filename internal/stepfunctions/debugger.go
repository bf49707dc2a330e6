// Package stepfunctions lists, inspects and searches AWS Step Functions
// executions, rebuilding per-state inputs and outputs from execution
// history.
package stepfunctions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sfn/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrInvalidInput marks caller mistakes detected before any AWS call.
var ErrInvalidInput = errors.New("invalid input")

// Defaults applied when a parameter is zero.
const (
	DefaultListMaxResults   = 100
	DefaultSearchMaxResults = 50
	DefaultHoursBack        = 168
	DefaultConcurrency      = 5
)

// API is the subset of the Step Functions client the debugger uses.
type API interface {
	ListStateMachines(ctx context.Context, in *sfn.ListStateMachinesInput, optFns ...func(*sfn.Options)) (*sfn.ListStateMachinesOutput, error)
	ListExecutions(ctx context.Context, in *sfn.ListExecutionsInput, optFns ...func(*sfn.Options)) (*sfn.ListExecutionsOutput, error)
	DescribeExecution(ctx context.Context, in *sfn.DescribeExecutionInput, optFns ...func(*sfn.Options)) (*sfn.DescribeExecutionOutput, error)
	GetExecutionHistory(ctx context.Context, in *sfn.GetExecutionHistoryInput, optFns ...func(*sfn.Options)) (*sfn.GetExecutionHistoryOutput, error)
	DescribeStateMachine(ctx context.Context, in *sfn.DescribeStateMachineInput, optFns ...func(*sfn.Options)) (*sfn.DescribeStateMachineOutput, error)
}

// ─── Types ───────────────────────────────────────────────────────────────────

// StateMachine is a listing entry.
type StateMachine struct {
	Name         string `json:"name"`
	ARN          string `json:"arn"`
	Type         string `json:"type"`
	CreationDate string `json:"creationDate"`
}

// ExecutionSummary is an execution as returned by listing.
type ExecutionSummary struct {
	Name      string `json:"name"`
	ARN       string `json:"arn"`
	Status    string `json:"status"`
	StartDate string `json:"startDate"`
	StopDate  string `json:"stopDate,omitempty"`
	Link      string `json:"link"`
}

// Execution is an execution with its reconstructed state history.
type Execution struct {
	Name                   string       `json:"name"`
	ARN                    string       `json:"arn"`
	StateMachineARN        string       `json:"stateMachineArn,omitempty"`
	Status                 string       `json:"status"`
	StartDate              string       `json:"startDate"`
	StopDate               string       `json:"stopDate,omitempty"`
	Input                  string       `json:"input"`
	Output                 *string      `json:"output,omitempty"`
	Error                  *string      `json:"error,omitempty"`
	Cause                  *string      `json:"cause,omitempty"`
	Link                   string       `json:"link"`
	States                 StateHistory `json:"states"`
	StateMachineDefinition *Definition  `json:"stateMachineDefinition,omitempty"`
}

// ─── Debugger ────────────────────────────────────────────────────────────────

// Debugger answers Step Functions questions against one region.
type Debugger struct {
	client      API
	region      string
	concurrency int
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

type Option func(*Debugger)

// WithConcurrency bounds parallel detail fetches during search.
func WithConcurrency(n int) Option {
	return func(d *Debugger) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Debugger) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Debugger) { d.now = now }
}

func NewDebugger(client API, region string, opts ...Option) *Debugger {
	d := &Debugger{
		client:      client,
		region:      region,
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop(),
		tracer:      otel.Tracer("github.com/Coykto/debug-mcp/stepfunctions"),
		now:         time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	d.logger = d.logger.Named("stepfunctions")
	return d
}

// Region is the region links are generated for.
func (d *Debugger) Region() string { return d.region }

// ExecutionLink returns the console URL of an execution.
func (d *Debugger) ExecutionLink(executionARN string) string {
	return fmt.Sprintf("https://%s.console.aws.amazon.com/states/home?region=%s#/v2/executions/details/%s",
		d.region, d.region, executionARN)
}

// ListStateMachines returns up to maxResults state machines.
func (d *Debugger) ListStateMachines(ctx context.Context, maxResults int) ([]StateMachine, error) {
	if maxResults <= 0 {
		maxResults = DefaultListMaxResults
	}

	out := []StateMachine{}
	p := sfn.NewListStateMachinesPaginator(d.client, &sfn.ListStateMachinesInput{})
	for p.HasMorePages() && len(out) < maxResults {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list state machines: %w", err)
		}
		for _, sm := range page.StateMachines {
			if len(out) >= maxResults {
				break
			}
			out = append(out, StateMachine{
				Name:         aws.ToString(sm.Name),
				ARN:          aws.ToString(sm.StateMachineArn),
				Type:         string(sm.Type),
				CreationDate: isoTime(sm.CreationDate),
			})
		}
	}
	return out, nil
}

// ListParams selects executions of one state machine.
type ListParams struct {
	StateMachineARN string
	StatusFilter    string
	MaxResults      int
	HoursBack       int
}

// ListExecutions returns executions started within HoursBack, newest
// first. At most MaxResults listing entries are examined.
func (d *Debugger) ListExecutions(ctx context.Context, p ListParams) ([]ExecutionSummary, error) {
	status, err := validateList(&p, DefaultListMaxResults)
	if err != nil {
		return nil, err
	}
	return d.listExecutions(ctx, p, status)
}

func validateList(p *ListParams, defaultMax int) (types.ExecutionStatus, error) {
	if strings.TrimSpace(p.StateMachineARN) == "" {
		return "", fmt.Errorf("%w: state_machine_arn is required", ErrInvalidInput)
	}
	if p.MaxResults <= 0 {
		p.MaxResults = defaultMax
	}
	if p.HoursBack <= 0 {
		p.HoursBack = DefaultHoursBack
	}
	return parseStatus(p.StatusFilter)
}

func parseStatus(s string) (types.ExecutionStatus, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	valid := types.ExecutionStatus("").Values()
	for _, v := range valid {
		if string(v) == s {
			return v, nil
		}
	}
	names := make([]string, len(valid))
	for i, v := range valid {
		names[i] = string(v)
	}
	return "", fmt.Errorf("%w: status_filter %q is not one of %s", ErrInvalidInput, s, strings.Join(names, ", "))
}

func (d *Debugger) listExecutions(ctx context.Context, p ListParams, status types.ExecutionStatus) ([]ExecutionSummary, error) {
	cutoff := d.now().Add(-time.Duration(p.HoursBack) * time.Hour)
	in := &sfn.ListExecutionsInput{StateMachineArn: aws.String(p.StateMachineARN)}
	if status != "" {
		in.StatusFilter = status
	}

	out := []ExecutionSummary{}
	examined := 0
	pager := sfn.NewListExecutionsPaginator(d.client, in)
	for pager.HasMorePages() && examined < p.MaxResults {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list executions %s: %w", p.StateMachineARN, err)
		}
		for _, e := range page.Executions {
			if examined >= p.MaxResults {
				break
			}
			examined++
			if e.StartDate != nil && e.StartDate.Before(cutoff) {
				continue
			}
			out = append(out, ExecutionSummary{
				Name:      aws.ToString(e.Name),
				ARN:       aws.ToString(e.ExecutionArn),
				Status:    string(e.Status),
				StartDate: isoTime(e.StartDate),
				StopDate:  isoTime(e.StopDate),
				Link:      d.ExecutionLink(aws.ToString(e.ExecutionArn)),
			})
		}
	}
	return out, nil
}

// GetExecutionDetails describes an execution and rebuilds its state
// history from the full event log. With includeDefinition the state
// machine definition is attached.
func (d *Debugger) GetExecutionDetails(ctx context.Context, executionARN string, includeDefinition bool) (*Execution, error) {
	if strings.TrimSpace(executionARN) == "" {
		return nil, fmt.Errorf("%w: execution_arn is required", ErrInvalidInput)
	}
	exec, err := d.executionDetails(ctx, executionARN)
	if err != nil {
		return nil, err
	}
	if includeDefinition {
		def, err := d.GetDefinition(ctx, exec.StateMachineARN)
		if err != nil {
			return nil, err
		}
		exec.StateMachineDefinition = def
	}
	return exec, nil
}

func (d *Debugger) executionDetails(ctx context.Context, executionARN string) (*Execution, error) {
	desc, err := d.client.DescribeExecution(ctx, &sfn.DescribeExecutionInput{ExecutionArn: aws.String(executionARN)})
	if err != nil {
		return nil, fmt.Errorf("describe execution %s: %w", executionARN, err)
	}

	var events []types.HistoryEvent
	pager := sfn.NewGetExecutionHistoryPaginator(d.client, &sfn.GetExecutionHistoryInput{
		ExecutionArn: aws.String(executionARN),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("get execution history %s: %w", executionARN, err)
		}
		events = append(events, page.Events...)
	}

	return &Execution{
		Name:            aws.ToString(desc.Name),
		ARN:             aws.ToString(desc.ExecutionArn),
		StateMachineARN: aws.ToString(desc.StateMachineArn),
		Status:          string(desc.Status),
		StartDate:       isoTime(desc.StartDate),
		StopDate:        isoTime(desc.StopDate),
		Input:           aws.ToString(desc.Input),
		Output:          desc.Output,
		Error:           desc.Error,
		Cause:           desc.Cause,
		Link:            d.ExecutionLink(executionARN),
		States:          ParseStateHistory(events),
	}, nil
}

// GetDefinition describes a state machine and parses its definition.
func (d *Debugger) GetDefinition(ctx context.Context, stateMachineARN string) (*Definition, error) {
	if strings.TrimSpace(stateMachineARN) == "" {
		return nil, fmt.Errorf("%w: state_machine_arn is required", ErrInvalidInput)
	}
	out, err := d.client.DescribeStateMachine(ctx, &sfn.DescribeStateMachineInput{
		StateMachineArn: aws.String(stateMachineARN),
	})
	if err != nil {
		return nil, fmt.Errorf("describe state machine %s: %w", stateMachineARN, err)
	}

	asl, err := parseASL(aws.ToString(out.Definition))
	if err != nil {
		return nil, fmt.Errorf("parse definition of %s: %w", stateMachineARN, err)
	}

	return &Definition{
		Name:                 aws.ToString(out.Name),
		ARN:                  aws.ToString(out.StateMachineArn),
		Type:                 string(out.Type),
		Status:               string(out.Status),
		CreationDate:         isoTime(out.CreationDate),
		RoleARN:              aws.ToString(out.RoleArn),
		Definition:           asl,
		Resources:            ExtractResources(asl),
		LoggingConfiguration: loggingConfig(out.LoggingConfiguration),
		TracingConfiguration: tracingConfig(out.TracingConfiguration),
	}, nil
}

func isoTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
