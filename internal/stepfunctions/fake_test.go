package stepfunctions

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sfn/types"
)

const testMachineARN = "arn:aws:states:us-east-1:123456789012:stateMachine:orders"

// fakeSFN serves canned Step Functions data, paginating lists in pages of
// pageSize items.
type fakeSFN struct {
	mu sync.Mutex

	pageSize   int
	machines   []types.StateMachineListItem
	executions []types.ExecutionListItem
	describe   map[string]*sfn.DescribeExecutionOutput
	history    map[string][]types.HistoryEvent
	historyErr map[string]error
	definition string

	listInputs       []sfn.ListExecutionsInput
	listCalls        int
	describeSMCalls  int
	describeSMErr    error
	historyRequested []string
}

func newFakeSFN() *fakeSFN {
	return &fakeSFN{
		pageSize:   2,
		describe:   map[string]*sfn.DescribeExecutionOutput{},
		history:    map[string][]types.HistoryEvent{},
		historyErr: map[string]error{},
		definition: `{"StartAt":"Validate","States":{"Validate":{"Type":"Task","Resource":"arn:aws:lambda:us-east-1:123456789012:function:validate","End":true}}}`,
	}
}

func page(token *string, total, size int) (start, end int, next *string) {
	if token != nil {
		start, _ = strconv.Atoi(*token)
	}
	end = min(start+size, total)
	if end < total {
		next = aws.String(strconv.Itoa(end))
	}
	return start, end, next
}

func (f *fakeSFN) ListStateMachines(_ context.Context, in *sfn.ListStateMachinesInput, _ ...func(*sfn.Options)) (*sfn.ListStateMachinesOutput, error) {
	start, end, next := page(in.NextToken, len(f.machines), f.pageSize)
	return &sfn.ListStateMachinesOutput{StateMachines: f.machines[start:end], NextToken: next}, nil
}

func (f *fakeSFN) ListExecutions(_ context.Context, in *sfn.ListExecutionsInput, _ ...func(*sfn.Options)) (*sfn.ListExecutionsOutput, error) {
	f.mu.Lock()
	f.listInputs = append(f.listInputs, *in)
	f.listCalls++
	f.mu.Unlock()

	var items []types.ExecutionListItem
	for _, e := range f.executions {
		if in.StatusFilter == "" || e.Status == in.StatusFilter {
			items = append(items, e)
		}
	}
	start, end, next := page(in.NextToken, len(items), f.pageSize)
	return &sfn.ListExecutionsOutput{Executions: items[start:end], NextToken: next}, nil
}

func (f *fakeSFN) DescribeExecution(_ context.Context, in *sfn.DescribeExecutionInput, _ ...func(*sfn.Options)) (*sfn.DescribeExecutionOutput, error) {
	out, ok := f.describe[aws.ToString(in.ExecutionArn)]
	if !ok {
		return nil, errors.New("ExecutionDoesNotExist")
	}
	return out, nil
}

func (f *fakeSFN) GetExecutionHistory(_ context.Context, in *sfn.GetExecutionHistoryInput, _ ...func(*sfn.Options)) (*sfn.GetExecutionHistoryOutput, error) {
	arn := aws.ToString(in.ExecutionArn)
	f.mu.Lock()
	f.historyRequested = append(f.historyRequested, arn)
	f.mu.Unlock()

	if err := f.historyErr[arn]; err != nil {
		return nil, err
	}
	events := f.history[arn]
	start, end, next := page(in.NextToken, len(events), f.pageSize)
	return &sfn.GetExecutionHistoryOutput{Events: events[start:end], NextToken: next}, nil
}

func (f *fakeSFN) DescribeStateMachine(_ context.Context, in *sfn.DescribeStateMachineInput, _ ...func(*sfn.Options)) (*sfn.DescribeStateMachineOutput, error) {
	f.mu.Lock()
	f.describeSMCalls++
	f.mu.Unlock()
	if f.describeSMErr != nil {
		return nil, f.describeSMErr
	}
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &sfn.DescribeStateMachineOutput{
		Name:                 aws.String("orders"),
		StateMachineArn:      in.StateMachineArn,
		Type:                 types.StateMachineTypeStandard,
		Status:               types.StateMachineStatusActive,
		CreationDate:         &created,
		RoleArn:              aws.String("arn:aws:iam::123456789012:role/sfn"),
		Definition:           aws.String(f.definition),
		TracingConfiguration: &types.TracingConfiguration{Enabled: true},
	}, nil
}

// addExecution registers an execution started startedAgo before now with
// the given history events.
func (f *fakeSFN) addExecution(now time.Time, name string, startedAgo time.Duration, status types.ExecutionStatus, events ...types.HistoryEvent) string {
	arn := "arn:aws:states:us-east-1:123456789012:execution:orders:" + name
	start := now.Add(-startedAgo)
	f.executions = append(f.executions, types.ExecutionListItem{
		Name:            aws.String(name),
		ExecutionArn:    aws.String(arn),
		StateMachineArn: aws.String(testMachineARN),
		Status:          status,
		StartDate:       &start,
	})
	f.describe[arn] = &sfn.DescribeExecutionOutput{
		Name:            aws.String(name),
		ExecutionArn:    aws.String(arn),
		StateMachineArn: aws.String(testMachineARN),
		Status:          status,
		StartDate:       &start,
		Input:           aws.String(`{"execution":"` + name + `"}`),
	}
	f.history[arn] = events
	return arn
}

func entered(state, input string) types.HistoryEvent {
	return types.HistoryEvent{
		Type:                     types.HistoryEventTypeTaskStateEntered,
		StateEnteredEventDetails: &types.StateEnteredEventDetails{Name: aws.String(state), Input: aws.String(input)},
	}
}

func exited(state, output string) types.HistoryEvent {
	return types.HistoryEvent{
		Type:                    types.HistoryEventTypeTaskStateExited,
		StateExitedEventDetails: &types.StateExitedEventDetails{Name: aws.String(state), Output: aws.String(output)},
	}
}
