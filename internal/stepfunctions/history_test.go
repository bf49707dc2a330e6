package stepfunctions

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn/types"
	"github.com/stretchr/testify/assert"
)

func TestParseStateHistory_PreservesArrivalOrderPerState(t *testing.T) {
	events := []types.HistoryEvent{
		entered("A", "i1"),
		entered("B", "i2"),
		exited("A", "o1"),
		entered("A", "i3"),
		exited("B", "o2"),
		exited("A", "o3"),
	}

	got := ParseStateHistory(events)

	assert.Equal(t, StateHistory{
		"A": {Inputs: []string{"i1", "i3"}, Outputs: []string{"o1", "o3"}},
		"B": {Inputs: []string{"i2"}, Outputs: []string{"o2"}},
	}, got)
}

func TestParseStateHistory_IgnoresOtherEvents(t *testing.T) {
	events := []types.HistoryEvent{
		{Type: types.HistoryEventTypeExecutionStarted},
		{Type: types.HistoryEventTypeLambdaFunctionScheduled},
		{Type: types.HistoryEventTypeTaskScheduled},
		{
			Type:                     types.HistoryEventTypeChoiceStateEntered,
			StateEnteredEventDetails: &types.StateEnteredEventDetails{Name: aws.String("Route"), Input: aws.String(`{"x":1}`)},
		},
		{
			Type:                    types.HistoryEventTypePassStateExited,
			StateExitedEventDetails: &types.StateExitedEventDetails{Name: aws.String("Route"), Output: aws.String(`{"x":2}`)},
		},
		// Missing details, names or payloads are dropped.
		{Type: types.HistoryEventTypeTaskStateEntered},
		{
			Type:                     types.HistoryEventTypeTaskStateEntered,
			StateEnteredEventDetails: &types.StateEnteredEventDetails{Name: aws.String("NoInput")},
		},
		{
			Type:                    types.HistoryEventTypeTaskStateExited,
			StateExitedEventDetails: &types.StateExitedEventDetails{Output: aws.String("orphan")},
		},
		{Type: types.HistoryEventTypeExecutionSucceeded},
	}

	got := ParseStateHistory(events)

	assert.Equal(t, []string{"Route"}, got.Names())
	assert.Equal(t, []string{`{"x":1}`}, got["Route"].Inputs)
	assert.Equal(t, []string{`{"x":2}`}, got["Route"].Outputs)
}

func TestParseStateHistory_Empty(t *testing.T) {
	got := ParseStateHistory(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestParseStateHistory_StateWithOnlyExits(t *testing.T) {
	got := ParseStateHistory([]types.HistoryEvent{exited("Done", "{}")})
	assert.Equal(t, []string{}, got["Done"].Inputs)
	assert.Equal(t, []string{"{}"}, got["Done"].Outputs)
}
