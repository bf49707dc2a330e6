package stepfunctions

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sfn/types"
)

// Definition is a state machine with its parsed Amazon States Language
// document and the resources its states call.
type Definition struct {
	Name                 string         `json:"name"`
	ARN                  string         `json:"arn"`
	Type                 string         `json:"type"`
	Status               string         `json:"status"`
	CreationDate         string         `json:"creationDate"`
	RoleARN              string         `json:"roleArn"`
	Definition           map[string]any `json:"definition"`
	Resources            Resources      `json:"resources"`
	LoggingConfiguration map[string]any `json:"loggingConfiguration,omitempty"`
	TracingConfiguration map[string]any `json:"tracingConfiguration,omitempty"`
}

// Resources groups the Resource ARNs found in a definition.
type Resources struct {
	Lambdas        []string `json:"lambdas"`
	SNSTopics      []string `json:"sns_topics"`
	SQSQueues      []string `json:"sqs_queues"`
	DynamoDBTables []string `json:"dynamodb_tables"`
	StepFunctions  []string `json:"step_functions"`
	Other          []string `json:"other"`
}

func parseASL(doc string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(doc)))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExtractResources walks every state, including Parallel branches and Map
// iterators, and categorises each Resource by what its ARN mentions.
// States are visited in name order; duplicates are dropped.
func ExtractResources(definition map[string]any) Resources {
	r := Resources{
		Lambdas:        []string{},
		SNSTopics:      []string{},
		SQSQueues:      []string{},
		DynamoDBTables: []string{},
		StepFunctions:  []string{},
		Other:          []string{},
	}
	seen := map[string]bool{}

	add := func(resource string) {
		if seen[resource] {
			return
		}
		seen[resource] = true
		lower := strings.ToLower(resource)
		switch {
		case strings.Contains(lower, "lambda"):
			r.Lambdas = append(r.Lambdas, resource)
		case strings.Contains(lower, "sns"):
			r.SNSTopics = append(r.SNSTopics, resource)
		case strings.Contains(lower, "sqs"):
			r.SQSQueues = append(r.SQSQueues, resource)
		case strings.Contains(lower, "dynamodb"):
			r.DynamoDBTables = append(r.DynamoDBTables, resource)
		case strings.Contains(lower, "states") && strings.Contains(resource, "stateMachine"):
			r.StepFunctions = append(r.StepFunctions, resource)
		default:
			r.Other = append(r.Other, resource)
		}
	}

	var walkMachine func(machine map[string]any)
	walkState := func(state map[string]any) {
		if res, ok := state["Resource"].(string); ok {
			add(res)
		}
		if branches, ok := state["Branches"].([]any); ok {
			for _, b := range branches {
				if bm, ok := b.(map[string]any); ok {
					walkMachine(bm)
				}
			}
		}
		for _, key := range []string{"Iterator", "ItemProcessor"} {
			if sub, ok := state[key].(map[string]any); ok {
				walkMachine(sub)
			}
		}
	}
	walkMachine = func(machine map[string]any) {
		states, ok := machine["States"].(map[string]any)
		if !ok {
			return
		}
		names := make([]string, 0, len(states))
		for n := range states {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			if s, ok := states[n].(map[string]any); ok {
				walkState(s)
			}
		}
	}

	walkMachine(definition)
	return r
}

func loggingConfig(c *types.LoggingConfiguration) map[string]any {
	if c == nil {
		return nil
	}
	dests := make([]map[string]any, 0, len(c.Destinations))
	for _, d := range c.Destinations {
		entry := map[string]any{}
		if d.CloudWatchLogsLogGroup != nil && d.CloudWatchLogsLogGroup.LogGroupArn != nil {
			entry["cloudWatchLogsLogGroup"] = map[string]any{"logGroupArn": *d.CloudWatchLogsLogGroup.LogGroupArn}
		}
		dests = append(dests, entry)
	}
	return map[string]any{
		"level":                string(c.Level),
		"includeExecutionData": c.IncludeExecutionData,
		"destinations":         dests,
	}
}

func tracingConfig(c *types.TracingConfiguration) map[string]any {
	if c == nil {
		return nil
	}
	return map[string]any{"enabled": c.Enabled}
}
