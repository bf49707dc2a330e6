// Package prompts implements MCP prompt handlers for common debugging
// sessions.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ExecutionPrompt handles the debug-execution MCP prompt.
// It walks the AI from a failing state machine to the failing state.
type ExecutionPrompt struct{}

// NewExecutionPrompt creates an ExecutionPrompt.
func NewExecutionPrompt() *ExecutionPrompt {
	return &ExecutionPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ExecutionPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("debug-execution",
		mcp.WithPromptDescription(
			"Investigate a failed Step Functions execution: find it, "+
				"reconstruct its per-state inputs and outputs, and correlate "+
				"with the logs of the Lambdas it invoked.",
		),
		mcp.WithArgument("state_machine_arn",
			mcp.ArgumentDescription("ARN of the state machine"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("execution_arn",
			mcp.ArgumentDescription("ARN of a specific execution; the most recent failures are used when empty"),
		),
		mcp.WithArgument("hint",
			mcp.ArgumentDescription("Anything known about the failure, e.g. a customer id or error text"),
		),
	)
}

// Handle processes the debug-execution prompt request.
func (p *ExecutionPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := req.Params.Arguments
	machine := strings.TrimSpace(args["state_machine_arn"])
	if machine == "" {
		return nil, fmt.Errorf("state_machine_arn is required")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Help me debug the state machine %s.\n\n", machine)
	if exec := strings.TrimSpace(args["execution_arn"]); exec != "" {
		fmt.Fprintf(&b, "1. Run get_step_function_execution_details for execution_arn=%s with include_definition=true\n", exec)
	} else {
		b.WriteString("1. Run list_step_function_executions with status_filter=FAILED and pick the most recent failure\n")
		b.WriteString("2. Run get_step_function_execution_details on it with include_definition=true\n")
	}
	b.WriteString("- Find the last state that has inputs but no outputs; that is where the execution stopped\n")
	b.WriteString("- Use the Lambda ARNs in the definition's resources to pick log groups, then run analyze_log_group around the execution's start and stop times\n")
	if hint := strings.TrimSpace(args["hint"]); hint != "" {
		fmt.Fprintf(&b, "- If other executions look related, use search_step_function_executions with an input_pattern built from: %s\n", hint)
	}
	b.WriteString("\nCall every tool through debug(tool=..., arguments=...). Summarize the root cause and the evidence for it.")

	return &mcp.GetPromptResult{
		Description: "Debug Step Functions execution",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(b.String()),
			},
		},
	}, nil
}
