package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// RunPrompt handles the investigate-run MCP prompt.
type RunPrompt struct{}

// NewRunPrompt creates a RunPrompt.
func NewRunPrompt() *RunPrompt {
	return &RunPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *RunPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("investigate-run",
		mcp.WithPromptDescription(
			"Investigate one LangSmith run without loading its full payload "+
				"into context.",
		),
		mcp.WithArgument("run_id",
			mcp.ArgumentDescription("LangSmith run id (UUID)"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("environment",
			mcp.ArgumentDescription("Environment of the run: prod, dev or local. Default: prod"),
		),
		mcp.WithArgument("question",
			mcp.ArgumentDescription("What to find out about the run"),
		),
	)
}

// Handle processes the investigate-run prompt request.
func (p *RunPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := req.Params.Arguments
	runID := strings.TrimSpace(args["run_id"])
	if runID == "" {
		return nil, fmt.Errorf("run_id is required")
	}
	env := strings.TrimSpace(args["environment"])
	if env == "" {
		env = "prod"
	}
	question := strings.TrimSpace(args["question"])
	if question == "" {
		question = "why the run produced its final answer and whether any tool call failed"
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Investigate LangSmith run %s", runID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want to understand %s.\n\n"+
						"1. Run get_langsmith_run_details with environment='%s' and run_id='%s' (keep full_content=false)\n"+
						"2. Read the summary: user query, tools called, final answer, errors\n"+
						"3. Use search_run_content with the returned reference_id to find the relevant parts of the run\n"+
						"4. Use get_run_field to read exact values at the paths the search returns\n\n"+
						"Call every tool through debug(tool=..., arguments=...).",
					question, env, runID,
				)),
			},
		},
	}, nil
}
