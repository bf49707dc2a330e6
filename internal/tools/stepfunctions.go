package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Coykto/debug-mcp/internal/stepfunctions"
)

// ExecutionsService is the Step Functions surface used by the
// stepfunctions tools.
type ExecutionsService interface {
	ListStateMachines(ctx context.Context, maxResults int) ([]stepfunctions.StateMachine, error)
	ListExecutions(ctx context.Context, p stepfunctions.ListParams) ([]stepfunctions.ExecutionSummary, error)
	GetDefinition(ctx context.Context, stateMachineARN string) (*stepfunctions.Definition, error)
	GetExecutionDetails(ctx context.Context, executionARN string, includeDefinition bool) (*stepfunctions.Execution, error)
	SearchExecutions(ctx context.Context, p stepfunctions.SearchParams) ([]*stepfunctions.Execution, error)
}

// StepFunctionsTools returns every stepfunctions tool backed by sfn.
func StepFunctionsTools(sfn ExecutionsService) []Tool {
	return []Tool{
		NewListStateMachinesTool(sfn),
		NewListExecutionsTool(sfn),
		NewGetDefinitionTool(sfn),
		NewExecutionDetailsTool(sfn),
		NewSearchExecutionsTool(sfn),
	}
}

func stateMachineARNOption() mcp.ToolOption {
	return mcp.WithString("state_machine_arn", mcp.Required(), mcp.Description("ARN of the state machine"))
}

func includeDefinitionOption() mcp.ToolOption {
	return mcp.WithBoolean("include_definition",
		mcp.Description("If true, includes the state machine definition with Lambda ARNs (default: false)"),
		mcp.DefaultBool(false),
	)
}

func hoursBackOption() mcp.ToolOption {
	return mcp.WithNumber("hours_back",
		mcp.Description("Number of hours to look back (default: 168 = 7 days)"),
		mcp.DefaultNumber(stepfunctions.DefaultHoursBack),
	)
}

// ─── list_state_machines ────────────────────────────────────────────────────

// ListStateMachinesTool handles the list_state_machines MCP tool.
type ListStateMachinesTool struct {
	sfn ExecutionsService
}

// NewListStateMachinesTool creates a ListStateMachinesTool.
func NewListStateMachinesTool(sfn ExecutionsService) *ListStateMachinesTool {
	return &ListStateMachinesTool{sfn: sfn}
}

// Definition returns the MCP tool definition for list_state_machines.
func (t *ListStateMachinesTool) Definition() mcp.Tool {
	return mcp.NewTool("list_state_machines",
		mcp.WithDescription("List all Step Functions state machines in the account"),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of state machines to return (default: 100)"),
			mcp.DefaultNumber(100),
		),
	)
}

// Handle processes the list_state_machines tool call.
func (t *ListStateMachinesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	machines, err := t.sfn.ListStateMachines(ctx, IntArg(req, "max_results", 100))
	if err != nil {
		return ErrorResult("list_state_machines", err), nil
	}
	return JSONResult(map[string]any{"state_machines": machines, "count": len(machines)}), nil
}

// ─── list_step_function_executions ──────────────────────────────────────────

// ListExecutionsTool handles the list_step_function_executions MCP tool.
type ListExecutionsTool struct {
	sfn ExecutionsService
}

// NewListExecutionsTool creates a ListExecutionsTool.
func NewListExecutionsTool(sfn ExecutionsService) *ListExecutionsTool {
	return &ListExecutionsTool{sfn: sfn}
}

// Definition returns the MCP tool definition for list_step_function_executions.
func (t *ListExecutionsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_step_function_executions",
		mcp.WithDescription("List executions for a Step Functions state machine"),
		stateMachineARNOption(),
		mcp.WithString("status_filter",
			mcp.Description("Optional status filter (RUNNING, SUCCEEDED, FAILED, TIMED_OUT, ABORTED)"),
			mcp.DefaultString(""),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of executions to return (default: 100)"),
			mcp.DefaultNumber(stepfunctions.DefaultListMaxResults),
		),
		hoursBackOption(),
	)
}

// Handle processes the list_step_function_executions tool call.
func (t *ListExecutionsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arn, err := RequireString(req, "state_machine_arn")
	if err != nil {
		return ErrorResult("list_step_function_executions", err), nil
	}
	executions, err := t.sfn.ListExecutions(ctx, stepfunctions.ListParams{
		StateMachineARN: arn,
		StatusFilter:    StringArg(req, "status_filter"),
		MaxResults:      IntArg(req, "max_results", stepfunctions.DefaultListMaxResults),
		HoursBack:       IntArg(req, "hours_back", stepfunctions.DefaultHoursBack),
	})
	if err != nil {
		return ErrorResult("list_step_function_executions", err), nil
	}
	return JSONResult(map[string]any{
		"executions":        executions,
		"count":             len(executions),
		"state_machine_arn": arn,
	}), nil
}

// ─── get_state_machine_definition ───────────────────────────────────────────

// GetDefinitionTool handles the get_state_machine_definition MCP tool.
type GetDefinitionTool struct {
	sfn ExecutionsService
}

// NewGetDefinitionTool creates a GetDefinitionTool.
func NewGetDefinitionTool(sfn ExecutionsService) *GetDefinitionTool {
	return &GetDefinitionTool{sfn: sfn}
}

// Definition returns the MCP tool definition for get_state_machine_definition.
func (t *GetDefinitionTool) Definition() mcp.Tool {
	return mcp.NewTool("get_state_machine_definition",
		mcp.WithDescription("Get the state machine definition including ASL and extracted resources"),
		stateMachineARNOption(),
	)
}

// Handle processes the get_state_machine_definition tool call.
func (t *GetDefinitionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arn, err := RequireString(req, "state_machine_arn")
	if err != nil {
		return ErrorResult("get_state_machine_definition", err), nil
	}
	def, err := t.sfn.GetDefinition(ctx, arn)
	if err != nil {
		return ErrorResult("get_state_machine_definition", err), nil
	}
	return JSONResult(def), nil
}

// ─── get_step_function_execution_details ────────────────────────────────────

// ExecutionDetailsTool handles the get_step_function_execution_details MCP tool.
type ExecutionDetailsTool struct {
	sfn ExecutionsService
}

// NewExecutionDetailsTool creates an ExecutionDetailsTool.
func NewExecutionDetailsTool(sfn ExecutionsService) *ExecutionDetailsTool {
	return &ExecutionDetailsTool{sfn: sfn}
}

// Definition returns the MCP tool definition for get_step_function_execution_details.
func (t *ExecutionDetailsTool) Definition() mcp.Tool {
	return mcp.NewTool("get_step_function_execution_details",
		mcp.WithDescription(
			"Get detailed information about a specific Step Functions execution, "+
				"including the inputs and outputs of every state it entered",
		),
		mcp.WithString("execution_arn", mcp.Required(), mcp.Description("ARN of the execution")),
		includeDefinitionOption(),
	)
}

// Handle processes the get_step_function_execution_details tool call.
func (t *ExecutionDetailsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arn, err := RequireString(req, "execution_arn")
	if err != nil {
		return ErrorResult("get_step_function_execution_details", err), nil
	}
	exec, err := t.sfn.GetExecutionDetails(ctx, arn, BoolArg(req, "include_definition", false))
	if err != nil {
		return ErrorResult("get_step_function_execution_details", err), nil
	}
	return JSONResult(exec), nil
}

// ─── search_step_function_executions ────────────────────────────────────────

// SearchExecutionsTool handles the search_step_function_executions MCP tool.
type SearchExecutionsTool struct {
	sfn ExecutionsService
}

// NewSearchExecutionsTool creates a SearchExecutionsTool.
func NewSearchExecutionsTool(sfn ExecutionsService) *SearchExecutionsTool {
	return &SearchExecutionsTool{sfn: sfn}
}

// Definition returns the MCP tool definition for search_step_function_executions.
func (t *SearchExecutionsTool) Definition() mcp.Tool {
	return mcp.NewTool("search_step_function_executions",
		mcp.WithDescription(
			"Search Step Functions executions with advanced filtering. Patterns are "+
				"case-insensitive regular expressions matched against state names and "+
				"the raw JSON of state inputs and outputs.",
		),
		stateMachineARNOption(),
		mcp.WithString("state_name",
			mcp.Description(`Filter by state name (supports regex, e.g., "Match.*Entity")`),
		),
		mcp.WithString("input_pattern",
			mcp.Description(`Regex pattern to match in state inputs (e.g., "customer_id.*12345")`),
		),
		mcp.WithString("output_pattern",
			mcp.Description(`Regex pattern to match in state outputs (e.g., "entity_type.*company")`),
		),
		mcp.WithString("status_filter",
			mcp.Description("Optional status filter (RUNNING, SUCCEEDED, FAILED, etc.)"),
			mcp.DefaultString(""),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of executions to process (default: 50)"),
			mcp.DefaultNumber(stepfunctions.DefaultSearchMaxResults),
		),
		hoursBackOption(),
		includeDefinitionOption(),
	)
}

// Handle processes the search_step_function_executions tool call.
func (t *SearchExecutionsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arn, err := RequireString(req, "state_machine_arn")
	if err != nil {
		return ErrorResult("search_step_function_executions", err), nil
	}
	p := stepfunctions.SearchParams{
		StateMachineARN:   arn,
		StateName:         req.GetString("state_name", ""),
		InputPattern:      req.GetString("input_pattern", ""),
		OutputPattern:     req.GetString("output_pattern", ""),
		StatusFilter:      StringArg(req, "status_filter"),
		MaxResults:        IntArg(req, "max_results", stepfunctions.DefaultSearchMaxResults),
		HoursBack:         IntArg(req, "hours_back", stepfunctions.DefaultHoursBack),
		IncludeDefinition: BoolArg(req, "include_definition", false),
	}
	executions, err := t.sfn.SearchExecutions(ctx, p)
	if err != nil {
		return ErrorResult("search_step_function_executions", err), nil
	}
	return JSONResult(map[string]any{
		"executions": executions,
		"count":      len(executions),
		"filters": map[string]any{
			"state_name":     optional(p.StateName),
			"input_pattern":  optional(p.InputPattern),
			"output_pattern": optional(p.OutputPattern),
			"status":         optional(p.StatusFilter),
		},
	}), nil
}
