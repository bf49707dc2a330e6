package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Coykto/debug-mcp/internal/cloudwatch"
)

// LogsService is the CloudWatch Logs surface used by the cloudwatch tools.
type LogsService interface {
	DescribeLogGroups(ctx context.Context, prefix, region string) ([]map[string]any, error)
	AnalyzeLogGroup(ctx context.Context, p cloudwatch.AnalyzeParams) (*cloudwatch.Analysis, error)
	ExecuteInsightsQuery(ctx context.Context, p cloudwatch.QueryParams) (*cloudwatch.QueryResult, error)
	GetQueryResults(ctx context.Context, queryID, region string) (*cloudwatch.QueryResult, error)
	CancelQuery(ctx context.Context, queryID, region string) (bool, error)
}

// CloudWatchTools returns every cloudwatch tool backed by logs.
func CloudWatchTools(logs LogsService) []Tool {
	return []Tool{
		NewDescribeLogGroupsTool(logs),
		NewAnalyzeLogGroupTool(logs),
		NewExecuteInsightsQueryTool(logs),
		NewGetInsightsResultsTool(logs),
		NewCancelInsightsQueryTool(logs),
	}
}

func regionOption() mcp.ToolOption {
	return mcp.WithString("region",
		mcp.Description("AWS region to query (uses configured region if empty)"),
		mcp.DefaultString(""),
	)
}

// ─── describe_log_groups ────────────────────────────────────────────────────

// DescribeLogGroupsTool handles the describe_log_groups MCP tool.
type DescribeLogGroupsTool struct {
	logs LogsService
}

// NewDescribeLogGroupsTool creates a DescribeLogGroupsTool.
func NewDescribeLogGroupsTool(logs LogsService) *DescribeLogGroupsTool {
	return &DescribeLogGroupsTool{logs: logs}
}

// Definition returns the MCP tool definition for describe_log_groups.
func (t *DescribeLogGroupsTool) Definition() mcp.Tool {
	return mcp.NewTool("describe_log_groups",
		mcp.WithDescription("List CloudWatch log groups with optional prefix filtering"),
		mcp.WithString("log_group_name_prefix",
			mcp.Description("Filter log groups by prefix (e.g., /aws/lambda/, /ecs/)"),
			mcp.DefaultString(""),
		),
		regionOption(),
	)
}

// Handle processes the describe_log_groups tool call.
func (t *DescribeLogGroupsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	groups, err := t.logs.DescribeLogGroups(ctx, StringArg(req, "log_group_name_prefix"), StringArg(req, "region"))
	if err != nil {
		return ErrorResult("describe_log_groups", err), nil
	}
	return JSONResult(map[string]any{"log_groups": groups}), nil
}

// ─── analyze_log_group ──────────────────────────────────────────────────────

// AnalyzeLogGroupTool handles the analyze_log_group MCP tool.
type AnalyzeLogGroupTool struct {
	logs LogsService
}

// NewAnalyzeLogGroupTool creates an AnalyzeLogGroupTool.
func NewAnalyzeLogGroupTool(logs LogsService) *AnalyzeLogGroupTool {
	return &AnalyzeLogGroupTool{logs: logs}
}

// Definition returns the MCP tool definition for analyze_log_group.
func (t *AnalyzeLogGroupTool) Definition() mcp.Tool {
	return mcp.NewTool("analyze_log_group",
		mcp.WithDescription("Analyze CloudWatch logs for anomalies, message patterns, and error patterns"),
		mcp.WithString("log_group_name", mcp.Required(), mcp.Description("Log group name")),
		mcp.WithString("start_time", mcp.Required(), mcp.Description("Start time (ISO format)")),
		mcp.WithString("end_time", mcp.Required(), mcp.Description("End time (ISO format)")),
		mcp.WithString("filter_pattern",
			mcp.Description("Optional filter pattern"),
			mcp.DefaultString(""),
		),
		regionOption(),
	)
}

// Handle processes the analyze_log_group tool call.
func (t *AnalyzeLogGroupTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := cloudwatch.AnalyzeParams{
		FilterPattern: req.GetString("filter_pattern", ""),
		Region:        StringArg(req, "region"),
	}
	var err error
	if p.LogGroupName, err = RequireString(req, "log_group_name"); err != nil {
		return ErrorResult("analyze_log_group", err), nil
	}
	if p.StartTime, err = RequireString(req, "start_time"); err != nil {
		return ErrorResult("analyze_log_group", err), nil
	}
	if p.EndTime, err = RequireString(req, "end_time"); err != nil {
		return ErrorResult("analyze_log_group", err), nil
	}

	analysis, err := t.logs.AnalyzeLogGroup(ctx, p)
	if err != nil {
		return ErrorResult("analyze_log_group", err), nil
	}
	return JSONResult(analysis), nil
}

// ─── execute_log_insights_query ─────────────────────────────────────────────

// ExecuteInsightsQueryTool handles the execute_log_insights_query MCP tool.
type ExecuteInsightsQueryTool struct {
	logs LogsService
}

// NewExecuteInsightsQueryTool creates an ExecuteInsightsQueryTool.
func NewExecuteInsightsQueryTool(logs LogsService) *ExecuteInsightsQueryTool {
	return &ExecuteInsightsQueryTool{logs: logs}
}

// Definition returns the MCP tool definition for execute_log_insights_query.
func (t *ExecuteInsightsQueryTool) Definition() mcp.Tool {
	return mcp.NewTool("execute_log_insights_query",
		mcp.WithDescription(
			"Execute CloudWatch Logs Insights query. Waits up to 30 seconds for completion; "+
				"slower queries return status Timeout and can be fetched with get_logs_insight_query_results.",
		),
		mcp.WithArray("log_group_names",
			mcp.Required(),
			mcp.Description("List of log group names to query"),
			mcp.WithStringItems(),
		),
		mcp.WithString("query_string", mcp.Required(), mcp.Description("CloudWatch Insights query")),
		mcp.WithString("start_time", mcp.Required(), mcp.Description("Start time (ISO format)")),
		mcp.WithString("end_time", mcp.Required(), mcp.Description("End time (ISO format)")),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results"),
			mcp.DefaultNumber(100),
		),
		regionOption(),
	)
}

// Handle processes the execute_log_insights_query tool call.
func (t *ExecuteInsightsQueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const op = "execute_log_insights_query"
	p := cloudwatch.QueryParams{
		LogGroupNames: StringsArg(req, "log_group_names"),
		Limit:         IntArg(req, "limit", 100),
		Region:        StringArg(req, "region"),
	}
	var err error
	if p.QueryString, err = RequireString(req, "query_string"); err != nil {
		return ErrorResult(op, err), nil
	}
	if p.StartTime, err = RequireString(req, "start_time"); err != nil {
		return ErrorResult(op, err), nil
	}
	if p.EndTime, err = RequireString(req, "end_time"); err != nil {
		return ErrorResult(op, err), nil
	}

	res, err := t.logs.ExecuteInsightsQuery(ctx, p)
	if err != nil {
		return ErrorResult(op, err), nil
	}
	return JSONResult(res), nil
}

// ─── get_logs_insight_query_results ─────────────────────────────────────────

// GetInsightsResultsTool handles the get_logs_insight_query_results MCP tool.
type GetInsightsResultsTool struct {
	logs LogsService
}

// NewGetInsightsResultsTool creates a GetInsightsResultsTool.
func NewGetInsightsResultsTool(logs LogsService) *GetInsightsResultsTool {
	return &GetInsightsResultsTool{logs: logs}
}

// Definition returns the MCP tool definition for get_logs_insight_query_results.
func (t *GetInsightsResultsTool) Definition() mcp.Tool {
	return mcp.NewTool("get_logs_insight_query_results",
		mcp.WithDescription("Get results from a CloudWatch Logs Insights query"),
		mcp.WithString("query_id", mcp.Required(), mcp.Description("Query ID from execute_log_insights_query")),
		regionOption(),
	)
}

// Handle processes the get_logs_insight_query_results tool call.
func (t *GetInsightsResultsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := RequireString(req, "query_id")
	if err != nil {
		return ErrorResult("get_logs_insight_query_results", err), nil
	}
	res, err := t.logs.GetQueryResults(ctx, id, StringArg(req, "region"))
	if err != nil {
		return ErrorResult("get_logs_insight_query_results", err), nil
	}
	return JSONResult(res), nil
}

// ─── cancel_logs_insight_query ──────────────────────────────────────────────

// CancelInsightsQueryTool handles the cancel_logs_insight_query MCP tool.
type CancelInsightsQueryTool struct {
	logs LogsService
}

// NewCancelInsightsQueryTool creates a CancelInsightsQueryTool.
func NewCancelInsightsQueryTool(logs LogsService) *CancelInsightsQueryTool {
	return &CancelInsightsQueryTool{logs: logs}
}

// Definition returns the MCP tool definition for cancel_logs_insight_query.
func (t *CancelInsightsQueryTool) Definition() mcp.Tool {
	return mcp.NewTool("cancel_logs_insight_query",
		mcp.WithDescription("Cancel a running CloudWatch Logs Insights query"),
		mcp.WithString("query_id", mcp.Required(), mcp.Description("Query ID from execute_log_insights_query")),
		regionOption(),
	)
}

// Handle processes the cancel_logs_insight_query tool call.
func (t *CancelInsightsQueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := RequireString(req, "query_id")
	if err != nil {
		return ErrorResult("cancel_logs_insight_query", err), nil
	}
	ok, err := t.logs.CancelQuery(ctx, id, StringArg(req, "region"))
	if err != nil {
		return ErrorResult("cancel_logs_insight_query", err), nil
	}
	return JSONResult(map[string]any{"success": ok}), nil
}
