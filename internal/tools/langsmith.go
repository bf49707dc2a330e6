package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/Coykto/debug-mcp/internal/langsmith"
	"github.com/Coykto/debug-mcp/internal/memory"
)

// RunsService is the LangSmith surface of one environment.
type RunsService interface {
	DefaultProject() string
	ListProjects(ctx context.Context, limit int) ([]map[string]any, error)
	ListRuns(ctx context.Context, p langsmith.ListParams) ([]map[string]any, error)
	GetRunDetails(ctx context.Context, runID string, includeChildren bool) (map[string]any, error)
	FindConversations(ctx context.Context, p langsmith.FindParams) ([]langsmith.Match, error)
}

// RunsConnector returns the LangSmith service of an environment.
type RunsConnector func(ctx context.Context, environment string) (RunsService, error)

// ServiceConnector adapts a langsmith.Service to a RunsConnector.
func ServiceConnector(svc *langsmith.Service) RunsConnector {
	return func(ctx context.Context, environment string) (RunsService, error) {
		d, err := svc.Debugger(ctx, environment)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// LangSmithTools returns the LangSmith API tools. Fetched runs are kept in
// store for the run memory tools.
func LangSmithTools(connect RunsConnector, store *memory.Store, logger *zap.Logger) []Tool {
	return []Tool{
		NewListProjectsTool(connect),
		NewListRunsTool(connect),
		NewRunDetailsTool(connect, store, logger),
		NewSearchRunsTool(connect),
	}
}

func environmentOption() mcp.ToolOption {
	return mcp.WithString("environment",
		mcp.Required(),
		mcp.Description("Environment to query ('prod', 'dev', 'local')"),
	)
}

func projectNameOption() mcp.ToolOption {
	return mcp.WithString("project_name",
		mcp.Description("Project name (uses default from credentials if empty)"),
		mcp.DefaultString(""),
	)
}

// connectArg reads the environment argument and connects to it.
func connectArg(ctx context.Context, connect RunsConnector, req mcp.CallToolRequest) (string, RunsService, error) {
	env, err := RequireString(req, "environment")
	if err != nil {
		return "", nil, err
	}
	svc, err := connect(ctx, env)
	if err != nil {
		return env, nil, err
	}
	return env, svc, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ─── list_langsmith_projects ────────────────────────────────────────────────

// ListProjectsTool handles the list_langsmith_projects MCP tool.
type ListProjectsTool struct {
	connect RunsConnector
}

// NewListProjectsTool creates a ListProjectsTool.
func NewListProjectsTool(connect RunsConnector) *ListProjectsTool {
	return &ListProjectsTool{connect: connect}
}

// Definition returns the MCP tool definition for list_langsmith_projects.
func (t *ListProjectsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_langsmith_projects",
		mcp.WithDescription("List available LangSmith projects"),
		environmentOption(),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of projects to return (default: 100)"),
			mcp.DefaultNumber(100),
		),
	)
}

// Handle processes the list_langsmith_projects tool call.
func (t *ListProjectsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	env, svc, err := connectArg(ctx, t.connect, req)
	if err != nil {
		return ErrorResult("list_langsmith_projects", err), nil
	}
	projects, err := svc.ListProjects(ctx, IntArg(req, "limit", 100))
	if err != nil {
		return ErrorResult("list_langsmith_projects", err), nil
	}
	return JSONResult(map[string]any{
		"environment":     env,
		"projects":        projects,
		"count":           len(projects),
		"default_project": svc.DefaultProject(),
	}), nil
}

// ─── list_langsmith_runs ────────────────────────────────────────────────────

// ListRunsTool handles the list_langsmith_runs MCP tool.
type ListRunsTool struct {
	connect RunsConnector
	now     func() time.Time
}

// NewListRunsTool creates a ListRunsTool.
func NewListRunsTool(connect RunsConnector) *ListRunsTool {
	return &ListRunsTool{connect: connect, now: time.Now}
}

// Definition returns the MCP tool definition for list_langsmith_runs.
func (t *ListRunsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_langsmith_runs",
		mcp.WithDescription("List runs/traces from a LangSmith project"),
		environmentOption(),
		projectNameOption(),
		mcp.WithString("run_type",
			mcp.Description("Filter by type: chain, llm, tool, retriever, embedding, prompt, parser"),
			mcp.DefaultString(""),
		),
		mcp.WithBoolean("is_root",
			mcp.Description("If true, return only root runs/top-level traces (default: true)"),
			mcp.DefaultBool(true),
		),
		mcp.WithBoolean("error_only",
			mcp.Description("If true, return only errored runs (default: false)"),
			mcp.DefaultBool(false),
		),
		mcp.WithNumber("hours_back",
			mcp.Description("Number of hours to look back (default: 24)"),
			mcp.DefaultNumber(24),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of runs to return (default: 100)"),
			mcp.DefaultNumber(100),
		),
	)
}

// Handle processes the list_langsmith_runs tool call.
func (t *ListRunsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	env, svc, err := connectArg(ctx, t.connect, req)
	if err != nil {
		return ErrorResult("list_langsmith_runs", err), nil
	}

	project := StringArg(req, "project_name")
	runType := StringArg(req, "run_type")
	isRoot := BoolArg(req, "is_root", true)
	errorOnly := BoolArg(req, "error_only", false)
	hoursBack := IntArg(req, "hours_back", 24)

	p := langsmith.ListParams{
		Project:   project,
		RunType:   runType,
		IsRoot:    &isRoot,
		StartTime: t.now().UTC().Add(-time.Duration(hoursBack) * time.Hour),
		Limit:     IntArg(req, "limit", 100),
	}
	if errorOnly {
		p.Error = &errorOnly
	}

	runs, err := svc.ListRuns(ctx, p)
	if err != nil {
		return ErrorResult("list_langsmith_runs", err), nil
	}
	return JSONResult(map[string]any{
		"environment": env,
		"project":     orDefault(project, svc.DefaultProject()),
		"runs":        runs,
		"count":       len(runs),
		"filters": map[string]any{
			"run_type":   optional(runType),
			"is_root":    isRoot,
			"error_only": errorOnly,
			"hours_back": hoursBack,
		},
	}), nil
}

// ─── get_langsmith_run_details ──────────────────────────────────────────────

const storedRunHint = "Full content stored in memory. Use search_run_content(reference_id, query) " +
	"to search within this run, or get_run_field(reference_id, field_path) for specific fields."

// RunDetailsTool handles the get_langsmith_run_details MCP tool. The full
// run is kept in the run memory store and only a summary is returned.
type RunDetailsTool struct {
	connect RunsConnector
	store   *memory.Store
	logger  *zap.Logger
}

// NewRunDetailsTool creates a RunDetailsTool.
func NewRunDetailsTool(connect RunsConnector, store *memory.Store, logger *zap.Logger) *RunDetailsTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunDetailsTool{connect: connect, store: store, logger: logger}
}

// Definition returns the MCP tool definition for get_langsmith_run_details.
func (t *RunDetailsTool) Definition() mcp.Tool {
	return mcp.NewTool("get_langsmith_run_details",
		mcp.WithDescription(
			"Get detailed information about a specific LangSmith run/trace. The full run is "+
				"stored in memory under a reference_id; use search_run_content and get_run_field to read it.",
		),
		environmentOption(),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("The run ID (UUID) to retrieve")),
		mcp.WithBoolean("include_children",
			mcp.Description("If true, also fetch child runs (default: true)"),
			mcp.DefaultBool(true),
		),
		mcp.WithBoolean("full_content",
			mcp.Description("If true, return full content instead of summary (default: false). "+
				"WARNING: Full content can be ~25k+ tokens."),
			mcp.DefaultBool(false),
		),
	)
}

// Handle processes the get_langsmith_run_details tool call.
func (t *RunDetailsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const op = "get_langsmith_run_details"
	runID, err := RequireString(req, "run_id")
	if err != nil {
		return ErrorResult(op, err), nil
	}
	if err := langsmith.ValidateRunID(runID); err != nil {
		return ErrorResult(op, err), nil
	}
	env, svc, err := connectArg(ctx, t.connect, req)
	if err != nil {
		return ErrorResult(op, err), nil
	}

	details, err := svc.GetRunDetails(ctx, runID, BoolArg(req, "include_children", true))
	if err != nil {
		return ErrorResult(op, err), nil
	}

	ref := env + ":" + runID
	summary := langsmith.Summarize(details)
	if err := t.store.Store(ctx, ref, details, summary); err != nil {
		return ErrorResult(op, err), nil
	}

	tokens := 0
	if raw, err := json.Marshal(details); err == nil {
		tokens = memory.EstimateTokens(string(raw))
	}
	semantic := false
	if stored, ok := t.store.Get(ref); ok {
		semantic = stored.SemanticSearchAvailable()
	}
	t.logger.Debug("stored run",
		zap.String("reference_id", ref),
		zap.Int("estimated_tokens", tokens),
		zap.Bool("semantic_search", semantic))

	result := map[string]any{
		"environment":               env,
		"reference_id":              ref,
		"summary":                   summary,
		"hint":                      storedRunHint,
		"estimated_tokens":          tokens,
		"semantic_search_available": semantic,
	}
	if BoolArg(req, "full_content", false) {
		result["run"] = details
		result["warning"] = "Full content included. This may use significant context."
	}
	return JSONResult(result), nil
}

// ─── search_langsmith_runs ──────────────────────────────────────────────────

const searchGuidance = "This search tool encountered an error. " +
	"DO NOT fall back to using get_langsmith_run_details to search - " +
	"that approach will overflow context with ~25k tokens per run. " +
	"Instead, please report this issue so it can be fixed."

// SearchRunsTool handles the search_langsmith_runs MCP tool.
type SearchRunsTool struct {
	connect RunsConnector
}

// NewSearchRunsTool creates a SearchRunsTool.
func NewSearchRunsTool(connect RunsConnector) *SearchRunsTool {
	return &SearchRunsTool{connect: connect}
}

// Definition returns the MCP tool definition for search_langsmith_runs.
func (t *SearchRunsTool) Definition() mcp.Tool {
	return mcp.NewTool("search_langsmith_runs",
		mcp.WithDescription("Search for LangSmith conversations containing specific text content"),
		environmentOption(),
		mcp.WithString("search_text",
			mcp.Required(),
			mcp.Description("The text to search for (case-insensitive). Use unique identifiers for best results."),
		),
		projectNameOption(),
		mcp.WithNumber("hours_back",
			mcp.Description("Number of hours to look back (default: 24)"),
			mcp.DefaultNumber(24),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum runs to search through (default: 50)"),
			mcp.DefaultNumber(50),
		),
		mcp.WithBoolean("include_children",
			mcp.Description("Search in child runs too (default: true)"),
			mcp.DefaultBool(true),
		),
	)
}

// Handle processes the search_langsmith_runs tool call.
func (t *SearchRunsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const op = "search_langsmith_runs"
	text := req.GetString("search_text", "")
	if text == "" {
		_, err := RequireString(req, "search_text")
		return ErrorResult(op, err), nil
	}
	env, svc, err := connectArg(ctx, t.connect, req)
	if err != nil {
		return ErrorResult(op, err), nil
	}

	p := langsmith.FindParams{
		SearchText:      text,
		Project:         StringArg(req, "project_name"),
		HoursBack:       IntArg(req, "hours_back", 24),
		Limit:           IntArg(req, "limit", 50),
		IncludeChildren: BoolArg(req, "include_children", true),
	}
	matches, err := svc.FindConversations(ctx, p)
	if err != nil {
		r := JSONResult(map[string]any{
			"error":         true,
			"error_message": err.Error(),
			"operation":     op,
			"environment":   env,
			"search_text":   text,
			"guidance":      searchGuidance,
			"report_issue":  "https://github.com/Coykto/debug_mcp/issues",
			"tip":           "Include the error message and search parameters when reporting.",
		})
		r.IsError = true
		return r, nil
	}
	if matches == nil {
		matches = []langsmith.Match{}
	}
	return JSONResult(map[string]any{
		"environment":   env,
		"project":       orDefault(p.Project, svc.DefaultProject()),
		"search_text":   text,
		"matches":       matches,
		"match_count":   len(matches),
		"runs_searched": p.Limit,
		"hours_back":    p.HoursBack,
		"tip":           "Use get_langsmith_run_details with a run_id to get full conversation details",
	}), nil
}
