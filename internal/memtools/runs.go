package memtools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Coykto/debug-mcp/internal/memory"
	"github.com/Coykto/debug-mcp/internal/tools"
)

// ListRunsTool handles the list_stored_runs MCP tool.
type ListRunsTool struct {
	store *memory.Store
}

// NewListRunsTool creates a ListRunsTool.
func NewListRunsTool(store *memory.Store) *ListRunsTool {
	return &ListRunsTool{store: store}
}

// Definition returns the MCP tool definition for list_stored_runs.
func (t *ListRunsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_stored_runs",
		mcp.WithDescription("List the runs held in memory with their summaries, for use with search_run_content and get_run_field"),
	)
}

// Handle processes the list_stored_runs tool call.
func (t *ListRunsTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs := t.store.ListStoredRuns()
	return tools.JSONResult(map[string]any{"runs": runs, "count": len(runs)}), nil
}
