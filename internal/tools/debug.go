package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// DebugTool handles the debug meta tool: discovery of categories and
// tools, and execution of any registered tool by name.
type DebugTool struct {
	registry *Registry
}

// NewDebugTool creates a DebugTool over registry.
func NewDebugTool(registry *Registry) *DebugTool {
	return &DebugTool{registry: registry}
}

// Definition returns the MCP tool definition for debug.
func (t *DebugTool) Definition() mcp.Tool {
	return mcp.NewTool("debug",
		mcp.WithDescription(
			"Execute debugging tools or discover available ones. "+
				"Categories: cloudwatch, stepfunctions, langsmith, jira, upstream. "+
				`Use tool="list" to see categories, tool="list:<category>" to see its tools `+
				"with their parameters, or a tool name to run it.",
		),
		mcp.WithString("tool",
			mcp.Description(`Tool name to execute, or "list" / "list:<category>" for discovery`),
			mcp.DefaultString("list"),
		),
		mcp.WithString("arguments",
			mcp.Description("JSON object string of tool arguments"),
			mcp.DefaultString("{}"),
		),
	)
}

// Handle processes the debug tool call.
func (t *DebugTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tool := strings.TrimSpace(req.GetString("tool", "list"))
	if tool == "" {
		tool = "list"
	}

	args := map[string]any{}
	if raw := req.GetString("arguments", "{}"); strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return metaError(map[string]any{"message": "Invalid JSON: " + err.Error()}), nil
		}
		if args == nil {
			args = map[string]any{}
		}
	}

	if tool == "list" {
		return JSONResult(map[string]any{"categories": Categories}), nil
	}

	if category, ok := strings.CutPrefix(tool, "list:"); ok {
		listed := t.registry.List(category)
		if len(listed) == 0 {
			return metaError(map[string]any{
				"message":              "Unknown category: " + category,
				"available_categories": t.registry.CategoryNames(),
			}), nil
		}
		return JSONResult(map[string]any{"tools": listed}), nil
	}

	if _, ok := t.registry.Lookup(tool); !ok {
		return metaError(map[string]any{
			"message": fmt.Sprintf("Unknown tool: %s. Available tools: [%s]", tool, strings.Join(t.registry.Names(), ", ")),
		}), nil
	}
	res, err := t.registry.Execute(ctx, tool, args)
	if err != nil {
		return metaError(map[string]any{"message": "Execution failed: " + err.Error()}), nil
	}
	return res, nil
}

func metaError(fields map[string]any) *mcp.CallToolResult {
	fields["error"] = true
	r := JSONResult(fields)
	r.IsError = true
	return r
}
