package memtools

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Coykto/debug-mcp/internal/memory"
	"github.com/Coykto/debug-mcp/internal/tools"
)

// maxKeys caps key listings in get_run_field results.
const maxKeys = 20

// FieldTool handles the get_run_field MCP tool.
type FieldTool struct {
	store *memory.Store
}

// NewFieldTool creates a FieldTool.
func NewFieldTool(store *memory.Store) *FieldTool {
	return &FieldTool{store: store}
}

// Definition returns the MCP tool definition for get_run_field.
func (t *FieldTool) Definition() mcp.Tool {
	return mcp.NewTool("get_run_field",
		mcp.WithDescription("Get a specific field from a previously fetched LangSmith run"),
		mcp.WithString("reference_id",
			mcp.Required(),
			mcp.Description("The reference_id from get_langsmith_run_details()"),
		),
		mcp.WithString("field_path",
			mcp.Required(),
			mcp.Description("Dot-notation path to the field (e.g., 'outputs.chat_history.2.content')"),
		),
	)
}

// Handle processes the get_run_field tool call.
func (t *FieldTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := tools.RequireString(req, "reference_id")
	if err != nil {
		return tools.ErrorResult("get_run_field", err), nil
	}
	path, err := tools.RequireString(req, "field_path")
	if err != nil {
		return tools.ErrorResult("get_run_field", err), nil
	}

	if _, ok := t.store.Get(ref); !ok {
		return notStored(t.store, ref), nil
	}

	value, ok := t.store.GetField(ref, path)
	if !ok {
		parentPath := memory.ParentPath(path)
		parent, _ := t.store.GetField(ref, parentPath)
		if parentPath == "" {
			parentPath = "(root)"
		}
		return tools.JSONResult(map[string]any{
			"error":          true,
			"error_message":  fmt.Sprintf("Field not found at path: %s", path),
			"parent_path":    parentPath,
			"available_keys": nonNil(memory.AvailableKeys(parent, maxKeys)),
			"hint":           "Check the path and try again. Use search_run_content() to find content locations.",
		}), nil
	}

	return tools.JSONResult(map[string]any{
		"reference_id": ref,
		"field_path":   path,
		"value":        value,
		"size_info":    sizeInfo(value),
	}), nil
}

// sizeInfo describes how large a field value is.
func sizeInfo(v any) map[string]any {
	switch t := v.(type) {
	case string:
		return map[string]any{
			"type":             "string",
			"length":           utf8.RuneCountInString(t),
			"word_count":       memory.WordCount(t),
			"estimated_tokens": memory.EstimateTokens(t),
		}
	case []any:
		return map[string]any{"type": "list", "length": len(t)}
	case map[string]any:
		return map[string]any{"type": "dict", "keys": nonNil(memory.AvailableKeys(t, maxKeys))}
	}
	return map[string]any{}
}
