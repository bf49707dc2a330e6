// Package memtools provides MCP tool handlers over the run memory store.
//
// Each tool handler follows the same pattern as internal/tools:
// - A struct with dependencies (memory.Store) injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Runs get into the store through get_langsmith_run_details; these tools
// only read it.
package memtools

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Coykto/debug-mcp/internal/memory"
	"github.com/Coykto/debug-mcp/internal/tools"
)

// Category is the discovery category of the run memory tools.
const Category = "langsmith"

const notStoredHint = "Make sure to call get_langsmith_run_details() first to store the run content."

// Tools returns every run memory tool backed by store.
func Tools(store *memory.Store) []tools.Tool {
	return []tools.Tool{
		NewSearchTool(store),
		NewFieldTool(store),
		NewListRunsTool(store),
	}
}

// notStored is the soft not-found result for an unknown reference id.
func notStored(store *memory.Store, ref string) *mcp.CallToolResult {
	return tools.JSONResult(map[string]any{
		"error":          true,
		"error_message":  "No stored run found for reference_id: " + ref,
		"hint":           notStoredHint,
		"available_runs": store.ReferenceIDs(),
	})
}

func errMissing(key string) error {
	return fmt.Errorf("missing required argument: %s", key)
}
