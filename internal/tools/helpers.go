// Package tools implements the MCP tool handlers of the debugging server.
//
// Each tool is a struct that receives its dependencies through its
// constructor and exposes two methods:
//   - Definition returns the mcp.Tool schema
//   - Handle processes a call and returns a result
//
// Handlers never return Go errors to mcp-go. Failures become structured
// JSON results so the caller can read what went wrong.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// IntArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func IntArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	switch v := req.GetArguments()[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return defaultVal
}

// BoolArg extracts a boolean argument from a tool request.
func BoolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// StringArg returns a trimmed string argument.
func StringArg(req mcp.CallToolRequest, key string) string {
	return strings.TrimSpace(req.GetString(key, ""))
}

// RequireString returns a trimmed, non-empty string argument.
func RequireString(req mcp.CallToolRequest, key string) (string, error) {
	v := StringArg(req, key)
	if v == "" {
		return "", fmt.Errorf("missing required argument: %s", key)
	}
	return v, nil
}

// StringsArg accepts a JSON array of strings or a comma-separated string.
func StringsArg(req mcp.CallToolRequest, key string) []string {
	var raw []string
	switch v := req.GetArguments()[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case []string:
		raw = v
	case string:
		raw = strings.Split(v, ",")
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ObjectArg accepts a JSON object or a string holding one. A missing key
// yields an empty map.
func ObjectArg(req mcp.CallToolRequest, key string) (map[string]any, error) {
	switch v := req.GetArguments()[key].(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return map[string]any{}, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("argument %s is not a JSON object: %w", key, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("argument %s must be an object", key)
	}
}

// ─── Results ─────────────────────────────────────────────────────────────────

// JSONResult encodes v as an indented JSON text result.
func JSONResult(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf(
			`{"error": true, "error_message": %q, "operation": "encode result"}`, err.Error()))
	}
	return mcp.NewToolResultText(string(b))
}

// ErrorResult is the structured failure result of operation.
func ErrorResult(operation string, err error) *mcp.CallToolResult {
	r := JSONResult(map[string]any{
		"error":         true,
		"error_message": err.Error(),
		"operation":     operation,
	})
	r.IsError = true
	return r
}

// optional maps "" to nil so it encodes as JSON null.
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}
