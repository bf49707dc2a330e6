package memtools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Coykto/debug-mcp/internal/embedding"
	"github.com/Coykto/debug-mcp/internal/memory"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

// newTestStore creates a memory.Store holding one sample run under "prod:run-1".
func newTestStore(t *testing.T, cfg memory.Config) *memory.Store {
	t.Helper()
	store, err := memory.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Store(t.Context(), "prod:run-1", sampleRun(), map[string]any{"name": "AgentExecutor"}))
	return store
}

func sampleRun() map[string]any {
	return map[string]any{
		"name": "AgentExecutor",
		"inputs": map[string]any{
			"input": map[string]any{"user_query": "Why was the refund rejected?"},
		},
		"outputs": map[string]any{
			"chat_history": []any{
				map[string]any{"type": "human", "content": "refund order 42"},
				map[string]any{"type": "tool", "name": "lookup_order", "content": "refund window closed"},
			},
			"response": map[string]any{"final_text": "The refund was rejected because the window closed."},
		},
		"total_tokens": 1234,
	}
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// resultJSON decodes the text content of a tool result.
func resultJSON(t *testing.T, r *mcp.CallToolResult) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &out), resultText(r))
	return out
}

// ─── search_run_content ─────────────────────────────────────────────────────

func TestSearchTool_AutoFallsBackToKeyword(t *testing.T) {
	tool := NewSearchTool(newTestStore(t, memory.DefaultConfig()))

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"reference_id": "prod:run-1",
		"query":        "REFUND",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	got := resultJSON(t, res)
	assert.Equal(t, MethodKeyword, got["search_method"])
	assert.Equal(t, float64(4), got["result_count"])
	first := got["results"].([]any)[0].(map[string]any)
	assert.Equal(t, "inputs.input.user_query", first["path"])
	assert.Equal(t, float64(12), first["match_position"])
}

func TestSearchTool_SemanticWhenEmbedded(t *testing.T) {
	cfg := memory.DefaultConfig()
	cfg.Embedder = embedding.Func(func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			v := []float32{0, 0}
			if strings.Contains(strings.ToLower(text), "window") {
				v[0] = 1
			}
			if strings.Contains(strings.ToLower(text), "order") {
				v[1] = 1
			}
			out[i] = v
		}
		return out, nil
	})
	tool := NewSearchTool(newTestStore(t, cfg))

	tests := []struct {
		searchType string
		method     string
	}{
		{"auto", MethodSemantic},
		{"similar", MethodSemantic},
		{"keyword", MethodKeyword},
		{"anything-else", MethodSemantic},
	}
	for _, tt := range tests {
		t.Run(tt.searchType, func(t *testing.T) {
			res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
				"reference_id": "prod:run-1",
				"query":        "window",
				"search_type":  tt.searchType,
				"max_results":  float64(1),
			}))
			require.NoError(t, err)

			got := resultJSON(t, res)
			assert.Equal(t, tt.method, got["search_method"])
			assert.Equal(t, float64(1), got["result_count"])
		})
	}
}

func TestSearchTool_SimilarWithoutEmbeddingsIsEmpty(t *testing.T) {
	tool := NewSearchTool(newTestStore(t, memory.DefaultConfig()))

	res, _ := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"reference_id": "prod:run-1",
		"query":        "refund",
		"search_type":  "similar",
	}))

	got := resultJSON(t, res)
	assert.Equal(t, MethodSemantic, got["search_method"])
	assert.Equal(t, []any{}, got["results"])
}

func TestSearchTool_UnknownReference(t *testing.T) {
	tool := NewSearchTool(newTestStore(t, memory.DefaultConfig()))

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"reference_id": "dev:missing",
		"query":        "refund",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError, "unknown runs are data, not failures")

	got := resultJSON(t, res)
	assert.Equal(t, true, got["error"])
	assert.Equal(t, "No stored run found for reference_id: dev:missing", got["error_message"])
	assert.Equal(t, notStoredHint, got["hint"])
	assert.Equal(t, []any{"prod:run-1"}, got["available_runs"])
}

func TestSearchTool_RequiresArguments(t *testing.T) {
	tool := NewSearchTool(newTestStore(t, memory.DefaultConfig()))

	for _, args := range []map[string]interface{}{
		{"query": "x"},
		{"reference_id": "prod:run-1"},
	} {
		res, err := tool.Handle(context.Background(), makeReq(args))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(res), "missing required argument")
	}
}

// ─── get_run_field ──────────────────────────────────────────────────────────

func TestFieldTool_SizeInfo(t *testing.T) {
	tool := NewFieldTool(newTestStore(t, memory.DefaultConfig()))

	tests := []struct {
		path string
		want map[string]any
	}{
		{"outputs.response.final_text", map[string]any{
			"type": "string", "length": float64(50), "word_count": float64(8), "estimated_tokens": float64(12),
		}},
		{"outputs.chat_history", map[string]any{"type": "list", "length": float64(2)}},
		{"outputs", map[string]any{"type": "dict", "keys": []any{"chat_history", "response"}}},
		{"total_tokens", map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
				"reference_id": "prod:run-1",
				"field_path":   tt.path,
			}))
			require.NoError(t, err)

			got := resultJSON(t, res)
			assert.Equal(t, tt.path, got["field_path"])
			assert.Equal(t, tt.want, got["size_info"])
		})
	}
}

func TestFieldTool_ValueKeepsNumerals(t *testing.T) {
	tool := NewFieldTool(newTestStore(t, memory.DefaultConfig()))

	res, _ := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"reference_id": "prod:run-1",
		"field_path":   "total_tokens",
	}))
	assert.Contains(t, resultText(res), `"value": 1234`)
}

func TestFieldTool_MissingFieldSuggestsKeys(t *testing.T) {
	tool := NewFieldTool(newTestStore(t, memory.DefaultConfig()))

	tests := []struct {
		path       string
		parentPath string
		keys       []any
	}{
		{"outputs.chat_history.7", "outputs.chat_history", []any{"0", "1"}},
		{"outputs.nope", "outputs", []any{"chat_history", "response"}},
		{"nope", "(root)", []any{"inputs", "name", "outputs", "total_tokens"}},
		{"name.first", "name", []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
				"reference_id": "prod:run-1",
				"field_path":   tt.path,
			}))
			require.NoError(t, err)
			assert.False(t, res.IsError)

			got := resultJSON(t, res)
			assert.Equal(t, "Field not found at path: "+tt.path, got["error_message"])
			assert.Equal(t, tt.parentPath, got["parent_path"])
			assert.Equal(t, tt.keys, got["available_keys"])
		})
	}
}

func TestFieldTool_UnknownReference(t *testing.T) {
	tool := NewFieldTool(newTestStore(t, memory.DefaultConfig()))

	res, _ := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"reference_id": "x",
		"field_path":   "name",
	}))
	got := resultJSON(t, res)
	assert.Equal(t, []any{"prod:run-1"}, got["available_runs"])
}

// ─── list_stored_runs ───────────────────────────────────────────────────────

func TestListRunsTool(t *testing.T) {
	store := newTestStore(t, memory.DefaultConfig())
	require.NoError(t, store.Store(t.Context(), "dev:run-0", map[string]any{"a": "b"}, map[string]any{"name": "Other"}))

	res, err := NewListRunsTool(store).Handle(context.Background(), makeReq(nil))
	require.NoError(t, err)

	got := resultJSON(t, res)
	assert.Equal(t, float64(2), got["count"])
	runs := got["runs"].([]any)
	assert.Equal(t, "dev:run-0", runs[0].(map[string]any)["reference_id"])
	assert.Equal(t, map[string]any{"name": "AgentExecutor"}, runs[1].(map[string]any)["summary"])
}

func TestTools_Definitions(t *testing.T) {
	var names []string
	for _, tool := range Tools(newTestStore(t, memory.DefaultConfig())) {
		names = append(names, tool.Definition().Name)
	}
	assert.Equal(t, []string{"search_run_content", "get_run_field", "list_stored_runs"}, names)
}
