package memtools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Coykto/debug-mcp/internal/memory"
	"github.com/Coykto/debug-mcp/internal/tools"
)

// Search methods reported by search_run_content.
const (
	MethodSemantic = "semantic_similarity"
	MethodKeyword  = "keyword"
)

// SearchTool handles the search_run_content MCP tool.
type SearchTool struct {
	store *memory.Store
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(store *memory.Store) *SearchTool {
	return &SearchTool{store: store}
}

// Definition returns the MCP tool definition for search_run_content.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("search_run_content",
		mcp.WithDescription(
			"Search within a previously fetched LangSmith run's content. Semantic similarity is used "+
				"when embeddings are available, keyword matching otherwise.",
		),
		mcp.WithString("reference_id",
			mcp.Required(),
			mcp.Description("The reference_id returned by get_langsmith_run_details()"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What to search for (text, keywords, or semantic queries)"),
		),
		mcp.WithString("search_type",
			mcp.Description("Search method: 'auto' (semantic, default), 'keyword' (exact), 'similar' (explicit semantic)"),
			mcp.DefaultString("auto"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of matching chunks to return (default: 5)"),
			mcp.DefaultNumber(5),
		),
	)
}

// Handle processes the search_run_content tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := tools.RequireString(req, "reference_id")
	if err != nil {
		return tools.ErrorResult("search_run_content", err), nil
	}
	query := req.GetString("query", "")
	if query == "" {
		return tools.ErrorResult("search_run_content", errMissing("query")), nil
	}
	limit := tools.IntArg(req, "max_results", 5)

	if _, ok := t.store.Get(ref); !ok {
		return notStored(t.store, ref), nil
	}

	var (
		results any
		count   int
		method  string
	)
	switch req.GetString("search_type", "auto") {
	case "similar":
		hits := t.store.SearchSimilar(ctx, ref, query, limit)
		results, count, method = nonNil(hits), len(hits), MethodSemantic
	case "keyword":
		hits := t.store.SearchKeyword(ctx, ref, query, limit)
		results, count, method = nonNil(hits), len(hits), MethodKeyword
	default:
		if hits := t.store.SearchSimilar(ctx, ref, query, limit); len(hits) > 0 {
			results, count, method = hits, len(hits), MethodSemantic
		} else {
			kw := t.store.SearchKeyword(ctx, ref, query, limit)
			results, count, method = nonNil(kw), len(kw), MethodKeyword
		}
	}

	return tools.JSONResult(map[string]any{
		"reference_id":  ref,
		"query":         query,
		"search_method": method,
		"results":       results,
		"result_count":  count,
		"tip":           "Use get_run_field(reference_id, path) to get the full content at a specific path",
	}), nil
}

// nonNil keeps empty results encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
