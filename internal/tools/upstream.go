package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Coykto/debug-mcp/internal/upstream"
)

// UpstreamCaller runs one tool on an upstream MCP server.
type UpstreamCaller interface {
	Call(ctx context.Context, server, tool string, args map[string]any) (any, error)
}

// UpstreamTool handles the call_upstream_tool MCP tool.
type UpstreamTool struct {
	proxy UpstreamCaller
}

// NewUpstreamTool creates an UpstreamTool.
func NewUpstreamTool(proxy UpstreamCaller) *UpstreamTool {
	return &UpstreamTool{proxy: proxy}
}

// Definition returns the MCP tool definition for call_upstream_tool.
func (t *UpstreamTool) Definition() mcp.Tool {
	servers := strings.Join(upstream.ServerNames(), ", ")
	return mcp.NewTool("call_upstream_tool",
		mcp.WithDescription(
			"Call a tool on an AWS-published MCP server ("+servers+"). "+
				"The server is started for the call and stopped afterwards.",
		),
		mcp.WithString("server",
			mcp.Required(),
			mcp.Description("Upstream server: "+servers),
			mcp.Enum(upstream.ServerNames()...),
		),
		mcp.WithString("tool", mcp.Required(), mcp.Description("Tool name on the upstream server")),
		mcp.WithObject("arguments", mcp.Description("Arguments passed to the upstream tool")),
	)
}

// Handle processes the call_upstream_tool tool call.
func (t *UpstreamTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	server, err := RequireString(req, "server")
	if err != nil {
		return ErrorResult("call_upstream_tool", err), nil
	}
	tool, err := RequireString(req, "tool")
	if err != nil {
		return ErrorResult("call_upstream_tool", err), nil
	}
	args, err := ObjectArg(req, "arguments")
	if err != nil {
		return ErrorResult("call_upstream_tool", err), nil
	}

	res, err := t.proxy.Call(ctx, server, tool, args)
	if err != nil {
		return ErrorResult("call_upstream_tool", err), nil
	}
	return JSONResult(map[string]any{"server": server, "tool": tool, "result": res}), nil
}
