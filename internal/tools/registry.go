package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrUnknownTool is returned by Execute for a name that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Tool is an MCP tool handler.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Category groups tools for discovery.
type Category struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Categories are the tool groups, in listing order.
var Categories = []Category{
	{Name: "cloudwatch", Description: "CloudWatch Logs tools for querying and analyzing AWS logs"},
	{Name: "stepfunctions", Description: "Step Functions tools for debugging state machine executions"},
	{Name: "langsmith", Description: "LangSmith tools for tracing and debugging LLM applications"},
	{Name: "jira", Description: "Jira tools for searching and viewing tickets"},
	{Name: "upstream", Description: "Passthrough to AWS-published MCP servers"},
}

// ToolInfo is the discovery view of a registered tool.
type ToolInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Parameters  []ParamInfo `json:"parameters"`
}

// ParamInfo describes one tool argument.
type ParamInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
}

type entry struct {
	tool     Tool
	def      mcp.Tool
	category string
}

// Registry maps tool names to handlers and their category. It is filled
// once at startup and read-only afterwards.
type Registry struct {
	tools map[string]entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

// Register adds t under category. A later registration with the same name
// replaces the earlier one.
func (r *Registry) Register(category string, t Tool) {
	def := t.Definition()
	r.tools[def.Name] = entry{tool: t, def: def, category: category}
}

// Names lists registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len reports how many tools are registered.
func (r *Registry) Len() int { return len(r.tools) }

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	e, ok := r.tools[name]
	return e.tool, ok
}

// CategoryNames lists every known category name, registered tools or not.
func (r *Registry) CategoryNames() []string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = c.Name
	}
	return names
}

// List returns the tools of category, or every tool when category is "",
// sorted by category then name.
func (r *Registry) List(category string) []ToolInfo {
	var out []ToolInfo
	for _, e := range r.tools {
		if category != "" && e.category != category {
			continue
		}
		out = append(out, ToolInfo{
			Name:        e.def.Name,
			Description: e.def.Description,
			Category:    e.category,
			Parameters:  parameters(e.def),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Execute runs the named tool with args.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	e, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return e.tool.Handle(ctx, req)
}

// parameters reads the argument list back out of a tool's input schema.
func parameters(def mcp.Tool) []ParamInfo {
	required := make(map[string]bool, len(def.InputSchema.Required))
	for _, n := range def.InputSchema.Required {
		required[n] = true
	}

	names := make([]string, 0, len(def.InputSchema.Properties))
	for n := range def.InputSchema.Properties {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if required[names[i]] != required[names[j]] {
			return required[names[i]]
		}
		return names[i] < names[j]
	})

	out := make([]ParamInfo, 0, len(names))
	for _, n := range names {
		p := ParamInfo{Name: n, Required: required[n]}
		if prop, ok := def.InputSchema.Properties[n].(map[string]any); ok {
			p.Type, _ = prop["type"].(string)
			p.Description, _ = prop["description"].(string)
			p.Default = prop["default"]
		}
		out = append(out, p)
	}
	return out
}
