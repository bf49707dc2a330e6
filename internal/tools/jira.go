package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Coykto/debug-mcp/internal/jira"
)

// TicketService is the Jira surface used by the jira tools.
type TicketService interface {
	GetTicket(ctx context.Context, issueKey string) (*jira.Ticket, error)
	Search(ctx context.Context, p jira.SearchParams) (*jira.SearchResult, error)
}

// JiraTools returns the jira tools backed by tickets.
func JiraTools(tickets TicketService) []Tool {
	return []Tool{NewGetTicketTool(tickets), NewSearchTicketsTool(tickets)}
}

// GetTicketTool handles the get_jira_ticket MCP tool.
type GetTicketTool struct {
	tickets TicketService
}

// NewGetTicketTool creates a GetTicketTool.
func NewGetTicketTool(tickets TicketService) *GetTicketTool {
	return &GetTicketTool{tickets: tickets}
}

// Definition returns the MCP tool definition for get_jira_ticket.
func (t *GetTicketTool) Definition() mcp.Tool {
	return mcp.NewTool("get_jira_ticket",
		mcp.WithDescription(
			"Get full details of a Jira ticket by issue key, including links, "+
				"attachments, parent, subtasks and epic children",
		),
		mcp.WithString("issue_key", mcp.Required(), mcp.Description("The Jira issue key (e.g., OPS-123)")),
	)
}

// Handle processes the get_jira_ticket tool call.
func (t *GetTicketTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := RequireString(req, "issue_key")
	if err != nil {
		return ErrorResult("get_jira_ticket", err), nil
	}
	ticket, err := t.tickets.GetTicket(ctx, key)
	if err != nil {
		return ErrorResult("get_jira_ticket", err), nil
	}
	return JSONResult(ticket), nil
}

// SearchTicketsTool handles the search_jira_tickets MCP tool.
type SearchTicketsTool struct {
	tickets TicketService
}

// NewSearchTicketsTool creates a SearchTicketsTool.
func NewSearchTicketsTool(tickets TicketService) *SearchTicketsTool {
	return &SearchTicketsTool{tickets: tickets}
}

// Definition returns the MCP tool definition for search_jira_tickets.
func (t *SearchTicketsTool) Definition() mcp.Tool {
	return mcp.NewTool("search_jira_tickets",
		mcp.WithDescription("Search for Jira tickets with filters and text search. At least one filter is required."),
		mcp.WithString("query",
			mcp.Description("Text to search for in ticket summaries"),
			mcp.DefaultString(""),
		),
		mcp.WithString("issue_type",
			mcp.Description("Filter by issue type (e.g., Bug, Story, Task, Epic)"),
			mcp.DefaultString(""),
		),
		mcp.WithString("status",
			mcp.Description("Filter by status (e.g., To Do, In Progress, Done)"),
			mcp.DefaultString(""),
		),
		mcp.WithString("assignee",
			mcp.Description("Filter by assignee (username or display name)"),
			mcp.DefaultString(""),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results to return (default: 10)"),
			mcp.DefaultNumber(jira.DefaultSearchLimit),
		),
	)
}

// Handle processes the search_jira_tickets tool call.
func (t *SearchTicketsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.tickets.Search(ctx, jira.SearchParams{
		Query:     StringArg(req, "query"),
		IssueType: StringArg(req, "issue_type"),
		Status:    StringArg(req, "status"),
		Assignee:  StringArg(req, "assignee"),
		Limit:     IntArg(req, "limit", jira.DefaultSearchLimit),
	})
	if err != nil {
		return ErrorResult("search_jira_tickets", err), nil
	}
	return JSONResult(res), nil
}
