// Package jira reads Jira Cloud tickets: full ticket details including
// links, subtasks and epic children, and summary search over JQL.
package jira

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gojira "github.com/andygrunwald/go-jira"
	"go.uber.org/zap"

	"github.com/Coykto/debug-mcp/internal/lookup"
)

// ErrInvalidInput marks caller mistakes detected before any API call.
var ErrInvalidInput = errors.New("invalid input")

const (
	epicChildLimit     = 50
	DefaultSearchLimit = 10
	timeLayout         = "2006-01-02T15:04:05.000-0700"
)

var (
	detailFields = "key,summary,description,status,issuetype,priority,assignee,reporter,labels,created,updated,issuelinks,attachment,parent,subtasks"
	childFields  = []string{"key", "summary", "status"}
	searchFields = []string{"key", "summary", "status", "assignee", "priority", "issuetype", "created", "updated"}
)

// IssueService is the subset of go-jira's issue service used here.
type IssueService interface {
	GetWithContext(ctx context.Context, issueID string, options *gojira.GetQueryOptions) (*gojira.Issue, *gojira.Response, error)
	SearchWithContext(ctx context.Context, jql string, options *gojira.SearchOptions) ([]gojira.Issue, *gojira.Response, error)
}

// Config holds Jira Cloud credentials.
type Config struct {
	Host     string // e.g. acme.atlassian.net, without scheme
	Email    string
	APIToken string
	Project  string
}

// Client serves ticket lookups and searches.
type Client struct {
	issues  IssueService
	project string
	logger  *zap.Logger
}

// New connects to https://{Host} with basic auth.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	var missing []string
	if cfg.Host == "" {
		missing = append(missing, "JIRA_HOST")
	}
	if cfg.Email == "" {
		missing = append(missing, "JIRA_EMAIL")
	}
	if cfg.APIToken == "" {
		missing = append(missing, "JIRA_API_TOKEN")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("jira credentials not configured, missing: %s", strings.Join(missing, ", "))
	}

	tp := gojira.BasicAuthTransport{Username: cfg.Email, Password: cfg.APIToken}
	httpClient := tp.Client()
	httpClient.Timeout = 30 * time.Second

	base := cfg.Host
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	c, err := gojira.NewClient(httpClient, base)
	if err != nil {
		return nil, fmt.Errorf("create jira client for %s: %w", cfg.Host, err)
	}
	return NewWithService(c.Issue, cfg.Project, logger), nil
}

// NewWithService wraps an existing issue service.
func NewWithService(issues IssueService, project string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{issues: issues, project: project, logger: logger.Named("jira")}
}

// ─── Errors ─────────────────────────────────────────────────────────────────

// APIError is a failed Jira call with a caller-facing message.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string { return e.Message }
func (e *APIError) Unwrap() error { return e.Err }

func statusOf(resp *gojira.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}

func issueError(key string, resp *gojira.Response, err error) error {
	status := statusOf(resp)
	switch {
	case status == http.StatusNotFound || strings.Contains(strings.ToLower(err.Error()), "does not exist"):
		return &APIError{StatusCode: status, Message: fmt.Sprintf("Issue %s not found", key), Err: err}
	case status == http.StatusForbidden:
		return &APIError{StatusCode: status, Message: fmt.Sprintf("Permission denied: Cannot access issue %s", key), Err: err}
	}
	return &APIError{StatusCode: status, Message: "Jira API error: " + err.Error(), Err: err}
}

// ─── Ticket details ─────────────────────────────────────────────────────────

// IssueRef is a related issue.
type IssueRef struct {
	Key     string `json:"key"`
	Summary string `json:"summary"`
	Status  string `json:"status,omitempty"`
	Type    string `json:"type,omitempty"`
}

// Ticket is the full view of one issue.
type Ticket struct {
	Key          string     `json:"key"`
	Summary      string     `json:"summary"`
	Description  *string    `json:"description"`
	Status       string     `json:"status"`
	IssueType    string     `json:"issue_type"`
	Priority     *string    `json:"priority"`
	Assignee     *string    `json:"assignee"`
	Reporter     *string    `json:"reporter"`
	Labels       []string   `json:"labels"`
	Created      string     `json:"created"`
	Updated      string     `json:"updated"`
	LinkedIssues []IssueRef `json:"linked_issues"`
	Attachments  []string   `json:"attachments"`
	Parent       *IssueRef  `json:"parent"`
	Subtasks     []IssueRef `json:"subtasks"`
	EpicChildren []IssueRef `json:"epic_children"`
}

// GetTicket returns the details of issueKey. For epics the child issues
// are looked up leniently; a failed lookup leaves EpicChildren empty.
func (c *Client) GetTicket(ctx context.Context, issueKey string) (*Ticket, error) {
	issueKey = strings.TrimSpace(issueKey)
	if issueKey == "" {
		return nil, fmt.Errorf("%w: issue_key is required", ErrInvalidInput)
	}

	issue, resp, err := c.issues.GetWithContext(ctx, issueKey, &gojira.GetQueryOptions{Fields: detailFields})
	if err != nil {
		return nil, issueError(issueKey, resp, err)
	}
	f := issue.Fields
	if f == nil {
		f = &gojira.IssueFields{}
	}

	t := &Ticket{
		Key:          issue.Key,
		Summary:      f.Summary,
		Status:       statusName(f.Status),
		IssueType:    f.Type.Name,
		Labels:       append([]string{}, f.Labels...),
		Created:      formatTime(f.Created),
		Updated:      formatTime(f.Updated),
		LinkedIssues: []IssueRef{},
		Attachments:  []string{},
		Subtasks:     []IssueRef{},
		EpicChildren: []IssueRef{},
	}
	if f.Description != "" {
		t.Description = &f.Description
	}
	if f.Priority != nil {
		t.Priority = &f.Priority.Name
	}
	t.Assignee = userName(f.Assignee)
	t.Reporter = userName(f.Reporter)

	for _, l := range f.IssueLinks {
		if l == nil {
			continue
		}
		switch {
		case l.OutwardIssue != nil:
			t.LinkedIssues = append(t.LinkedIssues, IssueRef{Key: l.OutwardIssue.Key, Type: l.Type.Outward, Summary: summaryOf(l.OutwardIssue)})
		case l.InwardIssue != nil:
			t.LinkedIssues = append(t.LinkedIssues, IssueRef{Key: l.InwardIssue.Key, Type: l.Type.Inward, Summary: summaryOf(l.InwardIssue)})
		}
	}
	for _, a := range f.Attachments {
		if a != nil {
			t.Attachments = append(t.Attachments, a.Filename)
		}
	}
	for _, s := range f.Subtasks {
		if s != nil {
			t.Subtasks = append(t.Subtasks, IssueRef{Key: s.Key, Summary: s.Fields.Summary, Status: statusName(s.Fields.Status)})
		}
	}
	if f.Parent != nil && f.Parent.Key != "" {
		t.Parent = &IssueRef{Key: f.Parent.Key}
		res := c.parentSummary(ctx, f.Parent.Key)
		lookup.Report(ctx, c.logger, "jira_parent_summary", res, zap.String("issue", issueKey))
		t.Parent.Summary = res.OrZero()
	}
	if strings.EqualFold(t.IssueType, "epic") {
		res := c.epicChildren(ctx, issue.Key)
		lookup.Report(ctx, c.logger, "jira_epic_children", res, zap.String("issue", issueKey))
		if res.OK() {
			t.EpicChildren = res.Value
		}
	}
	return t, nil
}

// parentSummary fetches the summary go-jira does not decode for parents.
func (c *Client) parentSummary(ctx context.Context, key string) lookup.Result[string] {
	p, _, err := c.issues.GetWithContext(ctx, key, &gojira.GetQueryOptions{Fields: "summary"})
	if err != nil {
		return lookup.Fail[string](fmt.Errorf("get parent %s: %w", key, err))
	}
	if s := summaryOf(p); s != "" {
		return lookup.FoundValue(s)
	}
	return lookup.None[string]()
}

// epicChildren tries the parent relation first and the legacy Epic Link
// field second.
func (c *Client) epicChildren(ctx context.Context, key string) lookup.Result[[]IssueRef] {
	var errs []error
	for _, jql := range []string{
		fmt.Sprintf(`parent = "%s" ORDER BY created ASC`, key),
		fmt.Sprintf(`"Epic Link" = "%s" ORDER BY created ASC`, key),
	} {
		issues, _, err := c.issues.SearchWithContext(ctx, jql, &gojira.SearchOptions{MaxResults: epicChildLimit, Fields: childFields})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(issues) == 0 {
			return lookup.None[[]IssueRef]()
		}
		children := make([]IssueRef, 0, len(issues))
		for i := range issues {
			children = append(children, IssueRef{
				Key:     issues[i].Key,
				Summary: summaryOf(&issues[i]),
				Status:  statusName(fieldsOf(&issues[i]).Status),
			})
		}
		return lookup.FoundValue(children)
	}
	return lookup.Fail[[]IssueRef](fmt.Errorf("epic children of %s: %w", key, errors.Join(errs...)))
}

// ─── Search ─────────────────────────────────────────────────────────────────

// SearchParams are ANDed together; at least one must be set.
type SearchParams struct {
	Query     string
	IssueType string
	Status    string
	Assignee  string
	Limit     int
}

// TicketSummary is one search hit.
type TicketSummary struct {
	Key       string  `json:"key"`
	Summary   string  `json:"summary"`
	Status    string  `json:"status"`
	Assignee  *string `json:"assignee"`
	Priority  *string `json:"priority"`
	IssueType string  `json:"issue_type"`
	Created   string  `json:"created"`
	Updated   string  `json:"updated"`
}

// SearchResult holds the hits of a search.
type SearchResult struct {
	Total   int             `json:"total"`
	Results []TicketSummary `json:"results"`
}

// BuildJQL renders the search as JQL, scoped to project when set.
func BuildJQL(project string, p SearchParams) (string, error) {
	if p.Query == "" && p.IssueType == "" && p.Status == "" && p.Assignee == "" {
		return "", fmt.Errorf("%w: at least one search parameter is required (query, issue_type, status, or assignee)", ErrInvalidInput)
	}
	var parts []string
	add := func(format, v string) {
		if v != "" {
			parts = append(parts, fmt.Sprintf(format, quote(v)))
		}
	}
	add("project = %s", project)
	add("summary ~ %s", p.Query)
	add("issuetype = %s", p.IssueType)
	add("status = %s", p.Status)
	add("assignee = %s", p.Assignee)
	return strings.Join(parts, " AND ") + " ORDER BY updated DESC", nil
}

// quote makes v a JQL string literal.
func quote(v string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) + `"`
}

// Search runs a summary search.
func (c *Client) Search(ctx context.Context, p SearchParams) (*SearchResult, error) {
	jql, err := BuildJQL(c.project, p)
	if err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = DefaultSearchLimit
	}

	issues, resp, err := c.issues.SearchWithContext(ctx, jql, &gojira.SearchOptions{MaxResults: p.Limit, Fields: searchFields})
	if err != nil {
		return nil, &APIError{StatusCode: statusOf(resp), Message: "Jira API error: " + err.Error(), Err: err}
	}
	c.logger.Debug("jira search", zap.String("jql", jql), zap.Int("hits", len(issues)))

	out := &SearchResult{Results: make([]TicketSummary, 0, len(issues))}
	for i := range issues {
		f := fieldsOf(&issues[i])
		s := TicketSummary{
			Key:       issues[i].Key,
			Summary:   f.Summary,
			Status:    statusName(f.Status),
			Assignee:  userName(f.Assignee),
			IssueType: f.Type.Name,
			Created:   formatTime(f.Created),
			Updated:   formatTime(f.Updated),
		}
		if f.Priority != nil {
			s.Priority = &f.Priority.Name
		}
		out.Results = append(out.Results, s)
	}
	out.Total = len(out.Results)
	return out, nil
}

// ─── Field helpers ──────────────────────────────────────────────────────────

func fieldsOf(i *gojira.Issue) *gojira.IssueFields {
	if i == nil || i.Fields == nil {
		return &gojira.IssueFields{}
	}
	return i.Fields
}

func summaryOf(i *gojira.Issue) string { return fieldsOf(i).Summary }

func statusName(s *gojira.Status) string {
	if s == nil {
		return ""
	}
	return s.Name
}

func userName(u *gojira.User) *string {
	if u == nil {
		return nil
	}
	name := u.DisplayName
	if name == "" {
		name = u.Name
	}
	return &name
}

func formatTime(t gojira.Time) string {
	tt := time.Time(t)
	if tt.IsZero() {
		return ""
	}
	return tt.Format(timeLayout)
}
