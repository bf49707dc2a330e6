package langsmith

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultEndpoint is the LangSmith cloud API.
const DefaultEndpoint = "https://api.smith.langchain.com"

// maxPageSize is the largest page requested from runs/query.
const maxPageSize = 100

// Project is a LangSmith tracing project ("session" in the REST API).
type Project struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Description        *string `json:"description"`
	StartTime          string  `json:"start_time"`
	ReferenceDatasetID *string `json:"reference_dataset_id"`
}

// Run is a single traced run as returned by the REST API.
type Run struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	RunType          string         `json:"run_type"`
	Status           string         `json:"status"`
	StartTime        string         `json:"start_time"`
	EndTime          string         `json:"end_time"`
	Error            *string        `json:"error"`
	ParentRunID      string         `json:"parent_run_id"`
	TraceID          string         `json:"trace_id"`
	Tags             []string       `json:"tags"`
	TotalTokens      int64          `json:"total_tokens"`
	PromptTokens     int64          `json:"prompt_tokens"`
	CompletionTokens int64          `json:"completion_tokens"`
	Inputs           map[string]any `json:"inputs"`
	Outputs          map[string]any `json:"outputs"`
	Extra            map[string]any `json:"extra"`
	Serialized       map[string]any `json:"serialized"`
	AppPath          string         `json:"app_path"`
}

// Metadata returns extra.metadata, where LangSmith keeps run metadata.
func (r *Run) Metadata() map[string]any {
	if m, ok := r.Extra["metadata"].(map[string]any); ok {
		return m
	}
	return nil
}

// RunQuery filters runs/query. Zero values are omitted from the request.
type RunQuery struct {
	SessionIDs []string
	RunType    string
	IsRoot     *bool
	Error      *bool
	StartTime  time.Time
	EndTime    time.Time
	Filter     string
	ParentRun  string
	Limit      int
}

type runQueryBody struct {
	Session   []string `json:"session,omitempty"`
	RunType   string   `json:"run_type,omitempty"`
	IsRoot    *bool    `json:"is_root,omitempty"`
	Error     *bool    `json:"error,omitempty"`
	StartTime string   `json:"start_time,omitempty"`
	EndTime   string   `json:"end_time,omitempty"`
	Filter    string   `json:"filter,omitempty"`
	ParentRun string   `json:"parent_run,omitempty"`
	Limit     int      `json:"limit"`
	Cursor    string   `json:"cursor,omitempty"`
}

type runQueryResponse struct {
	Runs    []Run             `json:"runs"`
	Cursors map[string]string `json:"cursors"`
}

// Client talks to the LangSmith REST API.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a client. An empty endpoint selects DefaultEndpoint.
func NewClient(apiKey, endpoint string, httpClient *http.Client) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// WebURL is the UI host matching the API endpoint, e.g.
// https://api.smith.langchain.com becomes https://smith.langchain.com.
func (c *Client) WebURL() string {
	u := strings.TrimSuffix(c.endpoint, "/api")
	return strings.Replace(u, "://api.", "://", 1)
}

// RunURL links to a run in the LangSmith UI, or "" when the run carries
// no app path.
func (c *Client) RunURL(r *Run) string {
	if r.AppPath == "" {
		return ""
	}
	return c.WebURL() + r.AppPath
}

// ListProjects returns up to limit projects, optionally matching name.
func (c *Client) ListProjects(ctx context.Context, name string, limit int) ([]Project, error) {
	q := url.Values{}
	if name != "" {
		q.Set("name", name)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var projects []Project
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions?"+q.Encode(), nil, &projects); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// ProjectID resolves a project name to its id.
func (c *Client) ProjectID(ctx context.Context, name string) (string, error) {
	projects, err := c.ListProjects(ctx, name, 1)
	if err != nil {
		return "", err
	}
	for _, p := range projects {
		if p.Name == name {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("%w: project %q not found", ErrInvalidInput, name)
}

// QueryRuns follows the cursor until q.Limit runs are collected or the
// results run out.
func (c *Client) QueryRuns(ctx context.Context, q RunQuery) ([]Run, error) {
	body := runQueryBody{
		Session:   q.SessionIDs,
		RunType:   q.RunType,
		IsRoot:    q.IsRoot,
		Error:     q.Error,
		Filter:    q.Filter,
		ParentRun: q.ParentRun,
	}
	if !q.StartTime.IsZero() {
		body.StartTime = q.StartTime.UTC().Format(time.RFC3339Nano)
	}
	if !q.EndTime.IsZero() {
		body.EndTime = q.EndTime.UTC().Format(time.RFC3339Nano)
	}

	runs := []Run{}
	for {
		body.Limit = maxPageSize
		if q.Limit > 0 {
			body.Limit = min(maxPageSize, q.Limit-len(runs))
		}

		var page runQueryResponse
		if err := c.do(ctx, http.MethodPost, "/api/v1/runs/query", body, &page); err != nil {
			return nil, fmt.Errorf("query runs: %w", err)
		}
		runs = append(runs, page.Runs...)

		next := page.Cursors["next"]
		if next == "" || len(page.Runs) == 0 || (q.Limit > 0 && len(runs) >= q.Limit) {
			break
		}
		body.Cursor = next
	}
	if q.Limit > 0 && len(runs) > q.Limit {
		runs = runs[:q.Limit]
	}
	return runs, nil
}

// ReadRun fetches a run by id.
func (c *Client) ReadRun(ctx context.Context, id string) (*Run, error) {
	var r Run
	if err := c.do(ctx, http.MethodGet, "/api/v1/runs/"+url.PathEscape(id), nil, &r); err != nil {
		return nil, fmt.Errorf("read run %s: %w", id, err)
	}
	return &r, nil
}

// StatusError is a non-2xx API response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p, _, _ := strings.Cut(path, "?")
		return &StatusError{Method: method, Path: p, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
