// Package langsmith reads traces from LangSmith: projects, runs, run
// details with children, and a bounded content search over recent
// conversations. Credentials are resolved per environment.
package langsmith

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidInput marks caller mistakes detected before any API call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotConfigured means no API key could be found for an environment.
	ErrNotConfigured = errors.New("LangSmith API key not configured")
)

// Search limits.
const (
	childRunLimit       = 100
	searchContextRadius = 50
	maxSearchSnippet    = 150
)

// ─── Service ────────────────────────────────────────────────────────────────

// Service hands out one Debugger per environment. Only successfully
// configured debuggers are cached.
type Service struct {
	resolver   *Resolver
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time

	mu        sync.Mutex
	debuggers map[string]*Debugger
}

type ServiceOption func(*Service)

func WithHTTPClient(c *http.Client) ServiceOption {
	return func(s *Service) { s.httpClient = c }
}

func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now for search windows.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(resolver *Resolver, opts ...ServiceOption) *Service {
	s := &Service{
		resolver:  resolver,
		logger:    zap.NewNop(),
		now:       time.Now,
		debuggers: make(map[string]*Debugger),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.Named("langsmith")
	return s
}

// Debugger returns the debugger for environment, resolving credentials on
// first use.
func (s *Service) Debugger(ctx context.Context, environment string) (*Debugger, error) {
	env := strings.ToLower(strings.TrimSpace(environment))
	if env == "" {
		return nil, fmt.Errorf("%w: environment is required", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.debuggers[env]; ok {
		return d, nil
	}

	creds := s.resolver.Resolve(ctx, env)
	if creds.APIKey == "" {
		return nil, fmt.Errorf("%w for environment %q. Set LANGCHAIN_API_KEY, store it in AWS Secrets Manager for the environment, or add it to .env for local", ErrNotConfigured, env)
	}

	d := &Debugger{
		client:         NewClient(creds.APIKey, creds.Endpoint, s.httpClient),
		defaultProject: creds.Project,
		logger:         s.logger.With(zap.String("environment", env)),
		now:            s.now,
	}
	s.debuggers[env] = d
	s.logger.Debug("langsmith client configured", zap.String("environment", env), zap.String("endpoint", d.client.endpoint))
	return d, nil
}

// ─── Debugger ───────────────────────────────────────────────────────────────

// Debugger runs queries against one LangSmith workspace.
type Debugger struct {
	client         *Client
	defaultProject string
	logger         *zap.Logger
	now            func() time.Time
}

// DefaultProject is the project configured alongside the credentials.
func (d *Debugger) DefaultProject() string { return d.defaultProject }

func (d *Debugger) project(name string) (string, error) {
	if name != "" {
		return name, nil
	}
	if d.defaultProject != "" {
		return d.defaultProject, nil
	}
	return "", fmt.Errorf("%w: project_name required. Pass it or configure LANGCHAIN_PROJECT", ErrInvalidInput)
}

// ListProjects returns project metadata.
func (d *Debugger) ListProjects(ctx context.Context, limit int) ([]map[string]any, error) {
	projects, err := d.client.ListProjects(ctx, "", limit)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(projects))
	for _, p := range projects {
		out = append(out, map[string]any{
			"name":                 p.Name,
			"id":                   p.ID,
			"created_at":           isoOrNil(p.StartTime),
			"description":          p.Description,
			"reference_dataset_id": p.ReferenceDatasetID,
		})
	}
	return out, nil
}

// ListParams filters ListRuns.
type ListParams struct {
	Project   string
	RunType   string
	IsRoot    *bool
	Error     *bool
	StartTime time.Time
	EndTime   time.Time
	Filter    string
	Limit     int
}

// ListRuns returns serialized runs of a project.
func (d *Debugger) ListRuns(ctx context.Context, p ListParams) ([]map[string]any, error) {
	runs, err := d.queryProject(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(runs))
	for i := range runs {
		out = append(out, d.client.Serialize(&runs[i], false))
	}
	return out, nil
}

func (d *Debugger) queryProject(ctx context.Context, p ListParams) ([]Run, error) {
	name, err := d.project(p.Project)
	if err != nil {
		return nil, err
	}
	id, err := d.client.ProjectID(ctx, name)
	if err != nil {
		return nil, err
	}
	return d.client.QueryRuns(ctx, RunQuery{
		SessionIDs: []string{id},
		RunType:    p.RunType,
		IsRoot:     p.IsRoot,
		Error:      p.Error,
		StartTime:  p.StartTime,
		EndTime:    p.EndTime,
		Filter:     p.Filter,
		Limit:      p.Limit,
	})
}

// ValidateRunID rejects ids that are not UUIDs.
func ValidateRunID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: run_id %q is not a UUID", ErrInvalidInput, id)
	}
	return nil
}

// GetRunDetails returns the full run, and its direct children when asked.
func (d *Debugger) GetRunDetails(ctx context.Context, runID string, includeChildren bool) (map[string]any, error) {
	if err := ValidateRunID(runID); err != nil {
		return nil, err
	}
	run, err := d.client.ReadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	details := d.client.Serialize(run, true)

	if includeChildren {
		children, err := d.client.QueryRuns(ctx, RunQuery{ParentRun: runID, Limit: childRunLimit})
		if err != nil {
			return nil, fmt.Errorf("children of run %s: %w", runID, err)
		}
		serialized := make([]map[string]any, 0, len(children))
		for i := range children {
			serialized = append(serialized, d.client.Serialize(&children[i], true))
		}
		details["children"] = serialized
	}
	return details, nil
}

// ─── Content search ─────────────────────────────────────────────────────────

// FindParams bounds FindConversations.
type FindParams struct {
	SearchText      string
	Project         string
	HoursBack       int
	Limit           int
	IncludeChildren bool
}

// Match is a run whose content contains the search text.
type Match struct {
	RunID          string  `json:"run_id"`
	RunName        string  `json:"run_name"`
	Matched        bool    `json:"matched"`
	MatchLocation  string  `json:"match_location"`
	ContextSnippet string  `json:"context_snippet"`
	StartTime      any     `json:"start_time"`
	Link           *string `json:"link"`
}

// FindConversations searches the root runs of the last HoursBack hours for
// SearchText, case-insensitively. Each run is searched in its inputs,
// then its outputs, then (optionally) its direct children.
func (d *Debugger) FindConversations(ctx context.Context, p FindParams) ([]Match, error) {
	if strings.TrimSpace(p.SearchText) == "" {
		return nil, fmt.Errorf("%w: search_text is required", ErrInvalidInput)
	}
	end := d.now().UTC()
	root := true
	runs, err := d.queryProject(ctx, ListParams{
		Project:   p.Project,
		IsRoot:    &root,
		StartTime: end.Add(-time.Duration(p.HoursBack) * time.Hour),
		EndTime:   end,
		Limit:     p.Limit,
	})
	if err != nil {
		return nil, err
	}

	needle := foldRunes(p.SearchText)
	matches := []Match{}
	for i := range runs {
		run := &runs[i]
		loc, snippet, ok, err := d.searchRun(ctx, run, needle, p.IncludeChildren)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		m := Match{
			RunID:          run.ID,
			RunName:        run.Name,
			Matched:        true,
			MatchLocation:  loc,
			ContextSnippet: snippet,
			StartTime:      isoOrNil(run.StartTime),
		}
		if link := d.client.RunURL(run); link != "" {
			m.Link = &link
		}
		matches = append(matches, m)
	}
	d.logger.Debug("conversation search finished",
		zap.Int("runs_searched", len(runs)), zap.Int("matches", len(matches)))
	return matches, nil
}

func (d *Debugger) searchRun(ctx context.Context, run *Run, needle []rune, children bool) (string, string, bool, error) {
	if snippet, ok := searchValue(run.Inputs, needle); ok {
		return "inputs", snippet, true, nil
	}
	if snippet, ok := searchValue(run.Outputs, needle); ok {
		return "outputs", snippet, true, nil
	}
	if !children {
		return "", "", false, nil
	}

	kids, err := d.client.QueryRuns(ctx, RunQuery{ParentRun: run.ID, Limit: childRunLimit})
	if err != nil {
		return "", "", false, fmt.Errorf("children of run %s: %w", run.ID, err)
	}
	for i := range kids {
		loc, snippet, ok, _ := d.searchRun(ctx, &kids[i], needle, false)
		if ok {
			return "child:" + kids[i].Name + ":" + loc, snippet, true, nil
		}
	}
	return "", "", false, nil
}

// searchValue finds the first string under v containing needle. Map keys
// are visited in sorted order.
func searchValue(v any, needle []rune) (string, bool) {
	switch t := v.(type) {
	case string:
		return snippetAround(t, needle)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := searchValue(t[k], needle); ok {
				return s, true
			}
		}
	case []any:
		for _, item := range t {
			if s, ok := searchValue(item, needle); ok {
				return s, true
			}
		}
	}
	return "", false
}

func snippetAround(text string, needle []rune) (string, bool) {
	runes := []rune(text)
	pos := indexRunes(foldRunes(text), needle)
	if pos < 0 {
		return "", false
	}
	start := max(0, pos-searchContextRadius)
	end := min(len(runes), pos+len(needle)+searchContextRadius)

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet += "..."
	}
	if r := []rune(snippet); len(r) > maxSearchSnippet {
		snippet = string(r[:maxSearchSnippet])
	}
	return snippet, true
}

func foldRunes(s string) []rune {
	r := []rune(s)
	for i, c := range r {
		r[i] = unicode.ToLower(c)
	}
	return r
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return 0
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, c := range needle {
			if haystack[i+j] != c {
				continue outer
			}
		}
		return i
	}
	return -1
}
