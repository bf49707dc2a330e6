package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Coykto/debug-mcp/internal/cloudwatch"
	"github.com/Coykto/debug-mcp/internal/config"
	"github.com/Coykto/debug-mcp/internal/jira"
	"github.com/Coykto/debug-mcp/internal/memory"
	"github.com/Coykto/debug-mcp/internal/stepfunctions"
	"github.com/Coykto/debug-mcp/internal/tools"
	"github.com/Coykto/debug-mcp/internal/upstream"
)

// allServices builds every backend without touching the network; no
// handler is invoked by these tests.
func allServices(t *testing.T) Services {
	t.Helper()
	store, err := memory.New(memory.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return Services{
		Logs: cloudwatch.New(nil),
		SFN:  stepfunctions.NewDebugger(nil, "us-east-1"),
		Runs: func(context.Context, string) (tools.RunsService, error) {
			return nil, nil
		},
		Tickets:  jira.NewWithService(nil, "", nil),
		Upstream: upstream.New("uvx", "", "us-east-1"),
		Store:    store,
	}
}

func TestNewRegistry_Filters(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		want   []string
	}{
		{"default set", "", config.DefaultTools},
		{"custom list", " get_jira_ticket, ,list_stored_runs ", []string{"get_jira_ticket", "list_stored_runs"}},
		{"unknown names are ignored", "nope", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry(config.ParseToolFilter(tt.filter), allServices(t), nil)
			assert.ElementsMatch(t, tt.want, reg.Names())
		})
	}
}

func TestNewRegistry_AllTools(t *testing.T) {
	reg := NewRegistry(config.ParseToolFilter("all"), allServices(t), nil)
	assert.Equal(t, 20, reg.Len())

	byCategory := map[string]int{}
	for _, info := range reg.List("") {
		byCategory[info.Category]++
	}
	assert.Equal(t, map[string]int{
		"cloudwatch":    5,
		"stepfunctions": 5,
		"langsmith":     7,
		"jira":          2,
		"upstream":      1,
	}, byCategory)
}

func TestNewRegistry_MissingBackendsStayHidden(t *testing.T) {
	svc := allServices(t)
	svc.Logs, svc.SFN, svc.Upstream, svc.Runs = nil, nil, nil, nil

	reg := NewRegistry(config.ParseToolFilter("all"), svc, nil)
	assert.ElementsMatch(t, []string{"get_jira_ticket", "search_jira_tickets"}, reg.Names())
}

func TestNewMCPServer_Exposure(t *testing.T) {
	reg := NewRegistry(config.ParseToolFilter(""), allServices(t), nil)

	meta := NewMCPServer(reg, nil, false).ListTools()
	assert.Len(t, meta, 1)
	assert.Contains(t, meta, "debug")

	direct := NewMCPServer(reg, nil, true).ListTools()
	assert.Len(t, direct, 11)
	assert.Contains(t, direct, "search_step_function_executions")
}

func TestBuild_GatesOnCredentials(t *testing.T) {
	cfg := &config.Config{Expose: config.ExposeMeta, Tools: "all"}

	app, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	assert.Zero(t, app.Registry.Len())
	assert.NotNil(t, app.Store)

	cfg.AWS = config.AWSConfig{Region: "eu-west-1", AccessKeyID: "AKID", SecretAccessKey: "secret"}
	app, err = Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	names := app.Registry.Names()
	assert.Contains(t, names, "analyze_log_group")
	assert.Contains(t, names, "call_upstream_tool")
	assert.Contains(t, names, "get_langsmith_run_details", "Secrets Manager can supply LangSmith keys")
	assert.NotContains(t, names, "get_jira_ticket")
}

func TestHTTPHandler(t *testing.T) {
	cfg := &config.Config{Expose: config.ExposeMeta}
	app, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	require.NoError(t, app.Store.Store(context.Background(), "prod:run-1",
		map[string]any{"name": "AgentExecutor"}, map[string]any{"name": "AgentExecutor"}))

	srv := httptest.NewServer(NewHTTPHandler(app))
	t.Cleanup(srv.Close)

	getJSON := func(path string) map[string]any {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	health := getJSON("/healthz")
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, Version, health["version"])

	runs := getJSON("/runs")
	assert.Equal(t, float64(1), runs["count"])
	assert.Equal(t, "prod:run-1", runs["runs"].([]any)[0].(map[string]any)["reference_id"])
}

func TestHTTPHandler_MCPInitialize(t *testing.T) {
	app, err := Build(context.Background(), &config.Config{Expose: config.ExposeMeta}, nil)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	srv := httptest.NewServer(NewHTTPHandler(app))
	t.Cleanup(srv.Close)

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"debug-mcp"`)
}

func TestServerInstructions_NameTheMetaTool(t *testing.T) {
	text := serverInstructions()
	assert.Contains(t, text, `debug(tool="list")`)
	assert.Contains(t, text, "reference_id")
}
