// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates the concrete AWS, LangSmith,
// Jira and upstream clients and injects them into the tools that depend on
// the narrow interfaces of package tools. Only wiring lives here.
package server

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/Coykto/debug-mcp/internal/awsclient"
	"github.com/Coykto/debug-mcp/internal/cloudwatch"
	"github.com/Coykto/debug-mcp/internal/config"
	"github.com/Coykto/debug-mcp/internal/embedding"
	"github.com/Coykto/debug-mcp/internal/embedding/google"
	openaiemb "github.com/Coykto/debug-mcp/internal/embedding/openai"
	"github.com/Coykto/debug-mcp/internal/jira"
	"github.com/Coykto/debug-mcp/internal/langsmith"
	"github.com/Coykto/debug-mcp/internal/memory"
	"github.com/Coykto/debug-mcp/internal/memtools"
	"github.com/Coykto/debug-mcp/internal/prompts"
	"github.com/Coykto/debug-mcp/internal/resources"
	"github.com/Coykto/debug-mcp/internal/stepfunctions"
	"github.com/Coykto/debug-mcp/internal/tools"
	"github.com/Coykto/debug-mcp/internal/upstream"
)

// Version is set at build time via ldflags.
var Version = "dev"

// App is a built server together with what the transports need.
type App struct {
	MCP      *server.MCPServer
	Registry *tools.Registry
	Store    *memory.Store
	Logger   *zap.Logger

	closers []io.Closer
}

// Close releases the run memory store and the embedding client. It is safe
// to call more than once.
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.Logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

// Services are the backends the tools are built on. A nil field leaves
// the corresponding category unregistered.
type Services struct {
	Logs     tools.LogsService
	SFN      tools.ExecutionsService
	Runs     tools.RunsConnector
	Tickets  tools.TicketService
	Upstream tools.UpstreamCaller
	Store    *memory.Store
}

// Build creates every backend cfg enables and returns the MCP server.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{Logger: logger}

	// --- Run memory ---

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if c, ok := embedder.(io.Closer); ok {
		app.closers = append(app.closers, c)
	}

	store, err := memory.New(memory.Config{
		Embedder:      embedder,
		EmbedTimeout:  cfg.Embedding.Timeout,
		EmbedMaxChars: cfg.Embedding.MaxChars,
		Logger:        logger,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("creating run memory store: %w", err)
	}
	app.Store = store
	app.closers = append([]io.Closer{store}, app.closers...)

	// --- Backends ---

	svc := Services{Store: store}
	loader := awsclient.NewLoader(awsclient.Settings{
		Region:          cfg.Region(),
		Profile:         cfg.AWS.Profile,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		SessionToken:    cfg.AWS.SessionToken,
	})

	if cfg.AWSEnabled() {
		awsCfg, err := loader.Config(ctx, "")
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("loading AWS config for %s: %w", cfg.Region(), err)
		}
		svc.Logs = cloudwatch.New(cloudwatch.FromLoader(loader), cloudwatch.WithLogger(logger))
		svc.SFN = stepfunctions.NewDebugger(sfn.NewFromConfig(awsCfg), cfg.Region(),
			stepfunctions.WithConcurrency(cfg.StepFunctions.Concurrency),
			stepfunctions.WithLogger(logger),
		)
		svc.Upstream = upstream.New(cfg.Upstream.Command, cfg.AWS.Profile, cfg.Region(),
			upstream.WithLogger(logger),
			upstream.WithClientVersion(Version),
		)
	}

	if cfg.LangSmithEnabled() {
		var secrets langsmith.SecretsFactory
		if cfg.AWSEnabled() {
			secrets = langsmith.SecretsFromLoader(loader)
		}
		resolver := langsmith.NewResolver(secrets, cfg.LangSmith.DotenvPath, langsmith.WithResolverLogger(logger))
		svc.Runs = tools.ServiceConnector(langsmith.NewService(resolver, langsmith.WithLogger(logger)))
	}

	if cfg.JiraEnabled() {
		client, err := jira.New(jira.Config{
			Host:     cfg.Jira.Host,
			Email:    cfg.Jira.Email,
			APIToken: cfg.Jira.APIToken,
			Project:  cfg.Jira.Project,
		}, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		svc.Tickets = client
	}

	// --- MCP server ---

	app.Registry = NewRegistry(cfg.ToolFilter(), svc, logger)
	app.MCP = NewMCPServer(app.Registry, store, cfg.Expose == config.ExposeDirect)

	logger.Info("server built",
		zap.Int("tools", app.Registry.Len()),
		zap.String("expose", cfg.Expose),
		zap.Bool("semantic_search", embedder != nil),
	)
	return app, nil
}

// NewRegistry registers the tools of every configured backend that pass
// filter.
func NewRegistry(filter config.ToolFilter, svc Services, logger *zap.Logger) *tools.Registry {
	reg := tools.NewRegistry()
	add := func(category string, ts []tools.Tool) {
		for _, t := range ts {
			if filter.Allows(t.Definition().Name) {
				reg.Register(category, t)
			}
		}
	}

	if svc.Logs != nil {
		add("cloudwatch", tools.CloudWatchTools(svc.Logs))
	}
	if svc.SFN != nil {
		add("stepfunctions", tools.StepFunctionsTools(svc.SFN))
	}
	if svc.Runs != nil {
		add("langsmith", tools.LangSmithTools(svc.Runs, svc.Store, logger))
		if svc.Store != nil {
			add(memtools.Category, memtools.Tools(svc.Store))
		}
	}
	if svc.Tickets != nil {
		add("jira", tools.JiraTools(svc.Tickets))
	}
	if svc.Upstream != nil {
		add("upstream", []tools.Tool{tools.NewUpstreamTool(svc.Upstream)})
	}
	return reg
}

// NewMCPServer exposes reg through the debug meta tool and, when direct is
// set, as individual MCP tools as well. The stored runs of store are
// published as resources.
func NewMCPServer(reg *tools.Registry, store *memory.Store, direct bool) *server.MCPServer {
	s := server.NewMCPServer(
		"debug-mcp",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	debugTool := tools.NewDebugTool(reg)
	s.AddTool(debugTool.Definition(), debugTool.Handle)

	if direct {
		for _, name := range reg.Names() {
			t, _ := reg.Lookup(name)
			s.AddTool(t.Definition(), t.Handle)
		}
	}

	// --- Prompts ---

	executionPrompt := prompts.NewExecutionPrompt()
	s.AddPrompt(executionPrompt.Definition(), executionPrompt.Handle)

	runPrompt := prompts.NewRunPrompt()
	s.AddPrompt(runPrompt.Definition(), runPrompt.Handle)

	// --- Resources ---

	if store != nil {
		h := resources.NewHandler(store)
		s.AddResource(h.RunsResource(), h.HandleRuns)
		s.AddResourceTemplate(h.RunTemplate(), h.HandleRun)
	}
	return s
}

func newEmbedder(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
	var opts []embedding.Option
	if key := cfg.EmbeddingAPIKey(); key != "" {
		opts = append(opts, embedding.WithApiKey(key))
	}
	if cfg.Embedding.Model != "" {
		opts = append(opts, embedding.WithModel(cfg.Embedding.Model))
	}

	switch cfg.Embedding.Provider {
	case "openai":
		return openaiemb.NewEmbedder(opts...), nil
	case "google":
		e, err := google.NewEmbedder(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating google embedder: %w", err)
		}
		return e, nil
	}
	return nil, nil
}

// serverInstructions tells the client how to drive the debug tool.
func serverInstructions() string {
	return `You have access to debug-mcp, a debugging toolbox for distributed systems
(CloudWatch Logs, Step Functions, LangSmith, Jira).

All tools are reached through the single "debug" tool:

1. debug(tool="list") shows the available categories.
2. debug(tool="list:<category>") shows the tools of a category with their parameters.
3. debug(tool="<name>", arguments="<JSON object>") runs a tool.

## Typical workflow

- Start from a symptom: a failed execution, an error in a log group, a bad
  LLM answer or a ticket.
- Step Functions: list_step_function_executions with status_filter=FAILED,
  then get_step_function_execution_details for the per-state inputs and
  outputs. search_step_function_executions filters executions by state name
  and by regular expressions over state inputs and outputs.
- CloudWatch: analyze_log_group gives error counts and the most frequent
  message patterns. execute_log_insights_query runs an Insights query and
  waits up to 30 seconds for it.
- LangSmith: get_langsmith_run_details returns a compact summary and a
  reference_id. Use search_run_content and get_run_field with that
  reference_id instead of requesting the full run, which can be very large.

Errors are returned as JSON objects with "error": true and a message.`
}
