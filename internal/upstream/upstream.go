// Package upstream proxies single tool calls to AWS-published MCP servers
// launched over stdio.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// ErrUnknownServer is returned for a server name outside Servers.
var ErrUnknownServer = errors.New("unknown upstream server")

// Server describes one upstream MCP server package.
type Server struct {
	Package string
	Env     []string
}

// Servers are the proxied AWS MCP servers, by short name.
var Servers = map[string]Server{
	"cloudwatch":    {Package: "awslabs.cloudwatch-mcp-server@latest", Env: []string{"FASTMCP_LOG_LEVEL=ERROR"}},
	"ecs":           {Package: "awslabs.ecs-mcp-server@latest"},
	"stepfunctions": {Package: "awslabs.stepfunctions-tool-mcp-server@latest"},
}

// ServerNames lists Servers, sorted.
func ServerNames() []string {
	names := make([]string, 0, len(Servers))
	for n := range Servers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Session is the part of an MCP client used for one call.
type Session interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Launcher starts an MCP server process and returns a session to it.
type Launcher func(ctx context.Context, command string, env []string, args ...string) (Session, error)

// StdioLauncher launches servers with the mcp-go stdio client.
func StdioLauncher(_ context.Context, command string, env []string, args ...string) (Session, error) {
	c, err := client.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Proxy calls tools on upstream servers. Every call launches a fresh
// server process, initializes it, calls the tool and closes it.
type Proxy struct {
	command string
	profile string
	region  string
	version string
	launch  Launcher
	logger  *zap.Logger
}

type Option func(*Proxy)

func WithLauncher(l Launcher) Option {
	return func(p *Proxy) { p.launch = l }
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Proxy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClientVersion sets the version reported during initialization.
func WithClientVersion(v string) Option {
	return func(p *Proxy) { p.version = v }
}

// New builds a proxy launching servers with command (usually "uvx") under
// the given AWS profile and region.
func New(command, profile, region string, opts ...Option) *Proxy {
	p := &Proxy{
		command: command,
		profile: profile,
		region:  region,
		version: "dev",
		launch:  StdioLauncher,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.command == "" {
		p.command = "uvx"
	}
	p.logger = p.logger.Named("upstream")
	return p
}

// Call runs tool on the named server and resolves the first content block
// of the result.
func (p *Proxy) Call(ctx context.Context, server, tool string, args map[string]any) (any, error) {
	srv, ok := Servers[strings.ToLower(server)]
	if !ok {
		return nil, fmt.Errorf("%w %q (want one of %s)", ErrUnknownServer, server, strings.Join(ServerNames(), ", "))
	}

	env := append([]string{"AWS_PROFILE=" + p.profile, "AWS_REGION=" + p.region}, srv.Env...)
	session, err := p.launch(ctx, p.command, env, srv.Package)
	if err != nil {
		return nil, fmt.Errorf("launch %s: %w", srv.Package, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			p.logger.Debug("close upstream session", zap.String("server", server), zap.Error(cerr))
		}
	}()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "debug-mcp", Version: p.version}
	if _, err := session.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("initialize %s: %w", srv.Package, err)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args
	res, err := session.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", tool, server, err)
	}
	p.logger.Debug("upstream call finished",
		zap.String("server", server), zap.String("tool", tool), zap.Bool("is_error", res.IsError))

	blocks := make([]ContentBlock, 0, len(res.Content))
	for _, c := range res.Content {
		blocks = append(blocks, FromContent(c))
	}
	return Resolve(blocks), nil
}

// ─── Content blocks ─────────────────────────────────────────────────────────

// ContentBlock is an upstream result block: TextBlock or OpaqueBlock.
type ContentBlock interface {
	contentBlock()
}

// TextBlock carries text content.
type TextBlock struct {
	Text string
}

// OpaqueBlock carries any other content as received.
type OpaqueBlock struct {
	Raw any
}

func (TextBlock) contentBlock()   {}
func (OpaqueBlock) contentBlock() {}

// FromContent classifies an mcp-go content value.
func FromContent(c mcp.Content) ContentBlock {
	if t, ok := mcp.AsTextContent(c); ok {
		return TextBlock{Text: t.Text}
	}
	return OpaqueBlock{Raw: c}
}

// Resolve turns the first block into a result value: JSON text is
// decoded, other text is returned as a string, opaque blocks are returned
// unchanged. No blocks resolve to an empty object.
func Resolve(blocks []ContentBlock) any {
	if len(blocks) == 0 {
		return map[string]any{}
	}
	switch b := blocks[0].(type) {
	case TextBlock:
		var v any
		if err := json.Unmarshal([]byte(b.Text), &v); err != nil {
			return b.Text
		}
		return v
	case OpaqueBlock:
		return b.Raw
	}
	return map[string]any{}
}
