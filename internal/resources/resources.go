// Package resources implements MCP resource handlers over the run memory.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (debug-mcp://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Coykto/debug-mcp/internal/memory"
)

const (
	// RunsURI lists every stored run.
	RunsURI = "debug-mcp://runs"
	// RunURITemplate addresses one stored run by reference id.
	RunURITemplate = "debug-mcp://runs/{reference_id}"

	runURIPrefix = RunsURI + "/"
)

// Handler serves the stored-run resources.
type Handler struct {
	store *memory.Store
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(store *memory.Store) *Handler {
	return &Handler{store: store}
}

// RunsResource returns the MCP resource definition for the run listing.
func (h *Handler) RunsResource() mcp.Resource {
	return mcp.NewResource(
		RunsURI,
		"Stored LangSmith runs",
		mcp.WithResourceDescription("Reference ids and summaries of the runs fetched in this session"),
		mcp.WithMIMEType("application/json"),
	)
}

// RunTemplate returns the MCP resource template for a single stored run.
func (h *Handler) RunTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		RunURITemplate,
		"Stored LangSmith run",
		mcp.WithTemplateDescription("Summary and full payload of one stored run"),
		mcp.WithTemplateMIMEType("application/json"),
	)
}

// HandleRuns returns the stored runs as JSON.
func (h *Handler) HandleRuns(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	runs := h.store.ListStoredRuns()
	return jsonResource(req.Params.URI, map[string]any{"runs": runs, "count": len(runs)})
}

// HandleRun returns one stored run. Unknown ids yield a text error
// resource rather than a protocol error.
func (h *Handler) HandleRun(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	ref, err := ReferenceID(req.Params.URI)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}

	run, ok := h.store.Get(ref)
	if !ok {
		return errorResource(req.Params.URI, fmt.Sprintf("no stored run found for reference_id: %s", ref)), nil
	}
	return jsonResource(req.Params.URI, map[string]any{
		"reference_id": ref,
		"summary":      run.Summary,
		"data":         run.Data,
	})
}

// ReferenceID extracts the reference id from a run resource URI.
func ReferenceID(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, runURIPrefix)
	if !ok || rest == "" {
		return "", fmt.Errorf("not a run resource URI: %s", uri)
	}
	ref, err := url.PathUnescape(rest)
	if err != nil {
		return "", fmt.Errorf("decoding reference id in %s: %w", uri, err)
	}
	return ref, nil
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
