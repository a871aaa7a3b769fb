// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes read-only playbook tools to agent-side consumers via stdio
// transport. The reasoning process stays external; these tools are the
// defined interface it pulls context through.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/history"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/playbook"
	"github.com/starford/ansuz/internal/selector"
)

// Server wraps the MCP server with Ansuz tools.
type Server struct {
	mcp   *server.MCPServer
	store *playbook.Store
	sel   *selector.Selector
	hist  *history.DB
}

// New creates a new MCP server with all Ansuz tools registered.
// hist may be nil; the recent_deltas tool then reports unavailability.
func New(store *playbook.Store, sel *selector.Selector, hist *history.DB) *Server {
	s := &Server{store: store, sel: sel, hist: hist}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("playbook_context",
		mcp.WithDescription("Select a budgeted slice of playbook knowledge for prompt injection. "+
			"Read-only preview: usage counters are not touched."),
		mcp.WithNumber("fragments", mcp.Description("Maximum number of sections (0 = unlimited)")),
		mcp.WithNumber("chars", mcp.Description("Maximum total content characters (0 = unlimited)")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags to bias selection toward")),
	), s.playbookContext)

	s.mcp.AddTool(mcp.NewTool("read_playbook_file",
		mcp.WithDescription("Read one playbook file in its rendered Markdown form."),
		mcp.WithString("file", mcp.Required(), mcp.Description("Playbook file name (e.g. fear, strategy)")),
	), s.readPlaybookFile)

	s.mcp.AddTool(mcp.NewTool("playbook_stats",
		mcp.WithDescription("Aggregate playbook counts: files, sections, characters."),
	), s.playbookStats)

	s.mcp.AddTool(mcp.NewTool("recent_deltas",
		mcp.WithDescription("Recent curation attempts from the audit history, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum entries to return (default 20)")),
		mcp.WithString("outcome", mcp.Description("Filter: applied or rejected")),
	), s.recentDeltas)

	// Resource: playbook file format contract.
	s.mcp.AddResource(
		mcp.NewResource("ansuz://playbook-format", "Playbook Format Contract",
			mcp.WithResourceDescription("Canonical rendered form of a playbook file."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) playbookContext(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fragments := req.GetInt("fragments", 0)
	chars := req.GetInt("chars", 0)
	var tags []string
	for _, t := range strings.Split(req.GetString("tags", ""), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	sections := s.sel.Preview(fragments, chars, tags)
	out, _ := json.MarshalIndent(sections, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readPlaybookFile(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.store.GetFile(name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", name)), nil
	}
	return mcp.NewToolResultText(string(parser.Render(f))), nil
}

func (s *Server) playbookStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, _ := json.Marshal(s.store.Stats())
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) recentDeltas(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.hist == nil {
		return mcp.NewToolResultError("history index unavailable"), nil
	}
	limit := req.GetInt("limit", 20)
	rows, err := s.hist.Recent(limit, req.GetString("outcome", ""), "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(rows, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readFormatResource(_ context.Context, req mcp.ReadResourceRequest) (
	[]mcp.ResourceContents, error,
) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     FormatContract,
		},
	}, nil
}
