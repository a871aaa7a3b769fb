package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/playbook"
	"github.com/starford/ansuz/internal/selector"
	"github.com/starford/ansuz/internal/testutil"
)

func testServer(t *testing.T) (*Server, *playbook.Store) {
	t.Helper()

	store, _ := testutil.TestStore(t)
	sel := selector.New(store, selector.DefaultWeights())

	srv := New(store, sel, nil)
	return srv, store
}

func seed(t *testing.T, store *playbook.Store, file string, sections ...*models.Section) {
	t.Helper()
	testutil.SeedFile(t, store, file, sections...)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct call-tool test helper; invoke the handlers.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "playbook_context":
		result, err = srv.playbookContext(ctx, req)
	case "read_playbook_file":
		result, err = srv.readPlaybookFile(ctx, req)
	case "playbook_stats":
		result, err = srv.playbookStats(ctx, req)
	case "recent_deltas":
		result, err = srv.recentDeltas(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestReadPlaybookFile(t *testing.T) {
	srv, store := testServer(t)
	seed(t, store, "tactics", &models.Section{ID: "a", Title: "A", Content: "body", Confidence: 0.5})

	r := callTool(t, srv, "read_playbook_file", map[string]interface{}{"file": "tactics"})
	text := resultText(r)
	if !strings.Contains(text, "## A {#a}") || !strings.Contains(text, "body") {
		t.Errorf("rendered file = %q", text)
	}
}

func TestReadPlaybookFileMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_playbook_file", map[string]interface{}{"file": "nope"})
	if !r.IsError {
		t.Error("expected error for missing file")
	}
}

func TestPlaybookContext(t *testing.T) {
	srv, store := testServer(t)
	seed(t, store, "tactics",
		&models.Section{ID: "a", Title: "A", Content: "first", Confidence: 0.9},
		&models.Section{ID: "b", Title: "B", Content: "second", Confidence: 0.1})

	r := callTool(t, srv, "playbook_context", map[string]interface{}{"fragments": 1})
	text := resultText(r)
	if !strings.Contains(text, `"first"`) || strings.Contains(text, `"second"`) {
		t.Errorf("context = %q", text)
	}

	// Preview only: usage untouched.
	sec, _ := store.ReadSection("tactics", "a")
	if sec.UsageCount != 0 {
		t.Errorf("usage = %d after preview", sec.UsageCount)
	}
}

func TestPlaybookStats(t *testing.T) {
	srv, store := testServer(t)
	seed(t, store, "f", &models.Section{ID: "a", Title: "A", Content: "abcd", Confidence: 0.5})

	r := callTool(t, srv, "playbook_stats", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, `"files":1`) || !strings.Contains(text, `"characters":4`) {
		t.Errorf("stats = %q", text)
	}
}

func TestRecentDeltasWithoutHistory(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "recent_deltas", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error when history index is absent")
	}
}

func TestFormatResource(t *testing.T) {
	srv, _ := testServer(t)
	req := mcp.ReadResourceRequest{}
	req.Params.URI = "ansuz://playbook-format"

	contents, err := srv.readFormatResource(context.Background(), req)
	if err != nil {
		t.Fatalf("readFormatResource: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || !strings.Contains(tc.Text, "{#") {
		t.Errorf("resource = %+v", contents[0])
	}
}
