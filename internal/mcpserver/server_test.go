package mcpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"deskpilot/internal/domain"
	"deskpilot/internal/tool"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type echoTool struct{}

func (echoTool) Name() string        { return "say_text" }
func (echoTool) Description() string { return "echo the text back" }
func (echoTool) Parameters() map[string]any {
	return tool.ToolParameters(map[string]tool.Param{
		"text": {Type: "string", Description: "Text"},
	}, []string{"text"})
}
func (echoTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return "said " + tool.ArgsString(args, "text"), nil
}

type failingTool struct{}

func (failingTool) Name() string        { return "computer_applescript_action" }
func (failingTool) Description() string { return "always fails" }
func (failingTool) Parameters() map[string]any {
	return tool.ToolParameters(map[string]tool.Param{}, nil)
}
func (failingTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return "", errors.New("Error: something failed")
}

var (
	_ domain.Tool = echoTool{}
	_ domain.Tool = failingTool{}
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRegistry() *tool.Registry {
	reg := tool.NewRegistry(tool.RegistryConfig{Logger: testLogger()})
	reg.Register(echoTool{})
	reg.Register(failingTool{})
	return reg
}

// setup connects a client to a server over in-memory transports.
func setup(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	server := NewServer(newRegistry(), "test", testLogger())
	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}
	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})
	return cs
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func resultText(r *mcp.CallToolResult) string {
	var parts []string
	for _, c := range r.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestListTools(t *testing.T) {
	cs := setup(t)
	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(res.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(res.Tools))
	}
	names := map[string]bool{}
	for _, tl := range res.Tools {
		names[tl.Name] = true
	}
	if !names["say_text"] || !names["computer_applescript_action"] {
		t.Errorf("tools: %v", names)
	}
}

func TestCallTool_OK(t *testing.T) {
	cs := setup(t)
	res := callTool(t, cs, "say_text", map[string]any{"text": "hello"})
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(res))
	}
	if got := resultText(res); got != "said hello" {
		t.Errorf("got %q", got)
	}
}

func TestCallTool_FailureIsSoftError(t *testing.T) {
	cs := setup(t)
	res := callTool(t, cs, "computer_applescript_action", map[string]any{})
	if !res.IsError {
		t.Fatal("expected IsError")
	}
	if got := resultText(res); got != "Error: something failed" {
		t.Errorf("got %q", got)
	}
}

func TestHandler_RequiresToken(t *testing.T) {
	server := NewServer(newRegistry(), "test", testLogger())
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "deskpilot_uptime_seconds 1\n")
	})
	h := Handler(server, HTTPConfig{AuthToken: "s3cret", Metrics: metrics, Logger: testLogger()})

	tests := []struct {
		name   string
		path   string
		auth   string
		status int
	}{
		{"no token", "/", "", http.StatusUnauthorized},
		{"wrong token", "/", "Bearer nope", http.StatusUnauthorized},
		{"no token subpath", "/mcp", "", http.StatusUnauthorized},
		{"metrics open", "/metrics", "", http.StatusOK},
		{"health open", "/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			if tt.path == "/health" || tt.path == "/metrics" {
				method = http.MethodGet
			}
			req := httptest.NewRequest(method, tt.path, strings.NewReader("{}"))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("status: got %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestHandler_TokenPassesThrough(t *testing.T) {
	var reached bool
	h := requireToken("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !reached {
		t.Error("valid token should reach the handler")
	}
}

func TestServeHTTP_RequiresToken(t *testing.T) {
	server := NewServer(newRegistry(), "test", testLogger())
	err := ServeHTTP(context.Background(), server, HTTPConfig{Addr: "127.0.0.1:0", Logger: testLogger()})
	if err == nil {
		t.Fatal("expected error without auth token")
	}
}
