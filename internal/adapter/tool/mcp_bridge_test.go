package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

type fakeSession struct {
	tools    []mcp.Tool
	listErr  error
	callFunc func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	closed   bool
}

func (f *fakeSession) ListTools(_ context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeSession) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if f.callFunc != nil {
		return f.callFunc(ctx, req)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent("called " + req.Params.Name)},
	}, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func textResult(lines ...string) *mcp.CallToolResult {
	res := &mcp.CallToolResult{}
	for _, l := range lines {
		res.Content = append(res.Content, mcp.NewTextContent(l))
	}
	return res
}

func TestMCPBridgeDiscovery(t *testing.T) {
	sess := &fakeSession{tools: []mcp.Tool{
		{Name: "read_file", Description: "Read a file"},
		{Name: "write_file", Description: "Write a file"},
	}}

	bridge, err := newMCPBridgeFromSessions(context.Background(), []remoteServer{
		{name: "filesystem", session: sess},
	}, testLogger())
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	defer bridge.Close()

	var names []string
	for _, tl := range bridge.Tools() {
		names = append(names, tl.Name())
	}
	want := []string{"mcp_filesystem_read_file", "mcp_filesystem_write_file"}
	if len(names) != len(want) {
		t.Fatalf("tool names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("tool %d = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestMCPBridgeSkipsFailedServer(t *testing.T) {
	good := &fakeSession{tools: []mcp.Tool{{Name: "search"}}}
	bad := &fakeSession{listErr: fmt.Errorf("connection refused")}

	bridge, err := newMCPBridgeFromSessions(context.Background(), []remoteServer{
		{name: "ok-server", session: good},
		{name: "bad-server", session: bad},
	}, testLogger())
	if err != nil {
		t.Fatalf("partial failure should not abort: %v", err)
	}
	defer bridge.Close()

	tools := bridge.Tools()
	if len(tools) != 1 || tools[0].Name() != "mcp_ok_server_search" {
		t.Errorf("surviving tools = %v", tools)
	}
}

func TestMCPBridgeAllServersFail(t *testing.T) {
	_, err := newMCPBridgeFromSessions(context.Background(), []remoteServer{
		{name: "bad1", session: &fakeSession{listErr: fmt.Errorf("error 1")}},
		{name: "bad2", session: &fakeSession{listErr: fmt.Errorf("error 2")}},
	}, testLogger())
	if err == nil || !strings.Contains(err.Error(), "all mcp servers failed") {
		t.Fatalf("err = %v, want all-servers-failed", err)
	}
}

func TestMCPBridgeCloseAllSessions(t *testing.T) {
	sessions := []*fakeSession{{}, {}}
	bridge, err := newMCPBridgeFromSessions(context.Background(), []remoteServer{
		{name: "srv1", session: sessions[0]},
		{name: "srv2", session: sessions[1]},
	}, testLogger())
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}

	bridge.Close()

	for i, s := range sessions {
		if !s.closed {
			t.Errorf("session %d not closed", i)
		}
	}
}

func TestRemoteToolNaming(t *testing.T) {
	rt := newRemoteTool(remoteServer{name: "my-server"}, mcp.Tool{Name: "my-tool"})
	if rt.Name() != "mcp_my_server_my_tool" {
		t.Errorf("Name = %q", rt.Name())
	}
}

func TestRemoteToolSchemaKeepsProperties(t *testing.T) {
	def := mcp.Tool{
		Name:        "greet",
		Description: "Greet someone",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"name": map[string]any{"type": "string", "description": "Name to greet"},
			},
			Required: []string{"name"},
		},
	}

	schema := newRemoteTool(remoteServer{name: "test"}, def).Schema()
	if schema.Name != "mcp_test_greet" {
		t.Errorf("Schema.Name = %q", schema.Name)
	}

	var params struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(schema.Parameters, &params); err != nil {
		t.Fatalf("unmarshal parameters: %v", err)
	}
	if _, ok := params.Properties["name"]; !ok {
		t.Error("properties missing 'name'")
	}
	if len(params.Required) != 1 || params.Required[0] != "name" {
		t.Errorf("required = %v", params.Required)
	}
}

func TestRemoteToolSchemaEmptyFallback(t *testing.T) {
	schema := newRemoteTool(remoteServer{name: "test"}, mcp.Tool{Name: "bare"}).Schema()
	if string(schema.Parameters) != `{"type": "object"}` {
		t.Errorf("Parameters = %s", schema.Parameters)
	}
}

func TestRemoteToolExecute(t *testing.T) {
	sess := &fakeSession{
		callFunc: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("call context should carry a deadline")
			}
			args, ok := req.Params.Arguments.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("expected map arguments, got %T", req.Params.Arguments)
			}
			return textResult(fmt.Sprintf("Hello, %s!", args["name"])), nil
		},
	}

	rt := newRemoteTool(remoteServer{name: "test", session: sess}, mcp.Tool{Name: "greet"})
	result, err := rt.Execute(context.Background(), json.RawMessage(`{"name": "World"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("IsError = true, content: %s", result.Content)
	}
	if result.Content != "Hello, World!" {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestRemoteToolExecuteFailures(t *testing.T) {
	tests := []struct {
		name     string
		params   string
		callFunc func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
		want     string
	}{
		{
			name:   "call error becomes error result",
			params: `{}`,
			callFunc: func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return nil, fmt.Errorf("server unavailable")
			},
			want: "server unavailable",
		},
		{
			name:   "server-side tool error passes through",
			params: `{"path": "/nonexistent"}`,
			callFunc: func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				res := textResult("file not found")
				res.IsError = true
				return res, nil
			},
			want: "file not found",
		},
		{
			name:   "invalid params never reach the server",
			params: `not json`,
			callFunc: func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				t.Error("server should not be called")
				return nil, nil
			},
			want: "invalid arguments",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &fakeSession{callFunc: tt.callFunc}
			rt := newRemoteTool(remoteServer{name: "test", session: sess}, mcp.Tool{Name: "broken"})

			result, err := rt.Execute(context.Background(), json.RawMessage(tt.params))
			if err != nil {
				t.Fatalf("Execute should not return a Go error: %v", err)
			}
			if !result.IsError {
				t.Error("IsError should be true")
			}
			if !strings.Contains(result.Content, tt.want) {
				t.Errorf("Content = %q, want substring %q", result.Content, tt.want)
			}
		})
	}
}

func TestRemoteToolExecuteJoinsContent(t *testing.T) {
	sess := &fakeSession{
		callFunc: func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult("line 1", "line 2"), nil
		},
	}

	rt := newRemoteTool(remoteServer{name: "test", session: sess}, mcp.Tool{Name: "multi"})
	result, err := rt.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Content != "line 1\nline 2" {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"simple", "simple"},
		{"with-dash", "with_dash"},
		{"with.dot", "with_dot"},
		{"with spaces", "with_spaces"},
		{"CamelCase", "CamelCase"},
		{"123numbers", "123numbers"},
		{"special!@#$%", "special_____"},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
