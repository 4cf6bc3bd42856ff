package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"genesis-ai/internal/domain"
	"genesis-ai/internal/infra/config"
)

// mcpCallTimeout bounds each forwarded tool call.
const mcpCallTimeout = 30 * time.Second

// mcpSession is the subset of the MCP client the bridge relies on.
type mcpSession interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type remoteServer struct {
	name    string
	session mcpSession
}

// MCPBridge dials the configured MCP servers and republishes their tools
// as domain.Tool values named mcp_<server>_<tool>.
type MCPBridge struct {
	remotes []remoteServer
	tools   []domain.Tool
	logger  *slog.Logger
}

// NewMCPBridge connects to every configured server and lists its tools.
// A connection failure aborts startup; a discovery failure skips that
// server unless every server fails.
func NewMCPBridge(ctx context.Context, servers []config.MCPServerConfig, logger *slog.Logger) (*MCPBridge, error) {
	b := &MCPBridge{logger: logger}

	for _, sc := range servers {
		sess, err := dialMCP(ctx, sc)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("mcp server %q: %w", sc.Name, err)
		}
		logger.Info("mcp server connected", "name", sc.Name, "transport", sc.Transport)
		b.remotes = append(b.remotes, remoteServer{name: sc.Name, session: sess})
	}

	if err := b.loadTools(ctx); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// newMCPBridgeFromSessions skips dialing and runs discovery on the given
// sessions. Test seam.
func newMCPBridgeFromSessions(ctx context.Context, remotes []remoteServer, logger *slog.Logger) (*MCPBridge, error) {
	b := &MCPBridge{remotes: remotes, logger: logger}
	if err := b.loadTools(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func dialMCP(ctx context.Context, sc config.MCPServerConfig) (mcpSession, error) {
	var sess mcpSession

	switch sc.Transport {
	case "stdio":
		c, err := mcpclient.NewStdioMCPClient(sc.Command, nil, sc.Args...)
		if err != nil {
			return nil, fmt.Errorf("stdio client: %w", err)
		}
		sess = c
	case "http":
		tr, err := transport.NewStreamableHTTP(sc.URL)
		if err != nil {
			return nil, fmt.Errorf("http transport: %w", err)
		}
		c := mcpclient.NewClient(tr)
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
		sess = c
	default:
		return nil, fmt.Errorf("unsupported transport %q", sc.Transport)
	}

	if err := initializeSession(ctx, sess); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

// initializeSession performs the MCP handshake when the underlying client
// supports it. Stdio clients initialize themselves, so absence is fine.
func initializeSession(ctx context.Context, sess mcpSession) error {
	ic, ok := sess.(interface {
		Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	})
	if !ok {
		return nil
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "genesis", Version: "1.0.0"}

	if _, err := ic.Initialize(ctx, req); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return nil
}

func (b *MCPBridge) loadTools(ctx context.Context) error {
	var failures []string

	for _, remote := range b.remotes {
		listed, err := remote.session.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			b.logger.Warn("mcp server discovery failed, skipping",
				"server", remote.name, "error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", remote.name, err))
			continue
		}
		for _, def := range listed.Tools {
			b.tools = append(b.tools, newRemoteTool(remote, def))
		}
		b.logger.Info("mcp tools discovered", "server", remote.name, "count", len(listed.Tools))
	}

	if len(failures) > 0 && len(failures) == len(b.remotes) {
		return fmt.Errorf("all mcp servers failed discovery: %s", strings.Join(failures, "; "))
	}
	return nil
}

// Tools returns the discovered tools, ready for registry registration.
func (b *MCPBridge) Tools() []domain.Tool {
	return b.tools
}

// Close shuts down every server session.
func (b *MCPBridge) Close() {
	for _, remote := range b.remotes {
		if err := remote.session.Close(); err != nil {
			b.logger.Warn("mcp server close error", "server", remote.name, "error", err)
		}
	}
}

// remoteTool forwards Execute calls to a tool living on an MCP server.
type remoteTool struct {
	server  string
	session mcpSession
	def     mcp.Tool
	name    string
}

func newRemoteTool(r remoteServer, def mcp.Tool) *remoteTool {
	return &remoteTool{
		server:  r.name,
		session: r.session,
		def:     def,
		name:    "mcp_" + sanitizeName(r.name) + "_" + sanitizeName(def.Name),
	}
}

func (t *remoteTool) Name() string { return t.name }

func (t *remoteTool) Description() string {
	if t.def.Description != "" {
		return t.def.Description
	}
	return fmt.Sprintf("MCP tool %q from server %q", t.def.Name, t.server)
}

func (t *remoteTool) Schema() domain.ToolSchema {
	params := json.RawMessage(`{"type": "object"}`)
	if t.def.InputSchema.Properties != nil || t.def.InputSchema.Required != nil {
		if raw, err := json.Marshal(t.def.InputSchema); err == nil {
			params = raw
		}
	}
	return domain.ToolSchema{
		Name:        t.name,
		Description: t.Description(),
		Parameters:  params,
	}
}

func (t *remoteTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var args map[string]interface{}
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &args); err != nil {
			return ErrResult("invalid arguments: %v", err)
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.def.Name
	req.Params.Arguments = args

	callCtx, cancel := context.WithTimeout(ctx, mcpCallTimeout)
	defer cancel()

	res, err := t.session.CallTool(callCtx, req)
	if err != nil {
		return ErrResult("MCP tool error: %v", err)
	}

	return &domain.ToolResult{
		Content: flattenContent(res.Content),
		IsError: res.IsError,
	}, nil
}

// flattenContent joins text content blocks with newlines. Non-text blocks
// are carried as their JSON encoding.
func flattenContent(items []mcp.Content) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if raw, err := json.Marshal(v); err == nil {
				parts = append(parts, string(raw))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// sanitizeName maps anything outside [A-Za-z0-9_] to an underscore.
func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
