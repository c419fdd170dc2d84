package plugins

import (
	"context"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPClient is the subset of an MCP client session a plugin needs.
// Satisfied by *client.Client.
type MCPClient interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens a client session to the plugin described by cfg.
type Dialer func(ctx context.Context, cfg PluginConfig) (MCPClient, error)

// StdioDialer launches cfg.Command as a subprocess and talks MCP over its
// stdin/stdout.
func StdioDialer(_ context.Context, cfg PluginConfig) (MCPClient, error) {
	return client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
}
