package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/autoflow/internal/actions"
	"github.com/rendis/autoflow/internal/engine"
	"github.com/rendis/autoflow/internal/secrets"
	"github.com/rendis/autoflow/internal/store"
	"github.com/rendis/autoflow/pkg/schema"
)

// WorkflowRunner starts a run of a workflow. Satisfied by
// *engine.WorkflowRunner.
type WorkflowRunner interface {
	Trigger(ctx context.Context, wf *schema.WorkflowDefinition, payload any, runID string) (*engine.RunResult, error)
}

// DefinitionValidator checks a workflow definition before it is stored.
// Satisfied by *validation.WorkflowValidator.
type DefinitionValidator interface {
	Validate(def *schema.WorkflowDefinition) *schema.ValidationResult
}

// AutoflowServerDeps holds the dependencies for creating an AutoflowServer.
type AutoflowServerDeps struct {
	Runner    WorkflowRunner
	Store     store.Store
	Vault     secrets.Vault
	Registry  actions.ActionRegistry
	Validator DefinitionValidator
	Logger    *slog.Logger
}

// AutoflowServer wraps an MCP server with autoflow tool handlers.
type AutoflowServer struct {
	runner    WorkflowRunner
	store     store.Store
	vault     secrets.Vault
	registry  actions.ActionRegistry
	validator DefinitionValidator
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewAutoflowServer creates a new AutoflowServer with all 5 tools registered.
func NewAutoflowServer(deps AutoflowServerDeps) *AutoflowServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &AutoflowServer{
		runner:    deps.Runner,
		store:     deps.Store,
		vault:     deps.Vault,
		registry:  deps.Registry,
		validator: deps.Validator,
		logger:    logger.With("component", "mcp"),
	}

	mcpSrv := server.NewMCPServer(
		"autoflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Autoflow runs tenant automation workflows. Use autoflow.define to store a workflow, autoflow.connect to store integration credentials, autoflow.run to trigger a workflow manually, autoflow.status to inspect a run, autoflow.diagram to visualize a workflow or run, and autoflow.query to list workflows, runs, integrations and connected credentials."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *AutoflowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *AutoflowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *AutoflowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: connectTool(), Handler: s.handleConnect},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func runTool() mcp.Tool {
	return mcp.NewTool("autoflow.run",
		mcp.WithDescription("Trigger an active workflow manually"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to run")),
		mcp.WithObject("payload", mcp.Description("Trigger payload, available to steps as {{trigger.*}}")),
		mcp.WithString("run_id", mcp.Description("Run ID to use (default: generated)")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("autoflow.status",
		mcp.WithDescription("Get a run and its step records"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run to inspect")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("autoflow.query",
		mcp.WithDescription("Query workflows, runs, integrations, or credentials"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("workflows", "runs", "integrations", "credentials"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (tenant_id, trigger_type, active_only, workflow_id, status, limit, offset)")),
	)
}

func defineTool() mcp.Tool {
	return mcp.NewTool("autoflow.define",
		mcp.WithDescription("Validate and store a workflow definition"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Workflow definition object (id, tenant_id, trigger_type, trigger_config, steps)")),
		mcp.WithBoolean("active", mcp.Description("Whether the scheduler should pick the workflow up (default: true)")),
	)
}

func connectTool() mcp.Tool {
	return mcp.NewTool("autoflow.connect",
		mcp.WithDescription("Store encrypted credentials for a tenant integration"),
		mcp.WithString("tenant_id", mcp.Required(), mcp.Description("Tenant owning the credential")),
		mcp.WithString("integration", mcp.Required(), mcp.Description("Integration name, e.g. email or http")),
		mcp.WithObject("credentials", mcp.Description("Credential fields (token, api_key, user, password, base_url, ...)")),
		mcp.WithBoolean("disconnect", mcp.Description("Delete the stored credential instead")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("autoflow.diagram",
		mcp.WithDescription("Render a workflow as ASCII art, Mermaid flowchart syntax, or a base64-encoded PNG image"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow to render")),
		mcp.WithString("run_id", mcp.Description("Overlay the step states of this run")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), or image (base64 PNG)"),
		),
	)
}
