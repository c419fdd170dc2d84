package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAutoflowServer(t *testing.T) {
	s := NewAutoflowServer(AutoflowServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.Same(t, s.mcpServer, s.MCPServer())
}

func TestToolRegistration(t *testing.T) {
	s := NewAutoflowServer(AutoflowServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 6)

	expectedTools := []string{
		"autoflow.run",
		"autoflow.status",
		"autoflow.query",
		"autoflow.define",
		"autoflow.connect",
		"autoflow.diagram",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"run", "autoflow.run", "Trigger an active workflow manually"},
		{"status", "autoflow.status", "Get a run and its step records"},
		{"query", "autoflow.query", "Query workflows, runs, integrations, or credentials"},
		{"define", "autoflow.define", "Validate and store a workflow definition"},
		{"connect", "autoflow.connect", "Store encrypted credentials for a tenant integration"},
		{"diagram", "autoflow.diagram", "Render a workflow as ASCII art, Mermaid flowchart syntax, or a base64-encoded PNG image"},
	}

	s := NewAutoflowServer(AutoflowServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
