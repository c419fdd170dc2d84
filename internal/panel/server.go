// Package panel serves the operator HTTP API: read access to workflows, runs
// and integrations, a few mutations (activate, manual run, rerun), and a
// Server-Sent Events stream of run events.
package panel

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/rendis/autoflow/internal/actions"
	"github.com/rendis/autoflow/internal/engine"
	"github.com/rendis/autoflow/internal/store"
	"github.com/rendis/autoflow/internal/streaming"
	"github.com/rendis/autoflow/pkg/schema"
)

// WorkflowRunner starts a run of a workflow. Satisfied by
// *engine.WorkflowRunner.
type WorkflowRunner interface {
	Trigger(ctx context.Context, wf *schema.WorkflowDefinition, payload any, runID string) (*engine.RunResult, error)
}

// PluginStatus reports the state of loaded plugins. Satisfied by
// *plugins.PluginManager.
type PluginStatus interface {
	Status() map[string]string
}

// PanelDeps holds the dependencies for the panel server.
type PanelDeps struct {
	Store    store.Store
	Runner   WorkflowRunner
	Registry actions.ActionRegistry
	Hub      streaming.EventHub
	Plugins  PluginStatus // optional
	Logger   *slog.Logger
}

// PanelServer serves the operator API.
type PanelServer struct {
	deps PanelDeps
}

// NewPanelServer creates a new PanelServer.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	deps.Logger = deps.Logger.With("component", "panel")
	return &PanelServer{deps: deps}
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Reads.
	mux.HandleFunc("GET /api/workflows", s.handleListWorkflows)
	mux.HandleFunc("GET /api/workflows/{id}", s.handleGetWorkflow)
	mux.HandleFunc("GET /api/workflows/{id}/diagram", s.handleDiagram)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/integrations", s.handleIntegrations)
	mux.HandleFunc("GET /api/tenants/{tenant}/credentials", s.handleCredentials)

	// Mutations.
	mux.HandleFunc("POST /api/workflows/{id}/activate", s.handleSetActive(true))
	mux.HandleFunc("POST /api/workflows/{id}/deactivate", s.handleSetActive(false))
	mux.HandleFunc("POST /api/workflows/{id}/run", s.handleRunWorkflow)
	mux.HandleFunc("POST /api/runs/{id}/rerun", s.handleRerun)

	// SSE streams.
	mux.HandleFunc("GET /sse/events", s.handleSSE)
	mux.HandleFunc("GET /sse/runs/{id}", s.handleSSERun)

	return mux
}
