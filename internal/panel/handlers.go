package panel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/rendis/autoflow/internal/diagram"
	"github.com/rendis/autoflow/internal/store"
	"github.com/rendis/autoflow/pkg/schema"
)

const maxRunBody = 1 << 20

func (s *PanelServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.deps.Plugins != nil {
		body["plugins"] = s.deps.Plugins.Status()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *PanelServer) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.WorkflowFilter{
		TenantID:    q.Get("tenant_id"),
		TriggerType: schema.TriggerType(q.Get("trigger_type")),
		ActiveOnly:  queryBool(r, "active"),
		Limit:       queryInt(r, "limit", 50),
		Offset:      queryInt(r, "offset", 0),
	}
	if filter.TriggerType != "" && !filter.TriggerType.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown trigger type %q", filter.TriggerType))
		return
	}

	workflows, err := s.deps.Store.ListWorkflows(r.Context(), filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if workflows == nil {
		workflows = []*schema.WorkflowDefinition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": workflows})
}

func (s *PanelServer) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.deps.Store.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *PanelServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	runs, err := s.deps.Store.ListRuns(r.Context(), store.RunFilter{
		WorkflowID: q.Get("workflow_id"),
		TenantID:   q.Get("tenant_id"),
		Status:     schema.RunStatus(q.Get("status")),
		Limit:      queryInt(r, "limit", 50),
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *PanelServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := r.PathValue("id")

	run, err := s.deps.Store.GetRun(ctx, runID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	steps, err := s.deps.Store.ListRunSteps(ctx, runID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if steps == nil {
		steps = []*store.RunStep{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "steps": steps})
}

func (s *PanelServer) handleIntegrations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"integrations": s.deps.Registry.List()})
}

func (s *PanelServer) handleCredentials(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	names, err := s.deps.Store.ListCredentials(r.Context(), tenantID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "integrations": names})
}

func (s *PanelServer) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := s.deps.Store.SetWorkflowActive(r.Context(), id, active); err != nil {
			writeEngineError(w, err)
			return
		}
		s.deps.Logger.InfoContext(r.Context(), "workflow activation changed", "workflow_id", id, "active", active)
		writeJSON(w, http.StatusOK, map[string]any{"workflow_id": id, "active": active})
	}
}

// handleRunWorkflow triggers an active workflow with the request body as
// its payload.
func (s *PanelServer) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	wf, err := s.deps.Store.GetWorkflow(ctx, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !wf.IsActive {
		writeError(w, http.StatusConflict, fmt.Sprintf("workflow %q is not active", wf.ID))
		return
	}

	payload := map[string]any{}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRunBody)).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	s.trigger(w, r, wf, payload)
}

// handleRerun starts a new run of the run's workflow with the original
// trigger payload.
func (s *PanelServer) handleRerun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	original, err := s.deps.Store.GetRun(ctx, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	wf, err := s.deps.Store.GetWorkflow(ctx, original.WorkflowID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var payload any
	if len(original.TriggerPayload) > 0 {
		if err := json.Unmarshal(original.TriggerPayload, &payload); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("decode original payload: %v", err))
			return
		}
	}

	s.trigger(w, r, wf, payload)
}

func (s *PanelServer) trigger(w http.ResponseWriter, r *http.Request, wf *schema.WorkflowDefinition, payload any) {
	runID := uuid.New().String()
	s.deps.Logger.InfoContext(r.Context(), "run requested via panel", "workflow_id", wf.ID, "run_id", runID)

	result, err := s.deps.Runner.Trigger(r.Context(), wf, payload, runID)
	if err != nil {
		var engErr *schema.EngineError
		code := ""
		if errors.As(err, &engErr) {
			code = engErr.Code
		}
		// The run exists and is failed; report it as the outcome.
		writeJSON(w, http.StatusOK, map[string]any{
			"run_id":  runID,
			"success": false,
			"error":   schema.Message(err),
			"code":    code,
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDiagram renders a workflow, overlaid with a run's step states when
// run_id is given. format is mermaid (default), ascii or png.
func (s *PanelServer) handleDiagram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	wf, err := s.deps.Store.GetWorkflow(ctx, r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var steps []*store.RunStep
	if runID := r.URL.Query().Get("run_id"); runID != "" {
		run, err := s.deps.Store.GetRun(ctx, runID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if run.WorkflowID != wf.ID {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("run %q belongs to workflow %q", runID, run.WorkflowID))
			return
		}
		if steps, err = s.deps.Store.ListRunSteps(ctx, runID); err != nil {
			writeEngineError(w, err)
			return
		}
	}

	model, err := diagram.Build(wf, steps)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	format := diagram.Format(r.URL.Query().Get("format"))
	out, err := diagram.Render(ctx, model, format)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", diagram.ContentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
