package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/autoflow/internal/diagram"
	"github.com/rendis/autoflow/internal/store"
	"github.com/rendis/autoflow/pkg/schema"
)

// handleRun triggers a workflow by id. Any active workflow may be run
// manually regardless of its trigger type.
func (s *AutoflowServer) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	payload := mcp.ParseStringMap(req, "payload", nil)
	if payload == nil {
		payload = map[string]any{}
	}
	runID := req.GetString("run_id", "")
	if runID == "" {
		runID = uuid.New().String()
	}

	wf, getErr := s.store.GetWorkflow(ctx, workflowID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow lookup failed: %v", getErr)), nil
	}
	if !wf.IsActive {
		return mcp.NewToolResultError(fmt.Sprintf("workflow %q is not active", workflowID)), nil
	}

	s.logger.InfoContext(ctx, "manual run requested", "workflow_id", workflowID, "run_id", runID)
	result, runErr := s.runner.Trigger(ctx, wf, payload, runID)
	if runErr != nil {
		return marshalResult(map[string]any{
			"run_id":  runID,
			"success": false,
			"error":   schema.Message(runErr),
			"code":    errorCode(runErr),
		})
	}
	return marshalResult(result)
}

// handleDiagram renders a workflow, optionally overlaid with a run.
func (s *AutoflowServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}

	wf, wfErr := s.store.GetWorkflow(ctx, workflowID)
	if wfErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow not found: %v", wfErr)), nil
	}

	var steps []*store.RunStep
	if runID := req.GetString("run_id", ""); runID != "" {
		run, runErr := s.store.GetRun(ctx, runID)
		if runErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run not found: %v", runErr)), nil
		}
		if run.WorkflowID != wf.ID {
			return mcp.NewToolResultError(fmt.Sprintf("run %q belongs to workflow %q", runID, run.WorkflowID)), nil
		}
		var listErr error
		if steps, listErr = s.store.ListRunSteps(ctx, runID); listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list steps failed: %v", listErr)), nil
		}
	}

	model, buildErr := diagram.Build(wf, steps)
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", buildErr)), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
	}
}

// handleStatus returns a run and its ordered step records.
func (s *AutoflowServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}

	run, getErr := s.store.GetRun(ctx, runID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", getErr)), nil
	}
	steps, listErr := s.store.ListRunSteps(ctx, runID)
	if listErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", listErr)), nil
	}
	if steps == nil {
		steps = []*store.RunStep{}
	}
	return marshalResult(map[string]any{"run": run, "steps": steps})
}

// handleQuery lists workflows, runs, integrations or connected credentials.
func (s *AutoflowServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "workflows":
		return s.queryWorkflows(ctx, filter)
	case "runs":
		return s.queryRuns(ctx, filter)
	case "integrations":
		return marshalResult(map[string]any{"integrations": s.registry.List()})
	case "credentials":
		return s.queryCredentials(ctx, filter)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// handleDefine validates a workflow definition and creates or replaces it.
func (s *AutoflowServer) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defRaw := mcp.ParseStringMap(req, "definition", nil)
	if defRaw == nil {
		return mcp.NewToolResultError("definition is required"), nil
	}

	// Round-trip through JSON to get a typed WorkflowDefinition.
	defBytes, marshalErr := json.Marshal(defRaw)
	if marshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", marshalErr)), nil
	}
	var def schema.WorkflowDefinition
	if unmarshalErr := json.Unmarshal(defBytes, &def); unmarshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", unmarshalErr)), nil
	}
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	def.IsActive = req.GetBool("active", true)
	// Scheduler bookkeeping is never client-supplied.
	def.TriggerConfig.LastFiredAt = nil

	result := s.validator.Validate(&def)
	if !result.Valid() {
		return marshalResult(map[string]any{
			"id":       def.ID,
			"stored":   false,
			"errors":   result.Errors,
			"warnings": result.Warnings,
		})
	}

	created := false
	existing, getErr := s.store.GetWorkflow(ctx, def.ID)
	switch {
	case getErr == nil:
		if existing.TenantID != def.TenantID {
			return mcp.NewToolResultError(fmt.Sprintf("workflow %q belongs to another tenant", def.ID)), nil
		}
		def.CreatedAt = existing.CreatedAt
		def.TriggerConfig.LastFiredAt = existing.TriggerConfig.LastFiredAt
		if err := s.store.UpdateWorkflow(ctx, &def); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to update workflow: %v", err)), nil
		}
	case schema.IsCode(getErr, schema.ErrCodeNotFound):
		def.CreatedAt = time.Now().UTC()
		if err := s.store.CreateWorkflow(ctx, &def); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create workflow: %v", err)), nil
		}
		created = true
	default:
		return mcp.NewToolResultError(fmt.Sprintf("workflow lookup failed: %v", getErr)), nil
	}

	s.logger.InfoContext(ctx, "workflow defined",
		"workflow_id", def.ID, "tenant_id", def.TenantID, "created", created)
	return marshalResult(map[string]any{
		"id":       def.ID,
		"stored":   true,
		"created":  created,
		"active":   def.IsActive,
		"warnings": result.Warnings,
	})
}

// handleConnect encrypts and stores a tenant credential, or deletes it.
func (s *AutoflowServer) handleConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenantID, err := req.RequireString("tenant_id")
	if err != nil {
		return mcp.NewToolResultError("tenant_id is required"), nil
	}
	integration, err := req.RequireString("integration")
	if err != nil {
		return mcp.NewToolResultError("integration is required"), nil
	}

	if req.GetBool("disconnect", false) {
		if delErr := s.store.DeleteCredential(ctx, tenantID, integration); delErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to delete credential: %v", delErr)), nil
		}
		return marshalResult(map[string]any{
			"tenant_id":   tenantID,
			"integration": integration,
			"connected":   false,
		})
	}

	creds := mcp.ParseStringMap(req, "credentials", nil)
	if len(creds) == 0 {
		return mcp.NewToolResultError("credentials are required"), nil
	}
	plaintext, marshalErr := json.Marshal(creds)
	if marshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid credentials: %v", marshalErr)), nil
	}
	secret, encErr := s.vault.Encrypt(plaintext)
	if encErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encrypt credentials: %v", encErr)), nil
	}
	if putErr := s.store.PutCredential(ctx, tenantID, integration, secret); putErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to store credential: %v", putErr)), nil
	}

	s.logger.InfoContext(ctx, "integration connected", "tenant_id", tenantID, "integration", integration)
	return marshalResult(map[string]any{
		"tenant_id":   tenantID,
		"integration": integration,
		"connected":   true,
		"registered":  s.isRegistered(integration),
	})
}

// --- Query helpers ---

func (s *AutoflowServer) queryWorkflows(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	wf := store.WorkflowFilter{
		TenantID:    extractString(filter, "tenant_id"),
		TriggerType: schema.TriggerType(extractString(filter, "trigger_type")),
		ActiveOnly:  extractBool(filter, "active_only"),
		Limit:       extractInt(filter, "limit", 50),
		Offset:      extractInt(filter, "offset", 0),
	}
	if wf.TriggerType != "" && !wf.TriggerType.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown trigger type: %s", wf.TriggerType)), nil
	}

	workflows, err := s.store.ListWorkflows(ctx, wf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	if workflows == nil {
		workflows = []*schema.WorkflowDefinition{}
	}
	return marshalResult(map[string]any{"workflows": workflows})
}

func (s *AutoflowServer) queryRuns(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	rf := store.RunFilter{
		WorkflowID: extractString(filter, "workflow_id"),
		TenantID:   extractString(filter, "tenant_id"),
		Status:     schema.RunStatus(extractString(filter, "status")),
		Limit:      extractInt(filter, "limit", 50),
	}

	runs, err := s.store.ListRuns(ctx, rf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	return marshalResult(map[string]any{"runs": runs})
}

func (s *AutoflowServer) queryCredentials(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	tenantID := extractString(filter, "tenant_id")
	if tenantID == "" {
		return mcp.NewToolResultError("credential query requires 'tenant_id' in filter"), nil
	}
	names, err := s.store.ListCredentials(ctx, tenantID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	if names == nil {
		names = []string{}
	}
	return marshalResult(map[string]any{"tenant_id": tenantID, "integrations": names})
}

// --- Internal helpers ---

func (s *AutoflowServer) isRegistered(name string) bool {
	for _, info := range s.registry.List() {
		if info.Name == name {
			return true
		}
	}
	return false
}

// errorCode returns the EngineError code of err, or "" for other errors.
func errorCode(err error) string {
	var engErr *schema.EngineError
	if errors.As(err, &engErr) {
		return engErr.Code
	}
	return ""
}

func extractString(filter map[string]any, key string) string {
	if filter == nil {
		return ""
	}
	s, _ := filter[key].(string)
	return s
}

func extractBool(filter map[string]any, key string) bool {
	if filter == nil {
		return false
	}
	switch v := filter[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
