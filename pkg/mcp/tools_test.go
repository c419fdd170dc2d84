package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/autoflow/internal/actions"
	"github.com/rendis/autoflow/internal/engine"
	"github.com/rendis/autoflow/internal/expressions"
	"github.com/rendis/autoflow/internal/secrets"
	"github.com/rendis/autoflow/internal/store"
	"github.com/rendis/autoflow/internal/validation"
	"github.com/rendis/autoflow/pkg/schema"
)

// --- Mock Store ---

type mockStore struct {
	store.Store // embed for unimplemented methods

	workflows map[string]*schema.WorkflowDefinition
	runs      []*store.Run
	steps     map[string][]*store.RunStep
	creds     map[string]secrets.EncryptedSecret
	listErr   error
}

func newMockStore() *mockStore {
	return &mockStore{
		workflows: make(map[string]*schema.WorkflowDefinition),
		steps:     make(map[string][]*store.RunStep),
		creds:     make(map[string]secrets.EncryptedSecret),
	}
}

func (m *mockStore) CreateWorkflow(_ context.Context, wf *schema.WorkflowDefinition) error {
	if _, ok := m.workflows[wf.ID]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow %q already exists", wf.ID)
	}
	cp := *wf
	m.workflows[wf.ID] = &cp
	return nil
}

func (m *mockStore) UpdateWorkflow(_ context.Context, wf *schema.WorkflowDefinition) error {
	if _, ok := m.workflows[wf.ID]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", wf.ID)
	}
	cp := *wf
	m.workflows[wf.ID] = &cp
	return nil
}

func (m *mockStore) GetWorkflow(_ context.Context, id string) (*schema.WorkflowDefinition, error) {
	wf, ok := m.workflows[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id)
	}
	cp := *wf
	return &cp, nil
}

func (m *mockStore) ListWorkflows(_ context.Context, filter store.WorkflowFilter) ([]*schema.WorkflowDefinition, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := make([]*schema.WorkflowDefinition, 0)
	for _, wf := range m.workflows {
		if filter.TenantID != "" && wf.TenantID != filter.TenantID {
			continue
		}
		if filter.TriggerType != "" && wf.TriggerType != filter.TriggerType {
			continue
		}
		if filter.ActiveOnly && !wf.IsActive {
			continue
		}
		result = append(result, wf)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *mockStore) GetRun(_ context.Context, id string) (*store.Run, error) {
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run %q not found", id)
}

func (m *mockStore) ListRuns(_ context.Context, filter store.RunFilter) ([]*store.Run, error) {
	result := make([]*store.Run, 0)
	for _, r := range m.runs {
		if filter.WorkflowID != "" && r.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

func (m *mockStore) ListRunSteps(_ context.Context, runID string) ([]*store.RunStep, error) {
	return m.steps[runID], nil
}

func (m *mockStore) PutCredential(_ context.Context, tenantID, integration string, secret secrets.EncryptedSecret) error {
	m.creds[tenantID+"/"+integration] = secret
	return nil
}

func (m *mockStore) DeleteCredential(_ context.Context, tenantID, integration string) error {
	key := tenantID + "/" + integration
	if _, ok := m.creds[key]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "no %s credential for tenant %q", integration, tenantID)
	}
	delete(m.creds, key)
	return nil
}

func (m *mockStore) ListCredentials(_ context.Context, tenantID string) ([]string, error) {
	var names []string
	for key := range m.creds {
		if len(key) > len(tenantID) && key[:len(tenantID)+1] == tenantID+"/" {
			names = append(names, key[len(tenantID)+1:])
		}
	}
	sort.Strings(names)
	return names, nil
}

// --- Mock Runner ---

type mockRunner struct {
	calls   []string
	payload any
	err     error
}

func (r *mockRunner) Trigger(_ context.Context, wf *schema.WorkflowDefinition, payload any, runID string) (*engine.RunResult, error) {
	r.calls = append(r.calls, wf.ID+"/"+runID)
	r.payload = payload
	if r.err != nil {
		return nil, r.err
	}
	return &engine.RunResult{
		RunID:   runID,
		Success: true,
		Context: engine.ExecutionContext{"trigger": payload},
	}, nil
}

// --- Helpers ---

type fixture struct {
	store  *mockStore
	runner *mockRunner
	vault  *secrets.AESVault
	server *AutoflowServer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := actions.NewRegistry()
	require.NoError(t, actions.RegisterBuiltins(reg, actions.BuiltinConfig{}))

	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)
	validator, err := validation.NewWorkflowValidator(reg, cel)
	require.NoError(t, err)

	vault, err := secrets.NewAESVault(secrets.VaultConfig{MasterKey: make([]byte, 32)})
	require.NoError(t, err)

	f := &fixture{store: newMockStore(), runner: &mockRunner{}, vault: vault}
	f.server = NewAutoflowServer(AutoflowServerDeps{
		Runner:    f.runner,
		Store:     f.store,
		Vault:     vault,
		Registry:  reg,
		Validator: validator,
	})
	return f
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func manualWorkflow(id string, active bool) *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		ID:          id,
		TenantID:    "tenant-1",
		TriggerType: schema.TriggerManual,
		Steps:       []schema.StepSpec{{Type: "expr_eval", Config: map[string]any{"expression": "1 + 1"}}},
		IsActive:    active,
	}
}

// --- Run ---

func TestRunTool(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateWorkflow(context.Background(), manualWorkflow("wf-1", true)))

	req := buildRequest("autoflow.run", map[string]any{
		"workflow_id": "wf-1",
		"run_id":      "run-42",
		"payload":     map[string]any{"name": "Ana"},
	})
	result, err := f.server.handleRun(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	require.Equal(t, []string{"wf-1/run-42"}, f.runner.calls)
	assert.Equal(t, map[string]any{"name": "Ana"}, f.runner.payload)

	var out engine.RunResult
	unmarshalResult(t, result, &out)
	assert.Equal(t, "run-42", out.RunID)
	assert.True(t, out.Success)
}

func TestRunToolGeneratesRunID(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateWorkflow(context.Background(), manualWorkflow("wf-1", true)))

	result, err := f.server.handleRun(context.Background(), buildRequest("autoflow.run", map[string]any{"workflow_id": "wf-1"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	require.Len(t, f.runner.calls, 1)
	assert.Greater(t, len(f.runner.calls[0]), len("wf-1/"))
	assert.Equal(t, map[string]any{}, f.runner.payload)
}

func TestRunToolInactiveWorkflow(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateWorkflow(context.Background(), manualWorkflow("wf-off", false)))

	result, err := f.server.handleRun(context.Background(), buildRequest("autoflow.run", map[string]any{"workflow_id": "wf-off"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Empty(t, f.runner.calls)
}

func TestRunToolUnknownWorkflow(t *testing.T) {
	f := newFixture(t)

	result, err := f.server.handleRun(context.Background(), buildRequest("autoflow.run", map[string]any{"workflow_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestRunToolMissingParams(t *testing.T) {
	f := newFixture(t)

	result, err := f.server.handleRun(context.Background(), buildRequest("autoflow.run", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestRunToolRunFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateWorkflow(context.Background(), manualWorkflow("wf-1", true)))
	f.runner.err = schema.NewErrorf(schema.ErrCodeIntegrationNotConnected, "integration %q is not connected for tenant %q", "slack", "tenant-1")

	result, err := f.server.handleRun(context.Background(), buildRequest("autoflow.run", map[string]any{
		"workflow_id": "wf-1",
		"run_id":      "run-1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "run failures are reported as data")

	var out map[string]any
	unmarshalResult(t, result, &out)
	assert.Equal(t, "run-1", out["run_id"])
	assert.Equal(t, false, out["success"])
	assert.Equal(t, schema.ErrCodeIntegrationNotConnected, out["code"])
	assert.Contains(t, out["error"], "slack")
}

// --- Diagram ---

func TestDiagramTool(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateWorkflow(context.Background(), manualWorkflow("wf-1", true)))
	f.store.runs = []*store.Run{{ID: "run-1", WorkflowID: "wf-1", Status: schema.RunStatusCompleted}}
	f.store.steps["run-1"] = []*store.RunStep{
		{ID: "s0", RunID: "run-1", StepNumber: 0, StepType: "expr_eval", Status: schema.StepStatusCompleted},
	}

	result, err := f.server.handleDiagram(context.Background(), buildRequest("autoflow.diagram", map[string]any{
		"workflow_id": "wf-1",
		"run_id":      "run-1",
		"format":      "mermaid",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))
	text := extractText(t, result)
	assert.Contains(t, text, "graph TD")
	assert.Contains(t, text, "class step_0 completed")

	result, err = f.server.handleDiagram(context.Background(), buildRequest("autoflow.diagram", map[string]any{
		"workflow_id": "wf-1",
		"format":      "ascii",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, extractText(t, result), "0: expr_eval")
}

func TestDiagramToolErrors(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateWorkflow(context.Background(), manualWorkflow("wf-1", true)))
	f.store.runs = []*store.Run{{ID: "run-9", WorkflowID: "other"}}

	cases := map[string]map[string]any{
		"missing format": {"workflow_id": "wf-1"},
		"bad format":     {"workflow_id": "wf-1", "format": "svg"},
		"unknown wf":     {"workflow_id": "nope", "format": "ascii"},
		"unknown run":    {"workflow_id": "wf-1", "format": "ascii", "run_id": "nope"},
		"foreign run":    {"workflow_id": "wf-1", "format": "ascii", "run_id": "run-9"},
		"missing wf id":  {"format": "ascii"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			result, err := f.server.handleDiagram(context.Background(), buildRequest("autoflow.diagram", args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}

// --- Status ---

func TestStatusTool(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	f.store.runs = []*store.Run{{ID: "run-1", WorkflowID: "wf-1", Status: schema.RunStatusFailed, Error: "boom", StartedAt: now}}
	f.store.steps["run-1"] = []*store.RunStep{
		{ID: "s1", RunID: "run-1", StepNumber: 1, StepType: "expr_eval", Status: schema.StepStatusCompleted},
		{ID: "s2", RunID: "run-1", StepNumber: 2, StepType: "http_request", Status: schema.StepStatusFailed, Error: "boom"},
	}

	result, err := f.server.handleStatus(context.Background(), buildRequest("autoflow.status", map[string]any{"run_id": "run-1"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Run   store.Run       `json:"run"`
		Steps []store.RunStep `json:"steps"`
	}
	unmarshalResult(t, result, &out)
	assert.Equal(t, schema.RunStatusFailed, out.Run.Status)
	assert.Equal(t, "boom", out.Run.Error)
	require.Len(t, out.Steps, 2)
	assert.Equal(t, 1, out.Steps[0].StepNumber)
	assert.Equal(t, 2, out.Steps[1].StepNumber)
}

func TestStatusToolMissingID(t *testing.T) {
	f := newFixture(t)

	result, err := f.server.handleStatus(context.Background(), buildRequest("autoflow.status", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestStatusToolNotFound(t *testing.T) {
	f := newFixture(t)

	result, err := f.server.handleStatus(context.Background(), buildRequest("autoflow.status", map[string]any{"run_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- Define ---

func TestDefineToolCreates(t *testing.T) {
	f := newFixture(t)

	req := buildRequest("autoflow.define", map[string]any{
		"definition": map[string]any{
			"id":             "wf-new",
			"tenant_id":      "tenant-1",
			"trigger_type":   "scheduled",
			"trigger_config": map[string]any{"cron": "*/5 * * * *"},
			"steps": []any{
				map[string]any{"type": "expr_eval", "config": map[string]any{"expression": "trigger.type"}},
			},
		},
	})
	result, err := f.server.handleDefine(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var out map[string]any
	unmarshalResult(t, result, &out)
	assert.Equal(t, true, out["stored"])
	assert.Equal(t, true, out["created"])

	stored, ok := f.store.workflows["wf-new"]
	require.True(t, ok)
	assert.True(t, stored.IsActive)
	assert.Equal(t, "*/5 * * * *", stored.TriggerConfig.Cron)
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestDefineToolUpdatesKeepingBookkeeping(t *testing.T) {
	f := newFixture(t)
	fired := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	created := fired.Add(-24 * time.Hour)
	wf := manualWorkflow("wf-1", true)
	wf.TriggerType = schema.TriggerScheduled
	wf.TriggerConfig = schema.TriggerConfig{Cron: "0 * * * *", LastFiredAt: &fired}
	wf.CreatedAt = created
	require.NoError(t, f.store.CreateWorkflow(context.Background(), wf))

	req := buildRequest("autoflow.define", map[string]any{
		"definition": map[string]any{
			"id":             "wf-1",
			"tenant_id":      "tenant-1",
			"trigger_type":   "scheduled",
			"trigger_config": map[string]any{"cron": "30 * * * *"},
			"steps":          []any{map[string]any{"type": "jq_transform", "config": map[string]any{"query": "."}}},
		},
		"active": false,
	})
	result, err := f.server.handleDefine(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var out map[string]any
	unmarshalResult(t, result, &out)
	assert.Equal(t, false, out["created"])

	stored := f.store.workflows["wf-1"]
	assert.Equal(t, "30 * * * *", stored.TriggerConfig.Cron)
	assert.False(t, stored.IsActive)
	assert.Equal(t, created, stored.CreatedAt)
	require.NotNil(t, stored.TriggerConfig.LastFiredAt)
	assert.Equal(t, fired, *stored.TriggerConfig.LastFiredAt)
}

func TestDefineToolRejectsOtherTenant(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateWorkflow(context.Background(), manualWorkflow("wf-1", true)))

	req := buildRequest("autoflow.define", map[string]any{
		"definition": map[string]any{
			"id":           "wf-1",
			"tenant_id":    "tenant-2",
			"trigger_type": "manual",
			"steps":        []any{map[string]any{"type": "expr_eval", "config": map[string]any{"expression": "1"}}},
		},
	})
	result, err := f.server.handleDefine(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "tenant-1", f.store.workflows["wf-1"].TenantID)
}

func TestDefineToolValidationErrors(t *testing.T) {
	f := newFixture(t)

	req := buildRequest("autoflow.define", map[string]any{
		"definition": map[string]any{
			"id":           "wf-bad",
			"tenant_id":    "tenant-1",
			"trigger_type": "scheduled",
			"steps":        []any{map[string]any{"type": "slack_send_message"}},
		},
	})
	result, err := f.server.handleDefine(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Stored bool                     `json:"stored"`
		Errors []schema.ValidationIssue `json:"errors"`
	}
	unmarshalResult(t, result, &out)
	assert.False(t, out.Stored)
	assert.NotEmpty(t, out.Errors)
	assert.Empty(t, f.store.workflows)
}

func TestDefineToolMissingParams(t *testing.T) {
	f := newFixture(t)

	result, err := f.server.handleDefine(context.Background(), buildRequest("autoflow.define", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- Connect ---

func TestConnectTool(t *testing.T) {
	f := newFixture(t)

	req := buildRequest("autoflow.connect", map[string]any{
		"tenant_id":   "tenant-1",
		"integration": "http",
		"credentials": map[string]any{"token": "secret-token", "base_url": "https://api.example.com"},
	})
	result, err := f.server.handleConnect(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var out map[string]any
	unmarshalResult(t, result, &out)
	assert.Equal(t, true, out["connected"])
	assert.Equal(t, true, out["registered"])

	secret, ok := f.store.creds["tenant-1/http"]
	require.True(t, ok)
	assert.NotContains(t, secret.String(), "secret-token")

	plain, err := f.vault.Decrypt(secret)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", secrets.DecodeCredentials(plain)["token"])
}

func TestConnectToolDisconnect(t *testing.T) {
	f := newFixture(t)
	f.store.creds["tenant-1/http"] = "00:00"

	result, err := f.server.handleConnect(context.Background(), buildRequest("autoflow.connect", map[string]any{
		"tenant_id":   "tenant-1",
		"integration": "http",
		"disconnect":  true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Empty(t, f.store.creds)
}

func TestConnectToolMissingParams(t *testing.T) {
	f := newFixture(t)

	for name, args := range map[string]map[string]any{
		"no tenant":      {"integration": "http", "credentials": map[string]any{"token": "x"}},
		"no integration": {"tenant_id": "t", "credentials": map[string]any{"token": "x"}},
		"no credentials": {"tenant_id": "t", "integration": "http"},
	} {
		t.Run(name, func(t *testing.T) {
			result, err := f.server.handleConnect(context.Background(), buildRequest("autoflow.connect", args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
	assert.Empty(t, f.store.creds)
}

// --- Query ---

func TestQueryWorkflows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreateWorkflow(ctx, manualWorkflow("wf-1", true)))
	require.NoError(t, f.store.CreateWorkflow(ctx, manualWorkflow("wf-2", false)))
	other := manualWorkflow("wf-3", true)
	other.TenantID = "tenant-2"
	require.NoError(t, f.store.CreateWorkflow(ctx, other))

	result, err := f.server.handleQuery(ctx, buildRequest("autoflow.query", map[string]any{
		"resource": "workflows",
		"filter":   map[string]any{"tenant_id": "tenant-1", "active_only": true},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Workflows []schema.WorkflowDefinition `json:"workflows"`
	}
	unmarshalResult(t, result, &out)
	require.Len(t, out.Workflows, 1)
	assert.Equal(t, "wf-1", out.Workflows[0].ID)
}

func TestQueryWorkflowsBadTriggerType(t *testing.T) {
	f := newFixture(t)

	result, err := f.server.handleQuery(context.Background(), buildRequest("autoflow.query", map[string]any{
		"resource": "workflows",
		"filter":   map[string]any{"trigger_type": "webhook"},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestQueryWorkflowsStoreError(t *testing.T) {
	f := newFixture(t)
	f.store.listErr = errors.New("database is locked")

	result, err := f.server.handleQuery(context.Background(), buildRequest("autoflow.query", map[string]any{"resource": "workflows"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestQueryRuns(t *testing.T) {
	f := newFixture(t)
	f.store.runs = []*store.Run{
		{ID: "r1", WorkflowID: "wf-1", Status: schema.RunStatusCompleted},
		{ID: "r2", WorkflowID: "wf-1", Status: schema.RunStatusFailed},
		{ID: "r3", WorkflowID: "wf-2", Status: schema.RunStatusCompleted},
	}

	result, err := f.server.handleQuery(context.Background(), buildRequest("autoflow.query", map[string]any{
		"resource": "runs",
		"filter":   map[string]any{"workflow_id": "wf-1", "status": "failed"},
	}))
	require.NoError(t, err)

	var out struct {
		Runs []store.Run `json:"runs"`
	}
	unmarshalResult(t, result, &out)
	require.Len(t, out.Runs, 1)
	assert.Equal(t, "r2", out.Runs[0].ID)
}

func TestQueryIntegrations(t *testing.T) {
	f := newFixture(t)

	result, err := f.server.handleQuery(context.Background(), buildRequest("autoflow.query", map[string]any{"resource": "integrations"}))
	require.NoError(t, err)

	var out struct {
		Integrations []actions.IntegrationInfo `json:"integrations"`
	}
	unmarshalResult(t, result, &out)
	var names []string
	for _, info := range out.Integrations {
		names = append(names, info.Name)
	}
	assert.ElementsMatch(t, []string{"expr", "http", "jq"}, names)
}

func TestQueryCredentials(t *testing.T) {
	f := newFixture(t)
	f.store.creds["tenant-1/http"] = "a:b"
	f.store.creds["tenant-1/email"] = "a:b"
	f.store.creds["tenant-2/http"] = "a:b"

	result, err := f.server.handleQuery(context.Background(), buildRequest("autoflow.query", map[string]any{
		"resource": "credentials",
		"filter":   map[string]any{"tenant_id": "tenant-1"},
	}))
	require.NoError(t, err)

	var out struct {
		Integrations []string `json:"integrations"`
	}
	unmarshalResult(t, result, &out)
	assert.Equal(t, []string{"email", "http"}, out.Integrations)

	result, err = f.server.handleQuery(context.Background(), buildRequest("autoflow.query", map[string]any{"resource": "credentials"}))
	require.NoError(t, err)
	assert.True(t, result.IsError, "tenant_id is required")
}

func TestQueryUnknownResource(t *testing.T) {
	f := newFixture(t)

	result, err := f.server.handleQuery(context.Background(), buildRequest("autoflow.query", map[string]any{
		"resource": "invalid",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestExtractInt(t *testing.T) {
	filter := map[string]any{"a": float64(7), "b": 3, "c": "12", "d": "x"}
	assert.Equal(t, 7, extractInt(filter, "a", 0))
	assert.Equal(t, 3, extractInt(filter, "b", 0))
	assert.Equal(t, 12, extractInt(filter, "c", 0))
	assert.Equal(t, 50, extractInt(filter, "d", 50))
	assert.Equal(t, 50, extractInt(nil, "a", 50))
}

// --- Test helpers ---

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}
