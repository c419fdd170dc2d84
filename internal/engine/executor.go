package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/autoflow/internal/actions"
	"github.com/rendis/autoflow/internal/expressions"
	"github.com/rendis/autoflow/internal/logging"
	"github.com/rendis/autoflow/internal/secrets"
	"github.com/rendis/autoflow/internal/store"
	"github.com/rendis/autoflow/internal/streaming"
	"github.com/rendis/autoflow/pkg/schema"
)

// EngineConfig holds execution settings shared by executor and runner.
type EngineConfig struct {
	// StepTimeout bounds a single action invocation. Zero means no limit.
	StepTimeout time.Duration
}

// StepRequest is one step execution within a run.
type StepRequest struct {
	RunID    string
	Number   int // 1-based position in the workflow's step list
	Step     schema.StepSpec
	Context  ExecutionContext
	TenantID string
}

// StepExecutor runs a single step: resolve, load credentials, interpolate,
// invoke, and persist the step record around the attempt.
type StepExecutor struct {
	store    store.Store
	registry actions.ActionRegistry
	vault    secrets.Vault
	config   EngineConfig
	logger   *slog.Logger
	events   streaming.Publisher
	now      func() time.Time
}

// NewStepExecutor creates a StepExecutor.
func NewStepExecutor(s store.Store, registry actions.ActionRegistry, vault secrets.Vault, cfg EngineConfig, logger *slog.Logger) *StepExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &StepExecutor{
		store:    s,
		registry: registry,
		vault:    vault,
		config:   cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ExecuteStep executes req and returns the decoded action result. A running
// record is persisted before anything else and exactly one terminal record
// after the attempt. Errors are EngineErrors carrying the step number.
func (e *StepExecutor) ExecuteStep(ctx context.Context, req StepRequest) (any, error) {
	ctx = logging.WithStep(ctx, req.Number)
	// Step bookkeeping must land even when ctx is cancelled mid-step.
	bookCtx := context.WithoutCancel(ctx)

	started := e.now()
	rec := &store.RunStep{
		ID:         uuid.New().String(),
		RunID:      req.RunID,
		StepNumber: req.Number,
		StepType:   req.Step.Type,
		Status:     schema.StepStatusRunning,
		StartedAt:  started,
	}
	if len(req.Step.Config) > 0 {
		if cfg, err := json.Marshal(req.Step.Config); err == nil {
			rec.Config = cfg
		}
	}
	if err := e.store.CreateRunStep(bookCtx, rec); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "record start of step %d: %s", req.Number, err).
			WithCause(err).WithStep(req.Number)
	}

	e.logger.DebugContext(ctx, "step started", "type", req.Step.Type)
	publish(ctx, e.events, e.logger, streaming.StreamEvent{
		RunID:      req.RunID,
		TenantID:   req.TenantID,
		StepNumber: req.Number,
		StepType:   req.Step.Type,
		EventType:  streaming.EventStepStarted,
	})

	result, raw, execErr := e.execute(ctx, req)

	completed := e.now()
	update := store.RunStepUpdate{
		Status:      schema.StepStatusCompleted,
		Result:      raw,
		CompletedAt: completed,
		DurationMs:  completed.Sub(started).Milliseconds(),
	}
	if execErr != nil {
		update.Status = schema.StepStatusFailed
		update.Result = nil
		update.Error = schema.Message(execErr)
	}

	if err := e.store.FinishRunStep(bookCtx, rec.ID, update); err != nil {
		e.logger.ErrorContext(ctx, "failed to record step outcome", "error", err)
		if execErr == nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "record outcome of step %d: %s", req.Number, err).
				WithCause(err).WithStep(req.Number)
		}
	}

	ev := streaming.StreamEvent{
		RunID:      req.RunID,
		TenantID:   req.TenantID,
		StepNumber: req.Number,
		StepType:   req.Step.Type,
		EventType:  streaming.EventStepCompleted,
		Timestamp:  completed,
	}
	if execErr != nil {
		e.logger.WarnContext(ctx, "step failed", "type", req.Step.Type, "error", update.Error)
		ev.EventType = streaming.EventStepFailed
		ev.Error = update.Error
		publish(ctx, e.events, e.logger, ev)
		return nil, execErr
	}
	e.logger.DebugContext(ctx, "step completed", "type", req.Step.Type, "duration_ms", update.DurationMs)
	ev.Payload = result
	publish(ctx, e.events, e.logger, ev)
	return result, nil
}

// execute performs the step without touching the step record.
func (e *StepExecutor) execute(ctx context.Context, req StepRequest) (any, json.RawMessage, error) {
	integration, action, err := e.registry.Resolve(req.Step.Type)
	if err != nil {
		return nil, nil, withStep(err, req.Number)
	}

	var creds map[string]any
	if integration.RequiresCredentials() {
		creds, err = e.loadCredentials(ctx, req.TenantID, integration.Name())
		if err != nil {
			return nil, nil, withStep(err, req.Number)
		}
	}

	config := expressions.SubstituteConfig(req.Step.Config, req.Context)

	actx := ctx
	if e.config.StepTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, e.config.StepTimeout)
		defer cancel()
	}

	out, err := e.invoke(actx, action, actions.ActionInput{
		Credentials: creds,
		Config:      config,
		Context:     req.Context.Snapshot(),
	})
	if err != nil {
		return nil, nil, e.actionError(actx, err, req)
	}

	var raw json.RawMessage
	if out != nil && len(out.Data) > 0 {
		raw = out.Data
	}
	if raw == nil {
		return nil, nil, nil
	}
	var result any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, nil, schema.NewErrorf(schema.ErrCodeActionExecution,
			"%s returned malformed JSON: %s", req.Step.Type, err).WithCause(err).WithStep(req.Number)
	}
	return result, raw, nil
}

type actionReturn struct {
	out *actions.ActionOutput
	err error
}

// invoke calls the action. With a step timeout configured the call runs in
// its own goroutine so an action that ignores its context still cannot hold
// the run past the deadline.
func (e *StepExecutor) invoke(ctx context.Context, action actions.Action, input actions.ActionInput) (*actions.ActionOutput, error) {
	if e.config.StepTimeout <= 0 {
		return action.Execute(ctx, input)
	}
	done := make(chan actionReturn, 1)
	go func() {
		out, err := action.Execute(ctx, input)
		done <- actionReturn{out: out, err: err}
	}()
	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// loadCredentials fetches and decrypts the tenant credential for integration.
// Decryption failures propagate unchanged.
func (e *StepExecutor) loadCredentials(ctx context.Context, tenantID, integration string) (map[string]any, error) {
	secret, err := e.store.GetCredential(ctx, tenantID, integration)
	if err != nil {
		if schema.IsCode(err, schema.ErrCodeNotFound) {
			return nil, schema.NewErrorf(schema.ErrCodeIntegrationNotConnected,
				"integration %q is not connected for tenant %q", integration, tenantID).
				WithDetails(map[string]any{"integration": integration, "tenant_id": tenantID})
		}
		return nil, schema.NewErrorf(schema.ErrCodeStore, "load %s credential: %s", integration, err).WithCause(err)
	}

	plaintext, err := e.vault.DecryptCredential(secret)
	if err != nil {
		return nil, err
	}
	return secrets.DecodeCredentials(plaintext), nil
}

// actionError normalizes an error returned by an action. Engine errors keep
// their code; anything else becomes ACTION_EXECUTION_ERROR with the original
// message verbatim.
func (e *StepExecutor) actionError(actx context.Context, err error, req StepRequest) error {
	var engErr *schema.EngineError
	if errors.As(err, &engErr) {
		return withStep(err, req.Number)
	}
	if e.config.StepTimeout > 0 && errors.Is(actx.Err(), context.DeadlineExceeded) {
		return schema.NewErrorf(schema.ErrCodeTimeout, "%s timed out after %s", req.Step.Type, e.config.StepTimeout).
			WithCause(err).WithStep(req.Number)
	}
	return schema.NewError(schema.ErrCodeActionExecution, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"step_type": req.Step.Type}).
		WithStep(req.Number)
}

// withStep returns err with the step number attached. EngineErrors are
// copied so shared error values are never mutated.
func withStep(err error, n int) error {
	var engErr *schema.EngineError
	if !errors.As(err, &engErr) {
		return fmt.Errorf("step %d: %w", n, err)
	}
	cp := *engErr
	cp.StepNumber = n
	if cp.Cause == nil && engErr != err {
		cp.Cause = err
	}
	return &cp
}
