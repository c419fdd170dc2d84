package engine

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rendis/autoflow/internal/logging"
	"github.com/rendis/autoflow/internal/store"
	"github.com/rendis/autoflow/internal/streaming"
	"github.com/rendis/autoflow/pkg/schema"
)

// StepRunner executes one step. Satisfied by *StepExecutor.
type StepRunner interface {
	ExecuteStep(ctx context.Context, req StepRequest) (any, error)
}

// RunResult is the outcome of a successful run.
type RunResult struct {
	RunID   string           `json:"run_id"`
	Success bool             `json:"success"`
	Context ExecutionContext `json:"context"`
}

// WorkflowRunner executes a workflow's steps sequentially, fail-fast, and
// writes the run's single terminal status.
type WorkflowRunner struct {
	store    store.Store
	executor StepRunner
	logger   *slog.Logger
	events   streaming.Publisher
}

// NewWorkflowRunner creates a WorkflowRunner.
func NewWorkflowRunner(s store.Store, executor StepRunner, logger *slog.Logger) *WorkflowRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowRunner{store: s, executor: executor, logger: logger}
}

// Trigger creates a processing run record for wf and runs it. runID may be
// empty, in which case a UUID is generated.
func (r *WorkflowRunner) Trigger(ctx context.Context, wf *schema.WorkflowDefinition, payload any, runID string) (*RunResult, error) {
	if wf == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}
	if runID == "" {
		runID = uuid.New().String()
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "trigger payload is not JSON-serializable").WithCause(err)
	}
	if err := r.store.CreateRun(ctx, &store.Run{
		ID:             runID,
		WorkflowID:     wf.ID,
		TenantID:       wf.TenantID,
		Status:         schema.RunStatusProcessing,
		TriggerPayload: raw,
	}); err != nil {
		return nil, err
	}

	return r.Run(ctx, runID, wf, payload, wf.TenantID)
}

// Run executes the steps of wf in list order against an existing processing
// run. The first failing step aborts the loop: later steps are never
// attempted, the run is marked failed with that step's message, and the
// step's error is returned.
func (r *WorkflowRunner) Run(ctx context.Context, runID string, wf *schema.WorkflowDefinition, payload any, tenantID string) (*RunResult, error) {
	ctx = logging.WithRun(ctx, tenantID, wf.ID, runID)
	r.logger.InfoContext(ctx, "run started", "steps", len(wf.Steps))
	publish(ctx, r.events, r.logger, streaming.StreamEvent{EventType: streaming.EventRunStarted, Payload: payload})

	execCtx := NewExecutionContext(payload)

	for i, step := range wf.Steps {
		n := i + 1
		if ctxErr := ctx.Err(); ctxErr != nil {
			err := schema.NewErrorf(schema.ErrCodeActionExecution, "run cancelled before step %d: %s", n, ctxErr).
				WithCause(ctxErr).WithStep(n)
			return nil, r.fail(ctx, runID, n, err)
		}
		result, err := r.executor.ExecuteStep(ctx, StepRequest{
			RunID:    runID,
			Number:   n,
			Step:     step,
			Context:  execCtx,
			TenantID: tenantID,
		})
		if err != nil {
			return nil, r.fail(ctx, runID, n, err)
		}
		execCtx.SetStepResult(n, result)
	}

	r.finish(ctx, runID, schema.RunStatusCompleted, "")
	r.logger.InfoContext(ctx, "run completed")
	publish(ctx, r.events, r.logger, streaming.StreamEvent{EventType: streaming.EventRunCompleted})
	return &RunResult{RunID: runID, Success: true, Context: execCtx}, nil
}

// fail records the run as failed at step n and returns err.
func (r *WorkflowRunner) fail(ctx context.Context, runID string, n int, err error) error {
	r.finish(ctx, runID, schema.RunStatusFailed, schema.Message(err))
	r.logger.WarnContext(ctx, "run failed", "step", n, "error", err)
	publish(ctx, r.events, r.logger, streaming.StreamEvent{
		EventType:  streaming.EventRunFailed,
		StepNumber: n,
		Error:      schema.Message(err),
	})
	return err
}

// finish writes the terminal run status. It ignores cancellation of ctx.
func (r *WorkflowRunner) finish(ctx context.Context, runID string, status schema.RunStatus, msg string) {
	if err := r.store.FinishRun(context.WithoutCancel(ctx), runID, status, msg); err != nil {
		r.logger.ErrorContext(ctx, "failed to record run outcome", "status", status, "error", err)
	}
}
