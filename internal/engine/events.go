package engine

import (
	"context"
	"log/slog"

	"github.com/rendis/autoflow/internal/logging"
	"github.com/rendis/autoflow/internal/streaming"
)

// WithEvents makes the executor publish step.* events to p.
func (e *StepExecutor) WithEvents(p streaming.Publisher) *StepExecutor {
	e.events = p
	return e
}

// WithEvents makes the runner publish run.* events to p.
func (r *WorkflowRunner) WithEvents(p streaming.Publisher) *WorkflowRunner {
	r.events = p
	return r
}

// publish sends ev with run correlation taken from ctx. Delivery is
// best-effort and never affects the run.
func publish(ctx context.Context, p streaming.Publisher, logger *slog.Logger, ev streaming.StreamEvent) {
	if p == nil {
		return
	}
	if ev.RunID == "" {
		ev.RunID = logging.RunID(ctx)
	}
	if ev.WorkflowID == "" {
		ev.WorkflowID = logging.WorkflowID(ctx)
	}
	if ev.TenantID == "" {
		ev.TenantID = logging.TenantID(ctx)
	}
	if err := p.Publish(context.WithoutCancel(ctx), ev); err != nil {
		logger.DebugContext(ctx, "event publish failed", "event_type", ev.EventType, "error", err)
	}
}
