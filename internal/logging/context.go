package logging

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

type ctxKey int

const (
	tenantIDKey ctxKey = iota
	workflowIDKey
	runIDKey
	stepKey
)

// correlationAttrs lists the context keys copied onto log records, in
// output order.
var correlationAttrs = []struct {
	key  ctxKey
	attr string
}{
	{tenantIDKey, "tenant_id"},
	{workflowIDKey, "workflow_id"},
	{runIDKey, "run_id"},
	{stepKey, "step"},
}

// WithTenantID returns a context with the tenant ID set.
func WithTenantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, tenantIDKey, id)
}

// WithWorkflowID returns a context with the workflow ID set.
func WithWorkflowID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workflowIDKey, id)
}

// WithRunID returns a context with the run ID set.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithStep returns a context with the 1-based step number set.
func WithStep(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, stepKey, strconv.Itoa(n))
}

// WithRun sets the tenant, workflow and run IDs at once.
func WithRun(ctx context.Context, tenantID, workflowID, runID string) context.Context {
	ctx = WithTenantID(ctx, tenantID)
	ctx = WithWorkflowID(ctx, workflowID)
	return WithRunID(ctx, runID)
}

// TenantID extracts the tenant ID from the context, or "" if absent.
func TenantID(ctx context.Context) string { return value(ctx, tenantIDKey) }

// WorkflowID extracts the workflow ID from the context, or "" if absent.
func WorkflowID(ctx context.Context) string { return value(ctx, workflowIDKey) }

// RunID extracts the run ID from the context, or "" if absent.
func RunID(ctx context.Context) string { return value(ctx, runIDKey) }

// Step extracts the step number from the context, or 0 if absent.
func Step(ctx context.Context) int {
	n, _ := strconv.Atoi(value(ctx, stepKey))
	return n
}

func value(ctx context.Context, k ctxKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}

// CorrelationHandler wraps an slog.Handler, injecting correlation IDs from
// the context into every record. Callers use logger.InfoContext(ctx, ...)
// and the IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, c := range correlationAttrs {
		if v := value(ctx, c.key); v != "" {
			r.AddAttrs(slog.String(c.attr, v))
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps a config level name to a slog.Level. Unknown names
// yield info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds the process logger: a text handler on w wrapped with
// correlation injection.
func New(w io.Writer, level string) *slog.Logger {
	return NewWithLeveler(w, ParseLevel(level))
}

// NewWithLeveler is New with a caller-owned level, typically a *slog.LevelVar
// adjusted at runtime.
func NewWithLeveler(w io.Writer, level slog.Leveler) *slog.Logger {
	inner := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(NewCorrelationHandler(inner))
}
