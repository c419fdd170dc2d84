package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", TenantID(ctx))
	assert.Equal(t, "", WorkflowID(ctx))
	assert.Equal(t, "", RunID(ctx))
	assert.Equal(t, 0, Step(ctx))

	ctx = WithRun(ctx, "t1", "wf-123", "run-9")
	ctx = WithStep(ctx, 2)

	assert.Equal(t, "t1", TenantID(ctx))
	assert.Equal(t, "wf-123", WorkflowID(ctx))
	assert.Equal(t, "run-9", RunID(ctx))
	assert.Equal(t, 2, Step(ctx))
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithStep(WithRun(context.Background(), "t1", "wf-abc", "run-1"), 3)
	logger.InfoContext(ctx, "step finished")

	out := buf.String()
	assert.Contains(t, out, "step finished")
	assert.Contains(t, out, "tenant_id=t1")
	assert.Contains(t, out, "workflow_id=wf-abc")
	assert.Contains(t, out, "run_id=run-1")
	assert.Contains(t, out, "step=3")
}

func TestCorrelationHandler_MissingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	logger.InfoContext(WithWorkflowID(context.Background(), "wf-only"), "partial")

	out := buf.String()
	assert.Contains(t, out, "workflow_id=wf-only")
	assert.NotContains(t, out, "run_id")
	assert.NotContains(t, out, "tenant_id")
	assert.NotContains(t, out, "step=")
}

func TestCorrelationHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil))).
		With("component", "scheduler").
		WithGroup("tick")

	logger.InfoContext(WithRunID(context.Background(), "r1"), "fired", "count", 2)

	out := buf.String()
	assert.Contains(t, out, "component=scheduler")
	assert.Contains(t, out, "tick.count=2")
	assert.Contains(t, out, "r1")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewWithLeveler_RuntimeChange(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	logger := NewWithLeveler(&buf, level)

	logger.Debug("before")
	level.Set(slog.LevelDebug)
	logger.Debug("after")

	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "after")
}
