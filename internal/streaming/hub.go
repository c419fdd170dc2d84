package streaming

import (
	"context"
	"time"
)

// Event types published during a run.
const (
	EventRunStarted    = "run.started"
	EventRunCompleted  = "run.completed"
	EventRunFailed     = "run.failed"
	EventStepStarted   = "step.started"
	EventStepCompleted = "step.completed"
	EventStepFailed    = "step.failed"
)

// StreamEvent is a real-time event emitted during workflow execution.
type StreamEvent struct {
	RunID      string    `json:"run_id"`
	WorkflowID string    `json:"workflow_id"`
	TenantID   string    `json:"tenant_id,omitempty"`
	StepNumber int       `json:"step_number,omitempty"`
	StepType   string    `json:"step_type,omitempty"`
	EventType  string    `json:"event_type"`
	Error      string    `json:"error,omitempty"`
	Payload    any       `json:"payload,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventFilter specifies which events a subscriber wants to receive.
// Empty fields match everything.
type EventFilter struct {
	TenantID   string   `json:"tenant_id,omitempty"`
	WorkflowID string   `json:"workflow_id,omitempty"`
	RunID      string   `json:"run_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// Publisher is the write side of an EventHub.
type Publisher interface {
	Publish(ctx context.Context, event StreamEvent) error
}

// EventHub provides pub/sub for real-time workflow events.
type EventHub interface {
	Publisher
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
