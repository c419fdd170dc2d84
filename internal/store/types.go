package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/autoflow/pkg/schema"
)

// Run is a persisted workflow run.
type Run struct {
	ID             string           `json:"id"`
	WorkflowID     string           `json:"workflow_id"`
	TenantID       string           `json:"tenant_id"`
	Status         schema.RunStatus `json:"status"`
	TriggerPayload json.RawMessage  `json:"trigger_payload,omitempty"`
	Error          string           `json:"error,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}

// RunStep is the persisted record of one step execution.
type RunStep struct {
	ID          string            `json:"id"`
	RunID       string            `json:"run_id"`
	StepNumber  int               `json:"step_number"`
	StepType    string            `json:"step_type"`
	Config      json.RawMessage   `json:"config,omitempty"`
	Status      schema.StepStatus `json:"status"`
	Result      json.RawMessage   `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	DurationMs  int64             `json:"duration_ms,omitempty"`
}

// RunStepUpdate is the single terminal write of a run step.
type RunStepUpdate struct {
	Status      schema.StepStatus
	Result      json.RawMessage
	Error       string
	CompletedAt time.Time
	DurationMs  int64
}

// WorkflowFilter selects workflows for listing.
type WorkflowFilter struct {
	TenantID    string
	TriggerType schema.TriggerType
	ActiveOnly  bool
	Limit       int
	Offset      int
}

// RunFilter selects runs for listing.
type RunFilter struct {
	WorkflowID string
	TenantID   string
	Status     schema.RunStatus
	Limit      int
}
