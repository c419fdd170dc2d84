package schema

import "time"

// TriggerType enumerates how a workflow run is started.
type TriggerType string

const (
	TriggerScheduled     TriggerType = "scheduled"
	TriggerEmailReceived TriggerType = "email_received"
	TriggerManual        TriggerType = "manual"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerScheduled, TriggerEmailReceived, TriggerManual:
		return true
	}
	return false
}

// WorkflowDefinition is a tenant-authored automation: a trigger plus an
// ordered list of steps.
type WorkflowDefinition struct {
	ID            string        `json:"id"`
	TenantID      string        `json:"tenant_id"`
	Name          string        `json:"name,omitempty"`
	TriggerType   TriggerType   `json:"trigger_type"`
	TriggerConfig TriggerConfig `json:"trigger_config"`
	Steps         []StepSpec    `json:"steps"`
	IsActive      bool          `json:"is_active"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TriggerConfig holds trigger parameters and scheduler bookkeeping.
type TriggerConfig struct {
	// Cron is a standard 5-field cron expression (scheduled workflows).
	Cron string `json:"cron,omitempty"`

	// Mailbox carries integration-specific options passed verbatim to the
	// mailbox check action (email_received workflows).
	Mailbox map[string]any `json:"mailbox,omitempty"`

	// Filter is an optional CEL expression over `email` that must evaluate
	// to true for a message to start a run.
	Filter string `json:"filter,omitempty"`

	// LastFiredAt is written by the scheduler only: the cron fire time most
	// recently dispatched for this workflow.
	LastFiredAt *time.Time `json:"last_fired_at,omitempty"`
}

// StepSpec is one unit of work: Type is "<integration>_<action>".
type StepSpec struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// StepStatus represents the lifecycle state of a single run step.
type StepStatus string

const (
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed
}
