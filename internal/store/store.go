package store

import (
	"context"
	"time"

	"github.com/rendis/autoflow/internal/secrets"
	"github.com/rendis/autoflow/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflows
	CreateWorkflow(ctx context.Context, wf *schema.WorkflowDefinition) error
	UpdateWorkflow(ctx context.Context, wf *schema.WorkflowDefinition) error
	GetWorkflow(ctx context.Context, id string) (*schema.WorkflowDefinition, error)
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.WorkflowDefinition, error)
	SetWorkflowActive(ctx context.Context, id string, active bool) error
	RecordWorkflowFired(ctx context.Context, id string, firedAt time.Time) error

	// Runs
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	FinishRun(ctx context.Context, id string, status schema.RunStatus, errMsg string) error

	// Run steps (append-only, one terminal update each)
	CreateRunStep(ctx context.Context, step *RunStep) error
	FinishRunStep(ctx context.Context, id string, update RunStepUpdate) error
	ListRunSteps(ctx context.Context, runID string) ([]*RunStep, error)

	// Integration credentials
	PutCredential(ctx context.Context, tenantID, integration string, secret secrets.EncryptedSecret) error
	GetCredential(ctx context.Context, tenantID, integration string) (secrets.EncryptedSecret, error)
	DeleteCredential(ctx context.Context, tenantID, integration string) error
	ListCredentials(ctx context.Context, tenantID string) ([]string, error)

	// ClaimTrigger records that eventKey has started a run of workflowID.
	// It returns false if the event was already claimed.
	ClaimTrigger(ctx context.Context, workflowID, eventKey string) (bool, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Backup(ctx context.Context, destPath string) error

	// Lifecycle
	Close() error
}
