package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/autoflow/internal/secrets"
	"github.com/rendis/autoflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/autoflow.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so QueryRow is used.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Backup writes a consistent snapshot of the database to destPath using
// VACUUM INTO. The destination must not exist.
func (s *LibSQLStore) Backup(ctx context.Context, destPath string) error {
	if destPath == "" {
		return schema.NewError(schema.ErrCodeValidation, "backup path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o700); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	quoted := "'" + strings.ReplaceAll(destPath, "'", "''") + "'"
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO "+quoted); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "backup to %s failed", destPath).WithCause(err)
	}
	return nil
}

// --- Workflows ---

const workflowColumns = `id, tenant_id, name, trigger_type, trigger_config, steps, is_active, last_fired_at, created_at, updated_at`

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *schema.WorkflowDefinition) error {
	trig, steps, err := marshalWorkflowDocs(wf)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	wf.CreatedAt = timeOrNow(wf.CreatedAt)
	if wf.UpdatedAt.IsZero() {
		wf.UpdatedAt = now
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (`+workflowColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.TenantID, nullStr(wf.Name), string(wf.TriggerType), trig, steps,
		wf.IsActive, nullTime(wf.TriggerConfig.LastFiredAt), wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow %q already exists", wf.ID).WithCause(err)
	}
	return err
}

// UpdateWorkflow replaces the definition fields of an existing workflow.
// Scheduler bookkeeping (last_fired_at) and created_at are preserved.
func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, wf *schema.WorkflowDefinition) error {
	trig, steps, err := marshalWorkflowDocs(wf)
	if err != nil {
		return err
	}
	wf.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET tenant_id = ?, name = ?, trigger_type = ?, trigger_config = ?, steps = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		wf.TenantID, nullStr(wf.Name), string(wf.TriggerType), trig, steps, wf.IsActive, wf.UpdatedAt, wf.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", wf.ID)
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*schema.WorkflowDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", id)
	}
	return wf, err
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.WorkflowDefinition, error) {
	var where []string
	var args []any

	if filter.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.TriggerType != "" {
		where = append(where, "trigger_type = ?")
		args = append(args, string(filter.TriggerType))
	}
	if filter.ActiveOnly {
		where = append(where, "is_active = 1")
	}

	query := `SELECT ` + workflowColumns + ` FROM workflows`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*schema.WorkflowDefinition
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) SetWorkflowActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET is_active = ?, updated_at = ? WHERE id = ?`, active, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

func (s *LibSQLStore) RecordWorkflowFired(ctx context.Context, id string, firedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET last_fired_at = ? WHERE id = ?`, firedAt.UTC(), id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(sc rowScanner) (*schema.WorkflowDefinition, error) {
	wf := &schema.WorkflowDefinition{}
	var (
		name            sql.NullString
		trigType        string
		trigJSON, steps string
		lastFired       sql.NullTime
	)
	if err := sc.Scan(&wf.ID, &wf.TenantID, &name, &trigType, &trigJSON, &steps,
		&wf.IsActive, &lastFired, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return nil, err
	}
	wf.Name = name.String
	wf.TriggerType = schema.TriggerType(trigType)
	if err := json.Unmarshal([]byte(trigJSON), &wf.TriggerConfig); err != nil {
		return nil, fmt.Errorf("unmarshal trigger_config of %s: %w", wf.ID, err)
	}
	if err := json.Unmarshal([]byte(steps), &wf.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps of %s: %w", wf.ID, err)
	}
	wf.TriggerConfig.LastFiredAt = nil
	if lastFired.Valid {
		t := lastFired.Time
		wf.TriggerConfig.LastFiredAt = &t
	}
	return wf, nil
}

func marshalWorkflowDocs(wf *schema.WorkflowDefinition) (trig, steps string, err error) {
	cfg := wf.TriggerConfig
	cfg.LastFiredAt = nil
	tb, err := json.Marshal(cfg)
	if err != nil {
		return "", "", fmt.Errorf("marshal trigger_config: %w", err)
	}
	specs := wf.Steps
	if specs == nil {
		specs = []schema.StepSpec{}
	}
	sb, err := json.Marshal(specs)
	if err != nil {
		return "", "", fmt.Errorf("marshal steps: %w", err)
	}
	return string(tb), string(sb), nil
}

// --- Runs ---

const runColumns = `id, workflow_id, tenant_id, status, trigger_payload, error, started_at, completed_at`

func (s *LibSQLStore) CreateRun(ctx context.Context, run *Run) error {
	if run.Status == "" {
		run.Status = schema.RunStatusProcessing
	}
	run.StartedAt = timeOrNow(run.StartedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.WorkflowID, run.TenantID, string(run.Status), nullRaw(run.TriggerPayload),
		nullStr(run.Error), run.StartedAt, nullTime(run.CompletedAt),
	)
	if err != nil && isUniqueViolation(err) {
		return schema.NewErrorf(schema.ErrCodeConflict, "run %q already exists", run.ID).WithCause(err)
	}
	return err
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	return run, err
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + runColumns + ` FROM workflow_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// FinishRun moves a processing run to a terminal status. A run that is
// already terminal is rejected with INVALID_TRANSITION.
func (s *LibSQLStore) FinishRun(ctx context.Context, id string, status schema.RunStatus, errMsg string) error {
	if !status.IsTerminal() {
		return schema.NewErrorf(schema.ErrCodeValidation, "run status %q is not terminal", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_runs SET status = ?, error = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(status), nullStr(errMsg), time.Now().UTC(), id, string(schema.RunStatusProcessing),
	)
	if err != nil {
		return err
	}
	return s.checkTransition(ctx, res, "workflow_runs", "run", id)
}

func scanRun(sc rowScanner) (*Run, error) {
	run := &Run{}
	var (
		status      string
		payload     sql.NullString
		errMsg      sql.NullString
		completedAt sql.NullTime
	)
	if err := sc.Scan(&run.ID, &run.WorkflowID, &run.TenantID, &status, &payload, &errMsg,
		&run.StartedAt, &completedAt); err != nil {
		return nil, err
	}
	run.Status = schema.RunStatus(status)
	run.TriggerPayload = rawOrNil(payload)
	run.Error = errMsg.String
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

// --- Run steps ---

func (s *LibSQLStore) CreateRunStep(ctx context.Context, step *RunStep) error {
	if step.Status == "" {
		step.Status = schema.StepStatusRunning
	}
	step.StartedAt = timeOrNow(step.StartedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_run_steps (id, run_id, step_number, step_type, config, status, result, error, started_at, completed_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.ID, step.RunID, step.StepNumber, step.StepType, nullRaw(step.Config), string(step.Status),
		nullRaw(step.Result), nullStr(step.Error), step.StartedAt, nullTime(step.CompletedAt), nullInt(step.DurationMs),
	)
	if err != nil && isUniqueViolation(err) {
		return schema.NewErrorf(schema.ErrCodeConflict, "step %d of run %q already recorded", step.StepNumber, step.RunID).WithCause(err)
	}
	return err
}

// FinishRunStep writes the single terminal update of a running step.
func (s *LibSQLStore) FinishRunStep(ctx context.Context, id string, update RunStepUpdate) error {
	if !update.Status.IsTerminal() {
		return schema.NewErrorf(schema.ErrCodeValidation, "step status %q is not terminal", update.Status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_run_steps SET status = ?, result = ?, error = ?, completed_at = ?, duration_ms = ?
		 WHERE id = ? AND status = ?`,
		string(update.Status), nullRaw(update.Result), nullStr(update.Error),
		timeOrNow(update.CompletedAt), update.DurationMs, id, string(schema.StepStatusRunning),
	)
	if err != nil {
		return err
	}
	return s.checkTransition(ctx, res, "workflow_run_steps", "run step", id)
}

func (s *LibSQLStore) ListRunSteps(ctx context.Context, runID string) ([]*RunStep, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, step_number, step_type, config, status, result, error, started_at, completed_at, duration_ms
		 FROM workflow_run_steps WHERE run_id = ? ORDER BY step_number`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*RunStep
	for rows.Next() {
		st := &RunStep{}
		var (
			status              string
			config, result, msg sql.NullString
			completedAt         sql.NullTime
			duration            sql.NullInt64
		)
		if err := rows.Scan(&st.ID, &st.RunID, &st.StepNumber, &st.StepType, &config, &status,
			&result, &msg, &st.StartedAt, &completedAt, &duration); err != nil {
			return nil, err
		}
		st.Status = schema.StepStatus(status)
		st.Config = rawOrNil(config)
		st.Result = rawOrNil(result)
		st.Error = msg.String
		st.DurationMs = duration.Int64
		if completedAt.Valid {
			st.CompletedAt = &completedAt.Time
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// --- Credentials ---

func (s *LibSQLStore) PutCredential(ctx context.Context, tenantID, integration string, secret secrets.EncryptedSecret) error {
	if secret.IsZero() {
		return schema.NewErrorf(schema.ErrCodeValidation, "empty credential for %s/%s", tenantID, integration)
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO integration_credentials (tenant_id, integration, encrypted_credentials, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id, integration) DO UPDATE SET encrypted_credentials = excluded.encrypted_credentials, updated_at = excluded.updated_at`,
		tenantID, integration, secret.String(), now, now,
	)
	return err
}

// GetCredential returns the stored secret, normalizing legacy storage
// shapes. A missing row is NOT_FOUND.
func (s *LibSQLStore) GetCredential(ctx context.Context, tenantID, integration string) (secrets.EncryptedSecret, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT encrypted_credentials FROM integration_credentials WHERE tenant_id = ? AND integration = ?`,
		tenantID, integration,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return "", storeNotFound("credential", tenantID+"/"+integration)
	}
	if err != nil {
		return "", err
	}
	return secrets.ParseStoredSecret([]byte(raw)), nil
}

func (s *LibSQLStore) DeleteCredential(ctx context.Context, tenantID, integration string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM integration_credentials WHERE tenant_id = ? AND integration = ?`, tenantID, integration)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "credential", tenantID+"/"+integration)
}

func (s *LibSQLStore) ListCredentials(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT integration FROM integration_credentials WHERE tenant_id = ? ORDER BY integration`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// --- Trigger receipts ---

func (s *LibSQLStore) ClaimTrigger(ctx context.Context, workflowID, eventKey string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO trigger_receipts (workflow_id, event_key, claimed_at) VALUES (?, ?, ?)
		 ON CONFLICT(workflow_id, event_key) DO NOTHING`,
		workflowID, eventKey, time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.EngineError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

// checkTransition distinguishes a missing row from one that was already
// terminal when a guarded status update touched nothing.
func (s *LibSQLStore) checkTransition(ctx context.Context, res sql.Result, table, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM `+table+` WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return storeNotFound(resource, id)
	}
	if err != nil {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeInvalidTransition, "%s %q is already %s", resource, id, status).
		WithDetails(map[string]any{"status": status})
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed")
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

var _ Store = (*LibSQLStore)(nil)
