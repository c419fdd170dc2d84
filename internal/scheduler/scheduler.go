package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/autoflow/internal/actions"
	"github.com/rendis/autoflow/internal/engine"
	"github.com/rendis/autoflow/internal/logging"
	"github.com/rendis/autoflow/internal/secrets"
	"github.com/rendis/autoflow/internal/store"
	"github.com/rendis/autoflow/pkg/schema"
)

const (
	DefaultTickInterval   = time.Minute
	DefaultBackupInterval = 30 * time.Minute
	DefaultBackupRetain   = 48
)

// WorkflowTrigger starts a run of a workflow. Satisfied by
// *engine.WorkflowRunner.
type WorkflowTrigger interface {
	Trigger(ctx context.Context, wf *schema.WorkflowDefinition, payload any, runID string) (*engine.RunResult, error)
}

// FilterEvaluator evaluates email trigger filters. Satisfied by
// *expressions.CELEngine.
type FilterEvaluator interface {
	EvaluateBool(ctx context.Context, expression string, data map[string]any) (bool, error)
}

// Config controls tick cadence and backups.
type Config struct {
	TickInterval   time.Duration
	BackupInterval time.Duration
	// BackupDir disables backups when empty.
	BackupDir    string
	BackupRetain int
	// Lookback bounds the previous-fire search for cron schedules.
	Lookback time.Duration
}

func (c *Config) withDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.BackupInterval <= 0 {
		c.BackupInterval = DefaultBackupInterval
	}
	if c.BackupRetain <= 0 {
		c.BackupRetain = DefaultBackupRetain
	}
	if c.Lookback <= 0 {
		c.Lookback = defaultLookback
	}
}

// Scheduler polls for due work: new mail for email_received workflows and
// cron fires for scheduled workflows on one ticker, database backups on
// another. Each tick runs in its own goroutine; a tick that finds the
// previous tick of the same kind still running is skipped.
type Scheduler struct {
	store    store.Store
	runner   WorkflowTrigger
	registry actions.ActionRegistry
	vault    secrets.Vault
	filters  FilterEvaluator
	config   Config
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	workflowTick sync.Mutex
	backupTick   sync.Mutex
}

// NewScheduler creates a Scheduler.
func NewScheduler(s store.Store, runner WorkflowTrigger, registry actions.ActionRegistry, vault secrets.Vault, filters FilterEvaluator, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    s,
		runner:   runner,
		registry: registry,
		vault:    vault,
		filters:  filters,
		config:   cfg,
		logger:   logger.With("component", "scheduler"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the tick loops. The first workflow tick runs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return fmt.Errorf("scheduler already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.loop(loopCtx, s.config.TickInterval, true, s.TickWorkflows)
	}()
	go func() {
		defer wg.Done()
		s.loop(loopCtx, s.config.BackupInterval, false, s.TickBackup)
	}()
	go func(done chan struct{}) {
		wg.Wait()
		close(done)
	}(s.done)

	s.logger.Info("scheduler started",
		"tick_interval", s.config.TickInterval,
		"backup_interval", s.config.BackupInterval)
	return nil
}

// Stop cancels the loops and waits for in-flight ticks. Stopping a
// scheduler that is not running is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration, immediate bool, tick func(context.Context)) {
	var inflight sync.WaitGroup
	defer inflight.Wait()

	fire := func() {
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			tick(ctx)
		}()
	}

	if immediate {
		fire()
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fire()
		}
	}
}

// TickWorkflows runs one workflow polling pass: email workflows first, then
// scheduled workflows, sequentially. Errors are logged per workflow.
func (s *Scheduler) TickWorkflows(ctx context.Context) {
	if !s.workflowTick.TryLock() {
		s.logger.WarnContext(ctx, "previous workflow tick still running, skipping")
		return
	}
	defer s.workflowTick.Unlock()

	now := s.now()
	s.pollMailboxes(ctx, now)
	s.pollSchedules(ctx, now)
}

// --- Email ---

func (s *Scheduler) pollMailboxes(ctx context.Context, now time.Time) {
	wfs, err := s.store.ListWorkflows(ctx, store.WorkflowFilter{
		TriggerType: schema.TriggerEmailReceived,
		ActiveOnly:  true,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list email workflows", "error", err)
		return
	}
	for _, wf := range wfs {
		if ctx.Err() != nil {
			return
		}
		wctx := logging.WithWorkflowID(logging.WithTenantID(ctx, wf.TenantID), wf.ID)
		if err := s.checkMailbox(wctx, wf, now); err != nil {
			s.logger.WarnContext(wctx, "mailbox check skipped", "error", err)
		}
	}
}

func (s *Scheduler) checkMailbox(ctx context.Context, wf *schema.WorkflowDefinition, now time.Time) error {
	secret, err := s.store.GetCredential(ctx, wf.TenantID, actions.MailboxIntegration)
	if err != nil {
		return fmt.Errorf("load mailbox credential: %w", err)
	}
	plaintext, err := s.vault.DecryptCredential(secret)
	if err != nil {
		return fmt.Errorf("decrypt mailbox credential: %w", err)
	}

	_, check, err := s.registry.Resolve(actions.MailboxIntegration + "_" + actions.MailboxCheckAction)
	if err != nil {
		return err
	}

	options := make(map[string]any, len(wf.TriggerConfig.Mailbox))
	for k, v := range wf.TriggerConfig.Mailbox {
		options[k] = v
	}
	out, err := check.Execute(ctx, actions.ActionInput{
		Credentials: secrets.DecodeCredentials(plaintext),
		Config:      options,
	})
	if err != nil {
		return fmt.Errorf("check mailbox: %w", err)
	}
	res, err := actions.DecodeCheckResult(out)
	if err != nil {
		return err
	}

	for _, msg := range res.Emails {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.dispatchEmail(ctx, wf, msg, now)
	}
	return nil
}

func (s *Scheduler) dispatchEmail(ctx context.Context, wf *schema.WorkflowDefinition, msg actions.Email, now time.Time) {
	email := msg.Payload()
	payload := map[string]any{"type": "email", "email": email}

	if f := wf.TriggerConfig.Filter; f != "" && s.filters != nil {
		ok, err := s.filters.EvaluateBool(ctx, f, map[string]any{
			"email":    email,
			"trigger":  payload,
			"workflow": map[string]any{"id": wf.ID, "tenant_id": wf.TenantID, "name": wf.Name},
		})
		if err != nil {
			s.logger.WarnContext(ctx, "email filter failed", "message_id", msg.ID, "error", err)
			return
		}
		if !ok {
			s.logger.DebugContext(ctx, "email filtered out", "message_id", msg.ID)
			return
		}
	}

	if msg.ID != "" {
		claimed, err := s.store.ClaimTrigger(ctx, wf.ID, "email:"+msg.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to claim email trigger", "message_id", msg.ID, "error", err)
			return
		}
		if !claimed {
			s.logger.DebugContext(ctx, "email already triggered", "message_id", msg.ID)
			return
		}
	}

	runID := fmt.Sprintf("email-%s-%d", msg.ID, now.UnixMilli())
	if _, err := s.runner.Trigger(ctx, wf, payload, runID); err != nil {
		s.logger.WarnContext(ctx, "email-triggered run failed", "run_id", runID, "error", err)
	}
}

// --- Cron ---

func (s *Scheduler) pollSchedules(ctx context.Context, now time.Time) {
	wfs, err := s.store.ListWorkflows(ctx, store.WorkflowFilter{
		TriggerType: schema.TriggerScheduled,
		ActiveOnly:  true,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list scheduled workflows", "error", err)
		return
	}
	for _, wf := range wfs {
		if ctx.Err() != nil {
			return
		}
		wctx := logging.WithWorkflowID(logging.WithTenantID(ctx, wf.TenantID), wf.ID)
		s.checkSchedule(wctx, wf, now)
	}
}

func (s *Scheduler) checkSchedule(ctx context.Context, wf *schema.WorkflowDefinition, now time.Time) {
	expr := wf.TriggerConfig.Cron
	sched, err := ParseCron(expr)
	if err != nil {
		s.logger.WarnContext(ctx, "skipping workflow with invalid cron", "cron", expr, "error", err)
		return
	}
	prev, ok := PreviousFire(sched, now, s.config.Lookback)
	if !ok || !IsDue(prev, now) {
		return
	}
	if last := wf.TriggerConfig.LastFiredAt; last != nil && !last.Before(prev) {
		s.logger.DebugContext(ctx, "cron fire already dispatched", "fire_time", prev)
		return
	}
	if err := s.store.RecordWorkflowFired(ctx, wf.ID, prev); err != nil {
		s.logger.ErrorContext(ctx, "failed to record cron fire", "error", err)
		return
	}

	payload := map[string]any{
		"type":      "schedule",
		"timestamp": now.Format(time.RFC3339),
		"cron":      expr,
	}
	if _, err := s.runner.Trigger(ctx, wf, payload, ""); err != nil {
		s.logger.WarnContext(ctx, "scheduled run failed", "error", err)
	}
}
