package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rendis/autoflow/internal/actions"
	"github.com/rendis/autoflow/internal/engine"
	"github.com/rendis/autoflow/internal/expressions"
	"github.com/rendis/autoflow/internal/panel"
	"github.com/rendis/autoflow/internal/plugins"
	"github.com/rendis/autoflow/internal/scheduler"
	"github.com/rendis/autoflow/internal/secrets"
	"github.com/rendis/autoflow/internal/store"
	"github.com/rendis/autoflow/internal/streaming"
	"github.com/rendis/autoflow/internal/validation"
	autoflowmcp "github.com/rendis/autoflow/pkg/mcp"
)

// app holds the wired process components.
type app struct {
	store     *store.LibSQLStore
	registry  *actions.Registry
	runner    *engine.WorkflowRunner
	scheduler *scheduler.Scheduler
	mcp       *autoflowmcp.AutoflowServer
	plugins   *plugins.PluginManager
	panel     *panel.PanelServer
	hub       *streaming.MemoryHub
	logger    *slog.Logger
}

// newApp opens and migrates the database and wires the engine, scheduler,
// MCP server and operator API. Callers must call close.
func newApp(ctx context.Context, cfg Config, logger *slog.Logger) (*app, error) {
	vaultCfg, err := cfg.vaultConfig()
	if err != nil {
		return nil, err
	}
	vault, err := secrets.NewAESVault(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry := actions.NewRegistry()
	if err := actions.RegisterBuiltins(registry, actions.BuiltinConfig{
		HTTP:       actions.HTTPConfig{DefaultTimeout: time.Duration(cfg.HTTPTimeout)},
		HTTPClient: &http.Client{},
	}); err != nil {
		_ = st.Close()
		return nil, err
	}

	// A plugin that fails to load leaves its step types unresolvable; runs
	// using them fail with UNKNOWN_INTEGRATION.
	pm := plugins.NewPluginManager(registry, plugins.ManagerConfig{}, logger)
	for _, pc := range cfg.Plugins {
		if err := pm.LoadPlugin(ctx, pc); err != nil {
			logger.Error("failed to load plugin", "name", pc.Name, "error", err)
		}
	}

	cel, err := expressions.NewCELEngine()
	if err != nil {
		_ = pm.StopAll()
		_ = st.Close()
		return nil, err
	}
	validator, err := validation.NewWorkflowValidator(registry, cel)
	if err != nil {
		_ = pm.StopAll()
		_ = st.Close()
		return nil, err
	}

	executor := engine.NewStepExecutor(st, registry, vault, engine.EngineConfig{
		StepTimeout: time.Duration(cfg.StepTimeout),
	}, logger)
	runner := engine.NewWorkflowRunner(st, executor, logger)

	hub := streaming.NewMemoryHub()
	executor.WithEvents(hub)
	runner.WithEvents(hub)

	sched := scheduler.NewScheduler(st, runner, registry, vault, cel, scheduler.Config{
		TickInterval:   time.Duration(cfg.TickInterval),
		BackupInterval: time.Duration(cfg.BackupInterval),
		BackupDir:      cfg.BackupDir,
		BackupRetain:   cfg.BackupRetain,
	}, logger)

	srv := autoflowmcp.NewAutoflowServer(autoflowmcp.AutoflowServerDeps{
		Runner:    runner,
		Store:     st,
		Vault:     vault,
		Registry:  registry,
		Validator: validator,
		Logger:    logger,
	})

	ops := panel.NewPanelServer(panel.PanelDeps{
		Store:    st,
		Runner:   runner,
		Registry: registry,
		Hub:      hub,
		Plugins:  pm,
		Logger:   logger,
	})

	return &app{
		store:     st,
		registry:  registry,
		runner:    runner,
		scheduler: sched,
		mcp:       srv,
		plugins:   pm,
		panel:     ops,
		hub:       hub,
		logger:    logger,
	}, nil
}

func (a *app) close() {
	a.scheduler.Stop()
	if err := a.plugins.StopAll(); err != nil {
		a.logger.Error("failed to stop plugins", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close store", "error", err)
	}
}

// openStore opens the database at cfg.DBPath and applies pending migrations.
func openStore(ctx context.Context, cfg Config) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
