// Package plugins loads external integrations served by MCP servers. Each
// plugin becomes one integration in the action registry; its tools become
// the integration's actions, so a plugin named "email" exposing a "check"
// tool serves the email_check step type.
package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/autoflow/internal/actions"
	"github.com/rendis/autoflow/pkg/schema"
)

const (
	defaultHealthInterval = 30 * time.Second
	defaultCallTimeout    = 30 * time.Second
	handshakeTimeout      = 10 * time.Second
	maxPingFailures       = 3
	maxRestartBackoff     = 60 * time.Second
)

// Plugin states reported by Status.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusStopped   = "stopped"
)

// PluginConfig describes how to launch a plugin and the integration it serves.
type PluginConfig struct {
	// Name is the integration name the plugin's tools are registered under.
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Env     []string `json:"env,omitempty"`
	// RequiresCredentials makes steps of this integration need a connected
	// tenant credential, which is passed to tools as the "credentials" argument.
	RequiresCredentials bool `json:"requires_credentials,omitempty"`
}

// ManagerConfig tunes the plugin manager. Zero values use defaults.
type ManagerConfig struct {
	HealthInterval time.Duration
	CallTimeout    time.Duration
	Dialer         Dialer
}

// PluginManager manages the lifecycle of plugin client sessions.
type PluginManager struct {
	registry actions.ActionRegistry
	config   ManagerConfig
	plugins  map[string]*managedPlugin
	mu       sync.RWMutex
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) bool
}

type managedPlugin struct {
	config PluginConfig

	mu       sync.RWMutex
	client   MCPClient
	status   string
	errCount int
	lastErr  string
}

func (mp *managedPlugin) session() (MCPClient, string) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.client, mp.status
}

// NewPluginManager creates a new PluginManager.
func NewPluginManager(registry actions.ActionRegistry, cfg ManagerConfig, logger *slog.Logger) *PluginManager {
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaultHealthInterval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = StdioDialer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PluginManager{
		registry: registry,
		config:   cfg,
		plugins:  make(map[string]*managedPlugin),
		logger:   logger.With("component", "plugins"),
		sleep:    sleepCtx,
	}
}

// LoadPlugin connects to a plugin, discovers its tools and registers them as
// the actions of integration cfg.Name.
func (pm *PluginManager) LoadPlugin(ctx context.Context, cfg PluginConfig) error {
	if cfg.Name == "" || cfg.Command == "" {
		return schema.NewError(schema.ErrCodeValidation, "plugin name and command are required")
	}

	pm.mu.Lock()
	if _, exists := pm.plugins[cfg.Name]; exists {
		pm.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeConflict, "plugin %q already loaded", cfg.Name)
	}
	pm.mu.Unlock()

	c, tools, err := pm.connect(ctx, cfg)
	if err != nil {
		return err
	}

	mp := &managedPlugin{config: cfg, client: c, status: StatusHealthy}
	acts := make([]actions.Action, 0, len(tools))
	for _, t := range tools {
		acts = append(acts, &toolAction{name: t.Name, plugin: mp, timeout: pm.config.CallTimeout})
	}
	if err := pm.registry.Register(actions.NewIntegration(cfg.Name, cfg.RequiresCredentials, acts...)); err != nil {
		_ = c.Close()
		return err
	}

	pm.mu.Lock()
	pm.plugins[cfg.Name] = mp
	pm.mu.Unlock()

	pm.logger.Info("plugin loaded", "name", cfg.Name, "actions", len(acts))
	return nil
}

// connect dials and initializes a session and lists the plugin's tools.
func (pm *PluginManager) connect(ctx context.Context, cfg PluginConfig) (MCPClient, []mcp.Tool, error) {
	c, err := pm.config.Dialer(ctx, cfg)
	if err != nil {
		return nil, nil, schema.NewErrorf(schema.ErrCodeUnknownIntegration, "start plugin %q: %s", cfg.Name, err).WithCause(err)
	}

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "autoflow", Version: "1.0.0"}
	if _, err := c.Initialize(hctx, req); err != nil {
		_ = c.Close()
		return nil, nil, schema.NewErrorf(schema.ErrCodeUnknownIntegration, "handshake with plugin %q: %s", cfg.Name, err).WithCause(err)
	}

	res, err := c.ListTools(hctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return nil, nil, schema.NewErrorf(schema.ErrCodeUnknownIntegration, "list tools of plugin %q: %s", cfg.Name, err).WithCause(err)
	}
	return c, res.Tools, nil
}

// Run pings every plugin each health interval until ctx is cancelled. After
// maxPingFailures consecutive failures a plugin is reconnected with
// exponential backoff. The tool set registered at load time is kept.
func (pm *PluginManager) Run(ctx context.Context) {
	ticker := time.NewTicker(pm.config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.checkAll(ctx)
		}
	}
}

func (pm *PluginManager) checkAll(ctx context.Context) {
	pm.mu.RLock()
	plugins := make([]*managedPlugin, 0, len(pm.plugins))
	for _, mp := range pm.plugins {
		plugins = append(plugins, mp)
	}
	pm.mu.RUnlock()

	for _, mp := range plugins {
		pm.check(ctx, mp)
	}
}

func (pm *PluginManager) check(ctx context.Context, mp *managedPlugin) {
	c, status := mp.session()
	if status == StatusStopped {
		return
	}

	var err error
	if c == nil {
		err = fmt.Errorf("not connected")
	} else {
		pctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
		err = c.Ping(pctx)
		cancel()
	}

	mp.mu.Lock()
	if err == nil {
		mp.errCount = 0
		mp.lastErr = ""
		mp.status = StatusHealthy
		mp.mu.Unlock()
		return
	}
	mp.errCount++
	mp.lastErr = err.Error()
	failures := mp.errCount
	if failures >= maxPingFailures {
		mp.status = StatusUnhealthy
	}
	mp.mu.Unlock()

	pm.logger.Warn("plugin ping failed", "name", mp.config.Name, "consecutive_errors", failures, "error", err)
	if failures >= maxPingFailures {
		pm.restart(ctx, mp, failures)
	}
}

// restart replaces the plugin session after a backoff of
// min(1s * 2^failures, 60s).
func (pm *PluginManager) restart(ctx context.Context, mp *managedPlugin, failures int) {
	delay := restartBackoff(failures)
	pm.logger.Info("restarting plugin", "name", mp.config.Name, "backoff", delay)
	if !pm.sleep(ctx, delay) {
		return
	}

	c, _, err := pm.connect(ctx, mp.config)
	if err != nil {
		pm.logger.Error("failed to restart plugin", "name", mp.config.Name, "error", err)
		return
	}

	mp.mu.Lock()
	if mp.status == StatusStopped {
		mp.mu.Unlock()
		_ = c.Close()
		return
	}
	old := mp.client
	mp.client = c
	mp.status = StatusHealthy
	mp.errCount = 0
	mp.lastErr = ""
	mp.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	pm.logger.Info("plugin restarted", "name", mp.config.Name)
}

func restartBackoff(failures int) time.Duration {
	if failures >= 6 {
		return maxRestartBackoff
	}
	return min(time.Second<<failures, maxRestartBackoff)
}

// StopAll closes every plugin session. Registered actions fail afterwards.
func (pm *PluginManager) StopAll() error {
	pm.mu.RLock()
	plugins := make([]*managedPlugin, 0, len(pm.plugins))
	for _, mp := range pm.plugins {
		plugins = append(plugins, mp)
	}
	pm.mu.RUnlock()

	var lastErr error
	for _, mp := range plugins {
		mp.mu.Lock()
		c := mp.client
		mp.client = nil
		mp.status = StatusStopped
		mp.mu.Unlock()

		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			lastErr = err
			pm.logger.Error("failed to stop plugin", "name", mp.config.Name, "error", err)
		}
	}
	return lastErr
}

// Status returns the current state of every loaded plugin.
func (pm *PluginManager) Status() map[string]string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	result := make(map[string]string, len(pm.plugins))
	for name, mp := range pm.plugins {
		_, status := mp.session()
		result[name] = status
	}
	return result
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// toolAction wraps a plugin tool as an Action.
type toolAction struct {
	name    string
	plugin  *managedPlugin
	timeout time.Duration
}

func (a *toolAction) Name() string { return a.name }

// Execute calls the tool with the step config as arguments. The result is
// the tool's structured content when present, otherwise its text content
// (kept as JSON when it parses, else wrapped as a JSON string).
func (a *toolAction) Execute(ctx context.Context, input actions.ActionInput) (*actions.ActionOutput, error) {
	c, status := a.plugin.session()
	if c == nil {
		return nil, schema.NewErrorf(schema.ErrCodeActionExecution, "plugin %q is %s", a.plugin.config.Name, status)
	}

	args := make(map[string]any, len(input.Config)+1)
	for k, v := range input.Config {
		args[k] = v
	}
	if input.Credentials != nil {
		args["credentials"] = input.Credentials
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	res, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: a.name, Arguments: args},
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeActionExecution, "%s.%s: call failed: %s", a.plugin.config.Name, a.name, err).WithCause(err)
	}
	text := resultText(res)
	if res.IsError {
		return nil, schema.NewErrorf(schema.ErrCodeActionExecution, "%s.%s: %s", a.plugin.config.Name, a.name, text)
	}

	if res.StructuredContent != nil {
		return actions.JSONOutput(res.StructuredContent)
	}
	if text == "" {
		return &actions.ActionOutput{}, nil
	}
	if json.Valid([]byte(text)) {
		return &actions.ActionOutput{Data: json.RawMessage(text)}, nil
	}
	return actions.JSONOutput(text)
}

func resultText(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
