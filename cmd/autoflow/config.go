package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rendis/autoflow/internal/plugins"
	"github.com/rendis/autoflow/internal/secrets"
)

// Duration is a time.Duration that reads and writes as "90s", "1m" or
// "30m" in settings.json.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"1m\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config holds all autoflow server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath          string   `json:"db_path"`
	LogLevel        string   `json:"log_level"`
	VaultKey        string   `json:"vault_key,omitempty"`
	VaultPassphrase string   `json:"vault_passphrase,omitempty"`
	VaultSalt       string   `json:"vault_salt,omitempty"`
	TickInterval    Duration `json:"tick_interval"`
	BackupInterval  Duration `json:"backup_interval"`
	BackupDir       string   `json:"backup_dir"`
	BackupRetain    int      `json:"backup_retain"`
	StepTimeout     Duration `json:"step_timeout"`
	HTTPTimeout     Duration `json:"http_timeout"`
	MCP             bool     `json:"mcp"`
	// ListenAddr enables the operator HTTP API when non-empty.
	ListenAddr string `json:"listen_addr,omitempty"`
	// Plugins are external integrations served by MCP servers.
	Plugins []plugins.PluginConfig `json:"plugins,omitempty"`
}

func defaultConfig() Config {
	return Config{
		DBPath:         filepath.Join(autoflowDir(), "autoflow.db"),
		LogLevel:       "info",
		TickInterval:   Duration(time.Minute),
		BackupInterval: Duration(30 * time.Minute),
		BackupDir:      filepath.Join(autoflowDir(), "backups"),
		BackupRetain:   48,
		HTTPTimeout:    Duration(30 * time.Second),
	}
}

func autoflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".autoflow"
	}
	return filepath.Join(home, ".autoflow")
}

func settingsPath() string {
	return filepath.Join(autoflowDir(), "settings.json")
}

func pidPath() string {
	return filepath.Join(autoflowDir(), "autoflow.pid")
}

func loadConfig() (Config, error) {
	return loadConfigFrom(settingsPath(), os.Getenv)
}

// loadConfigFrom layers settings at path (ignored if missing) and the
// AUTOFLOW_* variables returned by getenv over the defaults.
func loadConfigFrom(path string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.json.
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	// Layer 3: env vars override.
	if v := getenv("AUTOFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("AUTOFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("AUTOFLOW_VAULT_KEY"); v != "" {
		cfg.VaultKey = v
	}
	if v := getenv("AUTOFLOW_VAULT_PASSPHRASE"); v != "" {
		cfg.VaultPassphrase = v
	}
	if v := getenv("AUTOFLOW_VAULT_SALT"); v != "" {
		cfg.VaultSalt = v
	}
	if v := getenv("AUTOFLOW_BACKUP_DIR"); v != "" {
		cfg.BackupDir = v
	}
	if v := getenv("AUTOFLOW_BACKUP_RETAIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("AUTOFLOW_BACKUP_RETAIN: %w", err)
		}
		cfg.BackupRetain = n
	}
	if v := getenv("AUTOFLOW_MCP"); v != "" {
		cfg.MCP = v == "true" || v == "1"
	}
	if v := getenv("AUTOFLOW_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	for env, dst := range map[string]*Duration{
		"AUTOFLOW_TICK_INTERVAL":   &cfg.TickInterval,
		"AUTOFLOW_BACKUP_INTERVAL": &cfg.BackupInterval,
		"AUTOFLOW_STEP_TIMEOUT":    &cfg.StepTimeout,
		"AUTOFLOW_HTTP_TIMEOUT":    &cfg.HTTPTimeout,
	} {
		v := getenv(env)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", env, err)
		}
		*dst = Duration(d)
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}
	if c.BackupInterval <= 0 {
		return fmt.Errorf("backup_interval must be positive")
	}
	if c.StepTimeout < 0 {
		return fmt.Errorf("step_timeout must not be negative")
	}
	seen := make(map[string]bool, len(c.Plugins))
	for i, p := range c.Plugins {
		if p.Name == "" || p.Command == "" {
			return fmt.Errorf("plugins[%d]: name and command are required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("plugins[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// vaultConfig builds the vault settings. A hex vault_key takes priority
// over passphrase derivation.
func (c Config) vaultConfig() (secrets.VaultConfig, error) {
	if c.VaultKey != "" {
		key, err := hex.DecodeString(strings.TrimSpace(c.VaultKey))
		if err != nil {
			return secrets.VaultConfig{}, fmt.Errorf("vault_key must be hex: %w", err)
		}
		return secrets.VaultConfig{MasterKey: key}, nil
	}
	if c.VaultPassphrase == "" {
		return secrets.VaultConfig{}, fmt.Errorf("vault_key or vault_passphrase is required")
	}
	if c.VaultSalt == "" {
		return secrets.VaultConfig{}, fmt.Errorf("vault_salt is required with vault_passphrase")
	}
	return secrets.VaultConfig{
		Passphrase: c.VaultPassphrase,
		Salt:       []byte(c.VaultSalt),
	}, nil
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged bool
	RestartNeeded   []string // fields that require a server restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.DBPath != new.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	if old.VaultKey != new.VaultKey || old.VaultPassphrase != new.VaultPassphrase || old.VaultSalt != new.VaultSalt {
		d.RestartNeeded = append(d.RestartNeeded, "vault")
	}
	if old.TickInterval != new.TickInterval || old.BackupInterval != new.BackupInterval ||
		old.BackupDir != new.BackupDir || old.BackupRetain != new.BackupRetain {
		d.RestartNeeded = append(d.RestartNeeded, "scheduler")
	}
	if old.StepTimeout != new.StepTimeout || old.HTTPTimeout != new.HTTPTimeout {
		d.RestartNeeded = append(d.RestartNeeded, "engine")
	}
	if old.MCP != new.MCP {
		d.RestartNeeded = append(d.RestartNeeded, "mcp")
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if !slices.EqualFunc(old.Plugins, new.Plugins, pluginEqual) {
		d.RestartNeeded = append(d.RestartNeeded, "plugins")
	}
	return d
}

func pluginEqual(a, b plugins.PluginConfig) bool {
	return a.Name == b.Name && a.Command == b.Command &&
		a.RequiresCredentials == b.RequiresCredentials &&
		slices.Equal(a.Args, b.Args) && slices.Equal(a.Env, b.Env)
}
