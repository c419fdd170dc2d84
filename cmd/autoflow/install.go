package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

func runInstall(args []string) int {
	fs := flag.NewFlagSet("install", flag.ContinueOnError)
	dbPath := fs.String("db-path", "", "database path (default: ~/.autoflow/autoflow.db)")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	tick := fs.Duration("tick-interval", time.Minute, "workflow polling interval")
	backupEvery := fs.Duration("backup-interval", 30*time.Minute, "database backup interval")
	backupDir := fs.String("backup-dir", "", "backup directory (default: ~/.autoflow/backups, \"-\" disables)")
	backupRetain := fs.Int("backup-retain", 48, "number of backups to keep")
	stepTimeout := fs.Duration("step-timeout", 0, "per-step action timeout (0 = none)")
	mcpFlag := fs.Bool("mcp", false, "serve MCP tools over stdio")
	listen := fs.String("listen", "", "operator API address, e.g. 127.0.0.1:7070 (empty disables)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	dir := autoflowDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot create %s: %v\n", dir, err)
		return 1
	}

	cfg := defaultConfig()
	cfg.LogLevel = *logLevel
	cfg.TickInterval = Duration(*tick)
	cfg.BackupInterval = Duration(*backupEvery)
	cfg.BackupRetain = *backupRetain
	cfg.StepTimeout = Duration(*stepTimeout)
	cfg.MCP = *mcpFlag
	cfg.ListenAddr = *listen
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	switch *backupDir {
	case "":
	case "-":
		cfg.BackupDir = ""
	default:
		cfg.BackupDir = *backupDir
	}

	// Vault secrets are never written here; supply them via AUTOFLOW_VAULT_*.
	data, _ := json.MarshalIndent(cfg, "", "  ")
	path := settingsPath()
	if err := os.WriteFile(path, data, 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot write %s: %v\n", path, err)
		return 1
	}
	fmt.Printf("Config written to %s\n", path)

	if signalRunningServer() {
		return 0
	}
	fmt.Println("Start the server with: autoflow serve")
	return 0
}

// signalRunningServer sends SIGHUP to a running autoflow server (via pidfile).
// Returns true if the server was signaled.
func signalRunningServer() bool {
	data, err := os.ReadFile(pidPath())
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Check if process is alive.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return false
	}
	fmt.Printf("Signaled running server (PID %d) to reload configuration\n", pid)
	return true
}

func runBackup(args []string) int {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	out := fs.String("out", "", "snapshot path (default: <backup_dir>/autoflow-<timestamp>.db)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	dest := *out
	if dest == "" {
		if cfg.BackupDir == "" {
			fmt.Fprintln(os.Stderr, "Error: backups are disabled; pass -out")
			return 1
		}
		dest = filepath.Join(cfg.BackupDir, "autoflow-"+time.Now().UTC().Format("20060102T150405Z")+".db")
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer st.Close()

	if err := st.Backup(ctx, dest); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("Backup written to %s\n", dest)
	return 0
}
