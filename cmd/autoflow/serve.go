package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rendis/autoflow/internal/logging"
)

func runServe() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewWithLeveler(os.Stderr, level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer a.close()

	if err := writePIDFile(); err != nil {
		logger.Warn("failed to write pid file", "error", err)
	}
	defer os.Remove(pidPath())

	go watchReload(ctx, cfg, level, logger)
	go a.plugins.Run(ctx)

	if err := a.scheduler.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		return 1
	}
	if cfg.ListenAddr != "" {
		shutdown := startHTTP(cfg.ListenAddr, a.panel.Handler(), logger)
		defer shutdown()
	}
	logger.Info("autoflow started", "version", version, "db_path", cfg.DBPath, "mcp", cfg.MCP, "listen_addr", cfg.ListenAddr)

	if cfg.MCP {
		// The stdio transport ends when the client closes stdin.
		if err := a.mcp.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("mcp server stopped", "error", err)
			return 1
		}
		return 0
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return 0
}

// startHTTP serves h on addr in the background. The returned func drains
// in-flight requests for up to five seconds.
func startHTTP(addr string, h http.Handler, logger *slog.Logger) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("operator API stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("operator API listening", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("operator API shutdown", "error", err)
		}
	}
}

// watchReload re-reads the configuration on SIGHUP. The log level applies
// immediately; other changes are reported as needing a restart and are
// compared against the running configuration on the next reload.
func watchReload(ctx context.Context, current Config, level *slog.LevelVar, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			next, err := loadConfig()
			if err != nil {
				logger.Error("config reload failed", "error", err)
				continue
			}
			d := diffConfigs(current, next)
			if d.LogLevelChanged {
				level.Set(logging.ParseLevel(next.LogLevel))
				logger.Info("log level changed", "level", next.LogLevel)
			}
			if len(d.RestartNeeded) > 0 {
				logger.Warn("config changes require a restart", "fields", d.RestartNeeded)
			}
			current.LogLevel = next.LogLevel
		}
	}
}

func writePIDFile() error {
	if err := os.MkdirAll(autoflowDir(), 0o700); err != nil {
		return err
	}
	return os.WriteFile(pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}
