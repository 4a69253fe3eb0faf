// Command sweeper deletes expired clips of every user on a fixed schedule. It is the
// long-running counterpart of the scheduled sweep Lambda.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/johnwmail/clipsync/config"
	"github.com/johnwmail/clipsync/internal/sweeper"
	"github.com/johnwmail/clipsync/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg)
	logger.Info("Starting clipsync sweeper",
		"version", version,
		"build_time", buildTime,
		"git_commit", gitCommit,
		"storage", cfg.StorageType,
		"interval", cfg.BackendSweepInterval,
		"cap", cfg.BackendSweepCap)

	if cfg.StorageType == "memory" {
		logger.Warn("The memory store is private to this process; the sweeper has nothing to sweep")
	}

	store, err := storage.NewClipStore(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend := sweeper.NewBackend(store, cfg.BackendSweepCap, logger)
	backend.RunOnce(ctx)
	sweeper.RunEvery(ctx, cfg.BackendSweepInterval, func(ctx context.Context) {
		backend.RunOnce(ctx)
	})

	logger.Info("Shutdown complete")
}

func setupLogging(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		return slog.New(slog.NewJSONHandler(file, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
