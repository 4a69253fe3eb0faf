package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/johnwmail/clipsync/config"
)

func TestSetupLogging(t *testing.T) {
	tests := []struct {
		level     string
		debugOn   bool
		infoOn    bool
		errorOnly bool
	}{
		{level: "debug", debugOn: true, infoOn: true},
		{level: "info", infoOn: true},
		{level: "warn"},
		{level: "error", errorOnly: true},
		{level: "bogus", infoOn: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.LogLevel = tt.level
			logger := setupLogging(cfg)
			ctx := context.Background()

			if got := logger.Enabled(ctx, -4); got != tt.debugOn {
				t.Errorf("debug enabled = %v, want %v", got, tt.debugOn)
			}
			if got := logger.Enabled(ctx, 0); got != tt.infoOn {
				t.Errorf("info enabled = %v, want %v", got, tt.infoOn)
			}
			if got := logger.Enabled(ctx, 4); got == tt.errorOnly {
				t.Errorf("warn enabled = %v with level %s", got, tt.level)
			}
		})
	}
}

func TestSetupLoggingToFile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "sweeper.log")

	logger := setupLogging(cfg)
	logger.Info("sweep finished", "deleted", 3)

	data, err := os.ReadFile(cfg.LogFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"deleted":3`) {
		t.Errorf("Expected JSON log line, got %s", data)
	}
}
