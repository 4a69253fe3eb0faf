// Command lambda runs the scheduled backend sweep as an AWS Lambda function triggered by an
// EventBridge schedule.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/johnwmail/clipsync/config"
	"github.com/johnwmail/clipsync/internal/sweeper"
	"github.com/johnwmail/clipsync/storage"
)

var (
	backend *sweeper.Backend
	logger  *slog.Logger
)

// Result is returned to the scheduler
type Result struct {
	Partitions int    `json:"partitions"`
	Deleted    int    `json:"deleted"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

func init() {
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(nil)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	store, err := storage.NewClipStore(cfg, logger)
	if err != nil {
		logger.Error("Failed to create storage backend", "error", err)
		os.Exit(1)
	}
	backend = sweeper.NewBackend(store, cfg.BackendSweepCap, logger)

	logger.Info("Lambda function initialized",
		"storage_type", cfg.StorageType,
		"sweep_cap", cfg.BackendSweepCap)
}

func handler(ctx context.Context, event events.CloudWatchEvent) (Result, error) {
	logger.Info("Scheduled sweep triggered", "id", event.ID, "detail_type", event.DetailType, "time", event.Time)
	return run(ctx, backend), nil
}

// run sweeps once; partition failures are reported in the result
func run(ctx context.Context, b *sweeper.Backend) Result {
	sum := b.RunOnce(ctx)
	res := Result{Partitions: sum.Partitions, Deleted: sum.Deleted, Failed: sum.Failed}
	if sum.Err != nil {
		res.Error = sum.Err.Error()
	}
	return res
}

func main() {
	lambda.Start(handler)
}
