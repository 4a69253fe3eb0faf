// Package sweeper removes expired clips. The client sweep and the backend sweep run
// independently and without coordination; deletes are idempotent so overlap is harmless.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/johnwmail/clipsync/internal/metrics"
	"github.com/johnwmail/clipsync/storage"
)

// Reference caps, sized to the store's batch-write limits
const (
	ClientCap  = 50
	BackendCap = 400
)

// Partition runs one bounded sweep of a user's partition
func Partition(ctx context.Context, store storage.ClipStore, userID string, now time.Time, limit int, layer string) (int, error) {
	n, err := store.DeleteExpired(ctx, userID, now, limit)
	metrics.SweepRuns.WithLabelValues(layer, metrics.SweepResult(err)).Inc()
	if n > 0 {
		metrics.SweptClips.WithLabelValues(layer).Add(float64(n))
	}
	return n, err
}

// Summary reports one backend sweep across all partitions
type Summary struct {
	Partitions int
	Deleted    int
	Failed     int
	Err        error
}

// Backend is the scheduled sweep over every user partition
type Backend struct {
	store  storage.ClipStore
	limit  int
	now    func() time.Time
	logger *slog.Logger
}

// NewBackend creates a backend sweeper. limit <= 0 uses BackendCap.
func NewBackend(store storage.ClipStore, limit int, logger *slog.Logger) *Backend {
	if limit <= 0 {
		limit = BackendCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{store: store, limit: limit, now: time.Now, logger: logger}
}

// RunOnce sweeps every partition once. A failing partition is logged and counted but never
// stops the others. Err joins every partition failure.
func (b *Backend) RunOnce(ctx context.Context) Summary {
	start := b.now()
	parts, err := b.store.Partitions(ctx)
	if err != nil {
		b.logger.Error("Backend sweep could not list partitions", "error", err)
		metrics.SweepRuns.WithLabelValues(metrics.LayerBackend, metrics.SweepResult(err)).Inc()
		return Summary{Err: err}
	}

	sum := Summary{Partitions: len(parts)}
	var errs []error
	for _, userID := range parts {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		n, err := Partition(ctx, b.store, userID, b.now(), b.limit, metrics.LayerBackend)
		sum.Deleted += n
		if err != nil {
			sum.Failed++
			errs = append(errs, err)
			b.logger.Warn("Backend sweep failed for partition", "user", userID, "error", err)
			continue
		}
		if n > 0 {
			b.logger.Debug("Swept partition", "user", userID, "deleted", n)
		}
	}
	sum.Err = errors.Join(errs...)

	b.logger.Info("Backend sweep finished",
		"partitions", sum.Partitions,
		"deleted", sum.Deleted,
		"failed", sum.Failed,
		"duration", time.Since(start))
	return sum
}

// RunEvery calls fn every interval until ctx is done. It does not call fn immediately.
func RunEvery(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
