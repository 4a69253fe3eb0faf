// Package metrics holds the prometheus collectors exported on /metrics
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clipsync"

// Sweep layers
const (
	LayerClient  = "client"
	LayerBackend = "backend"
)

var (
	ClipsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "clips_written_total",
		Help:      "Clips written to the store, by kind.",
	}, []string{"kind"})

	ClipsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "clips_deleted_total",
		Help:      "Explicit clip deletions issued by users.",
	})

	DuplicatesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "duplicates_suppressed_total",
		Help:      "Text submissions dropped by the fingerprint guard.",
	})

	UploadsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_rejected_total",
		Help:      "Image uploads rejected by validation or the blob backend.",
	})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_errors_total",
		Help:      "Failed store operations, by operation.",
	}, []string{"op"})

	MalformedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "malformed_records_total",
		Help:      "Stored records skipped during delivery.",
	})

	SweptClips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "swept_clips_total",
		Help:      "Expired clips removed by sweeps, by layer.",
	}, []string{"layer"})

	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_runs_total",
		Help:      "Sweep executions, by layer and result.",
	}, []string{"layer", "result"})

	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_subscriptions",
		Help:      "Open live subscriptions held by sessions in this process.",
	})
)

// SweepResult labels a sweep run
func SweepResult(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
