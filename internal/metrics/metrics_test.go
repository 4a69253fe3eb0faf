package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollectorsRegistered(t *testing.T) {
	ClipsWritten.WithLabelValues("text").Inc()
	SweepRuns.WithLabelValues(LayerBackend, SweepResult(nil)).Inc()
	ActiveSubscriptions.Inc()
	defer ActiveSubscriptions.Dec()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		"clipsync_clips_written_total",
		"clipsync_sweep_runs_total",
		"clipsync_active_subscriptions",
	} {
		if !found[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestSweepResult(t *testing.T) {
	if SweepResult(nil) != "ok" || SweepResult(errors.New("x")) != "error" {
		t.Error("unexpected sweep result labels")
	}
}
