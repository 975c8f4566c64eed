package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsTotal counts per-file outcomes.
	// Labels: stage (resample/scan), status (ok/reused/failed)
	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_items_total",
			Help: "Total number of items processed by stage and status",
		},
		[]string{"stage", "status"},
	)

	// ItemDuration is the wall time spent on one file.
	ItemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "curator_item_duration_seconds",
			Help:    "Per-item processing duration in seconds by stage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 120},
		},
		[]string{"stage"},
	)

	// StageRunsTotal counts pipeline stage executions.
	// Labels: stage, status (done/skipped/failed)
	StageRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_stage_runs_total",
			Help: "Total number of pipeline stage runs by stage and status",
		},
		[]string{"stage", "status"},
	)

	// ResampleInFlight is the number of files currently being transcoded.
	ResampleInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "curator_resample_in_flight",
			Help: "Number of files currently being transcoded",
		},
	)
)

const (
	StatusOK      = "ok"
	StatusReused  = "reused"
	StatusFailed  = "failed"
	StatusDone    = "done"
	StatusSkipped = "skipped"
)

// RecordItem records one processed item.
func RecordItem(stage, status string, d time.Duration) {
	ItemsTotal.WithLabelValues(stage, status).Inc()
	if status != StatusReused {
		ItemDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// RecordStage records one stage execution.
func RecordStage(stage, status string) {
	StageRunsTotal.WithLabelValues(stage, status).Inc()
}
