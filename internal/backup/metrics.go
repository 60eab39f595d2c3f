package backup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	backupRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_runs_total",
			Help: "Total number of backup pipeline runs by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	backupRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_triggers_rejected_total",
			Help: "Trigger requests rejected at admission",
		},
		[]string{"reason"},
	)

	backupDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backup_duration_seconds",
			Help:    "Wall-clock duration of completed backup pipelines",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	backupLastSuccessTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backup_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful backup",
		},
	)
)
