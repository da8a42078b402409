package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citygasd_refresh_total",
			Help: "Total number of refresh cycles per provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	RefreshDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "citygasd_refresh_duration_seconds",
			Help:    "Refresh cycle duration in seconds per provider",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	FetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citygasd_fetch_errors_total",
			Help: "Total number of failed supplier fetches per provider and kind",
		},
		[]string{"provider", "kind"},
	)

	SnapshotFieldAge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "citygasd_snapshot_field_age_seconds",
			Help: "Seconds since each snapshot field was last confirmed",
		},
		[]string{"field"},
	)

	SnapshotFieldValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "citygasd_snapshot_field_value",
			Help: "Current value of each snapshot field",
		},
		[]string{"field"},
	)

	RolloversTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "citygasd_cycle_rollovers_total",
			Help: "Total number of completed reading-day rollovers",
		},
	)

	RolloverFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "citygasd_cycle_rollover_failures_total",
			Help: "Total number of aborted reading-day rollovers",
		},
	)
)

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "citygasd_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "citygasd_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citygasd_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}
