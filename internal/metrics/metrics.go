// Package metrics exposes prometheus collectors for the pool and the job coordinator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counters
	JobsSubmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csvgen_jobs_submitted_total",
			Help: "Total number of generation jobs accepted",
		},
	)

	JobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csvgen_jobs_finished_total",
			Help: "Total number of generation jobs that reached a terminal state",
		},
		[]string{"status"}, // completed, failed
	)

	ValidationErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csvgen_validation_errors_total",
			Help: "Total number of submissions rejected by validation",
		},
	)

	ChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csvgen_chunks_total",
			Help: "Total number of chunk outcomes delivered by the pool",
		},
		[]string{"outcome"}, // success, failure, crash, cancelled
	)

	UnitCrashesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csvgen_unit_crashes_total",
			Help: "Total number of execution units replaced after a crash",
		},
	)

	RowsGeneratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csvgen_rows_generated_total",
			Help: "Total number of data rows written to merged artifacts",
		},
	)

	// Gauges
	BusyUnits = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "csvgen_pool_busy_units",
			Help: "Current number of execution units running a chunk",
		},
	)

	PendingTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "csvgen_pool_pending_tasks",
			Help: "Current number of chunk tasks waiting for a unit",
		},
	)

	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "csvgen_active_jobs",
			Help: "Current number of jobs that have not reached a terminal state",
		},
	)

	ProgressSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "csvgen_progress_subscribers",
			Help: "Current number of progress subscribers",
		},
	)

	// Histograms
	// Buckets: 5ms doubling up to ~82s
	ChunkDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "csvgen_chunk_duration_seconds",
			Help:    "Chunk execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 15),
		},
	)

	JobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "csvgen_job_duration_seconds",
			Help:    "End-to-end job duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		},
		[]string{"status"},
	)
)
