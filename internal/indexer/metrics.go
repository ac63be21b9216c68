package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_tasks_total",
			Help: "Index maintenance tasks processed, by type and outcome",
		},
		[]string{"task_type", "status"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "index_task_duration_seconds",
			Help:    "Time spent processing one index maintenance task",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"task_type"},
	)

	rowsUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "index_rows_upserted_total",
			Help: "Index rows written by the index writer",
		},
	)
)
