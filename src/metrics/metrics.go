package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powercube_pipeline_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"trigger", "status"},
	)

	RowsReadTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "powercube_rows_read_total",
			Help: "Total number of raw rows read from the input file",
		},
	)

	RowsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powercube_rows_dropped_total",
			Help: "Total number of rows dropped during cleaning",
		},
		[]string{"reason"},
	)

	RowsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "powercube_rows_loaded",
			Help: "Number of cleaned rows in the loaded cube",
		},
	)

	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powercube_queries_total",
			Help: "Total number of cube queries",
		},
		[]string{"question", "status"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "powercube_query_duration_seconds",
			Help:    "Duration of cube queries",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
		},
		[]string{"question"},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powercube_jobs_total",
			Help: "Total number of dispatched jobs",
		},
		[]string{"job", "status"},
	)
)

// Status 错误为空时返回 "ok"
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
