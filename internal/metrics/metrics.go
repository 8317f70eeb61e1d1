// FILE: metrics.go
// Package metrics – Prometheus metrics for the backtesting engine.
//
// A package-level set of
// vectors registered once, served at /metrics in the exposition format,
// updated by the driver and resolver as a run progresses.
//
//   • backtest_tasks_dispatched_total        – grid coordinates dispatched
//   • backtest_tasks_recoverable_total{kind}  – tasks that left a NaN cell
//   • backtest_tasks_failed_total             – tasks that aborted the run
//   • backtest_potential_cache_total{result}  – potential-coin cache hits/misses
//   • backtest_task_duration_seconds          – per-task wall time (histogram)
//   • backtest_active_workers                 – current in-flight worker count
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TasksDispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backtest_tasks_dispatched_total",
		Help: "Grid coordinates dispatched to the worker pool.",
	})

	TasksRecoverable = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backtest_tasks_recoverable_total",
		Help: "Tasks that hit a recoverable error and left a NaN result cell.",
	}, []string{"kind"})

	TasksFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backtest_tasks_failed_total",
		Help: "Tasks that hit a non-recoverable error and aborted the run.",
	})

	PotentialCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backtest_potential_cache_total",
		Help: "Potential-coin resolver cache outcomes.",
	}, []string{"result"}) // hit|miss

	TaskDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "backtest_task_duration_seconds",
		Help:    "Wall time of a single grid-coordinate simulation.",
		Buckets: prometheus.DefBuckets,
	})

	ActiveWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "backtest_active_workers",
		Help: "Worker-pool goroutines currently executing a task.",
	})
)

func init() {
	prometheus.MustRegister(
		TasksDispatched,
		TasksRecoverable,
		TasksFailed,
		PotentialCache,
		TaskDuration,
		ActiveWorkers,
	)
}
