// Package metrics exposes the prometheus counters and gauges this collector
// publishes: queue throughput and task-run outcomes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ItemsProcessed counts work-queue items processed, labeled by pipeline
	// and outcome (ok, drop, retry_exhausted).
	ItemsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pcrdb_collector",
		Name:      "items_processed_total",
		Help:      "Work queue items processed, by pipeline and outcome.",
	}, []string{"pipeline", "outcome"})

	// QueueDepth reports the current backlog of unprocessed ids, per
	// pipeline run.
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pcrdb_collector",
		Name:      "queue_depth",
		Help:      "Unprocessed ids remaining in the current work queue run.",
	}, []string{"pipeline"})

	// TaskRuns counts task runs, both scheduler dispatches and cmd/task run
	// invocations, labeled by task name and final status (success, failed).
	TaskRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pcrdb_collector",
		Name:      "task_runs_total",
		Help:      "Scheduled task runs, by task name and status.",
	}, []string{"task", "status"})
)

// MustRegister registers every collector in this package against reg. Call
// once at process start.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(ItemsProcessed, QueueDepth, TaskRuns)
}
