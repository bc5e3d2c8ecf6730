package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initTaskMetrics() {
	r.TasksStartedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "bench_tasks_started_total",
			Help: "Background tasks started",
		},
		[]string{"kind"},
	)

	r.TasksFinishedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "bench_tasks_finished_total",
			Help: "Background tasks finished, by terminal status",
		},
		[]string{"kind", "status"},
	)

	r.TasksRunning = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bench_tasks_running",
			Help: "Background tasks currently running",
		},
		[]string{"kind"},
	)

	r.TaskDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bench_task_duration_seconds",
			Help:    "Wall time of finished tasks",
			Buckets: prometheus.ExponentialBuckets(1, 3, 9),
		},
		[]string{"kind", "status"},
	)
}
