package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initGenerationMetrics() {
	r.GenerationEntitiesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "bench_generation_entities_total",
			Help: "Entities and edges written by generation, by outcome",
		},
		[]string{"kind", "result"}, // succeeded, failed
	)

	r.GenerationPhaseDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bench_generation_phase_duration_seconds",
			Help:    "Wall time of one generation phase",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		},
		[]string{"kind"},
	)

	r.GenerationBackendSeconds = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "bench_generation_backend_seconds_total",
			Help: "Accumulated time spent in backend writes during generation",
		},
		[]string{"backend", "kind"},
	)

	r.GenerationBackendErrorsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "bench_generation_backend_errors_total",
			Help: "Failed backend writes during generation",
		},
		[]string{"backend", "kind"},
	)

	r.GenerationMemoryPeakBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "bench_generation_memory_peak_bytes",
			Help: "Peak resident set size observed during the last generation",
		},
	)
}
