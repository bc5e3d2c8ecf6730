package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initBenchmarkMetrics() {
	r.BenchmarkSampleDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bench_operation_duration_seconds",
			Help:    "Latency of one benchmarked operation call, sentinel included",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
		[]string{"backend", "operation"},
	)

	r.BenchmarkFailuresTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "bench_operation_failures_total",
			Help: "Benchmarked calls that failed or timed out",
		},
		[]string{"backend", "operation"},
	)

	r.BenchmarkSpeedup = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bench_operation_speedup_factor",
			Help: "Slower over faster mean latency of the last comparison",
		},
		[]string{"operation", "faster"},
	)

	r.BenchmarkWinsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "bench_operation_wins_total",
			Help: "Comparisons won by each backend",
		},
		[]string{"backend"},
	)
}
