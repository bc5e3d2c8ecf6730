package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the application
type Registry struct {
	// API Metrics
	APIRequestsTotal    *prometheus.CounterVec
	APIRequestDuration  *prometheus.HistogramVec
	APIRequestsInFlight prometheus.Gauge
	APIResponseBytes    *prometheus.HistogramVec
	EventStreamsOpen    prometheus.Gauge
	EventFramesTotal    *prometheus.CounterVec

	// Generation Metrics
	GenerationEntitiesTotal      *prometheus.CounterVec
	GenerationPhaseDuration      *prometheus.HistogramVec
	GenerationBackendSeconds     *prometheus.CounterVec
	GenerationBackendErrorsTotal *prometheus.CounterVec
	GenerationMemoryPeakBytes    prometheus.Gauge

	// Benchmark Metrics
	BenchmarkSampleDuration *prometheus.HistogramVec
	BenchmarkFailuresTotal  *prometheus.CounterVec
	BenchmarkSpeedup        *prometheus.GaugeVec
	BenchmarkWinsTotal      *prometheus.CounterVec

	// Task Metrics
	TasksStartedTotal  *prometheus.CounterVec
	TasksFinishedTotal *prometheus.CounterVec
	TasksRunning       *prometheus.GaugeVec
	TaskDuration       *prometheus.HistogramVec

	// Process Metrics
	ProcessUptime     prometheus.Gauge
	ProcessGoroutines prometheus.Gauge
	ProcessHeapBytes  prometheus.Gauge
	ProcessRSSBytes   prometheus.Gauge
	MemoryBudgetBytes prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.Mutex
}

// namespace prefixes every series this package exports
const namespace = "bench"

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initAPIMetrics()
	r.initGenerationMetrics()
	r.initBenchmarkMetrics()
	r.initTaskMetrics()
	r.initProcessMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
