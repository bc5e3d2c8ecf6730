package metrics

import (
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves this registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveRequest records an answered API request under its route pattern.
// Event streams are counted but kept out of the latency histogram.
func (r *Registry) ObserveRequest(method, route, code string, d time.Duration) {
	r.APIRequestsTotal.WithLabelValues(method, route, code).Inc()
	if !strings.Contains(route, "/events/") {
		r.APIRequestDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
	}
}

// ObserveResponseSize records the body size of an API response
func (r *Registry) ObserveResponseSize(method, route string, size float64) {
	r.APIResponseBytes.WithLabelValues(method, route).Observe(size)
}

// RequestStarted marks an API request as in flight
func (r *Registry) RequestStarted() {
	r.APIRequestsInFlight.Inc()
}

// RequestFinished marks an API request as answered
func (r *Registry) RequestFinished() {
	r.APIRequestsInFlight.Dec()
}

// StreamOpened marks a progress stream as connected
func (r *Registry) StreamOpened() {
	r.EventStreamsOpen.Inc()
}

// StreamClosed marks a progress stream as gone
func (r *Registry) StreamClosed() {
	r.EventStreamsOpen.Dec()
}

// FrameSent counts one frame written to a progress stream
func (r *Registry) FrameSent(event string) {
	r.EventFramesTotal.WithLabelValues(event).Inc()
}

// RecordGenerationPhase records the outcome of one generation phase
func (r *Registry) RecordGenerationPhase(kind string, succeeded, failed int64, wall time.Duration) {
	r.GenerationEntitiesTotal.WithLabelValues(kind, "succeeded").Add(float64(succeeded))
	r.GenerationEntitiesTotal.WithLabelValues(kind, "failed").Add(float64(failed))
	r.GenerationPhaseDuration.WithLabelValues(kind).Observe(wall.Seconds())
}

// RecordGenerationBackend records one backend's share of a phase
func (r *Registry) RecordGenerationBackend(backend, kind string, total time.Duration, errors int64) {
	r.GenerationBackendSeconds.WithLabelValues(backend, kind).Add(total.Seconds())
	r.GenerationBackendErrorsTotal.WithLabelValues(backend, kind).Add(float64(errors))
}

// SetGenerationMemoryPeak records the peak RSS of the last generation
func (r *Registry) SetGenerationMemoryPeak(mb float64) {
	r.GenerationMemoryPeakBytes.Set(mb * 1024 * 1024)
}

// RecordBenchmarkSample records one timed call
func (r *Registry) RecordBenchmarkSample(backend, operation string, seconds float64, failed bool) {
	r.BenchmarkSampleDuration.WithLabelValues(backend, operation).Observe(seconds)
	if failed {
		r.BenchmarkFailuresTotal.WithLabelValues(backend, operation).Inc()
	}
}

// RecordComparison records which backend won an operation and by how much.
// Comparisons without a winner are ignored.
func (r *Registry) RecordComparison(operation, faster string, speedup float64) {
	if faster == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// one series per operation: drop the previous winner's value
	r.BenchmarkSpeedup.DeletePartialMatch(map[string]string{"operation": operation})
	r.BenchmarkSpeedup.WithLabelValues(operation, faster).Set(speedup)
	r.BenchmarkWinsTotal.WithLabelValues(faster).Inc()
}

// TaskStarted records a task entering the running state
func (r *Registry) TaskStarted(kind string) {
	r.TasksStartedTotal.WithLabelValues(kind).Inc()
	r.TasksRunning.WithLabelValues(kind).Inc()
}

// TaskFinished records a task reaching a terminal status
func (r *Registry) TaskFinished(kind, status string, duration time.Duration) {
	r.TasksRunning.WithLabelValues(kind).Dec()
	r.TasksFinishedTotal.WithLabelValues(kind, status).Inc()
	r.TaskDuration.WithLabelValues(kind, status).Observe(duration.Seconds())
}

// UpdateProcessMetrics refreshes the process gauges. rssBytes of 0 leaves
// the RSS gauge untouched.
func (r *Registry) UpdateProcessMetrics(started time.Time, rssBytes uint64) {
	r.ProcessUptime.Set(time.Since(started).Seconds())
	r.ProcessGoroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	r.ProcessHeapBytes.Set(float64(m.HeapAlloc))

	if rssBytes > 0 {
		r.ProcessRSSBytes.Set(float64(rssBytes))
	}
}

// SetMemoryBudget records the generation memory budget in megabytes
func (r *Registry) SetMemoryBudget(mb float64) {
	r.MemoryBudgetBytes.Set(mb * 1024 * 1024)
}
