package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// pollBuckets covers status polls in the low milliseconds up to result
// documents carrying full per-level breakdowns
var pollBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

func (r *Registry) initAPIMetrics() {
	f := promauto.With(r.registry)

	r.APIRequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Benchmark API requests by route pattern and response code",
	}, []string{"method", "route", "code"})

	r.APIRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "Time to answer a benchmark API request, excluding event streams",
		Buckets:   pollBuckets,
	}, []string{"method", "route", "code"})

	r.APIRequestsInFlight = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_in_flight",
		Help:      "Benchmark API requests being served, event streams included",
	})

	r.APIResponseBytes = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "response_bytes",
		Help:      "Size of task, result and comparison documents returned by the API",
		Buckets:   prometheus.ExponentialBuckets(128, 4, 8),
	}, []string{"method", "route"})

	r.EventStreamsOpen = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "event_streams_open",
		Help:      "Clients currently following a task's progress stream",
	})

	r.EventFramesTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "event_frames_total",
		Help:      "Server-sent frames written to progress streams, by event name",
	}, []string{"event"})
}
