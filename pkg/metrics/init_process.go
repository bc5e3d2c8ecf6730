package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initProcessMetrics() {
	f := promauto.With(r.registry)
	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      name,
			Help:      help,
		})
	}

	r.ProcessUptime = gauge("uptime_seconds", "Seconds since the benchmark server started")
	r.ProcessGoroutines = gauge("goroutines", "Goroutines alive, including generation workers")
	r.ProcessHeapBytes = gauge("heap_alloc_bytes", "Heap bytes held by the harness itself, not the databases")
	r.ProcessRSSBytes = gauge("rss_bytes", "Resident set size sampled for the generation memory budget")
	r.MemoryBudgetBytes = gauge("memory_budget_bytes", "Configured generation memory budget")
}
