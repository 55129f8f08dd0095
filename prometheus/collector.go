// Package prometheus exports pool metrics in Prometheus format. The
// Collector reads point-in-time snapshots from a MetricsSource, so it
// holds no state of its own and registers on a caller-owned Registry.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/foofork/tidepool"
)

// Ensure Collector implements prometheus.Collector at compile time.
var _ prometheus.Collector = (*Collector)(nil)

// circuitStates is the label domain of the circuit state metric.
var circuitStates = []tidepool.CircuitState{
	tidepool.CircuitClosed,
	tidepool.CircuitOpen,
	tidepool.CircuitHalfOpen,
}

// Collector adapts PoolMetrics snapshots to Prometheus metrics.
type Collector struct {
	source tidepool.MetricsSource

	live         *prometheus.Desc
	idle         *prometheus.Desc
	inFlight     *prometheus.Desc
	calls        *prometheus.Desc
	failures     *prometheus.Desc
	fallbacks    *prometheus.Desc
	circuitState *prometheus.Desc
	peakPages    *prometheus.Desc
}

// NewCollector creates a Collector reading from source.
func NewCollector(source tidepool.MetricsSource) *Collector {
	return &Collector{
		source: source,
		live: prometheus.NewDesc(
			"tidepool_pool_live_instances",
			"Constructed, not yet destroyed sandbox instances.",
			nil, nil,
		),
		idle: prometheus.NewDesc(
			"tidepool_pool_idle_instances",
			"Sandbox instances waiting in the pool.",
			nil, nil,
		),
		inFlight: prometheus.NewDesc(
			"tidepool_pool_in_flight",
			"Extraction calls currently holding an instance.",
			nil, nil,
		),
		calls: prometheus.NewDesc(
			"tidepool_extract_calls_total",
			"Total extraction calls.",
			nil, nil,
		),
		failures: prometheus.NewDesc(
			"tidepool_extract_failures_total",
			"Total sandbox extraction failures.",
			nil, nil,
		),
		fallbacks: prometheus.NewDesc(
			"tidepool_extract_fallbacks_total",
			"Total calls served by the fallback extractor.",
			nil, nil,
		),
		circuitState: prometheus.NewDesc(
			"tidepool_circuit_state",
			"Circuit breaker state, 1 for the active state.",
			[]string{"state"}, nil,
		),
		peakPages: prometheus.NewDesc(
			"tidepool_pool_peak_memory_pages",
			"Highest per-call sandbox memory peak observed, in 64 KiB pages.",
			nil, nil,
		),
	}
}

// Describe sends every metric description to ch.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.live
	ch <- c.idle
	ch <- c.inFlight
	ch <- c.calls
	ch <- c.failures
	ch <- c.fallbacks
	ch <- c.circuitState
	ch <- c.peakPages
}

// Collect samples the source and sends the snapshot to ch.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.source.Metrics()

	ch <- prometheus.MustNewConstMetric(c.live, prometheus.GaugeValue, float64(m.LiveInstances))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(m.IdleInstances))
	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(m.InFlight))
	ch <- prometheus.MustNewConstMetric(c.calls, prometheus.CounterValue, float64(m.TotalCalls))
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(m.TotalFailures))
	ch <- prometheus.MustNewConstMetric(c.fallbacks, prometheus.CounterValue, float64(m.FallbackInvocations))
	ch <- prometheus.MustNewConstMetric(c.peakPages, prometheus.GaugeValue, float64(m.PeakMemoryPagesObserved))

	for _, state := range circuitStates {
		var v float64
		if m.CircuitState == state {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.circuitState, prometheus.GaugeValue, v, string(state))
	}
}
