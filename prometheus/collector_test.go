package prometheus_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foofork/tidepool"
	"github.com/foofork/tidepool/mock"
	tpprom "github.com/foofork/tidepool/prometheus"
)

func TestCollector_Collect(t *testing.T) {
	t.Parallel()

	source := &mock.MetricsSource{
		MetricsFn: func() tidepool.PoolMetrics {
			return tidepool.PoolMetrics{
				LiveInstances:           8,
				IdleInstances:           5,
				InFlight:                3,
				TotalCalls:              120,
				TotalFailures:           4,
				FallbackInvocations:     6,
				CircuitState:            tidepool.CircuitHalfOpen,
				PeakMemoryPagesObserved: 512,
			}
		},
	}

	c := tpprom.NewCollector(source)

	expected := `
# HELP tidepool_circuit_state Circuit breaker state, 1 for the active state.
# TYPE tidepool_circuit_state gauge
tidepool_circuit_state{state="closed"} 0
tidepool_circuit_state{state="half_open"} 1
tidepool_circuit_state{state="open"} 0
# HELP tidepool_extract_calls_total Total extraction calls.
# TYPE tidepool_extract_calls_total counter
tidepool_extract_calls_total 120
# HELP tidepool_extract_failures_total Total sandbox extraction failures.
# TYPE tidepool_extract_failures_total counter
tidepool_extract_failures_total 4
# HELP tidepool_extract_fallbacks_total Total calls served by the fallback extractor.
# TYPE tidepool_extract_fallbacks_total counter
tidepool_extract_fallbacks_total 6
# HELP tidepool_pool_idle_instances Sandbox instances waiting in the pool.
# TYPE tidepool_pool_idle_instances gauge
tidepool_pool_idle_instances 5
# HELP tidepool_pool_in_flight Extraction calls currently holding an instance.
# TYPE tidepool_pool_in_flight gauge
tidepool_pool_in_flight 3
# HELP tidepool_pool_live_instances Constructed, not yet destroyed sandbox instances.
# TYPE tidepool_pool_live_instances gauge
tidepool_pool_live_instances 8
# HELP tidepool_pool_peak_memory_pages Highest per-call sandbox memory peak observed, in 64 KiB pages.
# TYPE tidepool_pool_peak_memory_pages gauge
tidepool_pool_peak_memory_pages 512
`

	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}

func TestCollector_RegistersOnCustomRegistry(t *testing.T) {
	t.Parallel()

	source := &mock.MetricsSource{
		MetricsFn: func() tidepool.PoolMetrics {
			return tidepool.PoolMetrics{CircuitState: tidepool.CircuitClosed}
		},
	}

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(tpprom.NewCollector(source)))

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "tidepool_pool_live_instances")
	assert.Contains(t, names, "tidepool_circuit_state")
}
