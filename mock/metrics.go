package mock

import "github.com/foofork/tidepool"

var _ tidepool.MetricsSource = (*MetricsSource)(nil)
var _ tidepool.HealthSource = (*MetricsSource)(nil)

// MetricsSource is a mock implementation of tidepool.MetricsSource and
// tidepool.HealthSource.
type MetricsSource struct {
	MetricsFn func() tidepool.PoolMetrics
	HealthFn  func() tidepool.PoolHealth
}

func (s *MetricsSource) Metrics() tidepool.PoolMetrics {
	return s.MetricsFn()
}

func (s *MetricsSource) Health() tidepool.PoolHealth {
	return s.HealthFn()
}
