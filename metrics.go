package tidepool

// CircuitState is the observable state of a circuit breaker.
type CircuitState string

// Circuit breaker states.
const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// PoolMetrics is a point-in-time snapshot of pool activity. Fields are
// sampled independently; the snapshot is not transactionally consistent.
type PoolMetrics struct {
	// LiveInstances counts constructed, not yet destroyed instances.
	LiveInstances int `json:"liveInstances"`

	// IdleInstances counts instances waiting in the pool.
	IdleInstances int `json:"idleInstances"`

	// InFlight counts extraction calls currently holding an instance.
	InFlight int `json:"inFlight"`

	TotalCalls          uint64 `json:"totalCalls"`
	TotalFailures       uint64 `json:"totalFailures"`
	FallbackInvocations uint64 `json:"fallbackInvocations"`

	CircuitState CircuitState `json:"circuitState"`

	// PeakMemoryPagesObserved is the highest per-call memory peak seen
	// since the pool started.
	PeakMemoryPagesObserved uint32 `json:"peakMemoryPagesObserved"`
}

// PoolHealth summarizes pool liveness for health probes.
type PoolHealth struct {
	Healthy      bool         `json:"healthy"`
	Live         int          `json:"live"`
	Idle         int          `json:"idle"`
	Capacity     int          `json:"capacity"`
	Utilization  float64      `json:"utilization"`
	CircuitState CircuitState `json:"circuitState"`
}

// MetricsSource exposes pool metrics snapshots.
type MetricsSource interface {
	Metrics() PoolMetrics
}

// HealthSource exposes pool health snapshots.
type HealthSource interface {
	Health() PoolHealth
}
