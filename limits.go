package tidepool

import "time"

// ResourceLimits bounds individual extraction calls and sizes the
// instance pool. Limits are fixed for the lifetime of a pool; changing
// them requires constructing a new pool.
type ResourceLimits struct {
	// MaxMemoryPages caps sandbox linear memory in 64 KiB pages.
	MaxMemoryPages uint32 `json:"maxMemoryPages"`

	// FuelLimit caps guest execution steps for a single call.
	FuelLimit uint64 `json:"fuelLimit"`

	// WallClockTimeout caps the elapsed time of a single call.
	WallClockTimeout time.Duration `json:"wallClockTimeout"`

	// PoolSize is the number of live instances the pool maintains.
	PoolSize int `json:"poolSize"`

	// MaxUsesBeforeEviction retires an instance after this many calls.
	MaxUsesBeforeEviction uint64 `json:"maxUsesBeforeEviction"`

	// MaxFailuresBeforeEviction retires an instance after this many
	// failed calls.
	MaxFailuresBeforeEviction uint64 `json:"maxFailuresBeforeEviction"`

	// HealthSweepInterval is how often the pool sweeps idle instances
	// for eviction.
	HealthSweepInterval time.Duration `json:"healthSweepInterval"`
}

// DefaultResourceLimits returns the standard limits: 64 MiB of sandbox
// memory, one million fuel units, a 30 second wall clock, and a pool of
// eight instances.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MaxMemoryPages:            1024,
		FuelLimit:                 1_000_000,
		WallClockTimeout:          30 * time.Second,
		PoolSize:                  8,
		MaxUsesBeforeEviction:     1000,
		MaxFailuresBeforeEviction: 5,
		HealthSweepInterval:       time.Minute,
	}
}

// Validate returns an error if any limit is out of range.
func (l ResourceLimits) Validate() error {
	if l.MaxMemoryPages == 0 {
		return Errorf(EINVALID, "max memory pages must be positive")
	}
	if l.FuelLimit == 0 {
		return Errorf(EINVALID, "fuel limit must be positive")
	}
	if l.WallClockTimeout <= 0 {
		return Errorf(EINVALID, "wall clock timeout must be positive")
	}
	if l.PoolSize <= 0 {
		return Errorf(EINVALID, "pool size must be positive")
	}
	if l.MaxUsesBeforeEviction == 0 {
		return Errorf(EINVALID, "max uses before eviction must be positive")
	}
	if l.MaxFailuresBeforeEviction == 0 {
		return Errorf(EINVALID, "max failures before eviction must be positive")
	}
	if l.HealthSweepInterval <= 0 {
		return Errorf(EINVALID, "health sweep interval must be positive")
	}
	return nil
}

// BreakerConfig tunes the circuit breaker that guards the sandbox.
type BreakerConfig struct {
	// WindowSize is the number of recent calls the failure rate is
	// computed over.
	WindowSize int `json:"windowSize"`

	// FailureThresholdPct opens the circuit when the failure percentage
	// over the window reaches this value.
	FailureThresholdPct int `json:"failureThresholdPct"`

	// MinimumSamples is the number of recorded calls required before
	// the failure rate is acted on.
	MinimumSamples int `json:"minimumSamples"`

	// Cooldown is how long the circuit stays open before a trial call
	// is allowed through.
	Cooldown time.Duration `json:"cooldown"`

	// HalfOpenMaxProbes caps in-flight trial calls while half-open.
	HalfOpenMaxProbes int `json:"halfOpenMaxProbes"`
}

// DefaultBreakerConfig returns the standard breaker tuning: a ten call
// window tripping at 50% failures after five samples, with a five second
// cooldown.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		WindowSize:          10,
		FailureThresholdPct: 50,
		MinimumSamples:      5,
		Cooldown:            5 * time.Second,
		HalfOpenMaxProbes:   3,
	}
}

// Validate returns an error if the configuration is out of range.
func (c BreakerConfig) Validate() error {
	if c.WindowSize <= 0 {
		return Errorf(EINVALID, "window size must be positive")
	}
	if c.FailureThresholdPct <= 0 || c.FailureThresholdPct > 100 {
		return Errorf(EINVALID, "failure threshold %d outside 1-100", c.FailureThresholdPct)
	}
	if c.MinimumSamples <= 0 {
		return Errorf(EINVALID, "minimum samples must be positive")
	}
	if c.MinimumSamples > c.WindowSize {
		return Errorf(EINVALID, "minimum samples %d exceeds window size %d", c.MinimumSamples, c.WindowSize)
	}
	if c.Cooldown <= 0 {
		return Errorf(EINVALID, "cooldown must be positive")
	}
	if c.HalfOpenMaxProbes <= 0 {
		return Errorf(EINVALID, "half-open max probes must be positive")
	}
	return nil
}
