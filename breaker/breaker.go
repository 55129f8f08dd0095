// Package breaker implements the circuit breaker that guards the sandbox
// against a persistently failing extractor module.
package breaker

import (
	"sync"
	"time"

	"github.com/foofork/tidepool"
)

// Breaker is a three-state circuit breaker. It computes the failure rate
// over a sliding window of the most recent call outcomes; when the rate
// crosses the configured threshold the circuit opens and calls are
// rejected until a cooldown elapses, after which a limited number of
// trial calls probe whether the sandbox has recovered.
//
// All methods are safe for concurrent use.
type Breaker struct {
	cfg tidepool.BreakerConfig

	mu       sync.Mutex
	state    tidepool.CircuitState
	window   window
	openedAt time.Time
	probes   int
}

// New returns a closed breaker tuned by cfg.
func New(cfg tidepool.BreakerConfig) (*Breaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Breaker{
		cfg:    cfg,
		state:  tidepool.CircuitClosed,
		window: window{outcomes: make([]bool, cfg.WindowSize)},
	}, nil
}

// Allow reports whether a sandbox call may proceed. While open it returns
// false until the cooldown elapses, then moves to half-open and admits up
// to HalfOpenMaxProbes trial calls. Every admitted call must be followed
// by exactly one RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case tidepool.CircuitClosed:
		return true
	case tidepool.CircuitOpen:
		if time.Since(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.state = tidepool.CircuitHalfOpen
		b.probes = 1
		return true
	default:
		if b.probes < b.cfg.HalfOpenMaxProbes {
			b.probes++
			return true
		}
		return false
	}
}

// RecordSuccess records a successful sandbox call. A success while
// half-open closes the circuit and resets the window.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case tidepool.CircuitClosed:
		b.window.push(false)
	case tidepool.CircuitHalfOpen:
		b.state = tidepool.CircuitClosed
		b.window.reset()
	default:
		// Late result from a call admitted before the trip.
	}
}

// RecordFailure records a failed sandbox call. While closed it opens the
// circuit once the windowed failure rate reaches the threshold; while
// half-open any failure reopens the circuit with a fresh cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case tidepool.CircuitClosed:
		b.window.push(true)
		if b.window.size >= b.cfg.MinimumSamples &&
			b.window.failures*100 >= b.cfg.FailureThresholdPct*b.window.size {
			b.state = tidepool.CircuitOpen
			b.openedAt = time.Now()
		}
	case tidepool.CircuitHalfOpen:
		b.state = tidepool.CircuitOpen
		b.openedAt = time.Now()
		b.probes = 0
	default:
	}
}

// State returns the current circuit state.
func (b *Breaker) State() tidepool.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot reports the state together with the window counters.
type Snapshot struct {
	State    tidepool.CircuitState
	Samples  int
	Failures int
}

// Snapshot returns the current state and window counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{State: b.state, Samples: b.window.size, Failures: b.window.failures}
}

// window is a fixed-size ring over recent call outcomes, true = failure.
type window struct {
	outcomes []bool
	idx      int
	size     int
	failures int
}

func (w *window) push(failure bool) {
	if w.size == len(w.outcomes) {
		if w.outcomes[w.idx] {
			w.failures--
		}
	} else {
		w.size++
	}
	w.outcomes[w.idx] = failure
	if failure {
		w.failures++
	}
	w.idx = (w.idx + 1) % len(w.outcomes)
}

func (w *window) reset() {
	w.idx = 0
	w.size = 0
	w.failures = 0
}
