// Package pool manages a bounded collection of warm sandbox instances
// and provides the extraction facade that fronts them. Concurrency is
// gated by a counting semaphore, idle instances are served in FIFO order
// to spread wear, and a background sweep retires instances whose use or
// failure counts cross the configured thresholds.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/foofork/tidepool"
)

// exhaustedLogInterval throttles the warning emitted when callers have
// to wait for a free instance.
const exhaustedLogInterval = 10 * time.Second

// entry is a pooled instance together with its wear counters. The
// counters are guarded by the pool mutex.
type entry struct {
	id           string
	instance     tidepool.Instance
	createdAt    time.Time
	useCount     uint64
	failureCount uint64
}

// Pool owns up to PoolSize live sandbox instances. Acquire blocks until
// an instance is free; Release returns it for reuse. Eviction happens
// only in the health sweep, so a failing instance keeps serving until
// the sweep replaces it.
type Pool struct {
	id     string
	engine tidepool.Engine
	limits tidepool.ResourceLimits
	logger *slog.Logger

	sem       *semaphore.Weighted
	done      chan struct{}
	exhausted rate.Sometimes

	mu       sync.Mutex
	idle     []*entry
	live     int
	inflight int
	closed   bool
}

// New constructs a pool and warms it to PoolSize instances. A warm-up
// failure closes any instances already constructed and is returned to
// the caller; a pool that cannot build its module at startup should not
// limp along. A nil logger disables logging.
func New(ctx context.Context, engine tidepool.Engine, limits tidepool.ResourceLimits, logger *slog.Logger) (*Pool, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	id := uuid.NewString()
	p := &Pool{
		id:        id,
		engine:    engine,
		limits:    limits,
		logger:    logger.With("pool", id),
		sem:       semaphore.NewWeighted(int64(limits.PoolSize)),
		done:      make(chan struct{}),
		exhausted: rate.Sometimes{Interval: exhaustedLogInterval},
	}

	for i := 0; i < limits.PoolSize; i++ {
		e, err := p.newEntry(ctx)
		if err != nil {
			for _, warmed := range p.idle {
				if cerr := warmed.instance.Close(ctx); cerr != nil {
					p.logger.Warn("closing instance after failed warm-up", "id", warmed.id, "err", cerr)
				}
			}
			return nil, fmt.Errorf("warming instance %d of %d: %w", i+1, limits.PoolSize, err)
		}
		p.idle = append(p.idle, e)
		p.live++
	}

	go p.sweepLoop()
	return p, nil
}

// Limits returns the pool's configured limits.
func (p *Pool) Limits() tidepool.ResourceLimits {
	return p.limits
}

// Handle is a borrowed instance. It must be released exactly once.
type Handle struct {
	pool     *Pool
	entry    *entry
	released bool
}

// Instance returns the borrowed instance.
func (h *Handle) Instance() tidepool.Instance {
	return h.entry.instance
}

// Release returns the instance to the idle queue and frees the permit.
// failed bumps the entry's failure count for the health sweep. Releasing
// a handle twice is a programming error and panics.
func (h *Handle) Release(failed bool) {
	p := h.pool

	p.mu.Lock()
	if h.released {
		p.mu.Unlock()
		panic("pool: handle released twice")
	}
	h.released = true
	h.entry.useCount++
	if failed {
		h.entry.failureCount++
	}
	p.inflight--
	if p.closed {
		// Shutdown drained the idle queue already; close rather than
		// requeue so the instance is not orphaned.
		p.live--
		p.mu.Unlock()
		p.sem.Release(1)
		if err := h.entry.instance.Close(context.Background()); err != nil {
			p.logger.Warn("closing instance after shutdown", "id", h.entry.id, "err", err)
		}
		return
	}
	p.idle = append(p.idle, h.entry)
	p.mu.Unlock()
	p.sem.Release(1)
}

// Acquire blocks until an instance is free and returns a handle to it.
// Waiters are served in FIFO order. Cancelling ctx before a permit is
// granted returns the context error with no side effects.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, tidepool.Errorf(tidepool.EUNAVAILABLE, "instance pool is closed")
	}
	p.mu.Unlock()

	if !p.sem.TryAcquire(1) {
		p.exhausted.Do(func() {
			p.logger.Warn("instance pool exhausted, waiting for a free instance",
				"capacity", p.limits.PoolSize,
			)
		})
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, tidepool.Errorf(tidepool.EUNAVAILABLE, "instance pool is closed")
	}
	if len(p.idle) > 0 {
		e := p.idle[0]
		p.idle = p.idle[1:]
		p.inflight++
		p.mu.Unlock()
		return &Handle{pool: p, entry: e}, nil
	}
	if p.live >= p.limits.PoolSize {
		// A held permit guarantees an idle instance or headroom to
		// build one; anything else is corrupt accounting.
		p.mu.Unlock()
		p.sem.Release(1)
		panic("pool: no idle instance despite a held permit")
	}
	// No idle instance but capacity remains, so build one for this caller.
	p.live++
	p.mu.Unlock()

	e, err := p.newEntry(ctx)
	if err != nil {
		p.mu.Lock()
		p.live--
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, err
	}
	p.mu.Lock()
	p.inflight++
	p.mu.Unlock()
	return &Handle{pool: p, entry: e}, nil
}

// Stats is a point-in-time view of pool occupancy.
type Stats struct {
	Live     int
	Idle     int
	InFlight int
}

// Stats returns current pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Live: p.live, Idle: len(p.idle), InFlight: p.inflight}
}

// Healthy reports whether the pool can serve calls.
func (p *Pool) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed && p.live > 0
}

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Sweep runs one eviction pass over idle instances. Worn instances are
// replaced before they are destroyed, so pool capacity never drops
// during a sweep. Sweep is normally driven by the pool's background
// ticker; it is exported so tests and operators can force a pass.
func (p *Pool) Sweep(ctx context.Context) {
	for p.sweepOne(ctx) {
	}
}

// sweepOne evicts at most one worn idle instance. It holds a permit for
// the duration so the swept slot counts against concurrency like any
// other holder, which keeps Acquire's idle-or-headroom guarantee intact.
func (p *Pool) sweepOne(ctx context.Context) bool {
	if !p.sem.TryAcquire(1) {
		return false
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return false
	}
	idx := -1
	for i, e := range p.idle {
		if e.useCount >= p.limits.MaxUsesBeforeEviction || e.failureCount >= p.limits.MaxFailuresBeforeEviction {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		p.sem.Release(1)
		return false
	}
	old := p.idle[idx]
	p.idle = append(p.idle[:idx], p.idle[idx+1:]...)
	p.mu.Unlock()

	replacement, err := p.newEntry(ctx)
	if err != nil {
		// Keep serving with the worn instance rather than shrink the pool.
		p.mu.Lock()
		p.idle = append(p.idle, old)
		p.mu.Unlock()
		p.sem.Release(1)
		p.logger.Warn("instance replacement failed, keeping worn instance",
			"id", old.id,
			"uses", old.useCount,
			"failures", old.failureCount,
			"err", err,
		)
		return false
	}

	p.mu.Lock()
	// The replacement takes over the retired instance's slot.
	p.idle = append(p.idle, replacement)
	p.mu.Unlock()
	p.sem.Release(1)

	p.logger.Info("evicted instance",
		"id", old.id,
		"uses", old.useCount,
		"failures", old.failureCount,
		"age", time.Since(old.createdAt),
		"replacement", replacement.id,
	)
	if err := old.instance.Close(ctx); err != nil {
		p.logger.Warn("closing evicted instance", "id", old.id, "err", err)
	}
	return true
}

// Close stops the sweep, waits for in-flight calls to finish, and closes
// every instance. Acquire fails immediately once Close has begun. A
// second Close is a no-op.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)

	// Holding every permit means no call is in flight.
	if err := p.sem.Acquire(ctx, int64(p.limits.PoolSize)); err != nil {
		return err
	}
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.live -= len(idle)
	p.mu.Unlock()
	p.sem.Release(int64(p.limits.PoolSize))

	var firstErr error
	for _, e := range idle {
		if err := e.instance.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Pool) newEntry(ctx context.Context) (*entry, error) {
	inst, err := p.engine.NewInstance(ctx)
	if err != nil {
		return nil, err
	}
	return &entry{
		id:        uuid.NewString(),
		instance:  inst,
		createdAt: time.Now(),
	}, nil
}

func (p *Pool) sweepLoop() {
	ticker := time.NewTicker(p.limits.HealthSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.Sweep(context.Background())
		}
	}
}
