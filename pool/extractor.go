package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/foofork/tidepool"
	"github.com/foofork/tidepool/breaker"
)

// Extractor is the extraction entry point. It routes calls through the
// circuit breaker to a pooled sandbox instance with a fresh resource
// budget, records the outcome, and degrades to the fallback extractor on
// any failure so callers always receive a result while the pool is up.
type Extractor struct {
	pool     *Pool
	breaker  *breaker.Breaker
	fallback tidepool.Extractor

	calls     atomic.Uint64
	failures  atomic.Uint64
	fallbacks atomic.Uint64
	peakPages atomic.Uint32
}

// NewExtractor wires the facade. All three collaborators are required.
func NewExtractor(pool *Pool, brk *breaker.Breaker, fallback tidepool.Extractor) *Extractor {
	return &Extractor{pool: pool, breaker: brk, fallback: fallback}
}

// Extract runs one sandboxed extraction. Failures inside the sandbox
// degrade to the fallback extractor with UsedFallback set; the sandbox
// is skipped entirely while the circuit is open. An error comes back
// only for invalid modes, for callers that cancelled, and when the pool
// is shut down.
func (e *Extractor) Extract(ctx context.Context, html, url string, mode tidepool.ExtractionMode) (*tidepool.ExtractedDoc, error) {
	begin := time.Now()
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	e.calls.Add(1)

	if !e.breaker.Allow() {
		// The short circuit is not fed back into the breaker; only real
		// sandbox attempts are.
		return e.fallbackExtract(ctx, html, url, mode, begin, 0), nil
	}

	doc, tracker, err := e.sandboxExtract(ctx, html, url, mode)
	var peak uint32
	if tracker != nil {
		peak = tracker.PeakPages()
		e.observePeak(peak)
	}
	if err == nil {
		e.breaker.RecordSuccess()
		doc.Metadata.UsedFallback = false
		doc.Metadata.Duration = time.Since(begin)
		doc.Metadata.PeakMemoryPages = peak
		return doc, nil
	}

	if tracker == nil && errors.Is(err, context.Canceled) {
		// Cancelled while waiting for a permit; nothing was attempted,
		// so there is no outcome to record.
		return nil, err
	}

	// Every admitted call reports exactly one outcome, even when the
	// caller stopped waiting, so half-open probe slots cannot leak.
	e.failures.Add(1)
	e.breaker.RecordFailure()

	if e.pool.Closed() {
		return nil, err
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		// The caller is gone; a degraded result has no reader. A blown
		// deadline still gets the fallback, which costs microseconds.
		return nil, err
	}
	return e.fallbackExtract(context.WithoutCancel(ctx), html, url, mode, begin, peak), nil
}

// sandboxExtract acquires an instance, runs the call under a fresh
// resource tracker, and releases the instance with its outcome.
func (e *Extractor) sandboxExtract(ctx context.Context, html, url string, mode tidepool.ExtractionMode) (doc *tidepool.ExtractedDoc, tracker *tidepool.ResourceTracker, err error) {
	handle, err := e.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, tidepool.Errorf(tidepool.ETIMEOUT, "no instance available before the deadline")
		}
		return nil, nil, err
	}
	defer func() { handle.Release(err != nil) }()

	tracker = tidepool.NewResourceTracker(e.pool.Limits().MaxMemoryPages)
	doc, err = handle.Instance().Extract(ctx, html, url, mode, tracker)
	return doc, tracker, err
}

// fallbackExtract serves the degraded path. A fallback that cannot even
// produce degraded content yields a minimal zero-quality document rather
// than an error.
func (e *Extractor) fallbackExtract(ctx context.Context, html, url string, mode tidepool.ExtractionMode, begin time.Time, peak uint32) *tidepool.ExtractedDoc {
	e.fallbacks.Add(1)

	doc, err := e.fallback.Extract(ctx, html, url, mode)
	if err != nil {
		doc = &tidepool.ExtractedDoc{
			URL:      url,
			Metadata: tidepool.ExtractionMetadata{Strategy: "degraded"},
		}
	}
	doc.Metadata.UsedFallback = true
	doc.Metadata.Duration = time.Since(begin)
	doc.Metadata.PeakMemoryPages = peak
	return doc
}

// Metrics returns a point-in-time snapshot of pool and call activity.
func (e *Extractor) Metrics() tidepool.PoolMetrics {
	stats := e.pool.Stats()
	return tidepool.PoolMetrics{
		LiveInstances:           stats.Live,
		IdleInstances:           stats.Idle,
		InFlight:                stats.InFlight,
		TotalCalls:              e.calls.Load(),
		TotalFailures:           e.failures.Load(),
		FallbackInvocations:     e.fallbacks.Load(),
		CircuitState:            e.breaker.State(),
		PeakMemoryPagesObserved: e.peakPages.Load(),
	}
}

// Health summarizes pool liveness for health probes.
func (e *Extractor) Health() tidepool.PoolHealth {
	stats := e.pool.Stats()
	capacity := e.pool.Limits().PoolSize
	h := tidepool.PoolHealth{
		Healthy:      e.pool.Healthy(),
		Live:         stats.Live,
		Idle:         stats.Idle,
		Capacity:     capacity,
		CircuitState: e.breaker.State(),
	}
	if capacity > 0 {
		h.Utilization = float64(stats.InFlight) / float64(capacity)
	}
	return h
}

// observePeak folds a per-call memory peak into the pool-wide maximum.
func (e *Extractor) observePeak(pages uint32) {
	for {
		cur := e.peakPages.Load()
		if pages <= cur || e.peakPages.CompareAndSwap(cur, pages) {
			return
		}
	}
}
