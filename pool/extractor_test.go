package pool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foofork/tidepool"
	"github.com/foofork/tidepool/breaker"
	"github.com/foofork/tidepool/mock"
	"github.com/foofork/tidepool/pool"
)

// Ensure Extractor implements tidepool.Extractor at compile time.
var _ tidepool.Extractor = (*pool.Extractor)(nil)

// Ensure Extractor implements tidepool.MetricsSource at compile time.
var _ tidepool.MetricsSource = (*pool.Extractor)(nil)

// Ensure Extractor implements tidepool.HealthSource at compile time.
var _ tidepool.HealthSource = (*pool.Extractor)(nil)

// testBreakerConfig trips after five straight failures and never cools
// down within a test run unless overridden.
func testBreakerConfig() tidepool.BreakerConfig {
	return tidepool.BreakerConfig{
		WindowSize:          10,
		FailureThresholdPct: 50,
		MinimumSamples:      5,
		Cooldown:            10 * time.Second,
		HalfOpenMaxProbes:   2,
	}
}

// sandboxFixture wires a facade around instances driven by extractFn and
// a counting fallback.
type sandboxFixture struct {
	extractor     *pool.Extractor
	pool          *pool.Pool
	breaker       *breaker.Breaker
	sandboxCalls  atomic.Int64
	fallbackCalls atomic.Int64
}

func newSandboxFixture(t *testing.T, cfg tidepool.BreakerConfig, extractFn func(ctx context.Context, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error)) *sandboxFixture {
	t.Helper()

	f := &sandboxFixture{}
	engine := &mock.Engine{
		NewInstanceFn: func(ctx context.Context) (tidepool.Instance, error) {
			return &mock.Instance{
				ExtractFn: func(ctx context.Context, html, url string, mode tidepool.ExtractionMode, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error) {
					f.sandboxCalls.Add(1)
					return extractFn(ctx, tracker)
				},
				CloseFn: func(ctx context.Context) error { return nil },
			}, nil
		},
	}

	p, err := pool.New(context.Background(), engine, testLimits(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close(context.Background()) })

	brk, err := breaker.New(cfg)
	require.NoError(t, err)

	fallback := &mock.Extractor{
		ExtractFn: func(ctx context.Context, html, url string, mode tidepool.ExtractionMode) (*tidepool.ExtractedDoc, error) {
			f.fallbackCalls.Add(1)
			return &tidepool.ExtractedDoc{
				URL:          url,
				ContentText:  "degraded content",
				QualityScore: 30,
				Metadata:     tidepool.ExtractionMetadata{Strategy: "goquery:" + mode.String()},
			}, nil
		},
	}

	f.pool = p
	f.breaker = brk
	f.extractor = pool.NewExtractor(p, brk, fallback)
	return f
}

func TestExtractor_SandboxSuccess(t *testing.T) {
	t.Parallel()

	f := newSandboxFixture(t, testBreakerConfig(), func(ctx context.Context, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error) {
		return &tidepool.ExtractedDoc{
			URL:          "https://example.com/a",
			Title:        "A",
			QualityScore: 80,
			Metadata:     tidepool.ExtractionMetadata{Strategy: "wasm:article"},
		}, nil
	})

	doc, err := f.extractor.Extract(context.Background(), "<html></html>", "https://example.com/a", tidepool.Article())

	require.NoError(t, err)
	assert.False(t, doc.Metadata.UsedFallback)
	assert.Equal(t, "wasm:article", doc.Metadata.Strategy)
	assert.Greater(t, doc.Metadata.Duration, time.Duration(0))
	assert.Equal(t, int64(1), f.sandboxCalls.Load())
	assert.Equal(t, int64(0), f.fallbackCalls.Load())

	m := f.extractor.Metrics()
	assert.Equal(t, uint64(1), m.TotalCalls)
	assert.Equal(t, uint64(0), m.TotalFailures)
	assert.Equal(t, tidepool.CircuitClosed, m.CircuitState)
}

func TestExtractor_FallsBackOnSandboxFailure(t *testing.T) {
	t.Parallel()

	f := newSandboxFixture(t, testBreakerConfig(), func(ctx context.Context, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error) {
		return nil, tidepool.Errorf(tidepool.ETRAP, "guest trapped")
	})

	doc, err := f.extractor.Extract(context.Background(), "<html></html>", "https://example.com/a", tidepool.Article())

	require.NoError(t, err)
	assert.True(t, doc.Metadata.UsedFallback)
	assert.Equal(t, "goquery:article", doc.Metadata.Strategy)
	assert.Equal(t, "degraded content", doc.ContentText)
	assert.Equal(t, int64(1), f.sandboxCalls.Load())
	assert.Equal(t, int64(1), f.fallbackCalls.Load())

	m := f.extractor.Metrics()
	assert.Equal(t, uint64(1), m.TotalFailures)
	assert.Equal(t, uint64(1), m.FallbackInvocations)
	assert.Equal(t, breaker.Snapshot{State: tidepool.CircuitClosed, Samples: 1, Failures: 1}, f.breaker.Snapshot())
}

func TestExtractor_TracksPeakMemory(t *testing.T) {
	t.Parallel()

	f := newSandboxFixture(t, testBreakerConfig(), func(ctx context.Context, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error) {
		tracker.Authorize(0, 37)
		return &tidepool.ExtractedDoc{URL: "https://example.com"}, nil
	})

	doc, err := f.extractor.Extract(context.Background(), "<html></html>", "https://example.com", tidepool.Article())

	require.NoError(t, err)
	assert.Equal(t, uint32(37), doc.Metadata.PeakMemoryPages)
	assert.Equal(t, uint32(37), f.extractor.Metrics().PeakMemoryPagesObserved)
}

func TestExtractor_OpenCircuitSkipsSandbox(t *testing.T) {
	t.Parallel()

	f := newSandboxFixture(t, testBreakerConfig(), func(ctx context.Context, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error) {
		return nil, tidepool.Errorf(tidepool.ETRAP, "guest trapped")
	})

	for i := 0; i < 5; i++ {
		_, err := f.extractor.Extract(context.Background(), "<html></html>", "https://example.com", tidepool.Article())
		require.NoError(t, err)
	}
	require.Equal(t, tidepool.CircuitOpen, f.breaker.State())
	require.Equal(t, int64(5), f.sandboxCalls.Load())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc, err := f.extractor.Extract(context.Background(), "<html></html>", "https://example.com", tidepool.Article())
			if err != nil {
				t.Error(err)
				return
			}
			if !doc.Metadata.UsedFallback {
				t.Error("expected a fallback result while the circuit is open")
			}
		}()
	}
	wg.Wait()

	// No sandbox call slipped through while open.
	assert.Equal(t, int64(5), f.sandboxCalls.Load())
	assert.Equal(t, int64(105), f.fallbackCalls.Load())
	assert.Equal(t, tidepool.CircuitOpen, f.extractor.Metrics().CircuitState)
}

func TestExtractor_ProbesAfterCooldown(t *testing.T) {
	t.Parallel()

	var healthy atomic.Bool
	cfg := testBreakerConfig()
	cfg.Cooldown = 50 * time.Millisecond
	f := newSandboxFixture(t, cfg, func(ctx context.Context, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error) {
		if !healthy.Load() {
			return nil, tidepool.Errorf(tidepool.ETRAP, "guest trapped")
		}
		return &tidepool.ExtractedDoc{URL: "https://example.com"}, nil
	})

	for i := 0; i < 5; i++ {
		_, err := f.extractor.Extract(context.Background(), "<html></html>", "https://example.com", tidepool.Article())
		require.NoError(t, err)
	}
	require.Equal(t, tidepool.CircuitOpen, f.breaker.State())

	healthy.Store(true)
	time.Sleep(80 * time.Millisecond)

	doc, err := f.extractor.Extract(context.Background(), "<html></html>", "https://example.com", tidepool.Article())

	require.NoError(t, err)
	assert.False(t, doc.Metadata.UsedFallback)
	assert.Equal(t, int64(6), f.sandboxCalls.Load())
	assert.Equal(t, tidepool.CircuitClosed, f.breaker.State())
}

func TestExtractor_HalfOpenLimitsConcurrentProbes(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	var probing atomic.Bool
	var probesEntered atomic.Int64
	cfg := testBreakerConfig()
	cfg.Cooldown = 50 * time.Millisecond
	f := newSandboxFixture(t, cfg, func(ctx context.Context, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error) {
		if !probing.Load() {
			return nil, tidepool.Errorf(tidepool.ETRAP, "guest trapped")
		}
		probesEntered.Add(1)
		<-gate
		return &tidepool.ExtractedDoc{URL: "https://example.com"}, nil
	})

	for i := 0; i < 5; i++ {
		_, err := f.extractor.Extract(context.Background(), "<html></html>", "https://example.com", tidepool.Article())
		require.NoError(t, err)
	}
	require.Equal(t, tidepool.CircuitOpen, f.breaker.State())

	probing.Store(true)
	time.Sleep(80 * time.Millisecond)

	docs := make(chan *tidepool.ExtractedDoc, 5)
	for i := 0; i < 5; i++ {
		go func() {
			doc, err := f.extractor.Extract(context.Background(), "<html></html>", "https://example.com", tidepool.Article())
			if err != nil {
				t.Error(err)
			}
			docs <- doc
		}()
	}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(2), probesEntered.Load())
	close(gate)

	var fellBack int
	for i := 0; i < 5; i++ {
		if doc := <-docs; doc != nil && doc.Metadata.UsedFallback {
			fellBack++
		}
	}
	assert.Equal(t, 3, fellBack)
	assert.Equal(t, tidepool.CircuitClosed, f.breaker.State())
}

func TestExtractor_FallbackFailureYieldsMinimalDoc(t *testing.T) {
	t.Parallel()

	engine := &mock.Engine{
		NewInstanceFn: func(ctx context.Context) (tidepool.Instance, error) {
			return &mock.Instance{
				ExtractFn: func(ctx context.Context, html, url string, mode tidepool.ExtractionMode, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error) {
					return nil, tidepool.Errorf(tidepool.ETRAP, "guest trapped")
				},
				CloseFn: func(ctx context.Context) error { return nil },
			}, nil
		},
	}
	p, err := pool.New(context.Background(), engine, testLimits(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close(context.Background()) })
	brk, err := breaker.New(testBreakerConfig())
	require.NoError(t, err)
	fallback := &mock.Extractor{
		ExtractFn: func(ctx context.Context, html, url string, mode tidepool.ExtractionMode) (*tidepool.ExtractedDoc, error) {
			return nil, tidepool.Errorf(tidepool.EINVALID, "nothing to extract")
		},
	}
	ext := pool.NewExtractor(p, brk, fallback)

	doc, err := ext.Extract(context.Background(), "", "https://example.com/a", tidepool.Article())

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", doc.URL)
	assert.Zero(t, doc.QualityScore)
	assert.Empty(t, doc.ContentText)
	assert.True(t, doc.Metadata.UsedFallback)
	assert.Equal(t, "degraded", doc.Metadata.Strategy)
}

func TestExtractor_InvalidModeRejected(t *testing.T) {
	t.Parallel()

	f := newSandboxFixture(t, testBreakerConfig(), func(ctx context.Context, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error) {
		return &tidepool.ExtractedDoc{URL: "https://example.com"}, nil
	})

	_, err := f.extractor.Extract(context.Background(), "<html></html>", "https://example.com", tidepool.ExtractionMode{Kind: tidepool.ModeCustom})

	require.Error(t, err)
	assert.Equal(t, tidepool.EINVALID, tidepool.ErrorCode(err))
	assert.Equal(t, int64(0), f.sandboxCalls.Load())
	assert.Equal(t, int64(0), f.fallbackCalls.Load())
	assert.Equal(t, uint64(0), f.extractor.Metrics().TotalCalls)
}

func TestExtractor_PoolClosedReturnsError(t *testing.T) {
	t.Parallel()

	f := newSandboxFixture(t, testBreakerConfig(), func(ctx context.Context, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error) {
		return &tidepool.ExtractedDoc{URL: "https://example.com"}, nil
	})
	require.NoError(t, f.pool.Close(context.Background()))

	_, err := f.extractor.Extract(context.Background(), "<html></html>", "https://example.com", tidepool.Article())

	require.Error(t, err)
	assert.Equal(t, tidepool.EUNAVAILABLE, tidepool.ErrorCode(err))
	assert.Equal(t, int64(0), f.fallbackCalls.Load())
}

func TestExtractor_CanceledCallerGetsError(t *testing.T) {
	t.Parallel()

	f := newSandboxFixture(t, testBreakerConfig(), func(ctx context.Context, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error) {
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.extractor.Extract(ctx, "<html></html>", "https://example.com", tidepool.Article())

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), f.fallbackCalls.Load())
	// The outcome still reached the breaker.
	assert.Equal(t, breaker.Snapshot{State: tidepool.CircuitClosed, Samples: 1, Failures: 1}, f.breaker.Snapshot())
}

func TestExtractor_CancelWhileWaitingRecordsNothing(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	f := newSandboxFixture(t, testBreakerConfig(), func(ctx context.Context, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error) {
		<-gate
		return &tidepool.ExtractedDoc{URL: "https://example.com"}, nil
	})
	defer close(gate)

	// Tie up every instance so the next caller has to wait.
	limits := f.pool.Limits()
	done := make(chan struct{})
	for i := 0; i < limits.PoolSize; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := f.extractor.Extract(context.Background(), "<html></html>", "https://example.com", tidepool.Article())
			if err != nil {
				t.Error(err)
			}
		}()
	}
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.extractor.Extract(ctx, "<html></html>", "https://example.com", tidepool.Article())

	// Nothing was attempted, so neither the breaker nor the fallback
	// heard about the call.
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), f.fallbackCalls.Load())
	assert.Equal(t, breaker.Snapshot{State: tidepool.CircuitClosed}, f.breaker.Snapshot())

	gate <- struct{}{}
	gate <- struct{}{}
	<-done
	<-done
}

func TestExtractor_AcquireTimeoutFallsBack(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	f := newSandboxFixture(t, testBreakerConfig(), func(ctx context.Context, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error) {
		<-gate
		return &tidepool.ExtractedDoc{URL: "https://example.com"}, nil
	})
	defer close(gate)

	// Tie up every instance.
	limits := f.pool.Limits()
	done := make(chan struct{})
	for i := 0; i < limits.PoolSize; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := f.extractor.Extract(context.Background(), "<html></html>", "https://example.com", tidepool.Article())
			if err != nil {
				t.Error(err)
			}
		}()
	}
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	doc, err := f.extractor.Extract(ctx, "<html></html>", "https://example.com", tidepool.Article())

	// The deadline passed while waiting for a permit; the caller still
	// gets a degraded result and the breaker hears about the timeout.
	require.NoError(t, err)
	assert.True(t, doc.Metadata.UsedFallback)
	assert.Equal(t, "goquery:article", doc.Metadata.Strategy)
	assert.Equal(t, int64(1), f.fallbackCalls.Load())
	assert.Equal(t, breaker.Snapshot{State: tidepool.CircuitClosed, Samples: 1, Failures: 1}, f.breaker.Snapshot())

	gate <- struct{}{}
	gate <- struct{}{}
	<-done
	<-done
}

func TestExtractor_Health(t *testing.T) {
	t.Parallel()

	f := newSandboxFixture(t, testBreakerConfig(), func(ctx context.Context, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error) {
		return &tidepool.ExtractedDoc{URL: "https://example.com"}, nil
	})

	h := f.extractor.Health()
	assert.True(t, h.Healthy)
	assert.Equal(t, 2, h.Capacity)
	assert.Equal(t, 2, h.Live)
	assert.Equal(t, tidepool.CircuitClosed, h.CircuitState)
	assert.Zero(t, h.Utilization)

	require.NoError(t, f.pool.Close(context.Background()))
	assert.False(t, f.extractor.Health().Healthy)
}
