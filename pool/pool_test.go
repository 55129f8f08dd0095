package pool_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foofork/tidepool"
	"github.com/foofork/tidepool/mock"
	"github.com/foofork/tidepool/pool"
)

// testLimits keeps the sweep ticker out of the way; tests drive Sweep
// directly.
func testLimits() tidepool.ResourceLimits {
	return tidepool.ResourceLimits{
		MaxMemoryPages:            64,
		FuelLimit:                 1000,
		WallClockTimeout:          time.Second,
		PoolSize:                  2,
		MaxUsesBeforeEviction:     1000,
		MaxFailuresBeforeEviction: 5,
		HealthSweepInterval:       time.Hour,
	}
}

// countingEngine builds succeeding instances and counts constructions
// and closes.
func countingEngine(created, closed *atomic.Int64) *mock.Engine {
	return &mock.Engine{
		NewInstanceFn: func(ctx context.Context) (tidepool.Instance, error) {
			created.Add(1)
			return &mock.Instance{
				ExtractFn: func(ctx context.Context, html, url string, mode tidepool.ExtractionMode, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error) {
					return &tidepool.ExtractedDoc{URL: url}, nil
				},
				CloseFn: func(ctx context.Context) error {
					closed.Add(1)
					return nil
				},
			}, nil
		},
		InfoFn: func() tidepool.ModuleInfo {
			return tidepool.ModuleInfo{Name: "test-module", Version: "1.0.0"}
		},
		CloseFn: func(ctx context.Context) error { return nil },
	}
}

func TestPool_WarmsToCapacity(t *testing.T) {
	t.Parallel()

	var created, closed atomic.Int64
	p, err := pool.New(context.Background(), countingEngine(&created, &closed), testLimits(), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2), created.Load())
	assert.Equal(t, pool.Stats{Live: 2, Idle: 2, InFlight: 0}, p.Stats())
	assert.True(t, p.Healthy())

	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, int64(2), closed.Load())
	assert.False(t, p.Healthy())
}

func TestPool_WarmupFailureClosesPartialInstances(t *testing.T) {
	t.Parallel()

	var created, closed atomic.Int64
	inner := countingEngine(&created, &closed)
	engine := &mock.Engine{
		NewInstanceFn: func(ctx context.Context) (tidepool.Instance, error) {
			if created.Load() >= 1 {
				return nil, tidepool.Errorf(tidepool.EUNAVAILABLE, "module refused to instantiate")
			}
			return inner.NewInstanceFn(ctx)
		},
	}

	_, err := pool.New(context.Background(), engine, testLimits(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warming instance 2 of 2")
	assert.Equal(t, tidepool.EUNAVAILABLE, tidepool.ErrorCode(err))
	assert.Equal(t, int64(1), closed.Load())
}

func TestPool_ServesIdleFIFO(t *testing.T) {
	t.Parallel()

	var created, closed atomic.Int64
	p, err := pool.New(context.Background(), countingEngine(&created, &closed), testLimits(), nil)
	require.NoError(t, err)
	defer p.Close(context.Background())

	h1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	h2, err := p.Acquire(context.Background())
	require.NoError(t, err)

	first, second := h1.Instance(), h2.Instance()
	assert.NotSame(t, first, second)

	h1.Release(false)
	h2.Release(false)

	h3, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, h3.Instance())

	h4, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, second, h4.Instance())

	h3.Release(false)
	h4.Release(false)

	// Reuse does not construct new instances.
	assert.Equal(t, int64(2), created.Load())
}

func TestPool_AcquireBlocksAtCapacity(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	limits.PoolSize = 1
	var created, closed atomic.Int64
	p, err := pool.New(context.Background(), countingEngine(&created, &closed), limits, nil)
	require.NoError(t, err)
	defer p.Close(context.Background())

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	h.Release(false)

	h2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	h2.Release(false)
}

func TestPool_BlockedAcquiresServedInArrivalOrder(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	limits.PoolSize = 1
	var created, closed atomic.Int64
	p, err := pool.New(context.Background(), countingEngine(&created, &closed), limits, nil)
	require.NoError(t, err)
	defer p.Close(context.Background())

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Stagger arrivals so the semaphore queue order is known.
			time.Sleep(time.Duration(i) * 50 * time.Millisecond)
			got, err := p.Acquire(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			got.Release(false)
		}(i)
	}

	time.Sleep(250 * time.Millisecond)
	h.Release(false)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestPool_DoubleReleasePanics(t *testing.T) {
	t.Parallel()

	var created, closed atomic.Int64
	p, err := pool.New(context.Background(), countingEngine(&created, &closed), testLimits(), nil)
	require.NoError(t, err)
	defer p.Close(context.Background())

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	h.Release(false)

	assert.Panics(t, func() { h.Release(false) })
}

func TestPool_AcquireAfterCloseFails(t *testing.T) {
	t.Parallel()

	var created, closed atomic.Int64
	p, err := pool.New(context.Background(), countingEngine(&created, &closed), testLimits(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Close(context.Background()))

	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, tidepool.EUNAVAILABLE, tidepool.ErrorCode(err))
}

func TestPool_CloseWaitsForInFlight(t *testing.T) {
	t.Parallel()

	var created, closed atomic.Int64
	p, err := pool.New(context.Background(), countingEngine(&created, &closed), testLimits(), nil)
	require.NoError(t, err)

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)

	closeDone := make(chan error, 1)
	go func() { closeDone <- p.Close(context.Background()) }()

	select {
	case <-closeDone:
		t.Fatal("close finished while a call was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	h.Release(false)
	require.NoError(t, <-closeDone)
	assert.Equal(t, int64(2), closed.Load())
}

func TestPool_SweepEvictsWornInstance(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	limits.PoolSize = 1
	limits.MaxUsesBeforeEviction = 2
	var created, closed atomic.Int64
	p, err := pool.New(context.Background(), countingEngine(&created, &closed), limits, nil)
	require.NoError(t, err)
	defer p.Close(context.Background())

	var worn tidepool.Instance
	for i := 0; i < 2; i++ {
		h, err := p.Acquire(context.Background())
		require.NoError(t, err)
		worn = h.Instance()
		h.Release(false)
	}

	p.Sweep(context.Background())

	assert.Equal(t, int64(2), created.Load())
	assert.Equal(t, int64(1), closed.Load())
	assert.Equal(t, pool.Stats{Live: 1, Idle: 1, InFlight: 0}, p.Stats())

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, worn, h.Instance())
	h.Release(false)
}

func TestPool_SweepEvictsFailingInstance(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	limits.PoolSize = 1
	limits.MaxFailuresBeforeEviction = 2
	var created, closed atomic.Int64
	p, err := pool.New(context.Background(), countingEngine(&created, &closed), limits, nil)
	require.NoError(t, err)
	defer p.Close(context.Background())

	for i := 0; i < 2; i++ {
		h, err := p.Acquire(context.Background())
		require.NoError(t, err)
		h.Release(true)
	}

	p.Sweep(context.Background())

	assert.Equal(t, int64(2), created.Load())
	assert.Equal(t, int64(1), closed.Load())
}

func TestPool_SweepKeepsHealthyInstances(t *testing.T) {
	t.Parallel()

	var created, closed atomic.Int64
	p, err := pool.New(context.Background(), countingEngine(&created, &closed), testLimits(), nil)
	require.NoError(t, err)
	defer p.Close(context.Background())

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	h.Release(false)

	p.Sweep(context.Background())

	assert.Equal(t, int64(2), created.Load())
	assert.Equal(t, int64(0), closed.Load())
}

func TestPool_SweepKeepsWornInstanceWhenReplacementFails(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	limits.PoolSize = 1
	limits.MaxUsesBeforeEviction = 1
	var created, closed atomic.Int64
	inner := countingEngine(&created, &closed)
	var warmed atomic.Bool
	engine := &mock.Engine{
		NewInstanceFn: func(ctx context.Context) (tidepool.Instance, error) {
			if warmed.Swap(true) {
				return nil, tidepool.Errorf(tidepool.EUNAVAILABLE, "module refused to instantiate")
			}
			return inner.NewInstanceFn(ctx)
		},
	}

	p, err := pool.New(context.Background(), engine, limits, nil)
	require.NoError(t, err)
	defer p.Close(context.Background())

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	worn := h.Instance()
	h.Release(false)

	p.Sweep(context.Background())

	// The worn instance keeps serving.
	assert.Equal(t, int64(0), closed.Load())
	assert.True(t, p.Healthy())

	h, err = p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, worn, h.Instance())
	h.Release(false)
}

func TestPool_ExhaustionLogsThrottledWarning(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	limits.PoolSize = 1
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	var created, closed atomic.Int64
	p, err := pool.New(context.Background(), countingEngine(&created, &closed), limits, logger)
	require.NoError(t, err)
	defer p.Close(context.Background())

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	require.Error(t, err)

	h.Release(false)

	output := buf.String()
	assert.Contains(t, output, "instance pool exhausted")
	assert.Contains(t, output, "capacity=1")
}
