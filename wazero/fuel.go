package wazero

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
)

// Fuel is metered at function call granularity: every function entry
// burns one unit. Exhaustion cancels the call context, and the runtime
// interrupts execution at the next safe point. A loop that never calls
// anything evades the meter; the wall clock remains the hard stop.

type fuelKey struct{}

func withFuelMeter(ctx context.Context, m *fuelMeter) context.Context {
	return context.WithValue(ctx, fuelKey{}, m)
}

type fuelMeter struct {
	remaining atomic.Int64
	exhaust   func()
	once      sync.Once
}

func newFuelMeter(limit uint64, exhaust func()) *fuelMeter {
	m := &fuelMeter{exhaust: exhaust}
	m.remaining.Store(int64(limit))
	return m
}

func (m *fuelMeter) burn(units int64) {
	if m.remaining.Add(-units) < 0 {
		m.once.Do(m.exhaust)
	}
}

// fuelFactory registers the fuel listener for every function compiled in
// the extractor module.
type fuelFactory struct{}

func (fuelFactory) NewFunctionListener(api.FunctionDefinition) experimental.FunctionListener {
	return fuelListener{}
}

type fuelListener struct{}

func (fuelListener) Before(ctx context.Context, _ api.Module, _ api.FunctionDefinition, _ []uint64, _ experimental.StackIterator) {
	if m, ok := ctx.Value(fuelKey{}).(*fuelMeter); ok {
		m.burn(1)
	}
}

func (fuelListener) After(context.Context, api.Module, api.FunctionDefinition, []uint64) {}

func (fuelListener) Abort(context.Context, api.Module, api.FunctionDefinition, error) {}
