package mock

import (
	"context"

	"github.com/foofork/tidepool"
)

var _ tidepool.Engine = (*Engine)(nil)

// Engine is a mock implementation of tidepool.Engine.
type Engine struct {
	NewInstanceFn func(ctx context.Context) (tidepool.Instance, error)
	InfoFn        func() tidepool.ModuleInfo
	CloseFn       func(ctx context.Context) error
}

func (e *Engine) NewInstance(ctx context.Context) (tidepool.Instance, error) {
	return e.NewInstanceFn(ctx)
}

func (e *Engine) Info() tidepool.ModuleInfo {
	return e.InfoFn()
}

func (e *Engine) Close(ctx context.Context) error {
	return e.CloseFn(ctx)
}
