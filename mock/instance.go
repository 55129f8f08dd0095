package mock

import (
	"context"

	"github.com/foofork/tidepool"
)

var _ tidepool.Instance = (*Instance)(nil)

// Instance is a mock implementation of tidepool.Instance.
type Instance struct {
	ExtractFn func(ctx context.Context, html, url string, mode tidepool.ExtractionMode, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error)
	CloseFn   func(ctx context.Context) error
}

func (i *Instance) Extract(ctx context.Context, html, url string, mode tidepool.ExtractionMode, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error) {
	return i.ExtractFn(ctx, html, url, mode, tracker)
}

func (i *Instance) Close(ctx context.Context) error {
	return i.CloseFn(ctx)
}
