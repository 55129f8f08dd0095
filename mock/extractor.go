package mock

import (
	"context"

	"github.com/foofork/tidepool"
)

var _ tidepool.Extractor = (*Extractor)(nil)

// Extractor is a mock implementation of tidepool.Extractor.
type Extractor struct {
	ExtractFn func(ctx context.Context, html, url string, mode tidepool.ExtractionMode) (*tidepool.ExtractedDoc, error)
}

func (e *Extractor) Extract(ctx context.Context, html, url string, mode tidepool.ExtractionMode) (*tidepool.ExtractedDoc, error) {
	return e.ExtractFn(ctx, html, url, mode)
}
