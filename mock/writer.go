package mock

import (
	"context"

	"github.com/foofork/tidepool"
)

var _ tidepool.DocWriter = (*DocWriter)(nil)

// DocWriter is a mock implementation of tidepool.DocWriter.
type DocWriter struct {
	WriteDocFn func(ctx context.Context, doc *tidepool.ExtractedDoc) error
}

func (w *DocWriter) WriteDoc(ctx context.Context, doc *tidepool.ExtractedDoc) error {
	return w.WriteDocFn(ctx, doc)
}
