package tidepool

import "context"

// DocWriter writes extracted documents somewhere outside the process,
// for example as markdown files on disk.
type DocWriter interface {
	WriteDoc(ctx context.Context, doc *ExtractedDoc) error
}
