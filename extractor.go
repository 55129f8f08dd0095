package tidepool

import "context"

// Extractor extracts structured content from HTML pages.
type Extractor interface {
	// Extract processes raw HTML fetched from url and returns the
	// extracted document. The mode selects what is extracted; deadlines
	// and cancellation ride on ctx.
	Extract(ctx context.Context, html, url string, mode ExtractionMode) (*ExtractedDoc, error)
}
