package tidepool

import "context"

// Fetcher retrieves HTML to feed into extraction. Implementations range
// from a plain HTTP client to full browser rendering for
// JavaScript-heavy pages.
type Fetcher interface {
	// Fetch returns the HTML served at url. The context controls timeout
	// and cancellation.
	Fetch(ctx context.Context, url string) (html string, err error)

	// Close releases any resources held by the fetcher.
	Close() error
}
