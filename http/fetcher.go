// Package http provides a plain HTTP implementation of tidepool.Fetcher
// for static pages that render without JavaScript.
package http

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/foofork/tidepool"
)

// DefaultFetchTimeout is the default timeout for HTTP requests.
// Kept consistent with rod.DefaultFetchTimeout (10s).
const DefaultFetchTimeout = 10 * time.Second

// DefaultMaxBodyBytes caps response bodies at 10 MiB. Oversized pages
// would blow the sandbox memory ceiling anyway.
const DefaultMaxBodyBytes = 10 << 20

const userAgent = "tidepool/1.0"

// Ensure Fetcher implements tidepool.Fetcher at compile time.
var _ tidepool.Fetcher = (*Fetcher)(nil)

// Fetcher retrieves HTML from URLs with plain HTTP requests. Unlike
// rod.Fetcher it does not execute JavaScript.
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the timeout for HTTP requests.
// Defaults to DefaultFetchTimeout (10s) if not specified.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithMaxBodyBytes caps the size of fetched response bodies.
// Defaults to DefaultMaxBodyBytes if not specified.
func WithMaxBodyBytes(n int64) Option {
	return func(f *Fetcher) {
		f.maxBytes = n
	}
}

// NewFetcher creates a new HTTP-based Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout:  DefaultFetchTimeout,
		maxBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(f)
	}

	f.client = &http.Client{
		Timeout: f.timeout,
	}

	return f
}

// Fetch retrieves the HTML served at the given URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", tidepool.Errorf(tidepool.EINVALID, "invalid fetch URL %q: %v", url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode, url); err != nil {
		return "", err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(body)) > f.maxBytes {
		return "", tidepool.Errorf(tidepool.ERESOURCE, "response from %s exceeds %d bytes", url, f.maxBytes)
	}

	return string(body), nil
}

// Close releases resources. A no-op for the plain HTTP fetcher.
func (f *Fetcher) Close() error {
	return nil
}

func statusError(code int, url string) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return tidepool.Errorf(tidepool.ENOTFOUND, "page not found (HTTP %d): %s", code, url)
	case code == http.StatusTooManyRequests || code >= 500:
		return tidepool.Errorf(tidepool.EUNAVAILABLE, "server unavailable (HTTP %d): %s", code, url)
	default:
		return tidepool.Errorf(tidepool.EINVALID, "unexpected HTTP %d: %s", code, url)
	}
}
