package tidepool

import "context"

// ModuleInfo identifies a compiled extractor module.
type ModuleInfo struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Checksum string `json:"checksum"`
}

// Instance is a sandboxed extractor ready to serve calls. An instance is
// not safe for concurrent use; the pool hands it to at most one call at
// a time.
type Instance interface {
	// Extract runs the sandboxed extractor over html fetched from url.
	// The tracker bounds memory growth for this call and records peak
	// usage. Returns ETIMEOUT when ctx expires, ERESOURCE when the page
	// ceiling aborts the guest, and ETRAP when the guest traps or runs
	// out of fuel.
	Extract(ctx context.Context, html, url string, mode ExtractionMode, tracker *ResourceTracker) (*ExtractedDoc, error)

	// Close releases the instance's resources.
	Close(ctx context.Context) error
}

// Engine creates sandbox instances from a compiled extractor module. The
// module is compiled once when the engine is constructed; NewInstance is
// cheap enough for the extraction path.
type Engine interface {
	// NewInstance returns a fresh instance with fully isolated state.
	NewInstance(ctx context.Context) (Instance, error)

	// Info describes the compiled module.
	Info() ModuleInfo

	// Close releases the engine. Instances created by the engine are
	// invalid afterwards.
	Close(ctx context.Context) error
}
