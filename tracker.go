package tidepool

import "sync/atomic"

// ResourceTracker enforces the linear memory page ceiling for a single
// extraction call and records usage. A tracker belongs to exactly one
// call and is never reused.
type ResourceTracker struct {
	limitPages   uint32
	currentPages atomic.Uint32
	peakPages    atomic.Uint32
	growFailures atomic.Uint32
}

// NewResourceTracker returns a tracker enforcing the given page ceiling.
func NewResourceTracker(limitPages uint32) *ResourceTracker {
	return &ResourceTracker{limitPages: limitPages}
}

// Authorize reports whether sandbox memory may grow from currentPages to
// desiredPages. A denial is counted but does not abort the call; the
// sandbox surfaces the failed allocation to the guest, which decides how
// to proceed.
func (t *ResourceTracker) Authorize(currentPages, desiredPages uint32) bool {
	// Shrink requests never release budget.
	if desiredPages < currentPages {
		desiredPages = currentPages
	}
	if desiredPages > t.limitPages {
		t.growFailures.Add(1)
		return false
	}
	t.currentPages.Store(desiredPages)
	for {
		peak := t.peakPages.Load()
		if desiredPages <= peak || t.peakPages.CompareAndSwap(peak, desiredPages) {
			return true
		}
	}
}

// CurrentPages returns the most recently authorized page count.
func (t *ResourceTracker) CurrentPages() uint32 { return t.currentPages.Load() }

// PeakPages returns the highest page count authorized during the call.
func (t *ResourceTracker) PeakPages() uint32 { return t.peakPages.Load() }

// GrowFailures returns how many growth requests were denied.
func (t *ResourceTracker) GrowFailures() uint32 { return t.growFailures.Load() }

// LimitPages returns the page ceiling.
func (t *ResourceTracker) LimitPages() uint32 { return t.limitPages }
