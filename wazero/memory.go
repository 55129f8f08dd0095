package wazero

import (
	"sync/atomic"

	"github.com/foofork/tidepool"
)

// wasmPageSize is the WebAssembly linear memory page size in bytes.
const wasmPageSize = 65536

// trackedMemory backs one call's linear memory and routes every growth
// request through the call's ResourceTracker. A denied request returns
// nil, which the runtime surfaces to the guest as a failed memory.grow;
// the host never aborts the call on denial.
type trackedMemory struct {
	tracker *tidepool.ResourceTracker
	buf     []byte
	denied  atomic.Uint32
}

func (m *trackedMemory) Reallocate(size uint64) []byte {
	desired := pages(size)
	current := pages(uint64(len(m.buf)))
	if !m.tracker.Authorize(current, desired) {
		m.denied.Store(desired)
		return nil
	}
	if size > uint64(cap(m.buf)) {
		grown := make([]byte, size)
		copy(grown, m.buf)
		m.buf = grown
	} else {
		m.buf = m.buf[:size]
	}
	return m.buf
}

func (m *trackedMemory) Free() {
	m.buf = nil
}

func pages(bytes uint64) uint32 {
	return uint32((bytes + wasmPageSize - 1) / wasmPageSize)
}
