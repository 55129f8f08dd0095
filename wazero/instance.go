package wazero

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/sys"

	"github.com/foofork/tidepool"
	"github.com/foofork/tidepool/guest"
)

// Instance executes extraction calls against the engine's compiled
// module. Each call instantiates a fresh module, so instances carry no
// guest state of their own and reuse cannot leak data between calls.
type Instance struct {
	engine *Engine
	closed atomic.Bool
}

// Extract runs the sandboxed extractor over html under the engine's
// resource limits. The tracker authorizes every memory growth request
// for this call and records peak usage.
func (inst *Instance) Extract(ctx context.Context, html, url string, mode tidepool.ExtractionMode, tracker *tidepool.ResourceTracker) (*tidepool.ExtractedDoc, error) {
	if inst.closed.Load() || inst.engine.closed.Load() {
		return nil, tidepool.Errorf(tidepool.EUNAVAILABLE, "instance closed")
	}
	if tracker == nil {
		return nil, tidepool.Errorf(tidepool.EINVALID, "resource tracker required")
	}
	if err := mode.Validate(); err != nil {
		return nil, err
	}

	limits := inst.engine.limits

	deadline := time.Now().Add(limits.WallClockTimeout)
	callCtx, cancel := context.WithDeadlineCause(ctx, deadline,
		tidepool.Errorf(tidepool.ETIMEOUT, "extraction exceeded %s wall clock", limits.WallClockTimeout))
	defer cancel()

	callCtx, cancelCause := context.WithCancelCause(callCtx)
	defer cancelCause(nil)

	meter := newFuelMeter(limits.FuelLimit, func() {
		cancelCause(tidepool.Errorf(tidepool.ETRAP, "fuel exhausted after %d units", limits.FuelLimit))
	})
	callCtx = withFuelMeter(callCtx, meter)

	mem := &trackedMemory{tracker: tracker}
	instCtx := experimental.WithMemoryAllocator(callCtx, experimental.MemoryAllocatorFunc(
		func(_, _ uint64) experimental.LinearMemory { return mem },
	))

	mod, err := inst.engine.runtime.InstantiateModule(instCtx, inst.engine.compiled, inst.engine.moduleConfig())
	if err != nil {
		return nil, inst.classify(callCtx, mem, err)
	}
	defer mod.Close(context.WithoutCancel(ctx))

	doc, err := inst.run(callCtx, mod, html, url, mode)
	if err != nil {
		return nil, inst.classify(callCtx, mem, err)
	}
	return doc, nil
}

// Close marks the instance unusable. Per-call modules are already closed
// by the time Close runs, so there is nothing else to release.
func (inst *Instance) Close(context.Context) error {
	inst.closed.Store(true)
	return nil
}

// run drives the module ABI: write inputs through the guest allocator,
// invoke extract, decode the returned envelope.
func (inst *Instance) run(ctx context.Context, mod api.Module, html, url string, mode tidepool.ExtractionMode) (*tidepool.ExtractedDoc, error) {
	modeJSON, err := json.Marshal(guest.EncodeMode(mode))
	if err != nil {
		return nil, tidepool.Errorf(tidepool.EINTERNAL, "encode mode: %v", err)
	}

	htmlPtr, err := writeBuffer(ctx, mod, []byte(html))
	if err != nil {
		return nil, err
	}
	urlPtr, err := writeBuffer(ctx, mod, []byte(url))
	if err != nil {
		return nil, err
	}
	modePtr, err := writeBuffer(ctx, mod, modeJSON)
	if err != nil {
		return nil, err
	}

	res, err := mod.ExportedFunction("extract").Call(ctx,
		uint64(htmlPtr), uint64(len(html)),
		uint64(urlPtr), uint64(len(url)),
		uint64(modePtr), uint64(len(modeJSON)))
	if err != nil {
		return nil, err
	}
	ptr, n := unpack(res[0])
	raw, err := readBytes(mod.Memory(), ptr, n)
	if err != nil {
		return nil, err
	}
	doc, err := guest.DecodeEnvelope(raw, url)
	if err != nil {
		return nil, err
	}
	doc.Metadata.Strategy = "wasm:" + mode.String()
	return doc, nil
}

// writeBuffer allocates guest memory via the module's alloc export and
// copies data into it.
func writeBuffer(ctx context.Context, mod api.Module, data []byte) (uint32, error) {
	res, err := mod.ExportedFunction("alloc").Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, err
	}
	ptr := uint32(res[0])
	if len(data) > 0 && !mod.Memory().Write(ptr, data) {
		return 0, tidepool.Errorf(tidepool.EINTERNAL, "module returned out of range buffer (ptr=%d len=%d)", ptr, len(data))
	}
	return ptr, nil
}

// classify maps a failed call to an application error. Context causes
// win over the raw wazero error: the deadline cause carries ETIMEOUT and
// fuel exhaustion cancels with ETRAP. A trap that follows a denied
// memory grow is reported as ERESOURCE with the denied request attached.
func (inst *Instance) classify(ctx context.Context, mem *trackedMemory, err error) error {
	var terr *tidepool.Error
	if errors.As(err, &terr) {
		if terr.Code == tidepool.ERESOURCE && terr.RequestedPages == 0 {
			if denied := mem.denied.Load(); denied > 0 {
				return tidepool.ResourceErrorf(denied, inst.engine.limits.MaxMemoryPages, "%s", terr.Message)
			}
		}
		return terr
	}

	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		if errors.As(cause, &terr) {
			return terr
		}
		if errors.Is(cause, context.DeadlineExceeded) {
			return tidepool.Errorf(tidepool.ETIMEOUT, "extraction deadline exceeded")
		}
		return cause
	}

	if denied := mem.denied.Load(); denied > 0 {
		return tidepool.ResourceErrorf(denied, inst.engine.limits.MaxMemoryPages,
			"sandbox memory grow to %d pages denied (limit %d)", denied, inst.engine.limits.MaxMemoryPages)
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		return tidepool.Errorf(tidepool.ETRAP, "module exited with code %d", exitErr.ExitCode())
	}
	return tidepool.Errorf(tidepool.ETRAP, "module trapped: %v", err)
}
