// Package wazero implements the sandbox engine on top of the wazero
// WebAssembly runtime. The extractor module is compiled once per engine;
// every extraction call runs in a freshly instantiated module with its
// own linear memory, so no guest state survives between calls.
//
// Per-call bounds are enforced three ways: a memory allocator hook routes
// linear memory growth through the call's ResourceTracker, a function
// listener meters fuel, and the runtime interrupts execution at safe
// points once the call context is done.
package wazero

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/foofork/tidepool"
	"github.com/foofork/tidepool/guest"
)

// Engine compiles an extractor module and creates sandbox instances
// from it. Construction fails if the module does not compile or does not
// expose the expected ABI.
type Engine struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	cache    wazero.CompilationCache
	limits   tidepool.ResourceLimits
	info     tidepool.ModuleInfo
	start    []string
	closed   atomic.Bool
}

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	cacheDir string
}

// WithCompilationCacheDir persists compiled machine code under dir so
// later engines skip recompilation of the same module.
func WithCompilationCacheDir(dir string) Option {
	return func(c *engineConfig) { c.cacheDir = dir }
}

// NewEngine compiles binary and validates its exports. The limits bound
// every call made through instances of this engine.
func NewEngine(ctx context.Context, binary []byte, limits tidepool.ResourceLimits, opts ...Option) (*Engine, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if len(binary) == 0 {
		return nil, tidepool.Errorf(tidepool.EINVALID, "empty module binary")
	}

	var cfg engineConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{limits: limits}

	rc := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(limits.MaxMemoryPages)
	if cfg.cacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(cfg.cacheDir)
		if err != nil {
			return nil, fmt.Errorf("compilation cache: %w", err)
		}
		e.cache = cache
		rc = rc.WithCompilationCache(cache)
	}

	e.runtime = wazero.NewRuntimeWithConfig(ctx, rc)
	wasi_snapshot_preview1.MustInstantiate(ctx, e.runtime)

	compiled, err := e.runtime.CompileModule(experimental.WithFunctionListenerFactory(ctx, fuelFactory{}), binary)
	if err != nil {
		_ = e.runtime.Close(ctx)
		return nil, tidepool.Errorf(tidepool.EINVALID, "compile module: %v", err)
	}
	e.compiled = compiled

	if err := validateExports(compiled); err != nil {
		_ = e.runtime.Close(ctx)
		return nil, err
	}
	e.start = startFunctions(compiled)

	e.info = tidepool.ModuleInfo{
		Name:     "extractor",
		Version:  "unknown",
		Checksum: fmt.Sprintf("xxh64:%016x", xxhash.Sum64(binary)),
	}
	if name := compiled.Name(); name != "" {
		e.info.Name = name
	}
	if err := e.readInfo(ctx); err != nil {
		_ = e.runtime.Close(ctx)
		return nil, err
	}
	return e, nil
}

// NewInstance returns a fresh sandbox instance. A trial instantiation
// verifies the module still links and initializes.
func (e *Engine) NewInstance(ctx context.Context) (tidepool.Instance, error) {
	if e.closed.Load() {
		return nil, tidepool.Errorf(tidepool.EUNAVAILABLE, "engine closed")
	}
	mod, err := e.runtime.InstantiateModule(ctx, e.compiled, e.moduleConfig())
	if err != nil {
		return nil, tidepool.Errorf(tidepool.EUNAVAILABLE, "instantiate module: %v", err)
	}
	_ = mod.Close(ctx)
	return &Instance{engine: e}, nil
}

// Info describes the compiled module.
func (e *Engine) Info() tidepool.ModuleInfo { return e.info }

// Close releases the runtime and all compiled code.
func (e *Engine) Close(ctx context.Context) error {
	if e.closed.Swap(true) {
		return nil
	}
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		if cerr := e.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

func (e *Engine) moduleConfig() wazero.ModuleConfig {
	return wazero.NewModuleConfig().WithName("").WithStartFunctions(e.start...)
}

// readInfo consumes the module's optional info export.
func (e *Engine) readInfo(ctx context.Context) error {
	if _, ok := e.compiled.ExportedFunctions()["info"]; !ok {
		return nil
	}
	mod, err := e.runtime.InstantiateModule(ctx, e.compiled, e.moduleConfig())
	if err != nil {
		return tidepool.Errorf(tidepool.EINVALID, "instantiate module for info: %v", err)
	}
	defer mod.Close(ctx)

	res, err := mod.ExportedFunction("info").Call(ctx)
	if err != nil {
		return tidepool.Errorf(tidepool.EINVALID, "module info call: %v", err)
	}
	ptr, n := unpack(res[0])
	raw, err := readBytes(mod.Memory(), ptr, n)
	if err != nil {
		return err
	}
	var info guest.Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return tidepool.Errorf(tidepool.EINVALID, "malformed module info: %v", err)
	}
	if info.Name != "" {
		e.info.Name = info.Name
	}
	if info.Version != "" {
		e.info.Version = info.Version
	}
	return nil
}

// validateExports checks the module against the extractor ABI: an
// exported "memory", alloc(i32)->i32 and
// extract(i32,i32,i32,i32,i32,i32)->i64. The optional info export must
// be ()->i64 when present.
func validateExports(compiled wazero.CompiledModule) error {
	fns := compiled.ExportedFunctions()

	alloc, ok := fns["alloc"]
	if !ok {
		return tidepool.Errorf(tidepool.EINVALID, "module does not export %q", "alloc")
	}
	if !signatureIs(alloc, []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}) {
		return tidepool.Errorf(tidepool.EINVALID, "unexpected signature for %q export", "alloc")
	}

	extract, ok := fns["extract"]
	if !ok {
		return tidepool.Errorf(tidepool.EINVALID, "module does not export %q", "extract")
	}
	params := []api.ValueType{
		api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32,
		api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32,
	}
	if !signatureIs(extract, params, []api.ValueType{api.ValueTypeI64}) {
		return tidepool.Errorf(tidepool.EINVALID, "unexpected signature for %q export", "extract")
	}

	if info, ok := fns["info"]; ok {
		if !signatureIs(info, nil, []api.ValueType{api.ValueTypeI64}) {
			return tidepool.Errorf(tidepool.EINVALID, "unexpected signature for %q export", "info")
		}
	}

	if _, ok := compiled.ExportedMemories()["memory"]; !ok {
		return tidepool.Errorf(tidepool.EINVALID, "module does not export %q", "memory")
	}
	return nil
}

func signatureIs(def api.FunctionDefinition, params, results []api.ValueType) bool {
	return typesEqual(def.ParamTypes(), params) && typesEqual(def.ResultTypes(), results)
}

func typesEqual(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// startFunctions returns the reactor initializer when the module has one.
// The empty list overrides wazero's default of calling _start, which
// would run a command module's main.
func startFunctions(compiled wazero.CompiledModule) []string {
	if _, ok := compiled.ExportedFunctions()["_initialize"]; ok {
		return []string{"_initialize"}
	}
	return nil
}

// unpack splits the module's packed pointer/length return value.
func unpack(v uint64) (ptr, n uint32) {
	return uint32(v >> 32), uint32(v)
}

// readBytes copies a guest buffer out of module memory. The copy matters:
// api.Memory.Read returns a view that dies with the module.
func readBytes(mem api.Memory, ptr, n uint32) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	view, ok := mem.Read(ptr, n)
	if !ok {
		return nil, tidepool.Errorf(tidepool.EINTERNAL, "module returned out of range buffer (ptr=%d len=%d)", ptr, n)
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}
