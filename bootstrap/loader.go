package bootstrap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	wasmharness "github.com/wippyai/wasm-harness"
	"github.com/wippyai/wasm-harness/errors"
	"github.com/wippyai/wasm-harness/memview"
)

// State is the lifecycle of one (module, memory) pair.
type State int32

const (
	StateUninitialized State = iota
	StateInstantiating
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInstantiating:
		return "instantiating"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Config holds configuration for loader creation.
type Config struct {
	// MemoryLimitPages caps instance memory in 64 KiB pages. 0 means default.
	MemoryLimitPages uint32

	// EnableThreads enables the threads proposal so modules can run against
	// shared memory with atomics.
	EnableThreads bool

	Logger *zap.Logger
}

// Options configures one Initialize call.
type Options struct {
	// Module is the compiled wasm binary. Alternatively pass an already
	// compiled module in Compiled; exactly one must be set.
	Module   []byte
	Compiled wazero.CompiledModule

	// Memory is externally owned shared memory, passed down to workers so
	// they initialize against the same buffer.
	Memory *memview.Shared

	// ThreadStackSize, when non-nil, must be a positive multiple of the
	// 64 KiB page size. Validated before any instantiation side effect.
	ThreadStackSize *uint32

	Name string
}

type entry struct {
	done  chan struct{}
	inst  *Instance
	err   error
	state atomic.Int32
}

// Loader owns the instantiation state machine for one wazero runtime.
type Loader struct {
	runtime wazero.Runtime
	log     *zap.Logger

	mu       sync.Mutex
	entries  map[registryKey]*entry
	wasiOnce sync.Once
	wasiErr  error
}

type registryKey struct {
	module string
	memory string
}

// New creates a loader. Threads support is opt-in via cfg.
func New(ctx context.Context, cfg *Config) (*Loader, error) {
	runtimeCfg := wazero.NewRuntimeConfig()

	log := zap.NewNop()
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.EnableThreads {
			runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
		}
		if cfg.Logger != nil {
			log = cfg.Logger
		}
	}

	return &Loader{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		log:     log,
		entries: make(map[registryKey]*entry),
	}, nil
}

// Close releases the runtime. All instances become invalid.
func (l *Loader) Close(ctx context.Context) error {
	return l.runtime.Close(ctx)
}

// Initialize returns the instance for (module, memory), creating it on first
// call. It is idempotent: a Ready pair returns the cached instance without
// side effects, and a concurrent caller on an Instantiating pair waits for
// the first caller's outcome.
func (l *Loader) Initialize(ctx context.Context, opts Options) (*Instance, error) {
	if err := validate(opts); err != nil {
		return nil, err
	}

	key, err := l.key(opts)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	e, ok := l.entries[key]
	if ok {
		l.mu.Unlock()
		select {
		case <-e.done:
			return e.inst, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e = &entry{done: make(chan struct{})}
	e.state.Store(int32(StateInstantiating))
	l.entries[key] = e
	l.mu.Unlock()

	e.inst, e.err = l.instantiate(ctx, opts)
	if e.err != nil {
		// No automatic retry; later callers observe the recorded error.
		e.state.Store(int32(StateFailed))
	} else {
		e.state.Store(int32(StateReady))
	}
	close(e.done)

	return e.inst, e.err
}

// AutoInitialize performs initialization only when ctx belongs to the main
// execution context. Inside a spawned worker it is a no-op and reports
// initialized=false; the worker must call Initialize explicitly with the
// handles handed down by its parent.
func (l *Loader) AutoInitialize(ctx context.Context, opts Options) (inst *Instance, initialized bool, err error) {
	if wasmharness.InWorker(ctx) {
		return nil, false, nil
	}
	inst, err = l.Initialize(ctx, opts)
	if err != nil {
		return nil, false, err
	}
	return inst, true, nil
}

// State reports the lifecycle state for the pair opts describes.
func (l *Loader) State(opts Options) State {
	key, err := l.key(opts)
	if err != nil {
		return StateUninitialized
	}
	l.mu.Lock()
	e, ok := l.entries[key]
	l.mu.Unlock()
	if !ok {
		return StateUninitialized
	}
	return State(e.state.Load())
}

func validate(opts Options) error {
	if opts.ThreadStackSize != nil {
		size := *opts.ThreadStackSize
		if size == 0 || size%memview.PageSize != 0 {
			return errors.InvalidStackSize(uint64(size))
		}
	}
	if len(opts.Module) == 0 && opts.Compiled == nil {
		return errors.Config("no module source provided")
	}
	if len(opts.Module) > 0 && opts.Compiled != nil {
		return errors.Config("both module bytes and a compiled module provided")
	}
	return nil
}

func (l *Loader) key(opts Options) (registryKey, error) {
	var moduleID string
	switch {
	case len(opts.Module) > 0:
		sum := sha256.Sum256(opts.Module)
		moduleID = hex.EncodeToString(sum[:])
	case opts.Compiled != nil:
		moduleID = fmt.Sprintf("compiled:%p", opts.Compiled)
	default:
		return registryKey{}, errors.Config("no module source provided")
	}

	key := registryKey{module: moduleID}
	if opts.Memory != nil {
		key.memory = opts.Memory.ID()
	}
	return key, nil
}

func (l *Loader) initWASI(ctx context.Context) error {
	l.wasiOnce.Do(func() {
		_, l.wasiErr = wasi_snapshot_preview1.Instantiate(ctx, l.runtime)
	})
	return l.wasiErr
}

func (l *Loader) instantiate(ctx context.Context, opts Options) (*Instance, error) {
	compiled := opts.Compiled
	if compiled == nil {
		var err error
		compiled, err = l.runtime.CompileModule(ctx, opts.Module)
		if err != nil {
			return nil, errors.Instantiation("compile module", err)
		}
	}

	if importsWASI(compiled) {
		if err := l.initWASI(ctx); err != nil {
			return nil, errors.Instantiation("instantiate WASI", err)
		}
	}

	// Start functions are cleared so the one-time start routine below is the
	// only entry path.
	modConfig := wazero.NewModuleConfig().
		WithName(opts.Name).
		WithStartFunctions()

	mod, err := l.runtime.InstantiateModule(ctx, compiled, modConfig)
	if err != nil {
		return nil, errors.Instantiation("instantiate module", err)
	}

	inst := newInstance(mod, opts)

	if err := inst.start(ctx); err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}

	l.log.Debug("instance ready",
		zap.String("name", opts.Name),
		zap.Bool("shared_memory", opts.Memory != nil))

	return inst, nil
}

func importsWASI(compiled wazero.CompiledModule) bool {
	for _, f := range compiled.ImportedFunctions() {
		if mod, _, _ := f.Import(); mod == "wasi_snapshot_preview1" {
			return true
		}
	}
	return false
}
