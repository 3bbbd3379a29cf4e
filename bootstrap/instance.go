package bootstrap

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-harness/errors"
	"github.com/wippyai/wasm-harness/memview"
)

// Test exports carry this prefix in the module's export section.
const testExportPrefix = "__wbgt_"

// Start routine candidates, in preference order. Reactor-style modules
// export _initialize, command-style modules export _start, and bindgen
// output exports its own start shim.
var startExports = []string{"_initialize", "__wbindgen_start", "_start"}

// Instance is a running module instance. It is not safe for concurrent use
// from multiple goroutines; each execution context drives its own calls.
type Instance struct {
	id      string
	name    string
	module  api.Module
	memory  *memview.Cache
	shared  *memview.Shared
	started bool
}

func newInstance(mod api.Module, opts Options) *Instance {
	inst := &Instance{
		id:     uuid.NewString(),
		name:   opts.Name,
		module: mod,
		shared: opts.Memory,
	}

	if mem := mod.Memory(); mem != nil {
		if opts.Memory != nil {
			// The externally owned handle becomes a window onto this
			// instance's memory; growth from any context stays visible
			// through the handle.
			opts.Memory.Bind(mem)
			inst.memory = memview.NewCache(opts.Memory)
		} else {
			inst.memory = memview.NewCache(memview.NewInstanceMemory(mem))
		}
	}

	return inst
}

// start runs the one-time start routine. A trap here leaves the registry
// entry failed; the loader does not retry.
func (i *Instance) start(ctx context.Context) error {
	if i.started {
		return nil
	}

	for _, name := range startExports {
		fn := i.module.ExportedFunction(name)
		if fn == nil {
			continue
		}
		if _, err := fn.Call(ctx); err != nil {
			return errors.New(errors.PhaseBootstrap, errors.KindStartTrap).
				Detail("start routine %s trapped", name).
				Cause(err).
				Build()
		}
		break
	}

	i.started = true
	return nil
}

// ID returns the instance id, unique per run.
func (i *Instance) ID() string {
	return i.id
}

// Memory returns the growth-safe view cache over instance memory, or nil
// for memory-less modules.
func (i *Instance) Memory() *memview.Cache {
	return i.memory
}

// SharedMemory returns the externally owned handle, or nil when the
// instance owns its memory exclusively.
func (i *Instance) SharedMemory() *memview.Shared {
	return i.shared
}

// TestExports lists the module's exported test functions in stable order.
func (i *Instance) TestExports() []string {
	var names []string
	for name := range i.module.ExportedFunctionDefinitions() {
		if strings.HasPrefix(name, testExportPrefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// RunTest invokes one exported test function. A non-nil error is a trap,
// which callers classify as a test failure or crash.
func (i *Instance) RunTest(ctx context.Context, name string) error {
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return errors.New(errors.PhaseBootstrap, errors.KindNotFound).
			Detail("test export %q not found", name).
			Build()
	}
	_, err := fn.Call(ctx)
	return err
}

// Close releases the instance.
func (i *Instance) Close(ctx context.Context) error {
	if i.module == nil {
		return nil
	}
	err := i.module.Close(ctx)
	i.module = nil
	i.memory = nil
	return err
}
