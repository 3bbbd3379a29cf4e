package worker

import (
	"context"
	"sync"
	"sync/atomic"

	wasmharness "github.com/wippyai/wasm-harness"
	"github.com/wippyai/wasm-harness/aggregator"
	"github.com/wippyai/wasm-harness/memview"
)

// Proc is the body a spawned execution context runs. A returned error is an
// uncaught error: it becomes a PanicEvent and the context is marked
// Crashed. An explicit test failure is reported through Handle.Fail.
type Proc func(ctx context.Context, h *Handle) error

// Spawn describes one logical run. Module and Memory are the handles the
// spawn message carries down to the child; a worker initializes against
// them explicitly because it cannot rediscover shared memory on its own.
type Spawn struct {
	Kind       wasmharness.Kind
	RoutingKey string
	Module     []byte
	Memory     *memview.Shared
	Run        Proc
}

// Context is one logical test run inside a spawned execution context.
// For shared and service worker kinds, several Contexts may execute on the
// same persistent physical context over time.
type Context struct {
	ID         string
	Kind       wasmharness.Kind
	RoutingKey string

	host   *host
	result chan Envelope
	term   atomic.Bool
}

// host is the physical execution context: one goroutine with a job queue
// and a stop signal. Reusable kinds keep their host alive across runs.
type host struct {
	key      reuseKey
	jobs     chan *jobReq
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	ready    chan struct{}
}

type reuseKey struct {
	kind    wasmharness.Kind
	routing string
}

type jobReq struct {
	c     *Context
	sp    Spawn
	goCtx context.Context
}

func newHost(key reuseKey) *host {
	return &host{
		key:   key,
		jobs:  make(chan *jobReq),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		ready: make(chan struct{}),
	}
}

func (h *host) run(o *Orchestrator) {
	defer close(h.done)

	// Readiness acknowledgement; nothing executes before this.
	close(h.ready)

	for {
		select {
		case <-h.stop:
			return
		case j := <-h.jobs:
			o.execute(j)
		}
	}
}

func (h *host) halt() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}

// Handle is the child-side surface of a running context: log emission,
// explicit failure reporting, the spawn payload, and grandchild spawning.
type Handle struct {
	c       *Context
	orch    *Orchestrator
	batcher *aggregator.Batcher
	sp      Spawn
	failed  atomic.Bool
}

// ContextID returns the id every emitted event is attributed to.
func (h *Handle) ContextID() string {
	return h.c.ID
}

// Module returns the module bytes the spawn message carried.
func (h *Handle) Module() []byte {
	return h.sp.Module
}

// Memory returns the shared memory handle the spawn message carried, or nil.
func (h *Handle) Memory() *memview.Shared {
	return h.sp.Memory
}

// Log emits one console-style line. Lines are batched, never shipped
// per-call.
func (h *Handle) Log(stream wasmharness.Stream, payload string) {
	h.batcher.Log(stream, payload)
}

// Fail marks the run as an explicit test failure, distinct from a crash.
func (h *Handle) Fail() {
	h.failed.Store(true)
}

// Spawn creates a grandchild context through the same orchestrator, so its
// output reaches the aggregator attributed to its own context id no matter
// how deep the nesting goes.
func (h *Handle) Spawn(ctx context.Context, sp Spawn) (*Context, error) {
	return h.orch.Spawn(ctx, sp)
}

// Await waits for a context previously spawned from this handle.
func (h *Handle) Await(ctx context.Context, c *Context) (wasmharness.Status, error) {
	return h.orch.Await(ctx, c)
}
