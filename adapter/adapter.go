package adapter

import (
	"context"
	stderrors "errors"
	"time"

	wasmharness "github.com/wippyai/wasm-harness"
	"github.com/wippyai/wasm-harness/aggregator"
	"github.com/wippyai/wasm-harness/errors"
)

// Target selects one configured run: a module executed under one host kind.
type Target struct {
	Kind   wasmharness.Kind
	Name   string
	Module []byte

	// SharedMemory runs the target with a shared-memory thread
	// configuration; the handle is created at launch and passed down to
	// every context of the run.
	SharedMemory bool

	// ThreadStackSize, when non-nil, must be a positive multiple of 65536.
	ThreadStackSize *uint32

	// RoutingKey matches logical runs to reusable shared/service workers.
	RoutingKey string

	// DriverURL is the headless-browser driver endpoint (browser kind).
	// Launching the browser process itself is out of scope; the endpoint
	// is handed in.
	DriverURL string

	// RuntimePath overrides the server-side runtime binary.
	RuntimePath string
}

// Run is one launched execution context awaiting its result.
type Run struct {
	ContextID string
	Target    Target
	Started   time.Time

	wait      func(ctx context.Context) (wasmharness.Status, error)
	terminate func() error
}

// Adapter is the capability interface every host kind satisfies.
type Adapter interface {
	// Supports reports whether the adapter launches targets of kind k.
	Supports(k wasmharness.Kind) bool
	// Launch starts the target's execution context. The context is running
	// once Launch returns.
	Launch(ctx context.Context, t Target) (*Run, error)
	// AwaitResult waits for the run's outcome, applying timeout as a hard
	// wall-clock bound. Exceeding it terminates the context and classifies
	// the run TimedOut.
	AwaitResult(ctx context.Context, r *Run, timeout time.Duration) (wasmharness.TestRunResult, error)
	// Terminate stops the run. Idempotent; a no-op for finished runs.
	Terminate(r *Run) error
}

// awaitResult is the shared collect path: apply the timeout, classify the
// outcome, and attach the context's drained event log.
func awaitResult(ctx context.Context, agg *aggregator.Aggregator, r *Run, timeout time.Duration) (wasmharness.TestRunResult, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	status, err := r.wait(runCtx)

	res := wasmharness.TestRunResult{
		ContextID: r.ContextID,
		Target:    r.Target.Name,
		Kind:      r.Target.Kind,
		Duration:  time.Since(r.Started),
	}

	switch {
	case err != nil && stderrors.Is(err, context.DeadlineExceeded):
		_ = r.terminate()
		res.Status = wasmharness.StatusTimedOut
	case err != nil:
		_ = r.terminate()
		_ = agg.IngestPanic(wasmharness.PanicEvent{
			ContextID: r.ContextID,
			Message:   errors.New(errors.PhaseAdapter, errors.KindTerminated).Cause(err).Build().Error(),
		})
		res.Status = wasmharness.StatusCrashed
	default:
		res.Status = status
	}

	res.Events = agg.DrainContext(r.ContextID)
	return res, nil
}
