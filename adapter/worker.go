package adapter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	wasmharness "github.com/wippyai/wasm-harness"
	"github.com/wippyai/wasm-harness/aggregator"
	"github.com/wippyai/wasm-harness/bootstrap"
	"github.com/wippyai/wasm-harness/memview"
	"github.com/wippyai/wasm-harness/worker"
)

// WorkerAdapter runs targets in-process: the module is instantiated through
// the bootstrap loader inside a spawned worker context. It serves the three
// worker kinds.
type WorkerAdapter struct {
	agg    *aggregator.Aggregator
	orch   *worker.Orchestrator
	loader *bootstrap.Loader
	log    *zap.Logger
}

// NewWorkerAdapter wires a loader and an orchestrator to the run's
// aggregator.
func NewWorkerAdapter(agg *aggregator.Aggregator, loader *bootstrap.Loader, orch *worker.Orchestrator, log *zap.Logger) *WorkerAdapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkerAdapter{agg: agg, orch: orch, loader: loader, log: log}
}

func (a *WorkerAdapter) Supports(k wasmharness.Kind) bool {
	return k.IsWorker()
}

func (a *WorkerAdapter) Launch(ctx context.Context, t Target) (*Run, error) {
	var shared *memview.Shared
	if t.SharedMemory {
		shared = memview.NewShared(1)
	}

	sp := worker.Spawn{
		Kind:       t.Kind,
		RoutingKey: t.RoutingKey,
		Module:     t.Module,
		Memory:     shared,
		Run:        a.testProc(t),
	}

	c, err := a.orch.Spawn(ctx, sp)
	if err != nil {
		return nil, err
	}

	return &Run{
		ContextID: c.ID,
		Target:    t,
		Started:   time.Now(),
		wait: func(ctx context.Context) (wasmharness.Status, error) {
			return a.orch.Await(ctx, c)
		},
		terminate: func() error {
			return a.orch.Terminate(c)
		},
	}, nil
}

// testProc builds the worker body: initialize explicitly with the handles
// the spawn message carried, then run every test export.
func (a *WorkerAdapter) testProc(t Target) worker.Proc {
	return func(ctx context.Context, h *worker.Handle) error {
		inst, err := a.loader.Initialize(ctx, bootstrap.Options{
			Module:          h.Module(),
			Memory:          h.Memory(),
			ThreadStackSize: t.ThreadStackSize,
			Name:            t.Name,
		})
		if err != nil {
			return err
		}

		exports := inst.TestExports()
		if len(exports) == 0 {
			h.Log(wasmharness.StreamStderr, "module exports no tests")
		}

		for _, name := range exports {
			h.Log(wasmharness.StreamStdout, "test "+displayName(name)+" ...")
			if err := inst.RunTest(ctx, name); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				h.Log(wasmharness.StreamStderr, fmt.Sprintf("test %s failed: %v", displayName(name), err))
				h.Fail()
				continue
			}
			h.Log(wasmharness.StreamStdout, "test "+displayName(name)+" ok")
		}
		return nil
	}
}

func (a *WorkerAdapter) AwaitResult(ctx context.Context, r *Run, timeout time.Duration) (wasmharness.TestRunResult, error) {
	return awaitResult(ctx, a.agg, r, timeout)
}

func (a *WorkerAdapter) Terminate(r *Run) error {
	return r.terminate()
}

// displayName strips the export prefix for human-readable log lines.
func displayName(export string) string {
	const prefix = "__wbgt_"
	if len(export) > len(prefix) && export[:len(prefix)] == prefix {
		return export[len(prefix):]
	}
	return export
}
