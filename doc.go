// Package wasmharness runs a compiled WebAssembly module's exported unit
// tests across heterogeneous host environments and merges the outcome into
// one aggregated report.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasmharness/        Root package with host kinds, statuses, events and results
//	├── bootstrap/      Instantiation state machine over wazero
//	├── memview/        Growth-safe typed views over linear memory
//	├── worker/         Execution-context spawning and supervision
//	├── aggregator/     Batched log/panic ingestion and ordered merge
//	├── adapter/        One host adapter per host kind
//	├── scheduler/      Target scheduling, timeouts and reporting
//	├── errors/         Structured error types
//	└── cmd/wasmtest/   CLI entry point
//
// # Quick Start
//
// Run a module's tests against the in-process worker host:
//
//	agg := aggregator.New(nil)
//	loader, _ := bootstrap.New(ctx, nil)
//	orch := worker.New(agg, nil)
//	sched := scheduler.New(scheduler.Config{Timeout: 20 * time.Second},
//	    adapter.NewWorkerAdapter(agg, loader, orch, nil))
//	report := sched.Run(ctx, []adapter.Target{{
//	    Kind:   wasmharness.KindDedicatedWorker,
//	    Name:   "unit",
//	    Module: wasmBytes,
//	}})
//	os.Exit(report.ExitCode())
//
// # Host Kinds
//
// Targets execute under one of seven host kinds: a process-level runtime with
// two module-loading conventions (Node CJS and ESM), a secondary server-side
// runtime (Deno), the browser main thread behind a headless driver, and
// dedicated, shared and service workers.
//
// # Ordering Model
//
// Log order within one execution context is absolute; order across contexts is
// arrival-based only. Both views are reconstructible from the merged timeline.
package wasmharness
