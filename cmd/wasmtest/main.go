package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	wasmharness "github.com/wippyai/wasm-harness"
	"github.com/wippyai/wasm-harness/adapter"
	"github.com/wippyai/wasm-harness/aggregator"
	"github.com/wippyai/wasm-harness/bootstrap"
	"github.com/wippyai/wasm-harness/scheduler"
	"github.com/wippyai/wasm-harness/worker"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to the test module")
		targetList  = flag.String("targets", "dedicated-worker", "Comma-separated host kinds")
		timeout     = flag.Duration("timeout", 0, "Per-target timeout (overrides WASM_HARNESS_TIMEOUT)")
		driverURL   = flag.String("driver-url", "", "Headless browser driver endpoint")
		sharedMem   = flag.Bool("shared-memory", false, "Run with a shared-memory thread configuration")
		stackSize   = flag.Uint64("stack-size", 0, "Thread stack size in bytes (positive multiple of 65536)")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: wasmtest -wasm <file.wasm> [-targets kind,kind] [-timeout 30s]")
		fmt.Fprintln(os.Stderr, "       wasmtest -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	code, err := run(*wasmFile, *targetList, *timeout, *driverURL, *sharedMem, *stackSize, *interactive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

func run(wasmFile, targetList string, timeout time.Duration, driverURL string, sharedMem bool, stackSize uint64, interactive bool) (int, error) {
	ctx := context.Background()

	module, err := os.ReadFile(wasmFile)
	if err != nil {
		return 0, fmt.Errorf("read module: %w", err)
	}

	if timeout <= 0 {
		timeout = timeoutFromEnv()
	}

	kinds, err := resolveKinds(targetList)
	if err != nil {
		return 0, err
	}

	log := zap.NewNop()
	if os.Getenv("WASM_HARNESS_DEBUG") != "" {
		log, err = zap.NewDevelopment()
		if err != nil {
			return 0, fmt.Errorf("create logger: %w", err)
		}
	}

	agg := aggregator.New(log)
	loader, err := bootstrap.New(ctx, &bootstrap.Config{
		EnableThreads: sharedMem,
		Logger:        log,
	})
	if err != nil {
		return 0, fmt.Errorf("create loader: %w", err)
	}
	defer loader.Close(ctx)

	orch := worker.New(agg, &worker.Config{Logger: log})
	defer orch.Shutdown()

	status := adapter.NewStatusSink(os.Stderr)

	schedCfg := scheduler.Config{Timeout: timeout, Logger: log}
	adapters := []adapter.Adapter{
		adapter.NewWorkerAdapter(agg, loader, orch, log),
		adapter.NewProcessAdapter(agg, status, log),
		adapter.NewHeadlessAdapter(agg, status, log),
	}

	var threadStack *uint32
	if stackSize > 0 {
		v := uint32(stackSize)
		threadStack = &v
	}

	targets := make([]adapter.Target, 0, len(kinds))
	for _, k := range kinds {
		targets = append(targets, adapter.Target{
			Kind:            k,
			Name:            k.String(),
			Module:          module,
			SharedMemory:    sharedMem,
			ThreadStackSize: threadStack,
			DriverURL:       driverURL,
		})
	}

	var report wasmharness.AggregateReport
	if interactive {
		report, err = runInteractive(ctx, schedCfg, adapters, targets)
		if err != nil {
			return 0, err
		}
	} else {
		report = scheduler.New(schedCfg, adapters...).Run(ctx, targets)
	}

	scheduler.NewReporter(os.Stdout).Render(report)
	return report.ExitCode(), nil
}

// timeoutFromEnv reads WASM_HARNESS_TIMEOUT, accepting a Go duration or a
// plain number of seconds.
func timeoutFromEnv() time.Duration {
	raw := os.Getenv("WASM_HARNESS_TIMEOUT")
	if raw == "" {
		return 0
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	var secs int
	if _, err := fmt.Sscanf(raw, "%d", &secs); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// resolveKinds parses the target list and applies the environment-level
// overrides: WASM_HARNESS_USE_DENO swaps server-side targets to the
// alternate runtime, and WASM_HARNESS_NODE_MODULE selects the Node
// module-loading convention.
func resolveKinds(targetList string) ([]wasmharness.Kind, error) {
	useDeno := os.Getenv("WASM_HARNESS_USE_DENO") != ""
	nodeModule := os.Getenv("WASM_HARNESS_NODE_MODULE")

	var kinds []wasmharness.Kind
	for _, name := range strings.Split(targetList, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		k, err := wasmharness.ParseKind(name)
		if err != nil {
			return nil, err
		}

		switch k {
		case wasmharness.KindNodeCJS, wasmharness.KindNodeESM:
			if useDeno {
				k = wasmharness.KindDeno
				break
			}
			switch nodeModule {
			case "esm":
				k = wasmharness.KindNodeESM
			case "cjs":
				k = wasmharness.KindNodeCJS
			}
		}
		kinds = append(kinds, k)
	}

	if len(kinds) == 0 {
		return nil, fmt.Errorf("no targets selected")
	}
	return kinds, nil
}
