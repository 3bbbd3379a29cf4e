package adapter

import (
	"strings"
	"testing"

	wasmharness "github.com/wippyai/wasm-harness"
	"github.com/wippyai/wasm-harness/aggregator"
)

func TestProcessAdapterSupports(t *testing.T) {
	ad := NewProcessAdapter(aggregator.New(nil), nil, nil)
	for _, k := range []wasmharness.Kind{wasmharness.KindNodeCJS, wasmharness.KindNodeESM, wasmharness.KindDeno} {
		if !ad.Supports(k) {
			t.Errorf("process adapter must support %v", k)
		}
	}
	if ad.Supports(wasmharness.KindBrowser) || ad.Supports(wasmharness.KindDedicatedWorker) {
		t.Error("process adapter claims non-process kinds")
	}
}

func TestProcessCommand(t *testing.T) {
	ad := NewProcessAdapter(aggregator.New(nil), nil, nil)

	bin, args, err := ad.command(Target{Kind: wasmharness.KindNodeCJS})
	if err != nil {
		t.Fatalf("node-cjs: %v", err)
	}
	if bin != "node" || len(args) != 2 || args[0] != "-e" {
		t.Fatalf("node-cjs command = %s %v", bin, args)
	}

	bin, args, err = ad.command(Target{Kind: wasmharness.KindNodeESM})
	if err != nil {
		t.Fatalf("node-esm: %v", err)
	}
	if bin != "node" || args[0] != "--input-type=module" {
		t.Fatalf("node-esm command = %s %v", bin, args)
	}

	bin, args, err = ad.command(Target{Kind: wasmharness.KindDeno})
	if err != nil {
		t.Fatalf("deno: %v", err)
	}
	if bin != "deno" || args[0] != "eval" {
		t.Fatalf("deno command = %s %v", bin, args)
	}

	if _, _, err := ad.command(Target{Kind: wasmharness.KindBrowser}); err == nil {
		t.Fatal("browser accepted as a process target")
	}
}

func TestProcessCommandOverrides(t *testing.T) {
	ad := NewProcessAdapter(aggregator.New(nil), nil, nil)
	ad.NodePath = "/opt/node/bin/node"
	ad.DenoPath = "/opt/deno/bin/deno"

	if bin, _, _ := ad.command(Target{Kind: wasmharness.KindNodeCJS}); bin != "/opt/node/bin/node" {
		t.Fatalf("node override ignored: %s", bin)
	}
	if bin, _, _ := ad.command(Target{Kind: wasmharness.KindDeno}); bin != "/opt/deno/bin/deno" {
		t.Fatalf("deno override ignored: %s", bin)
	}

	// A per-target runtime path beats the adapter-level override.
	if bin, _, _ := ad.command(Target{Kind: wasmharness.KindNodeESM, RuntimePath: "/tmp/node"}); bin != "/tmp/node" {
		t.Fatalf("target override ignored: %s", bin)
	}
}

func TestRunnerScripts(t *testing.T) {
	// Every embedded runner wraps the shared protocol body.
	for name, script := range map[string]string{
		"node-cjs": runnerNodeCJS,
		"node-esm": runnerNodeESM,
		"deno":     runnerDeno,
	} {
		for _, want := range []string{"WASM_HARNESS_MODULE", "WASM_HARNESS_CONTEXT", "spawn-ack", "__wbgt_"} {
			if !strings.Contains(script, want) {
				t.Errorf("%s runner missing %q", name, want)
			}
		}
	}
}

func TestStatusSinkNilSafe(t *testing.T) {
	var s *StatusSink
	if s.Interactive() {
		t.Fatal("nil sink reported interactive")
	}
	s.Line("ignored %d", 1)

	sink := NewStatusSink(&strings.Builder{})
	if sink.Interactive() {
		t.Fatal("non-terminal writer reported interactive")
	}
}
