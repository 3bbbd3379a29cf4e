package scheduler

import (
	"bytes"
	"strings"
	"testing"
	"time"

	wasmharness "github.com/wippyai/wasm-harness"
)

func TestReporterPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	report := wasmharness.AggregateReport{Results: []wasmharness.TestRunResult{
		{
			Target:   "web",
			Kind:     wasmharness.KindBrowser,
			Status:   wasmharness.StatusPassed,
			Duration: 120 * time.Millisecond,
			Events: []wasmharness.Event{
				{Log: &wasmharness.LogEvent{ContextID: "c1", Stream: wasmharness.StreamStdout, Seq: 1, Payload: "hello"}},
			},
		},
		{
			Target:   "cli",
			Kind:     wasmharness.KindNodeCJS,
			Status:   wasmharness.StatusCrashed,
			Duration: 80 * time.Millisecond,
			Events: []wasmharness.Event{
				{Panic: &wasmharness.PanicEvent{ContextID: "c2", Message: "boom"}},
			},
		},
	}}
	r.Render(report)

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")

	// Targets come out sorted by name, one result line each, followed by
	// their events, then the overall line.
	if !strings.HasPrefix(lines[0], "result target=cli kind=node-cjs status=crashed") {
		t.Fatalf("line 0 = %q", lines[0])
	}
	if !strings.Contains(out, `panic target=cli message="boom"`) {
		t.Fatalf("missing panic line in %q", out)
	}
	if !strings.Contains(out, "result target=web kind=browser status=passed") {
		t.Fatalf("missing web result in %q", out)
	}
	if !strings.Contains(out, `log target=web stream=stdout seq=1 payload="hello"`) {
		t.Fatalf("missing log line in %q", out)
	}
	if last := lines[len(lines)-1]; last != "overall status=crashed targets=2 exit=3" {
		t.Fatalf("overall line = %q", last)
	}
}

func TestReporterEmptyReport(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(&buf).Render(wasmharness.AggregateReport{})

	if got := strings.TrimSpace(buf.String()); got != "overall status=passed targets=0 exit=0" {
		t.Fatalf("empty report output = %q", got)
	}
}
