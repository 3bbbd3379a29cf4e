package aggregator

import (
	"fmt"
	"testing"

	wasmharness "github.com/wippyai/wasm-harness"
)

func logEvent(contextID string, seq uint64) wasmharness.LogEvent {
	return wasmharness.LogEvent{
		ContextID: contextID,
		Stream:    wasmharness.StreamStdout,
		Seq:       seq,
		Payload:   fmt.Sprintf("%s line %d", contextID, seq),
	}
}

func seqsFor(events []wasmharness.Event, contextID string) []uint64 {
	var seqs []uint64
	for _, ev := range events {
		if ev.Log != nil && ev.Log.ContextID == contextID {
			seqs = append(seqs, ev.Log.Seq)
		}
	}
	return seqs
}

func TestIngestUntrackedRejected(t *testing.T) {
	a := New(nil)
	if err := a.IngestBatch([]wasmharness.LogEvent{logEvent("ghost", 1)}); err == nil {
		t.Fatal("untracked context accepted")
	}
	if err := a.IngestPanic(wasmharness.PanicEvent{ContextID: "ghost"}); err == nil {
		t.Fatal("untracked panic accepted")
	}
}

func TestPerContextOrderUnderInterleaving(t *testing.T) {
	a := New(nil)
	a.Track("a")
	a.Track("b")

	// Delivery interleaves the contexts and arrives out of order within "a":
	// seq 2 shows up before seq 1.
	batches := [][]wasmharness.LogEvent{
		{logEvent("a", 2)},
		{logEvent("b", 1)},
		{logEvent("a", 1), logEvent("a", 3)},
		{logEvent("b", 2)},
	}
	for _, b := range batches {
		if err := a.IngestBatch(b); err != nil {
			t.Fatalf("IngestBatch: %v", err)
		}
	}

	events := a.Drain()
	wantA := []uint64{1, 2, 3}
	wantB := []uint64{1, 2}
	if got := seqsFor(events, "a"); !equalSeqs(got, wantA) {
		t.Fatalf("context a order = %v, want %v", got, wantA)
	}
	if got := seqsFor(events, "b"); !equalSeqs(got, wantB) {
		t.Fatalf("context b order = %v, want %v", got, wantB)
	}

	// Arrival order is strictly increasing across the merged timeline.
	for i := 1; i < len(events); i++ {
		if events[i].Arrival <= events[i-1].Arrival {
			t.Fatalf("arrival not increasing at %d: %d then %d", i, events[i-1].Arrival, events[i].Arrival)
		}
	}
}

func TestDuplicateDelivery(t *testing.T) {
	a := New(nil)
	a.Track("a")

	for i := 0; i < 2; i++ {
		if err := a.IngestBatch([]wasmharness.LogEvent{logEvent("a", 1)}); err != nil {
			t.Fatalf("IngestBatch: %v", err)
		}
	}

	if events := a.Drain(); len(events) != 1 {
		t.Fatalf("duplicate delivery produced %d events, want 1", len(events))
	}
}

func TestPanicFinalizesContext(t *testing.T) {
	a := New(nil)
	a.Track("a")

	if err := a.IngestBatch([]wasmharness.LogEvent{logEvent("a", 1)}); err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if err := a.IngestPanic(wasmharness.PanicEvent{ContextID: "a", Message: "boom"}); err != nil {
		t.Fatalf("IngestPanic: %v", err)
	}
	if !a.Crashed("a") {
		t.Fatal("context not reported crashed")
	}

	// Late log events and a second panic are dropped, not errors.
	if err := a.IngestBatch([]wasmharness.LogEvent{logEvent("a", 2)}); err != nil {
		t.Fatalf("post-panic batch: %v", err)
	}
	if err := a.IngestPanic(wasmharness.PanicEvent{ContextID: "a", Message: "again"}); err != nil {
		t.Fatalf("second panic: %v", err)
	}

	events := a.Drain()
	if len(events) != 2 {
		t.Fatalf("timeline has %d events, want log + panic", len(events))
	}
	if events[1].Panic == nil || events[1].Panic.Message != "boom" {
		t.Fatalf("final event = %+v, want the first panic", events[1])
	}
}

func TestDrainContext(t *testing.T) {
	a := New(nil)
	a.Track("a")
	a.Track("b")

	_ = a.IngestBatch([]wasmharness.LogEvent{logEvent("a", 1), logEvent("b", 1), logEvent("a", 2)})

	mine := a.DrainContext("a")
	if got := seqsFor(mine, "a"); !equalSeqs(got, []uint64{1, 2}) {
		t.Fatalf("drained a = %v", got)
	}

	rest := a.Drain()
	if got := seqsFor(rest, "b"); !equalSeqs(got, []uint64{1}) {
		t.Fatalf("remaining b = %v", got)
	}
	if again := a.DrainContext("a"); len(again) != 0 {
		t.Fatalf("second drain returned %d events", len(again))
	}
}

func TestReorderBufferBounded(t *testing.T) {
	a := New(nil)
	a.Track("a")

	// Seq 1 never arrives, so everything parks until the cap trips.
	for seq := uint64(2); seq < maxParked+2; seq++ {
		if err := a.IngestBatch([]wasmharness.LogEvent{logEvent("a", seq)}); err != nil {
			t.Fatalf("seq %d rejected early: %v", seq, err)
		}
	}
	if err := a.IngestBatch([]wasmharness.LogEvent{logEvent("a", maxParked + 2)}); err == nil {
		t.Fatal("reorder buffer grew past its bound")
	}
}

func equalSeqs(a, b []uint64) bool {
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
