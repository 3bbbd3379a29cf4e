package bootstrap

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	wasmharness "github.com/wippyai/wasm-harness"
	"github.com/wippyai/wasm-harness/errors"
	"github.com/wippyai/wasm-harness/internal/minwasm"
	"github.com/wippyai/wasm-harness/memview"
)

func newTestLoader(t *testing.T, cfg *Config) *Loader {
	t.Helper()
	ctx := context.Background()
	l, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close(ctx) })
	return l
}

func TestInitializeValidatesStackSize(t *testing.T) {
	l := newTestLoader(t, nil)
	module := minwasm.Empty()

	for _, size := range []uint32{0, 1000, memview.PageSize + 1} {
		size := size
		_, err := l.Initialize(context.Background(), Options{Module: module, ThreadStackSize: &size})
		if !stderrors.Is(err, errors.New(errors.PhaseConfig, errors.KindInvalidStackSize).Build()) {
			t.Fatalf("stack size %d: got %v, want invalid_stack_size", size, err)
		}
	}

	// Validation happens before any side effect: the pair must still be
	// uninitialized.
	if got := l.State(Options{Module: module}); got != StateUninitialized {
		t.Fatalf("state after rejected options = %v, want uninitialized", got)
	}

	valid := uint32(2 * memview.PageSize)
	if _, err := l.Initialize(context.Background(), Options{Module: module, ThreadStackSize: &valid}); err != nil {
		t.Fatalf("valid stack size rejected: %v", err)
	}
}

func TestInitializeRejectsMissingSource(t *testing.T) {
	l := newTestLoader(t, nil)
	_, err := l.Initialize(context.Background(), Options{})
	if !stderrors.Is(err, errors.New(errors.PhaseConfig, errors.KindInvalidInput).Build()) {
		t.Fatalf("got %v, want config error", err)
	}
}

func TestInitializeIdempotent(t *testing.T) {
	l := newTestLoader(t, nil)
	opts := Options{Module: minwasm.Module{Exports: []minwasm.Export{{Name: "_start"}}}.Bytes(), Name: "idem"}

	i1, err := l.Initialize(context.Background(), opts)
	if err != nil {
		t.Fatalf("first Initialize: %v", err)
	}
	i2, err := l.Initialize(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if i1 != i2 {
		t.Fatal("second Initialize produced a different instance")
	}
	if got := l.State(opts); got != StateReady {
		t.Fatalf("state = %v, want ready", got)
	}
}

func TestInitializeConcurrent(t *testing.T) {
	l := newTestLoader(t, nil)
	opts := Options{Module: minwasm.Empty(), Name: "racer"}

	const callers = 8
	instances := make([]*Instance, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst, err := l.Initialize(context.Background(), opts)
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			instances[i] = inst
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if instances[i] != instances[0] {
			t.Fatalf("caller %d got a different instance", i)
		}
	}
}

func TestInitializeFailureRecorded(t *testing.T) {
	l := newTestLoader(t, nil)
	opts := Options{Module: []byte{0x00, 0x01, 0x02, 0x03}, Name: "broken"}

	_, err1 := l.Initialize(context.Background(), opts)
	if !stderrors.Is(err1, errors.New(errors.PhaseBootstrap, errors.KindInstantiation).Build()) {
		t.Fatalf("got %v, want instantiation error", err1)
	}
	if got := l.State(opts); got != StateFailed {
		t.Fatalf("state = %v, want failed", got)
	}

	// No automatic retry; the recorded outcome is returned as-is.
	_, err2 := l.Initialize(context.Background(), opts)
	if err2 != err1 {
		t.Fatalf("second call returned %v, want the recorded %v", err2, err1)
	}
}

func TestStartTrapFailsPair(t *testing.T) {
	l := newTestLoader(t, nil)
	opts := Options{Module: minwasm.Module{Exports: []minwasm.Export{{Name: "_start", Trap: true}}}.Bytes()}

	_, err := l.Initialize(context.Background(), opts)
	if !stderrors.Is(err, errors.New(errors.PhaseBootstrap, errors.KindStartTrap).Build()) {
		t.Fatalf("got %v, want start_trap error", err)
	}
	if got := l.State(opts); got != StateFailed {
		t.Fatalf("state = %v, want failed", got)
	}
}

func TestDistinctMemoryDistinctInstance(t *testing.T) {
	l := newTestLoader(t, nil)
	module := minwasm.Module{Memory: true}.Bytes()

	plain, err := l.Initialize(context.Background(), Options{Module: module})
	if err != nil {
		t.Fatalf("plain Initialize: %v", err)
	}
	shared, err := l.Initialize(context.Background(), Options{Module: module, Memory: memview.NewShared(1)})
	if err != nil {
		t.Fatalf("shared Initialize: %v", err)
	}
	if plain == shared {
		t.Fatal("same module with a different memory reused the instance")
	}
}

func TestSharedMemoryBinding(t *testing.T) {
	l := newTestLoader(t, nil)
	mem := memview.NewShared(1)
	opts := Options{Module: minwasm.Module{Memory: true}.Bytes(), Memory: mem, Name: "bound"}

	inst, err := l.Initialize(context.Background(), opts)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if inst.Memory() == nil {
		t.Fatal("instance with exported memory has no view cache")
	}
	if inst.SharedMemory() != mem {
		t.Fatal("shared handle not retained")
	}

	v1 := inst.Memory().View(memview.U8)
	if v1.ByteLen != memview.PageSize {
		t.Fatalf("initial ByteLen = %d, want %d", v1.ByteLen, memview.PageSize)
	}

	// Growth through the handle goes to the instance memory, and the cache
	// sees the new length on the next access.
	if _, err := mem.Grow(1); err != nil {
		t.Fatalf("Grow: %v", err)
	}
	v2 := inst.Memory().View(memview.U8)
	if v2.ByteLen != 2*memview.PageSize {
		t.Fatalf("ByteLen after growth = %d, want %d", v2.ByteLen, 2*memview.PageSize)
	}
}

func TestAutoInitialize(t *testing.T) {
	l := newTestLoader(t, nil)
	opts := Options{Module: minwasm.Empty(), Name: "auto"}

	// Inside a spawned worker context auto-initialization must not run.
	inst, initialized, err := l.AutoInitialize(wasmharness.MarkWorker(context.Background()), opts)
	if err != nil || initialized || inst != nil {
		t.Fatalf("worker context: inst=%v initialized=%v err=%v", inst, initialized, err)
	}
	if got := l.State(opts); got != StateUninitialized {
		t.Fatalf("state after worker no-op = %v, want uninitialized", got)
	}

	inst, initialized, err = l.AutoInitialize(context.Background(), opts)
	if err != nil || !initialized || inst == nil {
		t.Fatalf("main context: inst=%v initialized=%v err=%v", inst, initialized, err)
	}
}

func TestTestExports(t *testing.T) {
	l := newTestLoader(t, nil)
	opts := Options{Module: minwasm.Module{Exports: []minwasm.Export{
		{Name: "__wbgt_beta"},
		{Name: "helper"},
		{Name: "__wbgt_alpha"},
	}}.Bytes()}

	inst, err := l.Initialize(context.Background(), opts)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	got := inst.TestExports()
	want := []string{"__wbgt_alpha", "__wbgt_beta"}
	if len(got) != len(want) {
		t.Fatalf("TestExports = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("TestExports = %v, want %v", got, want)
		}
	}

	if err := inst.RunTest(context.Background(), "__wbgt_alpha"); err != nil {
		t.Fatalf("RunTest: %v", err)
	}
	if err := inst.RunTest(context.Background(), "__wbgt_missing"); !stderrors.Is(err, errors.New(errors.PhaseBootstrap, errors.KindNotFound).Build()) {
		t.Fatalf("missing export: got %v, want not_found", err)
	}
}

func TestRunTestTrap(t *testing.T) {
	l := newTestLoader(t, nil)
	opts := Options{Module: minwasm.Module{Exports: []minwasm.Export{{Name: "__wbgt_bad", Trap: true}}}.Bytes()}

	inst, err := l.Initialize(context.Background(), opts)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := inst.RunTest(context.Background(), "__wbgt_bad"); err == nil {
		t.Fatal("trapping test export returned nil")
	}
}
