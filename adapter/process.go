package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	wasmharness "github.com/wippyai/wasm-harness"
	"github.com/wippyai/wasm-harness/aggregator"
	"github.com/wippyai/wasm-harness/errors"
	"github.com/wippyai/wasm-harness/worker"
)

const processAckTimeout = 10 * time.Second

// stderrTail bounds how much raw runtime stderr is kept for crash messages.
const stderrTail = 64

// ProcessAdapter launches targets under a server-side runtime: Node with
// either module-loading convention, or Deno. The child speaks the envelope
// schema over stdout, one JSON line per message.
type ProcessAdapter struct {
	agg    *aggregator.Aggregator
	status *StatusSink
	log    *zap.Logger

	// NodePath and DenoPath override the runtime binaries; empty means
	// lookup on PATH.
	NodePath string
	DenoPath string
}

// NewProcessAdapter creates the adapter. status may be nil.
func NewProcessAdapter(agg *aggregator.Aggregator, status *StatusSink, log *zap.Logger) *ProcessAdapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProcessAdapter{agg: agg, status: status, log: log}
}

func (a *ProcessAdapter) Supports(k wasmharness.Kind) bool {
	switch k {
	case wasmharness.KindNodeCJS, wasmharness.KindNodeESM, wasmharness.KindDeno:
		return true
	}
	return false
}

type processRun struct {
	cmd      *exec.Cmd
	rt       *router
	exited   chan struct{}
	exitErr  error
	lastErr  []string
	errMu    sync.Mutex
	killOnce sync.Once
	tempFile string
}

func (a *ProcessAdapter) Launch(ctx context.Context, t Target) (*Run, error) {
	contextID := uuid.NewString()
	rt := newRouter(a.agg, contextID)

	tmp, err := os.CreateTemp("", "wasm-harness-*.wasm")
	if err != nil {
		return nil, errors.New(errors.PhaseAdapter, errors.KindInvalidInput).
			Detail("create temp module file").
			Cause(err).
			Build()
	}
	if _, err := tmp.Write(t.Module); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, errors.New(errors.PhaseAdapter, errors.KindInvalidInput).
			Detail("write temp module file").
			Cause(err).
			Build()
	}
	tmp.Close()

	bin, args, err := a.command(t)
	if err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}

	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(),
		"WASM_HARNESS_MODULE="+tmp.Name(),
		"WASM_HARNESS_CONTEXT="+contextID,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.Remove(tmp.Name())
		return nil, errors.New(errors.PhaseAdapter, errors.KindInstantiation).Cause(err).Build()
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		os.Remove(tmp.Name())
		return nil, errors.New(errors.PhaseAdapter, errors.KindInstantiation).Cause(err).Build()
	}

	pr := &processRun{
		cmd:      cmd,
		rt:       rt,
		exited:   make(chan struct{}),
		tempFile: tmp.Name(),
	}

	if err := cmd.Start(); err != nil {
		os.Remove(tmp.Name())
		return nil, errors.New(errors.PhaseAdapter, errors.KindInstantiation).
			Target(t.Name).
			Detail("start %s", bin).
			Cause(err).
			Build()
	}

	a.status.Line("Starting %s...", t.Kind)

	// Envelope stream: one JSON line per message on stdout.
	go func() {
		scan := bufio.NewScanner(stdout)
		scan.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scan.Scan() {
			var env worker.Envelope
			if err := json.Unmarshal(scan.Bytes(), &env); err != nil {
				a.log.Warn("undecodable line from child",
					zap.String("context", contextID),
					zap.String("line", scan.Text()))
				continue
			}
			if err := rt.route(env); err != nil {
				a.log.Warn("envelope rejected", zap.String("context", contextID), zap.Error(err))
			}
		}
	}()

	// Raw runtime stderr: not part of the protocol, kept as a tail for
	// crash diagnostics.
	go func() {
		scan := bufio.NewScanner(stderr)
		for scan.Scan() {
			pr.errMu.Lock()
			pr.lastErr = append(pr.lastErr, scan.Text())
			if len(pr.lastErr) > stderrTail {
				pr.lastErr = pr.lastErr[1:]
			}
			pr.errMu.Unlock()
		}
	}()

	go func() {
		pr.exitErr = cmd.Wait()
		os.Remove(pr.tempFile)
		close(pr.exited)
	}()

	// The child is running only once it acknowledged readiness.
	select {
	case <-rt.ready:
	case <-pr.exited:
		return nil, errors.New(errors.PhaseAdapter, errors.KindInstantiation).
			Target(t.Name).
			Detail("runtime exited before readiness: %s", pr.stderrText()).
			Build()
	case <-time.After(processAckTimeout):
		pr.kill()
		return nil, errors.New(errors.PhaseAdapter, errors.KindTimeout).
			Target(t.Name).
			Detail("no readiness acknowledgement within %s", processAckTimeout).
			Build()
	case <-ctx.Done():
		pr.kill()
		return nil, ctx.Err()
	}

	return &Run{
		ContextID: contextID,
		Target:    t,
		Started:   time.Now(),
		wait:      func(ctx context.Context) (wasmharness.Status, error) { return a.wait(ctx, pr) },
		terminate: func() error { pr.kill(); return nil },
	}, nil
}

func (a *ProcessAdapter) wait(ctx context.Context, pr *processRun) (wasmharness.Status, error) {
	select {
	case status := <-pr.rt.result:
		return status, nil
	case <-pr.exited:
		// One more chance for a result that raced the exit.
		select {
		case status := <-pr.rt.result:
			return status, nil
		default:
		}
		loss := errors.ChannelLoss(pr.rt.contextID)
		_ = a.agg.IngestPanic(wasmharness.PanicEvent{
			ContextID: pr.rt.contextID,
			Message:   loss.Error() + ": " + pr.stderrText(),
		})
		return wasmharness.StatusCrashed, nil
	case <-ctx.Done():
		pr.kill()
		return wasmharness.StatusCrashed, ctx.Err()
	}
}

func (a *ProcessAdapter) command(t Target) (string, []string, error) {
	switch t.Kind {
	case wasmharness.KindNodeCJS:
		return a.node(t), []string{"-e", runnerNodeCJS}, nil
	case wasmharness.KindNodeESM:
		return a.node(t), []string{"--input-type=module", "-e", runnerNodeESM}, nil
	case wasmharness.KindDeno:
		bin := t.RuntimePath
		if bin == "" {
			bin = a.DenoPath
		}
		if bin == "" {
			bin = "deno"
		}
		return bin, []string{"eval", "--allow-read", "--allow-env", runnerDeno}, nil
	}
	return "", nil, errors.New(errors.PhaseAdapter, errors.KindUnsupported).
		Target(t.Name).
		Detail("kind %s is not a process target", t.Kind).
		Build()
}

func (a *ProcessAdapter) node(t Target) string {
	if t.RuntimePath != "" {
		return t.RuntimePath
	}
	if a.NodePath != "" {
		return a.NodePath
	}
	return "node"
}

func (a *ProcessAdapter) AwaitResult(ctx context.Context, r *Run, timeout time.Duration) (wasmharness.TestRunResult, error) {
	return awaitResult(ctx, a.agg, r, timeout)
}

func (a *ProcessAdapter) Terminate(r *Run) error {
	return r.terminate()
}

func (pr *processRun) kill() {
	pr.killOnce.Do(func() {
		if pr.cmd.Process != nil {
			_ = pr.cmd.Process.Kill()
		}
	})
}

func (pr *processRun) stderrText() string {
	pr.errMu.Lock()
	defer pr.errMu.Unlock()
	return strings.Join(pr.lastErr, "\n")
}
