package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	wasmharness "github.com/wippyai/wasm-harness"
	"github.com/wippyai/wasm-harness/aggregator"
	"github.com/wippyai/wasm-harness/errors"
)

const (
	defaultAckTimeout = 5 * time.Second
	defaultKillGrace  = 2 * time.Second
)

// Config holds orchestrator tuning. Zero values select defaults.
type Config struct {
	// AckTimeout bounds the wait for a spawned context's readiness
	// acknowledgement.
	AckTimeout time.Duration
	// KillGrace bounds how long Terminate waits for an orderly stop before
	// taking the forced-kill path.
	KillGrace time.Duration
	// Batch tunes per-context log batching.
	Batch aggregator.BatcherConfig

	Logger *zap.Logger
}

// Orchestrator spawns execution contexts, supervises them, and routes their
// envelopes into the aggregator.
type Orchestrator struct {
	agg        *aggregator.Aggregator
	log        *zap.Logger
	ackTimeout time.Duration
	killGrace  time.Duration
	batchCfg   aggregator.BatcherConfig

	mu       sync.Mutex
	live     map[string]*Context
	reusable map[reuseKey]*host
}

// New creates an orchestrator feeding agg.
func New(agg *aggregator.Aggregator, cfg *Config) *Orchestrator {
	o := &Orchestrator{
		agg:        agg,
		log:        zap.NewNop(),
		ackTimeout: defaultAckTimeout,
		killGrace:  defaultKillGrace,
		live:       make(map[string]*Context),
		reusable:   make(map[reuseKey]*host),
	}
	if cfg != nil {
		if cfg.AckTimeout > 0 {
			o.ackTimeout = cfg.AckTimeout
		}
		if cfg.KillGrace > 0 {
			o.killGrace = cfg.KillGrace
		}
		if cfg.Logger != nil {
			o.log = cfg.Logger
		}
		o.batchCfg = cfg.Batch
	}
	return o
}

// Spawn creates a logical run. For shared and service worker kinds with a
// routing key, the physical context is reused and the run is matched to it
// by that key; other kinds get a fresh context. Spawn returns only after
// the context acknowledged readiness.
func (o *Orchestrator) Spawn(ctx context.Context, sp Spawn) (*Context, error) {
	if sp.Run == nil {
		return nil, errors.Config("spawn without a body")
	}

	c := &Context{
		ID:         uuid.NewString(),
		Kind:       sp.Kind,
		RoutingKey: sp.RoutingKey,
		result:     make(chan Envelope, 1),
	}
	c.host = o.hostFor(sp, c)

	o.mu.Lock()
	o.live[c.ID] = c
	o.mu.Unlock()
	o.agg.Track(c.ID)

	select {
	case <-c.host.ready:
	case <-time.After(o.ackTimeout):
		o.forget(c)
		return nil, errors.New(errors.PhaseSpawn, errors.KindTimeout).
			Context(c.ID).
			Detail("no readiness acknowledgement within %s", o.ackTimeout).
			Build()
	case <-ctx.Done():
		o.forget(c)
		return nil, ctx.Err()
	}

	j := &jobReq{c: c, sp: sp, goCtx: wasmharness.MarkWorker(ctx)}
	select {
	case c.host.jobs <- j:
	case <-c.host.done:
		o.forget(c)
		return nil, errors.ChannelLoss(c.ID)
	case <-ctx.Done():
		o.forget(c)
		return nil, ctx.Err()
	}

	o.log.Debug("context spawned",
		zap.String("context", c.ID),
		zap.Stringer("kind", sp.Kind),
		zap.String("routing_key", sp.RoutingKey))

	return c, nil
}

func (o *Orchestrator) hostFor(sp Spawn, c *Context) *host {
	key := reuseKey{kind: sp.Kind, routing: sp.RoutingKey}

	if sp.Kind.Reusable() && sp.RoutingKey != "" {
		o.mu.Lock()
		defer o.mu.Unlock()

		h := o.reusable[key]
		if h != nil {
			select {
			case <-h.done:
				h = nil // previous physical context is gone
			default:
			}
		}
		if h == nil {
			h = newHost(key)
			o.reusable[key] = h
			go h.run(o)
		}
		return h
	}

	h := newHost(key)
	go h.run(o)
	return h
}

func (o *Orchestrator) forget(c *Context) {
	o.mu.Lock()
	delete(o.live, c.ID)
	o.mu.Unlock()
}

// execute runs one job on the host goroutine, converting Go panics and
// returned errors into panic envelopes.
func (o *Orchestrator) execute(j *jobReq) {
	batcher := aggregator.NewBatcher(j.c.ID, o.batchCfg, func(batch []wasmharness.LogEvent) {
		env := Envelope{Kind: MsgLog, ContextID: j.c.ID, Events: batch}
		if err := o.Ingest(env); err != nil {
			o.log.Warn("log batch rejected", zap.String("context", j.c.ID), zap.Error(err))
		}
	})

	h := &Handle{c: j.c, orch: o, batcher: batcher, sp: j.sp}

	stack, err := runBody(j.goCtx, j.sp.Run, h)
	batcher.Close()

	var final Envelope
	switch {
	case err != nil:
		final = Envelope{
			Kind:      MsgPanic,
			ContextID: j.c.ID,
			Panic: &wasmharness.PanicEvent{
				ContextID: j.c.ID,
				Message:   err.Error(),
				Stack:     stack,
			},
		}
	case h.failed.Load():
		final = Envelope{Kind: MsgResult, ContextID: j.c.ID, Status: wasmharness.StatusFailed}
	default:
		final = Envelope{Kind: MsgResult, ContextID: j.c.ID, Status: wasmharness.StatusPassed}
	}

	if ierr := o.Ingest(final); ierr != nil {
		o.log.Warn("final envelope rejected", zap.String("context", j.c.ID), zap.Error(ierr))
	}
}

func runBody(ctx context.Context, p Proc, h *Handle) (stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("uncaught panic: %v", r)
			stack = string(debug.Stack())
		}
	}()
	return "", p(ctx, h)
}

// Ingest validates one envelope at the channel boundary and routes it.
// Remote adapters push decoded wire envelopes through the same path the
// in-process contexts use.
func (o *Orchestrator) Ingest(env Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	switch env.Kind {
	case MsgSpawnAck:
		return nil
	case MsgLog:
		return o.agg.IngestBatch(env.Events)
	case MsgPanic:
		if err := o.agg.IngestPanic(*env.Panic); err != nil {
			return err
		}
		// A panic is the context's final message: the run is Crashed now,
		// not when the scheduler gets around to it.
		o.deliver(env.ContextID, Envelope{
			Kind:      MsgResult,
			ContextID: env.ContextID,
			Status:    wasmharness.StatusCrashed,
		})
		return nil
	case MsgResult:
		o.deliver(env.ContextID, env)
		return nil
	}
	return nil
}

func (o *Orchestrator) deliver(contextID string, env Envelope) {
	o.mu.Lock()
	c := o.live[contextID]
	o.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case c.result <- env:
	default:
		// First final message wins.
	}
}

// Await blocks until the context's final message, the loss of its channel,
// or ctx cancellation. Channel loss is never silent: a synthetic panic is
// recorded and the run reports Crashed.
func (o *Orchestrator) Await(ctx context.Context, c *Context) (wasmharness.Status, error) {
	select {
	case env := <-c.result:
		o.forget(c)
		return env.Status, nil
	case <-c.host.done:
		o.forget(c)
		loss := errors.ChannelLoss(c.ID)
		_ = o.agg.IngestPanic(wasmharness.PanicEvent{
			ContextID: c.ID,
			Message:   loss.Error(),
		})
		return wasmharness.StatusCrashed, nil
	case <-ctx.Done():
		return wasmharness.StatusCrashed, ctx.Err()
	}
}

// Terminate stops the context's physical host. Terminating an already
// finished or already terminated context is a no-op, and an unresponsive
// context is abandoned after the kill grace rather than blocking forever.
func (o *Orchestrator) Terminate(c *Context) error {
	if !c.term.CompareAndSwap(false, true) {
		return nil
	}

	c.host.halt()

	select {
	case <-c.host.done:
	case <-time.After(o.killGrace):
		// Forced kill: the goroutine is abandoned and the loss recorded.
		o.log.Warn("context unresponsive, abandoning", zap.String("context", c.ID))
		_ = o.agg.IngestPanic(wasmharness.PanicEvent{
			ContextID: c.ID,
			Message:   errors.ChannelLoss(c.ID).Error(),
		})
	}

	o.mu.Lock()
	delete(o.live, c.ID)
	if c.host.key.routing != "" {
		if o.reusable[c.host.key] == c.host {
			delete(o.reusable, c.host.key)
		}
	}
	o.mu.Unlock()
	return nil
}

// Shutdown stops every live physical context.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	hosts := make(map[*host]struct{})
	for _, c := range o.live {
		hosts[c.host] = struct{}{}
	}
	for _, h := range o.reusable {
		hosts[h] = struct{}{}
	}
	o.live = make(map[string]*Context)
	o.reusable = make(map[reuseKey]*host)
	o.mu.Unlock()

	for h := range hosts {
		h.halt()
	}
}
