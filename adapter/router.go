package adapter

import (
	"sync"

	wasmharness "github.com/wippyai/wasm-harness"
	"github.com/wippyai/wasm-harness/aggregator"
	"github.com/wippyai/wasm-harness/worker"
)

// router is the receiving end of a remote context's channel: it validates
// decoded envelopes and routes them the same way the in-process
// orchestrator does. One router per launched run.
type router struct {
	agg       *aggregator.Aggregator
	contextID string

	readyOnce sync.Once
	ready     chan struct{}
	result    chan wasmharness.Status
}

func newRouter(agg *aggregator.Aggregator, contextID string) *router {
	agg.Track(contextID)
	return &router{
		agg:       agg,
		contextID: contextID,
		ready:     make(chan struct{}),
		result:    make(chan wasmharness.Status, 1),
	}
}

func (r *router) route(env worker.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	switch env.Kind {
	case worker.MsgSpawnAck:
		r.readyOnce.Do(func() { close(r.ready) })
		return nil
	case worker.MsgLog:
		return r.agg.IngestBatch(env.Events)
	case worker.MsgPanic:
		if err := r.agg.IngestPanic(*env.Panic); err != nil {
			return err
		}
		r.deliver(wasmharness.StatusCrashed)
		return nil
	case worker.MsgResult:
		r.deliver(env.Status)
		return nil
	}
	return nil
}

func (r *router) deliver(status wasmharness.Status) {
	select {
	case r.result <- status:
	default:
	}
}
