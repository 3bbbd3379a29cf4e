package aggregator

import (
	"sync"

	"go.uber.org/zap"

	wasmharness "github.com/wippyai/wasm-harness"
	"github.com/wippyai/wasm-harness/errors"
)

// maxParked caps per-context reorder buffering so a context that skips
// sequence numbers cannot grow memory without bound.
const maxParked = 4096

type contextState struct {
	nextSeq   uint64
	parked    map[uint64]wasmharness.LogEvent
	finalized bool
}

// Aggregator merges events from all tracked contexts into one timeline.
type Aggregator struct {
	log *zap.Logger

	mu       sync.Mutex
	contexts map[string]*contextState
	timeline []wasmharness.Event
	arrival  uint64
}

// New creates an aggregator. A nil logger disables logging.
func New(log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		log:      log,
		contexts: make(map[string]*contextState),
	}
}

// Track registers a context id so its events map to a tracked result.
// Tracking an already tracked id is a no-op.
func (a *Aggregator) Track(contextID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.contexts[contextID]; !ok {
		a.contexts[contextID] = &contextState{nextSeq: 1}
	}
}

// IngestBatch merges one flushed batch. Events for untracked context ids
// are rejected; events for finalized (crashed) contexts are dropped.
func (a *Aggregator) IngestBatch(batch []wasmharness.LogEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, ev := range batch {
		cs, ok := a.contexts[ev.ContextID]
		if !ok {
			return errors.New(errors.PhaseAggregate, errors.KindNotFound).
				Context(ev.ContextID).
				Detail("event for untracked context").
				Build()
		}
		if cs.finalized {
			continue
		}
		if err := a.admit(cs, ev); err != nil {
			return err
		}
	}
	return nil
}

// admit places one event, holding back out-of-order arrivals until the gap
// closes so per-context order is never violated in the timeline.
func (a *Aggregator) admit(cs *contextState, ev wasmharness.LogEvent) error {
	switch {
	case ev.Seq == cs.nextSeq:
		a.append(wasmharness.Event{Log: &ev})
		cs.nextSeq++
	case ev.Seq > cs.nextSeq:
		if len(cs.parked) >= maxParked {
			return errors.New(errors.PhaseAggregate, errors.KindInvalidInput).
				Context(ev.ContextID).
				Detail("reorder buffer overflow at seq %d", ev.Seq).
				Build()
		}
		if cs.parked == nil {
			cs.parked = make(map[uint64]wasmharness.LogEvent)
		}
		cs.parked[ev.Seq] = ev
	default:
		// Duplicate delivery; first arrival won.
		a.log.Debug("dropping duplicate event",
			zap.String("context", ev.ContextID),
			zap.Uint64("seq", ev.Seq))
		return nil
	}

	for {
		next, ok := cs.parked[cs.nextSeq]
		if !ok {
			return nil
		}
		delete(cs.parked, cs.nextSeq)
		a.append(wasmharness.Event{Log: &next})
		cs.nextSeq++
	}
}

// IngestPanic records a panic and finalizes the context: no further events
// for the id are admitted.
func (a *Aggregator) IngestPanic(p wasmharness.PanicEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cs, ok := a.contexts[p.ContextID]
	if !ok {
		return errors.New(errors.PhaseAggregate, errors.KindNotFound).
			Context(p.ContextID).
			Detail("panic for untracked context").
			Build()
	}
	if cs.finalized {
		return nil
	}
	cs.finalized = true
	a.append(wasmharness.Event{Panic: &p})
	return nil
}

// Crashed reports whether the context has been finalized by a panic.
func (a *Aggregator) Crashed(contextID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	cs, ok := a.contexts[contextID]
	return ok && cs.finalized
}

func (a *Aggregator) append(ev wasmharness.Event) {
	a.arrival++
	ev.Arrival = a.arrival
	a.timeline = append(a.timeline, ev)
}

// Drain returns the merged timeline accumulated so far and resets it.
// Context tracking state survives a drain.
func (a *Aggregator) Drain() []wasmharness.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.timeline
	a.timeline = nil
	return out
}

// DrainContext returns the drained events belonging to one context, in
// per-context order, leaving other contexts' events in the timeline.
func (a *Aggregator) DrainContext(contextID string) []wasmharness.Event {
	a.mu.Lock()
	defer a.mu.Unlock()

	var mine, rest []wasmharness.Event
	for _, ev := range a.timeline {
		if ev.ContextID() == contextID {
			mine = append(mine, ev)
		} else {
			rest = append(rest, ev)
		}
	}
	a.timeline = rest
	return mine
}
