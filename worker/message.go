package worker

import (
	wasmharness "github.com/wippyai/wasm-harness"
	"github.com/wippyai/wasm-harness/errors"
)

// MsgKind tags an envelope. The set is closed; anything else is rejected at
// the channel boundary.
type MsgKind string

const (
	MsgSpawnAck MsgKind = "spawn-ack"
	MsgLog      MsgKind = "log"
	MsgPanic    MsgKind = "panic"
	MsgResult   MsgKind = "result"
)

// Envelope is the one message shape exchanged with execution contexts,
// in-process or over a wire.
type Envelope struct {
	Kind      MsgKind                 `json:"kind"`
	ContextID string                  `json:"context_id"`
	Events    []wasmharness.LogEvent  `json:"events,omitempty"`
	Panic     *wasmharness.PanicEvent `json:"panic,omitempty"`
	Status    wasmharness.Status      `json:"status,omitempty"`
}

// Validate checks the envelope against the closed schema.
func (e Envelope) Validate() error {
	if e.ContextID == "" {
		return errors.New(errors.PhaseSpawn, errors.KindInvalidInput).
			Detail("envelope without context id").
			Build()
	}

	switch e.Kind {
	case MsgSpawnAck:
		return nil
	case MsgLog:
		if len(e.Events) == 0 {
			return errors.New(errors.PhaseSpawn, errors.KindInvalidInput).
				Context(e.ContextID).
				Detail("log envelope without events").
				Build()
		}
		return nil
	case MsgPanic:
		if e.Panic == nil {
			return errors.New(errors.PhaseSpawn, errors.KindInvalidInput).
				Context(e.ContextID).
				Detail("panic envelope without payload").
				Build()
		}
		return nil
	case MsgResult:
		if e.Status < wasmharness.StatusPassed || e.Status > wasmharness.StatusCrashed {
			return errors.New(errors.PhaseSpawn, errors.KindInvalidInput).
				Context(e.ContextID).
				Detail("result envelope with status %d", e.Status).
				Build()
		}
		return nil
	}

	return errors.New(errors.PhaseSpawn, errors.KindInvalidInput).
		Context(e.ContextID).
		Detail("unknown message kind %q", string(e.Kind)).
		Build()
}
