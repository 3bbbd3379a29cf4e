package wasmharness

import "time"

// Stream classifies where a log line was emitted inside its context.
type Stream int

const (
	StreamStdout Stream = iota
	StreamStderr
	StreamLevel // console level methods (debug/info/warn/error)
)

func (s Stream) String() string {
	switch s {
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	case StreamLevel:
		return "level"
	}
	return "unknown"
}

// LogEvent is one console-style line emitted by an execution context.
// Seq is assigned at emission time inside the context and is strictly
// increasing per context; it reconstructs per-context order even when
// delivery across a channel is not ordered.
type LogEvent struct {
	ContextID string    `json:"context_id"`
	Stream    Stream    `json:"stream"`
	Seq       uint64    `json:"seq"`
	Payload   string    `json:"payload"`
	Time      time.Time `json:"time"`
}

// PanicEvent reports an uncaught error in a context. It terminates the
// owning context's run as Crashed rather than Failed.
type PanicEvent struct {
	ContextID string `json:"context_id"`
	Message   string `json:"message"`
	Stack     string `json:"stack,omitempty"`
}

// Event is one entry in the merged timeline: either a log line or a panic.
// Arrival is the merge-time position assigned by the aggregator, so a report
// can expose either the per-context order (Seq) or the global arrival order.
type Event struct {
	Log     *LogEvent
	Panic   *PanicEvent
	Arrival uint64
}

// ContextID returns the id of the context that produced the event.
func (e Event) ContextID() string {
	if e.Log != nil {
		return e.Log.ContextID
	}
	if e.Panic != nil {
		return e.Panic.ContextID
	}
	return ""
}
