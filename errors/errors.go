package errors

import (
	"fmt"
	"strings"
	"time"
)

// Phase indicates where in the run the error occurred.
type Phase string

const (
	PhaseConfig    Phase = "config"    // option validation, before side effects
	PhaseBootstrap Phase = "bootstrap" // module instantiation and start
	PhaseMemory    Phase = "memory"    // linear memory access
	PhaseSpawn     Phase = "spawn"     // execution context creation
	PhaseAggregate Phase = "aggregate" // log/panic ingestion
	PhaseAdapter   Phase = "adapter"   // host adapter launch/collect
	PhaseSchedule  Phase = "schedule"  // target scheduling
)

// Kind categorizes the error.
type Kind string

const (
	KindInvalidStackSize Kind = "invalid_stack_size"
	KindInstantiation    Kind = "instantiation"
	KindStartTrap        Kind = "start_trap"
	KindTimeout          Kind = "timeout"
	KindPanic            Kind = "panic"
	KindChannelLoss      Kind = "channel_loss"
	KindNotFound         Kind = "not_found"
	KindInvalidInput     Kind = "invalid_input"
	KindTerminated       Kind = "terminated"
	KindUnsupported      Kind = "unsupported"
)

// Error is the structured error type used throughout the harness.
type Error struct {
	Cause     error
	Phase     Phase
	Kind      Kind
	ContextID string
	Target    string
	Detail    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Target != "" {
		b.WriteString(" target=")
		b.WriteString(e.Target)
	}
	if e.ContextID != "" {
		b.WriteString(" context=")
		b.WriteString(e.ContextID)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error's (Phase, Kind) pair.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction.
type Builder struct {
	err Error
}

// New creates a new error builder.
func New(phase Phase, kind Kind) *Builder {
	return &Builder{err: Error{Phase: phase, Kind: kind}}
}

func (b *Builder) Target(name string) *Builder {
	b.err.Target = name
	return b
}

func (b *Builder) Context(id string) *Builder {
	b.err.ContextID = id
	return b
}

func (b *Builder) Detail(format string, args ...any) *Builder {
	b.err.Detail = fmt.Sprintf(format, args...)
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

func (b *Builder) Build() *Error {
	return &b.err
}

// Config reports an invalid option. Raised synchronously, before any
// instantiation side effect.
func Config(format string, args ...any) *Error {
	return New(PhaseConfig, KindInvalidInput).Detail(format, args...).Build()
}

// InvalidStackSize reports a thread stack size that is not a positive
// multiple of the 64 KiB page size.
func InvalidStackSize(size uint64) *Error {
	return New(PhaseConfig, KindInvalidStackSize).
		Detail("thread stack size %d must be a positive multiple of 65536", size).
		Build()
}

// Instantiation reports a failed module instantiation; fatal for its target only.
func Instantiation(detail string, cause error) *Error {
	return New(PhaseBootstrap, KindInstantiation).Detail("%s", detail).Cause(cause).Build()
}

// Timeout reports that a target exceeded its wall-clock bound.
func Timeout(target string, limit time.Duration) *Error {
	return New(PhaseSchedule, KindTimeout).
		Target(target).
		Detail("exceeded %s timeout", limit).
		Build()
}

// Panic reports an uncaught error in an execution context.
func Panic(contextID, message string) *Error {
	return New(PhaseSpawn, KindPanic).Context(contextID).Detail("%s", message).Build()
}

// ChannelLoss reports a context that disappeared without a final message.
// Treated as Crashed with a synthetic panic, never silently dropped.
func ChannelLoss(contextID string) *Error {
	return New(PhaseSpawn, KindChannelLoss).
		Context(contextID).
		Detail("context disappeared without a final message").
		Build()
}
