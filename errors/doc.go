// Package errors provides structured error types for the harness.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). errors.Is matches on the (Phase, Kind) pair, so callers can test
// for a taxonomy entry without string comparison:
//
//	if stderrors.Is(err, errors.New(errors.PhaseSchedule, errors.KindTimeout).Build()) {
//	    ...
//	}
//
// Convenience constructors cover the taxonomy used across the harness:
//
//	err := errors.Config("thread stack size must be a multiple of 65536")
//	err := errors.Timeout("node-cjs", 20*time.Second)
//	err := errors.ChannelLoss(contextID)
package errors
