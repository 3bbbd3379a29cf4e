package wasmharness

import "time"

// TestRunResult is the per-target outcome record consumed by the final report.
type TestRunResult struct {
	ContextID string
	Target    string
	Kind      Kind
	Status    Status
	Duration  time.Duration
	Events    []Event
}

// AggregateReport holds one TestRunResult per target.
type AggregateReport struct {
	Results []TestRunResult
}

// Overall is the worst status across all targets.
func (r AggregateReport) Overall() Status {
	overall := StatusPassed
	for _, res := range r.Results {
		overall = WorstOf(overall, res.Status)
	}
	return overall
}

// ExitCode is the process exit code for the whole run: 0 only if every
// target passed.
func (r AggregateReport) ExitCode() int {
	return r.Overall().ExitCode()
}
