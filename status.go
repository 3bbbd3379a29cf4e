package wasmharness

// Status classifies the outcome of one target run.
// The ordering is severity: Crashed > TimedOut > Failed > Passed.
type Status int

const (
	StatusPassed Status = iota
	StatusFailed
	StatusTimedOut
	StatusCrashed
)

func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed-out"
	case StatusCrashed:
		return "crashed"
	}
	return "unknown"
}

// WorstOf returns the more severe of two statuses.
func WorstOf(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}

// ExitCode maps a status to the process exit code taxonomy:
// 0 passed, 1 failed, 2 timed out, 3 crashed.
func (s Status) ExitCode() int {
	return int(s)
}
