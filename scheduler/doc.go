// Package scheduler drives the configured targets across host adapters,
// applies the per-target timeout policy, and renders the aggregate report.
//
// Targets run independently: a failure, crash or timeout on one target
// never aborts the others. The overall status is the worst across targets,
// ordered Crashed > TimedOut > Failed > Passed, and the process exit code
// follows that ranking.
package scheduler
