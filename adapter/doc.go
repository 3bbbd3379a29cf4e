// Package adapter provides one host adapter per host kind behind a common
// capability interface.
//
// Adapters differ in launch mechanics only (subprocess spawn for the
// server-side runtimes, in-process worker creation for the worker kinds,
// an out-of-process driver connection for the browser) and all
// converge on the same TestRunResult shape. Remote adapters decode the
// worker package's envelope schema off their wire and push it through the
// same validated routing as in-process contexts.
//
// Interactive status lines are suppressed whenever the adapter's output
// sink is not a terminal, keeping captured logs machine-parseable.
package adapter
