// Package memview maintains typed views over wasm linear memory that stay
// valid across memory growth.
//
// A shared buffer keeps its identity when another thread grows it, so
// identity comparison is not a usable staleness signal. The cache instead
// snapshots the byte length at view construction and re-validates it on
// every access: a length mismatch discards the cached view and rebuilds it
// against the current buffer. The check is purely observational: no lock is
// assumed to be held by the growing thread, and no notification callback is
// involved.
package memview
