// Package worker spawns and supervises secondary execution contexts and
// routes their messages to the aggregator.
//
// Every spawned context communicates through a closed, tagged message
// schema (spawn-ack, log, panic, result) validated at the channel
// boundary, so the orchestrator reasons about an exhaustive set of message
// kinds rather than duck-typed payloads. The same envelopes travel over
// stdio and websocket channels in the adapter package.
//
// A context is not considered running until it acknowledges readiness.
// Shared and service worker kinds outlive a single logical run: the physical
// context persists and new runs are matched to it by routing key. Uncaught
// errors anywhere in a context, including contexts it spawned itself, become
// panic events attributed to the originating context, and capture of console
// output is transitive for the same reason: grandchildren route through the
// same orchestrator.
package worker
