// Package aggregator receives log and panic events from every execution
// context and merges them into a single timeline.
//
// Contexts emit through a Batcher, which buffers events and flushes whole
// batches on a size or interval trigger instead of making a per-line round
// trip. Delivery across a channel may be unordered; per-context order is
// reconstructed from emission-time sequence numbers, while cross-context
// order is arrival order at the merge point. Both orders survive in the
// merged timeline.
//
// A panic finalizes its context: further events for that context id are
// dropped, and the context's run is classified Crashed.
package aggregator
