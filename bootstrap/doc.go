// Package bootstrap turns a compiled wasm binary plus optional externally
// owned shared memory into a running instance.
//
// Each (module identity, memory identity) pair owns one instance per loader.
// The state machine is monotonic and runs exactly once: a second Initialize
// on a Ready pair returns the cached instance, a concurrent second caller
// waits for the first to finish rather than racing instantiation, and a
// failed start parks the pair so the recorded error is returned on every
// later call instead of retrying.
//
// Auto-initialization happens only in the main execution context. A spawned
// worker cannot rediscover shared memory on its own, so workers call
// Initialize explicitly with the module and memory handles passed down from
// the parent.
package bootstrap
