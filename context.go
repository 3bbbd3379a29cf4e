package wasmharness

import "context"

type ctxKey int

const workerKey ctxKey = iota

// MarkWorker marks ctx as belonging to a spawned worker context.
// Auto-initialization paths must not run under a marked context: a worker
// cannot rediscover shared memory on its own and has to be handed the
// module and memory explicitly by its parent.
func MarkWorker(ctx context.Context) context.Context {
	return context.WithValue(ctx, workerKey, true)
}

// InWorker reports whether ctx belongs to a spawned worker context.
func InWorker(ctx context.Context) bool {
	v, _ := ctx.Value(workerKey).(bool)
	return v
}
