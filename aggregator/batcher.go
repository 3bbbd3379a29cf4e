package aggregator

import (
	"sync"
	"time"

	wasmharness "github.com/wippyai/wasm-harness"
)

const (
	defaultBatchSize  = 64
	defaultFlushEvery = 25 * time.Millisecond
	maxPooledBatchCap = 512
)

var batchPool = sync.Pool{
	New: func() any {
		b := make([]wasmharness.LogEvent, 0, defaultBatchSize)
		return &b
	},
}

// BatcherConfig tunes flushing. Zero values select defaults.
type BatcherConfig struct {
	// Size flushes when the buffer reaches this many events.
	Size int
	// Interval flushes a non-empty buffer at least this often, so a quiet
	// context's events still arrive promptly.
	Interval time.Duration
}

// Batcher assigns per-context sequence numbers at emission time and ships
// events in batches. One Batcher per execution context; safe for concurrent
// emitters within the context.
type Batcher struct {
	contextID string
	flush     func([]wasmharness.LogEvent)
	size      int

	mu  sync.Mutex
	buf []wasmharness.LogEvent
	seq uint64

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewBatcher creates a batcher whose flushes call flush synchronously with
// a batch the callee must not retain.
func NewBatcher(contextID string, cfg BatcherConfig, flush func([]wasmharness.LogEvent)) *Batcher {
	size := cfg.Size
	if size <= 0 {
		size = defaultBatchSize
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultFlushEvery
	}

	b := &Batcher{
		contextID: contextID,
		flush:     flush,
		size:      size,
		buf:       *batchPool.Get().(*[]wasmharness.LogEvent),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	go b.tick(interval)
	return b
}

// Log buffers one line. The sequence number is assigned here, inside the
// emitting context, so ordering survives unordered delivery.
func (b *Batcher) Log(stream wasmharness.Stream, payload string) {
	b.mu.Lock()
	b.seq++
	b.buf = append(b.buf, wasmharness.LogEvent{
		ContextID: b.contextID,
		Stream:    stream,
		Seq:       b.seq,
		Payload:   payload,
		Time:      time.Now(),
	})
	full := len(b.buf) >= b.size
	b.mu.Unlock()

	if full {
		b.Flush()
	}
}

// Flush ships the buffered events, if any.
func (b *Batcher) Flush() {
	b.mu.Lock()
	if len(b.buf) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.buf
	b.buf = *batchPool.Get().(*[]wasmharness.LogEvent)
	b.mu.Unlock()

	b.flush(batch)

	if cap(batch) <= maxPooledBatchCap {
		batch = batch[:0]
		batchPool.Put(&batch)
	}
}

// Close flushes remaining events and stops the interval flusher.
func (b *Batcher) Close() {
	b.stopOnce.Do(func() {
		close(b.stop)
	})
	<-b.done
	b.Flush()
}

func (b *Batcher) tick(interval time.Duration) {
	defer close(b.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-t.C:
			b.Flush()
		}
	}
}
