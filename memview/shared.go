package memview

import (
	"sync"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-harness/errors"
)

// PageSize is the wasm linear memory page size in bytes.
const PageSize = 65536

// Source is a memory whose length can be observed and whose backing bytes
// can be addressed. Both Shared and InstanceMemory satisfy it.
type Source interface {
	// SizeBytes returns the current byte length. Must be safe to call
	// concurrently with growth from another goroutine.
	SizeBytes() uint32
	// Raw returns the backing bytes for the current length. The slice is
	// invalidated by the next growth; callers re-validate via SizeBytes.
	Raw() []byte
}

// Shared is a growable memory handle with stable identity. Growth never
// changes the handle, only the observable byte length; every context
// holding the handle sees the new length on its next read.
//
// A Shared starts harness-owned and may later be bound to a live instance's
// exported memory, after which all reads and growth go through the instance.
// The first bind wins; binding an already-bound handle is a no-op.
type Shared struct {
	id  string
	mu  sync.RWMutex
	mem api.Memory
	buf []byte
}

// NewShared creates a harness-owned shared memory of the given page count.
func NewShared(pages uint32) *Shared {
	return &Shared{
		id:  uuid.NewString(),
		buf: make([]byte, int(pages)*PageSize),
	}
}

// ID identifies the handle for instance-registry keying.
func (s *Shared) ID() string {
	return s.id
}

// Bind attaches a live instance memory to the handle.
func (s *Shared) Bind(mem api.Memory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mem == nil {
		s.mem = mem
		s.buf = nil
	}
}

// SizeBytes returns the current byte length of the memory.
func (s *Shared) SizeBytes() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mem != nil {
		return s.mem.Size()
	}
	return uint32(len(s.buf))
}

// Raw returns the backing bytes for the current length.
func (s *Shared) Raw() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mem != nil {
		b, ok := s.mem.Read(0, s.mem.Size())
		if !ok {
			return nil
		}
		return b
	}
	return s.buf
}

// Grow extends the memory by delta pages and returns the previous size in
// pages. The handle's identity is unchanged.
func (s *Shared) Grow(delta uint32) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mem != nil {
		prev, ok := s.mem.Grow(delta)
		if !ok {
			return 0, errors.New(errors.PhaseMemory, errors.KindInvalidInput).
				Detail("grow by %d pages refused by instance memory", delta).
				Build()
		}
		return prev, nil
	}

	prevPages := uint32(len(s.buf)) / PageSize
	grown := make([]byte, len(s.buf)+int(delta)*PageSize)
	copy(grown, s.buf)
	s.buf = grown
	return prevPages, nil
}

// InstanceMemory adapts a wazero instance memory to Source.
type InstanceMemory struct {
	mem api.Memory
}

// NewInstanceMemory wraps an instance's exported memory.
func NewInstanceMemory(mem api.Memory) *InstanceMemory {
	return &InstanceMemory{mem: mem}
}

func (m *InstanceMemory) SizeBytes() uint32 {
	return m.mem.Size()
}

func (m *InstanceMemory) Raw() []byte {
	b, ok := m.mem.Read(0, m.mem.Size())
	if !ok {
		return nil
	}
	return b
}
