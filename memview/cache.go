package memview

import "sync"

// Cache maintains one lazily built view per element kind over a Source.
//
// Every access re-validates the cached view by comparing its byte-length
// snapshot against the source's current length. Reference equality of the
// backing buffer is explicitly not consulted: a shared buffer keeps its
// identity across growth, so only the length comparison is a valid
// staleness signal.
type Cache struct {
	src   Source
	mu    sync.Mutex
	views [numViewKinds]*View
}

// NewCache creates a view cache over src.
func NewCache(src Source) *Cache {
	return &Cache{src: src}
}

// View returns the typed view for kind, rebuilding it if the buffer has
// grown since the view was cached.
func (c *Cache) View(kind ViewKind) *View {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.src.SizeBytes()
	v := c.views[kind]
	if v != nil && v.ByteLen == cur {
		return v
	}

	v = &View{
		Kind:    kind,
		ByteLen: cur,
		data:    c.src.Raw(),
	}
	c.views[kind] = v
	return v
}

// SizeBytes exposes the source's current length.
func (c *Cache) SizeBytes() uint32 {
	return c.src.SizeBytes()
}
