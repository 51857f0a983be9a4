package fs

import (
	"sync"

	"corekernel/internal/slab"
)

/// SlabBlockmem_t adapts the slab allocator to Blockmem_i: a disk
/// block (512 bytes) is exactly one of the slab's own size classes, so
/// the cache's backing memory is carved out of page-allocator-backed
/// slabs instead of a separate heap — the block cache is the sub-page
/// consumer the slab allocator was built to serve.
type SlabBlockmem_t struct {
	alloc *slab.Allocator_t
	cpu   int
	mu    sync.Mutex
	owned map[*[BSIZE]uint8]slab.Handle
}

/// NewSlabBlockmem wraps alloc as a Blockmem_i. cpu selects which
/// magazine to draw from; callers that serialize Alloc/Free under
/// their own lock (Cache_t does) can share one instance at cpu 0.
func NewSlabBlockmem(alloc *slab.Allocator_t, cpu int) *SlabBlockmem_t {
	return &SlabBlockmem_t{alloc: alloc, cpu: cpu, owned: make(map[*[BSIZE]uint8]slab.Handle)}
}

/// Alloc carves one BSIZE object out of the 512-byte slab class.
func (m *SlabBlockmem_t) Alloc() (*[BSIZE]uint8, bool) {
	h, ok := m.alloc.Alloc(m.cpu, BSIZE)
	if !ok {
		return nil, false
	}
	b := (*[BSIZE]uint8)(h.Bytes())
	m.mu.Lock()
	m.owned[b] = h
	m.mu.Unlock()
	return b, true
}

/// Free returns b's object to its owning slab. Panics if b was not
/// handed out by this adapter.
func (m *SlabBlockmem_t) Free(b *[BSIZE]uint8) {
	m.mu.Lock()
	h, ok := m.owned[b]
	delete(m.owned, b)
	m.mu.Unlock()
	if !ok {
		panic("fs: free of block not owned by this slab allocator")
	}
	m.alloc.Free(m.cpu, BSIZE, h)
}
