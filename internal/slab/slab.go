// Package slab implements the per-size object cache layered over the
// page allocator: fixed-size classes {8,16,32,64,128,256,512,1024},
// each with partial/full slab lists and a per-CPU magazine of up to 32
// cached objects enabling a lock-free fast path. Allocations above
// 1024 bytes fall through to a full page, which callers get directly
// from internal/page.
package slab

import (
	"container/list"

	"corekernel/internal/page"
	"corekernel/internal/platform"
	"corekernel/internal/spinlock"
	"corekernel/internal/util"
)

/// Sizes enumerates the supported object-size classes, smallest first.
var Sizes = [...]int{8, 16, 32, 64, 128, 256, 512, 1024}

/// MaxClassSize is the largest object size served by a slab class;
/// requests above this size must be satisfied by a full page instead.
const MaxClassSize = 1024

// headerBytes is the space reserved at the start of each slab page for
// a header of three little-endian uint16 fields {obj_size, obj_cnt,
// free_head_offset}; object slots start after it. Nothing is written
// into those bytes: the values live in the slabPage record (objSize,
// used, freeHead) instead. The link to the sibling slab in its class's
// partial/full list is likewise not an in-page field but a
// container/list element.
const headerBytes = 6

const magazineCap = 32

/// Handle identifies a carved object within a slab page; it is the
/// token callers hold between Alloc and Free.
type Handle struct {
	sp  *slabPage
	off uint16
}

/// Bytes returns the live backing memory for the object. It is only
/// valid between a matching Alloc and Free.
func (h Handle) Bytes() []byte {
	sz := h.sp.objSize
	return h.sp.pg[h.off : int(h.off)+sz]
}

type slabPage struct {
	pa       page.Pa_t
	pg       *page.Pg_t
	objSize  int
	capacity int
	used     int
	freeHead uint16 // offset; 0 means none (object slots start after the header)
	elem     *list.Element
	inFull   bool
}

func (sp *slabPage) popFree() uint16 {
	off := sp.freeHead
	b := sp.pg[:]
	sp.freeHead = uint16(util.Readn(b, 2, int(off)))
	return off
}

func (sp *slabPage) pushFree(off uint16) {
	b := sp.pg[:]
	util.Writen(b, 2, int(off), int(sp.freeHead))
	sp.freeHead = off
}

/// Class_t is one fixed-size object-size class.
type Class_t struct {
	objSize int
	pager   *page.Allocator_t
	lock    spinlock.Spinlock_t
	partial list.List
	full    list.List
	mags    [][]Handle // one magazine per CPU
}

/// Init wires the class to the given page allocator and object size.
func (c *Class_t) Init(pager *page.Allocator_t, objSize int) {
	c.pager = pager
	c.objSize = objSize
	c.mags = make([][]Handle, platform.NCPU)
}

func (c *Class_t) newSlab() (*slabPage, bool) {
	pa, pg, ok := c.pager.Alloc()
	if !ok {
		return nil, false
	}
	sp := &slabPage{
		pa:      pa,
		pg:      pg,
		objSize: c.objSize,
	}
	sp.capacity = (page.PGSIZE - headerBytes) / c.objSize
	off := headerBytes
	sp.freeHead = 0
	// thread the free list through the slab, 0 terminating the chain.
	for i := sp.capacity - 1; i >= 0; i-- {
		o := uint16(off + i*c.objSize)
		util.Writen(pg[:], 2, int(o), int(sp.freeHead))
		sp.freeHead = o
	}
	return sp, true
}

// carve allocates one object from sp, which must have at least one
// free slot, and updates its partial/full membership.
func (c *Class_t) carve(sp *slabPage) Handle {
	off := sp.popFree()
	sp.used++
	if sp.used == sp.capacity && !sp.inFull {
		c.partial.Remove(sp.elem)
		sp.inFull = true
		sp.elem = c.full.PushBack(sp)
	}
	return Handle{sp: sp, off: off}
}

/// Alloc returns an object for CPU cpu, using its magazine if one is
/// cached there, else the class-wide partial/full slab lists under the
/// class lock. It reports ok=false only on page-allocator exhaustion.
func (c *Class_t) Alloc(cpu int) (Handle, bool) {
	mag := c.mags[cpu]
	if n := len(mag); n > 0 {
		h := mag[n-1]
		c.mags[cpu] = mag[:n-1]
		return h, true
	}

	c.lock.Acquire()
	defer c.lock.Release()

	var sp *slabPage
	if e := c.partial.Front(); e != nil {
		sp = e.Value.(*slabPage)
	} else {
		var ok bool
		sp, ok = c.newSlab()
		if !ok {
			return Handle{}, false
		}
		sp.elem = c.partial.PushBack(sp)
	}
	return c.carve(sp), true
}

/// Free returns an object for CPU cpu to its owning slab. It is cached
/// in the per-CPU magazine when there is room there (lock-free fast
/// path); otherwise it is threaded back into the slab's free list
/// under the class lock, which may move the slab between partial and
/// full, or release an emptied slab's page back to the page allocator.
func (c *Class_t) Free(cpu int, h Handle) {
	mag := c.mags[cpu]
	if len(mag) < magazineCap {
		c.mags[cpu] = append(mag, h)
		return
	}

	c.lock.Acquire()
	defer c.lock.Release()
	c.freeSlow(h)
}

func (c *Class_t) freeSlow(h Handle) {
	sp := h.sp
	sp.pushFree(h.off)
	sp.used--
	if sp.used < 0 {
		panic("slab: negative occupancy")
	}
	switch {
	case sp.used == 0:
		if sp.inFull {
			c.full.Remove(sp.elem)
		} else {
			c.partial.Remove(sp.elem)
		}
		c.pager.Free(sp.pa)
	case sp.used == sp.capacity-1 && sp.inFull:
		c.full.Remove(sp.elem)
		sp.inFull = false
		sp.elem = c.partial.PushBack(sp)
	}
}

/// DrainMagazine empties CPU cpu's magazine back into the class lists,
/// for shutdown or tests; it is never required periodically.
func (c *Class_t) DrainMagazine(cpu int) {
	c.lock.Acquire()
	defer c.lock.Release()
	for _, h := range c.mags[cpu] {
		c.freeSlow(h)
	}
	c.mags[cpu] = nil
}

/// Outstanding reports the number of objects currently allocated out
/// of this class: every slab's occupancy, less anything parked in a
/// magazine (already carved but not counted as "free" by the class
/// lists). Used by tests to check the slab-conservation invariant.
func (c *Class_t) Outstanding() int {
	c.lock.Acquire()
	defer c.lock.Release()
	n := 0
	for e := c.partial.Front(); e != nil; e = e.Next() {
		n += e.Value.(*slabPage).used
	}
	for e := c.full.Front(); e != nil; e = e.Next() {
		n += e.Value.(*slabPage).used
	}
	for _, mag := range c.mags {
		n -= len(mag)
	}
	return n
}

/// Allocator_t fronts every size class plus the fallback to whole
/// pages for allocations above MaxClassSize.
type Allocator_t struct {
	pager   *page.Allocator_t
	classes [len(Sizes)]Class_t
}

/// Init wires every size class to pager.
func (a *Allocator_t) Init(pager *page.Allocator_t) {
	a.pager = pager
	for i, sz := range Sizes {
		a.classes[i].Init(pager, sz)
	}
}

// classFor returns the smallest class whose objects fit n bytes, or
// -1 if n exceeds MaxClassSize.
func classFor(n int) int {
	for i, sz := range Sizes {
		if n <= sz {
			return i
		}
	}
	return -1
}

/// Alloc returns n bytes of storage for CPU cpu. Requests larger than
/// MaxClassSize fall through to a full page from the page allocator
/// (the returned Handle wraps the whole page; Free must be called with
/// the same n so the same path is used to release it).
func (a *Allocator_t) Alloc(cpu, n int) (Handle, bool) {
	ci := classFor(n)
	if ci < 0 {
		pa, pg, ok := a.pager.Alloc()
		if !ok {
			return Handle{}, false
		}
		sp := &slabPage{pa: pa, pg: pg, objSize: page.PGSIZE, capacity: 1, used: 1}
		return Handle{sp: sp, off: 0}, true
	}
	return a.classes[ci].Alloc(cpu)
}

/// Free releases a Handle previously returned by Alloc for size n.
func (a *Allocator_t) Free(cpu, n int, h Handle) {
	ci := classFor(n)
	if ci < 0 {
		a.pager.Free(h.sp.pa)
		return
	}
	a.classes[ci].Free(cpu, h)
}
