// Package page implements the physical page-frame allocator: a singly
// linked free list of 4096-byte frames carved out of a backing arena,
// guarded by one global spinlock. There is no coalescing and no NUMA
// awareness, matching the core spec.
package page

import (
	"corekernel/internal/spinlock"
)

/// PGSIZE is the size of a single page frame in bytes.
const PGSIZE = 4096

/// Pa_t is a physical frame number: an index into the arena, not a
/// byte offset. It stands in for a physical address on real hardware.
type Pa_t uint32

/// Pg_t is the byte contents of one page frame.
type Pg_t [PGSIZE]byte

// nilFrame is the free-list terminator, matching the "all-ones means
// absent" idiom used for intrusive free-list indices.
const nilFrame = ^Pa_t(0)

// frame links the intrusive free list; frames are addressed by index
// into Allocator_t.arena, so nexti plays the role of a "next" pointer.
type frame struct {
	used  bool
	nexti Pa_t
}

/// Allocator_t owns a contiguous arena of page frames and the free
/// list threading them together.
type Allocator_t struct {
	lock   spinlock.Spinlock_t
	arena  []Pg_t
	frames []frame
	freeHd Pa_t
	nalloc int64
	nfree  int64
}

/// Init carves npages frames out of a freshly allocated arena and
/// pushes every one of them onto the free list, as if they were the
/// frames between the end of the kernel image and the end of physical
/// RAM.
func (a *Allocator_t) Init(npages int) {
	a.arena = make([]Pg_t, npages)
	a.frames = make([]frame, npages)
	a.freeHd = nilFrame
	for i := npages - 1; i >= 0; i-- {
		a.frames[i].nexti = a.freeHd
		a.freeHd = Pa_t(i)
	}
}

/// Alloc pops the head of the free list, zeroes the frame, and bumps
/// the allocation counter. It reports ok=false when no frame is free;
/// callers treat that as a fatal resource-exhaustion panic per the
/// error-handling design — Alloc itself only reports failure so the
/// panic site (and any OOM notification) is the caller's choice.
func (a *Allocator_t) Alloc() (pa Pa_t, pg *Pg_t, ok bool) {
	a.lock.Acquire()
	defer a.lock.Release()
	if a.freeHd == nilFrame {
		return 0, nil, false
	}
	idx := a.freeHd
	fr := &a.frames[idx]
	if fr.used {
		panic("page: free list points at an in-use frame")
	}
	a.freeHd = fr.nexti
	fr.used = true
	a.nalloc++
	pg = &a.arena[idx]
	*pg = Pg_t{}
	return idx, pg, true
}

/// Free pushes the frame back onto the free list and bumps the free
/// counter (see Counts). Double-free is a programmer-contract violation
/// and panics.
func (a *Allocator_t) Free(pa Pa_t) {
	a.lock.Acquire()
	defer a.lock.Release()
	fr := &a.frames[pa]
	if !fr.used {
		panic("page: double free")
	}
	fr.used = false
	fr.nexti = a.freeHd
	a.freeHd = pa
	a.nfree++
}

/// Page returns the backing bytes for a previously allocated frame.
func (a *Allocator_t) Page(pa Pa_t) *Pg_t {
	return &a.arena[pa]
}

/// Counts returns (alloc_count, free_count); alloc_count - free_count
/// is the number of frames currently owned outside the allocator, the
/// page-accounting invariant the spec requires to hold at all times.
func (a *Allocator_t) Counts() (allocCount, freeCount int64) {
	a.lock.Acquire()
	defer a.lock.Release()
	return a.nalloc, a.nfree
}
