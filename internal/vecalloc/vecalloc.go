// Package vecalloc hands out small integer interrupt-vector numbers,
// the way the teacher's msi package allocates MSI vectors — repurposed
// here for the block device's completion vector and each CPU's timer
// tick vector.
package vecalloc

import "sync"

/// Vec_t identifies one interrupt handler registration.
type Vec_t uint

/// Vecalloc_t is a pool of available vector numbers.
type Vecalloc_t struct {
	sync.Mutex
	avail map[Vec_t]bool
}

/// New returns a pool seeded with vectors lo..hi inclusive.
func New(lo, hi Vec_t) *Vecalloc_t {
	va := &Vecalloc_t{avail: make(map[Vec_t]bool)}
	for v := lo; v <= hi; v++ {
		va.avail[v] = true
	}
	return va
}

/// Alloc removes and returns one available vector. Panics if the pool
/// is exhausted.
func (va *Vecalloc_t) Alloc() Vec_t {
	va.Lock()
	defer va.Unlock()
	for v := range va.avail {
		delete(va.avail, v)
		return v
	}
	panic("vecalloc: no vectors available")
}

/// Free returns vector v to the pool. Panics on a double free.
func (va *Vecalloc_t) Free(v Vec_t) {
	va.Lock()
	defer va.Unlock()
	if va.avail[v] {
		panic("vecalloc: double free")
	}
	va.avail[v] = true
}
