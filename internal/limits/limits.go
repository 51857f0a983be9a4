// Package limits provides Sysatomic_t, an atomically-decremented
// ceiling callers Take a unit from before committing to a bounded
// resource and Give back on release. Each bounded subsystem
// (process table, block cache, log) owns its own Sysatomic_t rather
// than sharing one aggregate struct, but all are built on the same
// primitive, mirroring the teacher's Syslimit_t fields.
package limits

import (
	"sync/atomic"
)

/// Sysatomic_t is a numeric limit that can be atomically taken from
/// and given back.
type Sysatomic_t int64

/// Taken tries to decrement the limit by n, returning true on
/// success; a decrement that would take it negative is rolled back.
func (s *Sysatomic_t) Taken(n uint) bool {
	g := atomic.AddInt64((*int64)(s), -int64(n))
	if g >= 0 {
		return true
	}
	atomic.AddInt64((*int64)(s), int64(n))
	return false
}

/// Given increases the limit by n.
func (s *Sysatomic_t) Given(n uint) {
	atomic.AddInt64((*int64)(s), int64(n))
}

/// Take decrements the limit by one and reports success.
func (s *Sysatomic_t) Take() bool { return s.Taken(1) }

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() { s.Given(1) }
