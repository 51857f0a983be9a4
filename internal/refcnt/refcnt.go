// Package refcnt implements an atomic signed reference counter that
// tracks additional references beyond an implicit first owner.
package refcnt

import "sync/atomic"

/// RefCount_t is an atomic signed counter initialized to zero.
type RefCount_t struct {
	count int64
}

/// Increment adds 1 to the counter with acquire/release ordering.
func (rc *RefCount_t) Increment() {
	atomic.AddInt64(&rc.count, 1)
}

/// Decrement subtracts 1 and reports whether the post-decrement value
/// is <= 0, i.e. whether the last owner beyond the implicit first one
/// just released its reference.
func (rc *RefCount_t) Decrement() bool {
	return atomic.AddInt64(&rc.count, -1) <= 0
}

/// Count returns the current value, for diagnostics and tests only.
func (rc *RefCount_t) Count() int64 {
	return atomic.LoadInt64(&rc.count)
}
