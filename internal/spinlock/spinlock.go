// Package spinlock implements mutual exclusion across simulated CPUs.
//
// A held spinlock must never be held across a blocking call (sleeping on a
// semaphore, taking a sleep-lock). Callers release the spinlock first, or
// use CondWait, which packages the "release spinlock, sleep, reacquire"
// pattern; the log's admission wait in internal/fs is built on it.
package spinlock

import (
	"runtime"
	"sync/atomic"
)

/// Spinlock_t is a single boolean flag protected by atomic test-and-set.
/// It does not support recursion: acquiring a held Spinlock_t from the
/// same goroutine deadlocks, same as on real hardware.
type Spinlock_t struct {
	locked uint32
}

/// TryAcquire attempts to take the lock without spinning and reports
/// whether it succeeded.
func (l *Spinlock_t) TryAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.locked, 0, 1)
}

/// Acquire spins until the lock is free, yielding the OS thread between
/// attempts so other goroutines representing other CPUs make progress.
func (l *Spinlock_t) Acquire() {
	for !l.TryAcquire() {
		runtime.Gosched()
	}
}

/// Release clears the lock. Releasing an unheld lock is a programmer
/// error and panics per the error taxonomy in the spec's §7.
func (l *Spinlock_t) Release() {
	if !atomic.CompareAndSwapUint32(&l.locked, 1, 0) {
		panic("spinlock: release of unheld lock")
	}
}

/// Held reports whether the lock is currently held, for assertions only.
func (l *Spinlock_t) Held() bool {
	return atomic.LoadUint32(&l.locked) != 0
}

/// CondWait implements "release l, wait until woken is signaled,
/// reacquire l" as one operation. woken is closed or written to by the
/// producer side; CondWait does not interpret SLEEPING vs DEEPSLEEPING,
/// and callers recheck their own condition after it returns.
//
// l must be held on entry and is held again on return.
func CondWait(l *Spinlock_t, woken <-chan struct{}) {
	l.Release()
	<-woken
	l.Acquire()
}
