// Package accnt accumulates per-process CPU accounting, matching the
// kernel's time-bookkeeping idiom: a nanosecond counter each for user
// and system time, bumped at hand-off points rather than sampled. The
// scheduler's dispatch (Finish, once per dispatch interval) is the one
// caller in this tree; Utadd, IoTime and SleepTime have no callers.
package accnt

import (
	"sync"
	"sync/atomic"
	"time"

	"corekernel/internal/util"
)

/// Accnt_t accumulates per-process accounting information. Both
/// Userns and Sysns store runtime in nanoseconds. The embedded mutex
/// lets callers take a consistent snapshot when exporting usage.
type Accnt_t struct {
	Userns int64
	Sysns  int64
	sync.Mutex
}

/// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt_t) Utadd(delta int) {
	atomic.AddInt64(&a.Userns, int64(delta))
}

/// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt_t) Systadd(delta int) {
	atomic.AddInt64(&a.Sysns, int64(delta))
}

/// Now returns the current time in nanoseconds since the Unix epoch.
func (a *Accnt_t) Now() int {
	return int(time.Now().UnixNano())
}

/// IoTime removes time spent waiting for I/O from system time.
func (a *Accnt_t) IoTime(since int) {
	a.Systadd(-(a.Now() - since))
}

/// SleepTime removes time spent parked from system time.
func (a *Accnt_t) SleepTime(since int) {
	a.Systadd(-(a.Now() - since))
}

/// Finish adds the time since inttime to system time, closing out a
/// dispatch interval.
func (a *Accnt_t) Finish(inttime int) {
	a.Systadd(a.Now() - inttime)
}

/// Add merges another record's counters into this one.
func (a *Accnt_t) Add(n *Accnt_t) {
	a.Lock()
	a.Userns += n.Userns
	a.Sysns += n.Sysns
	a.Unlock()
}

/// Fetch returns a consistent snapshot encoded the way a userspace
/// rusage query would expect: two {sec,usec} timeval pairs.
func (a *Accnt_t) Fetch() []uint8 {
	a.Lock()
	defer a.Unlock()
	ret := make([]uint8, 4*8)
	totv := func(nano int64) (int, int) {
		return int(nano / 1e9), int((nano % 1e9) / 1000)
	}
	off := 0
	s, us := totv(a.Userns)
	util.Writen(ret, 8, off, s)
	off += 8
	util.Writen(ret, 8, off, us)
	off += 8
	s, us = totv(a.Sysns)
	util.Writen(ret, 8, off, s)
	off += 8
	util.Writen(ret, 8, off, us)
	return ret
}
