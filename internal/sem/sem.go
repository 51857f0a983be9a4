// Package sem implements the counting semaphore with a FIFO sleep queue
// described in the core spec's synchronization design; the sleep-lock is
// the binary case. The semaphore does not know about "processes" or a
// scheduler directly — a waiter supplies a Blocker, the narrow interface
// through which the semaphore parks and later wakes the calling
// execution context. internal/proc's process records implement Blocker
// by routing through the scheduler; GoroutineBlocker is a standalone
// implementation for code (tests, the mkfs tool) that runs outside the
// scheduler.
package sem

import (
	"container/list"

	"corekernel/internal/spinlock"
)

/// Blocker is implemented by whatever is waiting on a semaphore.
type Blocker interface {
	/// Park suspends the calling execution context. If alertable, the
	/// suspension is interruptible by an external "kill"-style alert;
	/// if not, no such alert can wake it early. Park does not return
	/// until some later call to Wake (possibly triggered through a
	/// path other than this semaphore, e.g. a kill) makes the caller
	/// runnable again.
	Park(alertable bool)
	/// Wake makes a parked caller runnable again.
	Wake()
}

type waiter struct {
	b  Blocker
	up bool
}

/// Sem_t is a counting semaphore: a spinlock, an integer value, and an
/// intrusive FIFO sleep queue of waiters.
type Sem_t struct {
	lock    spinlock.Spinlock_t
	val     int
	waiters list.List // of *waiter
}

/// Init sets the semaphore to the given initial value. The zero value
/// of Sem_t is a semaphore initialized to 0; call Init explicitly for
/// any other starting value (sleep-locks use 1, see Sleeplock_t).
func (s *Sem_t) Init(val int) {
	s.val = val
}

/// Post increments val; if the result is <= 0 some goroutine is
/// waiting, and the oldest waiter is popped, marked woken, detached,
/// and rescheduled.
func (s *Sem_t) Post() {
	s.lock.Acquire()
	s.val++
	if s.val <= 0 {
		if s.waiters.Len() == 0 {
			panic("sem: val says a waiter exists but none queued")
		}
		e := s.waiters.Front()
		w := e.Value.(*waiter)
		w.up = true
		s.waiters.Remove(e)
		s.lock.Release()
		w.b.Wake()
		return
	}
	s.lock.Release()
}

/// Wait decrements val; if it remains >= 0 the caller proceeds
/// immediately. Otherwise the caller is enqueued and parked via self,
/// alertable or not per the argument, and re-evaluated on wake: a
/// normal wakeup (via Post) returns true, an out-of-band wake (e.g. a
/// kill-driven alert while alertable) returns false, restoring val and
/// detaching the waiter.
func (s *Sem_t) Wait(self Blocker, alertable bool) bool {
	s.lock.Acquire()
	s.val--
	if s.val >= 0 {
		s.lock.Release()
		return true
	}
	w := &waiter{b: self}
	e := s.waiters.PushBack(w)
	s.lock.Release()

	self.Park(alertable)

	s.lock.Acquire()
	ret := w.up
	if !ret {
		s.val++
		s.waiters.Remove(e)
	}
	s.lock.Release()
	return ret
}

/// Query reports val without waiting.
func (s *Sem_t) Query() int {
	s.lock.Acquire()
	defer s.lock.Release()
	return s.val
}

/// Drain returns the current value and zeroes it.
func (s *Sem_t) Drain() int {
	s.lock.Acquire()
	defer s.lock.Release()
	v := s.val
	s.val = 0
	return v
}

/// PostAll posts until nothing is waiting and returns the number of
/// waiters woken.
func (s *Sem_t) PostAll() int {
	n := 0
	for {
		s.lock.Acquire()
		if s.waiters.Len() == 0 {
			s.lock.Release()
			return n
		}
		s.lock.Release()
		s.Post()
		n++
	}
}

/// Sleeplock_t is the binary semaphore special case: a mutex that a
/// process may block on, usable as a suspension point per the
/// concurrency model.
type Sleeplock_t struct {
	sem Sem_t
	set bool
}

func (l *Sleeplock_t) init() {
	if !l.set {
		l.sem.Init(1)
		l.set = true
	}
}

/// Acquire takes the lock, alertable by a kill.
func (l *Sleeplock_t) Acquire(self Blocker) bool {
	l.init()
	return l.sem.Wait(self, true)
}

/// AcquireUnalertable takes the lock ignoring kill-driven alerts.
func (l *Sleeplock_t) AcquireUnalertable(self Blocker) {
	l.init()
	l.sem.Wait(self, false)
}

/// Release releases the lock, waking the oldest waiter if any.
func (l *Sleeplock_t) Release() {
	l.init()
	l.sem.Post()
}

/// GoroutineBlocker is a standalone Blocker backed by a buffered
/// channel, for use by code that runs outside the scheduler (tests,
/// the host-side mkfs tool, bootstrap before any process exists).
type GoroutineBlocker struct {
	ch chan struct{}
}

/// NewGoroutineBlocker returns a ready-to-use GoroutineBlocker.
func NewGoroutineBlocker() *GoroutineBlocker {
	return &GoroutineBlocker{ch: make(chan struct{}, 1)}
}

/// Park blocks until Wake is called; alertable is ignored since a bare
/// goroutine has no kill mechanism.
func (g *GoroutineBlocker) Park(alertable bool) {
	<-g.ch
}

/// Wake unblocks a parked Park call.
func (g *GoroutineBlocker) Wake() {
	select {
	case g.ch <- struct{}{}:
	default:
	}
}
