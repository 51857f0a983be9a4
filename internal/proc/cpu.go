package proc

import (
	"time"

	"corekernel/internal/platform"
	"corekernel/internal/vecalloc"
)

// heartbeatEvery is how many consecutive empty pickNext draws elapse
// between idle-loop liveness lines.
const heartbeatEvery = 1000

// timerVecs hands out the per-CPU tick's completion vector, one per
// CPU, the same way virtio's block-completion interrupt draws from
// its own vecalloc pool.
var timerVecs = vecalloc.New(0, platform.NCPU)

// Cpu_t is one CPU's scheduler: an idle thread that repeatedly draws
// the next runnable process from the shared queue, dispatches it by
// handing it the run token, and waits for it to yield back.
type Cpu_t struct {
	id       int
	table    *Table_t
	idleProc *Proc_t
	lastElem *elementRef
	idleIter int
	timerVec vecalloc.Vec_t
}

// newCpu allocates c's tick timer vector before returning it; the
// caller starts c.run() once every Cpu_t is constructed.
func newCpu(id int, table *Table_t, idleProc *Proc_t) *Cpu_t {
	return &Cpu_t{id: id, table: table, idleProc: idleProc, timerVec: timerVecs.Alloc()}
}

// Stop frees c's timer vector; callers tear a CPU down with this
// before discarding it (tests, shutdown).
func (c *Cpu_t) Stop() {
	timerVecs.Free(c.timerVec)
}

// elementRef records the process picked last, so pickNext can resume
// scanning from just past that process's queue position (a round-robin
// cursor) rather than restarting at the queue head every time.
type elementRef struct {
	p *Proc_t
}

// pickNext scans the shared run queue starting just after the element
// this CPU dispatched last time, returning the first RUNNABLE,
// non-idle process whose own lock it can acquire without blocking. A
// process another CPU is concurrently touching (e.g. being killed) is
// skipped, not waited on.
func (t *Table_t) pickNext(c *Cpu_t) *Proc_t {
	t.qlock.Acquire()
	defer t.qlock.Release()

	n := t.runq.Len()
	if n == 0 {
		return nil
	}

	e := t.runq.Front()
	if c.lastElem != nil {
		for f := t.runq.Front(); f != nil; f = f.Next() {
			if f.Value.(*Proc_t) == c.lastElem.p {
				if nx := f.Next(); nx != nil {
					e = nx
				}
				break
			}
		}
	}

	start := e
	for i := 0; i < n; i++ {
		p := e.Value.(*Proc_t)
		next := e.Next()
		if next == nil {
			next = t.runq.Front()
		}
		if !p.idle && p.state == RUNNABLE && p.lock.TryAcquire() {
			t.runq.Remove(e)
			p.state = RUNNING
			c.lastElem = &elementRef{p: p}
			return p
		}
		e = next
		if e == start {
			break
		}
	}
	return nil
}

// run is the CPU's idle loop: dispatch a process, wait for it to
// yield, then release the lock it held across the switch — the one
// cross-CPU lock handoff in this scheduler (the process acquires its
// own lock before yielding; the idle loop it yields back to is the
// one that lets it go).
func (c *Cpu_t) run() {
	ticker := time.NewTicker(platform.TickMillis * time.Millisecond)
	defer ticker.Stop()
	for {
		p := c.table.pickNext(c)
		if p == nil {
			c.idleIter++
			if c.idleIter%heartbeatEvery == 0 {
				c.table.Console.Printf("cpu %d: heartbeat, idle (tick vec %d)\n", c.id, c.timerVec)
			}
			<-ticker.C
			continue
		}
		c.idleIter = 0
		c.dispatch(p)
	}
}

// dispatch hands p the run token and waits for it to yield back.
func (c *Cpu_t) dispatch(p *Proc_t) {
	start := p.Acct.Now()
	p.runCh <- struct{}{}
	<-p.doneCh
	p.Acct.Finish(start)
	p.lock.Release()
}
