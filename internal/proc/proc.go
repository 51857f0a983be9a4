// Package proc implements the process table and the per-CPU SMP
// scheduler together, mirroring how tightly the two are coupled in the
// source this kernel generalizes (pick_next, sched, and the process
// record all reference each other directly). Every kernel thread is
// represented by its own goroutine, gated by a run/done token pair so
// that at most one goroutine per CPU is ever "logically" executing —
// the rest are parked exactly as a real kernel thread would be parked
// in RUNNABLE, SLEEPING, or DEEPSLEEPING.
package proc

import (
	"container/list"
	"runtime"

	"corekernel/internal/accnt"
	"corekernel/internal/caller"
	"corekernel/internal/console"
	"corekernel/internal/limits"
	"corekernel/internal/oommsg"
	"corekernel/internal/platform"
	"corekernel/internal/spinlock"
)

/// State is a process's scheduling state.
type State int

const (
	UNUSED State = iota
	RUNNABLE
	RUNNING
	SLEEPING
	DEEPSLEEPING
	ZOMBIE
)

func (s State) String() string {
	switch s {
	case UNUSED:
		return "UNUSED"
	case RUNNABLE:
		return "RUNNABLE"
	case RUNNING:
		return "RUNNING"
	case SLEEPING:
		return "SLEEPING"
	case DEEPSLEEPING:
		return "DEEPSLEEPING"
	case ZOMBIE:
		return "ZOMBIE"
	default:
		return "?"
	}
}

/// Proc_t is one process (kernel thread): its scheduling state, its
/// place in the process tree, and the run/done token pair its
/// goroutine uses to hand the CPU back and forth with the dispatcher.
type Proc_t struct {
	table *Table_t

	Pid      int
	idle     bool
	lock     spinlock.Spinlock_t
	state    State
	killed   bool
	exitCode int

	parent   *Proc_t
	children []*Proc_t

	childExit chan childSignal

	entry func(*Proc_t)

	runCh  chan struct{}
	doneCh chan struct{}

	Acct accnt.Accnt_t
}

type childSignal struct{}

/// PID returns the process's PID.
func (p *Proc_t) PID() int { return p.Pid }

/// State reports the process's current scheduling state.
func (p *Proc_t) State() State {
	p.lock.Acquire()
	defer p.lock.Release()
	return p.state
}

/// Killed reports whether a kill has been delivered.
func (p *Proc_t) Killed() bool {
	p.lock.Acquire()
	defer p.lock.Release()
	return p.killed
}

// pushRunnable transitions p to RUNNABLE and appends it to the shared
// run queue; p.lock must be held by the caller.
func (p *Proc_t) pushRunnable() {
	p.state = RUNNABLE
	p.table.qlock.Acquire()
	p.table.runq.PushBack(p)
	p.table.qlock.Release()
}

// activate implements the transition table in the scheduler design:
// RUNNING/RUNNABLE/ZOMBIE are no-ops; UNUSED/SLEEPING become RUNNABLE;
// DEEPSLEEPING only wakes when onalert is false (a normal post, not a
// kill-driven alert). It acquires p's own lock itself, unlike sched,
// so any caller (even one on another CPU) may call it directly.
func (p *Proc_t) activate(onalert bool) bool {
	p.lock.Acquire()
	defer p.lock.Release()
	switch p.state {
	case RUNNING, RUNNABLE, ZOMBIE:
		return false
	case UNUSED, SLEEPING:
		p.pushRunnable()
		return true
	case DEEPSLEEPING:
		if onalert {
			return false
		}
		p.pushRunnable()
		return true
	default:
		panic("activate: bad state")
	}
}

/// Alert marks p killed and wakes it if it is alertably asleep; a
/// deep-sleeping process is left undisturbed.
func (p *Proc_t) Alert() {
	p.lock.Acquire()
	p.killed = true
	p.lock.Release()
	p.activate(true)
}

// sched requires the caller to already hold p.lock. It updates state,
// re-enqueues p only if the new state is RUNNABLE (a running process is
// never in the queue to begin with, so SLEEPING/ZOMBIE need no
// explicit dequeue — "process is in the queue iff RUNNABLE" already
// holds), then hands control back to the dispatching CPU's idle loop.
// A transition to ZOMBIE never returns: the calling goroutine's stack
// unwinds from here for good, matching "this last sched call never
// returns" in the scheduler design.
func (p *Proc_t) sched(newState State) {
	p.state = newState
	if newState == RUNNABLE {
		p.pushRunnable()
	}
	p.doneCh <- struct{}{}
	if newState == ZOMBIE {
		runtime.Goexit()
	}
	<-p.runCh
	p.lock.Release() // taken by pickNext on the redispatching CPU
}

/// Sched is the voluntary entry point non-idle code uses to yield the
/// CPU, e.g. the timer preemption handler. The caller must already
/// hold p's own lock (the scheduling model's one cross-CPU lock
/// handoff: p holds its own lock across this call, and the idle loop
/// it yields back to releases that lock on its behalf).
func (p *Proc_t) Sched(newState State) {
	p.sched(newState)
}

/// Park implements sem.Blocker: it transitions p to SLEEPING (if
/// alertable) or DEEPSLEEPING (if not) and does not return until p is
/// reactivated and redispatched.
func (p *Proc_t) Park(alertable bool) {
	p.lock.Acquire()
	st := SLEEPING
	if !alertable {
		st = DEEPSLEEPING
	}
	p.sched(st)
}

/// Wake implements sem.Blocker: it performs a normal (non-alert)
/// activation.
func (p *Proc_t) Wake() {
	p.activate(false)
}

// Table_t owns the whole process tree, the PID space, and the shared
// run queue every CPU's scheduler draws from.
type Table_t struct {
	qlock spinlock.Spinlock_t
	runq  list.List // of *Proc_t

	pidLock spinlock.Spinlock_t
	pidUsed []bool

	root *Proc_t
	cpus []*Cpu_t

	Console  *console.Console_t
	Sysprocs limits.Sysatomic_t
}

func (t *Table_t) allocPid() int {
	if !t.Sysprocs.Taken(1) {
		oommsg.Notify(1, nil)
		panic("proc: system process limit reached")
	}
	t.pidLock.Acquire()
	defer t.pidLock.Release()
	for pid := platform.ReservedPids + 1; pid < platform.MaxPid; pid++ {
		if !t.pidUsed[pid] {
			t.pidUsed[pid] = true
			return pid
		}
	}
	t.Sysprocs.Given(1)
	oommsg.Notify(1, nil)
	panic("proc: no free PID")
}

func (t *Table_t) freePid(pid int) {
	t.pidLock.Acquire()
	defer t.pidLock.Release()
	if !t.pidUsed[pid] {
		panic("proc: double free of PID")
	}
	t.pidUsed[pid] = false
	t.Sysprocs.Given(1)
}

func (t *Table_t) newProc(pid int) *Proc_t {
	return &Proc_t{
		table:  t,
		Pid:    pid,
		runCh:  make(chan struct{}, 1),
		doneCh: make(chan struct{}, 1),
	}
}

/// NewTable builds the process table, boots platform.NCPU idle threads
/// and a root process running rootEntry, and starts every CPU's
/// scheduler loop. rootEntry typically starts the rest of the system
/// (or, in a test, drives a scenario and signals completion).
func NewTable(rootEntry func(*Proc_t)) *Table_t {
	t := &Table_t{
		pidUsed:  make([]bool, platform.MaxPid),
		Console:  console.New(),
		Sysprocs: limits.Sysatomic_t(platform.MaxPid - platform.ReservedPids - 1),
	}
	t.pidUsed[0] = true

	t.cpus = make([]*Cpu_t, platform.NCPU)
	for i := range t.cpus {
		idle := t.newProc(i + 1)
		idle.idle = true
		idle.state = RUNNING
		t.pidUsed[idle.Pid] = true
		t.cpus[i] = newCpu(i, t, idle)
	}

	t.root = t.newProc(platform.NCPU + 1)
	t.root.parent = t.root
	t.root.entry = rootEntry
	t.pidUsed[t.root.Pid] = true

	for _, c := range t.cpus {
		go c.run()
	}
	go t.root.body()
	t.root.activate(false)
	return t
}

/// Root returns the root process record.
func (t *Table_t) Root() *Proc_t { return t.root }

func (p *Proc_t) body() {
	<-p.runCh
	p.lock.Release() // taken by pickNext on the dispatching CPU
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.table.Console.Printf("pid %d: panic: %v\n%s", p.Pid, r, caller.Callerdump(3))
				panic(r)
			}
		}()
		if p.entry != nil {
			p.entry(p)
		}
	}()
	if p == p.table.root {
		// Root never exits; once its entry returns it gives up its CPU
		// for good.
		p.lock.Acquire()
		p.sched(ZOMBIE)
	}
	p.Exit(0)
}

/// Spawn creates a new kernel thread running entry, parented to
/// parent (root if parent is nil), and makes it runnable. It merges
/// the source's create_proc (stack/context setup) and start_proc
/// (install entry, activate) into one call: a goroutine's own stack
/// stands in for the allocated kernel-stack page, so there is no
/// separate construction phase to model.
func (t *Table_t) Spawn(parent *Proc_t, entry func(*Proc_t)) *Proc_t {
	if parent == nil {
		parent = t.root
	}
	p := t.newProc(t.allocPid())
	p.parent = parent
	p.entry = entry

	parent.lock.Acquire()
	parent.children = append(parent.children, p)
	parent.lock.Release()

	go p.body()
	p.activate(false)
	t.Console.Printf("spawn: pid %d parent %d\n", p.Pid, parent.Pid)
	return p
}

/// Exit re-parents every child to root, posts the parent's child-exit
/// notification, records the exit code, and transitions to ZOMBIE —
/// a call from which Exit (like the underlying sched call) never
/// returns. Exiting root is a programmer-contract violation and
/// panics. The PID is freed by whichever call reaps the zombie via
/// Wait, not here: this goroutine has no code path left to run once
/// sched(ZOMBIE) hands control to the idle loop for good.
func (p *Proc_t) Exit(code int) {
	t := p.table
	if p == t.root {
		panic("proc: root exited")
	}

	t.root.lock.Acquire()
	reparented := p.children
	p.children = nil
	for _, c := range reparented {
		c.lock.Acquire()
		c.parent = t.root
		c.lock.Release()
		t.root.children = append(t.root.children, c)
	}
	t.root.lock.Release()
	if len(reparented) > 0 {
		t.root.notifyChildExit()
	}

	p.lock.Acquire()
	p.exitCode = code
	parent := p.parent
	p.lock.Release()

	parent.notifyChildExit()
	t.Console.Printf("exit: pid %d code %d\n", p.Pid, code)

	p.lock.Acquire()
	p.sched(ZOMBIE)
}

func (p *Proc_t) notifyChildExit() {
	select {
	case p.childExitCh() <- childSignal{}:
	default:
	}
}

func (p *Proc_t) childExitCh() chan childSignal {
	if p.childExit == nil {
		p.childExit = make(chan childSignal, 1)
	}
	return p.childExit
}

/// Wait blocks until some child becomes ZOMBIE, reaps it (detaching it
/// from the children list, freeing its PID), and returns its pid and
/// exit code. ok is false iff the caller has no children at all, the
/// spec's "-1" case.
func (p *Proc_t) Wait() (pid int, exitcode int, ok bool) {
	for {
		p.lock.Acquire()
		if len(p.children) == 0 {
			p.lock.Release()
			return 0, 0, false
		}
		for i, c := range p.children {
			c.lock.Acquire()
			if c.state == ZOMBIE {
				pid = c.Pid
				exitcode = c.exitCode
				c.lock.Release()
				p.children = append(append([]*Proc_t(nil), p.children[:i]...), p.children[i+1:]...)
				p.lock.Release()
				p.table.freePid(pid)
				return pid, exitcode, true
			}
			c.lock.Release()
		}
		p.lock.Release()
		<-p.childExitCh()
	}
}

/// Kill rejects reserved PIDs, searches the process tree for pid, and
/// if found marks it killed and alerts it.
func (t *Table_t) Kill(pid int) bool {
	if pid <= platform.ReservedPids || pid >= platform.MaxPid {
		return false
	}
	target := t.findPid(t.root, pid)
	if target == nil {
		return false
	}
	target.Alert()
	return true
}

func (t *Table_t) findPid(p *Proc_t, pid int) *Proc_t {
	if p.Pid == pid {
		return p
	}
	p.lock.Acquire()
	kids := append([]*Proc_t(nil), p.children...)
	p.lock.Release()
	for _, c := range kids {
		if r := t.findPid(c, pid); r != nil {
			return r
		}
	}
	return nil
}
