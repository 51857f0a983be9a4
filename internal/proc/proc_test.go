package proc

import (
	"sync"
	"testing"
	"time"

	"corekernel/internal/platform"
)

func await(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scenario completion")
	}
}

func TestSpawnExitReap(t *testing.T) {
	done := make(chan struct{})
	var childPid, code int
	var ok bool
	NewTable(func(root *Proc_t) {
		root.table.Spawn(root, func(p *Proc_t) {
			p.Exit(7)
		})
		childPid, code, ok = root.Wait()
		close(done)
	})
	await(t, done)
	if !ok {
		t.Fatal("wait should find the reaped child")
	}
	if code != 7 {
		t.Errorf("exit code = %d, want 7", code)
	}
	if childPid <= platform.ReservedPids {
		t.Errorf("child pid %d collides with reserved range", childPid)
	}
}

func TestWaitWithNoChildren(t *testing.T) {
	done := make(chan struct{})
	var ok bool
	NewTable(func(root *Proc_t) {
		_, _, ok = root.Wait()
		close(done)
	})
	await(t, done)
	if ok {
		t.Error("wait on a childless process should report ok=false")
	}
}

func TestKillWakesSleeper(t *testing.T) {
	done := make(chan struct{})
	var killed bool
	NewTable(func(root *Proc_t) {
		woke := make(chan struct{}, 1)
		child := root.table.Spawn(root, func(p *Proc_t) {
			p.lock.Acquire()
			p.sched(SLEEPING)
			woke <- struct{}{}
			p.Exit(0)
		})
		time.Sleep(50 * time.Millisecond)
		killed = root.table.Kill(child.Pid)
		select {
		case <-woke:
		case <-time.After(2 * time.Second):
			t.Error("killed sleeper never woke")
		}
		root.Wait()
		close(done)
	})
	await(t, done)
	if !killed {
		t.Error("kill should find the sleeping child")
	}
}

func TestKillRejectsReservedPids(t *testing.T) {
	done := make(chan struct{})
	var rejections int
	NewTable(func(root *Proc_t) {
		for pid := 0; pid <= platform.ReservedPids; pid++ {
			if !root.table.Kill(pid) {
				rejections++
			}
		}
		close(done)
	})
	await(t, done)
	if rejections != platform.ReservedPids+1 {
		t.Errorf("rejected %d reserved pids, want %d", rejections, platform.ReservedPids+1)
	}
}

func TestReparentingOnExit(t *testing.T) {
	done := make(chan struct{})
	var reaped bool
	NewTable(func(root *Proc_t) {
		grandchildExited := make(chan struct{})
		root.table.Spawn(root, func(p *Proc_t) {
			p.table.Spawn(p, func(gc *Proc_t) {
				<-grandchildExited
				gc.Exit(0)
			})
			p.Exit(0)
		})
		time.Sleep(50 * time.Millisecond)
		root.Wait() // reaps the child; the grandchild is now root's

		close(grandchildExited)
		_, _, reaped = root.Wait()
		close(done)
	})
	await(t, done)
	if !reaped {
		t.Error("root should eventually reap the re-parented grandchild")
	}
}

// TestPreemptionFairness runs two CPU-bound processes that each
// voluntarily yield between steps; neither should be starved for more
// than a handful of the other's turns.
func TestPreemptionFairness(t *testing.T) {
	const steps = 20
	const maxLead = 12 // rules out one process finishing before the other starts, without requiring lockstep alternation

	done := make(chan struct{})
	var mu sync.Mutex
	var order []int
	var worst int

	NewTable(func(root *Proc_t) {
		run := func(id int) func(p *Proc_t) {
			return func(p *Proc_t) {
				for i := 0; i < steps; i++ {
					mu.Lock()
					order = append(order, id)
					lead := 0
					for j := len(order) - 1; j >= 0 && order[j] == id; j-- {
						lead++
					}
					if lead > worst {
						worst = lead
					}
					mu.Unlock()
					p.lock.Acquire()
					p.Sched(RUNNABLE)
				}
				p.Exit(0)
			}
		}
		root.table.Spawn(root, run(1))
		root.table.Spawn(root, run(2))
		root.Wait()
		root.Wait()
		close(done)
	})
	await(t, done)

	if len(order) != 2*steps {
		t.Fatalf("expected %d recorded steps, got %d", 2*steps, len(order))
	}
	if worst > maxLead {
		t.Errorf("one process ran %d consecutive turns unanswered, want <= %d", worst, maxLead)
	}
}
