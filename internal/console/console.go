// Package console is the kernel's boot and diagnostic log: a
// circbuf-backed ring of recent lines, guarded by a spinlock so any
// CPU (including one mid-panic) can append to it without taking a
// blocking lock.
package console

import (
	"fmt"

	"corekernel/internal/circbuf"
	"corekernel/internal/spinlock"
)

const bufSize = 16 * 1024

/// Console_t is the kernel's in-memory log ring.
type Console_t struct {
	lock spinlock.Spinlock_t
	cb   circbuf.Circbuf_t
}

/// New returns an initialized console.
func New() *Console_t {
	c := &Console_t{}
	c.cb.Init(bufSize)
	return c
}

/// Printf formats and appends a line to the log.
func (c *Console_t) Printf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	c.lock.Acquire()
	c.cb.Write([]byte(line))
	c.lock.Release()
}

/// Dump returns the buffered log contents, oldest first.
func (c *Console_t) Dump() []byte {
	c.lock.Acquire()
	defer c.lock.Release()
	return c.cb.Snapshot()
}
