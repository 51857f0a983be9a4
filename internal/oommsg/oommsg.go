// Package oommsg carries out-of-memory notifications from an
// allocator to whatever daemon is watching for them, decoupling the
// allocator from a specific recovery policy. The PID allocator in
// internal/proc is the one sender; the page and slab allocators report
// exhaustion to their callers instead.
package oommsg

/// Oommsg_t is sent on Ch when an allocator is about to fail a
/// request it cannot satisfy. Need is the size of the request that
/// triggered the notification; Resume, if non-nil, lets a listener
/// tell the caller whether it freed enough memory to retry.
type Oommsg_t struct {
	Need   int
	Resume chan bool
}

/// Ch is notified when the system runs out of memory. It is buffered
/// (16 messages); Notify never blocks waiting for a listener.
var Ch = make(chan Oommsg_t, 16)

/// Notify posts need bytes worth of pressure, non-blockingly: with no
/// listener installed (the common case outside of the allocators'
/// panic paths), the message is simply dropped once the channel's
/// small buffer is full.
func Notify(need int, resume chan bool) {
	select {
	case Ch <- Oommsg_t{Need: need, Resume: resume}:
	default:
	}
}
