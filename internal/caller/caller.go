// Package caller dumps the calling goroutine's stack, used by each
// process goroutine's panic recovery (proc.Proc_t.body) to attach a
// file/line trail to a panic before it propagates.
package caller

import (
	"fmt"
	"runtime"
)

/// Callerdump formats the call stack starting at the given depth as
/// "file:line" frames, most recent first.
func Callerdump(start int) string {
	i := start
	s := ""
	for {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		i++
		if s == "" {
			s = fmt.Sprintf("%s:%d\n", f, l)
		} else {
			s += fmt.Sprintf("\t<-%s:%d\n", f, l)
		}
	}
	return s
}
