// Package accnt accumulates per-environment CPU-time usage. It is not
// named by the spec, but §9's re-architecture guidance assumes a real
// scheduler sits below this core, and any real scheduler needs per-env
// accounting to make decisions; this is the ambient bookkeeping a
// syscall dispatcher naturally threads through on every entry/exit,
// modeled on biscuit's accnt package.
package accnt

import (
	"sync"
	"sync/atomic"
	"time"
)

// Accnt_t tracks the system-time nanoseconds an environment has spent
// inside the kernel. User-time is not tracked here since this core has
// no notion of "running in user mode" outside of a syscall — that
// belongs to the scheduler this package explicitly does not implement.
type Accnt_t struct {
	Sysns int64
	sync.Mutex
}

// Enter returns the current time so a matching Leave can compute the
// elapsed system time for this syscall.
func (a *Accnt_t) Enter() int64 {
	return time.Now().UnixNano()
}

// Leave adds the nanoseconds elapsed since start to the system-time
// counter.
func (a *Accnt_t) Leave(start int64) {
	atomic.AddInt64(&a.Sysns, time.Now().UnixNano()-start)
}

// Fetch returns a consistent snapshot of accumulated system time.
func (a *Accnt_t) Fetch() time.Duration {
	return time.Duration(atomic.LoadInt64(&a.Sysns))
}
