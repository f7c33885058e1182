// console.go implements component F's two syscall handlers on top of
// the console package: cputs reads a caller-supplied buffer out of the
// caller's address space (destroying it on a bad pointer, same policy
// as sys_cputs' user_mem_assert) and cgetc is a non-blocking read with
// no failure mode.
package kernel

import (
	"exoknl/errs"
	"exoknl/memlayout"
)

// Cputs copies len bytes starting at va out of cur's address space and
// writes them to the console.
func (k *Kernel) Cputs(cur *Env, va uintptr, n int) errs.Err_t {
	b, ok := k.checkUserMemOrDestroy(cur, cur, va, n, memlayout.PTE_U|memlayout.PTE_P)
	if !ok {
		return errs.Invalid
	}
	k.Console.Puts(b)
	return 0
}

// Cgetc pops the oldest byte from the console's ring buffer (the same
// buffer Cputs writes into), or returns 0 if the buffer is empty.
func (k *Kernel) Cgetc() byte {
	return k.Console.Getc()
}

// TimeMsec reports elapsed time since boot in milliseconds. The spec
// lists a real hardware or host-OS clock as an external collaborator
// (§1, §4.F); this core has no wall-clock source of its own to plug in
// until one is wired at New, so it returns 0 — a caller relying on
// TimeMsec for anything beyond "does this number increase" needs a real
// clock connected first.
func (k *Kernel) TimeMsec() int64 {
	return 0
}
