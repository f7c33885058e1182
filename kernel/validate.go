// validate.go implements component A: the argument validation every
// other handler calls before touching any kernel state. checkUserVA,
// checkPerm and checkUserMem mutate nothing on failure — that's what lets
// every other handler validate-then-act without a rollback step.
// checkUserMemOrDestroy is the exception: on failure it destroys the
// environment it was checking.
package kernel

import (
	"exoknl/errs"
	"exoknl/memlayout"
)

// checkUserVA requires va to be page-aligned and strictly below UTOP
// (§4.A, §6's VA constraint).
func checkUserVA(va uintptr) errs.Err_t {
	if !memlayout.InUserRange(va) || !memlayout.PageAligned(va) {
		return errs.Invalid
	}
	return 0
}

// checkPerm requires the mandatory USER|PRESENT bits and rejects any
// bit outside the syscall-settable mask (§6's permission mask).
func checkPerm(perm memlayout.Perm) errs.Err_t {
	if perm&memlayout.PTE_U == 0 || perm&memlayout.PTE_P == 0 {
		return errs.Invalid
	}
	if perm&^memlayout.SyscallMask != 0 {
		return errs.Invalid
	}
	return 0
}

// checkUserMem reads n bytes starting at va from e's address space,
// requiring every byte to be mapped with at least the bits in want. It
// returns the copied bytes and true on success; on any gap or
// insufficient permission it returns false without copying anything
// partial.
func (k *Kernel) checkUserMem(e *Env, va uintptr, n int, want memlayout.Perm) ([]byte, bool) {
	if n < 0 {
		return nil, false
	}
	out := make([]byte, 0, min(n, memlayout.PGSIZE))
	for off := 0; off < n; {
		addr := va + uintptr(off)
		pageva := addr &^ uintptr(memlayout.PGOFFSET)
		pa, perm, ok := e.Pgdir.Lookup(pageva)
		if !ok || perm&want != want {
			return nil, false
		}
		pageoff := int(addr - pageva)
		take := memlayout.PGSIZE - pageoff
		if remain := n - off; take > remain {
			take = remain
		}
		out = append(out, k.phys.Bytes(pa)[pageoff:pageoff+take]...)
		off += take
	}
	return out, true
}

// checkUserMemOrDestroy is check_user_mem's documented "kill on bad
// pointer" policy (§4.A, §7): on any inaccessible byte, e is destroyed
// immediately rather than the call returning an error code, since the
// caller handed the kernel a pointer it had no business handing it.
func (k *Kernel) checkUserMemOrDestroy(cur, e *Env, va uintptr, n int, want memlayout.Perm) ([]byte, bool) {
	b, ok := k.checkUserMem(e, va, n, want)
	if !ok {
		k.destroy(cur, e, "bad user memory access")
	}
	return b, ok
}
