// Package pgdir implements a single environment's page directory: the
// va -> (physical page, permission) mapping that page_alloc, page_map,
// page_unmap and the page-fault-free IPC page transfer all manipulate.
// A real page directory is a multi-level radix tree walked by hardware;
// this one collapses that walk into a map keyed by virtual address,
// since the core's "value" (per spec.md §1) is the checked wrapper
// logic and the refcount bookkeeping, not a from-scratch MMU. Every
// exported method assumes the caller already holds the kernel's big
// lock (§5) — no internal locking is done here, mirroring how
// vm/as.go's Page_insert/Page_remove assume the pmap lock is already
// held.
package pgdir

import (
	"exoknl/memlayout"
	"exoknl/physmem"
)

type entry struct {
	pa   physmem.Pa_t
	perm memlayout.Perm
}

// Dir is one environment's address-space mapping.
type Dir struct {
	entries map[uintptr]entry
}

// New returns an empty page directory.
func New() *Dir {
	return &Dir{entries: make(map[uintptr]entry)}
}

// Insert maps va to pa with perm, incrementing pa's reference count. An
// existing mapping at va is implicitly replaced: its old page's
// reference count is dropped after the new page's is taken, so
// remapping a va to the very same page it already held is a no-op on
// the refcount rather than a transient drop to zero.
func (d *Dir) Insert(phys *physmem.Allocator, va uintptr, pa physmem.Pa_t, perm memlayout.Perm) {
	phys.Refup(pa)
	if old, ok := d.entries[va]; ok {
		phys.Refdown(old.pa)
	}
	d.entries[va] = entry{pa: pa, perm: perm}
}

// Lookup returns the page and permission mapped at va, if any.
func (d *Dir) Lookup(va uintptr) (physmem.Pa_t, memlayout.Perm, bool) {
	e, ok := d.entries[va]
	return e.pa, e.perm, ok
}

// Remove unmaps va, dropping the underlying page's reference count. It
// reports whether a mapping was actually present, matching page_unmap's
// "silently succeed on an unmapped va" contract (the caller decides
// whether an absent mapping is even worth reporting).
func (d *Dir) Remove(phys *physmem.Allocator, va uintptr) bool {
	e, ok := d.entries[va]
	if !ok {
		return false
	}
	delete(d.entries, va)
	phys.Refdown(e.pa)
	return true
}

// Clear unmaps every mapping in the directory, used when an environment
// is destroyed.
func (d *Dir) Clear(phys *physmem.Allocator) {
	for va := range d.entries {
		d.Remove(phys, va)
	}
}

// Len reports the number of live mappings, mainly for tests and the
// kdebug page-residency profile.
func (d *Dir) Len() int {
	return len(d.entries)
}

// Each calls f for every (va, pa, perm) mapping, in unspecified order.
func (d *Dir) Each(f func(va uintptr, pa physmem.Pa_t, perm memlayout.Perm)) {
	for va, e := range d.entries {
		f(va, e.pa, e.perm)
	}
}
