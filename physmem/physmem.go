// Package physmem is the reference-counted physical page allocator the
// address-space operations (component B) wrap. It is the concrete,
// minimal stand-in for the real physical allocator the spec lists as an
// external collaborator (page_alloc/page_free/page_lookup/page_insert/
// page_remove, §1) — sophisticated allocation policy is explicitly out
// of scope; what matters here is that pages are refcounted and
// reclaimed at zero, the invariant §3.5 requires of any shared page.
package physmem

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Pa_t is a physical address: a byte offset into the arena, always a
// multiple of PGSIZE.
type Pa_t uintptr

// PGSIZE mirrors memlayout.PGSIZE; physmem does not import memlayout to
// avoid a needless cross-package coupling for a single constant shared
// by convention, the same way biscuit's mem package defines its own
// PGSIZE rather than importing it from elsewhere.
const PGSIZE = 1 << 12

// Page is a single physical page's byte storage.
type Page = [PGSIZE]byte

const noNext = ^uint32(0)

type slot struct {
	refcnt int32
	next   uint32
}

// Allocator is the physical page arena. Pages are backed by an anonymous
// mmap region rather than ordinary Go-heap slices, so a page's
// reference count is the only thing keeping it alive — the garbage
// collector has no opinion about physical memory, matching how a real
// frame allocator is invisible to any language runtime sitting on top
// of it.
type Allocator struct {
	mu     sync.Mutex
	arena  []byte // len == npages*PGSIZE, mmap'd
	slots  []slot
	freeHd uint32
	nfree  int
}

// New reserves npages physical pages backed by an anonymous mmap arena.
func New(npages int) (*Allocator, error) {
	if npages <= 0 {
		panic("physmem: npages must be positive")
	}
	arena, err := unix.Mmap(-1, 0, npages*PGSIZE, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("physmem: mmap %d pages: %w", npages, err)
	}
	a := &Allocator{
		arena: arena,
		slots: make([]slot, npages),
	}
	a.freeHd = 0
	a.nfree = npages
	for i := 0; i < npages; i++ {
		if i == npages-1 {
			a.slots[i].next = noNext
		} else {
			a.slots[i].next = uint32(i + 1)
		}
	}
	return a, nil
}

// Close releases the backing mmap arena. It is not safe to use the
// allocator afterward.
func (a *Allocator) Close() error {
	return unix.Munmap(a.arena)
}

// Contains reports whether p names a page-aligned address within this
// allocator's arena, without panicking on a bad value — used by
// map_kernel_page, which must reject an arbitrary caller-supplied
// physical address rather than crash on one.
func (a *Allocator) Contains(p Pa_t) bool {
	off := uintptr(p)
	return off%PGSIZE == 0 && off < uintptr(len(a.arena))
}

func (a *Allocator) idx(p Pa_t) uint32 {
	off := uintptr(p)
	if off%PGSIZE != 0 || int(off) >= len(a.arena) {
		panic("physmem: address out of range or misaligned")
	}
	return uint32(off / PGSIZE)
}

// Alloc reserves a zeroed page and returns its address with a refcount
// of zero; the caller (almost always page_insert) is expected to Refup
// it immediately. It reports false when the arena is exhausted.
func (a *Allocator) Alloc() (Pa_t, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.freeHd == noNext {
		return 0, false
	}
	i := a.freeHd
	a.freeHd = a.slots[i].next
	a.nfree--
	if a.slots[i].refcnt != 0 {
		panic("physmem: free page has nonzero refcount")
	}
	pg := a.pageAt(i)
	for j := range pg {
		pg[j] = 0
	}
	return Pa_t(uintptr(i) * PGSIZE), true
}

func (a *Allocator) pageAt(i uint32) []byte {
	off := uintptr(i) * PGSIZE
	return a.arena[off : off+PGSIZE]
}

// Bytes returns the byte slice backing the page at p. The slice aliases
// the allocator's arena directly; callers must not retain it past an
// Unmap/Free of the page.
func (a *Allocator) Bytes(p Pa_t) []byte {
	return a.pageAt(a.idx(p))
}

// Refup increments p's reference count.
func (a *Allocator) Refup(p Pa_t) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.idx(p)
	if a.slots[i].refcnt < 0 {
		panic("physmem: refup on freed page")
	}
	a.slots[i].refcnt++
}

// Refdown decrements p's reference count and frees the page when it
// reaches zero, reporting whether that happened.
func (a *Allocator) Refdown(p Pa_t) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.idx(p)
	if a.slots[i].refcnt <= 0 {
		panic("physmem: refdown on a page with no references")
	}
	a.slots[i].refcnt--
	if a.slots[i].refcnt != 0 {
		return false
	}
	a.slots[i].next = a.freeHd
	a.freeHd = i
	a.nfree++
	return true
}

// Refcnt reports p's current reference count.
func (a *Allocator) Refcnt(p Pa_t) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.slots[a.idx(p)].refcnt)
}

// Free counts the number of pages currently on the free list.
func (a *Allocator) Free() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nfree
}
