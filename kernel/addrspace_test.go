package kernel

import (
	"testing"

	"exoknl/errs"
	"exoknl/memlayout"
)

func TestPageAllocAndLookup(t *testing.T) {
	k, _, _ := newTestKernel(t)
	root, _ := k.NewRootEnv()

	k.mu.Lock()
	err := k.PageAlloc(root, 0, 0x1000, memlayout.PTE_U|memlayout.PTE_P|memlayout.PTE_W)
	k.mu.Unlock()
	if err != 0 {
		t.Fatalf("PageAlloc: %v", err)
	}
	if root.Pgdir.Len() != 1 {
		t.Fatalf("Pgdir.Len() = %d, want 1", root.Pgdir.Len())
	}
}

func TestPageAllocRejectsUnalignedVA(t *testing.T) {
	k, _, _ := newTestKernel(t)
	root, _ := k.NewRootEnv()

	k.mu.Lock()
	err := k.PageAlloc(root, 0, 0x1001, memlayout.PTE_U|memlayout.PTE_P)
	k.mu.Unlock()
	if err != errs.Invalid {
		t.Fatalf("PageAlloc(unaligned) = %v, want Invalid", err)
	}
}

func TestPageAllocRejectsBadPerm(t *testing.T) {
	k, _, _ := newTestKernel(t)
	root, _ := k.NewRootEnv()

	k.mu.Lock()
	err := k.PageAlloc(root, 0, 0x1000, memlayout.PTE_U)
	k.mu.Unlock()
	if err != errs.Invalid {
		t.Fatalf("PageAlloc(missing PTE_P) = %v, want Invalid", err)
	}
}

func TestPageMapDeniesWriteEscalation(t *testing.T) {
	k, _, _ := newTestKernel(t)
	root, _ := k.NewRootEnv()

	k.mu.Lock()
	childID, _ := k.Exofork(root)
	if err := k.PageAlloc(root, 0, 0x1000, memlayout.PTE_U|memlayout.PTE_P); err != 0 {
		t.Fatalf("PageAlloc: %v", err)
	}
	err := k.PageMap(root, 0, 0x1000, childID, 0x2000, memlayout.PTE_U|memlayout.PTE_P|memlayout.PTE_W)
	k.mu.Unlock()
	if err != errs.Invalid {
		t.Fatalf("PageMap(escalate to writable) = %v, want Invalid", err)
	}
}

func TestPageMapSharesPage(t *testing.T) {
	k, _, _ := newTestKernel(t)
	root, _ := k.NewRootEnv()

	k.mu.Lock()
	childID, _ := k.Exofork(root)
	child, _ := k.lookupEnv(root, childID, true)
	if err := k.PageAlloc(root, 0, 0x1000, memlayout.PTE_U|memlayout.PTE_P|memlayout.PTE_W); err != 0 {
		t.Fatalf("PageAlloc: %v", err)
	}
	if err := k.PageMap(root, 0, 0x1000, childID, 0x2000, memlayout.PTE_U|memlayout.PTE_P); err != 0 {
		t.Fatalf("PageMap: %v", err)
	}
	srcPa, _, _ := root.Pgdir.Lookup(0x1000)
	dstPa, _, ok := child.Pgdir.Lookup(0x2000)
	k.mu.Unlock()
	if !ok || dstPa != srcPa {
		t.Fatalf("child mapping at 0x2000 = (%v, %v), want shared page %v", dstPa, ok, srcPa)
	}
}

func TestPageUnmapIdempotent(t *testing.T) {
	k, _, _ := newTestKernel(t)
	root, _ := k.NewRootEnv()

	k.mu.Lock()
	if err := k.PageUnmap(root, 0, 0x9000); err != 0 {
		t.Fatalf("PageUnmap on never-mapped va: %v", err)
	}
	k.mu.Unlock()
}

func TestSbrkGrowsAndQueriesBreak(t *testing.T) {
	k, _, _ := newTestKernel(t)
	root, _ := k.NewRootEnv()

	k.mu.Lock()
	brk, err := k.Sbrk(root, memlayout.PGSIZE)
	k.mu.Unlock()
	if err != 0 {
		t.Fatalf("Sbrk(PGSIZE): %v", err)
	}
	if brk != memlayout.PGSIZE {
		t.Fatalf("Sbrk(PGSIZE) = %#x, want %#x", brk, memlayout.PGSIZE)
	}

	k.mu.Lock()
	same, err := k.Sbrk(root, 0)
	k.mu.Unlock()
	if err != 0 || same != brk {
		t.Fatalf("Sbrk(0) = (%#x, %v), want (%#x, 0)", same, err, brk)
	}
}

func TestSbrkOverflowDestroysCaller(t *testing.T) {
	k, _, _ := newTestKernel(t)
	root, _ := k.NewRootEnv()

	k.mu.Lock()
	_, err := k.Sbrk(root, memlayout.ULIM+memlayout.PGSIZE)
	k.mu.Unlock()
	if err != errs.Invalid {
		t.Fatalf("Sbrk(huge) = %v, want Invalid", err)
	}
	if root.Status != StatusFree {
		t.Fatalf("root.Status = %v, want %v after sbrk overflow destroy", root.Status, StatusFree)
	}
}

func TestMapKernelPageRejectsUnownedPhysAddr(t *testing.T) {
	k, _, _ := newTestKernel(t)
	root, _ := k.NewRootEnv()

	k.mu.Lock()
	err := k.MapKernelPage(root, PhysPage(1<<40), 0x3000)
	k.mu.Unlock()
	if err != errs.Invalid {
		t.Fatalf("MapKernelPage(bogus pa) = %v, want Invalid", err)
	}
}
