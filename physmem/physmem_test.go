package physmem

import "testing"

func newTestAllocator(t *testing.T, n int) *Allocator {
	t.Helper()
	a, err := New(n)
	if err != nil {
		t.Fatalf("New(%d): %v", n, err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAllocFreeRoundTrip(t *testing.T) {
	a := newTestAllocator(t, 4)
	if got := a.Free(); got != 4 {
		t.Fatalf("Free() = %d, want 4", got)
	}
	pa, ok := a.Alloc()
	if !ok {
		t.Fatal("Alloc() failed on a non-empty arena")
	}
	if got := a.Free(); got != 3 {
		t.Fatalf("Free() after one alloc = %d, want 3", got)
	}
	a.Refup(pa)
	if got := a.Refcnt(pa); got != 1 {
		t.Fatalf("Refcnt() = %d, want 1", got)
	}
	if freed := a.Refdown(pa); !freed {
		t.Fatal("Refdown() did not report the page as freed")
	}
	if got := a.Free(); got != 4 {
		t.Fatalf("Free() after refdown to zero = %d, want 4", got)
	}
}

func TestAllocExhaustion(t *testing.T) {
	a := newTestAllocator(t, 2)
	if _, ok := a.Alloc(); !ok {
		t.Fatal("first Alloc() should succeed")
	}
	if _, ok := a.Alloc(); !ok {
		t.Fatal("second Alloc() should succeed")
	}
	if _, ok := a.Alloc(); ok {
		t.Fatal("third Alloc() on a two-page arena should fail")
	}
}

func TestAllocZeroesPage(t *testing.T) {
	a := newTestAllocator(t, 1)
	pa, ok := a.Alloc()
	if !ok {
		t.Fatal("Alloc() failed")
	}
	a.Refup(pa)
	b := a.Bytes(pa)
	for i := range b {
		b[i] = 0xff
	}
	a.Refdown(pa)
	pa2, ok := a.Alloc()
	if !ok {
		t.Fatal("second Alloc() failed")
	}
	for _, b := range a.Bytes(pa2) {
		if b != 0 {
			t.Fatal("reallocated page was not zeroed")
		}
	}
}

func TestContains(t *testing.T) {
	a := newTestAllocator(t, 2)
	if !a.Contains(0) {
		t.Error("Contains(0) should be true for a 2-page arena")
	}
	if !a.Contains(PGSIZE) {
		t.Error("Contains(PGSIZE) should be true for a 2-page arena")
	}
	if a.Contains(2 * PGSIZE) {
		t.Error("Contains(2*PGSIZE) should be false, past the arena")
	}
	if a.Contains(1) {
		t.Error("Contains(1) should be false, unaligned")
	}
}

func TestRefdownUnderflowPanics(t *testing.T) {
	a := newTestAllocator(t, 1)
	pa, _ := a.Alloc()
	defer func() {
		if recover() == nil {
			t.Fatal("Refdown on a zero-refcount page should panic")
		}
	}()
	a.Refdown(pa)
}
