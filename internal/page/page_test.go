package page

import "testing"

func TestAllocZeroesAndAccounts(t *testing.T) {
	var a Allocator_t
	a.Init(4)

	pa, pg, ok := a.Alloc()
	if !ok {
		t.Fatal("alloc should succeed")
	}
	pg[0] = 0xff
	a.Free(pa)

	alloc, free := a.Counts()
	if alloc != 1 || free != 1 {
		t.Fatalf("counts = (%d,%d), want (1,1)", alloc, free)
	}

	_, pg2, ok := a.Alloc()
	if !ok {
		t.Fatal("re-alloc should succeed")
	}
	if pg2[0] != 0 {
		t.Fatal("reallocated page was not zeroed")
	}
}

func TestExhaustion(t *testing.T) {
	var a Allocator_t
	a.Init(2)
	for i := 0; i < 2; i++ {
		if _, _, ok := a.Alloc(); !ok {
			t.Fatalf("alloc %d should succeed", i)
		}
	}
	if _, _, ok := a.Alloc(); ok {
		t.Fatal("alloc should fail once exhausted")
	}
}

func TestDoubleFreePanics(t *testing.T) {
	var a Allocator_t
	a.Init(1)
	pa, _, _ := a.Alloc()
	a.Free(pa)
	defer func() {
		if recover() == nil {
			t.Fatal("double free should panic")
		}
	}()
	a.Free(pa)
}
