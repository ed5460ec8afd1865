package asan

import (
	"testing"

	"github.com/intuitivelabs/natfuzz/instrument"
)

func TestRuntimeCheckAccessReportsOutOfBounds(t *testing.T) {
	a := newTestAllocator(t)
	p := a.Alloc(16, 0)
	if p == 0 {
		t.Fatal("Alloc(16) returned null")
	}
	Drain()

	r := NewRuntime(a)
	access := instrument.MemoryAccess{Base: 0, Disp: int64(p) + 16, Width: 1}
	r.CheckAccess(0, access, instrument.MapRegisterFile{})

	errs := Drain()
	if len(errs) != 1 || errs[0].Kind != KindOutOfBounds {
		t.Fatalf("errs = %+v, want one OutOfBounds", errs)
	}
	if errs[0].Addr != p+16 {
		t.Fatalf("errs[0].Addr = %#x, want %#x", errs[0].Addr, p+16)
	}
}

func TestRuntimeCheckAccessAllowsInBoundsAccess(t *testing.T) {
	a := newTestAllocator(t)
	p := a.Alloc(16, 0)
	if p == 0 {
		t.Fatal("Alloc(16) returned null")
	}
	Drain()

	r := NewRuntime(a)
	access := instrument.MemoryAccess{Base: 0, Disp: int64(p), Width: 8}
	r.CheckAccess(0, access, instrument.MapRegisterFile{})

	if errs := Drain(); len(errs) != 0 {
		t.Fatalf("errs = %+v, want none for an in-bounds access", errs)
	}
}

func TestRuntimeCheckAccessSkipsUnmanagedAddress(t *testing.T) {
	a := newTestAllocator(t)
	Drain()

	r := NewRuntime(a)
	// An address nowhere near the allocator's shadow region: must never
	// reach CheckShadow, which would read uncommitted (PROT_NONE) shadow
	// memory for it.
	access := instrument.MemoryAccess{Base: 0, Disp: 0x10, Width: 1}
	r.CheckAccess(0, access, instrument.MapRegisterFile{})

	if errs := Drain(); len(errs) != 0 {
		t.Fatalf("errs = %+v, want none for an address outside the managed region", errs)
	}
}

func TestRuntimePostExecReportsLeak(t *testing.T) {
	a := newTestAllocator(t)
	p := a.Alloc(8, 0)
	if p == 0 {
		t.Fatal("Alloc(8) returned null")
	}
	Drain()

	r := NewRuntime(a)
	if err := r.PostExec(nil); err != nil {
		t.Fatalf("PostExec: %v", err)
	}
	errs := Drain()
	if len(errs) != 1 || errs[0].Kind != KindLeak {
		t.Fatalf("errs = %+v, want one Leak", errs)
	}
}
