package asan

import "testing"

func TestDrainClearsRegistry(t *testing.T) {
	Drain()
	ReportError(AsanError{Kind: KindLeak, Addr: 0x1000})
	if Len() != 1 {
		t.Fatalf("Len() = %d, want 1", Len())
	}
	errs := Drain()
	if len(errs) != 1 {
		t.Fatalf("Drain() returned %d entries, want 1", len(errs))
	}
	if Len() != 0 {
		t.Fatalf("Len() after Drain = %d, want 0", Len())
	}
}

func TestErrorKindString(t *testing.T) {
	cases := map[ErrorKind]string{
		KindUnallocatedFree: "unallocated-free",
		KindDoubleFree:      "double-free",
		KindLeak:            "leak",
		KindOutOfBounds:     "out-of-bounds",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("ErrorKind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestAsanErrorStringOutOfBoundsDirection(t *testing.T) {
	read := AsanError{Kind: KindOutOfBounds, Addr: 0x1000, Width: 4, Write: false}
	write := AsanError{Kind: KindOutOfBounds, Addr: 0x1000, Width: 4, Write: true}
	if got := read.String(); got == write.String() {
		t.Fatalf("read and write out-of-bounds strings should differ, both = %q", got)
	}
}
