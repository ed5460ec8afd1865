package coverage

import "testing"

func TestRecordBlockSaturates(t *testing.T) {
	b := NewBitmap()
	addr := uintptr(0x1000)
	for i := 0; i < 300; i++ {
		b.RecordBlock(addr)
	}
	_, n := b.MapMutPtr()
	if n != MapSize {
		t.Fatalf("MapMutPtr length = %d, want %d", n, MapSize)
	}
	found := false
	for _, v := range b.Snapshot() {
		if v == 0xFF {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected some bitmap entry to saturate at 0xFF")
	}
}

func TestRecordBlockStableHash(t *testing.T) {
	a := NewBitmap()
	b := NewBitmap()
	addrs := []uintptr{0x1000, 0x2000, 0x1000, 0x3000}
	for _, a1 := range addrs {
		a.RecordBlock(a1)
	}
	for _, a2 := range addrs {
		b.RecordBlock(a2)
	}
	if a.Snapshot() == nil || b.Snapshot() == nil {
		t.Fatal("unexpected nil snapshot")
	}
	sa, sb := a.Snapshot(), b.Snapshot()
	for i := range sa {
		if sa[i] != sb[i] {
			t.Fatalf("hash not stable across identical runs at index %d: %d != %d", i, sa[i], sb[i])
		}
	}
}

func TestResetClearsTable(t *testing.T) {
	b := NewBitmap()
	b.RecordBlock(0x4000)
	if b.Hits() == 0 {
		t.Fatal("expected at least one hit before reset")
	}
	b.Reset()
	if b.Hits() != 0 {
		t.Fatalf("Hits() after Reset = %d, want 0", b.Hits())
	}
}
