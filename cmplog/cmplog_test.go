package cmplog

import "testing"

func TestRecordCompareAndEntries(t *testing.T) {
	r := NewRuntime()
	r.RecordCompare(0x1000, []byte{1, 2, 3, 4}, []byte{5, 6, 7, 8})
	r.RecordCompare(0x1000, []byte{9, 9}, []byte{8, 8})

	entries := r.EntriesForPC(0x1000)
	if len(entries) != 2 {
		t.Fatalf("EntriesForPC = %d entries, want 2", len(entries))
	}
	if entries[0].PC != 0x1000 {
		t.Fatalf("Entry.PC = %#x, want 0x1000", entries[0].PC)
	}
}

func TestRecordCompareCapsPerSlot(t *testing.T) {
	r := NewRuntime()
	for i := 0; i < EntriesPerSlot+10; i++ {
		r.RecordCompare(0x2000, []byte{byte(i)}, []byte{byte(i + 1)})
	}
	entries := r.EntriesForPC(0x2000)
	if len(entries) != EntriesPerSlot {
		t.Fatalf("len(entries) = %d, want capped at %d", len(entries), EntriesPerSlot)
	}
}

func TestRecordCompareResetsSlotOnDifferentPC(t *testing.T) {
	r := NewRuntime()
	r.RecordCompare(0x3000, []byte{1}, []byte{2})
	// An address never recorded reads back as nil.
	if got := r.EntriesForPC(0x4000); got != nil {
		t.Fatalf("EntriesForPC(unrecorded) = %v, want nil", got)
	}

	// A different PC that hashes into 0x3000's slot takes the slot over
	// and drops 0x3000's entries.
	want := hashPC(0x3000) & (CmpMapSize - 1)
	other := uintptr(0x3001)
	for hashPC(other)&(CmpMapSize-1) != want {
		other++
	}
	r.RecordCompare(other, []byte{3}, []byte{4})
	if got := r.EntriesForPC(0x3000); got != nil {
		t.Fatalf("EntriesForPC(0x3000) after collision = %v, want nil", got)
	}
	if got := r.EntriesForPC(other); len(got) != 1 {
		t.Fatalf("EntriesForPC(%#x) = %d entries, want 1", other, len(got))
	}
}

func TestEntriesAggregatesAllSlots(t *testing.T) {
	r := NewRuntime()
	r.RecordCompare(0x1000, []byte{1}, []byte{2})
	r.RecordCompare(0x2000, []byte{3}, []byte{4})
	all := r.Entries()
	if len(all) != 2 {
		t.Fatalf("Entries() = %d, want 2", len(all))
	}
}
