package instrument

import (
	"bytes"
	"testing"
	"unsafe"
)

func TestSelfEngineAttachDiscoversBlocks(t *testing.T) {
	// nop ; jmp rel8 +0 ; nop
	code := []byte{0x90, 0xEB, 0x00, 0x90}
	addr := uintptr(unsafe.Pointer(&code[0]))

	ranges := NewRangeMap()
	ranges.Insert(addr, addr+uintptr(len(code)), ModuleInfo{ID: 1, Path: "test"})

	e := NewSelfEngine(ranges, Mode64)
	var blocks []uintptr
	if err := e.Attach(func(pc uintptr, c []byte, regs RegisterFile) {
		blocks = append(blocks, pc)
	}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if len(blocks) != 1 || blocks[0] != addr {
		t.Fatalf("blocks = %v, want [%#x]", blocks, addr)
	}
}

func TestSelfEngineReadMemoryRejectsAddressOutsideRanges(t *testing.T) {
	e := NewSelfEngine(NewRangeMap(), Mode64)
	if _, err := e.ReadMemory(0x1234, 4); err == nil {
		t.Fatal("expected an error reading an address outside any discovered range")
	}
}

func TestSelfEngineReadMemoryReadsWithinRange(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	addr := uintptr(unsafe.Pointer(&buf[0]))

	ranges := NewRangeMap()
	ranges.Insert(addr, addr+uintptr(len(buf)), ModuleInfo{})

	e := NewSelfEngine(ranges, Mode64)
	got, err := e.ReadMemory(addr, len(buf))
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if !bytes.Equal(got, buf) {
		t.Fatalf("ReadMemory = %v, want %v", got, buf)
	}
}

func TestSelfEngineDetachStopsAttach(t *testing.T) {
	code := make([]byte, 64)
	for i := range code {
		code[i] = 0x90 // nop: never a block boundary, forces a full scan
	}
	addr := uintptr(unsafe.Pointer(&code[0]))

	ranges := NewRangeMap()
	ranges.Insert(addr, addr+uintptr(len(code)), ModuleInfo{})

	e := NewSelfEngine(ranges, Mode64)
	e.Detach()
	if err := e.Attach(func(pc uintptr, c []byte, regs RegisterFile) {
		t.Fatal("onBlock should never fire after Detach")
	}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
}
