package instrument

import (
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

type fakeCoverage struct{ recorded []uintptr }

func (f *fakeCoverage) Init(ranges *RangeMap, modules []string) {}
func (f *fakeCoverage) PreExec(input []byte) error               { return nil }
func (f *fakeCoverage) PostExec(input []byte) error              { return nil }
func (f *fakeCoverage) RecordBlock(addr uintptr)                 { f.recorded = append(f.recorded, addr) }

type fakeShadow struct{ checked []MemoryAccess }

func (f *fakeShadow) Init(ranges *RangeMap, modules []string) {}
func (f *fakeShadow) PreExec(input []byte) error               { return nil }
func (f *fakeShadow) PostExec(input []byte) error              { return nil }
func (f *fakeShadow) CheckAccess(pc uintptr, access MemoryAccess, regs RegisterFile) {
	f.checked = append(f.checked, access)
}

func TestHandleBlockSkipsUninstrumentedAddress(t *testing.T) {
	ranges := NewRangeMap()
	ranges.Insert(0x1000, 0x2000, ModuleInfo{ID: 1, Path: "/lib/a.so"})

	cov := &fakeCoverage{}
	h := NewHelper(ranges, Runtimes{cov}, nil, Mode32)

	// mov eax, [ebx]
	h.HandleBlock(0x5000, []byte{0x8B, 0x03}, MapRegisterFile{})

	if len(cov.recorded) != 0 {
		t.Fatalf("expected no coverage recording outside instrumented ranges, got %v", cov.recorded)
	}
}

func TestHandleBlockRecordsCoverageAndShadowChecks(t *testing.T) {
	ranges := NewRangeMap()
	ranges.Insert(0x1000, 0x2000, ModuleInfo{ID: 1, Path: "/lib/a.so"})

	cov := &fakeCoverage{}
	shadow := &fakeShadow{}
	h := NewHelper(ranges, Runtimes{cov, shadow}, nil, Mode32)

	// mov eax, [ebx] ; cmp eax, [ebx]
	code := []byte{0x8B, 0x03, 0x3B, 0x03}
	h.HandleBlock(0x1100, code, MapRegisterFile{x86asm.EBX: 0x2000})

	if len(cov.recorded) != 1 || cov.recorded[0] != 0x1100 {
		t.Fatalf("coverage recorded = %v, want [0x1100]", cov.recorded)
	}
	if len(shadow.checked) != 2 {
		t.Fatalf("shadow checked %d accesses, want 2 (one per memory-touching instruction)", len(shadow.checked))
	}
	for _, access := range shadow.checked {
		if access.Base != x86asm.EBX {
			t.Fatalf("access.Base = %v, want EBX", access.Base)
		}
	}
}

func TestHandleBlockSkipsDecodeLoopWithNoConsumers(t *testing.T) {
	ranges := NewRangeMap()
	ranges.Insert(0x1000, 0x2000, ModuleInfo{ID: 1, Path: "/lib/a.so"})
	cov := &fakeCoverage{}
	h := NewHelper(ranges, Runtimes{cov}, nil, Mode32)

	// malformed trailing bytes would make x86asm.Decode fail if reached;
	// with no ShadowChecker/CompareRecorder registered, HandleBlock must
	// return before ever decoding them.
	h.HandleBlock(0x1100, []byte{0x90, 0xFF, 0xFF}, MapRegisterFile{})
	if len(cov.recorded) != 1 {
		t.Fatalf("coverage recorded = %v, want exactly one entry", cov.recorded)
	}
}
