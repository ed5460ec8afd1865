package instrument

import (
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

func TestDecodeInstructionNop(t *testing.T) {
	inst, err := DecodeInstruction([]byte{0x90}, Mode32)
	if err != nil {
		t.Fatalf("DecodeInstruction(nop): %v", err)
	}
	if inst.Op != x86asm.NOP {
		t.Fatalf("Op = %v, want NOP", inst.Op)
	}
	if inst.Len != 1 {
		t.Fatalf("Len = %d, want 1", inst.Len)
	}
}

func TestIsInterestingInstructionDetectsMemoryAccess(t *testing.T) {
	// mov eax, [ebx]
	inst, err := DecodeInstruction([]byte{0x8B, 0x03}, Mode32)
	if err != nil {
		t.Fatalf("DecodeInstruction: %v", err)
	}
	access, ok := IsInterestingInstruction(inst)
	if !ok {
		t.Fatal("expected a memory access to be detected")
	}
	if access.Base != x86asm.EBX {
		t.Fatalf("Base = %v, want EBX", access.Base)
	}
}

func TestIsInterestingInstructionExcludesLEA(t *testing.T) {
	// lea eax, [ebx+4]
	inst, err := DecodeInstruction([]byte{0x8D, 0x43, 0x04}, Mode32)
	if err != nil {
		t.Fatalf("DecodeInstruction: %v", err)
	}
	if _, ok := IsInterestingInstruction(inst); ok {
		t.Fatal("LEA should never be reported as an interesting memory access")
	}
}

func TestIsInterestingCompareDetectsCmp(t *testing.T) {
	// cmp eax, [ebx]
	inst, err := DecodeInstruction([]byte{0x3B, 0x03}, Mode32)
	if err != nil {
		t.Fatalf("DecodeInstruction: %v", err)
	}
	if _, ok := IsInterestingCompare(inst); !ok {
		t.Fatal("expected CMP to be reported as an interesting comparison")
	}
}

func TestIsInterestingCompareIgnoresNonCompare(t *testing.T) {
	inst, err := DecodeInstruction([]byte{0x90}, Mode32)
	if err != nil {
		t.Fatalf("DecodeInstruction: %v", err)
	}
	if _, ok := IsInterestingCompare(inst); ok {
		t.Fatal("NOP should not be reported as an interesting comparison")
	}
}
