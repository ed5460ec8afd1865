package instrument

import "golang.org/x/arch/x86/x86asm"

// RegisterFile gives instrumentation code read access to the guest's CPU
// registers at the moment of a memory access, so an effective address can
// be computed the same way a real DBI trampoline would compute it inline.
// Production engines (see PtraceEngine) back this with a live ptrace
// GETREGS snapshot; tests back it with a plain map.
type RegisterFile interface {
	Reg(r x86asm.Reg) uint64
}

// MapRegisterFile is a RegisterFile backed by a plain map, used in tests
// and by engines that only need to simulate a handful of registers.
type MapRegisterFile map[x86asm.Reg]uint64

func (m MapRegisterFile) Reg(r x86asm.Reg) uint64 {
	return m[r]
}

// MemoryAccess is the decoded shape of an instruction's memory operand,
// the tuple spec §4.4 step 2 asks the Asan runtime's
// is_interesting_instruction helper to extract: "(base_reg, index_reg,
// displacement, width, scale/shift/extend)".
type MemoryAccess struct {
	Base    x86asm.Reg
	Index   x86asm.Reg
	Scale   uint8
	Disp    int64
	Width   uint8 // access width in bytes
	Write   bool
}

// EffectiveAddress computes the address the access touches, given a live
// register snapshot — the same computation a real shadow-check
// trampoline performs inline before the guarded access executes.
func (m MemoryAccess) EffectiveAddress(regs RegisterFile) uintptr {
	addr := int64(0)
	if m.Base != 0 {
		addr += int64(regs.Reg(m.Base))
	}
	if m.Index != 0 {
		addr += int64(regs.Reg(m.Index)) * int64(m.Scale)
	}
	addr += m.Disp
	return uintptr(addr)
}
