package instrument

import "golang.org/x/arch/x86/x86asm"

// DecodeInstruction disassembles the single instruction at the start of
// code, the same per-instruction decode step the original performs with
// capstone (spec §4.4 step 2: "uses a capstone-class decoder").
// golang.org/x/arch/x86/x86asm plays that role here — a real, maintained
// Go decoder rather than a cgo binding, which keeps the instrumentation
// helper buildable without a capstone shared library on the host.
func DecodeInstruction(code []byte, mode int) (x86asm.Inst, error) {
	return x86asm.Decode(code, mode)
}

// IsInterestingInstruction extracts a MemoryAccess from inst if it
// performs an explicit memory access worth guarding with a shadow check
// (spec §4.4 step 2). LEA is excluded: it computes an address but never
// dereferences it.
func IsInterestingInstruction(inst x86asm.Inst) (MemoryAccess, bool) {
	if inst.Op == x86asm.LEA {
		return MemoryAccess{}, false
	}
	for i, arg := range inst.Args {
		mem, ok := arg.(x86asm.Mem)
		if !ok {
			continue
		}
		width := uint8(inst.DataSize / 8)
		if width == 0 {
			width = 8
		}
		return MemoryAccess{
			Base:  mem.Base,
			Index: mem.Index,
			Scale: uint8(mem.Scale),
			Disp:  mem.Disp,
			Width: width,
			// the first operand is conventionally the destination in
			// x86asm's Intel-order Args; a memory operand there means
			// the instruction writes through it.
			Write: i == 0,
		}, true
	}
	return MemoryAccess{}, false
}

// isBlockBoundary reports whether inst ends a basic block: any taken or
// fallthrough-breaking control transfer. Shared by every Engine backend
// that discovers blocks by decoding instructions one at a time rather
// than relying on a DBI runtime's own block notion.
func isBlockBoundary(inst x86asm.Inst) bool {
	switch inst.Op {
	case x86asm.JMP, x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JCXZ, x86asm.JECXZ,
		x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JNE, x86asm.JNO, x86asm.JNP,
		x86asm.JNS, x86asm.JO, x86asm.JP, x86asm.JRCXZ, x86asm.JS, x86asm.JE,
		x86asm.CALL, x86asm.RET, x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE, x86asm.SYSCALL:
		return true
	default:
		return false
	}
}

// IsInterestingCompare reports whether inst is a comparison whose
// operands are worth recording for the external mutator (spec §4.4 step
// 3), and returns its operand width in bytes so the cmplog runtime knows
// how many bytes to snapshot from the live registers.
func IsInterestingCompare(inst x86asm.Inst) (widthBytes uint8, ok bool) {
	switch inst.Op {
	case x86asm.CMP, x86asm.TEST:
		w := uint8(inst.DataSize / 8)
		if w == 0 {
			w = 8
		}
		return w, true
	default:
		return 0, false
	}
}
