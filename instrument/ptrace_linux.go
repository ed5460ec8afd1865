//go:build linux

package instrument

import (
	"fmt"
	"sync"

	"golang.org/x/arch/x86/x86asm"
	"golang.org/x/sys/unix"
)

// PtraceEngine is the production Engine backend on Linux: it single-steps
// an already-attached, stopped child process with ptrace(2) and uses
// x86asm to recognise control-flow instructions as basic-block
// boundaries. This stands in for frida-gum's Stalker, for which no
// pure-Go binding exists; single-stepping costs far more per instruction
// than Stalker's inline code patching, but it observes exactly the same
// block/instruction stream the translator callback expects (spec §4.4).
//
// Spawning and PTRACE_TRACEME'ing the guest harness is left to the
// caller, not the engine; NewPtraceEngine expects a pid that is already
// stopped at its first instruction.
type PtraceEngine struct {
	Pid int

	once   sync.Once
	detach chan struct{}
}

// NewPtraceEngine wraps pid, a process already ptrace-attached and
// stopped.
func NewPtraceEngine(pid int) *PtraceEngine {
	return &PtraceEngine{Pid: pid, detach: make(chan struct{})}
}

func (e *PtraceEngine) Detach() error {
	e.once.Do(func() { close(e.detach) })
	return unix.PtraceDetach(e.Pid)
}

func (e *PtraceEngine) ReadMemory(addr uintptr, width int) ([]byte, error) {
	buf := make([]byte, width)
	n, err := unix.PtracePeekData(e.Pid, addr, buf)
	if err != nil {
		return nil, fmt.Errorf("instrument: ptrace peek at %#x: %w", addr, err)
	}
	return buf[:n], nil
}

func (e *PtraceEngine) Attach(onBlock func(pc uintptr, code []byte, regs RegisterFile)) error {
	var regs unix.PtraceRegs
	blockStart := uintptr(0)
	atBoundary := true

	for {
		select {
		case <-e.detach:
			return nil
		default:
		}

		if err := unix.PtraceGetRegs(e.Pid, &regs); err != nil {
			return fmt.Errorf("instrument: ptrace getregs: %w", err)
		}
		pc := uintptr(regs.Rip)

		window := make([]byte, 16)
		n, err := unix.PtracePeekData(e.Pid, pc, window)
		if err != nil || n == 0 {
			return fmt.Errorf("instrument: ptrace peek at %#x: %w", pc, err)
		}
		window = window[:n]

		if atBoundary {
			blockStart = pc
		}

		inst, derr := x86asm.Decode(window, Mode64)
		if derr != nil || inst.Len == 0 {
			WARN("decode failed at %#x: %v, skipping one byte", pc, derr)
			inst.Len = 1
		}

		atBoundary = isBlockBoundary(inst)
		if atBoundary {
			blockLen := int(pc-blockStart) + inst.Len
			if blockLen <= 0 || blockLen > 4096 {
				blockLen = inst.Len
			}
			blockCode := make([]byte, blockLen)
			if m, err := unix.PtracePeekData(e.Pid, blockStart, blockCode); err == nil {
				onBlock(blockStart, blockCode[:m], ptraceRegisterFile{&regs})
			}
		}

		if err := unix.PtraceSingleStep(e.Pid); err != nil {
			return fmt.Errorf("instrument: ptrace singlestep: %w", err)
		}
		var ws unix.WaitStatus
		if _, err := unix.Wait4(e.Pid, &ws, 0, nil); err != nil {
			return fmt.Errorf("instrument: wait4: %w", err)
		}
		if ws.Exited() || ws.Signaled() {
			return nil
		}
	}
}

// ptraceRegisterFile adapts the kernel's amd64 register struct to
// RegisterFile so decoded memory operands can be resolved to effective
// addresses without the rest of the package depending on unix.PtraceRegs.
type ptraceRegisterFile struct {
	regs *unix.PtraceRegs
}

func (p ptraceRegisterFile) Reg(r x86asm.Reg) uint64 {
	switch r {
	case x86asm.RAX, x86asm.EAX, x86asm.AX, x86asm.AL:
		return p.regs.Rax
	case x86asm.RBX, x86asm.EBX, x86asm.BX, x86asm.BL:
		return p.regs.Rbx
	case x86asm.RCX, x86asm.ECX, x86asm.CX, x86asm.CL:
		return p.regs.Rcx
	case x86asm.RDX, x86asm.EDX, x86asm.DX, x86asm.DL:
		return p.regs.Rdx
	case x86asm.RSI, x86asm.ESI, x86asm.SI, x86asm.SIL:
		return p.regs.Rsi
	case x86asm.RDI, x86asm.EDI, x86asm.DI, x86asm.DIL:
		return p.regs.Rdi
	case x86asm.RBP, x86asm.EBP, x86asm.BP, x86asm.BPL:
		return p.regs.Rbp
	case x86asm.RSP, x86asm.ESP, x86asm.SP, x86asm.SPL:
		return p.regs.Rsp
	case x86asm.R8:
		return p.regs.R8
	case x86asm.R9:
		return p.regs.R9
	case x86asm.R10:
		return p.regs.R10
	case x86asm.R11:
		return p.regs.R11
	case x86asm.R12:
		return p.regs.R12
	case x86asm.R13:
		return p.regs.R13
	case x86asm.R14:
		return p.regs.R14
	case x86asm.R15:
		return p.regs.R15
	case x86asm.RIP:
		return p.regs.Rip
	default:
		return 0
	}
}
