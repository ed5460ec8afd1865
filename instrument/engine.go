package instrument

// Engine is the DBI engine handle abstraction: whatever drives the guest
// forward one basic block at a time and hands the helper a decode window
// plus live registers at each block boundary (spec §4.4's "engine" the
// translator callback is registered against). The original wraps
// frida-gum's Stalker; no pure-Go frida binding exists in the available
// ecosystem, so this module backs it with PtraceEngine
// (ptrace_linux.go), which single-steps a traced child and decodes each
// instruction with x86asm to find block boundaries, and with SelfEngine
// (selfengine.go), the backend the CLI uses, which makes one static pass
// over ranges mapped into this process. Engine only needs to
// expose attach/detach and a way to read guest memory for operand
// extraction — everything else is decode logic the helper owns.
type Engine interface {
	// Attach begins (or resumes) execution of the guest, calling onBlock
	// once per basic block encountered with the block's starting address,
	// its raw instruction bytes, and a RegisterFile. PtraceEngine's
	// snapshot is taken when the block's final instruction is reached and
	// Attach blocks until the guest exits or Detach is called from another
	// goroutine; SelfEngine passes an empty RegisterFile and returns once
	// its static pass is done.
	Attach(onBlock func(pc uintptr, code []byte, regs RegisterFile)) error

	// Detach stops instrumenting and releases any engine resources.
	Detach() error

	// ReadMemory reads width bytes from the guest's address space at
	// addr, used to snapshot memory-operand values for the CmpLog
	// runtime (spec §4.4 step 3).
	ReadMemory(addr uintptr, width int) ([]byte, error)
}
