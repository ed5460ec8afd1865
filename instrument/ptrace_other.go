//go:build !linux

package instrument

import "errors"

// PtraceEngine is only implemented on Linux; ptrace(2) semantics differ
// too much across other platforms to share this code. NewPtraceEngine
// elsewhere returns an Engine whose methods all fail, so cmd/natfuzz can
// still build (and report a clear error at run time) on other hosts.
type PtraceEngine struct{}

func NewPtraceEngine(pid int) *PtraceEngine { return &PtraceEngine{} }

var errNoPtrace = errors.New("instrument: ptrace engine is not supported on this platform")

func (e *PtraceEngine) Attach(onBlock func(pc uintptr, code []byte, regs RegisterFile)) error {
	return errNoPtrace
}

func (e *PtraceEngine) Detach() error { return errNoPtrace }

func (e *PtraceEngine) ReadMemory(addr uintptr, width int) ([]byte, error) {
	return nil, errNoPtrace
}
