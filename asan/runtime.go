package asan

import (
	"github.com/intuitivelabs/natfuzz/instrument"
)

// Runtime bridges the instrumentation helper's translator callback to the
// shadow allocator, implementing instrument.Runtime and
// instrument.ShadowChecker (spec §4.4's "Asan runtime"). It is the
// production source of KindOutOfBounds findings: every decoded memory
// access the helper recognises is resolved to an effective address and
// checked against shadow memory before the guest instruction actually
// executes it.
type Runtime struct {
	allocator *Allocator
}

// NewRuntime wraps allocator for composition into an instrument.Runtimes
// slice.
func NewRuntime(allocator *Allocator) *Runtime {
	return &Runtime{allocator: allocator}
}

// Init implements instrument.Runtime. It pre-commits (and unpoisons)
// shadow memory for every range RangeMap was built from, so harness code
// and data mapped before instrumentation started does not trip spurious
// violations the first time it is touched.
func (r *Runtime) Init(ranges *instrument.RangeMap, modules []string) {
	_ = modules
	if ranges == nil {
		return
	}
	for _, rg := range ranges.Ranges() {
		if err := r.allocator.MapShadowForRegion(rg.Start, rg.End, true); err != nil {
			WARN("could not map shadow for range %#x-%#x: %v", rg.Start, rg.End, err)
		}
	}
}

// PreExec implements instrument.Runtime. Shadow state crosses iterations
// deliberately (spec §5's happens-before edge between an iteration's
// post_exec and the next one's pre_exec), so this is a no-op.
func (r *Runtime) PreExec(input []byte) error { return nil }

// PostExec implements instrument.Runtime: every still-live, never-freed
// allocation at the end of an iteration is a leak (spec §4.1
// check_for_leaks).
func (r *Runtime) PostExec(input []byte) error {
	r.allocator.CheckForLeaks()
	return nil
}

// CheckAccess implements instrument.ShadowChecker. addr is computed from
// the decoded memory operand and the register snapshot the translator
// callback captured at the instruction that is about to execute it.
//
// addr is only ever checked against shadow memory once it is known to
// fall inside a region this allocator has actually mapped: shadow bytes
// for anything outside that region may still be PROT_NONE, and reading
// them would fault the process that is supposed to be reporting the
// violation, not crashing from one.
func (r *Runtime) CheckAccess(pc uintptr, access instrument.MemoryAccess, regs instrument.RegisterFile) {
	addr := access.EffectiveAddress(regs)
	if !r.allocator.IsManaged(addr) {
		return
	}
	if r.allocator.CheckShadow(addr, uintptr(access.Width)) {
		return
	}

	meta := r.allocator.FindMetadata(addr, addr)
	var stack Backtrace
	if r.allocator.opts.AllocationBacktraces {
		stack = captureBacktrace(1)
	}
	ReportError(AsanError{
		Kind:     KindOutOfBounds,
		Addr:     addr,
		Metadata: meta,
		Width:    uintptr(access.Width),
		Write:    access.Write,
		Stack:    stack,
	})
}
