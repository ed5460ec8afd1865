package instrument

// Runtime is the capability every component composed into a Helper must
// provide: lifecycle hooks around each fuzzing iteration (spec §4.4
// Construction, §4.5). It plays the role of the original's FridaRuntime
// trait; spec §9 calls out that the helper must be able to ask "is there
// an AsanRuntime in this set?" at translation time without a fixed list
// known at build time. Go has no trait-tuple composition, so instead of
// a heterogeneous tuple this takes a plain []Runtime and does capability
// lookup via type assertion against the narrower interfaces below — the
// idiomatic substitute, and it composes exactly as freely.
type Runtime interface {
	Init(ranges *RangeMap, modules []string)
	PreExec(input []byte) error
	PostExec(input []byte) error
}

// CoverageEmitter is implemented by a runtime that wants to record a
// basic block's first-instruction entry for edge coverage (spec §4.3,
// §4.4 step 1).
type CoverageEmitter interface {
	RecordBlock(addr uintptr)
}

// BlockRecorder is implemented by a runtime that wants the raw
// (start, end) byte range of the block's leading instruction — the
// DrCov runtime's callout (spec §4.4 step 1).
type BlockRecorder interface {
	AddBlock(start, end uintptr)
}

// ShadowChecker is implemented by the Asan runtime (spec §4.4 step 2):
// given a decoded memory operand and the register values live at the
// access, it performs the shadow check and reports any violation.
type ShadowChecker interface {
	CheckAccess(pc uintptr, access MemoryAccess, regs RegisterFile)
}

// CompareRecorder is implemented by the CmpLog runtime (spec §4.4 step
// 3): records operand values from an interesting comparison instruction.
type CompareRecorder interface {
	RecordCompare(pc uintptr, op1, op2 []byte)
}

// StalkedAddressTracker is implemented by runtimes that need to map a
// translated/observed PC back to the original guest address (spec §4.4
// step 4, used by DrCov and Asan to resolve stalker-relative addresses).
type StalkedAddressTracker interface {
	AddStalkedAddress(observed, original uintptr)
}

// Runtimes is a small capability-query helper over a flat []Runtime,
// standing in for the original's MatchFirstType tuple dispatch.
type Runtimes []Runtime

func (rs Runtimes) InitAll(ranges *RangeMap, modules []string) {
	for _, r := range rs {
		r.Init(ranges, modules)
	}
}

func (rs Runtimes) PreExecAll(input []byte) error {
	for _, r := range rs {
		if err := r.PreExec(input); err != nil {
			return err
		}
	}
	return nil
}

func (rs Runtimes) PostExecAll(input []byte) error {
	for _, r := range rs {
		if err := r.PostExec(input); err != nil {
			return err
		}
	}
	return nil
}

func (rs Runtimes) CoverageEmitters() []CoverageEmitter {
	var out []CoverageEmitter
	for _, r := range rs {
		if ce, ok := r.(CoverageEmitter); ok {
			out = append(out, ce)
		}
	}
	return out
}

func (rs Runtimes) BlockRecorders() []BlockRecorder {
	var out []BlockRecorder
	for _, r := range rs {
		if br, ok := r.(BlockRecorder); ok {
			out = append(out, br)
		}
	}
	return out
}

func (rs Runtimes) ShadowCheckers() []ShadowChecker {
	var out []ShadowChecker
	for _, r := range rs {
		if sc, ok := r.(ShadowChecker); ok {
			out = append(out, sc)
		}
	}
	return out
}

func (rs Runtimes) CompareRecorders() []CompareRecorder {
	var out []CompareRecorder
	for _, r := range rs {
		if cr, ok := r.(CompareRecorder); ok {
			out = append(out, cr)
		}
	}
	return out
}

func (rs Runtimes) StalkedAddressTrackers() []StalkedAddressTracker {
	var out []StalkedAddressTracker
	for _, r := range rs {
		if st, ok := r.(StalkedAddressTracker); ok {
			out = append(out, st)
		}
	}
	return out
}
