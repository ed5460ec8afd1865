package instrument

import "golang.org/x/arch/x86/x86asm"

// Mode32 and Mode64 select the instruction-set width handed to x86asm,
// mirroring capstone's CS_MODE_32/CS_MODE_64.
const (
	Mode32 = 32
	Mode64 = 64
)

// Helper is the translation-time dispatcher spec §4.4 describes: it sits
// between the engine and the composed runtimes, deciding per block and
// per instruction which runtime callouts fire. It is the Go analogue of
// the original's FridaHelper: the engine is generic over how blocks are
// discovered, the runtimes are generic over what they do with them, and
// Helper is the fixed five-step glue between the two.
type Helper struct {
	ranges   *RangeMap
	runtimes Runtimes
	engine   Engine
	mode     int
}

// NewHelper builds a Helper over the given instrumented ranges, composed
// runtimes and engine. mode is Mode32 or Mode64.
func NewHelper(ranges *RangeMap, runtimes Runtimes, engine Engine, mode int) *Helper {
	return &Helper{ranges: ranges, runtimes: runtimes, engine: engine, mode: mode}
}

// Run executes one fuzzing iteration over input: PreExec on every
// composed runtime, attach the engine with HandleBlock as the translator
// callback, then PostExec on every composed runtime once the guest call
// returns (spec §4.4 Construction, §4.5).
func (h *Helper) Run(input []byte) error {
	if err := h.runtimes.PreExecAll(input); err != nil {
		return err
	}
	if err := h.engine.Attach(h.HandleBlock); err != nil {
		return err
	}
	return h.runtimes.PostExecAll(input)
}

// HandleBlock is the translator callback spec §4.4 runs once per basic
// block discovered by the engine. It performs, in order:
//
//  1. a RangeMap lookup on the block start — blocks starting outside the
//     instrumented ranges are skipped entirely;
//  2. coverage recording for every CoverageEmitter, and the byte range
//     of the block's leading instruction for every BlockRecorder;
//  3. stalked-address bookkeeping for any StalkedAddressTracker;
//  4. per-instruction decode, feeding memory accesses to ShadowCheckers
//     and comparisons to CompareRecorders; an instruction outside the
//     instrumented ranges (such as a dont_instrument window) gets no
//     callouts.
func (h *Helper) HandleBlock(pc uintptr, code []byte, regs RegisterFile) {
	if h.ranges != nil && !h.ranges.Contains(pc) {
		return
	}

	for _, ce := range h.runtimes.CoverageEmitters() {
		ce.RecordBlock(pc)
	}
	if brs := h.runtimes.BlockRecorders(); len(brs) > 0 {
		end := pc + uintptr(len(code))
		if inst, err := x86asm.Decode(code, h.mode); err == nil && inst.Len > 0 {
			end = pc + uintptr(inst.Len)
		}
		for _, br := range brs {
			br.AddBlock(pc, end)
		}
	}
	for _, st := range h.runtimes.StalkedAddressTrackers() {
		st.AddStalkedAddress(pc, pc)
	}

	shadowCheckers := h.runtimes.ShadowCheckers()
	compareRecorders := h.runtimes.CompareRecorders()
	if len(shadowCheckers) == 0 && len(compareRecorders) == 0 {
		return
	}

	off := 0
	ip := pc
	for off < len(code) {
		inst, err := x86asm.Decode(code[off:], h.mode)
		if err != nil || inst.Len == 0 {
			break
		}
		if h.ranges != nil && !h.ranges.Contains(ip) {
			off += inst.Len
			ip += uintptr(inst.Len)
			continue
		}

		if access, ok := IsInterestingInstruction(inst); ok {
			for _, sc := range shadowCheckers {
				sc.CheckAccess(ip, access, regs)
			}
		}

		if width, ok := IsInterestingCompare(inst); ok {
			h.recordCompare(ip, inst, width, regs, compareRecorders)
		}

		off += inst.Len
		ip += uintptr(inst.Len)
	}
}

// recordCompare extracts the two operand values of a comparison
// instruction and hands them to every composed CompareRecorder (spec
// §4.4 step 3). Register operands are read straight from regs; a memory
// operand is read back from the guest through the engine.
func (h *Helper) recordCompare(pc uintptr, inst x86asm.Inst, width uint8, regs RegisterFile, recorders []CompareRecorder) {
	if len(recorders) == 0 {
		return
	}
	vals := make([][]byte, 0, 2)
	for _, arg := range inst.Args {
		if arg == nil {
			continue
		}
		switch v := arg.(type) {
		case x86asm.Reg:
			vals = append(vals, regBytes(regs.Reg(v), width))
		case x86asm.Mem:
			addr := MemoryAccess{Base: v.Base, Index: v.Index, Scale: uint8(v.Scale), Disp: v.Disp}.EffectiveAddress(regs)
			if h.engine == nil {
				continue
			}
			b, err := h.engine.ReadMemory(addr, int(width))
			if err != nil {
				continue
			}
			vals = append(vals, b)
		case x86asm.Imm:
			vals = append(vals, regBytes(uint64(v), width))
		}
		if len(vals) == 2 {
			break
		}
	}
	if len(vals) != 2 {
		return
	}
	for _, cr := range recorders {
		cr.RecordCompare(pc, vals[0], vals[1])
	}
}

func regBytes(v uint64, width uint8) []byte {
	b := make([]byte, width)
	for i := uint8(0); i < width; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
