// Package cmplog captures comparison operands observed during a fuzzing
// iteration so an external havoc mutator can target the exact bytes a
// guest's comparisons check against (spec §4.4 step 3, §4.10).
package cmplog

import (
	"bytes"
	"hash/fnv"

	"github.com/intuitivelabs/natfuzz/instrument"
)

// CmpMapSize is the number of slots in the comparison ring, matching
// AFL++'s CMPLOG_MAP_W sizing convention.
const CmpMapSize = 1 << 16

// EntriesPerSlot bounds how many distinct operand pairs are retained per
// hashed PC, matching AFL++'s CMPLOG_MAP_H.
const EntriesPerSlot = 32

// Entry is one recorded comparison: the two operand values observed at a
// single compare instruction.
type Entry struct {
	PC  uintptr
	Op1 []byte
	Op2 []byte
}

type slot struct {
	pc      uintptr
	entries []Entry
}

// Runtime implements instrument.Runtime and instrument.CompareRecorder:
// it hashes each observed PC into a fixed-capacity ring and keeps up to
// EntriesPerSlot distinct operand pairs per slot.
type Runtime struct {
	slots [CmpMapSize]slot
}

// NewRuntime returns an empty comparison ring.
func NewRuntime() *Runtime {
	return &Runtime{}
}

// Init implements instrument.Runtime; the comparison ring needs no
// per-run setup from the range map or module list.
func (r *Runtime) Init(ranges *instrument.RangeMap, modules []string) {}

// PreExec implements instrument.Runtime; entries accumulate across the
// whole session rather than resetting per iteration, matching AFL++'s
// convention that cmplog data is a standing corpus for the mutator.
func (r *Runtime) PreExec(input []byte) error { return nil }

// PostExec implements instrument.Runtime.
func (r *Runtime) PostExec(input []byte) error { return nil }

// RecordCompare implements instrument.CompareRecorder: hashes pc into a
// slot and appends the operand pair if that slot has not already
// recorded EntriesPerSlot distinct pairs for it.
func (r *Runtime) RecordCompare(pc uintptr, op1, op2 []byte) {
	idx := hashPC(pc) & (CmpMapSize - 1)
	s := &r.slots[idx]
	if s.pc != pc {
		s.pc = pc
		s.entries = s.entries[:0]
	}
	if len(s.entries) >= EntriesPerSlot {
		return
	}
	for _, e := range s.entries {
		if bytes.Equal(e.Op1, op1) && bytes.Equal(e.Op2, op2) {
			return
		}
	}
	o1 := append([]byte(nil), op1...)
	o2 := append([]byte(nil), op2...)
	s.entries = append(s.entries, Entry{PC: pc, Op1: o1, Op2: o2})
}

// Entries returns every recorded comparison across all slots, the read
// side the external mutator consumes between iterations.
func (r *Runtime) Entries() []Entry {
	var out []Entry
	for i := range r.slots {
		out = append(out, r.slots[i].entries...)
	}
	return out
}

// EntriesForPC returns only the comparisons recorded at a specific
// address, useful for targeted mutation of a single known compare site.
func (r *Runtime) EntriesForPC(pc uintptr) []Entry {
	idx := hashPC(pc) & (CmpMapSize - 1)
	s := &r.slots[idx]
	if s.pc != pc {
		return nil
	}
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func hashPC(pc uintptr) uint64 {
	h := fnv.New64a()
	b := [8]byte{
		byte(pc), byte(pc >> 8), byte(pc >> 16), byte(pc >> 24),
		byte(pc >> 32), byte(pc >> 40), byte(pc >> 48), byte(pc >> 56),
	}
	h.Write(b[:])
	return h.Sum64()
}
