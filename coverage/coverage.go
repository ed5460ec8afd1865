// Package coverage owns the edge-coverage bitmap the external fuzzing
// loop reads between iterations, and the per-block hashing scheme that
// feeds it (spec §4.3).
package coverage

import (
	"sync/atomic"

	"github.com/intuitivelabs/natfuzz/instrument"
)

// MapSize is the compile-time size of the bitmap, a power of two so edge
// indices can be masked rather than modulo'd. 64 KiB matches the
// conventional AFL/AFL++ default map size.
const MapSize = 1 << 16

// Bitmap is the saturating hit-count table for observed edges. The zero
// value is ready to use.
type Bitmap struct {
	table   [MapSize]byte
	prevLoc uint64
}

// NewBitmap returns a freshly zeroed Bitmap.
func NewBitmap() *Bitmap {
	return &Bitmap{}
}

// Init, PreExec and PostExec satisfy instrument.Runtime. The bitmap has no
// per-module setup and nothing to do around an iteration boundary: it
// accumulates purely through RecordBlock calls during translation.
func (b *Bitmap) Init(ranges *instrument.RangeMap, modules []string) {}
func (b *Bitmap) PreExec(input []byte) error                         { return nil }
func (b *Bitmap) PostExec(input []byte) error                        { return nil }

// MapMutPtr returns the bitmap's base address and length, the pointer the
// external fuzzing loop publishes at startup and reads between iterations
// (spec §6 "coverage bitmap base pointer and length are published at
// startup and never moved thereafter").
func (b *Bitmap) MapMutPtr() (*byte, int) {
	return &b.table[0], len(b.table)
}

// RecordBlock implements instrument.CoverageEmitter: called once per
// first-instruction entry into a basic block at translation time, it
// derives an edge index from addr and the stored previous-location word
// using the AFL-style hashed-edge scheme (spec §4.3), and saturating-
// increments that slot. The hash is deliberately simple and stable
// across runs — the external scheduler's "new coverage" feedback depends
// on the same input always producing the same edge index.
func (b *Bitmap) RecordBlock(addr uintptr) {
	cur := uint64(addr) & (MapSize - 1)
	prev := atomic.LoadUint64(&b.prevLoc)
	idx := (cur ^ prev) & (MapSize - 1)

	if old := b.table[idx]; old != 0xFF {
		b.table[idx] = old + 1
	}

	atomic.StoreUint64(&b.prevLoc, cur>>1)
}

// Reset zeroes every bitmap entry and the previous-location word, used
// between fuzzing sessions that intentionally want to discard
// accumulated coverage (not called between ordinary iterations: the
// bitmap is meant to accumulate so the external scheduler can diff it).
func (b *Bitmap) Reset() {
	for i := range b.table {
		b.table[i] = 0
	}
	atomic.StoreUint64(&b.prevLoc, 0)
}

// Hits returns the number of non-zero entries, a quick density metric
// useful for CLI stats reporting.
func (b *Bitmap) Hits() int {
	n := 0
	for _, v := range b.table {
		if v != 0 {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of the current bitmap contents, safe to retain
// or diff against a later snapshot without racing the next iteration's
// writes.
func (b *Bitmap) Snapshot() []byte {
	out := make([]byte, len(b.table))
	copy(out, b.table[:])
	return out
}
