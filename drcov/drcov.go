// Package drcov records basic-block ranges observed during a fuzzing run
// and writes them out in the DynamoRIO drcov trace format consumed by
// coverage viewers such as lighthouse and Cartographer (spec §4.9).
package drcov

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/intuitivelabs/natfuzz/instrument"
)

// Module is one entry of the module table: the address range a loaded
// library occupies, matching instrument.ModuleInfo's (id, path) pair plus
// the base/end the drcov format requires.
type Module struct {
	ID   uint16
	Base uintptr
	End  uintptr
	Path string
}

// block is one recorded basic-block hit, stored relative to its owning
// module's base address — the offset encoding drcov's bb_entry_t uses.
type block struct {
	start uint32
	size  uint16
	modID uint16
}

// Runtime implements instrument.Runtime and instrument.BlockRecorder: it
// accumulates (start, end) ranges from the translator's per-block callout
// and can serialise them to the drcov text+binary format on request.
type Runtime struct {
	modules []Module
	blocks  []block
}

// NewRuntime returns an empty Runtime; call AddModule before the first
// AddBlock so offsets resolve against known modules.
func NewRuntime() *Runtime {
	return &Runtime{}
}

// AddModule registers a module's address range so later AddBlock calls
// can resolve which module a block address belongs to.
func (r *Runtime) AddModule(m Module) {
	r.modules = append(r.modules, m)
}

// Init implements instrument.Runtime and does nothing: it neither reads
// the range map nor registers the paths it is given. The Go edition keeps
// module registration explicit via AddModule rather than re-deriving it
// from the range map, since drcov needs a path string the range map does
// not carry.
func (r *Runtime) Init(ranges *instrument.RangeMap, paths []string) {
}

// PreExec implements instrument.Runtime; the DrCov runtime has no
// per-iteration setup.
func (r *Runtime) PreExec(input []byte) error { return nil }

// PostExec implements instrument.Runtime; the DrCov runtime has no
// per-iteration teardown — blocks accumulate across the whole run so a
// single trace file reflects the entire fuzzing session.
func (r *Runtime) PostExec(input []byte) error { return nil }

// AddBlock implements instrument.BlockRecorder: records the basic block
// [start, end) against whichever registered module contains start. A
// block outside every registered module is dropped; it cannot be
// resolved to a module-relative offset DrCov's format requires.
func (r *Runtime) AddBlock(start, end uintptr) {
	mod, ok := r.moduleFor(start)
	if !ok {
		return
	}
	size := end - start
	if size == 0 || size > 0xFFFF {
		return
	}
	r.blocks = append(r.blocks, block{
		start: uint32(start - mod.Base),
		size:  uint16(size),
		modID: mod.ID,
	})
}

func (r *Runtime) moduleFor(addr uintptr) (Module, bool) {
	for _, m := range r.modules {
		if addr >= m.Base && addr < m.End {
			return m, true
		}
	}
	return Module{}, false
}

// WriteTo emits the documented DrCov v2 text header, module table, and
// packed binary block table to w.
func (r *Runtime) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	written := int64(0)

	n, err := fmt.Fprintf(bw, "DRCOV VERSION: 2\nDRCOV FLAVOR: drcov\n")
	written += int64(n)
	if err != nil {
		return written, err
	}

	mods := make([]Module, len(r.modules))
	copy(mods, r.modules)
	sort.Slice(mods, func(i, j int) bool { return mods[i].ID < mods[j].ID })

	n, err = fmt.Fprintf(bw, "Module Table: version 2, count %d\n", len(mods))
	written += int64(n)
	if err != nil {
		return written, err
	}
	n, err = fmt.Fprintf(bw, "Columns: id, base, end, entry, checksum, timestamp, path\n")
	written += int64(n)
	if err != nil {
		return written, err
	}
	for _, m := range mods {
		n, err = fmt.Fprintf(bw, "%3d, %#016x, %#016x, %#016x, 0x0, 0x0, %s\n",
			m.ID, m.Base, m.End, m.Base, m.Path)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}

	n, err = fmt.Fprintf(bw, "BB Table: %d bbs\n", len(r.blocks))
	written += int64(n)
	if err != nil {
		return written, err
	}

	buf := make([]byte, 8)
	for _, b := range r.blocks {
		binary.LittleEndian.PutUint32(buf[0:4], b.start)
		binary.LittleEndian.PutUint16(buf[4:6], b.size)
		binary.LittleEndian.PutUint16(buf[6:8], b.modID)
		bn, err := bw.Write(buf)
		written += int64(bn)
		if err != nil {
			return written, err
		}
	}

	if err := bw.Flush(); err != nil {
		return written, err
	}
	return written, nil
}

// BlockCount reports how many blocks have been recorded so far, used by
// the CLI's stats subcommand.
func (r *Runtime) BlockCount() int { return len(r.blocks) }
