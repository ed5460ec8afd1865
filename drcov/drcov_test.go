package drcov

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteToHeaderAndBlocks(t *testing.T) {
	r := NewRuntime()
	r.AddModule(Module{ID: 0, Base: 0x1000, End: 0x2000, Path: "/lib/libtarget.so"})
	r.AddBlock(0x1010, 0x1020)
	r.AddBlock(0x1030, 0x1034)
	// outside any module: must be dropped silently
	r.AddBlock(0x5000, 0x5010)

	var buf bytes.Buffer
	n, err := r.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if n != int64(buf.Len()) {
		t.Fatalf("WriteTo returned %d, wrote %d", n, buf.Len())
	}

	out := buf.String()
	if !strings.HasPrefix(out, "DRCOV VERSION: 2\n") {
		t.Fatalf("missing drcov version header: %q", out[:40])
	}
	if !strings.Contains(out, "Module Table: version 2, count 1") {
		t.Fatalf("missing module table header")
	}
	if !strings.Contains(out, "BB Table: 2 bbs") {
		t.Fatalf("expected 2 blocks recorded, out-of-module block should be dropped")
	}
	if r.BlockCount() != 2 {
		t.Fatalf("BlockCount() = %d, want 2", r.BlockCount())
	}
}

func TestAddBlockRejectsOversizeRange(t *testing.T) {
	r := NewRuntime()
	r.AddModule(Module{ID: 0, Base: 0, End: 1 << 32, Path: "/lib/big.so"})
	r.AddBlock(0x1000, 0x1000+0x10000) // exactly 0x10000, too large for uint16
	if r.BlockCount() != 0 {
		t.Fatalf("expected oversize block to be dropped, got %d blocks", r.BlockCount())
	}
}
