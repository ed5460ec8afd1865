package asan

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// userspaceMaxBits is the legal-userspace-window exponent per architecture,
// spec §4.1 ("48-bit on x86_64, 52-bit on aarch64").
func userspaceMaxBits() uint {
	switch archName() {
	case "arm64":
		return 52
	default:
		return 48
	}
}

// shadow holds the process-wide shadow-memory reservation (spec §3
// "ShadowMapping"). One bit of shadow describes eight bytes of user
// memory; map_to_shadow never aliases the address it shadows because the
// reservation sits strictly above userspace_max.
type shadow struct {
	bit       uint
	offset    uintptr // 1 << bit
	committed uintRangeSet
	reserved  bool // true if the whole 2<<bit shadow span was mmap'd up front
}

// probeShadowBit implements spec §4.1's shadow-bit probe: try maxbit,
// maxbit-4, maxbit-3, maxbit-2 in that order, skipping (with a warning,
// not a hard failure — see DESIGN.md "Open Questions") any candidate whose
// [2^bit, 3*2^bit) window intersects an already-occupied range, and
// reserving the first candidate that actually mmaps.
func probeShadowBit() (*shadow, error) {
	occupied, err := occupiedRanges()
	if err != nil {
		WARN("could not enumerate occupied ranges: %v", err)
	}

	maxUser := userspaceMaxBits()
	var userspaceMax uintptr
	limit := uintptr(1) << maxUser
	for _, r := range occupied {
		if r.end <= limit && r.end > userspaceMax {
			userspaceMax = r.end
		}
	}

	var maxbit uint
	for power := uint(1); power < 64; power++ {
		if (uintptr(1) << power) > userspaceMax {
			maxbit = power
			break
		}
	}
	DBG("userspace_max=%#x maxbit=%d", userspaceMax, maxbit)

	candidates := []uint{maxbit, maxbit - 4, maxbit - 3, maxbit - 2}
	for _, bit := range candidates {
		addr := uintptr(1) << bit
		shadowEnd := addr + addr + addr

		overlaps := false
		for _, r := range occupied {
			if addr <= r.end && r.start <= shadowEnd {
				WARN("shadow_bit %#x is not suitable (overlaps %#x-%#x)", bit, r.start, r.end)
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}

		// mapToShadow's mask is (1<<(bit+1))-1, so a shadow address can
		// land anywhere in [offset, offset+2*addr) — the reservation has
		// to cover that full span, not just the first addr bytes of it.
		err := mmapFixed(addr, addr+addr, unix.PROT_NONE,
			unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_NORESERVE)
		if err != nil {
			DBG("shadow_bit %#x unsuitable: mmap failed: %v", bit, err)
			continue
		}
		DBG("shadow_bit %#x is suitable", bit)
		return &shadow{bit: bit, offset: addr, reserved: true}, nil
	}
	return nil, errors.New("unable to find a free window for the shadow reservation")
}

// mapToShadow implements the map_to_shadow! macro from spec §3 exactly:
// shadow_offset + ((addr >> 3) & ((1 << (bit+1)) - 1)).
func (s *shadow) mapToShadow(addr uintptr) uintptr {
	mask := (uintptr(1) << (s.bit + 1)) - 1
	return s.offset + ((addr >> 3) & mask)
}

// commit ensures [shadowStart, shadowEnd) is backed by real pages. Linux
// has no separate reserve/commit distinction like Windows' VirtualAlloc;
// the equivalent is mprotect'ing a PROT_NONE reservation to PROT_READ|
// PROT_WRITE on first touch, which is what this does when the region was
// reserved up front (spec's "large virtual reservation, no physical
// backing yet").
func (s *shadow) commit(shadowStart, shadowEnd uintptr) error {
	start := roundDownPage(shadowStart)
	end := roundUpPage(shadowEnd)
	if s.reserved {
		for _, gap := range s.committed.gaps(start, end) {
			if err := unix.Mprotect(bytesAt(gap.start, gap.end-gap.start), unix.PROT_READ|unix.PROT_WRITE); err != nil {
				return errors.Wrapf(err, "mprotect shadow range %#x-%#x", gap.start, gap.end)
			}
		}
		s.committed.insert(start, end)
		return nil
	}
	for _, gap := range s.committed.gaps(start, end) {
		if err := mmapFixed(gap.start, gap.end-gap.start, unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_PRIVATE|unix.MAP_ANON); err != nil {
			return errors.Wrapf(err, "mmap shadow range %#x-%#x", gap.start, gap.end)
		}
	}
	s.committed.insert(start, end)
	return nil
}

// unpoisonBytes sets the shadow range covering `size` user bytes starting
// at `shadowStart` (already a shadow address) fully addressable, per spec §3's
// "an entirely addressable block is 0xFF" and the tail-byte rule.
func unpoisonBytes(shadowStart uintptr, size uintptr) {
	buf := bytesAt(shadowStart, size/8+1)
	for i := range buf[:size/8] {
		buf[i] = 0xff
	}
	if rem := size % 8; rem > 0 {
		buf[size/8] = 0xff << (8 - rem)
	}
}

// poisonBytes zeroes the shadow range covering `size` user bytes.
func poisonBytes(shadowStart uintptr, size uintptr) {
	buf := bytesAt(shadowStart, size/8+1)
	for i := range buf[:size/8] {
		buf[i] = 0x00
	}
	if size%8 > 0 {
		buf[size/8] = 0x00
	}
}

// checkShadowBytes implements spec §4.1's check_shadow contract: a
// possibly-misaligned leading byte, a middle run of whole 0xFF bytes
// (scanned in 16-byte chunks for throughput, mirroring the original's
// u128-aligned scan), and a trailing partial byte.
func checkShadowBytes(shadowAddr uintptr, addr uintptr, size uintptr) bool {
	if size == 0 {
		return true
	}
	// Bit 7-j of a shadow byte marks byte j of its 8-byte block
	// addressable, the layout unpoisonBytes writes.
	if off := addr & 7; off > 0 {
		n := 8 - off
		if n > size {
			n = size
		}
		mask := byte(0xff>>off) &^ byte(0xff>>(off+n))
		if readByte(shadowAddr)&mask != mask {
			return false
		}
		shadowAddr++
		size -= n
	}
	shadowSize := size / 8

	buf := bytesAt(shadowAddr, shadowSize)
	const chunk = 16
	i := 0
	for ; i+chunk <= len(buf); i += chunk {
		for j := 0; j < chunk; j++ {
			if buf[i+j] != 0xff {
				return false
			}
		}
	}
	for ; i < len(buf); i++ {
		if buf[i] != 0xff {
			return false
		}
	}

	if rem := size % 8; rem > 0 {
		mask := byte(0xff) << (8 - rem)
		tail := readByte(shadowAddr + shadowSize)
		return tail&mask == mask
	}
	return true
}
