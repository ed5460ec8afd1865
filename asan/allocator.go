package asan

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Allocator is the binary-only address-sanitization shadow allocator from
// spec §4.1. Per spec §5 it is owned by the single thread that drives
// the guest. Alloc, Release, FindMetadata, Reset, CheckForLeaks and
// MapShadowForRegion hold mu for their whole body; the per-access
// CheckShadow and IsManaged take no lock. Reuse of AllocationMetadata across reset() cycles follows a
// size-bucketed free-list scheme: round up to a size class, look for a
// matching freed entry before mapping anything new.
type Allocator struct {
	opts Options

	shadow *shadow

	live  map[uintptr]*AllocationMetadata // keyed by the user-visible address
	reuse map[uintptr][]*AllocationMetadata // keyed by actualSize

	baseMappingAddr    uintptr
	currentMappingAddr uintptr

	totalAllocation uintptr
	largestAlloc    uintptr

	stats AllocStats

	// mu serialises the table-mutating methods named on Allocator; it
	// guards live, reuse and the running totals.
	mu sync.Mutex
}

// NewAllocator probes for a usable shadow-bit placement (spec §4.1
// Initialisation) and returns a ready allocator. Setup failure here is
// fatal per spec §7 domain 1.
func NewAllocator(opts Options) (*Allocator, error) {
	sh, err := probeShadowBit()
	if err != nil {
		return nil, errors.Wrap(err, "shadow allocator setup")
	}
	base := sh.offset + sh.offset
	return &Allocator{
		opts:               opts,
		shadow:             sh,
		live:               make(map[uintptr]*AllocationMetadata),
		reuse:              make(map[uintptr][]*AllocationMetadata),
		baseMappingAddr:    base,
		currentMappingAddr: base,
	}, nil
}

// ShadowBit returns the shadow-bit placement chosen at construction.
func (a *Allocator) ShadowBit() uint { return a.shadow.bit }

// MapToShadow maps a user address to its shadow byte address.
func (a *Allocator) MapToShadow(addr uintptr) uintptr {
	return a.shadow.mapToShadow(addr)
}

func (a *Allocator) findSmallestFit(size uintptr) *AllocationMetadata {
	var bestSize uintptr
	found := false
	for sz, list := range a.reuse {
		if sz >= size && len(list) > 0 && (!found || sz < bestSize) {
			bestSize = sz
			found = true
		}
	}
	if !found {
		return nil
	}
	list := a.reuse[bestSize]
	meta := list[len(list)-1]
	a.reuse[bestSize] = list[:len(list)-1]
	if len(a.reuse[bestSize]) == 0 {
		delete(a.reuse, bestSize)
	}
	return meta
}

// Alloc implements spec §4.1's alloc(size, alignment) contract. alignment
// is accepted for interface symmetry with the original but unused: every
// allocation already starts on a fresh page, which satisfies any
// alignment a guest is likely to request.
func (a *Allocator) Alloc(size uintptr, _ alignment) uintptr {
	a.mu.Lock()
	defer a.mu.Unlock()

	isZero := false
	if size == 0 {
		isZero = true
		size = 16
	}
	if size > a.opts.MaxAllocation {
		if a.opts.MaxAllocationPanics {
			panic(fmt.Sprintf("ASAN: allocation too large: %#x", size))
		}
		a.stats.Failures.Inc(1)
		return 0
	}

	rounded := roundUpPage(size) + 2*pageSize
	if a.totalAllocation+rounded > a.opts.MaxTotalAllocation {
		a.stats.Failures.Inc(1)
		return 0
	}
	a.totalAllocation += rounded

	meta := a.findSmallestFit(rounded)
	if meta != nil {
		a.stats.ReuseHits.Inc(1)
		meta.Size = size
		meta.IsMallocZero = isZero
		if a.opts.AllocationBacktraces {
			meta.AllocSiteTrace = captureBacktrace(1)
		}
	} else {
		a.stats.ReuseMisses.Inc(1)
		rawBase := a.currentMappingAddr
		if err := mmapFixed(rawBase, rounded, unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_PRIVATE|unix.MAP_ANON); err != nil {
			ERR("mmap failed at %#x (%d bytes): %v", rawBase, rounded, err)
			a.totalAllocation -= rounded
			a.stats.Failures.Inc(1)
			return 0
		}
		// rounded is already a pageSize multiple (roundUpPage(size) + 2*pageSize),
		// so the next mapping simply starts where this one ends.
		a.currentMappingAddr += rounded

		if err := a.mapShadowForRegion(rawBase, rawBase+rounded, false); err != nil {
			ERR("mapping shadow for new allocation failed: %v", err)
			a.totalAllocation -= rounded
			a.stats.Failures.Inc(1)
			return 0
		}

		meta = &AllocationMetadata{
			Address:    rawBase,
			Size:       size,
			ActualSize: rounded,
		}
		if a.opts.AllocationBacktraces {
			meta.AllocSiteTrace = captureBacktrace(1)
		}
	}

	if meta.ActualSize > a.largestAlloc {
		a.largestAlloc = meta.ActualSize
	}

	userAddr := meta.Address + pageSize
	unpoisonBytes(a.shadow.mapToShadow(userAddr), size)

	a.live[userAddr] = meta
	a.stats.NewCalls.Inc(1)
	a.stats.TotalSize.Inc(uint64(size))
	a.stats.recordAlloc(rounded, pageSize)
	return userAddr
}

// alignment exists purely so Alloc's second parameter reads the way the
// spec's contract does; Go has no unused-parameter-name requirement but
// naming it clarifies intent at call sites.
type alignment = uintptr

// Release implements spec §4.1's release(p) contract.
func (a *Allocator) Release(p uintptr) {
	if p == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	meta, ok := a.live[p]
	if !ok {
		ReportError(AsanError{Kind: KindUnallocatedFree, Addr: p, Stack: Backtrace{currentGoroutineStack()}})
		return
	}
	if meta.Freed {
		// The original free's backtrace is the diagnostic payload here;
		// overwriting it with this call's trace would erase the evidence
		// of where the allocation was actually released first.
		ReportError(AsanError{Kind: KindDoubleFree, Addr: p, Metadata: meta, Stack: Backtrace{currentGoroutineStack()}})
		a.stats.FreeCalls.Inc(1)
		return
	}

	shadowStart := a.shadow.mapToShadow(p)
	meta.Freed = true
	if a.opts.AllocationBacktraces {
		meta.ReleaseSiteTrace = captureBacktrace(1)
	}
	poisonBytes(shadowStart, meta.Size)
	a.stats.FreeCalls.Inc(1)
}

// FindMetadata returns the live record whose address is closest to ptr,
// preferring an exact match against hintBase, per spec §4.1.
func (a *Allocator) FindMetadata(ptr uintptr, hintBase uintptr) *AllocationMetadata {
	a.mu.Lock()
	defer a.mu.Unlock()

	addrs := make([]uintptr, 0, len(a.live))
	for addr := range a.live {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	var closest *AllocationMetadata
	var bestOffset int64 = -1
	for _, addr := range addrs {
		meta := a.live[addr]
		if addr == hintBase {
			return meta
		}
		// Measured against meta.Address (the raw mapping base), matching
		// the original allocator's distance metric rather than the
		// user-visible live-map key, so the two agree when a metadata
		// record's user address has been offset from its raw base.
		offset := int64(ptr) - int64(meta.Address)
		if offset < 0 {
			offset = -offset
		}
		if bestOffset < 0 || offset < bestOffset {
			bestOffset = offset
			closest = meta
		}
	}
	return closest
}

// Reset implements spec §4.1's reset(): migrate freed entries into the
// reuse queue (poisoning shadow, clearing backtraces, zeroing size/freed),
// retain non-freed entries unchanged, and zero the running total.
//
// Per spec §9's Open Question, an allocation that leaked within an
// iteration (never released) stays live across Reset — only a released
// allocation moves to the reuse queue. Whether that is the fuzzer's own
// latent leak or intentional deferred teardown is left to
// check_for_leaks() to surface; Reset does not guess.
func (a *Allocator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for addr, meta := range a.live {
		if !meta.Freed {
			continue
		}
		poisonBytes(a.shadow.mapToShadow(addr), meta.Size)
		delete(a.live, addr)
		meta.reset()
		a.reuse[meta.ActualSize] = append(a.reuse[meta.ActualSize], meta)
	}
	a.totalAllocation = 0
}

// CheckForLeaks pushes a Leak error for every still-live, never-freed
// allocation, per spec §4.1.
func (a *Allocator) CheckForLeaks() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for addr, meta := range a.live {
		if !meta.Freed {
			ReportError(AsanError{Kind: KindLeak, Addr: addr, Metadata: meta})
		}
	}
}

// IsManaged reports whether ptr falls inside the region this allocator
// has ever handed out raw mappings from.
func (a *Allocator) IsManaged(ptr uintptr) bool {
	return ptr >= a.baseMappingAddr && ptr < a.currentMappingAddr
}

// CheckShadow implements spec §4.1's check_shadow(addr, size) contract.
func (a *Allocator) CheckShadow(addr uintptr, size uintptr) bool {
	if size == 0 {
		return true
	}
	return checkShadowBytes(a.shadow.mapToShadow(addr), addr, size)
}

// MapShadowForRegion implements spec §4.1's map_shadow_for_region,
// exported so the instrumentation helper can pre-commit shadow for
// modules discovered after the allocator is constructed.
func (a *Allocator) MapShadowForRegion(start, end uintptr, unpoison bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mapShadowForRegion(start, end, unpoison)
}

func (a *Allocator) mapShadowForRegion(start, end uintptr, unpoison bool) error {
	shadowStart := a.shadow.mapToShadow(start)
	if end == start {
		return nil
	}
	shadowEnd := a.shadow.mapToShadow(end-1) + 1
	if err := a.shadow.commit(shadowStart, shadowEnd); err != nil {
		return err
	}
	if unpoison {
		unpoisonBytes(shadowStart, end-start)
	}
	return nil
}

// UnpoisonAllExistingMemory walks every currently read/write mapped range
// in the process (excluding everything inside the shadow reservation
// window [offset, 3*offset), which also holds the allocator's own
// mappings) and unpoisons
// its shadow, per spec §4.1: static data, stacks and thread-locals that
// predate instrumentation must not trip spurious sanitizer failures.
func (a *Allocator) UnpoisonAllExistingMemory() {
	ranges, err := occupiedRanges()
	if err != nil {
		WARN("could not enumerate existing memory for unpoisoning: %v", err)
		return
	}
	for _, r := range ranges {
		if len(r.perms) < 2 || r.perms[0] != 'r' || r.perms[1] != 'w' {
			continue
		}
		if a.shadow.reserved && r.start >= a.shadow.offset && r.end <= 3*a.shadow.offset {
			continue
		}
		if err := a.mapShadowForRegion(r.start, r.end, true); err != nil {
			WARN("failed to unpoison existing range %#x-%#x: %v", r.start, r.end, err)
		}
	}
}

// Stats returns a snapshot of the allocator's running counters.
func (a *Allocator) Stats() *AllocStats {
	return &a.stats
}
