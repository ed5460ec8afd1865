package instrument

import "sort"

// ModuleInfo is the (module_id, module_path) pair address ranges map to
// in a RangeMap (spec §3).
type ModuleInfo struct {
	ID   uint16
	Path string
}

type moduleRangeEntry struct {
	start, end uintptr
	info       ModuleInfo
}

// RangeMap is the ordered, non-overlapping address-range map from spec
// §3: populated once at start-up by enumerating the harness library and
// any additionally requested libraries, then punched out wherever
// dont_instrument windows were configured.
type RangeMap struct {
	entries []moduleRangeEntry
}

// NewRangeMap returns an empty map ready for Insert calls.
func NewRangeMap() *RangeMap {
	return &RangeMap{}
}

// Insert records that [start, end) belongs to module info. Ranges are
// kept sorted by start address so Lookup can binary search.
func (m *RangeMap) Insert(start, end uintptr, info ModuleInfo) {
	m.entries = append(m.entries, moduleRangeEntry{start, end, info})
	sort.Slice(m.entries, func(i, j int) bool { return m.entries[i].start < m.entries[j].start })
}

// Remove punches the window [start, end) out of the map, splitting any
// entry that straddles it. Used for spec §6's dont_instrument windows.
func (m *RangeMap) Remove(start, end uintptr) {
	var out []moduleRangeEntry
	for _, e := range m.entries {
		switch {
		case e.end <= start || e.start >= end:
			out = append(out, e)
		case e.start < start && e.end > end:
			out = append(out, moduleRangeEntry{e.start, start, e.info})
			out = append(out, moduleRangeEntry{end, e.end, e.info})
		case e.start < start:
			out = append(out, moduleRangeEntry{e.start, start, e.info})
		case e.end > end:
			out = append(out, moduleRangeEntry{end, e.end, e.info})
		default:
			// fully contained in the removed window: drop it entirely
		}
	}
	m.entries = out
}

// Contains reports whether addr falls inside any instrumented range —
// the check the translator callback makes per instruction (spec §4.4).
func (m *RangeMap) Contains(addr uintptr) bool {
	_, ok := m.Lookup(addr)
	return ok
}

// Lookup returns the module owning addr, if any.
func (m *RangeMap) Lookup(addr uintptr) (ModuleInfo, bool) {
	i := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].end > addr })
	if i < len(m.entries) && m.entries[i].start <= addr {
		return m.entries[i].info, true
	}
	return ModuleInfo{}, false
}

// AssertNotInstrumented panics if selfAddr falls inside the map — the
// fuzzer's own code must never appear there (spec §3 RangeMap invariant).
func (m *RangeMap) AssertNotInstrumented(selfAddr uintptr) {
	if m.Contains(selfAddr) {
		panic("instrument: fuzzer's own code address is in the instrumented range map")
	}
}

// Range is one [Start, End) span exposed by Ranges, with the module it
// belongs to.
type Range struct {
	Start, End uintptr
	Info       ModuleInfo
}

// Ranges returns every span currently in the map, in address order. Used
// by runtimes that need to walk the instrumented set directly, such as
// the Asan runtime pre-committing shadow memory at Init time.
func (m *RangeMap) Ranges() []Range {
	out := make([]Range, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, Range{Start: e.start, End: e.end, Info: e.info})
	}
	return out
}

// ModuleBase returns the lowest address any range tagged with modulePath
// maps to, used to resolve a DontInstrumentWindow's (module, offset) pair
// to an absolute address.
func (m *RangeMap) ModuleBase(modulePath string) (uintptr, bool) {
	var base uintptr
	found := false
	for _, e := range m.entries {
		if e.info.Path != modulePath {
			continue
		}
		if !found || e.start < base {
			base = e.start
			found = true
		}
	}
	return base, found
}
