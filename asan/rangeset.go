package asan

import "sort"

// uintRange is a half-open [start, end) interval over the address space.
type uintRange struct {
	start, end uintptr
}

// uintRangeSet tracks a set of non-overlapping, merged uintRanges. It
// plays the same role as the original's rangemap::RangeSet<usize> for
// shadow_pages: the committed-shadow-page tracker consulted only on
// allocation (spec §4.1 "map_shadow_for_region"), which per spec §5 is
// always single-threaded, so no locking is needed here.
type uintRangeSet struct {
	ranges []uintRange
}

// insert merges [start, end) into the set.
func (s *uintRangeSet) insert(start, end uintptr) {
	if start >= end {
		return
	}
	merged := make([]uintRange, 0, len(s.ranges)+1)
	inserted := false
	for _, r := range s.ranges {
		if r.end < start {
			merged = append(merged, r)
			continue
		}
		if r.start > end {
			if !inserted {
				merged = append(merged, uintRange{start, end})
				inserted = true
			}
			merged = append(merged, r)
			continue
		}
		// overlapping or adjacent: fold into the pending range.
		if r.start < start {
			start = r.start
		}
		if r.end > end {
			end = r.end
		}
	}
	if !inserted {
		merged = append(merged, uintRange{start, end})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].start < merged[j].start })
	s.ranges = merged
}

// gaps returns the portions of [start, end) not yet covered by the set.
func (s *uintRangeSet) gaps(start, end uintptr) []uintRange {
	var gaps []uintRange
	cur := start
	for _, r := range s.ranges {
		if r.end <= cur {
			continue
		}
		if r.start >= end {
			break
		}
		if r.start > cur {
			gaps = append(gaps, uintRange{cur, r.start})
		}
		if r.end > cur {
			cur = r.end
		}
	}
	if cur < end {
		gaps = append(gaps, uintRange{cur, end})
	}
	return gaps
}
