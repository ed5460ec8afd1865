//go:build !linux

package instrument

import "errors"

// DiscoverModuleRanges has no portable equivalent of /proc/self/maps
// outside Linux in the standard toolchain; callers on other platforms
// get a clear error instead of a silently empty range map.
func DiscoverModuleRanges(harnessPath string, libs []string) (*RangeMap, error) {
	return nil, errors.New("instrument: module range discovery requires /proc/self/maps (Linux only)")
}
