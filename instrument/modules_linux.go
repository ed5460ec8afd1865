//go:build linux

package instrument

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DiscoverModuleRanges enumerates /proc/self/maps and returns a RangeMap
// covering the executable ranges of harnessPath and every module listed
// in libs, each tagged with the module path it came from. This is how
// the range map gets populated without an external enumeration step:
// since the guest is dlopen'd into this very process (package guest),
// its mapped code is already sitting in /proc/self/maps by the time this
// runs (spec §3 "populated once at start-up by enumerating the harness
// library").
func DiscoverModuleRanges(harnessPath string, libs []string) (*RangeMap, error) {
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	wanted := make([]string, 0, len(libs)+1)
	wanted = append(wanted, harnessPath)
	wanted = append(wanted, libs...)

	m := NewRangeMap()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 6 {
			continue
		}
		perms := fields[1]
		if len(perms) < 3 || perms[2] != 'x' {
			continue
		}
		mappedPath := fields[len(fields)-1]
		id, path, ok := matchModule(mappedPath, wanted)
		if !ok {
			continue
		}
		bounds := strings.SplitN(fields[0], "-", 2)
		if len(bounds) != 2 {
			continue
		}
		start, err1 := strconv.ParseUint(bounds[0], 16, 64)
		end, err2 := strconv.ParseUint(bounds[1], 16, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		m.Insert(uintptr(start), uintptr(end), ModuleInfo{ID: id, Path: path})
	}
	return m, sc.Err()
}

// matchModule reports whether mappedPath (a /proc/self/maps path field)
// names one of wanted, comparing by exact path first and falling back to
// basename so a relative --harness flag still matches the absolute path
// the kernel reports.
func matchModule(mappedPath string, wanted []string) (uint16, string, bool) {
	for i, w := range wanted {
		if w == "" {
			continue
		}
		if mappedPath == w || filepath.Base(mappedPath) == filepath.Base(w) {
			return uint16(i), w, true
		}
	}
	return 0, "", false
}
