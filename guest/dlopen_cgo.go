//go:build cgo

package guest

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>

static int32_t natfuzz_call_entry(void *fn, const uint8_t *data, size_t len) {
	typedef int32_t (*entry_fn)(const uint8_t *, size_t);
	return ((entry_fn)fn)(data, len);
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// DlopenLoader resolves the guest entry symbol out of a real shared
// object via dlopen(3)/dlsym(3), the Go equivalent of the original's
// libloading::Library::new(...).get(...) (spec §4.6). This is the loader
// that matters in production: closed-source native libraries under test
// are never Go plugins.
type DlopenLoader struct{}

// Load implements Loader.
func (DlopenLoader) Load(path, symbol string) (*Guest, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	handle := C.dlopen(cPath, C.RTLD_NOW)
	if handle == nil {
		return nil, fmt.Errorf("guest: dlopen(%s): %s", path, C.GoString(C.dlerror()))
	}

	cSymbol := C.CString(symbol)
	defer C.free(unsafe.Pointer(cSymbol))

	fn := C.dlsym(handle, cSymbol)
	if fn == nil {
		C.dlclose(handle)
		return nil, fmt.Errorf("guest: dlsym(%s, %s): %s", path, symbol, C.GoString(C.dlerror()))
	}

	g := &Guest{
		Path:   path,
		Symbol: symbol,
		entry: func(input []byte) int32 {
			var ptr *C.uint8_t
			if len(input) > 0 {
				ptr = (*C.uint8_t)(unsafe.Pointer(&input[0]))
			}
			return int32(C.natfuzz_call_entry(fn, ptr, C.size_t(len(input))))
		},
		closer: func() error {
			if C.dlclose(handle) != 0 {
				return fmt.Errorf("guest: dlclose(%s): %s", path, C.GoString(C.dlerror()))
			}
			return nil
		},
	}
	return g, nil
}

// Load resolves path/symbol using the default loader for this build
// (DlopenLoader with cgo enabled).
func Load(path, symbol string) (*Guest, error) {
	return DlopenLoader{}.Load(path, symbol)
}
