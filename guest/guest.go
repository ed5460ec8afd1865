// Package guest loads the closed-source native library under test and
// resolves its C-ABI entry point (spec §4.6). original_source/fuzzers/unitfuzzer/src/fuzzer.rs
// does this with libloading: open the shared object, look up a symbol,
// and wrap it as a callable fn(*const u8, usize) -> i32. This package
// offers the same shape in Go through two loader backends behind the
// common Loader interface.
package guest

import "fmt"

// EntryFunc is the guest's C-ABI entry point signature, called once per
// fuzzing iteration with the raw input buffer.
type EntryFunc func(input []byte) int32

// Guest is a loaded native library bound to one resolved entry symbol.
type Guest struct {
	Path   string
	Symbol string
	entry  EntryFunc
	closer func() error
}

// Call invokes the resolved entry point, matching executor.GuestCall's
// shape: fn(*const u8, usize) -> i32 translated into idiomatic Go. It
// never itself classifies the call; a panic inside entry propagates to
// the caller (executor.Adaptor.RunIteration recovers it).
func (g *Guest) Call(input []byte) (int32, error) {
	if g.entry == nil {
		return 0, fmt.Errorf("guest: %s: no entry symbol resolved", g.Path)
	}
	return g.entry(input), nil
}

// Close releases the loader's resources, if the backend holds any.
func (g *Guest) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer()
}

// Loader resolves a symbol out of a shared library path into a callable
// EntryFunc. Load wraps whichever backend is compiled in (see
// plugin_loader.go, dlopen_cgo.go).
type Loader interface {
	Load(path, symbol string) (*Guest, error)
}
