//go:build !cgo

package guest

import (
	"fmt"
	"plugin"
)

// PluginLoader resolves the guest entry symbol through Go's plugin
// package. It only accepts Go plugin objects (.so files built with
// `go build -buildmode=plugin`), so it cannot load a real closed-source
// C library — its role is exercising the rest of the pipeline without
// cgo, e.g. in CI or on hosts without a C toolchain. Production use of a
// true shared object goes through DlopenLoader (dlopen_cgo.go).
type PluginLoader struct{}

// Load implements Loader.
func (PluginLoader) Load(path, symbol string) (*Guest, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("guest: plugin.Open(%s): %w", path, err)
	}
	sym, err := p.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("guest: lookup %s in %s: %w", symbol, path, err)
	}
	entry, ok := sym.(func([]byte) int32)
	if !ok {
		return nil, fmt.Errorf("guest: symbol %s in %s has wrong signature, want func([]byte) int32", symbol, path)
	}
	return &Guest{Path: path, Symbol: symbol, entry: entry}, nil
}

// Load resolves path/symbol using the default loader for this build
// (PluginLoader without cgo, DlopenLoader with it).
func Load(path, symbol string) (*Guest, error) {
	return PluginLoader{}.Load(path, symbol)
}
