package cli

import (
	"github.com/intuitivelabs/natfuzz/config"
	"github.com/spf13/cobra"
)

// sizeFlags holds the uint64-backed pflag destinations for options the
// config package stores as uintptr (pflag has no UintptrVar). finalize
// copies them into an Options after parsing.
type sizeFlags struct {
	maxAllocation      uint64
	maxTotalAllocation uint64
}

func (s *sizeFlags) finalize(opts *config.Options) {
	opts.MaxAllocation = uintptr(s.maxAllocation)
	opts.MaxTotalAllocation = uintptr(s.maxTotalAllocation)
}

// addHarnessFlags registers the option set common to run/replay/stats
// onto cmd, writing results into opts and the returned sizeFlags.
func addHarnessFlags(cmd *cobra.Command, opts *config.Options) *sizeFlags {
	sf := &sizeFlags{
		maxAllocation:      uint64(opts.MaxAllocation),
		maxTotalAllocation: uint64(opts.MaxTotalAllocation),
	}
	f := cmd.Flags()
	f.StringVar(&opts.Harness, "harness", "", "path to the guest library under test (required)")
	f.StringVar(&opts.HarnessFunction, "harness-function", opts.HarnessFunction, "entry symbol name resolved inside the harness library")
	f.StringSliceVar(&opts.LibsToInstrument, "libs-to-instrument", nil, "additional modules to instrument")
	f.BoolVar(&opts.Cmplog, "cmplog", opts.Cmplog, "capture comparison operands for the external mutator")
	f.BoolVar(&opts.Asan, "asan", opts.Asan, "enable the shadow allocator and sanitizer checks")
	f.BoolVar(&opts.DisableCoverage, "disable-coverage", opts.DisableCoverage, "disable edge-coverage recording")
	f.Uint64Var(&sf.maxAllocation, "max-allocation", sf.maxAllocation, "per-call allocation size cap in bytes")
	f.BoolVar(&opts.MaxAllocationPanics, "max-allocation-panics", opts.MaxAllocationPanics, "panic instead of returning null when max-allocation is exceeded")
	f.Uint64Var(&sf.maxTotalAllocation, "max-total-allocation", sf.maxTotalAllocation, "aggregate allocation cap in bytes")
	f.BoolVar(&opts.AllocationBacktraces, "allocation-backtraces", opts.AllocationBacktraces, "capture allocation and release call-site stacks")
	cmd.MarkFlagRequired("harness")
	return sf
}
