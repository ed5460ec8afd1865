// Package config carries the fuzzer's recognised options (spec §6) plus
// the fields cmd/natfuzz needs to drive the core directly in place of a
// real external fuzzing loop.
package config

import "fmt"

// DontInstrumentWindow is a (module, offset) four-byte skip window
// punched out of the instrumentation range map (spec §6).
type DontInstrumentWindow struct {
	Module string
	Offset uintptr
}

// Options carries every recognised option from spec.md §6, plus the
// fields that stand in for the external fuzzing loop's own
// configuration when cmd/natfuzz drives the core directly. There is no
// process-wide package-level config var here: the Error Registry is the
// only process-wide state this system needs, so configuration is
// passed explicitly through constructors.
type Options struct {
	// Harness is the path to the guest library under test.
	Harness string
	// HarnessFunction is the entry symbol name resolved inside Harness.
	HarnessFunction string
	// LibsToInstrument names additional modules, beyond the harness
	// itself, whose basic blocks should be instrumented.
	LibsToInstrument []string
	// DontInstrument lists windows to punch out of the range map.
	DontInstrument []DontInstrumentWindow

	Cmplog          bool
	Asan            bool
	DisableCoverage bool

	MaxAllocation        uintptr
	MaxAllocationPanics  bool
	MaxTotalAllocation   uintptr
	AllocationBacktraces bool

	// Iterations is how many times cmd/natfuzz's run subcommand invokes
	// the guest before reporting a summary, standing in for the
	// external loop's own iteration count.
	Iterations int
	// Seed is the PRNG seed driving input generation for the run
	// subcommand. Determinism is only guaranteed per-run, never across
	// runs or platforms (spec.md §1 Non-goals).
	Seed int64
	// InputFile replays a single fixed input instead of generating
	// random ones (used by the replay subcommand).
	InputFile string
	// InputDir names a seed-corpus directory. The run subcommand accepts
	// it but does not read it; every run input is generated randomly.
	InputDir string
}

// DefaultOptions returns the option set new CLI invocations start from.
func DefaultOptions() Options {
	return Options{
		HarnessFunction:    "harness_entry",
		Asan:               true,
		MaxAllocation:      1 << 30,
		MaxTotalAllocation: 1 << 34,
		Iterations:         1000,
	}
}

// Validate rejects configurations the core cannot act on (spec §4.7):
// a missing harness path or entry symbol, a zero MaxAllocation that
// would reject every allocation the guest ever makes, a non-zero
// MaxTotalAllocation below MaxAllocation, or InputFile and InputDir set
// together.
func (o Options) Validate() error {
	if o.Harness == "" {
		return fmt.Errorf("config: harness library path is required")
	}
	if o.HarnessFunction == "" {
		return fmt.Errorf("config: harness entry symbol is required")
	}
	if o.MaxAllocation == 0 {
		return fmt.Errorf("config: max_allocation must be non-zero")
	}
	if o.MaxTotalAllocation != 0 && o.MaxTotalAllocation < o.MaxAllocation {
		return fmt.Errorf("config: max_total_allocation (%d) must be >= max_allocation (%d)", o.MaxTotalAllocation, o.MaxAllocation)
	}
	if o.InputFile != "" && o.InputDir != "" {
		return fmt.Errorf("config: input_file and input_dir are mutually exclusive")
	}
	return nil
}
