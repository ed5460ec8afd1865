package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/intuitivelabs/natfuzz/asan"
	"github.com/intuitivelabs/natfuzz/cmplog"
	"github.com/intuitivelabs/natfuzz/config"
	"github.com/intuitivelabs/natfuzz/coverage"
	"github.com/intuitivelabs/natfuzz/executor"
	"github.com/intuitivelabs/natfuzz/guest"
	"github.com/intuitivelabs/natfuzz/instrument"
)

// session is the set of long-lived components one CLI invocation wires
// together: a loaded guest, a shadow allocator, a coverage bitmap, a
// comparison ring, and the executor adaptor driving iterations. The
// guest is always dlopen'd into this very process (package guest), so
// once it is loaded its code is already sitting in /proc/self/maps;
// newSession uses that to build a RangeMap and drive a real
// instrument.Helper over a SelfEngine once up front, wiring the
// composed runtimes into the range map and exercising the full
// translator pipeline (spec §4.4) rather than leaving it unreachable.
type session struct {
	opts      config.Options
	guest     *guest.Guest
	allocator *asan.Allocator
	bitmap    *coverage.Bitmap
	cmplog    *cmplog.Runtime
	ranges    *instrument.RangeMap
	adaptor   *executor.Adaptor
}

func newSession(opts config.Options) (*session, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	g, err := guest.Load(opts.Harness, opts.HarnessFunction)
	if err != nil {
		return nil, fmt.Errorf("loading harness: %w", err)
	}

	allocOpts := asan.DefaultOptions()
	allocOpts.MaxAllocation = opts.MaxAllocation
	allocOpts.MaxAllocationPanics = opts.MaxAllocationPanics
	allocOpts.MaxTotalAllocation = opts.MaxTotalAllocation
	allocOpts.AllocationBacktraces = opts.AllocationBacktraces

	var allocator *asan.Allocator
	if opts.Asan {
		allocator, err = asan.NewAllocator(allocOpts)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("initializing shadow allocator: %w", err)
		}
	}

	var bitmap *coverage.Bitmap
	if !opts.DisableCoverage {
		bitmap = coverage.NewBitmap()
	}

	var cmp *cmplog.Runtime
	if opts.Cmplog {
		cmp = cmplog.NewRuntime()
	}

	var runtimes instrument.Runtimes
	if bitmap != nil {
		runtimes = append(runtimes, bitmap)
	}
	if allocator != nil {
		runtimes = append(runtimes, asan.NewRuntime(allocator))
	}
	if cmp != nil {
		runtimes = append(runtimes, cmp)
	}

	ranges, err := instrument.DiscoverModuleRanges(opts.Harness, opts.LibsToInstrument)
	if err != nil {
		instrument.WARN("module range discovery unavailable, instrumentation callouts will not fire: %v", err)
		ranges = instrument.NewRangeMap()
	} else {
		for _, w := range opts.DontInstrument {
			base, ok := ranges.ModuleBase(w.Module)
			if !ok {
				continue
			}
			ranges.Remove(base+w.Offset, base+w.Offset+4)
		}
	}

	modules := append([]string{opts.Harness}, opts.LibsToInstrument...)
	runtimes.InitAll(ranges, modules)

	if len(runtimes) > 0 {
		engine := instrument.NewSelfEngine(ranges, instrument.Mode64)
		helper := instrument.NewHelper(ranges, runtimes, engine, instrument.Mode64)
		if err := helper.Run(nil); err != nil {
			instrument.WARN("static instrumentation pass failed: %v", err)
		}
	}

	adaptor := executor.NewAdaptor(runtimes, func(input []byte) (int32, error) {
		return g.Call(input)
	})

	return &session{opts: opts, guest: g, allocator: allocator, bitmap: bitmap, cmplog: cmp, ranges: ranges, adaptor: adaptor}, nil
}

func (s *session) close() {
	if s.guest != nil {
		s.guest.Close()
	}
}

func (s *session) runOne(input []byte, timeout time.Duration) executor.Result {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.adaptor.RunIteration(ctx, input)
}
