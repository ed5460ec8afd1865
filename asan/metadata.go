package asan

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
)

// AllocationMetadata describes one live or historically-live allocation
// returned to the guest. See spec §3 "AllocationMetadata".
type AllocationMetadata struct {
	Address      uintptr
	Size         uintptr
	ActualSize   uintptr
	Freed        bool
	IsMallocZero bool

	AllocSiteTrace   Backtrace
	ReleaseSiteTrace Backtrace
}

func (m *AllocationMetadata) reset() {
	m.Size = 0
	m.Freed = false
	m.IsMallocZero = false
	m.AllocSiteTrace = nil
	m.ReleaseSiteTrace = nil
}

// Backtrace is a resolved call stack, captured only when configured
// (spec §7 "Backtrace capture is off by default").
type Backtrace []string

// captureBacktrace walks the stack with github.com/pkg/errors, which this
// package already uses for its setup-failure errors (see NewAllocator,
// probeShadowBit); reusing it here avoids a second, redundant
// stack-walking dependency.
func captureBacktrace(skip int) Backtrace {
	err := errors.New("")
	st, ok := err.(interface{ StackTrace() errors.StackTrace })
	if !ok {
		return nil
	}
	frames := st.StackTrace()
	bt := make(Backtrace, 0, len(frames))
	for i, f := range frames {
		if i < skip {
			continue
		}
		bt = append(bt, fmt.Sprintf("%+v", f))
	}
	return bt
}

// topFrame returns the first (innermost) frame of the backtrace, the
// frame that attributes a violation to a likely library
// (spec §8 scenario 6: "top frame lies inside the harness library's range").
func (b Backtrace) topFrame() string {
	if len(b) == 0 {
		return ""
	}
	return b[0]
}

// currentGoroutineStack is a lightweight fallback used where we only need
// a quick diagnostic (e.g. UnallocatedFree against an address we never
// served) and don't want the cost of pkg/errors' full stack capture.
func currentGoroutineStack() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
