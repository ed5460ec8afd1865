package asan

import "testing"

func TestResetClearsMetadata(t *testing.T) {
	m := &AllocationMetadata{
		Size: 64, Freed: true, IsMallocZero: true,
		AllocSiteTrace: Backtrace{"a"}, ReleaseSiteTrace: Backtrace{"b"},
	}
	m.reset()
	if m.Size != 0 || m.Freed || m.IsMallocZero || m.AllocSiteTrace != nil || m.ReleaseSiteTrace != nil {
		t.Fatalf("reset() left stale state: %+v", m)
	}
}

func TestBacktraceTopFrame(t *testing.T) {
	var empty Backtrace
	if got := empty.topFrame(); got != "" {
		t.Fatalf("topFrame() on empty backtrace = %q, want empty", got)
	}
	bt := Backtrace{"frame0", "frame1"}
	if got := bt.topFrame(); got != "frame0" {
		t.Fatalf("topFrame() = %q, want frame0", got)
	}
}

func TestCaptureBacktraceNonEmpty(t *testing.T) {
	bt := captureBacktrace(0)
	if len(bt) == 0 {
		t.Fatal("captureBacktrace returned no frames")
	}
}

func TestCurrentGoroutineStackNonEmpty(t *testing.T) {
	if currentGoroutineStack() == "" {
		t.Fatal("currentGoroutineStack returned empty string")
	}
}
