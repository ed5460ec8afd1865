package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/intuitivelabs/natfuzz/asan"
	"github.com/intuitivelabs/natfuzz/instrument"
)

func TestRunIterationOk(t *testing.T) {
	asan.Drain()
	a := NewAdaptor(nil, func(input []byte) (int32, error) {
		return 0, nil
	})
	res := a.RunIteration(context.Background(), []byte("x"))
	if res.Outcome != Ok {
		t.Fatalf("Outcome = %v, want Ok", res.Outcome)
	}
}

func TestRunIterationCrashOnGuestError(t *testing.T) {
	asan.Drain()
	a := NewAdaptor(nil, func(input []byte) (int32, error) {
		return -1, errors.New("boom")
	})
	res := a.RunIteration(context.Background(), []byte("x"))
	if res.Outcome != Crash {
		t.Fatalf("Outcome = %v, want Crash", res.Outcome)
	}
}

func TestRunIterationPanicIsCrash(t *testing.T) {
	asan.Drain()
	a := NewAdaptor(nil, func(input []byte) (int32, error) {
		panic("guest exploded")
	})
	res := a.RunIteration(context.Background(), []byte("x"))
	if res.Outcome != Crash {
		t.Fatalf("Outcome = %v, want Crash", res.Outcome)
	}
}

func TestRunIterationTimeout(t *testing.T) {
	asan.Drain()
	a := NewAdaptor(nil, func(input []byte) (int32, error) {
		time.Sleep(200 * time.Millisecond)
		return 0, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res := a.RunIteration(ctx, []byte("x"))
	if res.Outcome != Timeout {
		t.Fatalf("Outcome = %v, want Timeout", res.Outcome)
	}
}

func TestRunIterationSanitizerViolation(t *testing.T) {
	asan.Drain()
	a := NewAdaptor(nil, func(input []byte) (int32, error) {
		asan.ReportError(asan.AsanError{Kind: asan.KindOutOfBounds, Addr: 0x1000, Width: 4})
		return 0, nil
	})
	res := a.RunIteration(context.Background(), []byte("x"))
	if res.Outcome != SanitizerViolation {
		t.Fatalf("Outcome = %v, want SanitizerViolation", res.Outcome)
	}
	want := Result{
		Outcome:    SanitizerViolation,
		ReturnCode: 0,
		Errors:     []asan.AsanError{{Kind: asan.KindOutOfBounds, Addr: 0x1000, Width: 4}},
	}
	if diff := cmp.Diff(want, res, cmpopts.IgnoreFields(asan.AsanError{}, "Stack")); diff != "" {
		t.Fatalf("Result mismatch (-want +got):\n%s", diff)
	}
}

func TestOutcomeString(t *testing.T) {
	cases := map[Outcome]string{Ok: "Ok", Crash: "Crash", Timeout: "Timeout", SanitizerViolation: "SanitizerViolation"}
	for o, want := range cases {
		if got := o.String(); got != want {
			t.Fatalf("Outcome(%d).String() = %q, want %q", o, got, want)
		}
	}
}

var _ instrument.Runtime = (*noopRuntime)(nil)

type noopRuntime struct{}

func (noopRuntime) Init(ranges *instrument.RangeMap, modules []string) {}
func (noopRuntime) PreExec(input []byte) error                        { return nil }
func (noopRuntime) PostExec(input []byte) error                       { return nil }

func TestRunIterationInvokesRuntimes(t *testing.T) {
	asan.Drain()
	rt := &trackingRuntime{}
	a := NewAdaptor(instrument.Runtimes{rt}, func(input []byte) (int32, error) {
		return 0, nil
	})
	a.RunIteration(context.Background(), []byte("x"))
	if !rt.pre || !rt.post {
		t.Fatalf("expected both PreExec and PostExec to be called, got pre=%v post=%v", rt.pre, rt.post)
	}
}

type trackingRuntime struct {
	noopRuntime
	pre, post bool
}

func (r *trackingRuntime) PreExec(input []byte) error {
	r.pre = true
	return nil
}

func (r *trackingRuntime) PostExec(input []byte) error {
	r.post = true
	return nil
}
