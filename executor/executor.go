// Package executor drives one fuzzing iteration through the composed
// runtimes and the guest entry point, and classifies the outcome for the
// external fuzzing loop (spec §4.5).
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/intuitivelabs/natfuzz/asan"
	"github.com/intuitivelabs/natfuzz/instrument"
)

// Outcome is the exit classification surfaced after an iteration.
type Outcome int

const (
	// Ok means the guest returned normally with no recorded violation.
	Ok Outcome = iota
	// Crash means the guest call itself panicked or the process received
	// a fatal signal (detected via recover in Call, or by the caller for
	// subprocess-based guests).
	Crash
	// Timeout means the watchdog fired before the guest call returned.
	Timeout
	// SanitizerViolation means the Error Registry was non-empty after
	// the call, regardless of whether the guest call itself returned
	// normally.
	SanitizerViolation
)

func (o Outcome) String() string {
	switch o {
	case Ok:
		return "Ok"
	case Crash:
		return "Crash"
	case Timeout:
		return "Timeout"
	case SanitizerViolation:
		return "SanitizerViolation"
	default:
		return "Unknown"
	}
}

// GuestCall is the C-ABI-shaped entry point the guest library exposes:
// fn(ptr *const u8, len usize) -> i32 (spec §6). A real guest.Guest.Call
// satisfies this signature directly.
type GuestCall func(input []byte) (int32, error)

// Result is everything the external fuzzing loop needs after one
// iteration: the classification, the guest's raw return code, and any
// sanitizer findings drained from the registry.
type Result struct {
	Outcome    Outcome
	ReturnCode int32
	Errors     []asan.AsanError
}

// Adaptor is the executor adaptor: owns no state beyond the runtime list
// and the error registry it drains, matching spec §5's description of
// the registry as the only process-wide mutable object the adaptor
// touches directly.
type Adaptor struct {
	Runtimes instrument.Runtimes
	Call     GuestCall

	// callMu serializes guest calls across iterations. A timed-out call is
	// abandoned by RunIteration but its goroutine keeps running against the
	// guest and the shared allocator/bitmap state; holding callMu for the
	// goroutine's full lifetime (not just until it reports in) makes the
	// next RunIteration block at the same point instead of starting a
	// second call concurrently with the straggler.
	callMu sync.Mutex
}

// NewAdaptor builds an Adaptor over the given composed runtimes and
// guest entry point.
func NewAdaptor(runtimes instrument.Runtimes, call GuestCall) *Adaptor {
	return &Adaptor{Runtimes: runtimes, Call: call}
}

// RunIteration executes the five-step lifecycle spec §4.5 describes:
// reset the error registry, pre_exec_all, invoke the guest, post_exec_all,
// drain the registry, and classify. ctx governs the watchdog: if ctx is
// cancelled before the guest call returns, the iteration is classified
// Timeout.
func (a *Adaptor) RunIteration(ctx context.Context, input []byte) Result {
	asan.Drain()

	if err := a.Runtimes.PreExecAll(input); err != nil {
		WARN("pre_exec_all failed: %v", err)
		return Result{Outcome: Crash, Errors: nil}
	}

	type callResult struct {
		code int32
		err  error
	}
	done := make(chan callResult, 1)
	a.callMu.Lock()
	go func() {
		defer a.callMu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				BUG("guest call panicked: %v", r)
				done <- callResult{err: fmt.Errorf("guest call panicked: %v", r)}
			}
		}()
		code, err := a.Call(input)
		done <- callResult{code: code, err: err}
	}()

	var res callResult
	select {
	case res = <-done:
	case <-ctx.Done():
		DBG("iteration timed out waiting for the guest call")
		errs := asan.Drain()
		return Result{Outcome: Timeout, Errors: errs}
	}

	if postErr := a.Runtimes.PostExecAll(input); postErr != nil {
		WARN("post_exec_all failed: %v", postErr)
		errs := asan.Drain()
		return Result{Outcome: Crash, ReturnCode: res.code, Errors: errs}
	}

	errs := asan.Drain()
	if len(errs) > 0 {
		return Result{Outcome: SanitizerViolation, ReturnCode: res.code, Errors: errs}
	}
	if res.err != nil {
		return Result{Outcome: Crash, ReturnCode: res.code, Errors: errs}
	}
	return Result{Outcome: Ok, ReturnCode: res.code, Errors: errs}
}
