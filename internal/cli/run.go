package cli

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/intuitivelabs/natfuzz/config"
	"github.com/intuitivelabs/natfuzz/executor"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	opts := config.DefaultOptions()
	var timeoutMs int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Repeatedly invoke the harness entry point with generated inputs",
		Args:  cobra.NoArgs,
	}
	sf := addHarnessFlags(cmd, &opts)
	cmd.Flags().IntVar(&opts.Iterations, "iterations", opts.Iterations, "number of iterations to run")
	cmd.Flags().Int64Var(&opts.Seed, "seed", opts.Seed, "PRNG seed for generated inputs (determinism is per-run only)")
	cmd.Flags().StringVar(&opts.InputDir, "input-dir", opts.InputDir, "seed corpus directory (accepted but not read; all inputs are generated randomly)")
	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 1000, "per-iteration watchdog timeout in milliseconds")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		sf.finalize(&opts)
		return runRun(cmd, opts, timeoutMs)
	}
	return cmd
}

func runRun(cmd *cobra.Command, opts config.Options, timeoutMs int) error {
	s, err := newSession(opts)
	if err != nil {
		return err
	}
	defer s.close()

	rng := rand.New(rand.NewSource(opts.Seed))
	timeout := time.Duration(timeoutMs) * time.Millisecond

	var counts [4]int
	var violations int
	for i := 0; i < opts.Iterations; i++ {
		input := randomInput(rng)
		res := s.runOne(input, timeout)
		counts[res.Outcome]++
		if res.Outcome == executor.SanitizerViolation {
			violations += len(res.Errors)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "iterations: %d\n", opts.Iterations)
	fmt.Fprintf(out, "  ok:                  %d\n", counts[executor.Ok])
	fmt.Fprintf(out, "  crash:               %d\n", counts[executor.Crash])
	fmt.Fprintf(out, "  timeout:             %d\n", counts[executor.Timeout])
	fmt.Fprintf(out, "  sanitizer_violation: %d (%d findings)\n", counts[executor.SanitizerViolation], violations)
	if s.bitmap != nil {
		fmt.Fprintf(out, "coverage: %d/%d edges hit\n", s.bitmap.Hits(), len(s.bitmap.Snapshot()))
	}
	return nil
}

// randomInput synthesises a small random byte buffer standing in for the
// external loop's mutation engine, which is out of scope for this core
// (spec.md §1 Non-goals).
func randomInput(rng *rand.Rand) []byte {
	n := rng.Intn(256)
	buf := make([]byte, n)
	rng.Read(buf)
	return buf
}
