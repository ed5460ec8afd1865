package cli

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/intuitivelabs/natfuzz/config"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	opts := config.DefaultOptions()
	var timeoutMs int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Run a short session and report aggregate allocator and coverage statistics",
		Args:  cobra.NoArgs,
	}
	sf := addHarnessFlags(cmd, &opts)
	cmd.Flags().IntVar(&opts.Iterations, "iterations", opts.Iterations, "number of iterations to run before reporting")
	cmd.Flags().Int64Var(&opts.Seed, "seed", opts.Seed, "PRNG seed for generated inputs")
	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 1000, "per-iteration watchdog timeout in milliseconds")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		sf.finalize(&opts)
		return runStats(cmd, opts, timeoutMs)
	}
	return cmd
}

func runStats(cmd *cobra.Command, opts config.Options, timeoutMs int) error {
	s, err := newSession(opts)
	if err != nil {
		return err
	}
	defer s.close()

	rng := rand.New(rand.NewSource(opts.Seed))
	timeout := time.Duration(timeoutMs) * time.Millisecond
	for i := 0; i < opts.Iterations; i++ {
		s.runOne(randomInput(rng), timeout)
	}

	out := cmd.OutOrStdout()
	if s.allocator != nil {
		st := s.allocator.Stats()
		fmt.Fprintf(out, "allocator:\n")
		fmt.Fprintf(out, "  new_calls:    %d\n", st.NewCalls.Get())
		fmt.Fprintf(out, "  free_calls:   %d\n", st.FreeCalls.Get())
		fmt.Fprintf(out, "  reuse_hits:   %d\n", st.ReuseHits.Get())
		fmt.Fprintf(out, "  reuse_misses: %d\n", st.ReuseMisses.Get())
		fmt.Fprintf(out, "  failures:     %d\n", st.Failures.Get())
		fmt.Fprintf(out, "  total_size:   %d\n", st.TotalSize.Get())
	}
	if s.bitmap != nil {
		fmt.Fprintf(out, "coverage:\n")
		fmt.Fprintf(out, "  edges_hit: %d\n", s.bitmap.Hits())
	}
	if s.cmplog != nil {
		fmt.Fprintf(out, "cmplog:\n")
		fmt.Fprintf(out, "  comparisons_recorded: %d\n", len(s.cmplog.Entries()))
	}
	return nil
}
