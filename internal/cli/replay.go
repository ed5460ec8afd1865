package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/intuitivelabs/natfuzz/config"
	"github.com/spf13/cobra"
)

func newReplayCmd() *cobra.Command {
	opts := config.DefaultOptions()
	var timeoutMs int

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Invoke the harness entry point once with a fixed input file",
		Args:  cobra.NoArgs,
	}
	sf := addHarnessFlags(cmd, &opts)
	cmd.Flags().StringVar(&opts.InputFile, "input-file", "", "path to the input to replay (required)")
	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 5000, "watchdog timeout in milliseconds")
	cmd.MarkFlagRequired("input-file")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		sf.finalize(&opts)
		return runReplay(cmd, opts, timeoutMs)
	}
	return cmd
}

func runReplay(cmd *cobra.Command, opts config.Options, timeoutMs int) error {
	input, err := os.ReadFile(opts.InputFile)
	if err != nil {
		return fmt.Errorf("reading input file: %w", err)
	}

	s, err := newSession(opts)
	if err != nil {
		return err
	}
	defer s.close()

	res := s.runOne(input, time.Duration(timeoutMs)*time.Millisecond)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "outcome: %s (return code %d)\n", res.Outcome, res.ReturnCode)
	for _, e := range res.Errors {
		fmt.Fprintf(out, "  finding: %s\n", e)
	}
	if verboseFlag {
		spew.Fdump(out, res)
	}
	return nil
}
