// Package cli is the cobra command tree for natfuzz, standing in for
// the external fuzzing loop well enough to drive the core directly for
// one-shot and repeated-iteration smoke runs (spec §1, SPEC_FULL.md §6).
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	jsonFlag    bool
	verboseFlag bool
)

// NewRootCmd builds the full natfuzz command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "natfuzz",
		Short:         "Coverage-guided in-process fuzzer core for closed-source native libraries",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if jsonFlag && verboseFlag {
				return fmt.Errorf("--json and --verbose are mutually exclusive")
			}
			return nil
		},
	}

	pflags := root.PersistentFlags()
	pflags.BoolVarP(&jsonFlag, "json", "j", false, "accepted for scripting; output is plain text either way (excludes --verbose)")
	pflags.BoolVarP(&verboseFlag, "verbose", "v", false, "dump full internal state with go-spew")

	root.AddCommand(newRunCmd())
	root.AddCommand(newReplayCmd())
	root.AddCommand(newStatsCmd())
	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}
