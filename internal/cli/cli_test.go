package cli

import (
	"bytes"
	"testing"
)

func TestRootCommandHasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "replay", "stats"} {
		if !names[want] {
			t.Fatalf("expected subcommand %q, got %v", want, names)
		}
	}
}

func TestRunRequiresHarnessFlag(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"run", "--iterations", "1"})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	if err := root.Execute(); err == nil {
		t.Fatal("expected run without --harness to fail")
	}
}

func TestReplayRequiresInputFileFlag(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"replay", "--harness", "/tmp/libtarget.so"})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	if err := root.Execute(); err == nil {
		t.Fatal("expected replay without --input-file to fail")
	}
}
