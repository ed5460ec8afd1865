//go:build !cgo

package guest

import "testing"

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/path/libtarget.so", "harness_entry")
	if err == nil {
		t.Fatal("expected Load of a missing file to fail")
	}
}

func TestGuestCallWithoutEntryErrors(t *testing.T) {
	g := &Guest{Path: "stub", Symbol: "none"}
	if _, err := g.Call([]byte("x")); err == nil {
		t.Fatal("expected Call on an unresolved entry to error")
	}
}

func TestGuestCloseNoopWhenNoCloser(t *testing.T) {
	g := &Guest{Path: "stub"}
	if err := g.Close(); err != nil {
		t.Fatalf("Close() = %v, want nil", err)
	}
}

func TestGuestCallInvokesResolvedEntry(t *testing.T) {
	var seen []byte
	g := &Guest{
		Path: "stub",
		entry: func(input []byte) int32 {
			seen = input
			return 42
		},
	}
	code, err := g.Call([]byte("hello"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if code != 42 {
		t.Fatalf("code = %d, want 42", code)
	}
	if string(seen) != "hello" {
		t.Fatalf("entry saw %q, want %q", seen, "hello")
	}
}
