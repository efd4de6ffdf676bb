//go:build !windows

package worktree

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetExecutableFollowsReadBits(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tool")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	if err := DefaultExecSetter().SetExecutable(p); err != nil {
		t.Fatalf("SetExecutable: %v", err)
	}
	info, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != 0o750 {
		t.Fatalf("mode = %o, want 750", got)
	}
}
