package worktree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/gitdeps/pkg/manifest"
)

func TestRemoveFilesPrunesEmptyDirectories(t *testing.T) {
	root := t.TempDir()
	writeTreeFile(t, root, "a/b/c/one.bin", "1")
	writeTreeFile(t, root, "a/two.bin", "2")
	readOnly := writeTreeFile(t, root, "x/y/ro.bin", "3")
	if err := os.Chmod(readOnly, 0o444); err != nil {
		t.Fatalf("Chmod: %v", err)
	}

	n, err := RemoveFiles(root, []manifest.WorkingFile{
		{Name: "a/b/c/one.bin"},
		{Name: "x/y/ro.bin"},
		{Name: "never/existed.bin"},
	})
	if err != nil {
		t.Fatalf("RemoveFiles: %v", err)
	}
	if n != 2 {
		t.Fatalf("removed = %d, want 2", n)
	}

	for _, gone := range []string{"a/b", "x"} {
		if _, err := os.Stat(filepath.Join(root, gone)); !os.IsNotExist(err) {
			t.Errorf("%s should have been pruned: %v", gone, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "a", "two.bin")); err != nil {
		t.Errorf("sibling file removed: %v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root must survive: %v", err)
	}
}

func TestFilterPrefixStopsAtSegment(t *testing.T) {
	f := NewFilter([]string{"Platform/Mac/", `\Samples`}, nil)

	cases := map[string]bool{
		"Platform/Mac":          true,
		"Platform/Mac/lib.a":    true,
		"Platform/MacOS/lib.a":  false,
		"Platform/Mac.txt":      false,
		"Samples/Demo/demo.bin": true,
		"SamplesExtra/a.bin":    false,
	}
	for name, want := range cases {
		if got := f.Excluded(name); got != want {
			t.Errorf("Excluded(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestFilterExcluded(t *testing.T) {
	f := NewFilter([]string{"Engine/Binaries/Mac"}, mustChecker(t, "*.pdb\n"))

	cases := map[string]bool{
		"Engine/Binaries/Mac/a.dylib": true,
		"Engine/Binaries/Win64/a.pdb": true,
		"Engine/Binaries/Win64/a.dll": false,
	}
	for name, want := range cases {
		if got := f.Excluded(name); got != want {
			t.Errorf("Excluded(%q) = %v, want %v", name, got, want)
		}
	}

	var none *Filter
	if none.Excluded("anything") {
		t.Error("nil filter should exclude nothing")
	}
}
