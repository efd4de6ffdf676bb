package worktree

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeIgnoreFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, IgnoreFileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", IgnoreFileName, err)
	}
}

func mustChecker(t *testing.T, content string) *IgnoreChecker {
	t.Helper()
	ic, err := NewIgnoreChecker(strings.NewReader(content))
	if err != nil {
		t.Fatalf("NewIgnoreChecker: %v", err)
	}
	return ic
}

func TestIgnore_MissingFileIgnoresNothing(t *testing.T) {
	ic, err := LoadIgnoreFile(t.TempDir())
	if err != nil {
		t.Fatalf("LoadIgnoreFile: %v", err)
	}
	if ic.IsIgnored("Engine/Binaries/a.dll") {
		t.Error("expected nothing to be ignored without an ignore file")
	}
}

func TestIgnore_NilCheckerIgnoresNothing(t *testing.T) {
	var ic *IgnoreChecker
	if ic.IsIgnored("a.bin") {
		t.Error("nil checker should not ignore")
	}
}

func TestIgnore_SimpleGlobPattern(t *testing.T) {
	dir := t.TempDir()
	writeIgnoreFile(t, dir, "*.pdb\n")

	ic, err := LoadIgnoreFile(dir)
	if err != nil {
		t.Fatalf("LoadIgnoreFile: %v", err)
	}
	if !ic.IsIgnored("Engine/Binaries/Win64/Editor.pdb") {
		t.Error("expected .pdb files to be ignored at any depth")
	}
	if ic.IsIgnored("Engine/Binaries/Win64/Editor.dll") {
		t.Error("expected .dll to NOT be ignored")
	}
}

func TestIgnore_DirectoryPattern(t *testing.T) {
	ic := mustChecker(t, "Samples/\n")

	if !ic.IsIgnored("Samples/a.uasset") {
		t.Error("expected Samples/a.uasset to be ignored")
	}
	if !ic.IsIgnored("Engine/Samples/sub/b.uasset") {
		t.Error("expected nested Samples directory to be ignored")
	}
	if ic.IsIgnored("Samples.txt") {
		t.Error("directory pattern should not match a file of the same stem")
	}
}

func TestIgnore_AnchoredPathPattern(t *testing.T) {
	ic := mustChecker(t, "/Engine/Extras\n")

	if !ic.IsIgnored("Engine/Extras/tool.exe") {
		t.Error("expected literal path to cover its contents")
	}
	if ic.IsIgnored("Other/Engine/Extras/tool.exe") {
		t.Error("anchored pattern should not match deeper paths")
	}
}

func TestIgnore_NegationPattern(t *testing.T) {
	ic := mustChecker(t, "*.pdb\n!Keep.pdb\n")

	if ic.IsIgnored("bin/Keep.pdb") {
		t.Error("expected Keep.pdb to NOT be ignored (negated)")
	}
	if !ic.IsIgnored("bin/Other.pdb") {
		t.Error("expected Other.pdb to be ignored")
	}
}

func TestIgnore_CommentsAndBlankLines(t *testing.T) {
	ic := mustChecker(t, "# comment\n\n   \r\n*.tmp\r\n")

	if !ic.IsIgnored("a.tmp") {
		t.Error("expected a.tmp to be ignored")
	}
	if ic.IsIgnored("# comment") {
		t.Error("comment lines must not become patterns")
	}
}

func TestIgnore_Globstar(t *testing.T) {
	ic := mustChecker(t, "Engine/**/Mac/*.dylib\n")

	if !ic.IsIgnored("Engine/Mac/a.dylib") {
		t.Error("globstar should match zero segments")
	}
	if !ic.IsIgnored("Engine/Binaries/ThirdParty/Mac/a.dylib") {
		t.Error("globstar should match several segments")
	}
	if ic.IsIgnored("Engine/Binaries/Linux/a.dylib") {
		t.Error("unexpected match outside Mac")
	}
}

func TestIgnore_LeadingSlashAnchorsSingleElement(t *testing.T) {
	ic := mustChecker(t, "/Saved\n")

	if !ic.IsIgnored("Saved/Logs/run.log") {
		t.Error("expected top-level Saved to be ignored")
	}
	if ic.IsIgnored("Engine/Saved/Logs/run.log") {
		t.Error("leading slash should anchor the rule at the root")
	}
}

func TestIgnore_LaterRuleWins(t *testing.T) {
	ic := mustChecker(t, "!Engine/Keep/\nEngine/\n!Engine/Keep/\n")

	if !ic.IsIgnored("Engine/Binaries/a.dll") {
		t.Error("expected Engine contents to be ignored")
	}
	if ic.IsIgnored("Engine/Keep/b.dll") {
		t.Error("expected the last negation to re-include Engine/Keep")
	}
}
