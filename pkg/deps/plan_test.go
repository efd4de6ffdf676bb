package deps

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/odvcencio/gitdeps/pkg/manifest"
)

func hashOf(s string) manifest.Hash { return manifest.HashBytes([]byte(s)) }

func planState() *manifest.TargetState {
	state := manifest.NewTargetState()
	p1 := manifest.TargetPack{Hash: hashOf("p1"), CompressedSize: 100, BaseURL: "http://x"}
	p2 := manifest.TargetPack{Hash: hashOf("p2"), CompressedSize: 40, BaseURL: "http://x"}
	state.Packs[p1.Hash] = p1
	state.Packs[p2.Hash] = p2
	state.Blobs[hashOf("a")] = manifest.TargetBlob{Hash: hashOf("a"), Size: 1, PackHash: p1.Hash, PackOffset: 10}
	state.Blobs[hashOf("b")] = manifest.TargetBlob{Hash: hashOf("b"), Size: 1, PackHash: p1.Hash, PackOffset: 0}
	state.Blobs[hashOf("c")] = manifest.TargetBlob{Hash: hashOf("c"), Size: 1, PackHash: p2.Hash, PackOffset: 0}
	return state
}

func TestPlanGroupsByPack(t *testing.T) {
	root := t.TempDir()
	files := []manifest.TargetFile{
		{Name: "x/a1", Hash: hashOf("a")},
		{Name: "x/a2", Hash: hashOf("a")},
		{Name: "x/a3", Hash: hashOf("a"), IsExecutable: true},
		{Name: "x/b", Hash: hashOf("b")},
		{Name: "y/c", Hash: hashOf("c")},
	}
	jobs, err := Plan(root, planState(), files)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	for i := 1; i < len(jobs); i++ {
		if jobs[i-1].Pack.Hash >= jobs[i].Pack.Hash {
			t.Fatal("jobs not sorted by pack hash")
		}
	}

	var p1Files int
	for _, job := range jobs {
		if job.Pack.Hash != hashOf("p1") {
			continue
		}
		p1Files = job.FileCount()
		if len(job.Files) != 3 {
			t.Fatalf("p1 outputs = %+v", job.Files)
		}
		if job.Files[0].Blob.Hash != hashOf("b") {
			t.Fatalf("outputs not ordered by offset: %+v", job.Files)
		}
		for _, out := range job.Files {
			for _, p := range out.Paths {
				if !filepath.IsAbs(p) || !strings.HasPrefix(p, root) {
					t.Fatalf("path %q not under root", p)
				}
			}
			if out.Blob.Hash == hashOf("a") && !out.Executable && len(out.Paths) != 2 {
				t.Fatalf("shared blob paths = %v", out.Paths)
			}
		}
	}
	if p1Files != 4 {
		t.Fatalf("p1 file count = %d, want 4", p1Files)
	}
	if got := PlannedBytes(jobs); got != 140 {
		t.Fatalf("PlannedBytes = %d, want 140", got)
	}
}

func TestPlanRejectsUnresolvableFiles(t *testing.T) {
	state := planState()
	if _, err := Plan(t.TempDir(), state, []manifest.TargetFile{{Name: "z", Hash: hashOf("missing")}}); err == nil {
		t.Fatal("expected error for unknown blob")
	}

	state.Blobs[hashOf("d")] = manifest.TargetBlob{Hash: hashOf("d"), PackHash: hashOf("gone")}
	if _, err := Plan(t.TempDir(), state, []manifest.TargetFile{{Name: "d", Hash: hashOf("d")}}); err == nil {
		t.Fatal("expected error for unknown pack")
	}
}

func TestPlanEmpty(t *testing.T) {
	jobs, err := Plan(t.TempDir(), planState(), nil)
	if err != nil || len(jobs) != 0 {
		t.Fatalf("Plan(nil) = %v, %v", jobs, err)
	}
}
