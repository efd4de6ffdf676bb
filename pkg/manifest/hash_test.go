package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHashBytesKnownDigest(t *testing.T) {
	// sha1("abc")
	want := Hash("a9993e364706816aba3e25717850c26c9cd0d89d")
	if got := HashBytes([]byte("abc")); got != want {
		t.Fatalf("HashBytes(abc) = %s, want %s", got, want)
	}
}

func TestHashFileMatchesHashBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	data := []byte(strings.Repeat("gitdeps", 1000))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if want := HashBytes(data); got != want {
		t.Fatalf("HashFile = %s, want %s", got, want)
	}
}

func TestParseHash(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Hash
		wantErr bool
	}{
		{name: "lowercase", in: "a9993e364706816aba3e25717850c26c9cd0d89d", want: "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{name: "uppercase normalized", in: " A9993E364706816ABA3E25717850C26C9CD0D89D ", want: "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{name: "too short", in: "a9993e", wantErr: true},
		{name: "non hex", in: "z9993e364706816aba3e25717850c26c9cd0d89d", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseHash(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseHash(%q): expected error", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHash(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("ParseHash(%q) = %s, want %s", tc.in, got, tc.want)
			}
		})
	}
}
