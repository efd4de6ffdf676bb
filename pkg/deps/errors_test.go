package deps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/odvcencio/gitdeps/pkg/download"
	"github.com/odvcencio/gitdeps/pkg/manifest"
	"github.com/odvcencio/gitdeps/pkg/pack"
	"github.com/odvcencio/gitdeps/pkg/remote"
	"github.com/odvcencio/gitdeps/pkg/worktree"
)

func TestRetryable(t *testing.T) {
	aborted := func(err error) error { return fmt.Errorf("%w: %w", download.ErrAborted, err) }
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"parse", fmt.Errorf("read x: %w", manifest.ErrParse), false},
		{"tampered", fmt.Errorf("%w: 2 file(s)", worktree.ErrTampered), false},
		{"canceled", context.Canceled, false},
		{"deadline", aborted(context.DeadlineExceeded), true},
		{"network", aborted(&remote.TransportError{URL: "http://x", Err: io.ErrUnexpectedEOF}), true},
		{"server 503", aborted(&remote.TransportError{URL: "http://x", StatusCode: 503}), true},
		{"throttled", aborted(&remote.TransportError{URL: "http://x", StatusCode: 429}), true},
		{"not found", aborted(&remote.TransportError{URL: "http://x", StatusCode: 404}), false},
		{"forbidden", aborted(&remote.TransportError{URL: "http://x", StatusCode: 403}), false},
		{"corrupt", aborted(&pack.CorruptError{Pack: hashOf("p"), Reason: "truncated"}), true},
		{"other", errors.New("disk full"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
