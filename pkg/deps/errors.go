package deps

import (
	"context"
	"errors"
	"net/http"

	"github.com/odvcencio/gitdeps/pkg/manifest"
	"github.com/odvcencio/gitdeps/pkg/pack"
	"github.com/odvcencio/gitdeps/pkg/remote"
	"github.com/odvcencio/gitdeps/pkg/worktree"
)

// Retryable reports whether running the sync again may succeed without any
// change on the user's side: transient network failures and corrupt packs.
// Parse errors, tamper blocks, cancellation and client-side HTTP errors are
// not retryable.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, manifest.ErrParse),
		errors.Is(err, worktree.ErrTampered),
		errors.Is(err, context.Canceled):
		return false
	}

	var te *remote.TransportError
	if errors.As(err, &te) {
		return te.StatusCode == 0 ||
			te.StatusCode == http.StatusTooManyRequests ||
			te.StatusCode == http.StatusRequestTimeout ||
			te.StatusCode >= 500
	}
	if pack.IsCorrupt(err) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
