package pack

import (
	"errors"
	"fmt"

	"github.com/odvcencio/gitdeps/pkg/manifest"
)

// CorruptError reports a pack whose content could not be trusted: a short or
// unreadable stream, a bad gzip header, or a hash mismatch.
type CorruptError struct {
	Pack   manifest.Hash
	Reason string
	Err    error
}

func (e *CorruptError) Error() string {
	msg := "corrupt pack"
	if e.Pack != "" {
		msg += " " + string(e.Pack)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptError) Unwrap() error { return e.Err }

// IsCorrupt reports whether err carries a *CorruptError.
func IsCorrupt(err error) bool {
	var ce *CorruptError
	return errors.As(err, &ce)
}

func corruptf(pack manifest.Hash, err error, format string, args ...any) *CorruptError {
	return &CorruptError{Pack: pack, Reason: fmt.Sprintf(format, args...), Err: err}
}
