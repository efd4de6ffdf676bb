//go:build windows

package worktree

import (
	"errors"
	"os"
)

// Windows has no execute bit; executability follows the file extension.
type platformExec struct{}

func (platformExec) SetExecutable(string) error { return nil }

func makeWritable(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.Mode().Perm()&0o200 != 0 {
		return nil
	}
	return os.Chmod(path, 0o666)
}
