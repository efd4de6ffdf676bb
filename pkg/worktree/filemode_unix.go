//go:build !windows

package worktree

import (
	"errors"
	"os"
)

type platformExec struct{}

// SetExecutable adds an execute bit wherever the file has a read bit.
func (platformExec) SetExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	mode := info.Mode().Perm()
	exec := mode | (mode&0o444)>>2
	if exec == mode {
		return nil
	}
	return os.Chmod(path, exec)
}

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
	return os.Chmod(path, info.Mode().Perm()|0o200)
}
