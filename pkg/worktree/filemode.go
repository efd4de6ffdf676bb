package worktree

// ExecSetter marks a file executable. The core never branches on the OS; the
// platform implementation is chosen at build time.
type ExecSetter interface {
	SetExecutable(path string) error
}

// ExecSetterFunc adapts a function to ExecSetter.
type ExecSetterFunc func(path string) error

// SetExecutable calls f(path).
func (f ExecSetterFunc) SetExecutable(path string) error {
	return f(path)
}

// DefaultExecSetter returns the implementation for the running platform.
func DefaultExecSetter() ExecSetter {
	return platformExec{}
}

// MakeWritable clears read-only protection on path so it can be replaced or
// deleted. Missing files are not an error.
func MakeWritable(path string) error {
	return makeWritable(path)
}
