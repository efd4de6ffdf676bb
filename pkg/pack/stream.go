package pack

import (
	"io"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
	"github.com/odvcencio/gitdeps/pkg/manifest"
)

// CountingReader counts the bytes read through it and reports each read to
// OnRead, if set.
type CountingReader struct {
	R      io.Reader
	OnRead func(n int64)

	n atomic.Int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	if n > 0 {
		c.n.Add(int64(n))
		if c.OnRead != nil {
			c.OnRead(int64(n))
		}
	}
	return n, err
}

// Count returns the number of bytes read so far.
func (c *CountingReader) Count() int64 { return c.n.Load() }

// ForkReader copies everything read from R into W. A failed write detaches W
// and is remembered, but never fails the read side.
type ForkReader struct {
	r   io.Reader
	w   io.Writer
	err error
}

// NewForkReader returns a reader that tees r into w.
func NewForkReader(r io.Reader, w io.Writer) *ForkReader {
	return &ForkReader{r: r, w: w}
}

func (f *ForkReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if n > 0 && f.w != nil {
		if _, werr := f.w.Write(p[:n]); werr != nil {
			f.err = werr
			f.w = nil
		}
	}
	return n, err
}

// ForkErr returns the write error that detached the fork, if any.
func (f *ForkReader) ForkErr() error { return f.err }

// NewGzipReader opens the decompressed stream of a pack. A bad header is
// reported as a *CorruptError.
func NewGzipReader(r io.Reader, pack manifest.Hash) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, &CorruptError{Pack: pack, Reason: "open gzip stream", Err: err}
	}
	return zr, nil
}
