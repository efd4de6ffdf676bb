package pack

import (
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/odvcencio/gitdeps/pkg/manifest"
)

// Summary describes a finished pack.
type Summary struct {
	Pack  manifest.TargetPack
	Blobs []manifest.TargetBlob
}

// Writer builds a pack: blob payloads concatenated in the order they are
// added and gzip-compressed as one stream.
type Writer struct {
	gz     *gzip.Writer
	out    *countingWriter
	stream hash.Hash
	offset uint64
	blobs  []manifest.TargetBlob
	seen   map[manifest.Hash]int
	closed bool
}

type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}

// NewWriter starts a pack written to w.
func NewWriter(w io.Writer) *Writer {
	out := &countingWriter{w: w}
	return &Writer{
		gz:     gzip.NewWriter(out),
		out:    out,
		stream: manifest.NewHasher(),
		seen:   make(map[manifest.Hash]int),
	}
}

// Add appends data as a new blob. Content already in the pack returns the
// existing entry and writes nothing.
func (w *Writer) Add(data []byte) (manifest.TargetBlob, error) {
	if w.closed {
		return manifest.TargetBlob{}, errors.New("pack writer closed")
	}
	h := manifest.HashBytes(data)
	if i, ok := w.seen[h]; ok {
		return w.blobs[i], nil
	}
	if _, err := w.gz.Write(data); err != nil {
		return manifest.TargetBlob{}, fmt.Errorf("write blob %s: %w", h, err)
	}
	w.stream.Write(data)
	blob := manifest.TargetBlob{Hash: h, Size: uint64(len(data)), PackOffset: w.offset}
	w.offset += blob.Size
	w.seen[h] = len(w.blobs)
	w.blobs = append(w.blobs, blob)
	return blob, nil
}

// Close flushes the gzip stream and returns the pack description. RemotePath
// and BaseURL are left for the caller.
func (w *Writer) Close() (*Summary, error) {
	if w.closed {
		return nil, errors.New("pack writer closed")
	}
	w.closed = true
	if err := w.gz.Close(); err != nil {
		return nil, fmt.Errorf("finish pack: %w", err)
	}
	packHash := manifest.HashSum(w.stream)
	blobs := make([]manifest.TargetBlob, len(w.blobs))
	for i, b := range w.blobs {
		b.PackHash = packHash
		blobs[i] = b
	}
	return &Summary{
		Pack: manifest.TargetPack{
			Hash:           packHash,
			Size:           w.offset,
			CompressedSize: w.out.n,
		},
		Blobs: blobs,
	}, nil
}
