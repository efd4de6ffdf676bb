package pack

import (
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/odvcencio/gitdeps/pkg/manifest"
	"github.com/odvcencio/gitdeps/pkg/worktree"
)

// DefaultChunkSize is the read size used while demultiplexing a pack.
const DefaultChunkSize = 128 << 10

// OutputFile is one blob of a pack and every path that receives its bytes.
type OutputFile struct {
	Blob       manifest.TargetBlob
	Paths      []string
	Executable bool
}

// ExtractOptions configures Extract.
type ExtractOptions struct {
	// Pack names the pack in errors. With VerifyPack it is also the hash the
	// whole decompressed stream must have.
	Pack manifest.Hash
	// VerifyPack reads the stream to the end and checks it against Pack.
	VerifyPack bool
	ChunkSize  int
	ExecSetter worktree.ExecSetter
}

type fileState int

const (
	statePending fileState = iota
	stateWriting
	stateVerifying
	stateVerified
	statePublished
	stateFailed
)

type outputState struct {
	OutputFile
	state fileState
	temps []string
	f     *os.File
	w     io.Writer
	h     hash.Hash
}

type extraction struct {
	opts    ExtractOptions
	files   []*outputState
	min     int
	max     int
	created []string
}

// Extract demultiplexes the decompressed pack stream r into files. Every
// destination is first written to "<path>.incoming" and checked against its
// blob hash; nothing is moved into place until all files of the call have
// verified, so a failed extraction leaves no partial output behind.
func Extract(r io.Reader, files []OutputFile, opts ExtractOptions) error {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ExecSetter == nil {
		opts.ExecSetter = worktree.DefaultExecSetter()
	}
	if opts.VerifyPack && opts.Pack == "" {
		return fmt.Errorf("extract: pack hash required for verification")
	}

	x := &extraction{opts: opts}
	for _, f := range files {
		if len(f.Paths) == 0 {
			continue
		}
		x.files = append(x.files, &outputState{OutputFile: f})
	}
	sort.SliceStable(x.files, func(i, j int) bool {
		return x.files[i].Blob.PackOffset < x.files[j].Blob.PackOffset
	})

	err := x.run(r)
	if err == nil {
		err = x.publish()
	}
	if err != nil {
		x.cleanup()
		return err
	}
	return nil
}

func (x *extraction) run(r io.Reader) error {
	var packHash hash.Hash
	if x.opts.VerifyPack {
		packHash = manifest.NewHasher()
	}

	buf := make([]byte, x.opts.ChunkSize)
	var pos uint64
	for {
		if x.min == len(x.files) && packHash == nil {
			break
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			if packHash != nil {
				packHash.Write(buf[:n])
			}
			if err := x.consume(pos, buf[:n]); err != nil {
				return err
			}
			pos += uint64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return corruptf(x.opts.Pack, rerr, "read stream at offset %d", pos)
		}
	}
	// Zero-size blobs sitting exactly at the end of the stream.
	if err := x.consume(pos, nil); err != nil {
		return err
	}

	if x.min < len(x.files) {
		o := x.files[x.min]
		return corruptf(x.opts.Pack, io.ErrUnexpectedEOF,
			"stream ended at offset %d inside blob %s (offset %d, size %d)",
			pos, o.Blob.Hash, o.Blob.PackOffset, o.Blob.Size)
	}
	if packHash != nil {
		if got := manifest.HashSum(packHash); got != x.opts.Pack {
			return corruptf(x.opts.Pack, nil, "stream hash mismatch: got %s", got)
		}
	}
	return nil
}

// consume feeds the bytes at [base, base+len(data)) to every file whose range
// overlaps them. Files enter the window when the stream reaches their offset
// and leave it once verified.
func (x *extraction) consume(base uint64, data []byte) error {
	end := base + uint64(len(data))
	for x.max < len(x.files) && x.files[x.max].Blob.PackOffset <= end {
		if err := x.open(x.files[x.max]); err != nil {
			return err
		}
		x.max++
	}

	for i := x.min; i < x.max; i++ {
		o := x.files[i]
		if o.state != stateWriting {
			continue
		}
		lo := max(o.Blob.PackOffset, base)
		hi := min(o.Blob.End(), end)
		if lo < hi {
			if _, err := o.w.Write(data[lo-base : hi-base]); err != nil {
				return fmt.Errorf("write %s: %w", o.temps[0], err)
			}
		}
		if o.Blob.End() <= end {
			if err := x.verify(o); err != nil {
				return err
			}
		}
	}

	for x.min < x.max && x.files[x.min].state == stateVerified {
		x.min++
	}
	return nil
}

func (x *extraction) open(o *outputState) error {
	o.temps = make([]string, len(o.Paths))
	for i, p := range o.Paths {
		o.temps[i] = p + worktree.IncomingSuffix
	}
	if err := os.MkdirAll(filepath.Dir(o.Paths[0]), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", o.Paths[0], err)
	}
	f, err := os.OpenFile(o.temps[0], os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", o.temps[0], err)
	}
	x.created = append(x.created, o.temps[0])
	o.f = f
	o.h = manifest.NewHasher()
	o.w = io.MultiWriter(f, o.h)
	o.state = stateWriting
	return nil
}

func (x *extraction) verify(o *outputState) error {
	o.state = stateVerifying
	err := o.f.Close()
	o.f = nil
	if err != nil {
		o.state = stateFailed
		return fmt.Errorf("close %s: %w", o.temps[0], err)
	}
	if got := manifest.HashSum(o.h); got != o.Blob.Hash {
		o.state = stateFailed
		return corruptf(x.opts.Pack, nil, "blob %s hash mismatch: got %s", o.Blob.Hash, got)
	}

	for i := 1; i < len(o.temps); i++ {
		if err := os.MkdirAll(filepath.Dir(o.Paths[i]), 0o755); err != nil {
			o.state = stateFailed
			return fmt.Errorf("create directory for %s: %w", o.Paths[i], err)
		}
		x.created = append(x.created, o.temps[i])
		if err := copyFile(o.temps[0], o.temps[i]); err != nil {
			o.state = stateFailed
			return err
		}
	}
	if o.Executable {
		for _, t := range o.temps {
			if err := x.opts.ExecSetter.SetExecutable(t); err != nil {
				o.state = stateFailed
				return fmt.Errorf("set executable %s: %w", t, err)
			}
		}
	}
	o.state = stateVerified
	return nil
}

func (x *extraction) publish() error {
	for _, o := range x.files {
		for i, p := range o.Paths {
			if err := worktree.MakeWritable(p); err != nil {
				return fmt.Errorf("replace %s: %w", p, err)
			}
			if err := os.Rename(o.temps[i], p); err != nil {
				return fmt.Errorf("publish %s: %w", p, err)
			}
		}
		o.state = statePublished
	}
	return nil
}

func (x *extraction) cleanup() {
	for _, o := range x.files {
		if o.f != nil {
			o.f.Close()
			o.f = nil
		}
		if o.state != statePublished {
			o.state = stateFailed
		}
	}
	for _, t := range x.created {
		_ = os.Remove(t)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", dst, err)
	}
	return out.Close()
}
