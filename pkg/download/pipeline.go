package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/odvcencio/gitdeps/pkg/cache"
	"github.com/odvcencio/gitdeps/pkg/manifest"
	"github.com/odvcencio/gitdeps/pkg/pack"
	"github.com/odvcencio/gitdeps/pkg/worktree"
)

// PackOpener opens the raw (compressed) stream of a pack.
type PackOpener interface {
	OpenPack(ctx context.Context, p manifest.TargetPack) (io.ReadCloser, int64, error)
}

// Pipeline is the standard Fetcher: cache first, then network, always
// extracting through pack.Extract. A corrupt cache entry is deleted and the
// same attempt falls through to the network.
type Pipeline struct {
	Cache      *cache.Store // nil disables caching
	Remote     PackOpener
	ExecSetter worktree.ExecSetter
	ChunkSize  int
	Logger     *slog.Logger
}

// Fetch implements Fetcher.
func (p *Pipeline) Fetch(ctx context.Context, job Job, onBytes func(n int64)) (FetchResult, error) {
	if p.Cache != nil && p.Cache.Has(job.Pack.Hash) {
		res, err := p.fromCache(ctx, job, onBytes)
		if err == nil {
			return res, nil
		}
		onBytes(-res.Bytes)
		if !pack.IsCorrupt(err) && !errors.Is(err, os.ErrNotExist) {
			return FetchResult{}, err
		}
		p.logger().Warn("cached pack unusable, downloading again", "pack", job.Pack.Hash, "err", err)
		if rmErr := p.Cache.Remove(job.Pack.Hash); rmErr != nil {
			p.logger().Warn("remove cached pack", "pack", job.Pack.Hash, "err", rmErr)
		}
	}
	return p.fromNetwork(ctx, job, onBytes)
}

func (p *Pipeline) fromCache(ctx context.Context, job Job, onBytes func(n int64)) (FetchResult, error) {
	res := FetchResult{FromCache: true}
	f, err := p.Cache.Open(job.Pack.Hash)
	if err != nil {
		return res, err
	}
	defer f.Close()

	counter := &pack.CountingReader{R: f, OnRead: onBytes}
	err = p.extract(ctx, counter, job, false)
	res.Bytes = counter.Count()
	return res, err
}

func (p *Pipeline) fromNetwork(ctx context.Context, job Job, onBytes func(n int64)) (FetchResult, error) {
	body, _, err := p.Remote.OpenPack(ctx, job.Pack)
	if err != nil {
		return FetchResult{}, err
	}
	defer body.Close()

	counter := &pack.CountingReader{R: body, OnRead: onBytes}
	var src io.Reader = counter

	var entry *cache.Entry
	var fork *pack.ForkReader
	if p.Cache != nil {
		entry, err = p.Cache.Create(job.Pack.Hash)
		if err != nil {
			p.logger().Warn("pack will not be cached", "pack", job.Pack.Hash, "err", err)
			entry = nil
		} else {
			fork = pack.NewForkReader(counter, entry)
			src = fork
		}
	}

	err = p.extract(ctx, src, job, entry != nil)
	if err == nil && entry != nil {
		// Anything after the gzip trailer still belongs in the cache copy.
		if _, err = io.Copy(io.Discard, src); err != nil {
			err = &pack.CorruptError{Pack: job.Pack.Hash, Reason: "read stream trailer", Err: err}
		}
	}
	res := FetchResult{Bytes: counter.Count()}
	if err != nil {
		if entry != nil {
			entry.Abort()
		}
		return res, err
	}

	if entry != nil {
		switch {
		case fork.ForkErr() != nil:
			entry.Abort()
			p.logger().Warn("pack not cached", "pack", job.Pack.Hash, "err", fork.ForkErr())
		default:
			if err := entry.Commit(); err != nil {
				p.logger().Warn("pack not cached", "pack", job.Pack.Hash, "err", err)
			}
		}
	}
	return res, nil
}

// extract decompresses src and demultiplexes it into the job's files. With
// verify set the whole stream is read and checked against the pack hash.
func (p *Pipeline) extract(ctx context.Context, src io.Reader, job Job, verify bool) error {
	zr, err := pack.NewGzipReader(&contextReader{ctx: ctx, r: src}, job.Pack.Hash)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	defer zr.Close()

	err = pack.Extract(zr, job.Files, pack.ExtractOptions{
		Pack:       job.Pack.Hash,
		VerifyPack: verify,
		ChunkSize:  p.ChunkSize,
		ExecSetter: p.ExecSetter,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("extract pack %s: %w", job.Pack.Hash, err)
	}
	return nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p.Logger
}

// contextReader stops reading once ctx is done, so cancellation also ends
// reads from the cache.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
