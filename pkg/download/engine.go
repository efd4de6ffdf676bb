package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrAborted is returned when every worker is either failing or idle while
// jobs remain. The last worker error is wrapped alongside it.
var ErrAborted = errors.New("download aborted")

// Defaults used when Options fields are zero. MaxRetries has none.
const (
	DefaultThreads          = 4
	DefaultProgressInterval = 500 * time.Millisecond
)

// Options configures an Engine.
type Options struct {
	Threads int
	// MaxRetries is how many failures a worker may see before it counts as
	// failing. Zero marks it failing on the first error; negative never does,
	// so a batch only ends once every job succeeds or ctx is done.
	MaxRetries       int
	ProgressInterval time.Duration
	// OnProgress receives snapshots from the progress goroutine, plus one
	// final snapshot when Run returns.
	OnProgress func(Progress)
	Logger     *slog.Logger
}

// Stats summarizes a finished batch.
type Stats struct {
	Jobs      int
	Files     int
	Bytes     int64
	CacheHits int
	Failures  int
	Elapsed   time.Duration
}

// Engine runs download jobs over a fixed pool of workers.
type Engine struct {
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger
}

// New creates an Engine. Zero-value or negative fields in opts receive
// defaults, except MaxRetries which is used as given.
func New(fetcher Fetcher, opts Options) *Engine {
	if opts.Threads <= 0 {
		opts.Threads = DefaultThreads
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{fetcher: fetcher, opts: opts, logger: logger}
}

// batch is the shared state of one Run. Workers only touch atomics and the
// queue; lastErr has its own lock.
type batch struct {
	e     *Engine
	queue chan Job
	total int64

	filesTotal    int
	filesDone     atomic.Int64
	bytesDone     atomic.Int64
	bytesExpected atomic.Int64
	completed     atomic.Int64
	failing       atomic.Int32
	idle          atomic.Int32
	cacheHits     atomic.Int64
	failures      atomic.Int64
	aborted       atomic.Bool

	cancel context.CancelFunc

	mu      sync.Mutex
	lastErr error
}

// Run executes every job and returns once all of them completed, the batch
// was aborted, or ctx was cancelled.
func (e *Engine) Run(ctx context.Context, jobs []Job) (*Stats, error) {
	start := time.Now()
	stats := &Stats{Jobs: len(jobs)}
	if len(jobs) == 0 {
		return stats, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := &batch{e: e, queue: newQueue(jobs), total: int64(len(jobs)), cancel: cancel}
	for _, j := range jobs {
		b.filesTotal += j.FileCount()
		b.bytesExpected.Add(int64(j.Pack.CompressedSize))
	}

	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		b.reportProgress(runCtx, start)
	}()

	var wg sync.WaitGroup
	for i := 0; i < e.opts.Threads; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			b.work(runCtx, id)
		}(i)
	}
	wg.Wait()
	cancel()
	<-progressDone

	stats.Files = int(b.filesDone.Load())
	stats.Bytes = b.bytesDone.Load()
	stats.CacheHits = int(b.cacheHits.Load())
	stats.Failures = int(b.failures.Load())
	stats.Elapsed = time.Since(start)
	if e.opts.OnProgress != nil {
		e.opts.OnProgress(b.snapshot(start, 0))
	}

	switch {
	case b.completed.Load() == b.total:
		return stats, nil
	case b.aborted.Load():
		return stats, fmt.Errorf("%w: %w", ErrAborted, b.err())
	case ctx.Err() != nil:
		return stats, ctx.Err()
	default:
		return stats, fmt.Errorf("download stopped with %d of %d packs done", b.completed.Load(), b.total)
	}
}

func (b *batch) work(ctx context.Context, id int) {
	logger := b.e.logger.With("worker", id)
	retries := 0
	failing := false

	for {
		if ctx.Err() != nil {
			return
		}
		job, ok := b.next(ctx, failing)
		if !ok {
			return
		}

		var attempt int64
		res, err := b.e.fetcher.Fetch(ctx, job, func(n int64) {
			attempt += n
			b.bytesDone.Add(n)
		})
		if err == nil {
			b.bytesExpected.Add(res.Bytes - int64(job.Pack.CompressedSize))
			b.filesDone.Add(int64(job.FileCount()))
			if res.FromCache {
				b.cacheHits.Add(1)
			}
			logger.Debug("pack done", "pack", job.Pack.Hash, "files", job.FileCount(), "bytes", res.Bytes, "cache", res.FromCache)
			if b.completed.Add(1) == b.total {
				b.cancel()
			}
			continue
		}

		b.bytesDone.Add(-attempt)
		if ctx.Err() != nil {
			return
		}
		b.failures.Add(1)
		b.setErr(err)
		retries++
		logger.Warn("pack failed, requeueing", "pack", job.Pack.Hash, "attempt", retries, "err", err)
		if b.e.opts.MaxRetries >= 0 && retries > b.e.opts.MaxRetries && !failing {
			failing = true
			b.failing.Add(1)
			logger.Warn("worker exceeded retry budget", "retries", retries)
		}
		b.queue <- job
		b.checkAbort()
	}
}

// next takes a queued job. A worker only counts as idle while the queue is
// empty and it has to wait.
func (b *batch) next(ctx context.Context, failing bool) (Job, bool) {
	select {
	case job := <-b.queue:
		return job, true
	default:
	}

	if !failing {
		b.idle.Add(1)
		defer b.idle.Add(-1)
	}
	b.checkAbort()
	select {
	case <-ctx.Done():
		return Job{}, false
	case job := <-b.queue:
		return job, true
	}
}

// checkAbort cancels the batch once no healthy worker is busy while at
// least one is failing.
func (b *batch) checkAbort() {
	failing := b.failing.Load()
	if failing == 0 {
		return
	}
	if int(failing+b.idle.Load()) >= b.e.opts.Threads && b.completed.Load() < b.total {
		if b.aborted.CompareAndSwap(false, true) {
			b.e.logger.Error("aborting download", "failing_workers", failing, "err", b.err())
			b.cancel()
		}
	}
}

func (b *batch) setErr(err error) {
	b.mu.Lock()
	b.lastErr = err
	b.mu.Unlock()
}

func (b *batch) err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

func (b *batch) snapshot(start time.Time, rate float64) Progress {
	return Progress{
		FilesDone:      int(b.filesDone.Load()),
		FilesTotal:     b.filesTotal,
		BytesDone:      b.bytesDone.Load(),
		BytesTotal:     b.bytesExpected.Load(),
		BytesPerSecond: rate,
		FailingWorkers: int(b.failing.Load()),
		Elapsed:        time.Since(start),
	}
}

func (b *batch) reportProgress(ctx context.Context, start time.Time) {
	if b.e.opts.OnProgress == nil {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(b.e.opts.ProgressInterval)
	defer ticker.Stop()
	meter := newRateMeter(20)
	meter.add(start, 0)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			meter.add(now, b.bytesDone.Load())
			b.e.opts.OnProgress(b.snapshot(start, meter.rate()))
		}
	}
}
