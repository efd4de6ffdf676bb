package download

import (
	"context"

	"github.com/odvcencio/gitdeps/pkg/manifest"
	"github.com/odvcencio/gitdeps/pkg/pack"
)

// Job is one pack and the files it must produce.
type Job struct {
	Pack  manifest.TargetPack
	Files []pack.OutputFile
}

// FileCount returns the number of destination paths the job writes.
func (j Job) FileCount() int {
	n := 0
	for _, f := range j.Files {
		n += len(f.Paths)
	}
	return n
}

// FetchResult describes one successful attempt.
type FetchResult struct {
	// Bytes is what was actually read: the cached file or the network body.
	Bytes     int64
	FromCache bool
}

// Fetcher retrieves and extracts one job. onBytes is called as raw pack
// bytes are consumed and may receive negative values to roll back bytes
// that were discarded within the attempt.
type Fetcher interface {
	Fetch(ctx context.Context, job Job, onBytes func(n int64)) (FetchResult, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, job Job, onBytes func(n int64)) (FetchResult, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, job Job, onBytes func(n int64)) (FetchResult, error) {
	return f(ctx, job, onBytes)
}

// newQueue holds every job of a batch. Its capacity equals the batch size,
// and a job is either queued or held by exactly one worker, so requeueing a
// failed job never blocks.
func newQueue(jobs []Job) chan Job {
	q := make(chan Job, len(jobs))
	for _, j := range jobs {
		q <- j
	}
	return q
}
