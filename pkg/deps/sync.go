package deps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/odvcencio/gitdeps/pkg/cache"
	"github.com/odvcencio/gitdeps/pkg/download"
	"github.com/odvcencio/gitdeps/pkg/manifest"
	"github.com/odvcencio/gitdeps/pkg/worktree"
	"github.com/samber/lo"
)

// Options configures Sync, Status and CollectGarbage.
type Options struct {
	Root     string
	Extra    []manifest.Source
	Excludes []string

	Policy   worktree.OverwritePolicy
	Prompter worktree.Prompter
	Strict   bool
	DryRun   bool

	Threads int
	// MaxRetries is passed to download.Options as is.
	MaxRetries int

	// Cache is nil when caching is disabled.
	Cache *cache.Store
	Evict cache.EvictPolicy

	Remote     download.PackOpener
	ExecSetter worktree.ExecSetter
	OnProgress func(download.Progress)
	Logger     *slog.Logger
}

// Report summarizes a sync.
type Report struct {
	DryRun bool

	Downloaded int
	Deleted    int
	Kept       int
	Tampered   []string
	Skipped    []string

	// ToDownload and ToDelete are the planned file names.
	ToDownload []string
	ToDelete   []string

	Packs       int
	CachedPacks int
	// PlannedBytes is the compressed size of the planned packs; Bytes is
	// what was actually read from cache and network.
	PlannedBytes uint64
	Bytes        int64
	CacheHits    int

	Evicted *cache.EvictSummary
}

func (o *Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// Sync brings the working tree in line with the target manifests under
// opts.Root. The working manifest is persisted before any download starts,
// with timestamp 0 on every entry about to be replaced, so an interrupted run
// is recovered by the next one.
func Sync(ctx context.Context, opts Options) (*Report, error) {
	logger := opts.logger()
	if opts.Remote == nil && !opts.DryRun {
		return nil, errors.New("sync: no pack source configured")
	}

	state, err := manifest.Aggregate(opts.Root, manifest.AggregateOptions{Extra: opts.Extra, Logger: logger})
	if err != nil {
		return nil, err
	}
	logger.Info("target state", "manifests", len(state.Sources), "files", len(state.Files), "packs", len(state.Packs))

	ignore, err := worktree.LoadIgnoreFile(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", worktree.IgnoreFileName, err)
	}
	working, _, err := manifest.ReadWorkingManifest(opts.Root)
	if err != nil {
		return nil, err
	}

	res, err := worktree.Diff(ctx, state.Files, working, worktree.DiffOptions{
		Root:     opts.Root,
		Threads:  opts.Threads,
		Filter:   worktree.NewFilter(opts.Excludes, ignore),
		Policy:   opts.Policy,
		Prompter: opts.Prompter,
		Strict:   opts.Strict,
		ReadOnly: opts.DryRun,
		Logger:   logger,
	})
	report := &Report{DryRun: opts.DryRun}
	if res != nil {
		report.Tampered = res.Tampered
		report.Skipped = res.Skipped
	}
	if err != nil {
		return report, err
	}

	jobs, err := Plan(opts.Root, state, res.Download)
	if err != nil {
		return report, err
	}
	report.Kept = res.Kept()
	report.ToDownload = lo.Map(res.Download, func(f manifest.TargetFile, _ int) string { return f.Name })
	report.ToDelete = lo.Map(res.Delete, func(f manifest.WorkingFile, _ int) string { return f.Name })
	report.Packs = len(jobs)
	report.PlannedBytes = PlannedBytes(jobs)
	if opts.Cache != nil {
		report.CachedPacks = lo.CountBy(jobs, func(j download.Job) bool { return opts.Cache.Has(j.Pack.Hash) })
	}
	if opts.DryRun {
		return report, nil
	}

	deleted, err := worktree.RemoveFiles(opts.Root, res.Delete)
	report.Deleted = deleted
	if err != nil {
		return report, err
	}

	pending := &manifest.WorkingManifest{Files: append([]manifest.WorkingFile(nil), res.Working.Files...)}
	for _, wf := range res.Replaced {
		wf.Timestamp = 0
		pending.Files = append(pending.Files, wf)
	}
	if err := manifest.WriteWorkingManifest(opts.Root, pending); err != nil {
		return report, err
	}

	if len(jobs) > 0 {
		logger.Info("downloading", "files", len(res.Download), "packs", len(jobs), "bytes", report.PlannedBytes)
		engine := download.New(&download.Pipeline{
			Cache:      opts.Cache,
			Remote:     opts.Remote,
			ExecSetter: opts.ExecSetter,
			Logger:     logger,
		}, download.Options{
			Threads:    opts.Threads,
			MaxRetries: opts.MaxRetries,
			OnProgress: opts.OnProgress,
			Logger:     logger,
		})
		stats, err := engine.Run(ctx, jobs)
		if stats != nil {
			report.Bytes = stats.Bytes
			report.CacheHits = stats.CacheHits
		}
		if err != nil {
			return report, err
		}
	}

	final := &manifest.WorkingManifest{Files: append([]manifest.WorkingFile(nil), res.Working.Files...)}
	for _, f := range res.Download {
		info, err := os.Stat(filepath.Join(opts.Root, filepath.FromSlash(f.Name)))
		if err != nil {
			return report, fmt.Errorf("stat downloaded %s: %w", f.Name, err)
		}
		final.Files = append(final.Files, manifest.WorkingFile{
			Name:         f.Name,
			Hash:         f.Hash,
			ExpectedHash: f.Hash,
			Timestamp:    manifest.TicksFromTime(info.ModTime()),
		})
	}
	if err := manifest.WriteWorkingManifest(opts.Root, final); err != nil {
		return report, err
	}
	report.Downloaded = len(res.Download)

	if opts.Cache != nil {
		sum, err := opts.Cache.Evict(lo.Values(state.Packs), opts.Evict)
		if err != nil {
			logger.Warn("cache eviction failed", "err", err)
		} else {
			report.Evicted = sum
			logger.Debug("cache eviction", "entries", sum.Entries, "evicted", sum.Evicted, "bytes", sum.EvictedBytes)
		}
	}
	return report, nil
}

// Status computes the plan without touching the working tree. Modified
// files are reported, never prompted for.
func Status(ctx context.Context, opts Options) (*Report, error) {
	opts.DryRun = true
	opts.Prompter = nil
	opts.Strict = false
	if opts.Policy == worktree.PolicyPrompt {
		opts.Policy = worktree.PolicyUnchanged
	}
	return Sync(ctx, opts)
}

// CollectGarbage runs cache eviction against the packs the current target
// manifests reference.
func CollectGarbage(opts Options) (*cache.EvictSummary, error) {
	if opts.Cache == nil {
		return nil, errors.New("gc: cache is disabled")
	}
	state, err := manifest.Aggregate(opts.Root, manifest.AggregateOptions{Extra: opts.Extra, Logger: opts.logger()})
	if err != nil {
		return nil, err
	}
	return opts.Cache.Evict(lo.Values(state.Packs), opts.Evict)
}
