package worktree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/odvcencio/gitdeps/pkg/manifest"
	"golang.org/x/sync/errgroup"
)

// IncomingSuffix marks files that are still being written.
const IncomingSuffix = ".incoming"

// DiffOptions configures Diff.
type DiffOptions struct {
	Root     string
	Threads  int // parallel rehash limit (default 4)
	Filter   *Filter
	Policy   OverwritePolicy
	Prompter Prompter
	// Strict turns skipped tampered files into ErrTampered.
	Strict bool
	// ReadOnly leaves stale .incoming files in place.
	ReadOnly bool
	Logger   *slog.Logger
}

// Result is the outcome of reconciling the target files with the working
// tree.
type Result struct {
	// Download holds target files lacking a valid local copy, sorted by name.
	Download []manifest.TargetFile
	// Delete holds working entries no longer wanted, sorted by name.
	Delete []manifest.WorkingFile
	// Replaced holds the refreshed entries of files Download will overwrite.
	Replaced []manifest.WorkingFile
	// Tampered lists every locally modified file that was about to be
	// deleted or overwritten.
	Tampered []string
	// Skipped lists tampered files left untouched by the overwrite policy.
	Skipped []string
	// Working is the new working manifest minus the files still to download.
	Working *manifest.WorkingManifest
}

// Kept returns how many working entries carry forward unchanged.
func (r *Result) Kept() int {
	return len(r.Working.Files) - len(r.Skipped)
}

// Diff refreshes the working manifest against the disk and compares it with
// the target files. Hashes are recomputed only for files whose modification
// time differs from the recorded timestamp.
func Diff(ctx context.Context, target map[string]manifest.TargetFile, working *manifest.WorkingManifest, opts DiffOptions) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if working == nil {
		working = &manifest.WorkingManifest{}
	}
	policy := opts.Policy
	if policy == "" {
		policy = PolicyUnchanged
	}

	wanted := make(map[string]manifest.TargetFile, len(target))
	for name, f := range target {
		if opts.Filter.Excluded(name) {
			continue
		}
		wanted[name] = f
	}

	current, err := refresh(ctx, opts, wanted, working)
	if err != nil {
		return nil, err
	}

	res := &Result{Working: &manifest.WorkingManifest{}}
	downloads := make(map[string]manifest.TargetFile)
	deletes := make(map[string]manifest.WorkingFile)
	tampered := make(map[string]bool)

	for _, name := range sortedKeys(wanted) {
		tf := wanted[name]
		wf, ok := current[name]
		if ok && wf.Hash == tf.Hash {
			wf.ExpectedHash = tf.Hash
			res.Working.Files = append(res.Working.Files, wf)
			continue
		}
		downloads[name] = tf
		if ok && wf.Tampered() {
			tampered[name] = true
		}
	}

	for _, name := range sortedKeys(current) {
		wf := current[name]
		if _, ok := wanted[name]; ok {
			continue
		}
		if opts.Filter.Excluded(name) {
			res.Working.Files = append(res.Working.Files, wf)
			continue
		}
		deletes[name] = wf
		if wf.Tampered() {
			tampered[name] = true
		}
	}

	res.Tampered = sortedKeys(tampered)
	if len(res.Tampered) > 0 {
		overwrite, err := resolveTampered(policy, opts.Prompter, res.Tampered)
		if err != nil {
			return nil, err
		}
		if !overwrite {
			for _, name := range res.Tampered {
				delete(downloads, name)
				delete(deletes, name)
				res.Working.Files = append(res.Working.Files, current[name])
			}
			res.Skipped = res.Tampered
			logger.Warn("skipping locally modified files", "count", len(res.Skipped), "policy", string(policy))
			if opts.Strict {
				return res, fmt.Errorf("%w: %d file(s)", ErrTampered, len(res.Skipped))
			}
		} else {
			logger.Warn("overwriting locally modified files", "count", len(res.Tampered), "policy", string(policy), "files", res.Tampered)
		}
	}

	for _, name := range sortedKeys(downloads) {
		res.Download = append(res.Download, downloads[name])
		if wf, ok := current[name]; ok {
			res.Replaced = append(res.Replaced, wf)
		}
	}
	for _, name := range sortedKeys(deletes) {
		res.Delete = append(res.Delete, deletes[name])
	}

	logger.Debug("diff complete",
		"download", len(res.Download), "delete", len(res.Delete),
		"keep", res.Kept(), "tampered", len(res.Tampered))
	return res, nil
}

type rehashJob struct {
	entry manifest.WorkingFile
	abs   string
	ticks int64
	adopt bool
	drop  bool
}

// refresh stats every tracked file and every untracked target path, and
// recomputes hashes where the timestamp moved.
func refresh(ctx context.Context, opts DiffOptions, wanted map[string]manifest.TargetFile, working *manifest.WorkingManifest) (map[string]manifest.WorkingFile, error) {
	current := make(map[string]manifest.WorkingFile, len(working.Files))
	var jobs []*rehashJob

	for _, wf := range working.Files {
		if _, dup := current[wf.Name]; dup {
			continue
		}
		abs := filepath.Join(opts.Root, filepath.FromSlash(wf.Name))
		if wf.Timestamp == 0 && !opts.ReadOnly {
			// Left over from an interrupted run.
			if err := os.Remove(abs + IncomingSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("remove stale %s: %w", abs+IncomingSuffix, err)
			}
		}
		info, err := os.Stat(abs)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", wf.Name, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		current[wf.Name] = wf
		ticks := manifest.TicksFromTime(info.ModTime())
		if ticks != wf.Timestamp {
			jobs = append(jobs, &rehashJob{entry: wf, abs: abs, ticks: ticks})
		}
	}

	for _, name := range sortedKeys(wanted) {
		if _, tracked := current[name]; tracked {
			continue
		}
		abs := filepath.Join(opts.Root, filepath.FromSlash(name))
		if !opts.ReadOnly {
			if err := os.Remove(abs + IncomingSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("remove stale %s: %w", abs+IncomingSuffix, err)
			}
		}
		info, err := os.Stat(abs)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		// Untracked files were never placed by a sync, so whatever is on
		// disk becomes the expected content.
		entry := manifest.WorkingFile{Name: name}
		current[name] = entry
		jobs = append(jobs, &rehashJob{entry: entry, abs: abs, ticks: manifest.TicksFromTime(info.ModTime()), adopt: true})
	}

	if err := rehash(ctx, opts.Threads, jobs); err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if job.drop {
			delete(current, job.entry.Name)
			continue
		}
		current[job.entry.Name] = job.entry
	}
	return current, nil
}

func rehash(ctx context.Context, threads int, jobs []*rehashJob) error {
	if len(jobs) == 0 {
		return nil
	}
	if threads <= 0 {
		threads = 4
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for _, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			h, err := manifest.HashFile(job.abs)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					job.drop = true
					return nil
				}
				return err
			}
			job.entry.Hash = h
			job.entry.Timestamp = job.ticks
			if job.adopt {
				job.entry.ExpectedHash = h
			}
			return nil
		})
	}
	return g.Wait()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
