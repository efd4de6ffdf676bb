package deps

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/odvcencio/gitdeps/pkg/download"
	"github.com/odvcencio/gitdeps/pkg/manifest"
	"github.com/odvcencio/gitdeps/pkg/pack"
	"github.com/samber/lo"
)

type plannedFile struct {
	file manifest.TargetFile
	blob manifest.TargetBlob
	pack manifest.TargetPack
}

// Plan groups the files to download into one job per pack. Files sharing a
// blob become one output with several paths. A file whose blob or pack is
// missing from the target state fails the whole plan.
func Plan(root string, state *manifest.TargetState, files []manifest.TargetFile) ([]download.Job, error) {
	planned := make([]plannedFile, 0, len(files))
	for _, f := range files {
		blob, p, err := state.Resolve(f)
		if err != nil {
			return nil, fmt.Errorf("plan: %w", err)
		}
		planned = append(planned, plannedFile{file: f, blob: blob, pack: p})
	}

	byPack := lo.GroupBy(planned, func(pf plannedFile) manifest.Hash { return pf.pack.Hash })
	packHashes := lo.Keys(byPack)
	sort.Slice(packHashes, func(i, j int) bool { return packHashes[i] < packHashes[j] })

	jobs := make([]download.Job, 0, len(packHashes))
	for _, h := range packHashes {
		group := byPack[h]
		job := download.Job{Pack: group[0].pack}

		type outputKey struct {
			blob manifest.Hash
			exec bool
		}
		index := make(map[outputKey]int)
		for _, pf := range group {
			key := outputKey{blob: pf.blob.Hash, exec: pf.file.IsExecutable}
			dest := filepath.Join(root, filepath.FromSlash(pf.file.Name))
			if i, ok := index[key]; ok {
				job.Files[i].Paths = append(job.Files[i].Paths, dest)
				continue
			}
			index[key] = len(job.Files)
			job.Files = append(job.Files, pack.OutputFile{
				Blob:       pf.blob,
				Paths:      []string{dest},
				Executable: pf.file.IsExecutable,
			})
		}
		sort.SliceStable(job.Files, func(i, j int) bool {
			return job.Files[i].Blob.PackOffset < job.Files[j].Blob.PackOffset
		})
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// PlannedBytes is the compressed size of every pack in jobs.
func PlannedBytes(jobs []download.Job) uint64 {
	return lo.SumBy(jobs, func(j download.Job) uint64 { return j.Pack.CompressedSize })
}
