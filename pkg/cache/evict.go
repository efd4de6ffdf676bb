package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/odvcencio/gitdeps/pkg/manifest"
	"github.com/samber/lo"
	"github.com/spf13/afero"
)

// Coarse file system timestamps can make a fresh file look slightly older.
const ageEpsilon = 2 * time.Second

// StaleTempAge is how old an uncommitted download must be before eviction
// removes it.
const StaleTempAge = 24 * time.Hour

// EvictPolicy bounds the cache.
type EvictPolicy struct {
	// SizeMultiplier scales the total compressed size of the referenced packs
	// into the cache budget.
	SizeMultiplier float64
	// MaxAge protects entries used more recently than this.
	MaxAge time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// EvictSummary reports what Evict did.
type EvictSummary struct {
	Budget       int64
	Entries      int
	TotalBytes   int64
	Evicted      int
	EvictedBytes int64
	StaleTemps   int
}

type cacheEntry struct {
	path  string
	size  int64
	mtime time.Time
}

// Evict touches every referenced pack and then deletes the least recently
// used entries while the cache exceeds its budget. An entry is only deleted
// when it is older than MaxAge, so entries inside the budget or recently
// used always survive.
func (s *Store) Evict(referenced []manifest.TargetPack, policy EvictPolicy) (*EvictSummary, error) {
	now := time.Now()
	if policy.Now != nil {
		now = policy.Now()
	}

	referenced = lo.UniqBy(referenced, func(p manifest.TargetPack) manifest.Hash { return p.Hash })
	for _, p := range referenced {
		if err := s.Touch(p.Hash, now); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("cache touch %s: %w", p.Hash, err)
		}
	}
	sum := &EvictSummary{
		Budget: int64(float64(lo.SumBy(referenced, func(p manifest.TargetPack) uint64 { return p.CompressedSize })) * policy.SizeMultiplier),
	}

	entries, err := s.scan(now, sum)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].mtime.After(entries[j].mtime) })

	// Deleted entries still count towards the running total, so everything
	// past the budget line is a candidate regardless of earlier deletions.
	var total int64
	for _, e := range entries {
		total += e.size
		if total <= sum.Budget || now.Sub(e.mtime) <= policy.MaxAge+ageEpsilon {
			continue
		}
		if err := s.fs.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return sum, fmt.Errorf("cache evict %s: %w", e.path, err)
		}
		sum.Evicted++
		sum.EvictedBytes += e.size
	}

	s.pruneDirs()
	return sum, nil
}

// scan lists committed entries and removes stale temp files along the way.
func (s *Store) scan(now time.Time, sum *EvictSummary) ([]cacheEntry, error) {
	var entries []cacheEntry
	err := afero.Walk(s.fs, s.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		name := info.Name()
		if strings.HasSuffix(name, TempSuffix) {
			if now.Sub(info.ModTime()) > StaleTempAge {
				if err := s.fs.Remove(p); err == nil {
					sum.StaleTemps++
				}
			}
			return nil
		}
		h := manifest.Hash(name)
		if h.Validate() != nil || filepath.Base(filepath.Dir(p)) != name[:2] {
			return nil
		}
		entries = append(entries, cacheEntry{path: p, size: info.Size(), mtime: info.ModTime()})
		sum.Entries++
		sum.TotalBytes += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache scan: %w", err)
	}
	return entries, nil
}

func (s *Store) pruneDirs() {
	dirs, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return
	}
	for _, d := range dirs {
		if !d.IsDir() || len(d.Name()) != 2 {
			continue
		}
		p := filepath.Join(s.root, d.Name())
		if empty, err := afero.IsEmpty(s.fs, p); err == nil && empty {
			_ = s.fs.Remove(p)
		}
	}
}
