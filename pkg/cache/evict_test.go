package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/odvcencio/gitdeps/pkg/manifest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var evictNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func putEntry(t *testing.T, s *Store, name string, size int, age time.Duration) manifest.Hash {
	t.Helper()
	h := manifest.HashBytes([]byte(name))
	e, err := s.Create(h)
	require.NoError(t, err)
	_, err = e.Write(make([]byte, size))
	require.NoError(t, err)
	require.NoError(t, e.Commit())
	require.NoError(t, s.Touch(h, evictNow.Add(-age)))
	return h
}

func TestEvictKeepsBudgetAndRecentEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewStore(fs, "/cache")

	referenced := putEntry(t, s, "referenced", 100, 30*day)
	recent := putEntry(t, s, "recent", 50, 1*day)
	young := putEntry(t, s, "young but over budget", 100, 2*day)
	old := putEntry(t, s, "old", 100, 10*day)
	older := putEntry(t, s, "older", 100, 20*day)

	sum, err := s.Evict(
		[]manifest.TargetPack{{Hash: referenced, CompressedSize: 100}, {Hash: referenced, CompressedSize: 100}},
		EvictPolicy{SizeMultiplier: 2, MaxAge: 7 * day, Now: func() time.Time { return evictNow }},
	)
	require.NoError(t, err)

	assert.Equal(t, int64(200), sum.Budget)
	assert.Equal(t, 5, sum.Entries)
	assert.Equal(t, 2, sum.Evicted)
	assert.Equal(t, int64(200), sum.EvictedBytes)

	for _, h := range []manifest.Hash{referenced, recent, young} {
		assert.True(t, s.Has(h), "%s should survive", h)
	}
	for _, h := range []manifest.Hash{old, older} {
		assert.False(t, s.Has(h), "%s should be evicted", h)
	}

	info, err := fs.Stat(s.Path(referenced))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(evictNow), "referenced pack should be touched")
}

func TestEvictNeverTouchesEntriesWithinBudget(t *testing.T) {
	s := NewStore(afero.NewMemMapFs(), "/cache")
	ancient := putEntry(t, s, "ancient", 10, 365*day)

	sum, err := s.Evict(
		[]manifest.TargetPack{{Hash: manifest.HashBytes([]byte("not cached")), CompressedSize: 100}},
		EvictPolicy{SizeMultiplier: 1, MaxAge: 0, Now: func() time.Time { return evictNow }},
	)
	require.NoError(t, err)
	assert.Zero(t, sum.Evicted)
	assert.True(t, s.Has(ancient))
}

func TestEvictRemovesStaleTempsAndEmptyDirs(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewStore(fs, "/cache")

	stale := filepath.Join("/cache", "ab", "abandoned.123"+TempSuffix)
	fresh := filepath.Join("/cache", "cd", "inflight.456"+TempSuffix)
	require.NoError(t, afero.WriteFile(fs, stale, []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fs, fresh, []byte("y"), 0o644))
	require.NoError(t, fs.Chtimes(stale, evictNow.Add(-2*day), evictNow.Add(-2*day)))
	require.NoError(t, fs.Chtimes(fresh, evictNow.Add(-time.Minute), evictNow.Add(-time.Minute)))
	old := putEntry(t, s, "evicted", 10, 30*day)

	sum, err := s.Evict(nil, EvictPolicy{SizeMultiplier: 2, MaxAge: 7 * day, Now: func() time.Time { return evictNow }})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.StaleTemps)
	assert.Equal(t, 1, sum.Evicted)
	assert.False(t, s.Has(old))

	exists, err := afero.Exists(fs, "/cache/ab")
	require.NoError(t, err)
	assert.False(t, exists, "empty fan-out dir should be pruned")
	exists, err = afero.Exists(fs, fresh)
	require.NoError(t, err)
	assert.True(t, exists, "in-flight download must survive")
	exists, err = afero.Exists(fs, filepath.Dir(s.Path(old)))
	require.NoError(t, err)
	assert.False(t, exists)
}
