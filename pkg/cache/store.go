package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/odvcencio/gitdeps/pkg/manifest"
	"github.com/spf13/afero"
)

// TempSuffix marks pack downloads that have not been committed yet.
const TempSuffix = ".incoming"

// Store is a content-addressed pack cache with a 2-character fan-out
// directory layout: <root>/ab/abcdef0123... Each entry holds the raw gzip
// bytes exactly as downloaded.
type Store struct {
	fs   afero.Fs
	root string
}

// NewStore creates a Store rooted at root on fs. Directories are created
// lazily on first write.
func NewStore(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

// NewOsStore creates a Store on the local file system.
func NewOsStore(root string) *Store {
	return NewStore(afero.NewOsFs(), root)
}

// Root returns the cache directory.
func (s *Store) Root() string { return s.root }

// Path returns the file system path of the entry for h.
func (s *Store) Path(h manifest.Hash) string {
	return filepath.Join(s.root, string(h[:2]), string(h))
}

// Has reports whether the cache holds an entry for h.
func (s *Store) Has(h manifest.Hash) bool {
	info, err := s.fs.Stat(s.Path(h))
	return err == nil && info.Mode().IsRegular()
}

// Open opens the cached entry for h. A missing entry yields an error
// satisfying errors.Is(err, os.ErrNotExist).
func (s *Store) Open(h manifest.Hash) (afero.File, error) {
	f, err := s.fs.Open(s.Path(h))
	if err != nil {
		return nil, fmt.Errorf("cache open %s: %w", h, err)
	}
	return f, nil
}

// Remove deletes the entry for h. Missing entries are not an error.
func (s *Store) Remove(h manifest.Hash) error {
	if err := s.fs.Remove(s.Path(h)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cache remove %s: %w", h, err)
	}
	return nil
}

// Touch marks the entry for h as used at t.
func (s *Store) Touch(h manifest.Hash, t time.Time) error {
	return s.fs.Chtimes(s.Path(h), t, t)
}

// Entry is a pending cache write. Bytes go to a temp file in the fan-out
// directory; Commit renames it into place and Abort discards it.
type Entry struct {
	store *Store
	hash  manifest.Hash
	f     afero.File
	done  bool
}

// Create starts a new entry for h.
func (s *Store) Create(h manifest.Hash) (*Entry, error) {
	dir := filepath.Join(s.root, string(h[:2]))
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache write mkdir: %w", err)
	}
	f, err := afero.TempFile(s.fs, dir, string(h)+".*"+TempSuffix)
	if err != nil {
		return nil, fmt.Errorf("cache write tmpfile: %w", err)
	}
	return &Entry{store: s, hash: h, f: f}, nil
}

func (e *Entry) Write(p []byte) (int, error) {
	return e.f.Write(p)
}

// Commit makes the entry visible under its hash.
func (e *Entry) Commit() error {
	if e.done {
		return fmt.Errorf("cache entry %s already finished", e.hash)
	}
	e.done = true
	name := e.f.Name()
	if err := e.f.Close(); err != nil {
		_ = e.store.fs.Remove(name)
		return fmt.Errorf("cache write close: %w", err)
	}
	if err := e.store.fs.Rename(name, e.store.Path(e.hash)); err != nil {
		_ = e.store.fs.Remove(name)
		return fmt.Errorf("cache write rename: %w", err)
	}
	return nil
}

// Abort discards the entry. It is a no-op after Commit.
func (e *Entry) Abort() {
	if e.done {
		return
	}
	e.done = true
	name := e.f.Name()
	_ = e.f.Close()
	_ = e.store.fs.Remove(name)
}
