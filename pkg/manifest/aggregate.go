package manifest

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ManifestSuffix identifies target manifest files.
const ManifestSuffix = ".gitdeps.xml"

// Source is one target manifest plus the path prefix applied to its files.
type Source struct {
	Path   string
	Prefix string
}

// TargetState is the merged view of every target manifest under a root.
type TargetState struct {
	Files   map[string]TargetFile
	Blobs   map[Hash]TargetBlob
	Packs   map[Hash]TargetPack
	Sources []Source
}

// NewTargetState returns an empty TargetState.
func NewTargetState() *TargetState {
	return &TargetState{
		Files: make(map[string]TargetFile),
		Blobs: make(map[Hash]TargetBlob),
		Packs: make(map[Hash]TargetPack),
	}
}

// AggregateOptions configures Aggregate.
type AggregateOptions struct {
	// Extra manifests merged after the discovered ones.
	Extra  []Source
	Logger *slog.Logger
}

// Aggregate discovers and merges every target manifest under root. Any
// manifest that fails to parse aborts the whole aggregation.
func Aggregate(root string, opts AggregateOptions) (*TargetState, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	sources, err := DiscoverManifests(root)
	if err != nil {
		return nil, err
	}
	sources = append(sources, opts.Extra...)

	state := NewTargetState()
	for _, src := range sources {
		m, err := ReadDependencyManifest(src.Path)
		if err != nil {
			return nil, err
		}
		if err := state.Merge(m, src.Prefix); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrParse, src.Path, err)
		}
		state.Sources = append(state.Sources, src)
		logger.Debug("merged manifest", "path", src.Path, "prefix", src.Prefix,
			"files", len(m.Files), "blobs", len(m.Blobs), "packs", len(m.Packs))
	}
	return state, nil
}

// Merge folds m into the state. Blobs and packs are content keyed, so the
// last one seen wins; files are keyed by their prefixed path. A prefixed
// name that leaves the root fails the merge before anything is added.
func (s *TargetState) Merge(m *DependencyManifest, prefix string) error {
	prefix = strings.TrimLeft(normalizeName(prefix), "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	files := make([]TargetFile, 0, len(m.Files))
	for _, f := range m.Files {
		if err := checkName(prefix + f.Name); err != nil {
			return err
		}
		f.Name = path.Clean(prefix + f.Name)
		files = append(files, f)
	}
	for _, f := range files {
		s.Files[f.Name] = f
	}
	for _, b := range m.Blobs {
		s.Blobs[b.Hash] = b
	}
	for _, p := range m.Packs {
		if p.BaseURL == "" {
			p.BaseURL = strings.TrimRight(m.BaseURL, "/")
		}
		s.Packs[p.Hash] = p
	}
	return nil
}

// FileNames returns the target file names in sorted order.
func (s *TargetState) FileNames() []string {
	names := make([]string, 0, len(s.Files))
	for name := range s.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the blob and pack that back f.
func (s *TargetState) Resolve(f TargetFile) (TargetBlob, TargetPack, error) {
	blob, ok := s.Blobs[f.Hash]
	if !ok {
		return TargetBlob{}, TargetPack{}, fmt.Errorf("file %s: no blob for hash %s", f.Name, f.Hash)
	}
	p, ok := s.Packs[blob.PackHash]
	if !ok {
		return TargetBlob{}, TargetPack{}, fmt.Errorf("file %s: blob %s references unknown pack %s", f.Name, blob.Hash, blob.PackHash)
	}
	return blob, p, nil
}

// DiscoverManifests lists the target manifests under root. For every
// immediate subdirectory D it reads D/Build/*.gitdeps.xml unprefixed, and for
// every directory P below D/Plugins that has a Build folder it reads
// P/Build/*.gitdeps.xml with P's root-relative path as prefix.
func DiscoverManifests(root string) ([]Source, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("discover manifests: %w", err)
	}

	var sources []Source
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, entry.Name())

		found, err := buildManifests(filepath.Join(dir, "Build"), "")
		if err != nil {
			return nil, err
		}
		sources = append(sources, found...)

		plugins, err := pluginManifests(root, filepath.Join(dir, "Plugins"))
		if err != nil {
			return nil, err
		}
		sources = append(sources, plugins...)
	}
	return sources, nil
}

func pluginManifests(root, pluginsDir string) ([]Source, error) {
	if _, err := os.Stat(pluginsDir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("discover manifests: %w", err)
	}

	var sources []Source
	err := filepath.WalkDir(pluginsDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || d.Name() != "Build" {
			return nil
		}
		owner := filepath.Dir(p)
		rel, err := filepath.Rel(root, owner)
		if err != nil {
			return err
		}
		found, err := buildManifests(p, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		sources = append(sources, found...)
		return filepath.SkipDir
	})
	if err != nil {
		return nil, fmt.Errorf("discover plugin manifests: %w", err)
	}
	return sources, nil
}

func buildManifests(buildDir, prefix string) ([]Source, error) {
	entries, err := os.ReadDir(buildDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("discover manifests in %s: %w", buildDir, err)
	}

	var sources []Source
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ManifestSuffix) {
			continue
		}
		sources = append(sources, Source{
			Path:   filepath.Join(buildDir, entry.Name()),
			Prefix: prefix,
		})
	}
	return sources, nil
}
