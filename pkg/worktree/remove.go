package worktree

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/gitdeps/pkg/manifest"
)

// RemoveFiles deletes the given working files under root and then prunes any
// directories the deletions left empty. Files already gone are skipped.
func RemoveFiles(root string, files []manifest.WorkingFile) (int, error) {
	removed := 0
	dirs := make(map[string]struct{})
	for _, f := range files {
		abs := filepath.Join(root, filepath.FromSlash(f.Name))
		if err := makeWritable(abs); err != nil {
			return removed, fmt.Errorf("remove %s: %w", f.Name, err)
		}
		if err := os.Remove(abs); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return removed, fmt.Errorf("remove %s: %w", f.Name, err)
		}
		removed++
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	pruneEmptyDirs(root, dirs)
	return removed, nil
}

// pruneEmptyDirs removes empty directories, walking upwards but never past
// root. Deepest paths go first so parents empty out in turn.
func pruneEmptyDirs(root string, dirs map[string]struct{}) {
	root = filepath.Clean(root)
	ordered := make([]string, 0, len(dirs))
	for d := range dirs {
		ordered = append(ordered, filepath.Clean(d))
	}
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	for _, dir := range ordered {
		for dir != root && strings.HasPrefix(dir, root+string(filepath.Separator)) {
			if err := os.Remove(dir); err != nil {
				// Not empty or already gone.
				break
			}
			dir = filepath.Dir(dir)
		}
	}
}
