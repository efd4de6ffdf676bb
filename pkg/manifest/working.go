package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	// WorkingManifestName is the working manifest file kept at the sync root.
	WorkingManifestName = ".uedependencies"
	// LegacyWorkingManifestName is read when WorkingManifestName is absent.
	LegacyWorkingManifestName = ".ue4dependencies"
)

// ticksAtUnixEpoch is the number of 100ns ticks between 0001-01-01 and
// 1970-01-01, which keeps timestamps compatible with existing manifests.
const ticksAtUnixEpoch = 621355968000000000

// TicksFromTime converts t to 100ns ticks since 0001-01-01 UTC.
func TicksFromTime(t time.Time) int64 {
	return t.UTC().UnixNano()/100 + ticksAtUnixEpoch
}

// TimeFromTicks is the inverse of TicksFromTime.
func TimeFromTicks(ticks int64) time.Time {
	return time.Unix(0, (ticks-ticksAtUnixEpoch)*100).UTC()
}

// ReadWorkingManifest loads the working manifest from root. It falls back to
// the legacy file name and returns an empty manifest when neither exists.
// The returned path is the file that was read, or "" when none was found.
func ReadWorkingManifest(root string) (*WorkingManifest, string, error) {
	for _, name := range []string{WorkingManifestName, LegacyWorkingManifestName} {
		path := filepath.Join(root, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, "", fmt.Errorf("read working manifest: %w", err)
		}
		m, err := DecodeWorkingManifest(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("read working manifest %s: %w", path, err)
		}
		return m, path, nil
	}
	return &WorkingManifest{}, "", nil
}

// WriteWorkingManifest atomically replaces the working manifest under root.
// The data goes to a temp file in the same directory, the previous manifest is
// deleted, and the temp file is renamed into place, so a crash leaves either
// the old manifest, the new one, or none; never a partial file. A legacy
// manifest is removed once the new one is in place.
func WriteWorkingManifest(root string, m *WorkingManifest) error {
	if m == nil {
		m = &WorkingManifest{}
	}
	sorted := &WorkingManifest{Files: append([]WorkingFile(nil), m.Files...)}
	sort.Slice(sorted.Files, func(i, j int) bool { return sorted.Files[i].Name < sorted.Files[j].Name })

	var buf bytes.Buffer
	if err := EncodeWorkingManifest(&buf, sorted); err != nil {
		return fmt.Errorf("write working manifest: encode: %w", err)
	}

	tmp, err := os.CreateTemp(root, WorkingManifestName+".tmp-*")
	if err != nil {
		return fmt.Errorf("write working manifest: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write working manifest: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write working manifest: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write working manifest: close: %w", err)
	}

	dest := filepath.Join(root, WorkingManifestName)
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		os.Remove(tmpName)
		return fmt.Errorf("write working manifest: remove previous: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write working manifest: rename: %w", err)
	}

	legacy := filepath.Join(root, LegacyWorkingManifestName)
	if err := os.Remove(legacy); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("write working manifest: remove legacy: %w", err)
	}
	return nil
}
