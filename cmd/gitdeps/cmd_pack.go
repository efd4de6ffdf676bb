package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/odvcencio/gitdeps/pkg/manifest"
	"github.com/odvcencio/gitdeps/pkg/pack"
	"github.com/spf13/cobra"
)

func newPackCmd() *cobra.Command {
	var (
		baseURL      string
		remotePath   string
		outDir       string
		manifestPath string
		maxPackSize  string
	)
	cmd := &cobra.Command{
		Use:   "pack <dir>",
		Short: "Build packs and a dependency manifest from a directory",
		Long: "pack stores every file under <dir> in gzip packs written to <out>/<remote-path>\n" +
			"and writes a manifest naming each file by its path relative to <dir>.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if manifestPath == "" {
				return errors.New("--manifest-out is required")
			}
			limit, err := humanize.ParseBytes(maxPackSize)
			if err != nil {
				return fmt.Errorf("invalid --max-pack-size: %w", err)
			}
			b := &packBuilder{
				packDir:    filepath.Join(outDir, filepath.FromSlash(remotePath)),
				remotePath: remotePath,
				limit:      limit,
				done:       make(map[manifest.Hash]bool),
				m:          &manifest.DependencyManifest{BaseURL: baseURL},
			}
			if err := b.addTree(args[0]); err != nil {
				b.abort()
				return err
			}
			if err := b.flush(); err != nil {
				b.abort()
				return err
			}
			if err := writeDependencyManifest(manifestPath, b.m); err != nil {
				return err
			}

			var compressed uint64
			for _, p := range b.m.Packs {
				compressed += p.CompressedSize
			}
			fmt.Fprintf(cmd.OutOrStdout(), "packed %d file(s) into %d pack(s) (%s), manifest %s\n",
				len(b.m.Files), len(b.m.Packs), humanize.Bytes(compressed), manifestPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "URL the packs will be served from")
	cmd.Flags().StringVar(&remotePath, "remote-path", "packs", "path of the packs below the base URL")
	cmd.Flags().StringVar(&outDir, "out", ".", "directory that mirrors the base URL")
	cmd.Flags().StringVar(&manifestPath, "manifest-out", "", "manifest file to write (*"+manifest.ManifestSuffix+")")
	cmd.Flags().StringVar(&maxPackSize, "max-pack-size", "32MiB", "start a new pack once this much content is packed")
	return cmd
}

type packBuilder struct {
	packDir    string
	remotePath string
	limit      uint64

	tmp  *os.File
	w    *pack.Writer
	size uint64

	// done holds every blob already written to a pack.
	done map[manifest.Hash]bool
	m    *manifest.DependencyManifest
}

func (b *packBuilder) addTree(dir string) error {
	var names []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			names = append(names, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(names)

	for _, p := range names {
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if err := b.addFile(p, filepath.ToSlash(rel)); err != nil {
			return err
		}
	}
	return nil
}

func (b *packBuilder) addFile(path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	h := manifest.HashBytes(data)
	b.m.Files = append(b.m.Files, manifest.TargetFile{
		Name:         name,
		Hash:         h,
		IsExecutable: runtime.GOOS != "windows" && info.Mode()&0o111 != 0,
	})
	if b.done[h] {
		return nil
	}

	if b.w == nil {
		if err := os.MkdirAll(b.packDir, 0o755); err != nil {
			return fmt.Errorf("create pack directory: %w", err)
		}
		if b.tmp, err = os.CreateTemp(b.packDir, "pack-*.tmp"); err != nil {
			return fmt.Errorf("create pack: %w", err)
		}
		b.w = pack.NewWriter(b.tmp)
		b.size = 0
	}
	if _, err := b.w.Add(data); err != nil {
		return err
	}
	b.done[h] = true
	b.size += uint64(len(data))
	if b.size >= b.limit {
		return b.flush()
	}
	return nil
}

// flush finishes the open pack and moves it to its content-addressed name.
func (b *packBuilder) flush() error {
	if b.w == nil {
		return nil
	}
	summary, err := b.w.Close()
	b.w = nil
	if err != nil {
		return err
	}
	tmpName := b.tmp.Name()
	if err := b.tmp.Close(); err != nil {
		return fmt.Errorf("close pack: %w", err)
	}
	b.tmp = nil
	if err := os.Rename(tmpName, filepath.Join(b.packDir, string(summary.Pack.Hash))); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store pack: %w", err)
	}

	summary.Pack.RemotePath = b.remotePath
	b.m.Packs = append(b.m.Packs, summary.Pack)
	b.m.Blobs = append(b.m.Blobs, summary.Blobs...)
	return nil
}

func (b *packBuilder) abort() {
	if b.tmp != nil {
		b.tmp.Close()
		os.Remove(b.tmp.Name())
		b.tmp = nil
	}
	b.w = nil
}

func writeDependencyManifest(path string, m *manifest.DependencyManifest) error {
	var buf bytes.Buffer
	if err := manifest.EncodeDependencyManifest(&buf, m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
