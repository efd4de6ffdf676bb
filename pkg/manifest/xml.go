package manifest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// ErrParse marks a manifest that could not be decoded. It is a configuration
// error and is never retried.
var ErrParse = errors.New("manifest parse failed")

// DecodeDependencyManifest decodes and validates one target manifest.
func DecodeDependencyManifest(r io.Reader) (*DependencyManifest, error) {
	var m DependencyManifest
	if err := xml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if err := m.normalize(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return &m, nil
}

// ReadDependencyManifest reads the target manifest at path.
func ReadDependencyManifest(path string) (*DependencyManifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	defer f.Close()

	m, err := DecodeDependencyManifest(f)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return m, nil
}

// EncodeDependencyManifest writes m as indented XML.
func EncodeDependencyManifest(w io.Writer, m *DependencyManifest) error {
	return encodeXML(w, m)
}

func (m *DependencyManifest) normalize() error {
	m.BaseURL = strings.TrimRight(strings.TrimSpace(m.BaseURL), "/")
	for i := range m.Files {
		f := &m.Files[i]
		f.Name = normalizeName(f.Name)
		if err := checkName(f.Name); err != nil {
			return fmt.Errorf("file %d: %w", i, err)
		}
		h, err := ParseHash(string(f.Hash))
		if err != nil {
			return fmt.Errorf("file %s: %w", f.Name, err)
		}
		f.Hash = h
	}
	for i := range m.Blobs {
		b := &m.Blobs[i]
		h, err := ParseHash(string(b.Hash))
		if err != nil {
			return fmt.Errorf("blob %d: %w", i, err)
		}
		ph, err := ParseHash(string(b.PackHash))
		if err != nil {
			return fmt.Errorf("blob %s: pack %w", h, err)
		}
		b.Hash, b.PackHash = h, ph
	}
	for i := range m.Packs {
		p := &m.Packs[i]
		h, err := ParseHash(string(p.Hash))
		if err != nil {
			return fmt.Errorf("pack %d: %w", i, err)
		}
		p.Hash = h
		p.RemotePath = strings.Trim(strings.TrimSpace(p.RemotePath), "/")
		p.BaseURL = m.BaseURL
		p.IgnoreProxy = m.IgnoreProxy
	}
	return nil
}

// DecodeWorkingManifest decodes a working manifest.
func DecodeWorkingManifest(r io.Reader) (*WorkingManifest, error) {
	var m WorkingManifest
	if err := xml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	for i := range m.Files {
		f := &m.Files[i]
		f.Name = normalizeName(f.Name)
		if err := checkName(f.Name); err != nil {
			return nil, fmt.Errorf("%w: file %d: %w", ErrParse, i, err)
		}
		f.Hash = Hash(strings.ToLower(strings.TrimSpace(string(f.Hash))))
		f.ExpectedHash = Hash(strings.ToLower(strings.TrimSpace(string(f.ExpectedHash))))
	}
	return &m, nil
}

// EncodeWorkingManifest writes m as indented XML.
func EncodeWorkingManifest(w io.Writer, m *WorkingManifest) error {
	return encodeXML(w, m)
}

func encodeXML(w io.Writer, v any) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// normalizeName converts manifest paths to slash-separated form.
func normalizeName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimPrefix(name, "./")
}

// checkName rejects names that do not stay inside the sync root once joined
// onto it: empty, absolute or drive-qualified names, and names whose cleaned
// form climbs out through "..".
func checkName(name string) error {
	switch {
	case name == "":
		return errors.New("name is required")
	case strings.HasPrefix(name, "/"), len(name) >= 2 && name[1] == ':':
		return fmt.Errorf("name %q is absolute", name)
	}
	if clean := path.Clean(name); clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("name %q escapes the root", name)
	}
	return nil
}
