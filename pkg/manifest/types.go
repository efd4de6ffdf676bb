package manifest

import "encoding/xml"

// TargetFile identifies a required file in the working tree by content hash.
// Name is slash-separated and relative to the sync root.
type TargetFile struct {
	Name         string `xml:"Name,attr"`
	Hash         Hash   `xml:"Hash,attr"`
	IsExecutable bool   `xml:"IsExecutable,attr,omitempty"`
}

// TargetBlob locates one file's content inside the decompressed stream of a
// pack.
type TargetBlob struct {
	Hash       Hash   `xml:"Hash,attr"`
	Size       uint64 `xml:"Size,attr"`
	PackHash   Hash   `xml:"PackHash,attr"`
	PackOffset uint64 `xml:"PackOffset,attr"`
}

// End returns the exclusive end offset of the blob within its pack.
func (b TargetBlob) End() uint64 {
	return b.PackOffset + b.Size
}

// TargetPack is a single downloadable gzip unit holding the concatenated
// payloads of one or more blobs in offset order.
type TargetPack struct {
	Hash           Hash   `xml:"Hash,attr"`
	Size           uint64 `xml:"Size,attr"`
	CompressedSize uint64 `xml:"CompressedSize,attr"`
	RemotePath     string `xml:"RemotePath,attr"`

	// Inherited from the manifest the pack was read from.
	BaseURL     string `xml:"-"`
	IgnoreProxy bool   `xml:"-"`
}

// DependencyManifest is the decoded form of one *.gitdeps.xml file.
type DependencyManifest struct {
	XMLName     xml.Name     `xml:"DependencyManifest"`
	BaseURL     string       `xml:"BaseUrl,attr"`
	IgnoreProxy bool         `xml:"IgnoreProxy,attr,omitempty"`
	Files       []TargetFile `xml:"Files>File"`
	Blobs       []TargetBlob `xml:"Blobs>Blob"`
	Packs       []TargetPack `xml:"Packs>Pack"`
}

// WorkingFile records the state of a previously synced file. Timestamp is in
// ticks (see TicksFromTime); zero marks a download that never completed.
type WorkingFile struct {
	Name         string `xml:"Name,attr"`
	Hash         Hash   `xml:"Hash,attr"`
	ExpectedHash Hash   `xml:"ExpectedHash,attr"`
	Timestamp    int64  `xml:"Timestamp,attr"`
}

// Tampered reports whether the file changed since the tool last placed it.
func (f WorkingFile) Tampered() bool {
	return f.Hash != f.ExpectedHash
}

// WorkingManifest is the persisted state of the working tree.
type WorkingManifest struct {
	XMLName xml.Name      `xml:"WorkingManifest"`
	Files   []WorkingFile `xml:"Files>File"`
}

// Lookup indexes the manifest by file name.
func (m *WorkingManifest) Lookup() map[string]WorkingFile {
	out := make(map[string]WorkingFile, len(m.Files))
	for _, f := range m.Files {
		out[f.Name] = f
	}
	return out
}
