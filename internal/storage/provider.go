// Package storage defines the case folder abstraction.
package storage

import (
	"io"
	"strings"
	"time"
)

// ManifestMeta describes one manifest file found in the case folder.
type ManifestMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for case folder file operations. All paths are
// relative to the case folder root.
type Provider interface {
	// List returns metadata for every manifest (.yaml/.yml) under dir.
	List(dir string) ([]ManifestMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Open streams the file at path; used for evidence files too large to
	// read at once.
	Open(path string) (io.ReadCloser, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
}

// IsManifest reports whether name looks like a case manifest.
func IsManifest(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
