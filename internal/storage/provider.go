// Package storage defines the playbook-root file-system abstraction.
package storage

import "time"

// FileMeta is a lightweight description of one stored file.
type FileMeta struct {
	Path      string
	Checksum  string
	UpdatedAt time.Time
}

// Provider is the interface for playbook file operations. All paths are
// relative to the store root.
type Provider interface {
	// List returns metadata for every .md file under dir.
	List(dir string) ([]FileMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path with content.
	Write(path string, content []byte) error
	// Append appends content to the file at path, creating it if needed.
	Append(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Root returns the absolute store root.
	Root() string
}
