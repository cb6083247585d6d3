package csync

import (
	"iter"
	"path/filepath"
	"time"
)

// ScanEntry is one regular file found under the content root.
type ScanEntry struct {
	Dir     string
	Name    string
	ModTime time.Time
	Size    int64
}

// Path returns the entry's full path.
func (e ScanEntry) Path() string {
	return filepath.Join(e.Dir, e.Name)
}

// FilesystemManager abstracts file access so the engine can run against an
// in-memory tree in tests.
type FilesystemManager interface {
	// Scan yields every non-ignored regular file under root, descending
	// recursively. Any error ends the sequence.
	Scan(root string) iter.Seq2[ScanEntry, error]

	ReadFile(path string) ([]byte, error)

	// WriteFile replaces the file's contents.
	WriteFile(path string, data []byte) error

	// ModTime returns the live modification time of path.
	ModTime(path string) (time.Time, error)

	Exists(path string) (bool, error)
}
