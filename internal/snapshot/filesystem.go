package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"csync/internal/csync"
)

// FileSystemStore keeps snapshots in a directory:
//
//	<root>/
//	  <instanceID>.db       (latest database snapshot)
//	  <instanceID>.version  (sync run id that produced it)
type FileSystemStore struct {
	root string
}

// NewFileSystemStore creates a store rooted at root, creating the directory
// if needed.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

func (s *FileSystemStore) dataPath(instanceID string) string {
	return filepath.Join(s.root, instanceID+".db")
}

func (s *FileSystemStore) versionPath(instanceID string) string {
	return filepath.Join(s.root, instanceID+".version")
}

// Put writes the snapshot before its version.
func (s *FileSystemStore) Put(ctx context.Context, instanceID string, r io.Reader, size int64, version int64) error {
	if err := writeFile(s.dataPath(instanceID), r, size); err != nil {
		return err
	}
	versionData := strconv.FormatInt(version, 10)
	return writeFile(s.versionPath(instanceID), strings.NewReader(versionData), int64(len(versionData)))
}

func (s *FileSystemStore) Get(ctx context.Context, instanceID string, w io.Writer) error {
	f, err := os.Open(s.dataPath(instanceID))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w for instance %s", ErrNoSnapshot, instanceID)
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return nil
}

// Version returns 0 if no version file exists.
func (s *FileSystemStore) Version(ctx context.Context, instanceID string) (int64, error) {
	data, err := os.ReadFile(s.versionPath(instanceID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}
	return parseVersion(string(data))
}

func (s *FileSystemStore) ValidateSetup(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("snapshot root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("snapshot root is not a directory: %s", s.root)
	}
	return nil
}

func parseVersion(raw string) (int64, error) {
	version, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// writeFile writes data from r to destPath using atomic write (temp file + rename).
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

var _ csync.SnapshotStore = (*FileSystemStore)(nil)
