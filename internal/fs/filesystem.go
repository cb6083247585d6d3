package fs

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/natefinch/atomic"

	"csync/internal/csync"
)

// OSFilesystemManager is the real filesystem implementation of csync.FilesystemManager.
type OSFilesystemManager struct {
	ignore *IgnoreMatcher
}

// NewOSFilesystemManager creates a filesystem manager that skips whatever
// ignore matches during scans. A nil matcher applies DefaultIgnorePatterns.
func NewOSFilesystemManager(ignore *IgnoreMatcher) *OSFilesystemManager {
	if ignore == nil {
		ignore = NewIgnoreMatcher(DefaultIgnorePatterns)
	}
	return &OSFilesystemManager{ignore: ignore}
}

// Ignore returns the matcher used by Scan.
func (m *OSFilesystemManager) Ignore() *IgnoreMatcher {
	return m.ignore
}

// checkMode rejects the special file types we don't support.
func checkMode(path string, mode fs.FileMode) error {
	if mode&os.ModeSymlink != 0 {
		return fmt.Errorf("symlinks not supported: %s", path)
	}
	if mode&os.ModeDevice != 0 {
		return fmt.Errorf("device files not supported: %s", path)
	}
	if mode&os.ModeNamedPipe != 0 {
		return fmt.Errorf("named pipes not supported: %s", path)
	}
	if mode&os.ModeSocket != 0 {
		return fmt.Errorf("sockets not supported: %s", path)
	}
	return nil
}

func (m *OSFilesystemManager) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile replaces path through a temporary file and rename, so readers
// never see a partial write.
func (m *OSFilesystemManager) WriteFile(path string, data []byte) error {
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Stat returns fresh file info for a path.
func (m *OSFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

func (m *OSFilesystemManager) ModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (m *OSFilesystemManager) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Compile-time check that OSFilesystemManager implements csync.FilesystemManager interface
var _ csync.FilesystemManager = (*OSFilesystemManager)(nil)
