package testutil

import (
	"fmt"
	"iter"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"csync/internal/csync"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content []byte
	ModTime time.Time
}

// MockFilesystemManager is an in-memory filesystem for testing. It keeps its
// own clock: every AddFile and WriteFile advances it by one second, so each
// change gets a strictly later mtime at seconds resolution. Safe for
// concurrent use.
type MockFilesystemManager struct {
	mu    sync.Mutex
	files map[string]*MockFile
	now   time.Time

	// WriteErr, when set, is returned by every WriteFile call.
	WriteErr error
	writes   []string
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
		now:   time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func (m *MockFilesystemManager) tick() time.Time {
	m.now = m.now.Add(time.Second)
	return m.now
}

// AddFile creates or replaces a file.
func (m *MockFilesystemManager) AddFile(path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filepath.Clean(path)] = &MockFile{Content: []byte(content), ModTime: m.tick()}
}

// SetModTime overrides a file's mtime.
func (m *MockFilesystemManager) SetModTime(path string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[filepath.Clean(path)]; ok {
		f.ModTime = t
	}
}

// Touch advances a file's mtime without changing its content.
func (m *MockFilesystemManager) Touch(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[filepath.Clean(path)]; ok {
		f.ModTime = m.tick()
	}
}

// Remove deletes a file.
func (m *MockFilesystemManager) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, filepath.Clean(path))
}

// Rename moves a file, keeping its mtime.
func (m *MockFilesystemManager) Rename(oldPath, newPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.files[filepath.Clean(oldPath)]; ok {
		delete(m.files, filepath.Clean(oldPath))
		m.files[filepath.Clean(newPath)] = f
	}
}

// Content returns a file's content.
func (m *MockFilesystemManager) Content(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[filepath.Clean(path)]
	if !ok {
		return "", false
	}
	return string(f.Content), true
}

// Writes returns every path passed to WriteFile, in call order.
func (m *MockFilesystemManager) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.writes)
}

// Scan yields every file under root in path order, skipping dot files.
func (m *MockFilesystemManager) Scan(root string) iter.Seq2[csync.ScanEntry, error] {
	return func(yield func(csync.ScanEntry, error) bool) {
		prefix := strings.TrimRight(filepath.Clean(root), "/") + "/"

		m.mu.Lock()
		var entries []csync.ScanEntry
		for path, f := range m.files {
			if !strings.HasPrefix(path, prefix) || strings.HasPrefix(filepath.Base(path), ".") {
				continue
			}
			entries = append(entries, csync.ScanEntry{
				Dir:     filepath.Dir(path),
				Name:    filepath.Base(path),
				ModTime: f.ModTime,
				Size:    int64(len(f.Content)),
			})
		}
		m.mu.Unlock()

		slices.SortFunc(entries, func(a, b csync.ScanEntry) int {
			return strings.Compare(a.Path(), b.Path())
		})
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (m *MockFilesystemManager) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[filepath.Clean(path)]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	return slices.Clone(f.Content), nil
}

func (m *MockFilesystemManager) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.files[filepath.Clean(path)] = &MockFile{Content: slices.Clone(data), ModTime: m.tick()}
	m.writes = append(m.writes, path)
	return nil
}

func (m *MockFilesystemManager) ModTime(path string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[filepath.Clean(path)]
	if !ok {
		return time.Time{}, fmt.Errorf("file not found: %s", path)
	}
	return f.ModTime, nil
}

func (m *MockFilesystemManager) Exists(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[filepath.Clean(path)]
	return ok, nil
}

// Compile-time check
var _ csync.FilesystemManager = (*MockFilesystemManager)(nil)
