package fs

import (
	"fmt"
	"io/fs"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"csync/internal/csync"
)

// DefaultCacheSize is the number of files CachedReader keeps.
const DefaultCacheSize = 512

// StatFilesystem is a FilesystemManager that can also stat paths.
type StatFilesystem interface {
	csync.FilesystemManager
	Stat(path string) (fs.FileInfo, error)
}

type cachedFile struct {
	mtime time.Time
	size  int64
	data  []byte
}

// CachedReader keeps recently read file contents in an LRU. An entry is used
// only while the file's mtime and size are unchanged, and WriteFile drops it.
type CachedReader struct {
	StatFilesystem
	cache *lru.Cache[string, cachedFile]
}

// NewCachedReader wraps inner with an LRU of size entries.
func NewCachedReader(inner StatFilesystem, size int) (*CachedReader, error) {
	cache, err := lru.New[string, cachedFile](size)
	if err != nil {
		return nil, fmt.Errorf("creating read cache: %w", err)
	}
	return &CachedReader{StatFilesystem: inner, cache: cache}, nil
}

func (c *CachedReader) ReadFile(path string) ([]byte, error) {
	info, err := c.Stat(path)
	if err != nil {
		return nil, err
	}
	if hit, ok := c.cache.Get(path); ok && hit.mtime.Equal(info.ModTime()) && hit.size == info.Size() {
		return slices.Clone(hit.data), nil
	}

	data, err := c.StatFilesystem.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c.cache.Add(path, cachedFile{mtime: info.ModTime(), size: info.Size(), data: slices.Clone(data)})
	return data, nil
}

func (c *CachedReader) WriteFile(path string, data []byte) error {
	c.cache.Remove(path)
	return c.StatFilesystem.WriteFile(path, data)
}

// Len returns the number of cached files.
func (c *CachedReader) Len() int {
	return c.cache.Len()
}

var _ csync.FilesystemManager = (*CachedReader)(nil)
