package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"csync/internal/csync"
)

// MemoryStore is an in-memory implementation of csync.SnapshotStore, useful
// for testing. This implementation is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string][]byte
	versions map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

func (m *MemoryStore) Put(ctx context.Context, instanceID string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[instanceID] = data
	m.versions[instanceID] = version
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, instanceID string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.data[instanceID]
	if !ok {
		return fmt.Errorf("%w for instance %s", ErrNoSnapshot, instanceID)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (m *MemoryStore) Version(ctx context.Context, instanceID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.versions[instanceID], nil
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryStore) ValidateSetup(ctx context.Context) error {
	return nil
}

var _ csync.SnapshotStore = (*MemoryStore)(nil)
