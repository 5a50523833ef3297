package db

import (
	"context"
	"sync"

	"github.com/gleanhub/go-claimsync/models"
)

// MemoryStore is a map-backed KeyValueRepository for tests and the explicit
// no-persistence mode. Contents are lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

var _ models.KeyValueRepository = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, found := m.records[key]
	if !found {
		return nil, false, nil
	}
	// Hand out a copy so callers never alias the stored value.
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, true, nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]byte, len(value))
	copy(copied, value)
	m.records[key] = copied
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}
