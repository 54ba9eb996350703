package ledger

import (
	"context"
	"sync"
)

// MemoryStore keeps partitions in process memory. Used for dry runs and by
// tests of packages that depend on a ledger.
type MemoryStore struct {
	mu    sync.Mutex
	data  map[Identity]Partition
	saves int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[Identity]Partition)}
}

func (m *MemoryStore) LoadPartition(_ context.Context, id Identity) (Partition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[id]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

func (m *MemoryStore) SavePartition(_ context.Context, id Identity, p Partition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = p.Clone()
	m.saves++
	return nil
}

// Saves returns how many times SavePartition was called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
