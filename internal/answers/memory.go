package answers

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps the answer log in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryStore(seed ...Entry) *MemoryStore {
	return &MemoryStore{entries: slices.Clone(seed)}
}

func (m *MemoryStore) LoadAnswers(context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries), nil
}

func (m *MemoryStore) AppendAnswer(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}
