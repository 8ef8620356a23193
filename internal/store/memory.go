package store

import (
	"context"
	"sync"
)

// Memory keeps collections in process memory. It is the fallback when the
// configured store cannot be opened, and the store used by tests.
type Memory struct {
	mu   sync.RWMutex
	data map[Key][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[Key][]byte)}
}

func (m *Memory) Load(_ context.Context, key Key) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return clone(raw), nil
}

func (m *Memory) Save(_ context.Context, key Key, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = clone(data)
	return nil
}

func (m *Memory) Remove(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
