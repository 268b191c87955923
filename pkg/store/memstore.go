package store

import (
	"bytes"
	"sort"
	"sync"
)

// MemStore is an in-memory Store, used by pkg/pmap and pkg/db's
// tests in place of a BoltStore. It keeps keys sorted on every Range call
// rather than maintaining a sorted structure incrementally, which is fine
// at test scale and keeps the implementation trivially correct.
type MemStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: map[string][]byte{}}
}

// Get implements Store.
func (m *MemStore) Get(key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put implements Store.
func (m *MemStore) Put(key, val []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = append([]byte(nil), val...)
	return nil
}

// Delete implements Store.
func (m *MemStore) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

// Range implements Store.
func (m *MemStore) Range(prefix []byte, fn func(key, val []byte) error) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	snapshot := make(map[string][]byte, len(keys))
	for _, k := range keys {
		snapshot[k] = m.data[k]
	}
	m.mu.Unlock()

	for _, k := range keys {
		if err := fn([]byte(k), snapshot[k]); err != nil {
			return err
		}
	}
	return nil
}

// Flush is a no-op: MemStore writes through immediately.
func (m *MemStore) Flush() error { return nil }

// Close is a no-op.
func (m *MemStore) Close() error { return nil }
